package models

import (
	"encoding/json"
	"errors"
)

// AcceptanceStatus classifies a delivery line (or a whole shipment) from its
// reconciled quantities. It is always derived, never written directly.
type AcceptanceStatus string

const (
	AcceptanceStatusPending           AcceptanceStatus = "Pending"
	AcceptanceStatusAccepted          AcceptanceStatus = "Accepted"
	AcceptanceStatusRejected          AcceptanceStatus = "Rejected"
	AcceptanceStatusPartiallyAccepted AcceptanceStatus = "Partially Accepted"
)

// ReturnStatus is the disposition lifecycle of a rejected quantity.
// Transitions are free-form writes; there is no forward-only ordering.
type ReturnStatus string

const (
	ReturnStatusPending       ReturnStatus = "Pending"
	ReturnStatusApproved      ReturnStatus = "Approved"
	ReturnStatusReturned      ReturnStatus = "Returned"
	ReturnStatusNonReturnable ReturnStatus = "NonReturnable"
	ReturnStatusReplaced      ReturnStatus = "Replaced"
)

// convert input to enum type
func (s *ReturnStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("return status must be string")
	}
	switch str {
	case "Pending":
		*s = ReturnStatusPending
	case "Approved":
		*s = ReturnStatusApproved
	case "Returned":
		*s = ReturnStatusReturned
	case "NonReturnable":
		*s = ReturnStatusNonReturnable
	case "Replaced":
		*s = ReturnStatusReplaced
	default:
		return errors.New("invalid return status")
	}
	return nil
}

type RejectionCaseStatus string

const (
	RejectionCaseStatusOpen       RejectionCaseStatus = "Open"
	RejectionCaseStatusInProgress RejectionCaseStatus = "In Progress"
	RejectionCaseStatusResolved   RejectionCaseStatus = "Resolved"
)

type CommunicationMethod string

const (
	CommunicationMethodEmail    CommunicationMethod = "Email"
	CommunicationMethodPhone    CommunicationMethod = "Phone"
	CommunicationMethodWhatsApp CommunicationMethod = "WhatsApp"
)

func (m *CommunicationMethod) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("communication method must be string")
	}
	switch str {
	case "Email":
		*m = CommunicationMethodEmail
	case "Phone":
		*m = CommunicationMethodPhone
	case "WhatsApp":
		*m = CommunicationMethodWhatsApp
	default:
		return errors.New("invalid communication method")
	}
	return nil
}

// CommunicationDeliveryStatus is owned by the external channel collaborator;
// this core records the transitions it reports.
type CommunicationDeliveryStatus string

const (
	CommunicationDeliveryStatusSent      CommunicationDeliveryStatus = "Sent"
	CommunicationDeliveryStatusDelivered CommunicationDeliveryStatus = "Delivered"
	CommunicationDeliveryStatusRead      CommunicationDeliveryStatus = "Read"
	CommunicationDeliveryStatusFailed    CommunicationDeliveryStatus = "Failed"
)

func (s *CommunicationDeliveryStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("delivery status must be string")
	}
	switch str {
	case "Sent":
		*s = CommunicationDeliveryStatusSent
	case "Delivered":
		*s = CommunicationDeliveryStatusDelivered
	case "Read":
		*s = CommunicationDeliveryStatusRead
	case "Failed":
		*s = CommunicationDeliveryStatusFailed
	default:
		return errors.New("invalid delivery status")
	}
	return nil
}

// DeliveryReferenceType tags outbox messages with their source aggregate.
type DeliveryReferenceType string

const (
	DeliveryReferenceTypeAcceptance    DeliveryReferenceType = "ACN"
	DeliveryReferenceTypeRejection     DeliveryReferenceType = "REJ"
	DeliveryReferenceTypeCommunication DeliveryReferenceType = "COM"
	DeliveryReferenceTypeCertificate   DeliveryReferenceType = "CERT"
)

type PubSubMessageAction string

const (
	PubSubMessageActionCreate PubSubMessageAction = "C"
	PubSubMessageActionUpdate PubSubMessageAction = "U"
	PubSubMessageActionDelete PubSubMessageAction = "D"
)
