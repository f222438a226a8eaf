package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
)

// CommunicationEntry is the append-only vendor contact log of a rejection
// case. Content fields are never edited after creation; only the delivery
// status moves, driven by callbacks from the channel collaborator.
type CommunicationEntry struct {
	ID                   int                         `gorm:"primary_key" json:"id"`
	BusinessId           string                      `gorm:"index;not null" json:"business_id"`
	RejectionCaseId      int                         `gorm:"index;not null" json:"rejection_case_id"`
	SupplierId           int                         `gorm:"index;not null" json:"supplier_id"`
	Method               CommunicationMethod         `gorm:"type:enum('Email','Phone','WhatsApp');not null" json:"method"`
	DeliveryStatus       CommunicationDeliveryStatus `gorm:"type:enum('Sent','Delivered','Read','Failed');not null;default:'Sent'" json:"delivery_status"`
	SentAt               time.Time                   `gorm:"index;not null" json:"sent_at"`
	Message              string                      `gorm:"type:text" json:"message"`
	ExpectedResponseDate *time.Time                  `json:"expected_response_date"`
	CreatedAt            time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCommunicationEntry struct {
	Method               CommunicationMethod `json:"method" binding:"required"`
	Message              string              `json:"message"`
	ExpectedResponseDate *time.Time          `json:"expected_response_date"`
}

// vendor must be reachable on the chosen channel before we log an attempt
func validateVendorContact(supplier *Supplier, method CommunicationMethod) error {
	switch method {
	case CommunicationMethodEmail:
		if supplier.Email == "" || !utils.IsValidEmail(supplier.Email) {
			return errors.New("supplier has no valid email address")
		}
	case CommunicationMethodPhone, CommunicationMethodWhatsApp:
		phone := supplier.Phone
		if phone == "" {
			phone = supplier.Mobile
		}
		if phone == "" {
			return errors.New("supplier has no phone number")
		}
		if err := utils.ValidatePhoneNumber(phone, utils.CountryCode); err != nil {
			return errors.New("supplier phone number is invalid")
		}
	default:
		return errors.New("invalid communication method")
	}
	return nil
}

// ContactVendor logs a contact attempt on the case. The entry starts as Sent;
// the case's vendor_contacted_date always reflects the latest attempt.
func ContactVendor(ctx context.Context, caseId int, input *NewCommunicationEntry) (*CommunicationEntry, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if strings.TrimSpace(input.Message) == "" {
		return nil, ErrorEmptyMessage
	}

	rejectionCase, err := utils.FetchModel[RejectionCase](ctx, businessId, caseId)
	if err != nil {
		return nil, err
	}
	supplier, err := utils.FetchModel[Supplier](ctx, businessId, rejectionCase.SupplierId)
	if err != nil {
		return nil, err
	}
	if err := validateVendorContact(supplier, input.Method); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry := CommunicationEntry{
		BusinessId:           businessId,
		RejectionCaseId:      rejectionCase.ID,
		SupplierId:           supplier.ID,
		Method:               input.Method,
		DeliveryStatus:       CommunicationDeliveryStatusSent,
		SentAt:               now,
		Message:              input.Message,
		ExpectedResponseDate: input.ExpectedResponseDate,
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	// last contact wins
	caseUpdates := map[string]interface{}{
		"VendorContactedDate": &now,
	}
	if input.ExpectedResponseDate != nil {
		caseUpdates["ExpectedResponseDate"] = input.ExpectedResponseDate
	}
	if err := tx.WithContext(ctx).Model(rejectionCase).Updates(caseUpdates).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishToDeliveryWorkflow(ctx, tx.WithContext(ctx), businessId, now, entry.ID, DeliveryReferenceTypeCommunication, entry, nil, PubSubMessageActionCreate); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func GetCommunicationEntries(ctx context.Context, caseId int) ([]*CommunicationEntry, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidateResourceId[RejectionCase](ctx, businessId, caseId); err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	db := config.GetDB()
	var results []*CommunicationEntry
	err := db.WithContext(ctx).
		Where("business_id = ? AND rejection_case_id = ?", businessId, caseId).
		Order("id ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// UpdateCommunicationDeliveryStatus records a channel-collaborator callback.
// Only the delivery status column moves; the logged content is immutable.
func UpdateCommunicationDeliveryStatus(ctx context.Context, businessId string, entryId int, status CommunicationDeliveryStatus) (*CommunicationEntry, error) {
	entry, err := utils.FetchModel[CommunicationEntry](ctx, businessId, entryId)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(entry).
		UpdateColumn("DeliveryStatus", status).Error
	if err != nil {
		return nil, err
	}
	entry.DeliveryStatus = status
	return entry, nil
}
