package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
	"github.com/shopspring/decimal"
)

// AcceptanceRecord reconciles one shipment: exactly one record per shipment,
// one item per shipped line. Quantities are authoritative; the status columns
// are projections recomputed from them.
type AcceptanceRecord struct {
	ID                  int              `gorm:"primary_key" json:"id"`
	BusinessId          string           `gorm:"index;not null;index:uniq_acceptance_shipment,unique" json:"business_id"`
	ShipmentId          int              `gorm:"not null;index:uniq_acceptance_shipment,unique" json:"shipment_id"`
	SupplierId          int              `gorm:"index;not null" json:"supplier_id"`
	AcceptanceNumber    string           `gorm:"size:255" json:"acceptance_number"`
	SequenceNo          decimal.Decimal  `gorm:"type:decimal(15);not null" json:"sequence_no"`
	CurrentStatus       AcceptanceStatus `gorm:"type:enum('Pending','Accepted','Rejected','Partially Accepted');not null;default:'Pending'" json:"current_status"`
	AcceptanceNotes     string           `gorm:"type:text" json:"acceptance_notes"`
	RejectionNotes      string           `gorm:"type:text" json:"rejection_notes"`
	AcceptorName        string           `gorm:"size:100" json:"acceptor_name"`
	AcceptorDesignation string           `gorm:"size:100" json:"acceptor_designation"`
	AcceptorContact     string           `gorm:"size:100" json:"acceptor_contact"`
	SignatureObjectName string           `gorm:"size:255" json:"signature_object_name"`
	GenerateCertificate *bool            `gorm:"not null;default:false" json:"generate_certificate"`
	Version             int              `gorm:"not null;default:1" json:"version"`
	Items               []*AcceptanceItem `gorm:"foreignKey:AcceptanceRecordId" json:"items"`
	Documents           []*Document       `gorm:"polymorphic:Reference" json:"-"`
	CreatedAt           time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type AcceptanceItem struct {
	ID                 int              `gorm:"primary_key" json:"id"`
	AcceptanceRecordId int              `gorm:"index;not null" json:"acceptance_record_id"`
	ShipmentDetailId   int              `gorm:"index;not null" json:"shipment_detail_id"`
	Name               string           `gorm:"size:255;not null" json:"name"`
	DeliveredQty       decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"delivered_qty"`
	AcceptedQty        decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"accepted_qty"`
	RejectedQty        decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"rejected_qty"`
	RejectionReason    string           `gorm:"type:text" json:"rejection_reason"`
	ItemStatus         AcceptanceStatus `gorm:"-" json:"item_status"`
	CreatedAt          time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type AcceptanceItemInput struct {
	ID              int             `json:"id" binding:"required"`
	AcceptedQty     decimal.Decimal `json:"accepted_qty"`
	RejectedQty     decimal.Decimal `json:"rejected_qty"`
	RejectionReason string          `json:"rejection_reason"`
}

type NewItemQuantities struct {
	AcceptedQty decimal.Decimal `json:"accepted_qty"`
	RejectedQty decimal.Decimal `json:"rejected_qty"`
	Version     int             `json:"version" binding:"required"`
}

type AcceptanceInput struct {
	AcceptanceNotes     string                 `json:"acceptance_notes"`
	RejectionNotes      string                 `json:"rejection_notes"`
	AcceptorName        string                 `json:"acceptor_name"`
	AcceptorDesignation string                 `json:"acceptor_designation"`
	AcceptorContact     string                 `json:"acceptor_contact"`
	Signature           *NewDocument           `json:"signature"`
	GenerateCertificate *bool                  `json:"generate_certificate"`
	Version             int                    `json:"version" binding:"required"`
	Items               []*AcceptanceItemInput `json:"items"`
	Documents           []*NewDocument         `json:"documents"`
}

// RecomputeStatuses rederives every item status and the overall status from
// the current quantities. Mutates the receiver only.
func (r *AcceptanceRecord) RecomputeStatuses() {
	statuses := make([]AcceptanceStatus, 0, len(r.Items))
	for _, item := range r.Items {
		item.ItemStatus = DeriveItemStatus(item.DeliveredQty, item.AcceptedQty, item.RejectedQty)
		statuses = append(statuses, item.ItemStatus)
	}
	r.CurrentStatus = DeriveOverallStatus(statuses)
}

// a record is finalized once an acceptor has signed off on it
func (r *AcceptanceRecord) IsFinalized() bool {
	return strings.TrimSpace(r.AcceptorName) != ""
}

func (r *AcceptanceRecord) findItem(itemId int) *AcceptanceItem {
	for _, item := range r.Items {
		if item.ID == itemId {
			return item
		}
	}
	return nil
}

// CreateAcceptance enters the acceptance workflow for a shipment: one record,
// one item per shipped line in line order, everything Pending.
func CreateAcceptance(ctx context.Context, shipmentId int) (*AcceptanceRecord, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	shipment, err := GetShipment(ctx, shipmentId)
	if err != nil {
		return nil, err
	}

	count, err := utils.ResourceCountWhere[AcceptanceRecord](ctx, businessId, "shipment_id = ?", shipmentId)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("acceptance record already exists for this shipment")
	}

	seqNo, err := utils.GetSequence[AcceptanceRecord](ctx, businessId)
	if err != nil {
		return nil, err
	}

	items := make([]*AcceptanceItem, 0, len(shipment.Details))
	for _, detail := range shipment.Details {
		items = append(items, &AcceptanceItem{
			ShipmentDetailId: detail.ID,
			Name:             detail.Name,
			DeliveredQty:     detail.DeliveredQty,
			AcceptedQty:      decimal.Zero,
			RejectedQty:      decimal.Zero,
		})
	}

	record := AcceptanceRecord{
		BusinessId:          businessId,
		ShipmentId:          shipment.ID,
		SupplierId:          shipment.SupplierId,
		AcceptanceNumber:    fmt.Sprintf("ACN-%06d", seqNo),
		SequenceNo:          decimal.NewFromInt(seqNo),
		CurrentStatus:       AcceptanceStatusPending,
		GenerateCertificate: utils.NewFalse(),
		Version:             1,
		Items:               items,
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&record).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := PublishToDeliveryWorkflow(ctx, tx.WithContext(ctx), businessId, record.CreatedAt, record.ID, DeliveryReferenceTypeAcceptance, record, nil, PubSubMessageActionCreate); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	record.RecomputeStatuses()
	return &record, nil
}

func GetAcceptanceRecord(ctx context.Context, id int) (*AcceptanceRecord, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	record, err := utils.FetchModel[AcceptanceRecord](ctx, businessId, id, "Items", "Documents")
	if err != nil {
		return nil, err
	}
	record.RecomputeStatuses()
	return record, nil
}

// GetAcceptanceByShipment returns the shipment's acceptance record, or
// ErrorRecordNotFound when the workflow has not been entered yet.
func GetAcceptanceByShipment(ctx context.Context, shipmentId int) (*AcceptanceRecord, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var record AcceptanceRecord
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("business_id = ? AND shipment_id = ?", businessId, shipmentId).
		Preload("Items").Preload("Documents").
		First(&record).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	record.RecomputeStatuses()
	return &record, nil
}

// UpdateAcceptanceItemQuantities reconciles a single line. All-or-nothing:
// out-of-range quantities fail before any write, a stale version fails the
// whole transaction.
func UpdateAcceptanceItemQuantities(ctx context.Context, recordId int, itemId int, input *NewItemQuantities) (*AcceptanceRecord, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	record, err := utils.FetchModel[AcceptanceRecord](ctx, businessId, recordId, "Items")
	if err != nil {
		return nil, err
	}
	if config.StrictFinalizedAcceptanceLock() && record.IsFinalized() {
		return nil, ErrorRecordFinalized
	}

	item := record.findItem(itemId)
	if item == nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := ValidateItemQuantities(item.DeliveredQty, input.AcceptedQty, input.RejectedQty); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()
	err = tx.WithContext(ctx).Model(item).Updates(map[string]interface{}{
		"AcceptedQty": input.AcceptedQty,
		"RejectedQty": input.RejectedQty,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	item.AcceptedQty = input.AcceptedQty
	item.RejectedQty = input.RejectedQty
	record.RecomputeStatuses()

	guard := tx.WithContext(ctx).Model(&AcceptanceRecord{}).
		Where("id = ? AND version = ?", record.ID, input.Version).
		Updates(map[string]interface{}{
			"CurrentStatus": record.CurrentStatus,
			"Version":       input.Version + 1,
		})
	if guard.Error != nil {
		tx.Rollback()
		return nil, guard.Error
	}
	if guard.RowsAffected == 0 {
		tx.Rollback()
		return nil, ErrorStaleVersion
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	record.Version = input.Version + 1
	return record, nil
}

// SaveAcceptance finalizes (or re-saves) the whole record: quantities, notes,
// acceptor sign-off, signature artifact. It also seeds the rejection case for
// any rejected lines and queues the downstream notifications inside the same
// transaction.
func SaveAcceptance(ctx context.Context, recordId int, input *AcceptanceInput) (*AcceptanceRecord, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	record, err := utils.FetchModel[AcceptanceRecord](ctx, businessId, recordId, "Items")
	if err != nil {
		return nil, err
	}
	if config.StrictFinalizedAcceptanceLock() && record.IsFinalized() {
		return nil, ErrorRecordFinalized
	}

	if strings.TrimSpace(input.AcceptorName) == "" {
		return nil, ErrorMissingAcceptor
	}

	// validate every line before writing any
	for _, itemInput := range input.Items {
		item := record.findItem(itemInput.ID)
		if item == nil {
			return nil, utils.ErrorRecordNotFound
		}
		if err := ValidateItemQuantities(item.DeliveredQty, itemInput.AcceptedQty, itemInput.RejectedQty); err != nil {
			return nil, err
		}
	}

	signatureObjectName := record.SignatureObjectName
	if input.Signature != nil && input.Signature.DocumentData != "" {
		signatureObjectName = "signatures/" + businessId + "/" + utils.GenerateUniqueFilename()
		if err := utils.SaveArtifactToGCS(ctx, signatureObjectName, input.Signature.DocumentData); err != nil {
			return nil, err
		}
	}
	documents, err := mapNewDocuments(ctx, businessId, input.Documents, "acceptance_records")
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()
	for _, itemInput := range input.Items {
		item := record.findItem(itemInput.ID)
		err = tx.WithContext(ctx).Model(item).Updates(map[string]interface{}{
			"AcceptedQty":     itemInput.AcceptedQty,
			"RejectedQty":     itemInput.RejectedQty,
			"RejectionReason": itemInput.RejectionReason,
		}).Error
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		item.AcceptedQty = itemInput.AcceptedQty
		item.RejectedQty = itemInput.RejectedQty
		item.RejectionReason = itemInput.RejectionReason
	}

	record.RecomputeStatuses()

	generateCertificate := record.GenerateCertificate
	if input.GenerateCertificate != nil {
		generateCertificate = input.GenerateCertificate
	}

	guard := tx.WithContext(ctx).Model(&AcceptanceRecord{}).
		Where("id = ? AND version = ?", record.ID, input.Version).
		Updates(map[string]interface{}{
			"AcceptanceNotes":     input.AcceptanceNotes,
			"RejectionNotes":      input.RejectionNotes,
			"AcceptorName":        input.AcceptorName,
			"AcceptorDesignation": input.AcceptorDesignation,
			"AcceptorContact":     input.AcceptorContact,
			"SignatureObjectName": signatureObjectName,
			"GenerateCertificate": generateCertificate,
			"CurrentStatus":       record.CurrentStatus,
			"Version":             input.Version + 1,
		})
	if guard.Error != nil {
		tx.Rollback()
		return nil, guard.Error
	}
	if guard.RowsAffected == 0 {
		tx.Rollback()
		return nil, ErrorStaleVersion
	}

	record.AcceptanceNotes = input.AcceptanceNotes
	record.RejectionNotes = input.RejectionNotes
	record.AcceptorName = input.AcceptorName
	record.AcceptorDesignation = input.AcceptorDesignation
	record.AcceptorContact = input.AcceptorContact
	record.SignatureObjectName = signatureObjectName
	record.GenerateCertificate = generateCertificate
	record.Version = input.Version + 1

	for _, doc := range documents {
		doc.ReferenceType = "acceptance_records"
		doc.ReferenceID = record.ID
		if err := tx.WithContext(ctx).Create(doc).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if _, err := ensureRejectionCase(ctx, tx, businessId, record); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishToDeliveryWorkflow(ctx, tx.WithContext(ctx), businessId, time.Now().UTC(), record.ID, DeliveryReferenceTypeAcceptance, *record, nil, PubSubMessageActionUpdate); err != nil {
		tx.Rollback()
		return nil, err
	}
	if generateCertificate != nil && *generateCertificate {
		if err := PublishToDeliveryWorkflow(ctx, tx.WithContext(ctx), businessId, time.Now().UTC(), record.ID, DeliveryReferenceTypeCertificate, *record, nil, PubSubMessageActionCreate); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return record, nil
}
