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
	"gorm.io/gorm"
)

// RejectionCase tracks the disposition of every rejected line of one
// acceptance record. Dispositions reference acceptance items by id only; the
// acceptance aggregate never reaches back into the case.
type RejectionCase struct {
	ID                   int                        `gorm:"primary_key" json:"id"`
	BusinessId           string                     `gorm:"index;not null;index:uniq_case_acceptance,unique" json:"business_id"`
	AcceptanceRecordId   int                        `gorm:"not null;index:uniq_case_acceptance,unique" json:"acceptance_record_id"`
	ShipmentId           int                        `gorm:"index;not null" json:"shipment_id"`
	SupplierId           int                        `gorm:"index;not null" json:"supplier_id"`
	CaseNumber           string                     `gorm:"size:255" json:"case_number"`
	SequenceNo           decimal.Decimal            `gorm:"type:decimal(15);not null" json:"sequence_no"`
	RejectionDate        time.Time                  `gorm:"index;not null" json:"rejection_date"`
	CurrentStatus        RejectionCaseStatus        `gorm:"type:enum('Open','In Progress','Resolved');not null;default:'Open'" json:"current_status"`
	VendorContactedDate  *time.Time                 `json:"vendor_contacted_date"`
	ExpectedResponseDate *time.Time                 `json:"expected_response_date"`
	ResolutionNotes      string                     `gorm:"type:text" json:"resolution_notes"`
	Version              int                        `gorm:"not null;default:1" json:"version"`
	Dispositions         []*RejectedItemDisposition `gorm:"foreignKey:RejectionCaseId" json:"dispositions"`
	TotalCostImpact      decimal.Decimal            `gorm:"-" json:"total_cost_impact"`
	CreatedAt            time.Time                  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time                  `gorm:"autoUpdateTime" json:"updated_at"`
}

type RejectedItemDisposition struct {
	ID               int             `gorm:"primary_key" json:"id"`
	RejectionCaseId  int             `gorm:"not null;index:uniq_disposition_item,unique" json:"rejection_case_id"`
	AcceptanceItemId int             `gorm:"not null;index:uniq_disposition_item,unique" json:"acceptance_item_id"`
	Name             string          `gorm:"size:255;not null" json:"name"`
	RejectedQty      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"rejected_qty"`
	RejectionReason  string          `gorm:"type:text" json:"rejection_reason"`
	ReturnStatus     ReturnStatus    `gorm:"type:enum('Pending','Approved','Returned','NonReturnable','Replaced');not null;default:'Pending'" json:"return_status"`
	InventoryLocation string         `gorm:"size:255" json:"inventory_location"`
	ReturnDate       *time.Time      `json:"return_date"`
	ReplacementDate  *time.Time      `json:"replacement_date"`
	CostImpact       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cost_impact"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type DispositionInput struct {
	ID                int             `json:"id" binding:"required"`
	ReturnStatus      ReturnStatus    `json:"return_status" binding:"required"`
	InventoryLocation string          `json:"inventory_location"`
	ReturnDate        *time.Time      `json:"return_date"`
	ReplacementDate   *time.Time      `json:"replacement_date"`
	CostImpact        decimal.Decimal `json:"cost_impact"`
}

type UpdateDispositionsInput struct {
	ResolutionNotes string              `json:"resolution_notes"`
	Version         int                 `json:"version" binding:"required"`
	Items           []*DispositionInput `json:"items"`
}

// TotalCostImpactOf sums cost impact over NonReturnable dispositions only:
// returned and replaced goods carry no write-off.
func TotalCostImpactOf(dispositions []*RejectedItemDisposition) decimal.Decimal {
	total := decimal.Zero
	for _, d := range dispositions {
		if d.ReturnStatus == ReturnStatusNonReturnable {
			total = total.Add(d.CostImpact)
		}
	}
	return total
}

// deriveCaseStatus: untouched case is Open, every disposition moved off
// Pending resolves it, anything in between is In Progress.
func deriveCaseStatus(dispositions []*RejectedItemDisposition) RejectionCaseStatus {
	if len(dispositions) == 0 {
		return RejectionCaseStatusOpen
	}
	pending := 0
	for _, d := range dispositions {
		if d.ReturnStatus == ReturnStatusPending {
			pending++
		}
	}
	switch pending {
	case len(dispositions):
		return RejectionCaseStatusOpen
	case 0:
		return RejectionCaseStatusResolved
	default:
		return RejectionCaseStatusInProgress
	}
}

// Disposition fields are conditionally required by the chosen return status.
// Evaluated at save time: switching status later re-triggers the check.
func (input *DispositionInput) validate() error {
	switch input.ReturnStatus {
	case ReturnStatusNonReturnable:
		if strings.TrimSpace(input.InventoryLocation) == "" {
			return errors.New("inventory location is required for non-returnable items")
		}
	case ReturnStatusReturned:
		if input.ReturnDate == nil {
			return errors.New("return date is required for returned items")
		}
	case ReturnStatusReplaced:
		if input.ReplacementDate == nil {
			return errors.New("replacement date is required for replaced items")
		}
	case ReturnStatusPending, ReturnStatusApproved:
	default:
		return errors.New("invalid return status")
	}
	if input.CostImpact.IsNegative() {
		return errors.New("cost impact cannot be negative")
	}
	return nil
}

func (c *RejectionCase) findDisposition(id int) *RejectedItemDisposition {
	for _, d := range c.Dispositions {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func GetRejectionCase(ctx context.Context, id int) (*RejectionCase, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	result, err := utils.FetchModel[RejectionCase](ctx, businessId, id, "Dispositions")
	if err != nil {
		return nil, err
	}
	result.TotalCostImpact = TotalCostImpactOf(result.Dispositions)
	return result, nil
}

// GetRejectionCaseByAcceptance returns the case seeded for an acceptance
// record, or ErrorRecordNotFound when nothing was rejected yet.
func GetRejectionCaseByAcceptance(ctx context.Context, acceptanceRecordId int) (*RejectionCase, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var result RejectionCase
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("business_id = ? AND acceptance_record_id = ?", businessId, acceptanceRecordId).
		Preload("Dispositions").
		First(&result).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	result.TotalCostImpact = TotalCostImpactOf(result.Dispositions)
	return &result, nil
}

// UpdateDispositions persists disposition transitions and resolution notes.
// Transitions are free-form, including back to Pending. Quantities are
// snapshots from seeding time and are not cross-checked against the
// acceptance record here.
func UpdateDispositions(ctx context.Context, caseId int, input *UpdateDispositionsInput) (*RejectionCase, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	rejectionCase, err := utils.FetchModel[RejectionCase](ctx, businessId, caseId, "Dispositions")
	if err != nil {
		return nil, err
	}

	// validate every disposition before writing any
	for _, item := range input.Items {
		if rejectionCase.findDisposition(item.ID) == nil {
			return nil, utils.ErrorRecordNotFound
		}
		if err := item.validate(); err != nil {
			return nil, err
		}
	}

	db := config.GetDB()
	tx := db.Begin()
	for _, item := range input.Items {
		disposition := rejectionCase.findDisposition(item.ID)
		err = tx.WithContext(ctx).Model(disposition).Updates(map[string]interface{}{
			"ReturnStatus":      item.ReturnStatus,
			"InventoryLocation": item.InventoryLocation,
			"ReturnDate":        item.ReturnDate,
			"ReplacementDate":   item.ReplacementDate,
			"CostImpact":        item.CostImpact,
		}).Error
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		disposition.ReturnStatus = item.ReturnStatus
		disposition.InventoryLocation = item.InventoryLocation
		disposition.ReturnDate = item.ReturnDate
		disposition.ReplacementDate = item.ReplacementDate
		disposition.CostImpact = item.CostImpact
	}

	currentStatus := deriveCaseStatus(rejectionCase.Dispositions)
	guard := tx.WithContext(ctx).Model(&RejectionCase{}).
		Where("id = ? AND version = ?", rejectionCase.ID, input.Version).
		Updates(map[string]interface{}{
			"ResolutionNotes": input.ResolutionNotes,
			"CurrentStatus":   currentStatus,
			"Version":         input.Version + 1,
		})
	if guard.Error != nil {
		tx.Rollback()
		return nil, guard.Error
	}
	if guard.RowsAffected == 0 {
		tx.Rollback()
		return nil, ErrorStaleVersion
	}

	rejectionCase.ResolutionNotes = input.ResolutionNotes
	rejectionCase.CurrentStatus = currentStatus
	rejectionCase.Version = input.Version + 1

	if err := PublishToDeliveryWorkflow(ctx, tx.WithContext(ctx), businessId, time.Now().UTC(), rejectionCase.ID, DeliveryReferenceTypeRejection, *rejectionCase, nil, PubSubMessageActionUpdate); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	rejectionCase.TotalCostImpact = TotalCostImpactOf(rejectionCase.Dispositions)
	return rejectionCase, nil
}

// ensureRejectionCase is called from SaveAcceptance inside its transaction.
// It seeds the case on first rejection and upserts a Pending disposition for
// every newly rejected item. Existing dispositions are never overwritten:
// re-saving the acceptance does not reset work the resolution team already
// did, and disposition quantities keep their seeding-time snapshot.
func ensureRejectionCase(ctx context.Context, tx *gorm.DB, businessId string, record *AcceptanceRecord) (*RejectionCase, error) {
	var rejectedItems []*AcceptanceItem
	for _, item := range record.Items {
		status := DeriveItemStatus(item.DeliveredQty, item.AcceptedQty, item.RejectedQty)
		if (status == AcceptanceStatusRejected || status == AcceptanceStatusPartiallyAccepted) && item.RejectedQty.IsPositive() {
			rejectedItems = append(rejectedItems, item)
		}
	}
	if len(rejectedItems) == 0 {
		// existing cases are never deleted even if quantities were amended
		return nil, nil
	}

	var rejectionCase RejectionCase
	err := tx.WithContext(ctx).
		Where("business_id = ? AND acceptance_record_id = ?", businessId, record.ID).
		Preload("Dispositions").
		First(&rejectionCase).Error
	created := false
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		seqNo, err := utils.GetSequence[RejectionCase](ctx, businessId)
		if err != nil {
			return nil, err
		}
		rejectionCase = RejectionCase{
			BusinessId:         businessId,
			AcceptanceRecordId: record.ID,
			ShipmentId:         record.ShipmentId,
			SupplierId:         record.SupplierId,
			CaseNumber:         fmt.Sprintf("REJ-%06d", seqNo),
			SequenceNo:         decimal.NewFromInt(seqNo),
			RejectionDate:      time.Now().UTC(),
			CurrentStatus:      RejectionCaseStatusOpen,
			Version:            1,
		}
		if err := tx.WithContext(ctx).Create(&rejectionCase).Error; err != nil {
			return nil, err
		}
		created = true
	}

	seeded := make(map[int]bool, len(rejectionCase.Dispositions))
	for _, d := range rejectionCase.Dispositions {
		seeded[d.AcceptanceItemId] = true
	}
	for _, item := range rejectedItems {
		if seeded[item.ID] {
			continue
		}
		disposition := RejectedItemDisposition{
			RejectionCaseId:  rejectionCase.ID,
			AcceptanceItemId: item.ID,
			Name:             item.Name,
			RejectedQty:      item.RejectedQty,
			RejectionReason:  item.RejectionReason,
			ReturnStatus:     ReturnStatusPending,
			CostImpact:       decimal.Zero,
		}
		if err := tx.WithContext(ctx).Create(&disposition).Error; err != nil {
			return nil, err
		}
		rejectionCase.Dispositions = append(rejectionCase.Dispositions, &disposition)
	}

	if created {
		if err := PublishToDeliveryWorkflow(ctx, tx.WithContext(ctx), businessId, rejectionCase.RejectionDate, rejectionCase.ID, DeliveryReferenceTypeRejection, rejectionCase, nil, PubSubMessageActionCreate); err != nil {
			return nil, err
		}
	}
	return &rejectionCase, nil
}
