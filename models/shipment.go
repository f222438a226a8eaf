package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Shipments are owned by the delivery-tracking service; this backend only
// reads them to seed acceptance records. No create/update/delete here.
type Shipment struct {
	ID                   int               `gorm:"primary_key" json:"id"`
	BusinessId           string            `gorm:"index;not null" json:"business_id"`
	SupplierId           int               `gorm:"index;not null" json:"supplier_id"`
	ShipmentNumber       string            `gorm:"size:255" json:"shipment_number"`
	ShipmentDate         time.Time         `gorm:"index;not null" json:"shipment_date"`
	ExpectedDeliveryDate *time.Time        `json:"expected_delivery_date"`
	DeliveredAt          *time.Time        `gorm:"index" json:"delivered_at"`
	Notes                string            `gorm:"type:text" json:"notes"`
	Details              []*ShipmentDetail `gorm:"foreignKey:ShipmentId" json:"details"`
	CreatedAt            time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type ShipmentDetail struct {
	ID           int             `gorm:"primary_key" json:"id"`
	ShipmentId   int             `gorm:"index;not null" json:"shipment_id"`
	Name         string          `gorm:"size:255;not null" json:"name"`
	Sku          string          `gorm:"size:100" json:"sku"`
	DeliveredQty decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"delivered_qty"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetShipment(ctx context.Context, id int) (*Shipment, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var result Shipment
	db := config.GetDB()
	// details in line order: insertion order is reconciliation order
	err := db.WithContext(ctx).Where("business_id = ?", businessId).
		Preload("Details", func(db *gorm.DB) *gorm.DB { return db.Order("shipment_details.id ASC") }).
		First(&result, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func GetShipments(ctx context.Context, supplierId *int) ([]*Shipment, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Shipment
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if supplierId != nil && *supplierId > 0 {
		dbCtx = dbCtx.Where("supplier_id = ?", *supplierId)
	}
	if err := dbCtx.Order("shipment_date DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
