// seed-dev loads a small demo dataset (one business id, one supplier, one
// delivered shipment with three lines) so the acceptance workflow can be
// exercised locally.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-dev
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const seedBusinessId = "dev-business"

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	if err := models.MigrateTable(); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}

	ctx = utils.SetBusinessIdInContext(ctx, seedBusinessId)
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Seed")

	var supplier models.Supplier
	err := db.WithContext(ctx).
		Where("business_id = ? AND name = ?", seedBusinessId, "Golden Harvest Trading").
		First(&supplier).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup supplier: %v\n", err)
			os.Exit(1)
		}
		supplier = models.Supplier{
			BusinessId:    seedBusinessId,
			Name:          "Golden Harvest Trading",
			Email:         "orders@goldenharvest.example",
			Phone:         "09212345678",
			ContactPerson: "U Kyaw Min",
			IsActive:      utils.NewTrue(),
		}
		if err := db.WithContext(ctx).Create(&supplier).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create supplier: %v\n", err)
			os.Exit(1)
		}
	}

	var shipment models.Shipment
	err = db.WithContext(ctx).
		Where("business_id = ? AND shipment_number = ?", seedBusinessId, "SHP-DEV-0001").
		First(&shipment).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup shipment: %v\n", err)
			os.Exit(1)
		}
		now := time.Now().UTC()
		shipment = models.Shipment{
			BusinessId:     seedBusinessId,
			SupplierId:     supplier.ID,
			ShipmentNumber: "SHP-DEV-0001",
			ShipmentDate:   now.AddDate(0, 0, -2),
			DeliveredAt:    &now,
			Notes:          "dev seed shipment",
			Details: []*models.ShipmentDetail{
				{Name: "Jasmine Rice 25kg", Sku: "RICE-25", DeliveredQty: decimal.NewFromInt(40), UnitPrice: decimal.NewFromInt(52000)},
				{Name: "Peanut Oil 5L", Sku: "OIL-5", DeliveredQty: decimal.NewFromInt(24), UnitPrice: decimal.NewFromInt(31000)},
				{Name: "Dried Chili 1kg", Sku: "CHL-1", DeliveredQty: decimal.NewFromInt(12), UnitPrice: decimal.NewFromInt(9500)},
			},
		}
		if err := db.WithContext(ctx).Create(&shipment).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create shipment: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("seeded business_id=%s supplier_id=%d shipment_id=%d\n", seedBusinessId, supplier.ID, shipment.ID)
}
