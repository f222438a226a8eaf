package models

import "bitbucket.org/mmdatafocus/procurement_backend/config"

func MigrateTable() error {
	db := config.GetDB()
	return db.AutoMigrate(
		&Supplier{},
		&Shipment{},
		&ShipmentDetail{},
		&AcceptanceRecord{},
		&AcceptanceItem{},
		&RejectionCase{},
		&RejectedItemDisposition{},
		&CommunicationEntry{},
		&Document{},
		&PubSubMessageRecord{},
		&IdempotencyKey{},
	)
}
