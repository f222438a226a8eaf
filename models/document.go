package models

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
	"gorm.io/gorm"
)

// Document is a polymorphic attachment (delivery photos, acceptance
// paperwork). Files live in GCS; the row keeps the object name and the public
// access URL. Signature artifacts are stored the same way but referenced
// directly from the acceptance record.
type Document struct {
	ID            int    `gorm:"primary_key" json:"id"`
	DocumentUrl   string `json:"document_url"`
	ObjectName    string `gorm:"size:255" json:"object_name"`
	ReferenceType string `json:"reference_type"`
	ReferenceID   int    `json:"reference_id"`
}

type NewDocument struct {
	FileName     string `json:"file_name"`
	DocumentData string `json:"document_data"` // base64 payload, opaque to this service
}

// for create: uploads the payload and returns the row to attach
func (input NewDocument) MapInput(ctx context.Context, businessId string, referenceType string) (*Document, error) {
	if input.DocumentData == "" {
		return nil, errors.New("document data is required")
	}
	objectName := referenceType + "/" + businessId + "/" + utils.GenerateUniqueFilename()
	if err := utils.SaveArtifactToGCS(ctx, objectName, input.DocumentData); err != nil {
		return nil, err
	}
	return &Document{
		DocumentUrl: utils.ObjectAccessURL(objectName),
		ObjectName:  objectName,
	}, nil
}

func mapNewDocuments(ctx context.Context, businessId string, input []*NewDocument, referenceType string) ([]*Document, error) {
	var documents []*Document
	for _, i := range input {
		d, err := i.MapInput(ctx, businessId, referenceType)
		if err != nil {
			return nil, err
		}
		documents = append(documents, d)
	}
	return documents, nil
}

func (d *Document) Delete(tx *gorm.DB, ctx context.Context) error {
	if err := tx.WithContext(ctx).Delete(&d).Error; err != nil {
		return err
	}
	if d.ObjectName != "" {
		if err := utils.DeleteObjectFromGCS(ctx, d.ObjectName); err != nil {
			return err
		}
	}
	return nil
}

func deleteDocuments(ctx context.Context, tx *gorm.DB, documents []*Document) error {
	for _, doc := range documents {
		if err := doc.Delete(tx, ctx); err != nil {
			return err
		}
	}
	return nil
}

func GetDocument(ctx context.Context, id int) (*Document, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var result Document
	db := config.GetDB()
	if err := db.WithContext(ctx).First(&result, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if result.ReferenceType == "" || result.ReferenceID <= 0 {
		return nil, errors.New("unauthorized")
	}

	// Validate the referenced record belongs to this business_id.
	tableByRefType := map[string]string{
		"acceptance_records": "acceptance_records",
		"rejection_cases":    "rejection_cases",
		"suppliers":          "suppliers",
	}
	table, ok := tableByRefType[result.ReferenceType]
	if !ok || table == "" {
		// Unknown polymorphic type => deny rather than risk cross-tenant leakage.
		return nil, errors.New("unauthorized")
	}

	var count int64
	if err := db.WithContext(ctx).
		Table(table).
		Where("business_id = ? AND id = ?", businessId, result.ReferenceID).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, errors.New("unauthorized")
	}

	return &result, nil
}
