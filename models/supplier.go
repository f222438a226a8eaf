package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
)

// Supplier is the trimmed vendor registry this service needs: rejection cases
// and communications validate their vendor reference against it, and the
// communication log pulls contact details from it.
type Supplier struct {
	ID            int         `gorm:"primary_key" json:"id"`
	BusinessId    string      `gorm:"index;not null" json:"business_id" binding:"required"`
	Name          string      `gorm:"size:100;not null" json:"name" binding:"required"`
	Email         string      `gorm:"size:100" json:"email"`
	Phone         string      `gorm:"size:20" json:"phone"`
	Mobile        string      `gorm:"size:20" json:"mobile"`
	ContactPerson string      `gorm:"size:100" json:"contact_person"`
	Notes         string      `gorm:"type:text" json:"notes"`
	Documents     []*Document `gorm:"polymorphic:Reference" json:"-"`
	IsActive      *bool       `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSupplier struct {
	Name          string         `json:"name" binding:"required"`
	Email         string         `json:"email"`
	Phone         string         `json:"phone"`
	Mobile        string         `json:"mobile"`
	ContactPerson string         `json:"contact_person"`
	Notes         string         `json:"notes"`
	Documents     []*NewDocument `json:"documents"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewSupplier) validate(ctx context.Context, businessId string, id int) error {
	// validate unique name
	if err := utils.ValidateUnique[Supplier](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	if input.Email != "" {
		if !utils.IsValidEmail(input.Email) {
			return errors.New("invalid email")
		}
		if err := utils.ValidateUnique[Supplier](ctx, businessId, "email", input.Email, id); err != nil {
			return err
		}
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return errors.New("invalid phone number")
		}
		if err := utils.ValidateUnique[Supplier](ctx, businessId, "phone", input.Phone, id); err != nil {
			return err
		}
	}
	return nil
}

func CreateSupplier(ctx context.Context, input *NewSupplier) (*Supplier, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	documents, err := mapNewDocuments(ctx, businessId, input.Documents, "suppliers")
	if err != nil {
		return nil, err
	}

	supplier := Supplier{
		BusinessId:    businessId,
		Name:          input.Name,
		Email:         input.Email,
		Phone:         input.Phone,
		Mobile:        input.Mobile,
		ContactPerson: input.ContactPerson,
		Notes:         input.Notes,
		IsActive:      utils.NewTrue(),
		Documents:     documents,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&supplier).Error; err != nil {
		return nil, err
	}
	return &supplier, nil
}

func UpdateSupplier(ctx context.Context, id int, input *NewSupplier) (*Supplier, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	supplier, err := utils.FetchModel[Supplier](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(supplier).
		Updates(map[string]interface{}{
			"Name":          input.Name,
			"Email":         input.Email,
			"Phone":         input.Phone,
			"Mobile":        input.Mobile,
			"ContactPerson": input.ContactPerson,
			"Notes":         input.Notes,
		}).Error
	if err != nil {
		return nil, err
	}
	return supplier, nil
}

func DeleteSupplier(ctx context.Context, id int) (*Supplier, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	result, err := utils.FetchModel[Supplier](ctx, businessId, id, "Documents")
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	count, err := utils.ResourceCountWhere[RejectionCase](ctx, businessId, "supplier_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("rejection case associated with supplier exists")
	}

	count, err = utils.ResourceCountWhere[AcceptanceRecord](ctx, businessId, "supplier_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("acceptance record associated with supplier exists")
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Delete(&result).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := deleteDocuments(ctx, tx, result.Documents); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return result, nil
}

func GetSupplier(ctx context.Context, id int) (*Supplier, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Supplier](ctx, businessId, id)
}

func GetSuppliers(ctx context.Context, name *string) ([]*Supplier, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Supplier
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	if err := dbCtx.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func ToggleActiveSupplier(ctx context.Context, id int, isActive bool) (*Supplier, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	supplier, err := utils.FetchModel[Supplier](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(supplier).UpdateColumn("IsActive", isActive).Error; err != nil {
		return nil, err
	}
	return supplier, nil
}
