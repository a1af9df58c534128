package models

import (
	"context"
	"strings"
	"time"

	"github.com/gasbygas/dispatch_backend/config"
	"github.com/gasbygas/dispatch_backend/utils"
	"gorm.io/gorm"
)

type Outlet struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;uniqueIndex;not null" json:"name" binding:"required"`
	Location  string    `gorm:"size:255" json:"location"`
	Contact   string    `gorm:"size:100" json:"contact"`
	Mobile    string    `gorm:"size:20" json:"mobile"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewOutlet struct {
	Name            string `json:"name" binding:"required"`
	Location        string `json:"location"`
	Contact         string `json:"contact"`
	Mobile          string `json:"mobile"`
	OpeningQuantity int    `json:"opening_quantity"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewOutlet) validate(ctx context.Context, id int) error {
	// name
	if err := utils.ValidateUnique[Outlet](ctx, "name", input.Name, id); err != nil {
		return err
	}
	// mobile
	if len(strings.TrimSpace(input.Mobile)) > 0 {
		if err := utils.ValidatePhoneNumber(input.Mobile, utils.CountryCode); err != nil {
			return utils.NewValidationError("invalid mobile number")
		}
	}
	if input.OpeningQuantity < 0 {
		return utils.NewValidationError("opening quantity cannot be negative")
	}
	return nil
}

// CreateOutlet registers a retail outlet and seeds its stock record in the
// same transaction so stock lookups never miss for a known outlet.
func CreateOutlet(ctx context.Context, input *NewOutlet) (*Outlet, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	outlet := Outlet{
		Name:     input.Name,
		Location: input.Location,
		Contact:  input.Contact,
		Mobile:   input.Mobile,
		IsActive: utils.NewTrue(),
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&outlet).Error; err != nil {
			return err
		}
		return InitStock(tx, outlet.ID, input.OpeningQuantity)
	})
	if err != nil {
		return nil, err
	}
	return &outlet, nil
}

func UpdateOutlet(ctx context.Context, id int, input *NewOutlet) (*Outlet, error) {

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	outlet, err := utils.FetchModel[Outlet](ctx, id)
	if err != nil {
		return nil, err
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&outlet).Updates(map[string]interface{}{
		"Name":     input.Name,
		"Location": input.Location,
		"Contact":  input.Contact,
		"Mobile":   input.Mobile,
	}).Error
	if err != nil {
		return nil, err
	}

	// clear cache
	if err := clearResourceCache[Outlet](id); err != nil {
		return nil, err
	}
	return outlet, nil
}

func GetOutlet(ctx context.Context, id int) (*Outlet, error) {
	return GetResource[Outlet](ctx, id)
}

func GetOutletByName(ctx context.Context, name string) (*Outlet, error) {
	db := config.GetDB()
	var outlet Outlet
	if err := db.WithContext(ctx).Where("name = ?", name).First(&outlet).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &outlet, nil
}

func ListOutlets(ctx context.Context, name *string) ([]*Outlet, error) {
	db := config.GetDB()
	var results []*Outlet

	dbCtx := db.WithContext(ctx)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
