package models

import (
	"context"
	"strings"
	"time"

	"github.com/gasbygas/dispatch_backend/config"
	"github.com/gasbygas/dispatch_backend/utils"
)

// Customer is read-only from the lifecycle workflows' perspective; only
// head office registration mutates it.
type Customer struct {
	ID             int          `gorm:"primary_key" json:"id"`
	Name           string       `gorm:"size:100;not null" json:"name" binding:"required"`
	CustomerTypeId CustomerType `gorm:"type:enum('Domestic','Business');default:Domestic" json:"customer_type_id"`
	OutletId       int          `gorm:"index;not null" json:"outlet_id"`
	Email          string       `gorm:"size:100" json:"email"`
	Mobile         string       `gorm:"size:20" json:"mobile"`
	IsActive       *bool        `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCustomer struct {
	Name           string       `json:"name" binding:"required"`
	CustomerTypeId CustomerType `json:"customer_type_id"`
	OutletId       int          `json:"outlet_id" binding:"required"`
	Email          string       `json:"email"`
	Mobile         string       `json:"mobile"`
}

func (input *NewCustomer) validate(ctx context.Context) error {
	if !input.CustomerTypeId.Valid() {
		return utils.NewValidationError("invalid customer type")
	}
	// home outlet
	if err := utils.ValidateResourceId[Outlet](ctx, input.OutletId); err != nil {
		return utils.NewValidationError("outlet not found")
	}
	// email
	if len(strings.TrimSpace(input.Email)) > 0 && !utils.IsValidEmail(input.Email) {
		return utils.NewValidationError("invalid email address")
	}
	// mobile
	if len(strings.TrimSpace(input.Mobile)) > 0 {
		if err := utils.ValidatePhoneNumber(input.Mobile, utils.CountryCode); err != nil {
			return utils.NewValidationError("invalid mobile number")
		}
	}
	return nil
}

func CreateCustomer(ctx context.Context, input *NewCustomer) (*Customer, error) {

	if input.CustomerTypeId == "" {
		input.CustomerTypeId = CustomerTypeDomestic
	}
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	customer := Customer{
		Name:           input.Name,
		CustomerTypeId: input.CustomerTypeId,
		OutletId:       input.OutletId,
		Email:          input.Email,
		Mobile:         input.Mobile,
		IsActive:       utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func GetCustomer(ctx context.Context, id int) (*Customer, error) {
	return GetResource[Customer](ctx, id)
}

func ListCustomersByOutlet(ctx context.Context, outletId int) ([]*Customer, error) {
	return utils.FetchModelsWhere[Customer](ctx, "outlet_id = ?", outletId)
}
