package models

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/gasbygas/dispatch_backend/config"
	"github.com/gasbygas/dispatch_backend/utils"
)

// HeadOfficeOutletId is the reserved outlet id of the depot pool row.
// Dispatches draw the pool down; outlet ids from gorm start at 1, so 0
// never collides with a real outlet.
const HeadOfficeOutletId = 0

// Stock keeps one row per outlet plus the depot pool row. Quantity never
// goes below zero; the guard lives in the UPDATE itself so concurrent
// debits cannot race it.
type Stock struct {
	ID        int       `gorm:"primary_key" json:"id"`
	OutletId  int       `gorm:"uniqueIndex;not null" json:"outlet_id"`
	Quantity  int       `gorm:"not null;default:0" json:"quantity"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// InitStock seeds an outlet's stock row inside the caller's
// transaction. Every outlet gets exactly one row.
func InitStock(tx *gorm.DB, outletId int, quantity int) error {
	if quantity < 0 {
		return utils.NewValidationError("opening quantity cannot be negative")
	}
	return tx.Create(&Stock{OutletId: outletId, Quantity: quantity}).Error
}

// CreditStock adds quantity to an outlet's stock inside the caller's
// transaction. The row must already exist; outlets get one at creation.
func CreditStock(tx *gorm.DB, outletId int, quantity int) error {
	if quantity <= 0 {
		return utils.NewValidationError("credit quantity must be positive")
	}
	result := tx.Model(&Stock{}).
		Where("outlet_id = ?", outletId).
		Update("quantity", gorm.Expr("quantity + ?", quantity))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrorStockNotFound
	}
	return nil
}

// DebitStock subtracts quantity, refusing to go negative. A zero-row
// update means either the row is missing or the balance is short; a
// follow-up count tells the two apart.
func DebitStock(tx *gorm.DB, outletId int, quantity int) error {
	if quantity <= 0 {
		return utils.NewValidationError("debit quantity must be positive")
	}
	result := tx.Model(&Stock{}).
		Where("outlet_id = ? AND quantity >= ?", outletId, quantity).
		Update("quantity", gorm.Expr("quantity - ?", quantity))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&Stock{}).Where("outlet_id = ?", outletId).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return utils.ErrorStockNotFound
		}
		return utils.ErrorInsufficientStock
	}
	return nil
}

// CreditHeadOfficeStock records a depot intake. Every dispatch checks
// and draws this pool before the request may leave.
func CreditHeadOfficeStock(ctx context.Context, quantity int) (*Stock, error) {
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return CreditStock(tx, HeadOfficeOutletId, quantity)
	})
	if err != nil {
		return nil, err
	}
	return GetStockByOutlet(ctx, HeadOfficeOutletId)
}

func GetStockByOutlet(ctx context.Context, outletId int) (*Stock, error) {
	db := config.GetDB()
	var stock Stock
	err := db.WithContext(ctx).Where("outlet_id = ?", outletId).First(&stock).Error
	if err == gorm.ErrRecordNotFound {
		return nil, utils.ErrorStockNotFound
	}
	if err != nil {
		return nil, err
	}
	return &stock, nil
}
