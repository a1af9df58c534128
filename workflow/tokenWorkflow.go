package workflow

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/gasbygas/dispatch_backend/config"
	"github.com/gasbygas/dispatch_backend/models"
	"github.com/gasbygas/dispatch_backend/utils"
)

// IssueToken issues the reservation and tells the holder. The token
// stands even when the follow-up notice fails; that failure is logged,
// not returned.
func IssueToken(ctx context.Context, input *models.NewToken) (*models.Token, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	token, err := models.IssueToken(ctx, input)
	if err != nil {
		return nil, err
	}

	customer, err := models.GetCustomer(ctx, token.CustomerId)
	if err != nil {
		config.LogError(logger, "tokenWorkflow.go", "IssueToken", "GetCustomer", token.CustomerId, err)
		return token, nil
	}
	schedule, err := models.GetSchedule(ctx, token.ScheduleId)
	if err != nil {
		config.LogError(logger, "tokenWorkflow.go", "IssueToken", "GetSchedule", token.ScheduleId, err)
		return token, nil
	}
	outlet, err := models.GetOutlet(ctx, schedule.OutletId)
	if err != nil {
		config.LogError(logger, "tokenWorkflow.go", "IssueToken", "GetOutlet", schedule.OutletId, err)
		return token, nil
	}

	message := ReallocationMessage(outlet.Name, token.Quantity)
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return NotifyCustomer(tx, customer, "Token allocated", message)
	})
	if err != nil {
		config.LogError(logger, "tokenWorkflow.go", "IssueToken", "NotifyCustomer", token.ID, err)
	}
	return token, nil
}

// ReallocateToken moves an unclaimed token to another customer, for
// example when the original holder cancels. The new holder is told.
func ReallocateToken(ctx context.Context, tokenId int, newCustomerId int) error {
	logger := config.GetLogger()
	db := config.GetDB()

	token, err := models.GetToken(ctx, tokenId)
	if err != nil {
		return err
	}
	if token.Status != models.TokenStatusUnclaimed {
		return utils.NewValidationError("only unclaimed tokens can be reallocated")
	}

	customer, err := models.GetCustomer(ctx, newCustomerId)
	if err != nil {
		return err
	}

	schedule, err := models.GetSchedule(ctx, token.ScheduleId)
	if err != nil {
		config.LogError(logger, "tokenWorkflow.go", "ReallocateToken", "GetSchedule", token.ScheduleId, err)
		return err
	}
	outlet, err := models.GetOutlet(ctx, schedule.OutletId)
	if err != nil {
		return err
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Token{}).
			Where("id = ? AND status = ?", tokenId, models.TokenStatusUnclaimed).
			Update("customer_id", newCustomerId)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return utils.NewValidationError("only unclaimed tokens can be reallocated")
		}
		message := ReallocationMessage(outlet.Name, token.Quantity)
		return NotifyCustomer(tx, customer, "Token allocated", message)
	})
}

// SetPaymentAndEmpty flags whether the customer has paid and returned
// the empty cylinder. A claim forces the flag true and ends it; after
// that the flag cannot be changed.
func SetPaymentAndEmpty(ctx context.Context, tokenId int, received bool) error {
	db := config.GetDB()

	if _, err := models.GetToken(ctx, tokenId); err != nil {
		return err
	}
	result := db.WithContext(ctx).Model(&models.Token{}).
		Where("id = ? AND status = ?", tokenId, models.TokenStatusUnclaimed).
		Update("payment_and_empty", received)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.NewValidationError("payment flag is fixed once the token is claimed")
	}
	return nil
}

// HandoverPreview is what the counter screen shows between the first
// and second confirmation.
type HandoverPreview struct {
	Token    *models.Token    `json:"token"`
	Customer *models.Customer `json:"customer"`
	Outlet   *models.Outlet   `json:"outlet"`
}

// HandoverToken closes a token over the counter. The first call
// (confirm=false) only returns what is about to happen; nothing is
// written until the operator confirms. On confirm the token goes
// Claimed with paymentAndEmpty set, and stock is debited at the outlet
// on the token's own schedule. The session outlet must be that same
// outlet; a token cannot be fulfilled elsewhere. A claim that would
// drive stock negative is rejected.
func HandoverToken(ctx context.Context, tokenId int, confirm bool) (*HandoverPreview, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	token, customer, err := models.LookupToken(ctx, tokenId)
	if err != nil {
		return nil, err
	}
	if !token.Status.CanTransition(models.TokenStatusClaimed) {
		return nil, utils.NewTransitionError("token", string(token.Status), string(models.TokenStatusClaimed))
	}

	schedule, err := models.GetSchedule(ctx, token.ScheduleId)
	if err != nil {
		config.LogError(logger, "tokenWorkflow.go", "HandoverToken", "GetSchedule", token.ScheduleId, err)
		return nil, err
	}
	outlet, err := models.GetOutlet(ctx, schedule.OutletId)
	if err != nil {
		return nil, err
	}

	preview := &HandoverPreview{Token: token, Customer: customer, Outlet: outlet}
	if !confirm {
		return preview, nil
	}

	if !utils.IsHeadOffice(ctx) {
		if sessionOutletId, ok := utils.GetOutletIdFromContext(ctx); ok && sessionOutletId != 0 && sessionOutletId != schedule.OutletId {
			return nil, utils.NewValidationError("token belongs to a different outlet")
		}
	}

	redisLock := ObtainOutletRedisLock(ctx, schedule.OutletId)
	defer ReleaseOutletRedisLock(ctx, redisLock)

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireOutletStockLock(tx, schedule.OutletId); err != nil {
			return err
		}
		defer ReleaseOutletStockLock(tx, schedule.OutletId)

		now := time.Now()
		result := tx.Model(&models.Token{}).
			Where("id = ? AND status = ?", tokenId, models.TokenStatusUnclaimed).
			Updates(map[string]interface{}{
				"status":            models.TokenStatusClaimed,
				"payment_and_empty": true,
				"claimed_at":        &now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return utils.NewTransitionError("token", string(token.Status), string(models.TokenStatusClaimed))
		}

		if err := models.DebitStock(tx, schedule.OutletId, token.Quantity); err != nil {
			config.LogError(logger, "tokenWorkflow.go", "HandoverToken", "DebitStock", schedule.OutletId, err)
			return err
		}

		message := HandoverMessage(outlet.Name, token.Quantity)
		return NotifyCustomer(tx, customer, "Handover complete", message)
	})
	if err != nil {
		return nil, err
	}

	token.Status = models.TokenStatusClaimed
	token.PaymentAndEmpty = utils.NewTrue()
	return preview, nil
}
