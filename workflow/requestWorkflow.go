package workflow

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/gasbygas/dispatch_backend/config"
	"github.com/gasbygas/dispatch_backend/models"
	"github.com/gasbygas/dispatch_backend/utils"
)

// recordIdempotencyFailure is best effort: the STARTED row may have
// rolled back with the failed transaction, and a miss is fine.
func recordIdempotencyFailure(ctx context.Context, handlerName, clientKey string, cause error) {
	if clientKey == "" || cause == nil || errors.Is(cause, ErrIdempotencyInProgress) {
		return
	}
	db := config.GetDB()
	if err := MarkIdempotencyFailed(db.WithContext(ctx), handlerName, clientKey, cause); err != nil {
		config.LogError(config.GetLogger(), "requestWorkflow.go", "recordIdempotencyFailure", handlerName, clientKey, err)
	}
}

// EditScheduleDate changes the delivery date of a pending request and
// tells everyone holding a token against it. Once dispatched the truck
// has left; the date is locked.
func EditScheduleDate(ctx context.Context, requestId int, newDate time.Time) error {
	logger := config.GetLogger()
	db := config.GetDB()

	if err := models.ValidateScheduleDate(newDate, time.Now()); err != nil {
		return err
	}

	request, err := models.GetRequest(ctx, requestId)
	if err != nil {
		return err
	}
	if request.Status != models.RequestStatusPending {
		return utils.NewValidationError("schedule date can only be changed before dispatch")
	}

	schedule, err := models.GetScheduleByRequestId(ctx, requestId)
	if err != nil {
		config.LogError(logger, "requestWorkflow.go", "EditScheduleDate", "GetScheduleByRequestId", requestId, err)
		return err
	}

	oldDate := request.ScheduleDate
	newDate = utils.ToDate(newDate)

	outlet, err := models.GetOutlet(ctx, request.OutletId)
	if err != nil {
		return err
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Request{}).
			Where("id = ? AND status = ?", requestId, models.RequestStatusPending).
			Update("schedule_date", newDate)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return utils.NewValidationError("schedule date can only be changed before dispatch")
		}
		message := ScheduleChangeMessage(outlet.Name, oldDate, newDate)
		return NotifySchedule(tx, logger, schedule, "Delivery rescheduled", message)
	})
}

// DispatchRequest moves a pending request onto the truck, drawing the
// head-office depot pool down by the request quantity; a short pool
// blocks the dispatch. A second dispatch of the same request is a
// typed transition error, not a silent no-op, so callers can tell an
// inert retry from success; pass the client's idempotency key to make
// retries fully inert instead.
func DispatchRequest(ctx context.Context, requestId int, clientKey string) error {
	logger := config.GetLogger()
	db := config.GetDB()

	request, err := models.GetRequest(ctx, requestId)
	if err != nil {
		return err
	}
	if !request.Status.CanTransition(models.RequestStatusDispatch) {
		return utils.NewTransitionError("request", string(request.Status), string(models.RequestStatusDispatch))
	}

	schedule, err := models.GetScheduleByRequestId(ctx, requestId)
	if err != nil {
		config.LogError(logger, "requestWorkflow.go", "DispatchRequest", "GetScheduleByRequestId", requestId, err)
		return err
	}
	outlet, err := models.GetOutlet(ctx, request.OutletId)
	if err != nil {
		return err
	}

	now := time.Now()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if clientKey != "" {
			skip, err := BeginIdempotency(tx, "DispatchRequest", clientKey)
			if err != nil {
				return err
			}
			if skip {
				return nil
			}
		}

		result := tx.Model(&models.Request{}).
			Where("id = ? AND status = ?", requestId, models.RequestStatusPending).
			Updates(map[string]interface{}{
				"status":        models.RequestStatusDispatch,
				"dispatch_date": &now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return utils.NewTransitionError("request", string(request.Status), string(models.RequestStatusDispatch))
		}

		// No dispatch without depot coverage.
		if err := models.DebitStock(tx, models.HeadOfficeOutletId, request.Quantity); err != nil {
			config.LogError(logger, "requestWorkflow.go", "DispatchRequest", "DebitStock depot", request.Quantity, err)
			return err
		}

		message := DispatchMessage(outlet.Name, request.ScheduleDate)
		if err := NotifySchedule(tx, logger, schedule, "Delivery dispatched", message); err != nil {
			return err
		}

		if clientKey != "" {
			return MarkIdempotencySucceeded(tx, "DispatchRequest", clientKey)
		}
		return nil
	})
	recordIdempotencyFailure(ctx, "DispatchRequest", clientKey, err)
	return err
}

// DenyRequest is head office refusing a pending order. The request
// stays on file in a terminal denied state and the outlet is told; no
// stock moves. Denial after dispatch is a transition error.
func DenyRequest(ctx context.Context, requestId int, clientKey string) error {
	db := config.GetDB()

	request, err := models.GetRequest(ctx, requestId)
	if err != nil {
		return err
	}
	if !request.Status.CanTransition(models.RequestStatusDenied) {
		return utils.NewTransitionError("request", string(request.Status), string(models.RequestStatusDenied))
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if clientKey != "" {
			skip, err := BeginIdempotency(tx, "DenyRequest", clientKey)
			if err != nil {
				return err
			}
			if skip {
				return nil
			}
		}

		result := tx.Model(&models.Request{}).
			Where("id = ? AND status = ?", requestId, models.RequestStatusPending).
			Update("status", models.RequestStatusDenied)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return utils.NewTransitionError("request", string(request.Status), string(models.RequestStatusDenied))
		}

		message := DeniedMessage(request.Quantity, request.RequestDate, request.ScheduleDate)
		if err := NotifyOutlet(tx, request.OutletId, message); err != nil {
			return err
		}

		if clientKey != "" {
			return MarkIdempotencySucceeded(tx, "DenyRequest", clientKey)
		}
		return nil
	})
	recordIdempotencyFailure(ctx, "DenyRequest", clientKey, err)
	return err
}

// ConfirmReceived records the delivery's arrival at the outlet: the
// request goes terminal and the outlet's stock is credited by the full
// request quantity, atomically.
func ConfirmReceived(ctx context.Context, requestId int, clientKey string) error {
	logger := config.GetLogger()
	db := config.GetDB()

	request, err := models.GetRequest(ctx, requestId)
	if err != nil {
		return err
	}
	if !request.Status.CanTransition(models.RequestStatusReceived) {
		return utils.NewTransitionError("request", string(request.Status), string(models.RequestStatusReceived))
	}

	schedule, err := models.GetScheduleByRequestId(ctx, requestId)
	if err != nil {
		config.LogError(logger, "requestWorkflow.go", "ConfirmReceived", "GetScheduleByRequestId", requestId, err)
		return err
	}
	outlet, err := models.GetOutlet(ctx, request.OutletId)
	if err != nil {
		return err
	}

	redisLock := ObtainOutletRedisLock(ctx, request.OutletId)
	defer ReleaseOutletRedisLock(ctx, redisLock)

	now := time.Now()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireOutletStockLock(tx, request.OutletId); err != nil {
			return err
		}
		defer ReleaseOutletStockLock(tx, request.OutletId)

		if clientKey != "" {
			skip, err := BeginIdempotency(tx, "ConfirmReceived", clientKey)
			if err != nil {
				return err
			}
			if skip {
				return nil
			}
		}

		result := tx.Model(&models.Request{}).
			Where("id = ? AND status = ?", requestId, models.RequestStatusDispatch).
			Updates(map[string]interface{}{
				"status":        models.RequestStatusReceived,
				"received_date": &now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return utils.NewTransitionError("request", string(request.Status), string(models.RequestStatusReceived))
		}

		if err := models.CreditStock(tx, request.OutletId, request.Quantity); err != nil {
			config.LogError(logger, "requestWorkflow.go", "ConfirmReceived", "CreditStock", request.OutletId, err)
			return err
		}

		message := ReceivedMessage(outlet.Name)
		if err := NotifySchedule(tx, logger, schedule, "Gas ready for pickup", message); err != nil {
			return err
		}

		if clientKey != "" {
			return MarkIdempotencySucceeded(tx, "ConfirmReceived", clientKey)
		}
		return nil
	})
	recordIdempotencyFailure(ctx, "ConfirmReceived", clientKey, err)
	return err
}
