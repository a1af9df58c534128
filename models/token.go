package models

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/gasbygas/dispatch_backend/config"
	"github.com/gasbygas/dispatch_backend/utils"
)

// Token is a customer's reserved pickup slot against a schedule's
// incoming stock. PaymentAndEmpty tracks the cylinder-exchange side of
// the handover independently of claim status.
type Token struct {
	ID                   int         `gorm:"primary_key" json:"id"`
	ScheduleId           int         `gorm:"index;not null" json:"schedule_id"`
	CustomerId           int         `gorm:"index;not null" json:"customer_id"`
	Quantity             int         `gorm:"not null" json:"quantity"`
	RequestDate          time.Time   `gorm:"not null" json:"request_date"`
	ExpectedDeliveryDate time.Time   `gorm:"not null" json:"expected_delivery_date"`
	Status               TokenStatus `gorm:"type:enum('Unclaimed','Claimed');default:Unclaimed;index" json:"status"`
	PaymentAndEmpty      *bool       `gorm:"not null;default:false" json:"payment_and_empty"`
	ClaimedAt            *time.Time  `json:"claimed_at"`
	CreatedAt            time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewToken struct {
	ScheduleId int `json:"schedule_id" binding:"required"`
	CustomerId int `json:"customer_id" binding:"required"`
	Quantity   int `json:"quantity" binding:"required"`
}

func (input *NewToken) validate(ctx context.Context) (*Schedule, error) {
	if input.Quantity <= 0 {
		return nil, utils.NewValidationError("quantity must be positive")
	}
	schedule, err := GetSchedule(ctx, input.ScheduleId)
	if err == utils.ErrorRecordNotFound {
		return nil, utils.NewValidationError("schedule not found")
	}
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[Customer](ctx, input.CustomerId); err != nil {
		return nil, utils.NewValidationError("customer not found")
	}
	return schedule, nil
}

// IssueToken reserves part of a schedule's incoming stock for a
// customer. The schedule's max limit caps the sum of token quantities.
func IssueToken(ctx context.Context, input *NewToken) (*Token, error) {

	schedule, err := input.validate(ctx)
	if err != nil {
		return nil, err
	}

	request, err := GetRequest(ctx, schedule.RequestId)
	if err != nil {
		return nil, err
	}
	if request.Status == RequestStatusReceived {
		return nil, utils.NewValidationError("delivery already received, tokens closed")
	}
	if request.Status == RequestStatusDenied {
		return nil, utils.NewValidationError("request was denied, no tokens can be issued")
	}

	token := Token{
		ScheduleId:           schedule.ID,
		CustomerId:           input.CustomerId,
		Quantity:             input.Quantity,
		RequestDate:          utils.ToDate(time.Now()),
		ExpectedDeliveryDate: request.ScheduleDate,
		Status:               TokenStatusUnclaimed,
		PaymentAndEmpty:      utils.NewFalse(),
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if schedule.MaxLimit > 0 {
			var reserved int64
			row := tx.Model(&Token{}).
				Where("schedule_id = ?", schedule.ID).
				Select("COALESCE(SUM(quantity), 0)")
			if err := row.Scan(&reserved).Error; err != nil {
				return err
			}
			if int(reserved)+input.Quantity > schedule.MaxLimit {
				return utils.NewValidationError("schedule limit exceeded")
			}
		}
		return tx.Create(&token).Error
	})
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func GetToken(ctx context.Context, id int) (*Token, error) {
	return utils.FetchModel[Token](ctx, id)
}

// LookupToken resolves a token together with its holder, for the
// counter screen at the outlet.
func LookupToken(ctx context.Context, id int) (*Token, *Customer, error) {
	token, err := GetToken(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	customer, err := GetCustomer(ctx, token.CustomerId)
	if err != nil {
		return nil, nil, err
	}
	return token, customer, nil
}

func ListTokensBySchedule(ctx context.Context, scheduleId int) ([]*Token, error) {
	return utils.FetchModelsWhere[Token](ctx, "schedule_id = ?", scheduleId)
}

func ListTokensByCustomer(ctx context.Context, customerId int) ([]*Token, error) {
	return utils.FetchModelsWhere[Token](ctx, "customer_id = ?", customerId)
}
