package models

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/gasbygas/dispatch_backend/config"
	"github.com/gasbygas/dispatch_backend/utils"
)

// Request is an outlet's stock order against head office. Status moves
// pending -> dispatch -> received, or pending -> denied, and never
// regresses. Denied requests stay on file; requests are never deleted.
type Request struct {
	ID           int           `gorm:"primary_key" json:"id"`
	OutletId     int           `gorm:"index;not null" json:"outlet_id"`
	Quantity     int           `gorm:"not null" json:"quantity"`
	RequestDate  time.Time     `gorm:"not null" json:"request_date"`
	ScheduleDate time.Time     `gorm:"not null" json:"schedule_date"`
	Status       RequestStatus `gorm:"type:enum('pending','dispatch','received','denied');default:pending;index" json:"status"`
	DispatchDate *time.Time    `json:"dispatch_date"`
	ReceivedDate *time.Time    `json:"received_date"`
	CreatedAt    time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewStockRequest struct {
	OutletId     int       `json:"outlet_id" binding:"required" validate:"required"`
	Quantity     int       `json:"quantity" binding:"required" validate:"required,gt=0"`
	ScheduleDate time.Time `json:"schedule_date" binding:"required" validate:"required"`
	MaxLimit     int       `json:"max_limit" validate:"gte=0"`
}

// MinScheduleLeadDays is the shortest notice head office accepts for a
// delivery date.
const MinScheduleLeadDays = 7

// ValidateScheduleDate rejects dates in the past and dates closer than
// the minimum lead time. Both bounds compare dates, not instants.
func ValidateScheduleDate(scheduleDate time.Time, now time.Time) error {
	today := utils.ToDate(now)
	date := utils.ToDate(scheduleDate)
	if date.Before(today) {
		return utils.NewValidationError("schedule date cannot be in the past")
	}
	if date.Before(today.AddDate(0, 0, MinScheduleLeadDays)) {
		return utils.NewValidationError("schedule date must be at least 7 days from today")
	}
	return nil
}

func (input *NewStockRequest) validate(ctx context.Context) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[Outlet](ctx, input.OutletId); err != nil {
		return utils.NewValidationError("outlet not found")
	}
	return ValidateScheduleDate(input.ScheduleDate, time.Now())
}

// CreateStockRequest writes the request and its schedule together; a
// request without a schedule is never observable.
func CreateStockRequest(ctx context.Context, input *NewStockRequest) (*Request, *Schedule, error) {

	if err := input.validate(ctx); err != nil {
		return nil, nil, err
	}

	request := Request{
		OutletId:     input.OutletId,
		Quantity:     input.Quantity,
		RequestDate:  utils.ToDate(time.Now()),
		ScheduleDate: utils.ToDate(input.ScheduleDate),
		Status:       RequestStatusPending,
	}
	schedule := Schedule{
		OutletId: input.OutletId,
		MaxLimit: input.MaxLimit,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&request).Error; err != nil {
			return err
		}
		schedule.RequestId = request.ID
		return tx.Create(&schedule).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &request, &schedule, nil
}

func GetRequest(ctx context.Context, id int) (*Request, error) {
	return utils.FetchModel[Request](ctx, id)
}

// ListRequests returns requests newest-first, optionally narrowed to an
// outlet and/or status.
func ListRequests(ctx context.Context, outletId *int, status *RequestStatus) ([]*Request, error) {
	db := config.GetDB()
	query := db.WithContext(ctx).Model(&Request{})
	if outletId != nil {
		query = query.Where("outlet_id = ?", *outletId)
	}
	if status != nil {
		if !status.Valid() {
			return nil, utils.NewValidationError("invalid request status")
		}
		query = query.Where("status = ?", *status)
	}
	var requests []*Request
	if err := query.Order("created_at DESC").Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}
