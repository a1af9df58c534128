package models

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/gasbygas/dispatch_backend/config"
	"github.com/gasbygas/dispatch_backend/utils"
)

// Schedule anchors tokens for an incoming delivery. One per request.
type Schedule struct {
	ID        int       `gorm:"primary_key" json:"id"`
	RequestId int       `gorm:"uniqueIndex;not null" json:"request_id"`
	OutletId  int       `gorm:"index;not null" json:"outlet_id"`
	MaxLimit  int       `gorm:"not null;default:0" json:"max_limit"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetSchedule(ctx context.Context, id int) (*Schedule, error) {
	return utils.FetchModel[Schedule](ctx, id)
}

func GetScheduleByRequestId(ctx context.Context, requestId int) (*Schedule, error) {
	db := config.GetDB()
	var schedule Schedule
	err := db.WithContext(ctx).Where("request_id = ?", requestId).First(&schedule).Error
	if err == gorm.ErrRecordNotFound {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

func ListSchedulesByOutlet(ctx context.Context, outletId int) ([]*Schedule, error) {
	return utils.FetchModelsWhere[Schedule](ctx, "outlet_id = ?", outletId)
}
