package models

import (
	"context"
	"fmt"
	"time"

	"github.com/gasbygas/dispatch_backend/config"
)

// Notification is append-only. Receiver is a routing address, never a
// join key: "customer/<id>", "outlet/<id>", "outlet/<id>/customers" or
// the "outlets" broadcast group.
type Notification struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Sender    string    `gorm:"size:100;not null" json:"sender"`
	Receiver  string    `gorm:"size:100;index;not null" json:"receiver"`
	Message   string    `gorm:"size:500;not null" json:"message"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

const (
	SenderHeadOffice   = "Dispatch Office"
	ReceiverAllOutlets = "outlets"
)

func CustomerAddress(customerId int) string {
	return fmt.Sprintf("customer/%d", customerId)
}

func OutletAddress(outletId int) string {
	return fmt.Sprintf("outlet/%d", outletId)
}

func OutletCustomersAddress(outletId int) string {
	return fmt.Sprintf("outlet/%d/customers", outletId)
}

// ListNotificationsForCustomer merges direct, outlet-customer and
// broadcast messages, newest first.
func ListNotificationsForCustomer(ctx context.Context, customerId int, outletId int) ([]*Notification, error) {
	db := config.GetDB()
	var notifications []*Notification
	err := db.WithContext(ctx).
		Where("receiver IN ?", []string{
			CustomerAddress(customerId),
			OutletCustomersAddress(outletId),
		}).
		Order("created_at DESC").
		Find(&notifications).Error
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

// ListSentNotifications shows a sender its own outbound messages,
// newest first.
func ListSentNotifications(ctx context.Context, sender string) ([]*Notification, error) {
	db := config.GetDB()
	var notifications []*Notification
	err := db.WithContext(ctx).
		Where("sender = ?", sender).
		Order("created_at DESC").
		Find(&notifications).Error
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

// ListNotificationsForOutlet merges direct and broadcast messages,
// newest first.
func ListNotificationsForOutlet(ctx context.Context, outletId int) ([]*Notification, error) {
	db := config.GetDB()
	var notifications []*Notification
	err := db.WithContext(ctx).
		Where("receiver IN ?", []string{
			OutletAddress(outletId),
			ReceiverAllOutlets,
		}).
		Order("created_at DESC").
		Find(&notifications).Error
	if err != nil {
		return nil, err
	}
	return notifications, nil
}
