package models

import (
	"log"

	"github.com/gasbygas/dispatch_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Outlet{}, &Customer{},
		&Request{}, &Schedule{}, &Token{},
		&Stock{},
		&Notification{}, &EmailOutboxRecord{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}

	// The depot pool row must exist before the first dispatch.
	depot := Stock{OutletId: HeadOfficeOutletId}
	err = db.Where("outlet_id = ?", HeadOfficeOutletId).FirstOrCreate(&depot).Error
	if err != nil {
		log.Fatal(err)
	}
}
