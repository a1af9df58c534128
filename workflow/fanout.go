package workflow

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/gasbygas/dispatch_backend/config"
	"github.com/gasbygas/dispatch_backend/models"
	"github.com/gasbygas/dispatch_backend/utils"
)

const messageDateLayout = "02 Jan 2006"

// Lifecycle messages. Every wording change here shows up verbatim in
// outlet and customer inboxes.

func DispatchMessage(outletName string, scheduleDate time.Time) string {
	return fmt.Sprintf("Your gas delivery for %s has been dispatched, expected on %s",
		outletName, scheduleDate.Format(messageDateLayout))
}

func ScheduleChangeMessage(outletName string, oldDate time.Time, newDate time.Time) string {
	return fmt.Sprintf("Delivery for %s rescheduled from %s to %s",
		outletName, oldDate.Format(messageDateLayout), newDate.Format(messageDateLayout))
}

func ReceivedMessage(outletName string) string {
	return fmt.Sprintf("Stock has arrived at %s, your gas is ready for pickup", outletName)
}

func ReallocationMessage(outletName string, quantity int) string {
	return fmt.Sprintf("A token for %d cylinder(s) at %s has been allocated to you", quantity, outletName)
}

func HandoverMessage(outletName string, quantity int) string {
	return fmt.Sprintf("Handover of %d cylinder(s) completed at %s", quantity, outletName)
}

func DeniedMessage(quantity int, requestDate time.Time, scheduleDate time.Time) string {
	return fmt.Sprintf("Your request for %d units of gas, requested on %s and scheduled for delivery on %s has been denied",
		quantity, requestDate.Format(messageDateLayout), scheduleDate.Format(messageDateLayout))
}

// ResolveScheduleRecipients joins tokens back to the schedule and
// returns the distinct customer ids holding a slot against it.
func ResolveScheduleRecipients(tx *gorm.DB, scheduleId int) ([]int, error) {
	var customerIds []int
	err := tx.Model(&models.Token{}).
		Where("schedule_id = ?", scheduleId).
		Pluck("customer_id", &customerIds).Error
	if err != nil {
		return nil, err
	}
	return utils.UniqueSlice(customerIds), nil
}

// NotifySchedule fans a lifecycle message out to every token holder on
// the schedule plus the outlet itself: one notification row each, and
// one email intent per customer with an address on file. Everything is
// written in the caller's transaction so a fan-out is either fully
// queued or not at all. Actual email delivery is the dispatcher's
// problem.
func NotifySchedule(tx *gorm.DB, logger *logrus.Logger, schedule *models.Schedule, subject string, message string) error {

	ctx := tx.Statement.Context

	customerIds, err := ResolveScheduleRecipients(tx, schedule.ID)
	if err != nil {
		config.LogError(logger, "fanout.go", "NotifySchedule", "ResolveScheduleRecipients", schedule.ID, err)
		return err
	}

	for _, customerId := range customerIds {
		notification := models.Notification{
			Sender:   models.SenderHeadOffice,
			Receiver: models.CustomerAddress(customerId),
			Message:  message,
		}
		if err := tx.Create(&notification).Error; err != nil {
			return err
		}

		var customer models.Customer
		if err := tx.First(&customer, customerId).Error; err != nil {
			// Missing holder must not sink the whole fan-out.
			config.LogError(logger, "fanout.go", "NotifySchedule", "load customer", customerId, err)
			continue
		}
		if customer.Email != "" {
			if err := models.EnqueueEmail(ctx, tx, customer.Email, subject, message); err != nil {
				return err
			}
		}
	}

	return NotifyOutlet(tx, schedule.OutletId, message)
}

// NotifyOutlet writes a single message into the outlet's inbox.
func NotifyOutlet(tx *gorm.DB, outletId int, message string) error {
	notification := models.Notification{
		Sender:   models.SenderHeadOffice,
		Receiver: models.OutletAddress(outletId),
		Message:  message,
	}
	return tx.Create(&notification).Error
}

// NotifyCustomer sends a single direct message, with an email intent
// when the customer has an address on file.
func NotifyCustomer(tx *gorm.DB, customer *models.Customer, subject string, message string) error {
	notification := models.Notification{
		Sender:   models.SenderHeadOffice,
		Receiver: models.CustomerAddress(customer.ID),
		Message:  message,
	}
	if err := tx.Create(&notification).Error; err != nil {
		return err
	}
	if customer.Email != "" {
		return models.EnqueueEmail(tx.Statement.Context, tx, customer.Email, subject, message)
	}
	return nil
}

// BroadcastToOutlets writes one notification addressed to the outlet
// broadcast group. Head-office announcements only.
func BroadcastToOutlets(tx *gorm.DB, message string) error {
	notification := models.Notification{
		Sender:   models.SenderHeadOffice,
		Receiver: models.ReceiverAllOutlets,
		Message:  message,
	}
	return tx.Create(&notification).Error
}

// SendOutletBroadcast lets an outlet message its own customer group.
// One row addressed to the group; customer inbox queries pick it up.
func SendOutletBroadcast(tx *gorm.DB, outlet *models.Outlet, message string) error {
	notification := models.Notification{
		Sender:   outlet.Name,
		Receiver: models.OutletCustomersAddress(outlet.ID),
		Message:  message,
	}
	return tx.Create(&notification).Error
}
