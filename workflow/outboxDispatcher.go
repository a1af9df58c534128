package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gasbygas/dispatch_backend/config"
	"github.com/gasbygas/dispatch_backend/models"
)

// EmailOutboxDispatcher drains the email outbox after commit. Delivery
// is at-least-once: a crash between SMTP send and the SENT update
// re-sends the message on reclaim.
type EmailOutboxDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	DispatcherID string

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

func NewEmailOutboxDispatcher(db *gorm.DB, logger *logrus.Logger) *EmailOutboxDispatcher {
	return &EmailOutboxDispatcher{
		DB:             db,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		BatchSize:      50,
		PollInterval:   2 * time.Second,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
	}
}

// NextBackoff doubles the initial backoff per prior attempt, capped at
// ten minutes.
func NextBackoff(initial time.Duration, attempt int) time.Duration {
	backoff := initial
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > time.Minute*10 {
			return time.Minute * 10
		}
	}
	return backoff
}

func (d *EmailOutboxDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.dispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

func (d *EmailOutboxDispatcher) dispatchOnce(ctx context.Context) {
	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTimeout)
	db := d.DB
	if db == nil {
		return
	}

	var claimed []models.EmailOutboxRecord
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Eligible:
		// - PENDING / FAILED and ready to retry
		// - PROCESSING but lock is stale (dispatcher crashed mid-batch), reclaim after LockTimeout
		q := tx.
			Where(`
				(
					send_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR
				(
					send_status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, []string{models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed}, now, models.OutboxPublishStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		for i := range claimed {
			// Poison messages go terminal after max attempts.
			if d.MaxAttempts > 0 && claimed[i].SendAttempts >= d.MaxAttempts {
				msg := fmt.Sprintf("max send attempts exceeded (%d)", d.MaxAttempts)
				claimed[i].SendStatus = models.OutboxPublishStatusDead
				if err := tx.Model(&models.EmailOutboxRecord{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
					"send_status":     models.OutboxPublishStatusDead,
					"last_send_error": &msg,
					"next_attempt_at": nil,
					"locked_at":       nil,
					"locked_by":       nil,
				}).Error; err != nil {
					return err
				}
				continue
			}

			// Claim for sending.
			claimed[i].SendStatus = models.OutboxPublishStatusProcessing
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &d.DispatcherID
			claimed[i].SendAttempts = claimed[i].SendAttempts + 1
			if err := tx.Model(&models.EmailOutboxRecord{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"send_status":     claimed[i].SendStatus,
				"locked_at":       claimed[i].LockedAt,
				"locked_by":       claimed[i].LockedBy,
				"send_attempts":   gorm.Expr("send_attempts + 1"),
				"last_send_error": nil,
				"next_attempt_at": nil,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || len(claimed) == 0 {
		return
	}

	mailer := config.GetMailer()
	for _, rec := range claimed {
		if rec.SendStatus == models.OutboxPublishStatusDead {
			continue
		}
		if mailer == nil {
			d.markSendFailed(ctx, rec.ID, config.ErrMailerNotConfigured, rec.SendAttempts)
			continue
		}
		if err := mailer.Send(ctx, rec.Recipient, rec.Subject, rec.Body); err != nil {
			d.markSendFailed(ctx, rec.ID, err, rec.SendAttempts)
			continue
		}
		d.markSent(ctx, rec.ID, now)
	}
}

func (d *EmailOutboxDispatcher) markSent(ctx context.Context, recordID int, now time.Time) {
	db := d.DB.WithContext(ctx)
	_ = db.Model(&models.EmailOutboxRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"send_status":     models.OutboxPublishStatusSent,
			"sent_at":         &now,
			"locked_at":       nil,
			"locked_by":       nil,
			"next_attempt_at": nil,
		}).Error
}

func (d *EmailOutboxDispatcher) markSendFailed(ctx context.Context, recordID int, err error, attempt int) {
	db := d.DB.WithContext(ctx)
	now := time.Now().UTC()
	msg := err.Error()

	if d.MaxAttempts > 0 && attempt >= d.MaxAttempts {
		_ = db.Model(&models.EmailOutboxRecord{}).
			Where("id = ?", recordID).
			Updates(map[string]interface{}{
				"send_status":     models.OutboxPublishStatusDead,
				"last_send_error": &msg,
				"next_attempt_at": nil,
				"locked_at":       nil,
				"locked_by":       nil,
			}).Error

		if d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"field":     "EmailOutboxDispatcher",
				"record_id": recordID,
				"attempt":   attempt,
			}).Error("email moved to DEAD after max attempts: " + msg)
		}
		return
	}

	next := now.Add(NextBackoff(d.InitialBackoff, attempt))
	_ = db.Model(&models.EmailOutboxRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"send_status":     models.OutboxPublishStatusFailed,
			"last_send_error": &msg,
			"next_attempt_at": &next,
			"locked_at":       nil,
			"locked_by":       nil,
		}).Error

	if d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"field":     "EmailOutboxDispatcher",
			"record_id": recordID,
			"attempt":   attempt,
		}).Warn("email send failed, will retry: " + msg)
	}
}
