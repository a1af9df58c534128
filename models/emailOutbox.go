package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gasbygas/dispatch_backend/utils"
)

// EmailOutboxRecord implements the transactional outbox for external
// email delivery: the record is written inside the caller's DB
// transaction but is NOT sent there. Sending happens asynchronously in
// the outbox dispatcher after commit, so a slow or failing SMTP server
// never blocks or fails a lifecycle operation.
type EmailOutboxRecord struct {
	ID             int        `gorm:"primary_key;index:idx_email_outbox_dispatch,priority:3" json:"id"`
	Recipient      string     `gorm:"size:100;not null" json:"recipient"`
	Subject        string     `gorm:"size:200;not null" json:"subject"`
	Body           string     `gorm:"type:text;not null" json:"body"`
	SendStatus     string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_email_outbox_dispatch,priority:1" json:"send_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	SentAt         *time.Time `gorm:"index" json:"sent_at"`
	SendAttempts   int        `gorm:"not null;default:0" json:"send_attempts"`
	NextAttemptAt  *time.Time `gorm:"index;index:idx_email_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt       *time.Time `gorm:"index" json:"locked_at"`
	LockedBy       *string    `gorm:"size:100" json:"locked_by"`
	LastSendError  *string    `gorm:"type:text" json:"last_send_error"`
	CorrelationId  string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// EnqueueEmail writes a delivery intent in the caller's transaction.
// Recipients without an email address are skipped silently.
func EnqueueEmail(ctx context.Context, tx *gorm.DB, recipient string, subject string, body string) error {
	if recipient == "" {
		return nil
	}
	record := EmailOutboxRecord{
		Recipient:     recipient,
		Subject:       subject,
		Body:          body,
		SendStatus:    OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
