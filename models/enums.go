package models

// RequestStatus is the delivery-request state machine. Statuses only move
// forward: pending -> dispatch -> received, or pending -> denied.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusDispatch RequestStatus = "dispatch"
	RequestStatusReceived RequestStatus = "received"
	RequestStatusDenied   RequestStatus = "denied"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusDispatch, RequestStatusReceived, RequestStatusDenied:
		return true
	}
	return false
}

// CanTransition reports whether the status machine allows moving to next.
// received and denied are terminal and nothing ever moves backward.
func (s RequestStatus) CanTransition(next RequestStatus) bool {
	switch s {
	case RequestStatusPending:
		return next == RequestStatusDispatch || next == RequestStatusDenied
	case RequestStatusDispatch:
		return next == RequestStatusReceived
	}
	return false
}

// TokenStatus: Unclaimed -> Claimed, terminal.
type TokenStatus string

const (
	TokenStatusUnclaimed TokenStatus = "Unclaimed"
	TokenStatusClaimed   TokenStatus = "Claimed"
)

func (s TokenStatus) Valid() bool {
	return s == TokenStatusUnclaimed || s == TokenStatusClaimed
}

func (s TokenStatus) CanTransition(next TokenStatus) bool {
	return s == TokenStatusUnclaimed && next == TokenStatusClaimed
}

type CustomerType string

const (
	CustomerTypeDomestic CustomerType = "Domestic"
	CustomerTypeBusiness CustomerType = "Business"
)

func (t CustomerType) Valid() bool {
	return t == CustomerTypeDomestic || t == CustomerTypeBusiness
}

// Outbox publish statuses for best-effort email delivery.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// Idempotency key statuses for re-triggered user actions.
const (
	IdempotencyStatusStarted   = "STARTED"
	IdempotencyStatusSucceeded = "SUCCEEDED"
	IdempotencyStatusFailed    = "FAILED"
)
