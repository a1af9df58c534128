package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrorStockNotFound is reported when an outlet has no stock record at all;
// the triggering operation must leave stock untouched.
var ErrorStockNotFound = errors.New("stock record not found for outlet")

var ErrorInsufficientStock = errors.New("not enough stock on hand")

// ValidationError blocks the operation before any write.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func NewValidationError(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// TransitionError rejects a status change the state machine does not allow.
// Statuses only ever move forward; the guard lives in the workflow, not the UI.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.Entity, e.From, e.To)
}

func NewTransitionError(entity, from, to string) error {
	return &TransitionError{Entity: entity, From: from, To: to}
}

func IsTransitionError(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}
