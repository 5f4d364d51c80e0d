package service

import (
	"errors"
	"fmt"

	"giftpool/internal/models"
)

// ErrNotFound reports an unknown collection, user, option or transaction.
var ErrNotFound = errors.New("not found")

// ErrUnauthorized reports a failed role or relationship check.
var ErrUnauthorized = errors.New("unauthorized")

// ValidationError reports malformed input. It is user visible and causes no
// state change.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Code identifies the error class in structured logs.
func (e *ValidationError) Code() string { return "VALIDATION" }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError reports a status change rejected by the state table.
type InvalidTransitionError struct {
	From models.CollectionStatus
	To   models.CollectionStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// Code identifies the error class in structured logs.
func (e *InvalidTransitionError) Code() string { return "INVALID_TRANSITION" }
