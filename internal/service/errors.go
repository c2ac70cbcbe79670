package service

import (
	"errors"
	"fmt"

	"warehouse-service/internal/models"
	"warehouse-service/internal/store"
)

// Error kinds. Every error returned by the services wraps exactly one of them.
var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidTransition = models.ErrInvalidTransition
	ErrValidation        = errors.New("validation failed")
	ErrPersistence       = errors.New("persistence failure")
	ErrConflict          = errors.New("conflict")
	ErrUnauthorized      = errors.New("unauthorized")
)

// Error carries a client-safe message alongside its kind and optional cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func notFound(entity string) *Error {
	return newError(ErrNotFound, entity+" not found", nil)
}

func validation(format string, args ...interface{}) *Error {
	return newError(ErrValidation, fmt.Sprintf(format, args...), nil)
}

// lookup turns a store miss into a NotFound for entity and passes other errors through.
func lookup(err error, entity string) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound(entity)
	}
	return err
}

// classify returns err unchanged when it is already a service error, otherwise
// reports it as a persistence failure with message.
func classify(err error, message string) error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return err
	}
	return newError(ErrPersistence, message, err)
}

// Reason is a short label for metrics
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrInvalidStatus):
		return "invalid_status"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrPersistence):
		return "db_error"
	}
	return "internal"
}
