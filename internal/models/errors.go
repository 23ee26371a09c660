package models

import "errors"

var (
	ErrEventNotFound  = errors.New("event not found")
	ErrTicketNotFound = errors.New("ticket not found")
	ErrForbidden      = errors.New("forbidden")
	// ErrStoreUnavailable marks connectivity loss or timeouts. Retryable; the
	// outcome of the attempted operation is unknown to the caller.
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidInput     = errors.New("invalid input")
)
