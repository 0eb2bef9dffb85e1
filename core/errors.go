package core

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("credential request not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAuth              = errors.New("authentication token unavailable")
	ErrSessionBusy       = errors.New("widget session already active")
	ErrWidget            = errors.New("widget failure")
	ErrCancelledByUser   = errors.New("cancelled by user")
	ErrStore             = errors.New("store operation failed")
)
