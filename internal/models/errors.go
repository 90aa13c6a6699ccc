package models

import "errors"

// Error kinds surfaced by the core. Callers match them with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidCode       = errors.New("invalid otp")
	ErrCodeExpired       = errors.New("otp expired, please request a new one")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrDispatchFailure   = errors.New("failed to dispatch otp")
	ErrPersistence       = errors.New("persistence failure")
	ErrExhaustedKeyspace = errors.New("referral code keyspace exhausted")
)
