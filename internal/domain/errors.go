package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrLockHeld           = errors.New("lock already held")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrSourceUnavailable  = errors.New("price source unavailable")
	ErrSourceTimeout      = errors.New("price source timeout")
	ErrOpportunityExpired = errors.New("opportunity expired")
	ErrNotProfitable      = errors.New("opportunity no longer profitable")
	ErrInvalidAddress     = errors.New("invalid address")
	ErrInvalidInput       = errors.New("invalid input")
)
