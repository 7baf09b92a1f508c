package domain

import "errors"

var (
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrUnknownAction    = errors.New("unknown rate limit action")
	ErrInvalidBlockTTL  = errors.New("block ttl must be positive")
	ErrInvalidEventType = errors.New("invalid security event type")
)
