package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrEmptyAudience  = errors.New("segment resolved to an empty audience")
	ErrInvalidSegment = errors.New("invalid segment")
	ErrInvalidInput   = errors.New("invalid input")
)

// RateLimitError is returned by transports when the messaging API asked us
// to slow down. It is a retry signal, not a delivery failure.
type RateLimitError struct {
	RetryAfter time.Duration
	Reason     string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s: %s", e.RetryAfter, e.Reason)
	}
	return "rate limited: " + e.Reason
}
