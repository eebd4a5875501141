package resilience

import (
	"context"
	"errors"
	"net"
	"time"
)

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a call.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrRateLimitExceeded is returned when no token is available.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")

	// ErrBulkheadFull is returned when every concurrency slot is taken.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when a single attempt exceeds its timeout.
	ErrTimeout = errors.New("resilience: attempt timed out")

	// ErrInvalidConfig is returned by FromConfig for unusable settings.
	ErrInvalidConfig = errors.New("resilience: invalid config")
)

// retryable is implemented by errors that know whether a retry could help,
// such as upstream status errors.
type retryable interface {
	Retryable() bool
}

// retryAfter is implemented by errors that carry a server-requested delay.
type retryAfter interface {
	RetryAfter() time.Duration
}

// IsRetryable classifies an upstream failure.
//
// Caller cancellation and local rejections (open circuit, full bulkhead,
// exhausted rate limit) are never retryable. Errors implementing
// Retryable() bool decide for themselves. Network errors and attempt
// timeouts are retryable. Anything else is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, ErrCircuitOpen),
		errors.Is(err, ErrBulkheadFull),
		errors.Is(err, ErrRateLimitExceeded):
		return false
	case errors.Is(err, ErrTimeout):
		return true
	}

	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// RetryAfterOf returns the delay requested by err, or 0.
func RetryAfterOf(err error) time.Duration {
	var ra retryAfter
	if errors.As(err, &ra) {
		if d := ra.RetryAfter(); d > 0 {
			return d
		}
	}
	return 0
}
