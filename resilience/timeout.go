package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Timeout bounds a single attempt.
//
// The attempt runs on its own goroutine so that an operation ignoring its
// context still releases the caller on time.
type Timeout struct {
	d time.Duration
}

// NewTimeout creates a Timeout. d <= 0 defaults to 30s.
func NewTimeout(d time.Duration) *Timeout {
	if d <= 0 {
		d = 30 * time.Second
	}
	return &Timeout{d: d}
}

// Duration returns the attempt timeout.
func (t *Timeout) Duration() time.Duration {
	return t.d
}

// Execute runs op with a deadline. It returns ErrTimeout when the deadline
// passes, and the parent's error when the parent context ends first.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	actx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- op(actx) }()

	select {
	case err := <-done:
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return err
	case <-actx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTimeout
	}
}
