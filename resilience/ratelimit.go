package resilience

import (
	"context"
	"sync"
	"time"
)

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// Rate is the sustained number of calls per second.
	// Default: 100
	Rate float64

	// Burst is the bucket size.
	// Default: 10
	Burst int

	// Wait queues a call until a token is available instead of rejecting it.
	Wait bool

	// MaxWait bounds the queueing time when Wait is set.
	// Default: 1s
	MaxWait time.Duration

	// Clock returns the current time.
	// Default: time.Now
	Clock func() time.Time
}

// RateLimiter is a token bucket over upstream calls.
type RateLimiter struct {
	config RateLimiterConfig

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// NewRateLimiter creates a full token bucket.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	// Apply defaults
	if config.Rate <= 0 {
		config.Rate = 100
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}
	if config.MaxWait <= 0 {
		config.MaxWait = time.Second
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &RateLimiter{
		config: config,
		tokens: float64(config.Burst),
		last:   config.Clock(),
	}
}

// Allow takes one token if available.
func (rl *RateLimiter) Allow() bool {
	ok, _ := rl.reserve()
	return ok
}

// reserve takes a token, or reports how long until one is available.
func (rl *RateLimiter) reserve() (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillLocked()
	if rl.tokens >= 1 {
		rl.tokens--
		return true, 0
	}
	missing := 1 - rl.tokens
	return false, time.Duration(missing / rl.config.Rate * float64(time.Second))
}

// Wait blocks until a token is taken, MaxWait elapses, or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	deadline := rl.config.Clock().Add(rl.config.MaxWait)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, d := rl.reserve()
		if ok {
			return nil
		}
		if rl.config.Clock().Add(d).After(deadline) {
			return ErrRateLimitExceeded
		}
		if err := sleep(ctx, d); err != nil {
			return err
		}
	}
}

// Execute runs op once a token is taken.
func (rl *RateLimiter) Execute(ctx context.Context, op func(context.Context) error) error {
	if rl.config.Wait {
		if err := rl.Wait(ctx); err != nil {
			return err
		}
	} else if !rl.Allow() {
		return ErrRateLimitExceeded
	}
	return op(ctx)
}

func (rl *RateLimiter) refillLocked() {
	now := rl.config.Clock()
	if elapsed := now.Sub(rl.last); elapsed > 0 {
		rl.tokens += elapsed.Seconds() * rl.config.Rate
		if burst := float64(rl.config.Burst); rl.tokens > burst {
			rl.tokens = burst
		}
	}
	rl.last = now
}

// Tokens returns the number of tokens currently available.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refillLocked()
	return rl.tokens
}
