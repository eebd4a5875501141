package resilience

import (
	"context"
	"fmt"
	"time"
)

// Executor composes the resilience patterns around one upstream call.
//
// The wrapping order, outermost first, is: rate limiter, bulkhead, circuit
// breaker, retry, timeout. Each retry attempt therefore gets its own
// timeout, and a whole retried call counts once against the breaker.
type Executor struct {
	circuitBreaker *CircuitBreaker
	retry          *Retry
	rateLimiter    *RateLimiter
	bulkhead       *Bulkhead
	timeout        *Timeout
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates an Executor. With no options Execute simply calls op.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithCircuitBreaker adds a circuit breaker.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) { e.circuitBreaker = cb }
}

// WithRetry adds retries.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) { e.retry = r }
}

// WithRateLimiter adds rate limiting.
func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) { e.rateLimiter = rl }
}

// WithBulkhead adds a concurrency cap.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) { e.bulkhead = b }
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = NewTimeout(d) }
}

// Execute runs op through every configured pattern.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	call := op
	if e.timeout != nil {
		call = wrap(e.timeout.Execute, call)
	}
	if e.retry != nil {
		call = wrap(e.retry.Execute, call)
	}
	if e.circuitBreaker != nil {
		call = wrap(e.circuitBreaker.Execute, call)
	}
	if e.bulkhead != nil {
		call = wrap(e.bulkhead.Execute, call)
	}
	if e.rateLimiter != nil {
		call = wrap(e.rateLimiter.Execute, call)
	}
	return call(ctx)
}

type runner func(context.Context, func(context.Context) error) error

func wrap(outer runner, inner func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error { return outer(ctx, inner) }
}

// CircuitBreaker returns the configured breaker, or nil.
func (e *Executor) CircuitBreaker() *CircuitBreaker {
	return e.circuitBreaker
}

// Stats is a point-in-time view of an Executor.
type Stats struct {
	Circuit  *CircuitBreakerStats `json:"circuit,omitempty"`
	Bulkhead *BulkheadStats       `json:"bulkhead,omitempty"`
	Tokens   *float64             `json:"tokens,omitempty"`
}

// Stats returns statistics for the configured stateful patterns.
func (e *Executor) Stats() Stats {
	var s Stats
	if e.circuitBreaker != nil {
		cs := e.circuitBreaker.Stats()
		s.Circuit = &cs
	}
	if e.bulkhead != nil {
		bs := e.bulkhead.Stats()
		s.Bulkhead = &bs
	}
	if e.rateLimiter != nil {
		t := e.rateLimiter.Tokens()
		s.Tokens = &t
	}
	return s
}

// Config is the declarative form of an Executor, as read from YAML.
// The zero value disables every pattern.
type Config struct {
	// Timeout bounds each attempt. 0 disables it.
	Timeout time.Duration `yaml:"timeout"`

	Retry          RetryPolicy   `yaml:"retry"`
	CircuitBreaker CircuitPolicy `yaml:"circuit_breaker"`

	// MaxConcurrent caps in-flight upstream calls. 0 disables the bulkhead.
	MaxConcurrent int `yaml:"max_concurrent"`

	RateLimit RatePolicy `yaml:"rate_limit"`
}

// RetryPolicy configures retries. MaxAttempts <= 1 disables them.
type RetryPolicy struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Backoff      string        `yaml:"backoff"`
	Jitter       bool          `yaml:"jitter"`
}

// CircuitPolicy configures the breaker. MaxFailures == 0 disables it.
type CircuitPolicy struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// RatePolicy configures the rate limiter. PerSecond == 0 disables it.
type RatePolicy struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
	Wait      bool    `yaml:"wait"`
}

// Enabled reports whether any pattern is configured.
func (c Config) Enabled() bool {
	return c.Timeout > 0 || c.Retry.MaxAttempts > 1 || c.CircuitBreaker.MaxFailures > 0 ||
		c.MaxConcurrent > 0 || c.RateLimit.PerSecond > 0
}

// Validate checks c for negative or unknown values.
func (c Config) Validate() error {
	switch {
	case c.Timeout < 0:
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	case c.Retry.MaxAttempts < 0:
		return fmt.Errorf("%w: negative retry.max_attempts", ErrInvalidConfig)
	case c.CircuitBreaker.MaxFailures < 0:
		return fmt.Errorf("%w: negative circuit_breaker.max_failures", ErrInvalidConfig)
	case c.MaxConcurrent < 0:
		return fmt.Errorf("%w: negative max_concurrent", ErrInvalidConfig)
	case c.RateLimit.PerSecond < 0:
		return fmt.Errorf("%w: negative rate_limit.per_second", ErrInvalidConfig)
	}
	_, err := ParseBackoff(c.Retry.Backoff)
	return err
}

// FromConfig builds an Executor from c. onRetry and onStateChange may be nil.
func FromConfig(c Config, onRetry func(int, error, time.Duration), onStateChange func(from, to State)) (*Executor, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var opts []ExecutorOption
	if c.Timeout > 0 {
		opts = append(opts, WithTimeout(c.Timeout))
	}
	if c.Retry.MaxAttempts > 1 {
		strategy, _ := ParseBackoff(c.Retry.Backoff)
		opts = append(opts, WithRetry(NewRetry(RetryConfig{
			MaxAttempts:  c.Retry.MaxAttempts,
			InitialDelay: c.Retry.InitialDelay,
			MaxDelay:     c.Retry.MaxDelay,
			Strategy:     strategy,
			Jitter:       c.Retry.Jitter,
			OnRetry:      onRetry,
		})))
	}
	if c.CircuitBreaker.MaxFailures > 0 {
		opts = append(opts, WithCircuitBreaker(NewCircuitBreaker(CircuitBreakerConfig{
			MaxFailures:   c.CircuitBreaker.MaxFailures,
			ResetTimeout:  c.CircuitBreaker.ResetTimeout,
			OnStateChange: onStateChange,
		})))
	}
	if c.MaxConcurrent > 0 {
		opts = append(opts, WithBulkhead(NewBulkhead(BulkheadConfig{MaxConcurrent: c.MaxConcurrent})))
	}
	if c.RateLimit.PerSecond > 0 {
		opts = append(opts, WithRateLimiter(NewRateLimiter(RateLimiterConfig{
			Rate:  c.RateLimit.PerSecond,
			Burst: c.RateLimit.Burst,
			Wait:  c.RateLimit.Wait,
		})))
	}
	return NewExecutor(opts...), nil
}
