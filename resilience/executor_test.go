package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestExecutor_NoPatternsCallsThrough(t *testing.T) {
	want := errors.New("boom")
	if err := NewExecutor().Execute(context.Background(), fail(want)); err != want {
		t.Errorf("Execute() error = %v, want %v", err, want)
	}
	if s := NewExecutor().Stats(); s.Circuit != nil || s.Bulkhead != nil || s.Tokens != nil {
		t.Errorf("Stats() = %+v, want empty", s)
	}
}

func TestExecutor_RetryCountsOnceAgainstBreaker(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2})
	e := NewExecutor(
		WithCircuitBreaker(cb),
		WithRetry(NewRetry(RetryConfig{MaxAttempts: 3, Sleep: recordSleep(new([]time.Duration))})),
	)

	attempts := 0
	_ = e.Execute(context.Background(), func(context.Context) error {
		attempts++
		return &statusErr{code: 503}
	})

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if got := cb.Stats().Failures; got != 1 {
		t.Errorf("breaker failures = %d, want 1", got)
	}
}

func TestExecutor_TimeoutPerAttempt(t *testing.T) {
	e := NewExecutor(
		WithRetry(NewRetry(RetryConfig{MaxAttempts: 2, Sleep: recordSleep(new([]time.Duration))})),
		WithTimeout(10*time.Millisecond),
	)

	var attempts atomic.Int32
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		if attempts.Add(1) == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})

	if err != nil {
		t.Errorf("Execute() error = %v, want second attempt to succeed", err)
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestExecutor_RejectionsAreNotRetried(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1})
	_ = b.Acquire(context.Background())

	e := NewExecutor(WithBulkhead(b), WithRetry(NewRetry(RetryConfig{MaxAttempts: 3})))
	called := false
	err := e.Execute(context.Background(), func(context.Context) error { called = true; return nil })

	if !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("Execute() error = %v, want ErrBulkheadFull", err)
	}
	if called {
		t.Error("operation ran while bulkhead was full")
	}
}

func TestFromConfig_ZeroValueDisablesEverything(t *testing.T) {
	var c Config
	if c.Enabled() {
		t.Error("zero Config should not be enabled")
	}
	e, err := FromConfig(c, nil, nil)
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	if e.CircuitBreaker() != nil {
		t.Error("CircuitBreaker() should be nil")
	}
}

func TestFromConfig_BuildsPatterns(t *testing.T) {
	var retries int
	var transitions []State
	c := Config{
		Timeout:        time.Second,
		Retry:          RetryPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond, Backoff: "constant"},
		CircuitBreaker: CircuitPolicy{MaxFailures: 1, ResetTimeout: time.Minute},
		MaxConcurrent:  4,
		RateLimit:      RatePolicy{PerSecond: 1000, Burst: 100},
	}
	if !c.Enabled() {
		t.Fatal("Enabled() = false, want true")
	}

	e, err := FromConfig(c,
		func(int, error, time.Duration) { retries++ },
		func(_, to State) { transitions = append(transitions, to) },
	)
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}

	_ = e.Execute(context.Background(), fail(&statusErr{code: 500}))

	if retries != 1 {
		t.Errorf("retries = %d, want 1", retries)
	}
	if e.CircuitBreaker().State() != StateOpen {
		t.Errorf("circuit state = %v, want open", e.CircuitBreaker().State())
	}
	if len(transitions) != 1 || transitions[0] != StateOpen {
		t.Errorf("transitions = %v, want [open]", transitions)
	}
	s := e.Stats()
	if s.Circuit == nil || s.Bulkhead == nil || s.Tokens == nil {
		t.Fatalf("Stats() = %+v, want every section", s)
	}
	if s.Bulkhead.MaxConcurrent != 4 {
		t.Errorf("Bulkhead.MaxConcurrent = %d, want 4", s.Bulkhead.MaxConcurrent)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative timeout", Config{Timeout: -1}},
		{"negative attempts", Config{Retry: RetryPolicy{MaxAttempts: -1}}},
		{"negative failures", Config{CircuitBreaker: CircuitPolicy{MaxFailures: -1}}},
		{"negative concurrency", Config{MaxConcurrent: -1}},
		{"negative rate", Config{RateLimit: RatePolicy{PerSecond: -1}}},
		{"unknown backoff", Config{Retry: RetryPolicy{Backoff: "random"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
