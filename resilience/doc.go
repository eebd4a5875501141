// Package resilience guards upstream calls made by the transport.
//
// The request pipeline never retries on its own; when an operator wants
// retries, a circuit breaker or concurrency limits for a flaky upstream,
// the transport is wrapped with an Executor built here.
//
// # Patterns
//
//   - Retry: re-runs failures that IsRetryable accepts (network errors,
//     attempt timeouts, errors reporting Retryable() == true such as 5xx
//     and 429 responses), with constant, linear or exponential backoff and
//     Retry-After support.
//
//   - Circuit Breaker: rejects calls with ErrCircuitOpen after a run of
//     upstream failures and probes again after ResetTimeout.
//
//   - Timeout: bounds each attempt.
//
//   - Bulkhead: caps concurrent upstream calls.
//
//   - Rate Limiter: token bucket over upstream calls.
//
// # Usage
//
//	exec, err := resilience.FromConfig(resilience.Config{
//	    Timeout: 5 * time.Second,
//	    Retry:   resilience.RetryPolicy{MaxAttempts: 3},
//	    CircuitBreaker: resilience.CircuitPolicy{MaxFailures: 5},
//	}, nil, nil)
//
//	err = exec.Execute(ctx, func(ctx context.Context) error {
//	    return send(ctx)
//	})
package resilience
