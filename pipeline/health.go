package pipeline

import (
	"context"
	"fmt"

	"github.com/jonwraymond/reqpipe/health"
	"github.com/jonwraymond/reqpipe/resilience"
)

// CacheChecker reports the cache degraded once it is 95% full.
func (p *Pipeline) CacheChecker() health.Checker {
	return health.NewUtilizationChecker(health.UtilizationConfig{
		Name: "cache",
		Usage: func() (int, int) {
			return p.store.Len(), p.store.Capacity()
		},
		WarningThreshold: 0.95,
	})
}

// BatchChecker reports pending batch groups and in-flight reads. It is
// informational and always healthy while the pipeline is open.
func (p *Pipeline) BatchChecker() health.Checker {
	return health.NewCheckerFunc("dispatch", func(context.Context) health.Result {
		s := p.Stats()
		details := map[string]any{
			"pending_batches": s.PendingBatches,
			"in_flight":       s.InFlight,
		}
		if err := p.checkOpen(); err != nil {
			return health.Unhealthy("pipeline closed", err).WithDetails(details)
		}
		return health.Healthy(fmt.Sprintf("%d batch groups pending, %d reads in flight",
			s.PendingBatches, s.InFlight)).WithDetails(details)
	})
}

// CircuitChecker reports the upstream circuit breaker state: open is
// unhealthy, half-open is degraded. It returns nil when cb is nil.
func CircuitChecker(cb *resilience.CircuitBreaker) health.Checker {
	if cb == nil {
		return nil
	}
	return health.NewCheckerFunc("upstream", func(context.Context) health.Result {
		s := cb.Stats()
		details := map[string]any{
			"state":    s.State.String(),
			"failures": s.Failures,
			"rejected": s.Rejected,
		}
		switch s.State {
		case resilience.StateOpen:
			return health.Unhealthy("circuit open", resilience.ErrCircuitOpen).WithDetails(details)
		case resilience.StateHalfOpen:
			return health.Degraded("circuit half-open").WithDetails(details)
		default:
			return health.Healthy("circuit closed").WithDetails(details)
		}
	})
}

// RegisterHealth registers the pipeline checkers, plus the upstream circuit
// checker when exec has a breaker, on agg.
func (p *Pipeline) RegisterHealth(agg *health.Aggregator, exec *resilience.Executor) {
	agg.Register(p.CacheChecker())
	agg.Register(p.BatchChecker())
	if exec != nil {
		if c := CircuitChecker(exec.CircuitBreaker()); c != nil {
			agg.Register(c)
		}
	}
}
