// Package health reports whether the request pipeline can serve traffic.
//
// Checkers cover individual components (cache utilization, upstream
// circuit state, pending batches); an Aggregator runs them together and
// the HTTP handlers expose the result as liveness, readiness and detailed
// JSON probes.
//
//	agg := health.NewAggregator(health.AggregatorConfig{})
//	agg.Register(health.NewUtilizationChecker(health.UtilizationConfig{
//	    Name:  "cache",
//	    Usage: func() (int, int) { s := store.Stats(); return s.Size, s.Capacity },
//	}))
//	health.RegisterHandlers(mux, agg)
package health
