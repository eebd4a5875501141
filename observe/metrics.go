package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CacheEvent names a cache store event.
type CacheEvent string

// Cache store events.
const (
	CacheHit        CacheEvent = "hit"
	CacheMiss       CacheEvent = "miss"
	CacheEviction   CacheEvent = "eviction"
	CacheExpiration CacheEvent = "expiration"
)

// Metrics records pipeline metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordRequest records an upstream transport call.
	RecordRequest(ctx context.Context, meta RequestMeta, duration time.Duration, err error)

	// RecordCacheEvent records a cache store event.
	RecordCacheEvent(ctx context.Context, event CacheEvent)

	// RecordDedup records a read that reached the deduplicator. shared is
	// true when the read joined a pending call.
	RecordDedup(ctx context.Context, shared bool)

	// RecordInvalidation records a mutation-triggered purge.
	RecordInvalidation(ctx context.Context, removed int)

	// RecordBatchFlush records a flushed batch group.
	RecordBatchFlush(ctx context.Context, members int, err error)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	requestCount  metric.Int64Counter
	errorCount    metric.Int64Counter
	durationHist  metric.Float64Histogram
	cacheEvents   metric.Int64Counter
	dedupCount    metric.Int64Counter
	invalidated   metric.Int64Counter
	batchFlushes  metric.Int64Counter
	batchSizeHist metric.Int64Histogram
}

// NewMetrics creates a new Metrics instance with the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	requestCount, err := meter.Int64Counter(
		"reqpipe.transport.requests",
		metric.WithDescription("Total number of upstream requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"reqpipe.transport.errors",
		metric.WithDescription("Total number of failed upstream requests"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"reqpipe.transport.duration_ms",
		metric.WithDescription("Upstream request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	cacheEvents, err := meter.Int64Counter(
		"reqpipe.cache.events",
		metric.WithDescription("Cache store events by kind"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	dedupCount, err := meter.Int64Counter(
		"reqpipe.inflight.reads",
		metric.WithDescription("Reads that reached the deduplicator"),
		metric.WithUnit("{read}"),
	)
	if err != nil {
		return nil, err
	}

	invalidated, err := meter.Int64Counter(
		"reqpipe.invalidate.removed",
		metric.WithDescription("Cache entries removed by mutations"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	batchFlushes, err := meter.Int64Counter(
		"reqpipe.batch.flushes",
		metric.WithDescription("Batch groups flushed"),
		metric.WithUnit("{flush}"),
	)
	if err != nil {
		return nil, err
	}

	batchSizeHist, err := meter.Int64Histogram(
		"reqpipe.batch.size",
		metric.WithDescription("Members per flushed batch group"),
		metric.WithUnit("{member}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		requestCount:  requestCount,
		errorCount:    errorCount,
		durationHist:  durationHist,
		cacheEvents:   cacheEvents,
		dedupCount:    dedupCount,
		invalidated:   invalidated,
		batchFlushes:  batchFlushes,
		batchSizeHist: batchSizeHist,
	}, nil
}

// MetricsFromObserver creates Metrics from an Observer's meter.
func MetricsFromObserver(obs Observer) (Metrics, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	return NewMetrics(obs.Meter())
}

// RecordRequest records metrics for an upstream request.
func (m *metricsImpl) RecordRequest(ctx context.Context, meta RequestMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(
		attribute.String("http.request.method", meta.Method),
		attribute.Bool("reqpipe.cacheable", meta.Key != ""),
	)

	m.requestCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordCacheEvent(ctx context.Context, event CacheEvent) {
	m.cacheEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", string(event))))
}

func (m *metricsImpl) RecordDedup(ctx context.Context, shared bool) {
	role := "leader"
	if shared {
		role = "follower"
	}
	m.dedupCount.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
}

func (m *metricsImpl) RecordInvalidation(ctx context.Context, removed int) {
	m.invalidated.Add(ctx, int64(removed))
}

func (m *metricsImpl) RecordBatchFlush(ctx context.Context, members int, err error) {
	opt := metric.WithAttributes(attribute.Bool("error", err != nil))
	m.batchFlushes.Add(ctx, 1, opt)
	m.batchSizeHist.Record(ctx, int64(members), opt)
}

// NoopMetrics is a metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) RecordRequest(context.Context, RequestMeta, time.Duration, error) {}
func (NoopMetrics) RecordCacheEvent(context.Context, CacheEvent)                     {}
func (NoopMetrics) RecordDedup(context.Context, bool)                                {}
func (NoopMetrics) RecordInvalidation(context.Context, int)                          {}
func (NoopMetrics) RecordBatchFlush(context.Context, int, error)                     {}

// CacheHooks forwards cache store events to Metrics. It satisfies the
// store's hook interface (Hit, Miss, Eviction, Expiration).
type CacheHooks struct {
	Metrics Metrics
}

func (h CacheHooks) Hit(key string)        { h.record(CacheHit) }
func (h CacheHooks) Miss(key string)       { h.record(CacheMiss) }
func (h CacheHooks) Eviction(key string)   { h.record(CacheEviction) }
func (h CacheHooks) Expiration(key string) { h.record(CacheExpiration) }

func (h CacheHooks) record(event CacheEvent) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.RecordCacheEvent(context.Background(), event)
}

var (
	_ Metrics = (*metricsImpl)(nil)
	_ Metrics = NoopMetrics{}
)
