package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonwraymond/reqpipe/batch"
	"github.com/jonwraymond/reqpipe/cache"
	"github.com/jonwraymond/reqpipe/inflight"
	"github.com/jonwraymond/reqpipe/invalidate"
	"github.com/jonwraymond/reqpipe/observe"
	"github.com/jonwraymond/reqpipe/transport"
)

// Config configures a Pipeline. It is read once by New.
type Config struct {
	// CacheablePatterns are regular expressions over read targets. An empty
	// list makes every read cacheable.
	CacheablePatterns []string

	// Policy holds the baseline TTL, the TTL cap and per-pattern overrides.
	// Default: cache.DefaultPolicy() when every field is zero
	Policy cache.Policy

	// MaxEntries bounds the cache.
	// Default: cache.DefaultMaxEntries
	MaxEntries int

	// Families are the resource family tokens used for invalidation.
	Families []string

	// BatchDebounce is the batching window.
	// Default: batch.DefaultDebounce
	BatchDebounce time.Duration

	// BatchMaxGroupSize flushes a batch group early once it is this large.
	// Default: 0 (no limit)
	BatchMaxGroupSize int

	// BatchConcurrency bounds the concurrent reads of one flushed group.
	// Default: 0 (no limit)
	BatchConcurrency int

	// Scheduler runs batch debounce timers.
	// Default: batch.SystemScheduler
	Scheduler batch.Scheduler

	// Clock drives cache expiry.
	// Default: time.Now
	Clock func() time.Time

	// Logger receives pipeline entries.
	// Default: observe.NopLogger()
	Logger observe.Logger

	// Metrics receives cache, dedup, invalidation and batch events.
	// Default: observe.NoopMetrics{}
	Metrics observe.Metrics
}

// Pipeline is the request dispatcher.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - At most one upstream read per cache key is in flight at a time.
// - Transport errors reach every affected caller unchanged.
type Pipeline struct {
	tr          transport.Transport
	classifier  *cache.Classifier
	keyer       cache.Keyer
	store       *cache.Store
	inflight    *inflight.Group
	invalidator *invalidate.Invalidator
	batcher     *batch.Coalescer
	logger      observe.Logger
	metrics     observe.Metrics

	leaders sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New creates a Pipeline sending through tr.
func New(tr transport.Transport, cfg Config) (*Pipeline, error) {
	if tr == nil {
		return nil, ErrNilTransport
	}

	// Apply defaults
	if cfg.Policy.BaselineTTL == 0 && cfg.Policy.MaxTTL == 0 && len(cfg.Policy.Overrides) == 0 {
		cfg.Policy = cache.DefaultPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.NoopMetrics{}
	}

	classifier, err := cache.NewClassifier(cache.ClassifierConfig{
		CacheablePatterns: cfg.CacheablePatterns,
		Policy:            cfg.Policy,
	})
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		tr:         tr,
		classifier: classifier,
		keyer:      cache.NewDefaultKeyer(),
		store: cache.NewStore(cache.StoreConfig{
			MaxEntries: cfg.MaxEntries,
			Clock:      cfg.Clock,
			Metrics:    observe.CacheHooks{Metrics: cfg.Metrics},
		}),
		inflight: inflight.NewGroup(),
		logger:   cfg.Logger.With(observe.F("component", "pipeline")),
		metrics:  cfg.Metrics,
	}
	p.invalidator = invalidate.New(invalidate.Config{
		Resolver: invalidate.NewResolver(cfg.Families...),
		Store:    p.store,
		InFlight: p.inflight,
		Logger:   cfg.Logger,
		Metrics:  cfg.Metrics,
	})
	flushRead := func(ctx context.Context, target string) ([]byte, error) {
		return p.read(ctx, http.MethodGet, target, false)
	}
	p.batcher = batch.New(batch.PerTarget(flushRead, cfg.BatchConcurrency), batch.Config{
		Debounce:     cfg.BatchDebounce,
		MaxGroupSize: cfg.BatchMaxGroupSize,
		Scheduler:    cfg.Scheduler,
		Logger:       cfg.Logger,
		Metrics:      cfg.Metrics,
	})
	return p, nil
}

// Read fetches target with GET through the cache and deduplication layers.
func (p *Pipeline) Read(ctx context.Context, target string) ([]byte, error) {
	return p.read(ctx, http.MethodGet, target, true)
}

// Mutate sends a mutating request. Every cached read sharing a resource
// family with target is purged before the request is sent and again after
// the upstream answered, whatever the outcome.
func (p *Pipeline) Mutate(ctx context.Context, method, target string, body []byte) ([]byte, error) {
	method = strings.ToUpper(method)
	if cache.KindOf(method) != cache.KindMutation {
		return nil, fmt.Errorf("%w: %s", ErrNotMutation, method)
	}
	if err := p.checkOpen(); err != nil {
		return nil, err
	}

	p.invalidator.OnMutation(ctx, target)
	payload, err := p.send(ctx, method, target, body)
	p.invalidator.OnMutation(ctx, target)
	return payload, err
}

// Do dispatches any request by method: reads go through Read's path,
// mutations through Mutate, anything else straight to the transport.
func (p *Pipeline) Do(ctx context.Context, method, target string, body []byte) ([]byte, error) {
	method = strings.ToUpper(method)
	switch cache.KindOf(method) {
	case cache.KindRead:
		return p.read(ctx, method, target, true)
	case cache.KindMutation:
		return p.Mutate(ctx, method, target, body)
	default:
		if err := p.checkOpen(); err != nil {
			return nil, err
		}
		return p.send(ctx, method, target, body)
	}
}

// read serves a read. Public reads are rejected once the pipeline is
// closed; reads flushed from batch groups are not.
func (p *Pipeline) read(ctx context.Context, method, target string, public bool) ([]byte, error) {
	if public {
		if err := p.checkOpen(); err != nil {
			return nil, err
		}
	}

	cls := p.classifier.Classify(method, target)
	if !cls.Cacheable {
		return p.send(ctx, method, target, nil)
	}
	key, err := p.keyer.Key(method, target)
	if err != nil {
		p.logger.Debug(ctx, "target has no cache key, bypassing cache",
			observe.F("target", target),
			observe.F("error", err))
		return p.send(ctx, method, target, nil)
	}

	if ent, ok := p.store.Lookup(key); ok {
		return ent.Payload, nil
	}

	h := p.inflight.AcquireOrJoin(key)
	leader := h.Role() == inflight.Leader
	if leader {
		if err := p.beginLeader(public); err != nil {
			_ = h.Settle(nil, err)
			return nil, err
		}
		go p.lead(context.WithoutCancel(ctx), h, method, target, cls.TTL)
	} else {
		p.logger.Debug(ctx, "joined pending read",
			observe.F("key", key),
			observe.F("waiters", p.inflight.Waiters(key)))
	}
	p.metrics.RecordDedup(ctx, !leader)
	return h.Wait(ctx)
}

// lead performs the upstream read for h and settles it. It runs detached
// from the leading caller's cancellation so that one caller giving up does
// not fail the others.
func (p *Pipeline) lead(ctx context.Context, h *inflight.Handle, method, target string, ttl time.Duration) {
	defer p.leaders.Done()
	h.OnSettle(func(o inflight.Outcome) {
		if o.Err != nil && o.Waiters > 1 {
			p.logger.Warn(ctx, "shared upstream read failed",
				observe.F("key", h.Key()),
				observe.F("waiters", o.Waiters),
				observe.F("error", o.Err))
		}
	})
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(ctx, "upstream read panicked",
				observe.F("key", h.Key()),
				observe.F("panic", fmt.Sprint(r)))
			_ = h.Settle(nil, fmt.Errorf("%w: %v", inflight.ErrLeaderPanicked, r))
		}
	}()

	gen := p.store.Generation()
	payload, err := p.send(transport.ContextWithCacheKey(ctx, h.Key()), method, target, nil)
	if err == nil && !p.store.SetIfGeneration(h.Key(), payload, ttl, gen) {
		p.logger.Debug(ctx, "read raced an invalidation, not cached",
			observe.F("key", h.Key()))
	}
	_ = h.Settle(payload, err)
}

func (p *Pipeline) send(ctx context.Context, method, target string, body []byte) ([]byte, error) {
	resp, err := p.tr.Send(ctx, &transport.Request{Method: method, Target: target, Body: body})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// beginLeader registers a leader goroutine with Close. Registration and
// the closed check share the lock so Close never waits on a counter that
// can still grow from public calls.
func (p *Pipeline) beginLeader(public bool) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if public && p.closed {
		return ErrClosed
	}
	p.leaders.Add(1)
	return nil
}

func (p *Pipeline) checkOpen() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	return nil
}

// ReadBatched reads target through the batching coalescer. The call joins
// the pending group of target and returns once the group was flushed.
// Cancelling ctx abandons the wait only.
func (p *Pipeline) ReadBatched(ctx context.Context, target string) ([]byte, error) {
	pending, err := p.Enqueue(target)
	if err != nil {
		return nil, err
	}
	return pending.Wait(ctx)
}

// Enqueue adds target to its batch group and returns the pending handle.
func (p *Pipeline) Enqueue(target string) (*batch.Pending, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	return p.batcher.Enqueue(target)
}

// FlushBatch flushes the batch group target belongs to, if one is pending.
func (p *Pipeline) FlushBatch(ctx context.Context, target string) bool {
	return p.batcher.FlushNow(ctx, p.batcher.GroupKey(target))
}

// FlushAllBatches flushes every pending batch group now and returns the
// number of groups flushed.
func (p *Pipeline) FlushAllBatches(ctx context.Context) int {
	n := p.batcher.FlushAll(ctx)
	if n > 0 {
		p.logger.Info(ctx, "flushed pending batches", observe.F("groups", n))
	}
	return n
}

// Invalidate purges the resource families of target as a mutation would,
// without sending anything.
func (p *Pipeline) Invalidate(ctx context.Context, target string) invalidate.Result {
	return p.invalidator.OnMutation(ctx, target)
}

// ClearCache drops every cached entry.
func (p *Pipeline) ClearCache(ctx context.Context) {
	n := p.store.Len()
	p.store.Clear()
	p.logger.Info(ctx, "cache cleared", observe.F("removed", n))
}

// CacheStats returns the cache size, capacity and sorted keys.
func (p *Pipeline) CacheStats() cache.Stats {
	return p.store.Stats()
}

// Stats is an operational snapshot of a Pipeline.
type Stats struct {
	Cache          cache.Stats `json:"cache"`
	InFlight       int         `json:"in_flight"`
	PendingBatches int         `json:"pending_batches"`
}

// Stats returns cache, in-flight and batching figures.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Cache:          p.store.Stats(),
		InFlight:       p.inflight.InFlight(),
		PendingBatches: p.batcher.PendingGroups(),
	}
}

// Close rejects new requests, flushes pending batches and waits for
// running upstream reads, or until ctx is done.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	if err := p.batcher.Close(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		p.leaders.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
