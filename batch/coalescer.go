package batch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/reqpipe/observe"
)

// DefaultDebounce is the debounce window used when Config.Debounce is unset.
const DefaultDebounce = 20 * time.Millisecond

// BatchFunc performs one aggregate call for a group. It must return exactly
// one result per target, at the target's index, or an error for the whole
// group.
type BatchFunc func(ctx context.Context, targets []string) ([][]byte, error)

// FetchFunc fetches a single target.
type FetchFunc func(ctx context.Context, target string) ([]byte, error)

// GroupKeyFunc derives the group key of a target.
type GroupKeyFunc func(target string) string

// PerTarget adapts a single-target fetch into a BatchFunc that fetches every
// target concurrently. At most limit fetches run at once; limit <= 0 means
// no limit. The first failure cancels the remaining fetches and fails the
// whole group.
func PerTarget(fetch FetchFunc, limit int) BatchFunc {
	return func(ctx context.Context, targets []string) ([][]byte, error) {
		results := make([][]byte, len(targets))

		g, gctx := errgroup.WithContext(ctx)
		if limit > 0 {
			g.SetLimit(limit)
		}
		for i, target := range targets {
			g.Go(func() error {
				v, err := fetch(gctx, target)
				if err != nil {
					return err
				}
				results[i] = v
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return results, nil
	}
}

// ParentCollection groups targets by their path minus the last segment:
// "/api/Issue/7?x=1" and "/api/Issue/8" share the key "/api/Issue".
func ParentCollection(target string) string {
	path := target
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return ""
}

// Config configures a Coalescer.
type Config struct {
	// Debounce is the delay between a group's first member and its flush.
	// Default: 20ms
	Debounce time.Duration

	// GroupKey derives the group of a target.
	// Default: ParentCollection
	GroupKey GroupKeyFunc

	// MaxGroupSize flushes a group as soon as it reaches this many members.
	// Default: 0 (no size limit)
	MaxGroupSize int

	// Scheduler schedules debounce timers.
	// Default: SystemScheduler
	Scheduler Scheduler

	// Logger receives flush entries.
	// Default: observe.NopLogger()
	Logger observe.Logger

	// Metrics receives one event per flushed group.
	// Default: observe.NoopMetrics{}
	Metrics observe.Metrics
}

// Pending is the handle for one enqueued target.
type Pending struct {
	target string
	done   chan struct{}
	value  []byte
	err    error
}

// Target returns the enqueued target.
func (p *Pending) Target() string {
	return p.target
}

// Done is closed once the member's result is available.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the member's result is available or ctx is done.
// Cancelling ctx abandons the wait only; the member stays in its group.
func (p *Pending) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pending) resolve(value []byte, err error) {
	p.value, p.err = value, err
	close(p.done)
}

// group is the set of members collected under one key before a flush.
type group struct {
	key      string
	members  []*Pending
	timer    Timer
	detached bool
}

// Coalescer groups targets and flushes each group once.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Each group is flushed at most once; its BatchFunc call happens once.
type Coalescer struct {
	fn  BatchFunc
	cfg Config

	mu     sync.Mutex
	groups map[string]*group
	closed bool

	running sync.WaitGroup
}

// New creates a Coalescer that flushes groups through fn.
func New(fn BatchFunc, cfg Config) *Coalescer {
	// Apply defaults
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.GroupKey == nil {
		cfg.GroupKey = ParentCollection
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = SystemScheduler
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.NoopMetrics{}
	}
	cfg.Logger = cfg.Logger.With(observe.F("component", "batch"))

	return &Coalescer{
		fn:     fn,
		cfg:    cfg,
		groups: make(map[string]*group),
	}
}

// GroupKey returns the group key target would be enqueued under.
func (c *Coalescer) GroupKey(target string) string {
	return c.cfg.GroupKey(target)
}

// Enqueue adds target to its group and returns a handle to its result.
func (c *Coalescer) Enqueue(target string) (*Pending, error) {
	if target == "" {
		return nil, ErrEmptyTarget
	}

	p := &Pending{target: target, done: make(chan struct{})}
	key := c.cfg.GroupKey(target)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}

	g, ok := c.groups[key]
	if !ok {
		g = &group{key: key}
		c.groups[key] = g
		g.timer = c.cfg.Scheduler.AfterFunc(c.cfg.Debounce, func() {
			c.fire(g)
		})
	}
	g.members = append(g.members, p)

	full := c.cfg.MaxGroupSize > 0 && len(g.members) >= c.cfg.MaxGroupSize
	if full {
		c.detachLocked(g)
	}
	c.mu.Unlock()

	if full {
		go c.run(context.Background(), g)
	}
	return p, nil
}

// fire is the debounce timer callback.
func (c *Coalescer) fire(g *group) {
	c.mu.Lock()
	ok := c.detachLocked(g)
	c.mu.Unlock()

	if ok {
		c.run(context.Background(), g)
	}
}

// detachLocked removes g from the pending map and cancels its timer. It
// reports false if g was already detached.
func (c *Coalescer) detachLocked(g *group) bool {
	if g.detached {
		return false
	}
	g.detached = true
	if c.groups[g.key] == g {
		delete(c.groups, g.key)
	}
	if g.timer != nil {
		g.timer.Stop()
	}
	c.running.Add(1)
	return true
}

// run performs the aggregate call for a detached group and resolves its
// members.
func (c *Coalescer) run(ctx context.Context, g *group) {
	defer c.running.Done()

	targets := make([]string, len(g.members))
	for i, m := range g.members {
		targets[i] = m.target
	}

	values, err := c.fn(ctx, targets)
	if err == nil && len(values) != len(targets) {
		err = fmt.Errorf("%w: got %d for %d", ErrResultMismatch, len(values), len(targets))
	}

	for i, m := range g.members {
		if err != nil {
			m.resolve(nil, err)
			continue
		}
		m.resolve(values[i], nil)
	}

	c.cfg.Metrics.RecordBatchFlush(ctx, len(targets), err)
	if err != nil {
		c.cfg.Logger.Warn(ctx, "batch flush failed",
			observe.F("group", g.key),
			observe.F("members", len(targets)),
			observe.F("error", err))
		return
	}
	c.cfg.Logger.Debug(ctx, "batch flushed",
		observe.F("group", g.key),
		observe.F("members", len(targets)))
}

// FlushNow runs the pending group for key immediately and waits for it. It
// reports whether a group was pending.
func (c *Coalescer) FlushNow(ctx context.Context, key string) bool {
	c.mu.Lock()
	g, ok := c.groups[key]
	if ok {
		ok = c.detachLocked(g)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	c.run(ctx, g)
	return true
}

// FlushAll runs every pending group immediately and concurrently, and waits
// for them. It returns the number of groups flushed.
func (c *Coalescer) FlushAll(ctx context.Context) int {
	c.mu.Lock()
	groups := make([]*group, 0, len(c.groups))
	for _, g := range c.groups {
		if c.detachLocked(g) {
			groups = append(groups, g)
		}
	}
	c.mu.Unlock()

	var eg errgroup.Group
	for _, g := range groups {
		eg.Go(func() error {
			c.run(ctx, g)
			return nil
		})
	}
	_ = eg.Wait()
	return len(groups)
}

// Close rejects further enqueues, flushes every pending group and waits
// for all running flushes, or until ctx is done.
func (c *Coalescer) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.FlushAll(ctx)

	done := make(chan struct{})
	go func() {
		c.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PendingGroups returns the number of groups waiting for their timer.
func (c *Coalescer) PendingGroups() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.groups)
}

// PendingMembers returns the number of members in the group for key that
// has not been flushed yet.
func (c *Coalescer) PendingMembers(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.groups[key]; ok {
		return len(g.members)
	}
	return 0
}
