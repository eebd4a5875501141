// Package invalidate purges cached reads after a mutation.
//
// A target belongs to a resource family when one of its path segments contains
// a known family token, compared case-insensitively, so "/api/Issues" and
// "/api/IssueComments" both belong to the Issue family. A target may belong to
// several families. A mutation purges every cached key that shares at least
// one family with the mutated target; a mutation whose target has no known
// family purges nothing.
package invalidate

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/jonwraymond/reqpipe/cache"
	"github.com/jonwraymond/reqpipe/inflight"
	"github.com/jonwraymond/reqpipe/observe"
)

// Resolver maps request targets to resource families.
//
// Contract:
// - Determinism: the same target always yields the same families.
// - Concurrency: safe for concurrent use; read-only after construction.
type Resolver struct {
	tokens map[string]string // lower-case token -> family name
}

// NewResolver creates a resolver for the given family tokens. Empty tokens
// are ignored; duplicates that differ only in case collapse to the first.
func NewResolver(families ...string) *Resolver {
	r := &Resolver{tokens: make(map[string]string, len(families))}
	for _, f := range families {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		lower := strings.ToLower(f)
		if _, ok := r.tokens[lower]; !ok {
			r.tokens[lower] = f
		}
	}
	return r
}

// Families returns the sorted names of every family whose token occurs
// inside a segment of target's path. The query string and fragment are
// ignored.
func (r *Resolver) Families(target string) []string {
	path := target
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}

	seen := make(map[string]struct{})
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		if unescaped, err := url.PathUnescape(seg); err == nil {
			seg = unescaped
		}
		seg = strings.ToLower(seg)
		for token, family := range r.tokens {
			if strings.Contains(seg, token) {
				seen[family] = struct{}{}
			}
		}
	}

	families := make([]string, 0, len(seen))
	for f := range seen {
		families = append(families, f)
	}
	sort.Strings(families)
	return families
}

// Known returns the configured family names, sorted.
func (r *Resolver) Known() []string {
	names := make([]string, 0, len(r.tokens))
	for _, f := range r.tokens {
		names = append(names, f)
	}
	sort.Strings(names)
	return names
}

// Matcher returns a predicate over cache keys that reports whether a key's
// target shares a family with any of families.
func (r *Resolver) Matcher(families []string) func(key string) bool {
	want := make(map[string]struct{}, len(families))
	for _, f := range families {
		want[f] = struct{}{}
	}
	return func(key string) bool {
		for _, f := range r.Families(cache.TargetFromKey(key)) {
			if _, ok := want[f]; ok {
				return true
			}
		}
		return false
	}
}

// Config configures an Invalidator.
type Config struct {
	// Resolver derives families from targets. Required.
	Resolver *Resolver

	// Store is the cache to purge. Required.
	Store *cache.Store

	// InFlight, when set, has pending reads of purged families detached so
	// reads issued after the mutation start a fresh upstream call.
	// Default: nil (pending reads are left alone)
	InFlight *inflight.Group

	// Logger receives debug entries for each purge.
	// Default: observe.NopLogger()
	Logger observe.Logger

	// Metrics receives the number of removed entries.
	// Default: observe.NoopMetrics{}
	Metrics observe.Metrics
}

// Result describes one invalidation.
type Result struct {
	Families []string `json:"families"`
	Removed  []string `json:"removed"`
	Detached []string `json:"detached,omitempty"`
}

// Invalidator purges cache entries by resource family.
type Invalidator struct {
	resolver *Resolver
	store    *cache.Store
	inflight *inflight.Group
	logger   observe.Logger
	metrics  observe.Metrics
}

// New creates an Invalidator. It panics if Resolver or Store is nil.
func New(cfg Config) *Invalidator {
	if cfg.Resolver == nil || cfg.Store == nil {
		panic("invalidate: Resolver and Store are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.NoopMetrics{}
	}
	return &Invalidator{
		resolver: cfg.Resolver,
		store:    cfg.Store,
		inflight: cfg.InFlight,
		logger:   cfg.Logger.With(observe.F("component", "invalidate")),
		metrics:  cfg.Metrics,
	}
}

// Resolver returns the family resolver.
func (inv *Invalidator) Resolver() *Resolver {
	return inv.resolver
}

// OnMutation purges every cached key sharing a family with target. When no
// family is identified nothing is removed.
func (inv *Invalidator) OnMutation(ctx context.Context, target string) Result {
	families := inv.resolver.Families(target)
	if len(families) == 0 {
		inv.logger.Debug(ctx, "mutation matches no resource family",
			observe.F("target", target))
		return Result{}
	}

	match := inv.resolver.Matcher(families)
	res := Result{
		Families: families,
		Removed:  inv.store.Invalidate(match),
	}
	if inv.inflight != nil {
		res.Detached = inv.inflight.Forget(match)
		sort.Strings(res.Detached)
	}

	inv.metrics.RecordInvalidation(ctx, len(res.Removed))
	inv.logger.Debug(ctx, "invalidated resource families",
		observe.F("target", target),
		observe.F("families", families),
		observe.F("removed", len(res.Removed)),
		observe.F("detached", len(res.Detached)))

	return res
}
