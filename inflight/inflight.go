// Package inflight collapses concurrent identical reads into one upstream call.
//
// The first caller for a key becomes the leader and performs the call; later
// callers for the same key join as followers until the leader settles. All
// of them observe the single outcome. Failures are not remembered: once a
// call settles, the next caller for the key becomes a new leader.
package inflight

import (
	"context"
	"errors"
	"sync"
)

// Sentinel errors for in-flight calls.
var (
	// ErrAlreadySettled is returned when Settle is called more than once, or
	// by a follower.
	ErrAlreadySettled = errors.New("inflight: call already settled")

	// ErrLeaderPanicked is the outcome a leader settles with when its
	// upstream call panics.
	ErrLeaderPanicked = errors.New("inflight: leader panicked")
)

// Role identifies how a caller participates in a call.
type Role int

const (
	// Leader performs the upstream call and settles it.
	Leader Role = iota
	// Follower waits for the leader's outcome.
	Follower
)

// String returns the string representation of the role.
func (r Role) String() string {
	switch r {
	case Leader:
		return "leader"
	case Follower:
		return "follower"
	default:
		return "unknown"
	}
}

// Outcome is the single result shared by every participant of a call.
type Outcome struct {
	Value []byte
	Err   error

	// Waiters is the number of participants attached when the call
	// settled, including the leader.
	Waiters int
}

// call is a pending upstream request. It is settled exactly once.
type call struct {
	key     string
	done    chan struct{}
	outcome Outcome
	sinks   []func(Outcome)
	settled bool
	waiters int
}

// Group tracks outstanding calls per key.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - At most one call per key is pending at any instant.
type Group struct {
	mu    sync.Mutex
	calls map[string]*call
}

// NewGroup creates an empty group.
func NewGroup() *Group {
	return &Group{calls: make(map[string]*call)}
}

// Handle is a caller's participation in a call.
type Handle struct {
	group *Group
	call  *call
	role  Role
}

// AcquireOrJoin returns a Leader handle if no call is pending for key,
// otherwise a Follower handle attached to the pending call.
func (g *Group) AcquireOrJoin(key string) *Handle {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.calls[key]; ok {
		c.waiters++
		return &Handle{group: g, call: c, role: Follower}
	}

	c := &call{key: key, done: make(chan struct{}), waiters: 1}
	g.calls[key] = c
	return &Handle{group: g, call: c, role: Leader}
}

// Role reports whether the handle leads or follows.
func (h *Handle) Role() Role {
	return h.role
}

// Key returns the key of the call.
func (h *Handle) Key() string {
	return h.call.key
}

// Settle records the leader's outcome, detaches the call from its key and
// notifies every registered continuation in registration order.
//
// Only the leader may settle, and only once.
func (h *Handle) Settle(value []byte, err error) error {
	if h.role != Leader {
		return ErrAlreadySettled
	}

	g := h.group
	c := h.call

	g.mu.Lock()
	if c.settled {
		g.mu.Unlock()
		return ErrAlreadySettled
	}
	c.settled = true
	c.outcome = Outcome{Value: value, Err: err, Waiters: c.waiters}
	if g.calls[c.key] == c {
		delete(g.calls, c.key)
	}
	sinks := c.sinks
	c.sinks = nil
	g.mu.Unlock()

	close(c.done)
	for _, sink := range sinks {
		sink(c.outcome)
	}
	return nil
}

// OnSettle registers fn to receive the outcome. Continuations run on the
// settling goroutine in the order they were registered. If the call has
// already settled, fn runs immediately on the caller's goroutine.
func (h *Handle) OnSettle(fn func(Outcome)) {
	g := h.group
	c := h.call

	g.mu.Lock()
	if !c.settled {
		c.sinks = append(c.sinks, fn)
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()

	fn(c.outcome)
}

// Wait blocks until the call settles or ctx is done. A cancelled context
// abandons the wait only; the call itself keeps running.
func (h *Handle) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-h.call.done:
		return h.call.outcome.Value, h.call.outcome.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed when the call settles.
func (h *Handle) Done() <-chan struct{} {
	return h.call.done
}

// Forget detaches every pending call whose key satisfies pred. Participants
// already attached still receive the detached call's outcome; the next
// caller for the key becomes a new leader. It returns the detached keys.
func (g *Group) Forget(pred func(key string) bool) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var keys []string
	for key := range g.calls {
		if pred(key) {
			delete(g.calls, key)
			keys = append(keys, key)
		}
	}
	return keys
}

// InFlight returns the number of pending calls.
func (g *Group) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// Waiters returns the number of participants attached to the pending call
// for key, including the leader, or zero if none is pending.
func (g *Group) Waiters(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.calls[key]; ok {
		return c.waiters
	}
	return 0
}
