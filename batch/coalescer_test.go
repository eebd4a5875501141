package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeScheduler records callbacks and runs them on demand.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	mu      sync.Mutex
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// fire runs the i-th scheduled callback, even if stopped, to model a timer
// that had already fired when Stop was called.
func (s *fakeScheduler) fire(i int) {
	s.mu.Lock()
	t := s.timers[i]
	s.mu.Unlock()

	t.mu.Lock()
	t.fired = true
	t.mu.Unlock()
	t.f()
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// recordingBatch counts aggregate calls and echoes targets.
type recordingBatch struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (r *recordingBatch) fn(ctx context.Context, targets []string) ([][]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string(nil), targets...))
	err := r.err
	r.mu.Unlock()

	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(targets))
	for i, t := range targets {
		out[i] = []byte("v:" + t)
	}
	return out, nil
}

func (r *recordingBatch) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func mustEnqueue(t *testing.T, c *Coalescer, target string) *Pending {
	t.Helper()
	p, err := c.Enqueue(target)
	if err != nil {
		t.Fatalf("Enqueue(%q) error = %v", target, err)
	}
	return p
}

func waitValue(t *testing.T, p *Pending) ([]byte, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return p.Wait(ctx)
}

func TestParentCollection(t *testing.T) {
	tests := map[string]string{
		"/api/Issue/7":          "/api/Issue",
		"/api/Issue/8?expand=1": "/api/Issue",
		"/api/Issue/":           "/api",
		"/api":                  "",
		"Issue":                 "",
		"/api/Sprint/1#frag":    "/api/Sprint",
	}
	for in, want := range tests {
		if got := ParentCollection(in); got != want {
			t.Errorf("ParentCollection(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCoalescer_OneCallPerGroup(t *testing.T) {
	sched := &fakeScheduler{}
	rb := &recordingBatch{}
	c := New(rb.fn, Config{Scheduler: sched, Debounce: 30 * time.Millisecond})

	a := mustEnqueue(t, c, "/api/Issue/1")
	b := mustEnqueue(t, c, "/api/Issue/2")
	s := mustEnqueue(t, c, "/api/Sprint/1")
	a2 := mustEnqueue(t, c, "/api/Issue/3")

	if sched.count() != 2 {
		t.Fatalf("timers started = %d, want one per group (2)", sched.count())
	}
	if sched.timers[0].d != 30*time.Millisecond {
		t.Errorf("debounce = %v, want 30ms", sched.timers[0].d)
	}
	if c.PendingGroups() != 2 || c.PendingMembers("/api/Issue") != 3 {
		t.Errorf("PendingGroups() = %d, PendingMembers = %d", c.PendingGroups(), c.PendingMembers("/api/Issue"))
	}

	sched.fire(0)

	if rb.callCount() != 1 {
		t.Fatalf("aggregate calls = %d, want 1", rb.callCount())
	}
	if got := fmt.Sprint(rb.calls[0]); got != "[/api/Issue/1 /api/Issue/2 /api/Issue/3]" {
		t.Errorf("targets = %s, want enqueue order", got)
	}

	for _, p := range []*Pending{a, b, a2} {
		v, err := waitValue(t, p)
		if err != nil || string(v) != "v:"+p.Target() {
			t.Errorf("%s = (%q, %v), want its own result", p.Target(), v, err)
		}
	}

	select {
	case <-s.Done():
		t.Error("other group must not flush with the first")
	default:
	}

	sched.fire(1)
	if v, _ := waitValue(t, s); string(v) != "v:/api/Sprint/1" {
		t.Errorf("sprint member = %q", v)
	}
	if rb.callCount() != 2 {
		t.Errorf("aggregate calls = %d, want 2", rb.callCount())
	}
}

func TestCoalescer_ResultsMatchedByIndex(t *testing.T) {
	sched := &fakeScheduler{}
	// Results produced in reverse completion order still land by index.
	fn := PerTarget(func(ctx context.Context, target string) ([]byte, error) {
		if strings.HasSuffix(target, "/1") {
			time.Sleep(5 * time.Millisecond)
		}
		return []byte(target), nil
	}, 0)
	c := New(fn, Config{Scheduler: sched})

	first := mustEnqueue(t, c, "/api/Issue/1")
	second := mustEnqueue(t, c, "/api/Issue/2")
	sched.fire(0)

	if v, _ := waitValue(t, first); string(v) != "/api/Issue/1" {
		t.Errorf("first = %q", v)
	}
	if v, _ := waitValue(t, second); string(v) != "/api/Issue/2" {
		t.Errorf("second = %q", v)
	}
}

func TestCoalescer_FailureSharedByGroup(t *testing.T) {
	sched := &fakeScheduler{}
	boom := errors.New("upstream 502")
	rb := &recordingBatch{err: boom}
	c := New(rb.fn, Config{Scheduler: sched})

	members := []*Pending{
		mustEnqueue(t, c, "/api/Issue/1"),
		mustEnqueue(t, c, "/api/Issue/2"),
	}
	sched.fire(0)

	for _, p := range members {
		if _, err := waitValue(t, p); !errors.Is(err, boom) {
			t.Errorf("%s error = %v, want %v", p.Target(), err, boom)
		}
	}
}

func TestCoalescer_PerTargetFailureFailsGroup(t *testing.T) {
	sched := &fakeScheduler{}
	boom := errors.New("not found")
	fn := PerTarget(func(ctx context.Context, target string) ([]byte, error) {
		if target == "/api/Issue/2" {
			return nil, boom
		}
		return []byte("ok"), nil
	}, 2)
	c := New(fn, Config{Scheduler: sched})

	a := mustEnqueue(t, c, "/api/Issue/1")
	b := mustEnqueue(t, c, "/api/Issue/2")
	sched.fire(0)

	for _, p := range []*Pending{a, b} {
		if _, err := waitValue(t, p); !errors.Is(err, boom) {
			t.Errorf("%s error = %v, want %v", p.Target(), err, boom)
		}
	}
}

func TestCoalescer_ResultMismatch(t *testing.T) {
	sched := &fakeScheduler{}
	c := New(func(ctx context.Context, targets []string) ([][]byte, error) {
		return [][]byte{[]byte("only one")}, nil
	}, Config{Scheduler: sched})

	a := mustEnqueue(t, c, "/api/Issue/1")
	_ = mustEnqueue(t, c, "/api/Issue/2")
	sched.fire(0)

	if _, err := waitValue(t, a); !errors.Is(err, ErrResultMismatch) {
		t.Errorf("error = %v, want ErrResultMismatch", err)
	}
}

func TestCoalescer_FlushesAtMostOnce(t *testing.T) {
	sched := &fakeScheduler{}
	rb := &recordingBatch{}
	c := New(rb.fn, Config{Scheduler: sched})

	p := mustEnqueue(t, c, "/api/Issue/1")

	if !c.FlushNow(context.Background(), "/api/Issue") {
		t.Fatal("FlushNow() = false, want true")
	}
	if !sched.timers[0].stopped {
		t.Error("FlushNow should stop the group's timer")
	}

	// A late timer callback for the flushed group is ignored.
	sched.fire(0)

	if rb.callCount() != 1 {
		t.Errorf("aggregate calls = %d, want 1", rb.callCount())
	}
	if _, err := waitValue(t, p); err != nil {
		t.Errorf("member error = %v", err)
	}
	if c.FlushNow(context.Background(), "/api/Issue") {
		t.Error("FlushNow on an empty key should report false")
	}
}

func TestCoalescer_MemberAfterFlushStartsNewGroup(t *testing.T) {
	sched := &fakeScheduler{}
	rb := &recordingBatch{}
	c := New(rb.fn, Config{Scheduler: sched})

	_ = mustEnqueue(t, c, "/api/Issue/1")
	sched.fire(0)

	late := mustEnqueue(t, c, "/api/Issue/2")
	if sched.count() != 2 {
		t.Fatalf("timers = %d, want a fresh timer for the new group", sched.count())
	}
	sched.fire(1)

	if rb.callCount() != 2 {
		t.Fatalf("aggregate calls = %d, want 2", rb.callCount())
	}
	if got := fmt.Sprint(rb.calls[1]); got != "[/api/Issue/2]" {
		t.Errorf("second group = %s, want [/api/Issue/2]", got)
	}
	if v, _ := waitValue(t, late); string(v) != "v:/api/Issue/2" {
		t.Errorf("late member = %q", v)
	}
}

func TestCoalescer_FlushAll(t *testing.T) {
	sched := &fakeScheduler{}
	rb := &recordingBatch{}
	c := New(rb.fn, Config{Scheduler: sched})

	members := []*Pending{
		mustEnqueue(t, c, "/api/Issue/1"),
		mustEnqueue(t, c, "/api/Sprint/1"),
		mustEnqueue(t, c, "/api/Label/1"),
	}

	if n := c.FlushAll(context.Background()); n != 3 {
		t.Errorf("FlushAll() = %d, want 3", n)
	}
	for _, p := range members {
		select {
		case <-p.Done():
		default:
			t.Errorf("%s not resolved after FlushAll", p.Target())
		}
	}
	if c.PendingGroups() != 0 {
		t.Errorf("PendingGroups() = %d, want 0", c.PendingGroups())
	}
}

func TestCoalescer_MaxGroupSize(t *testing.T) {
	sched := &fakeScheduler{}
	rb := &recordingBatch{}
	c := New(rb.fn, Config{Scheduler: sched, MaxGroupSize: 2})

	a := mustEnqueue(t, c, "/api/Issue/1")
	b := mustEnqueue(t, c, "/api/Issue/2")

	if _, err := waitValue(t, a); err != nil {
		t.Fatalf("full group should flush without its timer: %v", err)
	}
	if _, err := waitValue(t, b); err != nil {
		t.Fatalf("member error = %v", err)
	}
	if !sched.timers[0].stopped {
		t.Error("size-triggered flush should stop the timer")
	}
}

func TestCoalescer_Close(t *testing.T) {
	sched := &fakeScheduler{}
	rb := &recordingBatch{}
	c := New(rb.fn, Config{Scheduler: sched})

	p := mustEnqueue(t, c, "/api/Issue/1")

	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := waitValue(t, p); err != nil {
		t.Errorf("member error = %v", err)
	}
	if _, err := c.Enqueue("/api/Issue/2"); !errors.Is(err, ErrClosed) {
		t.Errorf("Enqueue after Close error = %v, want ErrClosed", err)
	}
}

func TestCoalescer_EmptyTarget(t *testing.T) {
	c := New((&recordingBatch{}).fn, Config{Scheduler: &fakeScheduler{}})
	if _, err := c.Enqueue(""); !errors.Is(err, ErrEmptyTarget) {
		t.Errorf("Enqueue(\"\") error = %v, want ErrEmptyTarget", err)
	}
}

func TestCoalescer_SystemScheduler(t *testing.T) {
	var calls atomic.Int32
	c := New(func(ctx context.Context, targets []string) ([][]byte, error) {
		calls.Add(1)
		out := make([][]byte, len(targets))
		return out, nil
	}, Config{Debounce: 50 * time.Millisecond})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		p := mustEnqueue(t, c, fmt.Sprintf("/api/Issue/%d", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = waitValue(t, p)
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("aggregate calls = %d, want 1", got)
	}
}

func TestPending_WaitHonorsContext(t *testing.T) {
	c := New((&recordingBatch{}).fn, Config{Scheduler: &fakeScheduler{}})
	p := mustEnqueue(t, c, "/api/Issue/1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want Canceled", err)
	}
}
