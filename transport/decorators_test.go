package transport

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/reqpipe/observe"
	"github.com/jonwraymond/reqpipe/resilience"
)

func TestWithResilience_RetriesRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	inner := Func(func(ctx context.Context, req *Request) (*Response, error) {
		if calls.Add(1) < 3 {
			return nil, &StatusError{StatusCode: http.StatusBadGateway, Method: req.Method, Target: req.Target}
		}
		return &Response{StatusCode: 200, Body: []byte("ok")}, nil
	})

	exec, err := resilience.FromConfig(resilience.Config{
		Retry: resilience.RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond},
	}, nil, nil)
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}

	resp, err := WithResilience(inner, exec).Send(context.Background(), &Request{Method: "GET", Target: "/a"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if string(resp.Body) != "ok" || calls.Load() != 3 {
		t.Errorf("Send() = %q after %d calls, want ok after 3", resp.Body, calls.Load())
	}
}

func TestWithResilience_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	notFound := &StatusError{StatusCode: http.StatusNotFound}
	inner := Func(func(context.Context, *Request) (*Response, error) {
		calls.Add(1)
		return nil, notFound
	})

	exec, _ := resilience.FromConfig(resilience.Config{Retry: resilience.RetryPolicy{MaxAttempts: 5}}, nil, nil)
	_, err := WithResilience(inner, exec).Send(context.Background(), &Request{Method: "GET", Target: "/a"})

	if err != notFound {
		t.Errorf("Send() error = %v, want the upstream error unchanged", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestWithResilience_NilExecutor(t *testing.T) {
	inner := Func(func(context.Context, *Request) (*Response, error) { return &Response{}, nil })
	if _, ok := WithResilience(inner, nil).(Func); !ok {
		t.Error("WithResilience(nil) should return next unchanged")
	}
}

func TestWithObservability_LogsWithCacheKey(t *testing.T) {
	var buf bytes.Buffer
	mw := observe.NewMiddleware(nil, nil, observe.NewLoggerWithWriter("debug", &buf))

	boom := errors.New("connection reset")
	inner := Func(func(ctx context.Context, req *Request) (*Response, error) {
		if req.Target == "/fail" {
			return nil, boom
		}
		return &Response{StatusCode: 200, Body: []byte("x")}, nil
	})
	tr := WithObservability(inner, mw)

	ctx := ContextWithCacheKey(context.Background(), "GET:/ok")
	resp, err := tr.Send(ctx, &Request{Method: "GET", Target: "/ok"})
	if err != nil || string(resp.Body) != "x" {
		t.Fatalf("Send(/ok) = %v, %v", resp, err)
	}
	if _, err := tr.Send(context.Background(), &Request{Method: "GET", Target: "/fail"}); err != boom {
		t.Errorf("Send(/fail) error = %v, want %v unchanged", err, boom)
	}

	out := buf.String()
	for _, want := range []string{"upstream request completed", `"cache.key":"GET:/ok"`, "upstream request failed", "connection reset"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestCacheKeyFromContext(t *testing.T) {
	if got := CacheKeyFromContext(context.Background()); got != "" {
		t.Errorf("CacheKeyFromContext() = %q, want empty", got)
	}
	ctx := ContextWithCacheKey(context.Background(), "GET:/a")
	if got := CacheKeyFromContext(ctx); got != "GET:/a" {
		t.Errorf("CacheKeyFromContext() = %q, want GET:/a", got)
	}
}
