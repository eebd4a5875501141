package observe

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestMiddleware_SuccessPath(t *testing.T) {
	tracer, rec := newRecordingTracer()
	metrics, reader := newTestMetrics(t)
	var buf bytes.Buffer
	mw := NewMiddleware(tracer, metrics, NewLoggerWithWriter("debug", &buf))

	meta := RequestMeta{Method: "GET", Target: "/api/Issue/7", Key: "GET:/api/Issue/7"}

	var sawSpan bool
	err := mw.Wrap(func(ctx context.Context, m RequestMeta) error {
		sawSpan = trace.SpanContextFromContext(ctx).IsValid()
		return nil
	})(context.Background(), meta)
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}
	if !sawSpan {
		t.Error("wrapped function should run inside the request span")
	}

	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Name() != "reqpipe.send.get" {
		t.Fatalf("spans = %v, want one reqpipe.send.get", spans)
	}
	if got := sumByAttr(t, findMetric(collect(t, reader), "reqpipe.transport.requests"), "", ""); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
	if !strings.Contains(buf.String(), "upstream request completed") {
		t.Errorf("expected completion log, got %s", buf.String())
	}
}

func TestMiddleware_ErrorPropagatedUnchanged(t *testing.T) {
	tracer, _ := newRecordingTracer()
	metrics, reader := newTestMetrics(t)
	var buf bytes.Buffer
	mw := NewMiddleware(tracer, metrics, NewLoggerWithWriter("info", &buf))

	boom := errors.New("connection refused")
	err := mw.Wrap(func(context.Context, RequestMeta) error {
		return boom
	})(context.Background(), RequestMeta{Method: "GET", Target: "/x"})

	if err != boom {
		t.Errorf("Wrap() error = %v, want identical %v", err, boom)
	}
	if got := sumByAttr(t, findMetric(collect(t, reader), "reqpipe.transport.errors"), "", ""); got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}
	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Errorf("expected warn log, got %s", buf.String())
	}
}

func TestNewMiddleware_NilComponents(t *testing.T) {
	mw := NewMiddleware(nil, nil, nil)
	if err := mw.Wrap(func(context.Context, RequestMeta) error { return nil })(context.Background(), RequestMeta{}); err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}
}

func TestMiddlewareFromObserver_Nil(t *testing.T) {
	if _, err := MiddlewareFromObserver(nil); !errors.Is(err, ErrNilObserver) {
		t.Errorf("MiddlewareFromObserver(nil) error = %v, want ErrNilObserver", err)
	}
}
