package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors for transport operations.
var (
	ErrMissingBaseURL = errors.New("transport: base URL is required")
	ErrInvalidTarget  = errors.New("transport: target must be an absolute path")
	ErrBodyTooLarge   = errors.New("transport: response body exceeds limit")
)

// Request is one upstream call.
type Request struct {
	Method string
	Target string // path and query, e.g. /api/Issue/7?expand=links
	Body   []byte
	Header http.Header
}

// Response is a successful (2xx) upstream answer.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport sends a request upstream.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Context: Send must honor cancellation.
//   - Errors: a non-2xx answer is a *StatusError; the response is nil
//     whenever err is non-nil.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, req *Request) (*Response, error)

// Send calls f.
func (f Func) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// StatusError is a non-2xx upstream answer.
type StatusError struct {
	StatusCode int
	Method     string
	Target     string
	Body       []byte
	Header     http.Header
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport: %s %s: %d %s", e.Method, e.Target, e.StatusCode, http.StatusText(e.StatusCode))
}

// Retryable reports whether the upstream may answer differently later:
// 408, 429 and every 5xx except 501.
func (e *StatusError) Retryable() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode == http.StatusNotImplemented:
		return false
	default:
		return e.StatusCode >= 500
	}
}

// RetryAfter returns the delay requested by the Retry-After header, in
// either delta-seconds or HTTP-date form, or 0.
func (e *StatusError) RetryAfter() time.Duration {
	return parseRetryAfter(e.Header.Get("Retry-After"), time.Now())
}

func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

// StatusCode returns the upstream status of err, or 0 when err is not a
// *StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
