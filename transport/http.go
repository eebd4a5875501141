package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/reqpipe/auth"
)

// DefaultMaxBodyBytes is the response size limit used when
// HTTPConfig.MaxBodyBytes is unset.
const DefaultMaxBodyBytes = 10 << 20

// HTTPConfig configures an HTTP transport.
type HTTPConfig struct {
	// BaseURL is prefixed to every target. Required.
	BaseURL string

	// Client performs the requests.
	// Default: an http.Client with a 30s timeout
	Client *http.Client

	// Credentials authenticates each request.
	// Default: auth.NoCredentials{}
	Credentials auth.CredentialProvider

	// UserAgent is sent on every request.
	// Default: "reqpipe"
	UserAgent string

	// MaxBodyBytes bounds the response body size.
	// Default: 10 MiB
	MaxBodyBytes int64

	// RequestID generates the X-Request-Id header value.
	// Default: uuid.NewString
	RequestID func() string
}

// HTTP sends requests to an HTTP API.
type HTTP struct {
	config HTTPConfig
	base   string
}

// NewHTTP creates an HTTP transport.
func NewHTTP(config HTTPConfig) (*HTTP, error) {
	base := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if base == "" {
		return nil, ErrMissingBaseURL
	}

	// Apply defaults
	if config.Client == nil {
		config.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if config.Credentials == nil {
		config.Credentials = auth.NoCredentials{}
	}
	if config.UserAgent == "" {
		config.UserAgent = "reqpipe"
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if config.RequestID == nil {
		config.RequestID = uuid.NewString
	}

	return &HTTP{config: config, base: base}, nil
}

// Send performs one HTTP round trip.
func (t *HTTP) Send(ctx context.Context, req *Request) (*Response, error) {
	if !strings.HasPrefix(req.Target, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, req.Target)
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, t.base+req.Target, body)
	if err != nil {
		return nil, fmt.Errorf("transport: build %s %s: %w", req.Method, req.Target, err)
	}

	for name, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	httpReq.Header.Set("User-Agent", t.config.UserAgent)
	httpReq.Header.Set("X-Request-Id", t.config.RequestID())

	if err := t.config.Credentials.Apply(ctx, httpReq); err != nil {
		return nil, fmt.Errorf("transport: credentials: %w", err)
	}

	resp, err := t.config.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transport: send %s %s: %w", req.Method, req.Target, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, t.config.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("transport: read %s %s: %w", req.Method, req.Target, err)
	}
	if int64(len(payload)) > t.config.MaxBodyBytes {
		return nil, fmt.Errorf("%w: %s %s", ErrBodyTooLarge, req.Method, req.Target)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Method:     req.Method,
			Target:     req.Target,
			Body:       payload,
			Header:     resp.Header,
		}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: payload}, nil
}

var _ Transport = (*HTTP)(nil)
