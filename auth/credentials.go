package auth

import (
	"context"
	"net/http"
	"strings"
)

// CredentialProvider attaches credentials to outgoing upstream requests.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Apply must honor cancellation when it blocks (e.g. token refresh).
// - Errors: a failed Apply aborts the request; the error is returned unchanged.
type CredentialProvider interface {
	// Apply sets authentication headers on req.
	Apply(ctx context.Context, req *http.Request) error

	// Type returns the provider type (none, bearer, api_key, jwt).
	Type() string
}

// NoCredentials sends requests unauthenticated.
type NoCredentials struct{}

// Apply does nothing.
func (NoCredentials) Apply(context.Context, *http.Request) error { return nil }

// Type returns "none".
func (NoCredentials) Type() string { return "none" }

// BearerToken sends a static token in the Authorization header.
type BearerToken struct {
	token string
}

// NewBearerToken creates a static bearer token provider.
func NewBearerToken(token string) (*BearerToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingCredentials
	}
	return &BearerToken{token: token}, nil
}

// Apply sets "Authorization: Bearer <token>".
func (b *BearerToken) Apply(_ context.Context, req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+b.token)
	return nil
}

// Type returns "bearer".
func (b *BearerToken) Type() string { return "bearer" }

// APIKeyConfig configures the API key provider.
type APIKeyConfig struct {
	// Key is the API key value.
	Key string

	// HeaderName is the header carrying the key.
	// Default: "X-API-Key"
	HeaderName string
}

// APIKey sends a static key in a header.
type APIKey struct {
	config APIKeyConfig
}

// NewAPIKey creates an API key provider.
func NewAPIKey(config APIKeyConfig) (*APIKey, error) {
	// Apply defaults
	if config.HeaderName == "" {
		config.HeaderName = "X-API-Key"
	}
	config.Key = strings.TrimSpace(config.Key)
	if config.Key == "" {
		return nil, ErrMissingCredentials
	}
	return &APIKey{config: config}, nil
}

// Apply sets the configured header.
func (a *APIKey) Apply(_ context.Context, req *http.Request) error {
	req.Header.Set(a.config.HeaderName, a.config.Key)
	return nil
}

// Type returns "api_key".
func (a *APIKey) Type() string { return "api_key" }

var (
	_ CredentialProvider = NoCredentials{}
	_ CredentialProvider = (*BearerToken)(nil)
	_ CredentialProvider = (*APIKey)(nil)
)
