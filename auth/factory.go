package auth

import (
	"fmt"
	"time"
)

// CredentialConfig selects and configures a CredentialProvider.
type CredentialConfig struct {
	// Type is one of none, bearer, api_key, jwt.
	// Default: none
	Type string `yaml:"type"`

	// Token is the static bearer token (bearer).
	Token string `yaml:"token"`

	// Key is the API key (api_key).
	Key string `yaml:"key"`

	// Header is the API key header (api_key).
	// Default: "X-API-Key"
	Header string `yaml:"header"`

	// SigningKey is the HMAC key (jwt).
	SigningKey string `yaml:"signing_key"`

	// Issuer, Audience and Subject are the registered claims (jwt).
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
	Subject  string `yaml:"subject"`

	// TTL is the token lifetime (jwt).
	// Default: 5 minutes
	TTL time.Duration `yaml:"ttl"`
}

// NewCredentialProvider builds the provider selected by cfg.Type.
func NewCredentialProvider(cfg CredentialConfig) (CredentialProvider, error) {
	switch cfg.Type {
	case "", "none":
		return NoCredentials{}, nil
	case "bearer":
		return NewBearerToken(cfg.Token)
	case "api_key":
		return NewAPIKey(APIKeyConfig{Key: cfg.Key, HeaderName: cfg.Header})
	case "jwt":
		return NewJWTProvider(JWTConfig{
			SigningKey: []byte(cfg.SigningKey),
			Issuer:     cfg.Issuer,
			Audience:   cfg.Audience,
			Subject:    cfg.Subject,
			TTL:        cfg.TTL,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCredential, cfg.Type)
	}
}
