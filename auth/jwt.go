package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// JWTConfig configures the JWT credential provider.
type JWTConfig struct {
	// SigningKey is the HMAC key used to sign tokens. Required.
	SigningKey []byte

	// Issuer is the iss claim.
	Issuer string

	// Audience is the aud claim.
	Audience string

	// Subject is the sub claim.
	Subject string

	// TTL is the lifetime of each minted token.
	// Default: 5 minutes
	TTL time.Duration

	// RefreshBefore renews a token this long before it expires.
	// Default: 30 seconds
	RefreshBefore time.Duration

	// Clock returns the current time.
	// Default: time.Now
	Clock func() time.Time
}

// JWTProvider mints short-lived HS256 tokens and sends them as bearer
// tokens. A token is reused until it is within RefreshBefore of expiry;
// concurrent refreshes collapse into one signing.
type JWTProvider struct {
	config JWTConfig

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	sfGroup singleflight.Group
}

// NewJWTProvider creates a JWT provider.
func NewJWTProvider(config JWTConfig) (*JWTProvider, error) {
	if len(config.SigningKey) == 0 {
		return nil, ErrMissingSigningKey
	}

	// Apply defaults
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}
	if config.RefreshBefore <= 0 {
		config.RefreshBefore = 30 * time.Second
	}
	if config.RefreshBefore >= config.TTL {
		config.RefreshBefore = config.TTL / 2
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	return &JWTProvider{config: config}, nil
}

// Apply sets "Authorization: Bearer <jwt>".
func (p *JWTProvider) Apply(ctx context.Context, req *http.Request) error {
	token, err := p.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// Type returns "jwt".
func (p *JWTProvider) Type() string { return "jwt" }

// Token returns a valid token, minting a new one if needed.
func (p *JWTProvider) Token(ctx context.Context) (string, error) {
	now := p.config.Clock()

	p.mu.RLock()
	token, expiresAt := p.token, p.expiresAt
	p.mu.RUnlock()

	if token != "" && now.Before(expiresAt.Add(-p.config.RefreshBefore)) {
		return token, nil
	}

	ch := p.sfGroup.DoChan("mint", func() (any, error) {
		return p.mint()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *JWTProvider) mint() (string, error) {
	now := p.config.Clock()
	expiresAt := now.Add(p.config.TTL)

	claims := jwt.RegisteredClaims{
		Issuer:    p.config.Issuer,
		Subject:   p.config.Subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	if p.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{p.config.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.config.SigningKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenSigning, err)
	}

	p.mu.Lock()
	p.token = signed
	p.expiresAt = expiresAt
	p.mu.Unlock()

	return signed, nil
}

// Ensure JWTProvider implements CredentialProvider
var _ CredentialProvider = (*JWTProvider)(nil)
