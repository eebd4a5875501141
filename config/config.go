package config

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/jonwraymond/reqpipe/auth"
	"github.com/jonwraymond/reqpipe/cache"
	"github.com/jonwraymond/reqpipe/observe"
	"github.com/jonwraymond/reqpipe/pipeline"
	"github.com/jonwraymond/reqpipe/resilience"
	"github.com/jonwraymond/reqpipe/secret"
	"github.com/jonwraymond/reqpipe/transport"
)

// Config is the complete reqpiped configuration.
type Config struct {
	Cache     CacheConfig     `yaml:"cache"`
	Families  []string        `yaml:"families"`
	Batch     BatchConfig     `yaml:"batch"`
	Transport TransportConfig `yaml:"transport"`
	Observe   observe.Config  `yaml:"observe"`
	Server    ServerConfig    `yaml:"server"`
}

// CacheConfig configures cacheability and the cache store.
type CacheConfig struct {
	// MaxEntries bounds the store.
	// Default: cache.DefaultMaxEntries
	MaxEntries int `yaml:"max_entries"`

	// BaselineTTL applies to cacheable reads without a matching override.
	// Default: 5 minutes
	BaselineTTL time.Duration `yaml:"baseline_ttl"`

	// MaxTTL caps every TTL. Zero means no cap.
	// Default: 1 hour
	MaxTTL time.Duration `yaml:"max_ttl"`

	// CacheablePatterns restrict caching to matching targets. Empty means
	// every read is cacheable.
	CacheablePatterns []string `yaml:"cacheable_patterns"`

	// TTLOverrides are consulted in order; the first match wins.
	TTLOverrides []TTLOverride `yaml:"ttl_overrides"`
}

// TTLOverride sets the TTL of targets matching Pattern.
type TTLOverride struct {
	Pattern string        `yaml:"pattern"`
	TTL     time.Duration `yaml:"ttl"`
}

// BatchConfig configures the batch coalescer.
type BatchConfig struct {
	// Debounce is the batching window.
	// Default: batch.DefaultDebounce
	Debounce time.Duration `yaml:"debounce"`

	// MaxGroupSize flushes a group early once it has this many members.
	// Default: 0 (no limit)
	MaxGroupSize int `yaml:"max_group_size"`

	// Concurrency bounds concurrent reads within one flushed group.
	// Default: 0 (no limit)
	Concurrency int `yaml:"concurrency"`
}

// TransportConfig configures the upstream HTTP transport.
type TransportConfig struct {
	// BaseURL is the upstream API root. Required.
	BaseURL string `yaml:"base_url"`

	// Timeout bounds one HTTP exchange, body included.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// UserAgent is sent with every request.
	// Default: "reqpipe"
	UserAgent string `yaml:"user_agent"`

	// MaxBodyBytes bounds upstream response bodies.
	// Default: transport.DefaultMaxBodyBytes
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// Credentials authenticate upstream requests.
	Credentials auth.CredentialConfig `yaml:"credentials"`

	// Resilience patterns wrap the transport. All are off by default.
	Resilience resilience.Config `yaml:"resilience"`
}

// ServerConfig configures the reqpiped listener.
type ServerConfig struct {
	// Listen is the listen address.
	// Default: ":8080"
	Listen string `yaml:"listen"`

	// ProxyPrefix is the path prefix of proxied requests.
	// Default: "/proxy/"
	ProxyPrefix string `yaml:"proxy_prefix"`

	// AdminKeyHashes are SHA-256 hex digests of the admin API keys. Empty
	// leaves the admin endpoints open.
	AdminKeyHashes []string `yaml:"admin_key_hashes"`

	// AdminKeyHeader carries the admin API key.
	// Default: "X-API-Key"
	AdminKeyHeader string `yaml:"admin_key_header"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the configuration used for every value a file leaves
// unset.
func Default() Config {
	policy := cache.DefaultPolicy()
	return Config{
		Cache: CacheConfig{
			MaxEntries:  cache.DefaultMaxEntries,
			BaselineTTL: policy.BaselineTTL,
			MaxTTL:      policy.MaxTTL,
		},
		Transport: TransportConfig{
			Timeout:   30 * time.Second,
			UserAgent: "reqpipe",
		},
		Observe: observe.Config{
			ServiceName: "reqpiped",
			Metrics:     observe.MetricsConfig{Enabled: true, Exporter: "prometheus"},
			Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
		},
		Server: ServerConfig{
			Listen:          ":8080",
			ProxyPrefix:     "/proxy/",
			AdminKeyHeader:  "X-API-Key",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Parse decodes YAML over Default. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Load reads the file at path and returns the effective configuration. An
// empty path starts from Default, so a configuration may come from the
// environment alone.
func Load(ctx context.Context, path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if cfg, err = Parse(data); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	resolver, err := secret.NewDefaultResolver()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.ResolveSecrets(ctx, resolver); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ResolveSecrets resolves environment and secretref references in the
// base URL and credential fields.
func (c *Config) ResolveSecrets(ctx context.Context, r *secret.Resolver) error {
	creds := &c.Transport.Credentials
	return r.ResolveFields(ctx, map[string]*string{
		"transport.base_url":                &c.Transport.BaseURL,
		"transport.credentials.token":       &creds.Token,
		"transport.credentials.key":         &creds.Key,
		"transport.credentials.signing_key": &creds.SigningKey,
	})
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Transport.BaseURL == "" {
		return ErrMissingBaseURL
	}
	if u, err := url.Parse(c.Transport.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: transport.base_url %q is not an absolute URL", ErrInvalidConfig, c.Transport.BaseURL)
	}

	switch {
	case c.Cache.MaxEntries < 0:
		return fmt.Errorf("%w: negative cache.max_entries", ErrInvalidConfig)
	case c.Cache.BaselineTTL < 0 || c.Cache.MaxTTL < 0:
		return fmt.Errorf("%w: negative cache TTL", ErrInvalidConfig)
	case c.Batch.Debounce < 0:
		return fmt.Errorf("%w: negative batch.debounce", ErrInvalidConfig)
	case c.Batch.MaxGroupSize < 0 || c.Batch.Concurrency < 0:
		return fmt.Errorf("%w: negative batch limit", ErrInvalidConfig)
	case c.Transport.Timeout < 0:
		return fmt.Errorf("%w: negative transport.timeout", ErrInvalidConfig)
	}

	for _, p := range c.Cache.CacheablePatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("%w: cache.cacheable_patterns %q: %v", ErrInvalidConfig, p, err)
		}
	}
	for _, o := range c.Cache.TTLOverrides {
		if _, err := regexp.Compile(o.Pattern); err != nil {
			return fmt.Errorf("%w: cache.ttl_overrides %q: %v", ErrInvalidConfig, o.Pattern, err)
		}
		if o.TTL < 0 {
			return fmt.Errorf("%w: cache.ttl_overrides %q: negative ttl", ErrInvalidConfig, o.Pattern)
		}
	}

	if _, err := auth.NewCredentialProvider(c.Transport.Credentials); err != nil {
		return fmt.Errorf("%w: transport.credentials: %w", ErrInvalidConfig, err)
	}
	if err := c.Transport.Resilience.Validate(); err != nil {
		return fmt.Errorf("%w: transport: %w", ErrInvalidConfig, err)
	}
	if err := c.Observe.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Policy returns the cache TTL policy.
func (c *Config) Policy() cache.Policy {
	rules := make([]cache.TTLRule, len(c.Cache.TTLOverrides))
	for i, o := range c.Cache.TTLOverrides {
		rules[i] = cache.TTLRule{Pattern: o.Pattern, TTL: o.TTL}
	}
	return cache.Policy{
		BaselineTTL: c.Cache.BaselineTTL,
		MaxTTL:      c.Cache.MaxTTL,
		Overrides:   rules,
	}
}

// PipelineConfig returns the pipeline settings. Logger and Metrics are left
// for the caller.
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		CacheablePatterns: c.Cache.CacheablePatterns,
		Policy:            c.Policy(),
		MaxEntries:        c.Cache.MaxEntries,
		Families:          c.Families,
		BatchDebounce:     c.Batch.Debounce,
		BatchMaxGroupSize: c.Batch.MaxGroupSize,
		BatchConcurrency:  c.Batch.Concurrency,
	}
}

// HTTPConfig returns the HTTP transport settings with credentials built
// from the credentials section.
func (c *Config) HTTPConfig() (transport.HTTPConfig, error) {
	creds, err := auth.NewCredentialProvider(c.Transport.Credentials)
	if err != nil {
		return transport.HTTPConfig{}, err
	}
	return transport.HTTPConfig{
		BaseURL:      c.Transport.BaseURL,
		Client:       &http.Client{Timeout: c.Transport.Timeout},
		Credentials:  creds,
		UserAgent:    c.Transport.UserAgent,
		MaxBodyBytes: c.Transport.MaxBodyBytes,
	}, nil
}

// AdminGuard returns the admin API key guard settings.
func (c *Config) AdminGuard() auth.AdminGuardConfig {
	return auth.AdminGuardConfig{
		HeaderName: c.Server.AdminKeyHeader,
		KeyHashes:  c.Server.AdminKeyHashes,
	}
}
