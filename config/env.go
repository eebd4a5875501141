package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "REQPIPE_"

// LookupFunc looks up an environment variable.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides c with the REQPIPE_* variables found by lookup:
//
//	REQPIPE_BASE_URL            transport.base_url
//	REQPIPE_LISTEN              server.listen
//	REQPIPE_LOG_LEVEL           observe.logging.level
//	REQPIPE_MAX_ENTRIES         cache.max_entries
//	REQPIPE_BASELINE_TTL        cache.baseline_ttl
//	REQPIPE_BATCH_DEBOUNCE      batch.debounce
//	REQPIPE_FAMILIES            families (comma separated)
//	REQPIPE_CREDENTIALS_TYPE    transport.credentials.type
//	REQPIPE_CREDENTIALS_TOKEN   transport.credentials.token
//	REQPIPE_ADMIN_KEY_HASHES    server.admin_key_hashes (comma separated)
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	e := envReader{lookup: lookup}

	e.setString("BASE_URL", &c.Transport.BaseURL)
	e.setString("LISTEN", &c.Server.Listen)
	e.setString("LOG_LEVEL", &c.Observe.Logging.Level)
	e.setInt("MAX_ENTRIES", &c.Cache.MaxEntries)
	e.setDuration("BASELINE_TTL", &c.Cache.BaselineTTL)
	e.setDuration("BATCH_DEBOUNCE", &c.Batch.Debounce)
	e.setList("FAMILIES", &c.Families)
	e.setString("CREDENTIALS_TYPE", &c.Transport.Credentials.Type)
	e.setString("CREDENTIALS_TOKEN", &c.Transport.Credentials.Token)
	e.setList("ADMIN_KEY_HASHES", &c.Server.AdminKeyHashes)

	return e.err
}

// envReader records the first parse failure and skips the rest.
type envReader struct {
	lookup LookupFunc
	err    error
}

func (e *envReader) get(name string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v, ok := e.lookup(EnvPrefix + name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) setString(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) setInt(name string, dst *int) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.err = fmt.Errorf("%w: %s%s=%q", ErrInvalidEnv, EnvPrefix, name, v)
		return
	}
	*dst = n
}

func (e *envReader) setDuration(name string, dst *time.Duration) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.err = fmt.Errorf("%w: %s%s=%q", ErrInvalidEnv, EnvPrefix, name, v)
		return
	}
	*dst = d
}

func (e *envReader) setList(name string, dst *[]string) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}
