package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Keyer derives cache keys from a request method and target.
//
// Contract:
// - Determinism: logically identical requests must produce the same key.
// - Uniqueness: distinct requests must never produce the same key.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	// Key generates a cache key from the method and full target.
	Key(method, target string) (string, error)
}

// DefaultKeyer builds readable keys of the form METHOD:target.
//
// The query string is canonicalized: parameters are ordered by name, values
// of a repeated parameter keep their original order, and the fragment is
// dropped. Everything else in the target is kept verbatim.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a new default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key generates a deterministic cache key.
// Format: <METHOD>:<target without fragment, sorted query>
func (k *DefaultKeyer) Key(method, target string) (string, error) {
	canonical, err := CanonicalTarget(target)
	if err != nil {
		return "", err
	}

	key := strings.ToUpper(method) + ":" + canonical
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// CanonicalTarget normalizes the query portion of target.
func CanonicalTarget(target string) (string, error) {
	if strings.TrimSpace(target) == "" {
		return "", ErrInvalidKey
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("cache: parse target %q: %w", target, err)
	}

	base := target
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	if u.RawQuery == "" {
		return base, nil
	}

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return "", fmt.Errorf("cache: parse query of %q: %w", target, err)
	}
	return base + "?" + encodeSorted(query), nil
}

// encodeSorted is url.Values.Encode with an explicit stable sort so the
// result does not depend on map iteration.
func encodeSorted(v url.Values) string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		escaped := url.QueryEscape(name)
		for _, value := range v[name] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(escaped)
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(value))
		}
	}
	return b.String()
}

// TargetFromKey returns the target portion of a key produced by DefaultKeyer.
func TargetFromKey(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[i+1:]
	}
	return key
}

// Ensure DefaultKeyer implements Keyer
var _ Keyer = (*DefaultKeyer)(nil)
