package cache

import (
	"fmt"
	"regexp"
	"time"
)

// TTLRule overrides the baseline TTL for targets matching Pattern.
type TTLRule struct {
	// Pattern is a regular expression matched against the request target.
	Pattern string
	TTL     time.Duration
}

// Policy configures caching TTLs.
type Policy struct {
	// BaselineTTL is the TTL used when no override matches.
	// If zero, only targets with a matching override are cached.
	BaselineTTL time.Duration

	// MaxTTL is the maximum allowed TTL. Override TTLs are clamped to this.
	// If zero, no maximum is enforced.
	MaxTTL time.Duration

	// Overrides are consulted in order; the first match wins.
	Overrides []TTLRule
}

// DefaultPolicy returns the default caching policy.
// BaselineTTL: 5 minutes, MaxTTL: 1 hour, no overrides.
func DefaultPolicy() Policy {
	return Policy{
		BaselineTTL: 5 * time.Minute,
		MaxTTL:      1 * time.Hour,
	}
}

// NoCachePolicy returns a policy that disables caching entirely.
func NoCachePolicy() Policy {
	return Policy{}
}

// EffectiveTTL returns the TTL to use, applying defaults and clamping.
func (p Policy) EffectiveTTL(override time.Duration) time.Duration {
	// Use baseline if no override (or negative override)
	ttl := override
	if ttl <= 0 {
		ttl = p.BaselineTTL
	}

	// Clamp to MaxTTL if set
	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}

	return ttl
}

// TTLTable is the compiled, read-only form of a Policy.
type TTLTable struct {
	policy Policy
	rules  []compiledRule
}

type compiledRule struct {
	re  *regexp.Regexp
	ttl time.Duration
}

// NewTTLTable compiles the override patterns of p.
func NewTTLTable(p Policy) (*TTLTable, error) {
	rules := make([]compiledRule, 0, len(p.Overrides))
	for _, r := range p.Overrides {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, r.Pattern, err)
		}
		rules = append(rules, compiledRule{re: re, ttl: r.TTL})
	}
	return &TTLTable{policy: p, rules: rules}, nil
}

// TTL returns the TTL for target: the first matching override, otherwise
// the baseline, clamped to MaxTTL.
func (t *TTLTable) TTL(target string) time.Duration {
	for _, r := range t.rules {
		if r.re.MatchString(target) {
			return t.policy.EffectiveTTL(r.ttl)
		}
	}
	return t.policy.EffectiveTTL(0)
}
