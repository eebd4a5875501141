package cache

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Kind is the coarse category of a request method.
type Kind int

const (
	// KindRead is an idempotent read (GET, HEAD).
	KindRead Kind = iota
	// KindMutation changes server state (POST, PUT, PATCH, DELETE).
	KindMutation
	// KindOther is neither cached nor invalidating (OPTIONS, TRACE, ...).
	KindOther
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindRead:
		return "read"
	case KindMutation:
		return "mutation"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// KindOf classifies an HTTP method. Matching is case-insensitive.
func KindOf(method string) Kind {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead:
		return KindRead
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return KindMutation
	default:
		return KindOther
	}
}

// Classification is the outcome of Classifier.Classify.
type Classification struct {
	Kind      Kind
	Cacheable bool
	TTL       time.Duration
}

// ClassifierConfig configures a Classifier.
type ClassifierConfig struct {
	// CacheablePatterns are regular expressions matched against the target.
	// A read is cacheable if any pattern matches. An empty list makes every
	// read cacheable.
	CacheablePatterns []string

	// Policy is the TTL policy table.
	Policy Policy
}

// Classifier decides whether a request is eligible for caching and with
// which TTL. It is a pure function of its configuration and input.
type Classifier struct {
	patterns []*regexp.Regexp
	ttl      *TTLTable
}

// NewClassifier compiles config into a Classifier.
func NewClassifier(config ClassifierConfig) (*Classifier, error) {
	patterns := make([]*regexp.Regexp, 0, len(config.CacheablePatterns))
	for _, p := range config.CacheablePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, p, err)
		}
		patterns = append(patterns, re)
	}

	ttl, err := NewTTLTable(config.Policy)
	if err != nil {
		return nil, err
	}

	return &Classifier{patterns: patterns, ttl: ttl}, nil
}

// Classify returns the kind of the request and, for cacheable reads, the TTL.
// Mutations and other methods are never cacheable.
func (c *Classifier) Classify(method, target string) Classification {
	kind := KindOf(method)
	if kind != KindRead {
		return Classification{Kind: kind}
	}

	if !c.matches(target) {
		return Classification{Kind: kind}
	}

	ttl := c.ttl.TTL(target)
	if ttl <= 0 {
		return Classification{Kind: kind}
	}

	return Classification{Kind: kind, Cacheable: true, TTL: ttl}
}

func (c *Classifier) matches(target string) bool {
	if len(c.patterns) == 0 {
		return true
	}
	for _, re := range c.patterns {
		if re.MatchString(target) {
			return true
		}
	}
	return false
}
