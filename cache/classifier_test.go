package cache

import (
	"errors"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	tests := map[string]Kind{
		"GET":     KindRead,
		"head":    KindRead,
		"POST":    KindMutation,
		"put":     KindMutation,
		"PATCH":   KindMutation,
		"DELETE":  KindMutation,
		"OPTIONS": KindOther,
		"":        KindOther,
	}
	for method, want := range tests {
		if got := KindOf(method); got != want {
			t.Errorf("KindOf(%q) = %v, want %v", method, got, want)
		}
	}
}

func TestClassifier_Classify(t *testing.T) {
	c, err := NewClassifier(ClassifierConfig{
		CacheablePatterns: []string{`^/api/Issue`, `^/api/Sprint`},
		Policy: Policy{
			BaselineTTL: time.Minute,
			MaxTTL:      10 * time.Minute,
			Overrides: []TTLRule{
				{Pattern: `/api/Sprint/active`, TTL: 5 * time.Second},
				{Pattern: `/api/Sprint`, TTL: time.Hour},
			},
		},
	})
	if err != nil {
		t.Fatalf("NewClassifier() error = %v", err)
	}

	tests := []struct {
		name      string
		method    string
		target    string
		kind      Kind
		cacheable bool
		ttl       time.Duration
	}{
		{"baseline ttl", "GET", "/api/Issue/7", KindRead, true, time.Minute},
		{"first override wins", "GET", "/api/Sprint/active", KindRead, true, 5 * time.Second},
		{"override clamped", "GET", "/api/Sprint/3", KindRead, true, 10 * time.Minute},
		{"unmatched read", "GET", "/api/Label/1", KindRead, false, 0},
		{"mutation never cacheable", "POST", "/api/Issue/7", KindMutation, false, 0},
		{"other passes through", "OPTIONS", "/api/Issue/7", KindOther, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.method, tt.target)
			if got.Kind != tt.kind || got.Cacheable != tt.cacheable || got.TTL != tt.ttl {
				t.Errorf("Classify() = %+v, want {Kind:%v Cacheable:%v TTL:%v}",
					got, tt.kind, tt.cacheable, tt.ttl)
			}
		})
	}
}

func TestClassifier_EmptyPatternsCacheAllReads(t *testing.T) {
	c, err := NewClassifier(ClassifierConfig{Policy: DefaultPolicy()})
	if err != nil {
		t.Fatalf("NewClassifier() error = %v", err)
	}

	got := c.Classify("GET", "/anything")
	if !got.Cacheable || got.TTL != 5*time.Minute {
		t.Errorf("Classify() = %+v, want cacheable with 5m TTL", got)
	}
}

func TestClassifier_NoCachePolicy(t *testing.T) {
	c, err := NewClassifier(ClassifierConfig{Policy: NoCachePolicy()})
	if err != nil {
		t.Fatalf("NewClassifier() error = %v", err)
	}

	if got := c.Classify("GET", "/x"); got.Cacheable {
		t.Errorf("Classify() = %+v, want not cacheable", got)
	}
}

func TestClassifier_InvalidPattern(t *testing.T) {
	_, err := NewClassifier(ClassifierConfig{CacheablePatterns: []string{"("}})
	if !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("NewClassifier() error = %v, want ErrInvalidPattern", err)
	}

	_, err = NewClassifier(ClassifierConfig{Policy: Policy{Overrides: []TTLRule{{Pattern: "["}}}})
	if !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("NewClassifier() error = %v, want ErrInvalidPattern", err)
	}
}

func TestPolicy_EffectiveTTL(t *testing.T) {
	p := Policy{BaselineTTL: 5 * time.Minute, MaxTTL: 10 * time.Minute}

	if got := p.EffectiveTTL(0); got != 5*time.Minute {
		t.Errorf("EffectiveTTL(0) = %v, want 5m", got)
	}
	if got := p.EffectiveTTL(3 * time.Minute); got != 3*time.Minute {
		t.Errorf("EffectiveTTL(3m) = %v, want 3m", got)
	}
	if got := p.EffectiveTTL(15 * time.Minute); got != 10*time.Minute {
		t.Errorf("EffectiveTTL(15m) = %v, want 10m (clamped to MaxTTL)", got)
	}
}
