package secret

import (
	"errors"
	"strings"
	"testing"
)

func TestExpandEnvStrict(t *testing.T) {
	t.Setenv("RQP_HOST", "tracker.local")
	t.Setenv("RQP_EMPTY", "")

	tests := []struct {
		in   string
		want string
	}{
		{"https://${RQP_HOST}", "https://tracker.local"},
		{"$RQP_HOST:443", "tracker.local:443"},
		{"${RQP_PORT:-8443}", "8443"},
		{"${RQP_EMPTY:-fallback}", "fallback"},
		{"${RQP_HOST:-fallback}", "tracker.local"},
		{"$$${RQP_HOST}", "$tracker.local"},
		{"$RQP_UNSET_PLAIN", ""},
		{"no dollars", "no dollars"},
	}

	for _, tt := range tests {
		got, err := ExpandEnvStrict(tt.in)
		if err != nil {
			t.Errorf("ExpandEnvStrict(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ExpandEnvStrict(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExpandEnvStrict_ReportsEveryMissingVar(t *testing.T) {
	_, err := ExpandEnvStrict("${RQP_MISSING_B} ${RQP_MISSING_A} ${RQP_MISSING_B}")
	if !errors.Is(err, ErrMissingEnv) {
		t.Fatalf("ExpandEnvStrict() error = %v, want ErrMissingEnv", err)
	}
	if !strings.HasSuffix(err.Error(), ": RQP_MISSING_A, RQP_MISSING_B") {
		t.Errorf("error = %q, want sorted unique names", err)
	}
}
