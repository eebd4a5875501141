package secret

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestEnvProvider_Resolve(t *testing.T) {
	t.Setenv("REQPIPE_API_KEY", "k-123")

	got, err := EnvProvider{}.Resolve(context.Background(), "REQPIPE_API_KEY")
	if err != nil || got != "k-123" {
		t.Fatalf("Resolve() = (%q, %v), want (k-123, nil)", got, err)
	}

	if _, err := (EnvProvider{}).Resolve(context.Background(), "REQPIPE_DEFINITELY_UNSET"); !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("Resolve() error = %v, want ErrSecretNotFound", err)
	}
}

func TestFileProvider_Resolve(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "jwt_key"), []byte("signing-key\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		p    FileProvider
		ref  string
	}{
		{"absolute", FileProvider{}, filepath.Join(dir, "jwt_key")},
		{"relative to dir", FileProvider{Dir: dir}, "jwt_key"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.p.Resolve(context.Background(), tc.ref)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != "signing-key" {
				t.Errorf("Resolve() = %q, want trailing newline trimmed", got)
			}
		})
	}

	if _, err := (FileProvider{Dir: dir}).Resolve(context.Background(), "missing"); !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("Resolve() error = %v, want ErrSecretNotFound", err)
	}
}
