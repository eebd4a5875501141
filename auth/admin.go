package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// AdminGuardConfig configures RequireAPIKey.
type AdminGuardConfig struct {
	// HeaderName is the header containing the API key.
	// Default: "X-API-Key"
	HeaderName string

	// KeyHashes are SHA-256 hex digests of the accepted keys.
	// An empty list disables the guard.
	KeyHashes []string
}

// RequireAPIKey wraps next so that only requests carrying an accepted API
// key reach it. Rejected requests get 401 Unauthorized.
//
// Usage:
//
//	mux.Handle("/admin/", auth.RequireAPIKey(cfg, adminHandler))
func RequireAPIKey(config AdminGuardConfig, next http.Handler) http.Handler {
	if len(config.KeyHashes) == 0 {
		return next
	}
	if config.HeaderName == "" {
		config.HeaderName = "X-API-Key"
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(config.HeaderName))
		if key == "" || !matchesAny(HashAPIKey(key), config.KeyHashes) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func matchesAny(hash string, hashes []string) bool {
	found := false
	for _, h := range hashes {
		// No early return: every entry is compared.
		if ConstantTimeCompare(hash, strings.ToLower(h)) {
			found = true
		}
	}
	return found
}

// HashAPIKey hashes an API key using SHA-256 for storage.
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// ConstantTimeCompare performs constant-time comparison of two strings.
func ConstantTimeCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
