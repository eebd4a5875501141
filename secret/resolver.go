package secret

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// RefPrefix marks a value, or part of one, as a secret reference.
const RefPrefix = "secretref:"

// Ref names one secret held by a provider.
type Ref struct {
	Provider string
	Name     string
}

// String returns the reference in "secretref:<provider>:<name>" form.
func (r Ref) String() string {
	return RefPrefix + r.Provider + ":" + r.Name
}

// ParseRef parses a value that is exactly one reference.
func ParseRef(value string) (Ref, bool) {
	rest, ok := strings.CutPrefix(value, RefPrefix)
	if !ok {
		return Ref{}, false
	}
	provider, name, ok := strings.Cut(rest, ":")
	if !ok || provider == "" || name == "" || strings.ContainsAny(name, " \t\n") {
		return Ref{}, false
	}
	return Ref{Provider: provider, Name: name}, true
}

var embeddedRef = regexp.MustCompile(`secretref:([^:\s]+):(\S+)`)

// Resolver expands configuration values into credential material.
//
// Contract:
// - Concurrency: safe for concurrent use once providers are registered.
// - A strict Resolver rejects references that resolve to "".
type Resolver struct {
	providers map[string]Provider
	strict    bool
}

// NewResolver creates a resolver over providers. Nil providers are skipped.
func NewResolver(strict bool, providers ...Provider) *Resolver {
	r := &Resolver{providers: make(map[string]Provider), strict: strict}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds provider, replacing any provider with the same name.
func (r *Resolver) Register(provider Provider) {
	if provider == nil {
		return
	}
	r.providers[provider.Name()] = provider
}

// Providers returns the registered provider names, sorted.
func (r *Resolver) Providers() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ResolveValue expands environment references in value, then replaces each
// secret reference with the secret it names. A value that is exactly one
// reference may resolve to a secret containing whitespace.
func (r *Resolver) ResolveValue(ctx context.Context, value string) (string, error) {
	expanded, err := ExpandEnvStrict(value)
	if err != nil {
		return "", err
	}

	if ref, ok := ParseRef(expanded); ok {
		return r.fetch(ctx, ref)
	}

	var firstErr error
	out := embeddedRef.ReplaceAllStringFunc(expanded, func(m string) string {
		if firstErr != nil {
			return m
		}
		sub := embeddedRef.FindStringSubmatch(m)
		secret, err := r.fetch(ctx, Ref{Provider: sub[1], Name: sub[2]})
		if err != nil {
			firstErr = err
			return m
		}
		return secret
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// ResolveFields resolves each named value in place, in name order. Empty
// values are left alone. The first failure names its field and leaves the
// remaining fields untouched.
func (r *Resolver) ResolveFields(ctx context.Context, fields map[string]*string) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		ptr := fields[name]
		if ptr == nil || *ptr == "" {
			continue
		}
		resolved, err := r.ResolveValue(ctx, *ptr)
		if err != nil {
			return fmt.Errorf("secret: resolve %s: %w", name, err)
		}
		*ptr = resolved
	}
	return nil
}

func (r *Resolver) fetch(ctx context.Context, ref Ref) (string, error) {
	provider, ok := r.providers[ref.Provider]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrProviderNotRegistered, ref.Provider)
	}
	v, err := provider.Resolve(ctx, ref.Name)
	if err != nil {
		return "", err
	}
	if r.strict && v == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptySecret, ref)
	}
	return v, nil
}
