// Package keys canonicalizes field names so that records coming from
// different documents and reference tables can be compared.
package keys

import "strings"

// Normalize lowercases and trims a field name. It is idempotent.
func Normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// FromAny normalizes v when it is a string and returns "" for anything else.
func FromAny(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return Normalize(s)
}

// Resolver maps normalized field names to canonical ones using an alias
// table. It is built once and never mutated afterwards, so it is safe for
// concurrent use.
type Resolver struct {
	aliases map[string]string
	known   map[string]struct{}
}

// NewResolver builds a resolver from an alias table (alias -> canonical) and
// the expected-field sets of every schema. All entries are normalized.
func NewResolver(aliases map[string]string, expected ...[]string) *Resolver {
	r := &Resolver{
		aliases: make(map[string]string, len(aliases)),
		known:   make(map[string]struct{}),
	}
	for alias, canonical := range aliases {
		r.aliases[Normalize(alias)] = Normalize(canonical)
	}
	for _, set := range expected {
		for _, field := range set {
			r.known[Normalize(field)] = struct{}{}
		}
	}
	return r
}

// Resolve returns the canonical name for an already normalized key. A key
// without an alias is its own canonical form only when some schema expects it.
func (r *Resolver) Resolve(normalized string) (string, bool) {
	if canonical, ok := r.aliases[normalized]; ok {
		return canonical, true
	}
	if _, ok := r.known[normalized]; ok {
		return normalized, true
	}
	return "", false
}

// Alias returns the alias table entry for normalized, ignoring the
// expected-set fallback.
func (r *Resolver) Alias(normalized string) (string, bool) {
	canonical, ok := r.aliases[normalized]
	return canonical, ok
}

// Find looks field up in m case-insensitively. An exact key match wins over a
// normalized one; among normalized matches the lexically smallest key is
// returned so the result does not depend on map iteration order.
func Find[V any](m map[string]V, field string) (string, V, bool) {
	if v, ok := m[field]; ok {
		return field, v, true
	}

	want := Normalize(field)
	var (
		foundKey string
		found    V
		ok       bool
	)
	for k, v := range m {
		if Normalize(k) != want {
			continue
		}
		if !ok || k < foundKey {
			foundKey, found, ok = k, v, true
		}
	}
	return foundKey, found, ok
}
