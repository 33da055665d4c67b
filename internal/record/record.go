package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/termsheet-validation/backend/internal/keys"
)

// Record maps raw field labels to values. Labels are kept exactly as found
// in the source; lookups normalize at comparison time only.
type Record map[string]Value

// FromMap converts a decoded JSON object.
func FromMap(m map[string]any) Record {
	r := make(Record, len(m))
	for k, v := range m {
		r[k] = FromAny(v)
	}
	return r
}

// FromStrings converts an extracted or tabular record.
func FromStrings(m map[string]string) Record {
	r := make(Record, len(m))
	for k, v := range m {
		r[k] = Text(v)
	}
	return r
}

// Decode parses a JSON object, keeping numbers exact.
func Decode(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("failed to decode record: expected a JSON object")
	}
	return FromMap(raw), nil
}

// Get looks a field up case-insensitively.
func (r Record) Get(field string) (Value, bool) {
	_, v, ok := keys.Find(r, field)
	return v, ok
}

// Key returns the label under which field is stored, if any.
func (r Record) Key(field string) (string, bool) {
	k, _, ok := keys.Find(r, field)
	return k, ok
}

// Text returns the trimmed string form of field, or "" when absent.
func (r Record) Text(field string) string {
	v, ok := r.Get(field)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v.String())
}

// Strings flattens the record into string values.
func (r Record) Strings() map[string]string {
	out := make(map[string]string, len(r))
	for k, v := range r {
		out[k] = v.String()
	}
	return out
}

// AllKeys returns every field label in the record, including labels of
// mappings nested at any depth (directly or inside lists), sorted.
func (r Record) AllKeys() []string {
	seen := make(map[string]struct{})
	for k, v := range r {
		seen[k] = struct{}{}
		collectKeys(v, seen)
	}

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func collectKeys(v Value, seen map[string]struct{}) {
	switch v.kind {
	case KindMapping:
		for k, f := range v.fields {
			seen[k] = struct{}{}
			collectKeys(f, seen)
		}
	case KindList:
		for _, item := range v.items {
			collectKeys(item, seen)
		}
	}
}
