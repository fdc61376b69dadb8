// Package redact masks sensitive values in nested key/value structures
// before they are persisted in the audit log.
package redact

import "strings"

// Marker replaces every masked value.
const Marker = "[REDACTED]"

// Redactor masks values whose key contains one of a fixed set of
// fragments, compared case-insensitively. The fragment list is copied at
// construction and never changes afterwards.
type Redactor struct {
	fragments []string
}

// New returns a Redactor for the given field-name fragments.
func New(fields []string) *Redactor {
	fragments := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			fragments = append(fragments, f)
		}
	}
	return &Redactor{fragments: fragments}
}

// Sensitive reports whether values stored under key must be masked.
func (r *Redactor) Sensitive(key string) bool {
	k := strings.ToLower(key)
	for _, f := range r.fragments {
		if strings.Contains(k, f) {
			return true
		}
	}
	return false
}

// Map returns a redacted copy of m. A nil map stays nil.
func (r *Redactor) Map(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if r.Sensitive(k) {
			out[k] = Marker
			continue
		}
		out[k] = r.Value(v)
	}
	return out
}

// Value redacts v if it is a structure; scalars come back untouched.
func (r *Redactor) Value(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return r.Map(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = r.Value(item)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, item := range t {
			out[i] = r.Map(item)
		}
		return out
	default:
		return v
	}
}
