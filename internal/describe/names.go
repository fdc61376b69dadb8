package describe

import (
	"context"
	"fmt"
)

// Names resolves ids of related entities to display names.
type Names interface {
	DisplayName(ctx context.Context, userID string) (string, error)
	DepartmentName(ctx context.Context, departmentID string) (string, error)
}

// lookup falls back to a short id whenever a name cannot be resolved.
type lookup struct {
	names Names
}

func (l lookup) user(ctx context.Context, id string) string {
	if id == "" {
		return "nobody"
	}
	if l.names != nil {
		if name, err := l.names.DisplayName(ctx, id); err == nil && name != "" {
			return name
		}
	}
	return shortID(id)
}

func (l lookup) department(ctx context.Context, id string) string {
	if id == "" {
		return "no department"
	}
	if l.names != nil {
		if name, err := l.names.DepartmentName(ctx, id); err == nil && name != "" {
			return name
		}
	}
	return shortID(id)
}

// str renders a snapshot value for comparison and display. Nil and the
// empty string are the same.
func str(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprint(x)
	}
}

// changed reports whether field was submitted in after with a value that
// differs from before.
func changed(before, after map[string]any, field string) (b, a any, ok bool) {
	a, present := after[field]
	if !present {
		return nil, nil, false
	}
	b = before[field]
	if str(a) == str(b) {
		return nil, nil, false
	}
	return b, a, true
}

// field returns the first non-empty value of key in the given maps.
func field(key string, maps ...map[string]any) string {
	for _, m := range maps {
		if v := str(m[key]); v != "" {
			return v
		}
	}
	return ""
}
