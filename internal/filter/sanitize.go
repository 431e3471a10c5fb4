// Package filter masks sensitive values before call metadata is journaled.
package filter

import (
	"strings"

	"github.com/yourorg/qbmcp/internal/config"
)

// Redactor replaces the values of configured keys, at any depth, matching
// key names case-insensitively.
type Redactor struct {
	fields      map[string]struct{}
	replacement string
}

func NewRedactor(cfg config.SanitizeConfig) *Redactor {
	replacement := cfg.Replacement
	if replacement == "" {
		replacement = "***REDACTED***"
	}
	return &Redactor{fields: toLowerSet(cfg.Fields), replacement: replacement}
}

// RedactMap returns a redacted deep copy; m is left untouched.
func (r *Redactor) RedactMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out, _ := r.value(m).(map[string]any)
	return out
}

func (r *Redactor) value(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v2 := range val {
			if _, ok := r.fields[strings.ToLower(k)]; ok {
				out[k] = r.replacement
				continue
			}
			out[k] = r.value(v2)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = r.value(val[i])
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return val
	}
}

func toLowerSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, v := range items {
		v = strings.TrimSpace(strings.ToLower(v))
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}
