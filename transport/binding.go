package transport

import (
	"github.com/drblury/asyncflow/internal/runtime/document"
	"github.com/drblury/asyncflow/internal/runtime/metadata"
)

// BindingString returns the binding property at path as text. Properties
// declared as schema objects yield their const, default or first enum value.
// A nil binding or a missing property yields "".
func BindingString(b *document.Binding, path ...string) string {
	if b == nil || len(path) == 0 {
		return ""
	}
	var current any = b.Properties
	for _, key := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current = obj[key]
	}
	return scalar(current)
}

func scalar(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case map[string]any:
		for _, key := range []string{"const", "default"} {
			if s := scalar(typed[key]); s != "" {
				return s
			}
		}
		if enum, ok := typed["enum"].([]any); ok && len(enum) > 0 {
			return scalar(enum[0])
		}
		return ""
	case []any:
		return ""
	default:
		text, err := metadata.Text(typed)
		if err != nil {
			return ""
		}
		return text
	}
}
