package document

import "strings"

var (
	pointerEscaper   = strings.NewReplacer("~", "~0", "/", "~1")
	pointerUnescaper = strings.NewReplacer("~1", "/", "~0", "~")
)

// EscapePointerToken escapes a single JSON pointer segment (RFC 6901).
func EscapePointerToken(token string) string {
	return pointerEscaper.Replace(token)
}

// UnescapePointerToken reverses EscapePointerToken.
func UnescapePointerToken(token string) string {
	return pointerUnescaper.Replace(token)
}

// Pointer builds a local "#/a/b" pointer from raw segments.
func Pointer(segments ...string) string {
	var b strings.Builder
	b.WriteString("#")
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(EscapePointerToken(s))
	}
	return b.String()
}

// SplitPointer splits a local pointer into unescaped segments. It reports false
// when ref is not a local "#/..." pointer.
func SplitPointer(ref string) ([]string, bool) {
	if !strings.HasPrefix(ref, "#/") {
		return nil, false
	}
	parts := strings.Split(strings.TrimPrefix(ref, "#/"), "/")
	for i, p := range parts {
		parts[i] = UnescapePointerToken(p)
	}
	return parts, true
}
