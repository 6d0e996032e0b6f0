package envelope

import (
	"path"
	"strings"
	"unicode"
)

// Sanitize prepares free text for the remote service. Control characters
// are dropped, CR, LF and TAB become spaces, and the result is trimmed.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\r' || r == '\n' || r == '\t':
			b.WriteByte(' ')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// FileExtension derives the provider's fileExtension token from a filename:
// lower-case alphanumerics only, at most 10 characters. It returns "" when
// the name has no usable extension.
func FileExtension(filename string) string {
	ext := strings.TrimPrefix(path.Ext(strings.TrimSpace(filename)), ".")
	ext = strings.ToLower(ext)

	var b strings.Builder
	for _, r := range ext {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > 10 {
		out = out[:10]
	}
	return out
}
