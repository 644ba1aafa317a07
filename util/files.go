package util

import (
	"strings"
)

// SanitizeFilename makes a client-supplied name safe to use on disk and in a
// Content-Disposition header. Path separators and control characters become
// underscores; an empty result falls back to "file".
func SanitizeFilename(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '"' || r == '\'':
			b.WriteRune('_')
		case r < 0x20 || r == 0x7f:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" || out == "." || out == ".." {
		return "file"
	}
	return out
}
