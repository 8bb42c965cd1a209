// Package handle turns tenant-supplied community handles into DNS-safe labels.
package handle

import (
	"strings"
	"unicode"
)

// Normalize lowercases raw, replaces each run of whitespace with a single
// "-", and drops every character outside [a-z0-9-]. It never fails; an
// empty result must be rejected by the caller.
func Normalize(raw string) string {
	var sb strings.Builder
	sb.Grow(len(raw))

	inSpace := false
	for _, r := range strings.ToLower(raw) {
		if unicode.IsSpace(r) {
			if !inSpace {
				sb.WriteByte('-')
				inSpace = true
			}
			continue
		}
		inSpace = false
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Valid reports whether h is a usable normalized handle.
func Valid(h string) bool {
	return h != "" && Normalize(h) == h
}
