// Package match evaluates doublestar glob patterns against object keys
// and derives the static listing prefix of a pattern.
package match

import (
	"strings"
)

// Glob metacharacters that can be escaped with backslash in patterns.
const globEscapable = `*?[]{}\`

var escaper = strings.NewReplacer(
	`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`, `{`, `\{`, `}`, `\}`,
)

// Escape quotes every glob metacharacter in key so that it matches only
// itself. DerivePrefix(Escape(key)) == key.
func Escape(key string) string {
	return escaper.Replace(key)
}

// NormalizePattern converts a user-provided glob pattern to canonical form.
//
// A backslash before a glob metacharacter (or another backslash) is an
// escape and is kept. Any other backslash is a Windows separator and
// becomes "/". Leading, trailing and doubled slashes are kept as typed.
//
//	"el9\x86_64\app.rpm"  → "el9/x86_64/app.rpm"
//	"el9\x86_64/*.rpm"    → "el9/x86_64/*.rpm"
//	"el9/app\*.rpm"       → "el9/app\*.rpm"
func NormalizePattern(pattern string) string {
	if !strings.ContainsRune(pattern, '\\') {
		return pattern
	}

	var b strings.Builder
	b.Grow(len(pattern))

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '\\' {
			b.WriteRune(r)
			continue
		}
		if i+1 < len(runes) && strings.ContainsRune(globEscapable, runes[i+1]) {
			b.WriteRune('\\')
			b.WriteRune(runes[i+1])
			i++
			continue
		}
		b.WriteRune('/')
	}
	return b.String()
}

// IsHidden reports whether any "/"-separated segment of key starts with
// a dot.
//
//	"el9/app.rpm"        → false
//	"el9/.repodata/x"    → true
//	".cache"             → true
func IsHidden(key string) bool {
	for _, seg := range strings.Split(key, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// HasTrailingSlash reports whether key ends with "/".
func HasTrailingSlash(key string) bool {
	return strings.HasSuffix(key, "/")
}
