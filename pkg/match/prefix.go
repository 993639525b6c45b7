package match

import (
	"strings"
)

// DerivePrefix returns the longest static prefix of a glob pattern,
// truncated to the last complete path segment, with escapes removed.
//
// The prefix narrows object listings; every key the pattern can match
// starts with it.
//
//	"el9/x86_64/**/*.rpm"  → "el9/x86_64/"
//	"*.rpm"                → ""
//	"el9/app-{a,b}.rpm"    → "el9/"
//	"el9/app.rpm"          → "el9/app.rpm"
//	"el9/app\*.rpm"        → "el9/app*.rpm"
func DerivePrefix(pattern string) string {
	if pattern == "" {
		return ""
	}
	pattern = NormalizePattern(pattern)

	metaIdx := findFirstUnescapedMeta(pattern)
	switch metaIdx {
	case -1:
		return unescapePrefix(pattern)
	case 0:
		return ""
	}

	prefix := pattern[:metaIdx]
	lastSlash := strings.LastIndex(prefix, "/")
	if lastSlash < 0 {
		return ""
	}
	return unescapePrefix(prefix[:lastSlash+1])
}

// IsGlobPattern reports whether pattern contains an unescaped glob
// metacharacter.
func IsGlobPattern(pattern string) bool {
	return findFirstUnescapedMeta(pattern) != -1
}

// findFirstUnescapedMeta returns the index of the first unescaped * ? [ {
// in pattern, or -1.
func findFirstUnescapedMeta(pattern string) int {
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '\\':
			if i+1 < len(pattern) && strings.IndexByte(`*?[{\`, pattern[i+1]) >= 0 {
				i++
			}
		case '*', '?', '[', '{':
			return i
		}
	}
	return -1
}

// unescapePrefix drops the backslash from escaped metacharacters so the
// prefix can be sent to the store as a literal key prefix.
func unescapePrefix(prefix string) string {
	if !strings.ContainsRune(prefix, '\\') {
		return prefix
	}

	var b strings.Builder
	b.Grow(len(prefix))
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if c == '\\' && i+1 < len(prefix) && strings.IndexByte(globEscapable, prefix[i+1]) >= 0 {
			i++
			c = prefix[i]
		}
		b.WriteByte(c)
	}
	return b.String()
}
