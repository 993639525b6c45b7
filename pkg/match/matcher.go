package match

import (
	"errors"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrInvalidPattern is returned when a pattern cannot be compiled.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// Matcher evaluates one doublestar pattern against object keys.
//
// Hidden keys (a segment starting with ".") never match unless the
// pattern itself names a hidden segment.
type Matcher struct {
	pattern       string
	prefix        string
	includeHidden bool
}

// New compiles pattern after normalizing Windows separators.
func New(pattern string) (*Matcher, error) {
	normalized := NormalizePattern(pattern)
	if normalized == "" || !doublestar.ValidatePattern(normalized) {
		return nil, &PatternError{Pattern: pattern, Err: ErrInvalidPattern}
	}
	return &Matcher{
		pattern:       normalized,
		prefix:        DerivePrefix(normalized),
		includeHidden: IsHidden(normalized),
	}, nil
}

// Match reports whether key matches the pattern.
//
// Keys are opaque and matched as-is, without normalization.
func (m *Matcher) Match(key string) bool {
	if !m.includeHidden && IsHidden(key) {
		return false
	}
	ok, err := doublestar.Match(m.pattern, key)
	return err == nil && ok
}

// Prefix returns the static listing prefix. Empty means the whole bucket
// has to be listed.
func (m *Matcher) Prefix() string {
	return m.prefix
}

// Pattern returns the normalized pattern.
func (m *Matcher) Pattern() string {
	return m.pattern
}
