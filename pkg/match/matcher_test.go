package match

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		pattern    string
		wantErr    bool
		wantPrefix string
	}{
		{name: "recursive glob", pattern: "el9/**/*.rpm", wantPrefix: "el9/"},
		{name: "root glob", pattern: "*.rpm", wantPrefix: ""},
		{name: "exact key", pattern: "el9/app.rpm", wantPrefix: "el9/app.rpm"},
		{name: "windows separators", pattern: `el9\x86_64/*.rpm`, wantPrefix: "el9/x86_64/"},
		{name: "unclosed bracket", pattern: "el9/[abc.rpm", wantErr: true},
		{name: "empty", pattern: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.pattern)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidPattern))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPrefix, m.Prefix())
		})
	}
}

func TestMatcher_Match(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		key     string
		want    bool
	}{
		{"star in segment", "el9/*.rpm", "el9/app.rpm", true},
		{"star does not cross segments", "el9/*.rpm", "el9/x86_64/app.rpm", false},
		{"doublestar crosses segments", "el9/**/*.rpm", "el9/x86_64/app.rpm", true},
		{"doublestar matches zero segments", "el9/**/*.rpm", "el9/app.rpm", true},
		{"wrong extension", "el9/*.rpm", "el9/app.srpm.txt", false},
		{"braces", "el9/{app,lib}.rpm", "el9/lib.rpm", true},
		{"hidden key skipped", "el9/**/*.rpm", "el9/.cache/app.rpm", false},
		{"hidden pattern opts in", "el9/.cache/*.rpm", "el9/.cache/app.rpm", true},
		{"escaped star is literal", `el9/app\*.rpm`, "el9/app*.rpm", true},
		{"escaped star does not glob", `el9/app\*.rpm`, "el9/app-1.rpm", false},
		{"windows separators", `el9\x86_64\app.rpm`, "el9/x86_64/app.rpm", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Match(tt.key))
		})
	}
}

func TestPatternError(t *testing.T) {
	err := &PatternError{Pattern: "[bad", Err: ErrInvalidPattern}
	assert.Equal(t, "pattern [bad: invalid glob pattern", err.Error())
	assert.ErrorIs(t, err, ErrInvalidPattern)
}
