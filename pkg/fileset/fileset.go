// Package fileset expands an upload path argument into the ordered list
// of inputs to process.
//
// The argument is a local directory, file or glob, or an object storage
// URI (s3://bucket/...). Results are sorted lexicographically; the order
// decides which input is last in a batch.
package fileset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/3leaps/contentctl/pkg/match"
	"github.com/3leaps/contentctl/pkg/provider"
	"github.com/3leaps/contentctl/pkg/source"
	"github.com/3leaps/contentctl/pkg/upload"
)

// NoInputError reports that an argument resolved to nothing.
type NoInputError struct {
	Path string
}

func (e *NoInputError) Error() string {
	return fmt.Sprintf("no input files found for %q", e.Path)
}

// Unwrap lets errors.Is(err, upload.ErrNoInput) match.
func (e *NoInputError) Unwrap() error { return upload.ErrNoInput }

// IsNoInput reports whether err means nothing matched.
func IsNoInput(err error) bool {
	return errors.Is(err, upload.ErrNoInput)
}

// Resolver expands path arguments.
type Resolver struct {
	buckets *source.Buckets
	log     *zap.Logger
}

// NewResolver creates a Resolver. buckets may be nil when object storage
// inputs are not configured.
func NewResolver(buckets *source.Buckets, logger *zap.Logger) *Resolver {
	if buckets == nil {
		buckets = source.NewBuckets(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{buckets: buckets, log: logger}
}

// Resolve returns the sorted inputs named by arg.
//
// An empty result is returned as *NoInputError. Local results are
// absolute paths; object results are s3:// URIs.
func (r *Resolver) Resolve(ctx context.Context, arg string) ([]string, error) {
	if strings.TrimSpace(arg) == "" {
		return nil, &NoInputError{Path: arg}
	}

	var (
		refs []string
		err  error
	)
	if source.IsObjectURI(arg) {
		refs, err = r.resolveObjects(ctx, arg)
	} else {
		refs, err = resolveLocal(arg)
	}
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, &NoInputError{Path: arg}
	}

	sort.Strings(refs)
	r.log.Debug("Resolved inputs", zap.String("path", arg), zap.Int("count", len(refs)))
	return refs, nil
}

// resolveLocal applies the local rules: a directory yields its direct
// regular files, an existing file yields itself, anything else is a glob.
func resolveLocal(arg string) ([]string, error) {
	expanded, err := expandHome(arg)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return nil, err
	}

	st, statErr := os.Stat(abs)
	switch {
	case statErr == nil && st.IsDir():
		return listDir(abs)
	case statErr == nil:
		return []string{abs}, nil
	}
	return globLocal(abs)
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", path, err)
	}
	return filepath.Join(home, path[1:]), nil
}

func listDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if match.IsHidden(e.Name()) {
			continue
		}
		full := filepath.Join(dir, e.Name())
		// Stat follows symlinks so linked files count and linked dirs don't.
		st, err := os.Stat(full)
		if err != nil || !st.Mode().IsRegular() {
			continue
		}
		out = append(out, full)
	}
	return out, nil
}

func globLocal(pattern string) ([]string, error) {
	slashed := filepath.ToSlash(pattern)
	if !doublestar.ValidatePattern(slashed) {
		return nil, &match.PatternError{Pattern: pattern, Err: match.ErrInvalidPattern}
	}
	base, rest := doublestar.SplitPattern(slashed)
	showHidden := match.IsHidden(rest)

	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, &match.PatternError{Pattern: pattern, Err: err}
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		rel := strings.TrimPrefix(filepath.ToSlash(m), strings.TrimSuffix(base, "/")+"/")
		if !showHidden && match.IsHidden(rel) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// resolveObjects lists an object URI: an exact key must exist, a prefix
// yields its direct children, a pattern yields every matching key below
// its static prefix.
func (r *Resolver) resolveObjects(ctx context.Context, arg string) ([]string, error) {
	u, err := source.ParseURI(arg)
	if err != nil {
		return nil, err
	}
	p, err := r.buckets.Get(ctx, u.Bucket)
	if err != nil {
		return nil, err
	}

	var keys []string
	switch {
	case u.IsPattern():
		keys, err = listPattern(ctx, p, u.Pattern)
	case u.IsPrefix():
		keys, err = listChildren(ctx, p, u.Key)
	default:
		keys, err = headKey(ctx, p, u.Key)
	}
	if err != nil {
		return nil, err
	}

	refs := make([]string, 0, len(keys))
	for _, k := range keys {
		refs = append(refs, source.ObjectRef(u.Provider, u.Bucket, k))
	}
	return refs, nil
}

func headKey(ctx context.Context, p provider.Provider, key string) ([]string, error) {
	if _, err := p.Head(ctx, key); err != nil {
		if provider.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return []string{key}, nil
}

func listChildren(ctx context.Context, p provider.Provider, prefix string) ([]string, error) {
	var (
		keys  []string
		token string
	)
	for {
		page, err := p.ListWithDelimiter(ctx, provider.ListWithDelimiterOptions{
			Prefix:            prefix,
			Delimiter:         "/",
			ContinuationToken: token,
		})
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Objects {
			rel := strings.TrimPrefix(obj.Key, prefix)
			if rel == "" || match.HasTrailingSlash(rel) || match.IsHidden(rel) {
				continue
			}
			keys = append(keys, obj.Key)
		}
		if !page.IsTruncated || page.ContinuationToken == "" {
			return keys, nil
		}
		token = page.ContinuationToken
	}
}

func listPattern(ctx context.Context, p provider.Provider, pattern string) ([]string, error) {
	m, err := match.New(pattern)
	if err != nil {
		return nil, err
	}

	var (
		keys  []string
		token string
	)
	for {
		page, err := p.List(ctx, provider.ListOptions{Prefix: m.Prefix(), ContinuationToken: token})
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Objects {
			if match.HasTrailingSlash(obj.Key) || !m.Match(obj.Key) {
				continue
			}
			keys = append(keys, obj.Key)
		}
		if !page.IsTruncated || page.ContinuationToken == "" {
			return keys, nil
		}
		token = page.ContinuationToken
	}
}
