// Package source opens resolved upload inputs for reading.
//
// An input reference is either a local path or an object URI of the form
// s3://bucket/key. Router dispatches each reference to the matching
// backend and satisfies upload.Opener.
package source

import (
	"errors"
	"fmt"
	"strings"

	"github.com/3leaps/contentctl/pkg/match"
	"github.com/3leaps/contentctl/pkg/provider"
)

var (
	// ErrInvalidURI indicates the URI could not be parsed.
	ErrInvalidURI = errors.New("invalid URI")

	// ErrUnsupportedProvider indicates the URI scheme is not supported.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrMissingBucket indicates the URI is missing a bucket name.
	ErrMissingBucket = errors.New("missing bucket name")
)

// ObjectURI is a parsed object storage reference.
//
//	s3://bucket/el9/app.rpm       exact key
//	s3://bucket/el9/              direct children of a prefix
//	s3://bucket/el9/**/*.rpm      glob over keys
type ObjectURI struct {
	Provider provider.ProviderType
	Bucket   string

	// Key is the exact key, or the static listing prefix of Pattern.
	Key string

	// Pattern is the full key glob, empty for exact keys and prefixes.
	Pattern string
}

// String returns the URI in canonical form.
func (u *ObjectURI) String() string {
	switch {
	case u.Pattern != "":
		return fmt.Sprintf("%s://%s/%s", u.Provider, u.Bucket, u.Pattern)
	case u.Key != "":
		return fmt.Sprintf("%s://%s/%s", u.Provider, u.Bucket, u.Key)
	}
	return fmt.Sprintf("%s://%s/", u.Provider, u.Bucket)
}

// IsPattern reports whether the URI carries a key glob.
func (u *ObjectURI) IsPattern() bool {
	return u.Pattern != ""
}

// IsPrefix reports whether the URI names a prefix (bucket root or a key
// ending in "/").
func (u *ObjectURI) IsPrefix() bool {
	return !u.IsPattern() && (u.Key == "" || strings.HasSuffix(u.Key, "/"))
}

// ObjectRef returns the URI for a single key in bucket. Glob
// metacharacters in the key are escaped so ParseURI yields the same key.
func ObjectRef(p provider.ProviderType, bucket, key string) string {
	return fmt.Sprintf("%s://%s/%s", p, bucket, match.Escape(key))
}

// IsObjectURI reports whether ref uses a URI scheme rather than a local path.
func IsObjectURI(ref string) bool {
	i := strings.Index(ref, "://")
	return i > 0 && !strings.ContainsAny(ref[:i], `/\`)
}

// ParseURI parses an object storage URI.
//
// The scheme is matched case-insensitively; only s3 is supported. Glob
// metacharacters may be escaped with a backslash to match them literally.
func ParseURI(uri string) (*ObjectURI, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: empty URI", ErrInvalidURI)
	}

	// Split by hand: url.Parse would treat a "?" glob as a query.
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return nil, fmt.Errorf("%w: missing scheme (expected s3://...)", ErrInvalidURI)
	}
	if !strings.EqualFold(scheme, string(provider.ProviderS3)) {
		return nil, fmt.Errorf("%w: %s (supported: s3)", ErrUnsupportedProvider, scheme)
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return nil, fmt.Errorf("%w: in %s", ErrMissingBucket, uri)
	}
	if strings.ContainsAny(bucket, `*?[]{}\ `) {
		return nil, fmt.Errorf("%w: invalid bucket name %q", ErrInvalidURI, bucket)
	}

	u := &ObjectURI{Provider: provider.ProviderS3, Bucket: bucket}
	if match.IsGlobPattern(key) {
		u.Pattern = key
	}
	u.Key = match.DerivePrefix(key)
	return u, nil
}
