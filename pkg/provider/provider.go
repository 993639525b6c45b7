// Package provider defines the storage abstractions used to read upload
// inputs that live outside the local filesystem.
//
// Providers expose listing and streaming reads only. Authentication uses
// SDK default credential chains; providers do not implement custom auth.
package provider

import (
	"context"
	"io"
	"time"
)

// Lister pages through objects under a prefix.
type Lister interface {
	// List returns a page of objects with the given prefix.
	// Use ContinuationToken from ListResult for subsequent pages.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)
}

// DelimiterLister lists the direct children of a prefix.
//
// This gives object stores directory semantics: a trailing "/" input
// selects the objects directly under it, not the whole subtree.
type DelimiterLister interface {
	ListWithDelimiter(ctx context.Context, opts ListWithDelimiterOptions) (*ListWithDelimiterResult, error)
}

// ObjectGetter streams one object.
type ObjectGetter interface {
	// GetObject returns the object body and its content length.
	// Returns ErrNotFound if the object does not exist.
	GetObject(ctx context.Context, key string) (body io.ReadCloser, contentLength int64, err error)
}

// Provider is the full surface an input source implements.
type Provider interface {
	Lister
	DelimiterLister
	ObjectGetter

	// Head returns metadata for a single object.
	// Returns ErrNotFound if the object does not exist.
	Head(ctx context.Context, key string) (*ObjectMeta, error)

	// Close releases any resources held by the provider.
	Close() error
}

// ListOptions configures a List operation.
type ListOptions struct {
	// Prefix filters results to keys starting with this value.
	Prefix string

	// ContinuationToken resumes listing from a previous ListResult.
	ContinuationToken string

	// MaxKeys limits the page size. Zero uses the provider default.
	MaxKeys int
}

// ListResult contains a page of objects from a List operation.
type ListResult struct {
	Objects []ObjectSummary

	// ContinuationToken is used to retrieve the next page.
	// Empty string indicates no more pages.
	ContinuationToken string

	IsTruncated bool
}

// ListWithDelimiterOptions configures a delimiter listing.
type ListWithDelimiterOptions struct {
	Prefix            string
	Delimiter         string
	ContinuationToken string
	MaxKeys           int
}

// ListWithDelimiterResult contains a page of a delimiter listing.
type ListWithDelimiterResult struct {
	// Objects are directly under the requested Prefix.
	Objects []ObjectSummary

	// CommonPrefixes are the immediate child prefixes.
	CommonPrefixes []string

	ContinuationToken string
	IsTruncated       bool
}

// ObjectSummary contains basic metadata returned from List operations.
type ObjectSummary struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// ObjectMeta contains full metadata for a single object.
type ObjectMeta struct {
	ObjectSummary

	ContentType string
	Metadata    map[string]string
}

// ProviderType identifies a storage provider.
type ProviderType string

const (
	// ProviderS3 represents AWS S3 or S3-compatible storage.
	ProviderS3 ProviderType = "s3"

	// ProviderFile represents the local filesystem.
	ProviderFile ProviderType = "file"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}
