package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/3leaps/contentctl/pkg/provider"
)

// Factory creates a provider bound to one bucket.
type Factory func(ctx context.Context, bucket string) (provider.Provider, error)

// ErrNoObjectStorage is returned for object URIs when no Factory is set.
var ErrNoObjectStorage = errors.New("object storage inputs are not configured")

// Buckets hands out one provider per bucket, created on first use.
//
// Buckets is not safe for concurrent use.
type Buckets struct {
	factory Factory
	open    map[string]provider.Provider
}

// NewBuckets creates a bucket cache. A nil factory rejects every bucket.
func NewBuckets(factory Factory) *Buckets {
	return &Buckets{factory: factory, open: make(map[string]provider.Provider)}
}

// Get returns the provider for bucket.
func (b *Buckets) Get(ctx context.Context, bucket string) (provider.Provider, error) {
	if p, ok := b.open[bucket]; ok {
		return p, nil
	}
	if b.factory == nil {
		return nil, ErrNoObjectStorage
	}
	p, err := b.factory(ctx, bucket)
	if err != nil {
		return nil, err
	}
	b.open[bucket] = p
	return p, nil
}

// Close closes every provider handed out.
func (b *Buckets) Close() error {
	var errs []error
	for bucket, p := range b.open {
		errs = append(errs, p.Close())
		delete(b.open, bucket)
	}
	return errors.Join(errs...)
}

// Router opens local paths and object URIs.
type Router struct {
	local   Local
	buckets *Buckets
}

// NewRouter creates a Router. buckets may be nil when only local inputs
// are expected.
func NewRouter(buckets *Buckets) *Router {
	if buckets == nil {
		buckets = NewBuckets(nil)
	}
	return &Router{buckets: buckets}
}

// Open implements upload.Opener.
func (r *Router) Open(ctx context.Context, ref string) (io.ReadCloser, int64, error) {
	if !IsObjectURI(ref) {
		return r.local.Open(ctx, ref)
	}

	u, err := ParseURI(ref)
	if err != nil {
		return nil, 0, err
	}
	if u.IsPattern() || u.IsPrefix() {
		return nil, 0, fmt.Errorf("%w: %s does not name a single object", ErrInvalidURI, ref)
	}
	p, err := r.buckets.Get(ctx, u.Bucket)
	if err != nil {
		return nil, 0, err
	}
	return p.GetObject(ctx, u.Key)
}
