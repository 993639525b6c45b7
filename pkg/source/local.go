package source

import (
	"context"
	"io"
	"os"

	"github.com/3leaps/contentctl/pkg/provider"
)

// Local opens regular files on the local filesystem.
type Local struct{}

// Open opens path for sequential reading and reports its size.
//
// Missing files map to provider.ErrNotFound and permission failures to
// provider.ErrAccessDenied. Directories are rejected as not found.
func (Local) Open(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, wrapLocal("Open", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, wrapLocal("Stat", path, err)
	}
	if !st.Mode().IsRegular() {
		_ = f.Close()
		return nil, 0, &provider.ProviderError{Op: "Open", Provider: provider.ProviderFile, Key: path, Err: provider.ErrNotFound}
	}
	return f, st.Size(), nil
}

func wrapLocal(op, path string, err error) error {
	wrapped := &provider.ProviderError{Op: op, Provider: provider.ProviderFile, Key: path, Err: err}
	switch {
	case os.IsNotExist(err):
		wrapped.Err = provider.ErrNotFound
	case os.IsPermission(err):
		wrapped.Err = provider.ErrAccessDenied
	}
	return wrapped
}
