package upload

import (
	"errors"
	"fmt"
)

var (
	// ErrNoInput is returned when a batch contains no inputs.
	ErrNoInput = errors.New("no input files")

	// ErrSizeMismatch indicates the bytes streamed differ from the size
	// declared at session creation.
	ErrSizeMismatch = errors.New("streamed size does not match declared size")

	// ErrInvalidChunkSize is returned for chunk sizes outside (0, MaxChunkSize].
	ErrInvalidChunkSize = errors.New("invalid chunk size")
)

// ReadError indicates the local input could not be read or checksummed.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// SessionCreateError indicates the service rejected session creation.
// No session exists, so no destroy is attempted.
type SessionCreateError struct {
	RepositoryID string
	Err          error
}

func (e *SessionCreateError) Error() string {
	return fmt.Sprintf("create upload session in repository %s: %v", e.RepositoryID, e.Err)
}

func (e *SessionCreateError) Unwrap() error { return e.Err }

// ChunkTransferError indicates a chunk update failed partway through an input.
type ChunkTransferError struct {
	UploadID string
	Offset   int64
	Err      error
}

func (e *ChunkTransferError) Error() string {
	return fmt.Sprintf("upload %s: transfer chunk at offset %d: %v", e.UploadID, e.Offset, e.Err)
}

func (e *ChunkTransferError) Unwrap() error { return e.Err }

// FinalizeError indicates the import call failed.
type FinalizeError struct {
	RepositoryID string
	Err          error
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("import uploads into repository %s: %v", e.RepositoryID, e.Err)
}

func (e *FinalizeError) Unwrap() error { return e.Err }

// CleanupError indicates the session destroy call failed.
type CleanupError struct {
	UploadID string
	Err      error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("destroy upload session %s: %v", e.UploadID, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }

// Stage names the pipeline step an error came from.
func Stage(err error) string {
	var (
		readErr     *ReadError
		createErr   *SessionCreateError
		chunkErr    *ChunkTransferError
		finalizeErr *FinalizeError
		cleanupErr  *CleanupError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &chunkErr):
		return "transfer"
	case errors.As(err, &finalizeErr):
		return "import"
	case errors.As(err, &createErr):
		return "create"
	case errors.As(err, &cleanupErr):
		return "cleanup"
	case errors.As(err, &readErr):
		return "read"
	default:
		return "unknown"
	}
}
