// Package upload implements the chunked content-upload pipeline.
//
// Each input is processed strictly in sequence:
//
//	checksum → create session → stream chunks → import → destroy session
//
// The session is destroyed on every exit path once it has been created.
// Only the last input of a batch is imported with publish and
// propagate-downstream enabled.
package upload

import "context"

const (
	// DefaultChunkSize is the number of bytes sent per update call.
	// It stays below the service's 2,621,440-byte request body ceiling.
	DefaultChunkSize = 2_500_000

	// MaxChunkSize is the largest request body the service accepts.
	MaxChunkSize = 2_621_440

	// DuplicateUploadID is used as the session id when the service
	// recognized identical content and returned no upload id.
	DuplicateUploadID = "duplicate"

	// ManifestResultType identifies container manifest upload results.
	ManifestResultType = "docker_manifest"

	// DockerTagContentType is the content type used for tag-only imports.
	DockerTagContentType = "docker_tag"
)

// Service is the remote content upload service.
//
// Implementations perform a single attempt per call. Chunk payloads are
// only valid for the duration of UpdateUpload.
type Service interface {
	// CreateUpload opens an upload session for a repository.
	CreateUpload(ctx context.Context, repositoryID string, req CreateRequest) (*CreateResponse, error)

	// UpdateUpload transfers one chunk into an open session.
	UpdateUpload(ctx context.Context, repositoryID, uploadID string, chunk Chunk) error

	// DestroyUpload releases server-side session state.
	DestroyUpload(ctx context.Context, repositoryID, uploadID string) error

	// ImportUploads converts completed sessions into repository content.
	ImportUploads(ctx context.Context, repositoryID string, req ImportRequest) (*ImportResponse, error)
}

// CreateRequest describes the content a session will receive.
type CreateRequest struct {
	Size        int64
	Checksum    string
	ContentType string
}

// CreateResponse is returned when a session is opened.
type CreateResponse struct {
	// UploadID identifies the session. Empty when the service skipped
	// session creation for known content.
	UploadID string

	// ContentUnitID is set when the service already holds content with
	// the same checksum; no bytes need to be transferred.
	ContentUnitID string
}

// Chunk is one bounded slice of an input's bytes.
type Chunk struct {
	Offset    int64
	Payload   []byte
	TotalSize int64
}

// ImportEntry describes one upload being finalized.
type ImportEntry struct {
	ID            string
	ContentUnitID string
	Name          string
	Size          int64
	Checksum      string

	// Digest is only used by tag imports.
	Digest string
}

// ImportRequest finalizes a sequence of uploads.
type ImportRequest struct {
	Uploads             []ImportEntry
	Publish             bool
	PropagateDownstream bool

	// ContentType overrides the repository's default content type.
	ContentType string

	// OstreeRepositoryName names the repository inside an OSTree archive.
	OstreeRepositoryName string
}

// ImportResponse carries the per-unit results reported by the service.
type ImportResponse struct {
	Results []Result
}

// Result is a single imported unit.
type Result struct {
	Type   string
	Digest string
}

// IsManifest reports whether the result describes a container manifest.
func (r Result) IsManifest() bool {
	return r.Type == ManifestResultType
}
