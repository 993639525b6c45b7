// Package output provides JSONL output for upload runs.
//
// Output is structured as typed record envelopes containing per-input
// upload outcomes, errors, and a final summary. Each line is a
// self-contained JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: contentctl.<type>.v<version>
const (
	// TypeUpload identifies per-unit upload outcome records.
	TypeUpload = "contentctl.upload.v1"

	// TypeError identifies error records.
	TypeError = "contentctl.error.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "contentctl.summary.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "contentctl.upload.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID is the correlation ID for this invocation. It is also sent to
	// the service as the request id.
	RunID string `json:"run_id"`

	// RepositoryID is the target repository.
	RepositoryID string `json:"repository_id"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// UploadRecord is the data payload for a single imported unit.
//
// One record is emitted per result returned by the import call, or one
// per input when the service reported no results.
type UploadRecord struct {
	// Name is the display name sent to the service.
	Name string `json:"name"`

	// Path is the resolved input path or object URI.
	Path string `json:"path"`

	// UploadID is the session id ("duplicate" for deduplicated content).
	UploadID string `json:"upload_id,omitempty"`

	// Type is the unit type reported by the service, if any.
	Type string `json:"type,omitempty"`

	// Digest is set for manifest results.
	Digest string `json:"digest,omitempty"`

	// Bytes is the number of bytes streamed.
	Bytes int64 `json:"bytes"`

	// Chunks is the number of update calls made.
	Chunks int `json:"chunks"`

	// Duplicate is true when the service already held the content.
	Duplicate bool `json:"duplicate"`

	// Published is true when this import triggered publish and downstream sync.
	Published bool `json:"published"`
}

// ErrorRecord is the data payload for a failed input.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Path is the input related to this error, if applicable.
	Path string `json:"path,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// Error codes for ErrorRecord.
const (
	// ErrCodeReadFailed indicates the local input could not be read.
	ErrCodeReadFailed = "READ_FAILED"

	// ErrCodeSessionCreate indicates the service rejected session creation.
	ErrCodeSessionCreate = "SESSION_CREATE_FAILED"

	// ErrCodeChunkTransfer indicates a chunk update failed.
	ErrCodeChunkTransfer = "CHUNK_TRANSFER_FAILED"

	// ErrCodeFinalize indicates the import call failed.
	ErrCodeFinalize = "FINALIZE_FAILED"

	// ErrCodeCleanup indicates the session destroy call failed.
	ErrCodeCleanup = "CLEANUP_FAILED"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal = "INTERNAL"
)

// SummaryRecord is the data payload for the final summary.
type SummaryRecord struct {
	// FilesTotal is the number of inputs processed.
	FilesTotal int `json:"files_total"`

	// FilesUploaded is the number of inputs imported successfully.
	FilesUploaded int `json:"files_uploaded"`

	// FilesFailed is the number of inputs that failed.
	FilesFailed int `json:"files_failed"`

	// BytesTotal is the cumulative number of bytes streamed.
	BytesTotal int64 `json:"bytes_total"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
