package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Writer outputs JSONL records for upload runs.
//
// Each Write* method emits a complete record as a single line of JSON
// followed by a newline.
type Writer interface {
	// WriteUpload emits an upload outcome record.
	WriteUpload(ctx context.Context, rec *UploadRecord) error

	// WriteError emits an error record.
	WriteError(ctx context.Context, rec *ErrorRecord) error

	// WriteSummary emits a summary record.
	WriteSummary(ctx context.Context, sum *SummaryRecord) error

	// Close flushes any buffered output and releases resources.
	Close() error
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
//
// JSONLWriter is safe for concurrent use. Writes are serialized using
// a mutex so lines never interleave.
type JSONLWriter struct {
	w            io.Writer
	runID        string
	repositoryID string
	mu           sync.Mutex
	closed       bool
}

// NewJSONLWriter creates a new JSONL writer.
//
// Parameters:
//   - w: The underlying writer (stdout, file, etc.)
//   - runID: Correlation ID for this invocation
//   - repositoryID: Target repository identifier
func NewJSONLWriter(w io.Writer, runID, repositoryID string) *JSONLWriter {
	return &JSONLWriter{
		w:            w,
		runID:        runID,
		repositoryID: repositoryID,
	}
}

// WriteUpload emits an upload outcome record.
func (jw *JSONLWriter) WriteUpload(ctx context.Context, rec *UploadRecord) error {
	return jw.writeRecord(ctx, TypeUpload, rec)
}

// WriteError emits an error record.
func (jw *JSONLWriter) WriteError(ctx context.Context, rec *ErrorRecord) error {
	return jw.writeRecord(ctx, TypeError, rec)
}

// WriteSummary emits a summary record.
func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.writeRecord(ctx, TypeSummary, sum)
}

// Close marks the writer as closed.
//
// The underlying writer is NOT closed; that stays with the caller.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.closed = true
	return nil
}

func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}

	record := Record{
		Type:         recordType,
		TS:           time.Now().UTC(),
		RunID:        jw.runID,
		RepositoryID: jw.repositoryID,
		Data:         dataBytes,
	}

	recordBytes, err := json.Marshal(record)
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	// io.Writer may return n < len(p) with a nil error; a truncated line
	// would corrupt the stream.
	recordBytes = append(recordBytes, '\n')
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}

	return nil
}

// writeAll writes all bytes to w, handling short writes.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

var _ Writer = (*JSONLWriter)(nil)
