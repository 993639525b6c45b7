package upload

import (
	"context"
	"fmt"
	"io"

	"github.com/3leaps/contentctl/pkg/output"
)

// Messages returns the human-readable outcome lines for an import
// response, one per result in service order. A response without results
// yields a single generic line.
func Messages(name string, resp *ImportResponse) []string {
	if resp == nil || len(resp.Results) == 0 {
		return []string{successMessage(name)}
	}

	msgs := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.IsManifest() {
			msgs = append(msgs, fmt.Sprintf("Successfully uploaded manifest file '%s' with digest '%s'", name, r.Digest))
			continue
		}
		msgs = append(msgs, successMessage(name))
	}
	return msgs
}

func successMessage(name string) string {
	return fmt.Sprintf("Successfully uploaded file '%s'", name)
}

// TextReporter prints outcome lines to Out and failures to Err.
type TextReporter struct {
	Out io.Writer
	Err io.Writer
}

// Report implements Reporter.
func (r *TextReporter) Report(_ context.Context, res *FileResult) {
	if res.Response != nil {
		for _, msg := range Messages(res.Name, res.Response) {
			_, _ = fmt.Fprintln(r.Out, msg)
		}
	}
	if res.Err != nil {
		_, _ = fmt.Fprintf(r.Err, "Failed to upload '%s': %v\n", res.Name, res.Err)
	}
}

// RecordReporter emits JSONL records for every outcome.
type RecordReporter struct {
	w output.Writer
}

// NewRecordReporter creates a reporter writing to w.
func NewRecordReporter(w output.Writer) *RecordReporter {
	return &RecordReporter{w: w}
}

// Report implements Reporter.
func (r *RecordReporter) Report(ctx context.Context, res *FileResult) {
	if res.Response != nil {
		for _, rec := range uploadRecords(res) {
			_ = r.w.WriteUpload(ctx, rec)
		}
	}
	if res.Err != nil {
		_ = r.w.WriteError(ctx, &output.ErrorRecord{
			Code:    ErrorCode(res.Err),
			Message: res.Err.Error(),
			Path:    res.Path,
			Details: map[string]any{"stage": Stage(res.Err), "upload_id": res.UploadID},
		})
	}
}

// Finish emits the summary record.
func (r *RecordReporter) Finish(ctx context.Context, sum *Summary) error {
	if sum == nil {
		return nil
	}
	return r.w.WriteSummary(ctx, &output.SummaryRecord{
		FilesTotal:    sum.Files,
		FilesUploaded: sum.Uploaded,
		FilesFailed:   sum.Failed,
		BytesTotal:    sum.Bytes,
		Duration:      sum.Duration,
		DurationHuman: sum.Duration.Round(0).String(),
	})
}

func uploadRecords(res *FileResult) []*output.UploadRecord {
	base := output.UploadRecord{
		Name:      res.Name,
		Path:      res.Path,
		UploadID:  res.UploadID,
		Bytes:     res.Bytes,
		Chunks:    res.Chunks,
		Duplicate: res.Duplicate,
		Published: res.Published,
	}
	if len(res.Response.Results) == 0 {
		return []*output.UploadRecord{&base}
	}

	recs := make([]*output.UploadRecord, 0, len(res.Response.Results))
	for _, r := range res.Response.Results {
		rec := base
		rec.Type = r.Type
		if r.IsManifest() {
			rec.Digest = r.Digest
		}
		recs = append(recs, &rec)
	}
	return recs
}

// ErrorCode maps a pipeline error to an output error code.
func ErrorCode(err error) string {
	switch Stage(err) {
	case "read":
		return output.ErrCodeReadFailed
	case "create":
		return output.ErrCodeSessionCreate
	case "transfer":
		return output.ErrCodeChunkTransfer
	case "import":
		return output.ErrCodeFinalize
	case "cleanup":
		return output.ErrCodeCleanup
	default:
		return output.ErrCodeInternal
	}
}
