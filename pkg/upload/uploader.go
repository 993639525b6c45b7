package upload

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Policy selects how a batch reacts to a failed input.
type Policy int

const (
	// FailFast stops the batch after the failing input has been cleaned up.
	FailFast Policy = iota

	// ContinueOnError records the failure and proceeds with the next input.
	ContinueOnError
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case FailFast:
		return "fail-fast"
	case ContinueOnError:
		return "continue-on-error"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Opener opens a resolved input for sequential reading.
//
// The returned size may be negative when unknown up front.
type Opener interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, int64, error)
}

// Reporter receives the outcome of every processed input, in order.
type Reporter interface {
	Report(ctx context.Context, res *FileResult)
}

// Config configures an Uploader.
type Config struct {
	// RepositoryID is the target repository (required).
	RepositoryID string

	// ChunkSize is the update payload size. Zero uses DefaultChunkSize.
	ChunkSize int

	// ContentType is passed at session creation and import when set.
	ContentType string

	// OstreeRepositoryName is passed at import when set.
	OstreeRepositoryName string

	// Policy selects fail-fast or continue-on-error behavior.
	Policy Policy

	Logger *zap.Logger
}

// Uploader drives the per-input upload sequence.
type Uploader struct {
	svc      Service
	opener   Opener
	reporter Reporter
	cfg      Config
	log      *zap.Logger
}

// FileResult is the outcome of processing one input.
type FileResult struct {
	// Path is the resolved input reference.
	Path string

	// Name is the display name sent to the service.
	Name string

	UploadID  string
	Duplicate bool
	Published bool
	Bytes     int64
	Chunks    int

	// Response is set once the import succeeded.
	Response *ImportResponse

	// Err is the first failure for this input, if any.
	Err error
}

// Failed reports whether processing the input failed.
func (r *FileResult) Failed() bool {
	return r.Err != nil
}

// Summary aggregates a batch.
type Summary struct {
	Files    int
	Uploaded int
	Failed   int
	Bytes    int64
	Duration time.Duration
	Results  []FileResult
}

// Err returns the first failure in the batch, or nil.
func (s *Summary) Err() error {
	for i := range s.Results {
		if s.Results[i].Err != nil {
			return s.Results[i].Err
		}
	}
	return nil
}

func (s *Summary) add(res FileResult) {
	s.Files++
	if res.Err != nil {
		s.Failed++
	} else {
		s.Uploaded++
	}
	s.Bytes += res.Bytes
	s.Results = append(s.Results, res)
}

// New creates an Uploader. A nil reporter discards outcomes.
func New(svc Service, opener Opener, reporter Reporter, cfg Config) *Uploader {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if reporter == nil {
		reporter = discardReporter{}
	}
	return &Uploader{svc: svc, opener: opener, reporter: reporter, cfg: cfg, log: log}
}

// Run uploads refs in the given order.
//
// The caller supplies refs already sorted; the final element is the only
// one imported with publish and propagate-downstream enabled. In FailFast
// mode the first failure is returned after that input's session has been
// destroyed. In ContinueOnError mode failures are only recorded in the
// summary. An empty batch returns ErrNoInput without contacting the service.
func (u *Uploader) Run(ctx context.Context, refs []string) (*Summary, error) {
	if len(refs) == 0 {
		return nil, ErrNoInput
	}
	if err := ValidateChunkSize(int64(u.cfg.ChunkSize)); err != nil {
		return nil, err
	}

	start := time.Now()
	sum := &Summary{}
	defer func() { sum.Duration = time.Since(start) }()

	lastIdx := len(refs) - 1
	for i, ref := range refs {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		res := u.uploadOne(ctx, ref, i == lastIdx)
		sum.add(res)
		u.reporter.Report(ctx, &sum.Results[len(sum.Results)-1])

		if res.Err != nil {
			u.log.Error("Upload failed",
				zap.String("path", ref),
				zap.String("stage", Stage(res.Err)),
				zap.Error(res.Err))
			if u.cfg.Policy == FailFast {
				return sum, res.Err
			}
		}
	}

	return sum, nil
}

// uploadOne processes a single input. The session, once created, is
// destroyed before returning. A cleanup failure is only recorded when no
// earlier error is pending.
func (u *Uploader) uploadOne(ctx context.Context, ref string, last bool) (res FileResult) {
	res = FileResult{Path: ref, Name: DisplayName(ref)}

	checksum, size, err := u.checksum(ctx, ref)
	if err != nil {
		res.Err = err
		return res
	}

	sess, err := OpenSession(ctx, u.svc, u.cfg.RepositoryID, CreateRequest{
		Size:        size,
		Checksum:    checksum,
		ContentType: u.cfg.ContentType,
	})
	if err != nil {
		res.Err = err
		return res
	}
	res.UploadID = sess.ID
	res.Duplicate = sess.Duplicate()

	defer func() {
		if cerr := sess.Close(ctx); cerr != nil {
			u.log.Warn("Failed to destroy upload session",
				zap.String("upload_id", sess.ID),
				zap.String("repository_id", sess.RepositoryID),
				zap.Error(cerr))
			if res.Err == nil {
				res.Err = cerr
			}
		}
	}()

	u.log.Debug("Upload session created",
		zap.String("path", ref),
		zap.String("upload_id", sess.ID),
		zap.Int64("size", size),
		zap.Bool("duplicate", sess.Duplicate()))

	if !sess.Duplicate() {
		stats, err := u.stream(ctx, sess, ref)
		res.Chunks = stats.Chunks
		res.Bytes = stats.Bytes
		if err != nil {
			res.Err = err
			return res
		}
	}

	resp, err := Finalize(ctx, u.svc, u.cfg.RepositoryID, []ImportEntry{entryFor(sess, res.Name)}, FinalizeOptions{
		Last:                 last,
		ContentType:          u.cfg.ContentType,
		OstreeRepositoryName: u.cfg.OstreeRepositoryName,
	})
	if err != nil {
		res.Err = err
		return res
	}
	res.Response = resp
	res.Published = last
	return res
}

func (u *Uploader) checksum(ctx context.Context, ref string) (string, int64, error) {
	rc, declared, err := u.opener.Open(ctx, ref)
	if err != nil {
		return "", 0, &ReadError{Path: ref, Err: err}
	}
	defer func() { _ = rc.Close() }()

	sum, n, err := Checksum(rc)
	if err != nil {
		return "", 0, &ReadError{Path: ref, Err: err}
	}
	if declared >= 0 && declared != n {
		return "", 0, &ReadError{Path: ref, Err: ErrSizeMismatch}
	}
	return sum, n, nil
}

func (u *Uploader) stream(ctx context.Context, sess *Session, ref string) (StreamStats, error) {
	rc, _, err := u.opener.Open(ctx, ref)
	if err != nil {
		return StreamStats{}, &ReadError{Path: ref, Err: err}
	}
	defer func() { _ = rc.Close() }()

	return StreamChunks(ctx, u.svc, sess, rc, u.cfg.ChunkSize, u.log)
}

// DisplayName returns the name reported to the service for a local path
// or object URI.
func DisplayName(ref string) string {
	return path.Base(filepath.ToSlash(ref))
}

type discardReporter struct{}

func (discardReporter) Report(context.Context, *FileResult) {}
