package upload

import (
	"context"
)

// Session is one create/destroy lifecycle against the remote upload
// session resource.
//
// A Session is owned by the processing of a single input and must not be
// used after Close returns.
type Session struct {
	ID            string
	RepositoryID  string
	Size          int64
	Checksum      string
	ContentType   string
	ContentUnitID string

	svc    Service
	closed bool
}

// OpenSession creates a session for content of the given size and checksum.
//
// When the service returns no upload id the session carries
// DuplicateUploadID. Failures are returned as *SessionCreateError and leave
// nothing to clean up.
func OpenSession(ctx context.Context, svc Service, repositoryID string, req CreateRequest) (*Session, error) {
	resp, err := svc.CreateUpload(ctx, repositoryID, req)
	if err != nil {
		return nil, &SessionCreateError{RepositoryID: repositoryID, Err: err}
	}

	id := resp.UploadID
	if id == "" {
		id = DuplicateUploadID
	}

	return &Session{
		ID:            id,
		RepositoryID:  repositoryID,
		Size:          req.Size,
		Checksum:      req.Checksum,
		ContentType:   req.ContentType,
		ContentUnitID: resp.ContentUnitID,
		svc:           svc,
	}, nil
}

// Duplicate reports whether the service already holds this content, in
// which case no chunks are streamed.
func (s *Session) Duplicate() bool {
	return s.ContentUnitID != ""
}

// Close destroys the session. Only the first call reaches the service.
//
// The destroy runs even when ctx is already cancelled so that a cancelled
// batch still releases server-side state.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.svc.DestroyUpload(context.WithoutCancel(ctx), s.RepositoryID, s.ID); err != nil {
		return &CleanupError{UploadID: s.ID, Err: err}
	}
	return nil
}
