package upload

import "context"

// FinalizeOptions controls the import of one batch position.
type FinalizeOptions struct {
	// Last marks the final input of the batch. Only the last input is
	// imported with publish and propagate-downstream enabled.
	Last bool

	ContentType          string
	OstreeRepositoryName string
}

// Finalize submits completed uploads to the repository import endpoint.
func Finalize(ctx context.Context, svc Service, repositoryID string, entries []ImportEntry, opts FinalizeOptions) (*ImportResponse, error) {
	req := ImportRequest{
		Uploads:              entries,
		Publish:              opts.Last,
		PropagateDownstream:  opts.Last,
		ContentType:          opts.ContentType,
		OstreeRepositoryName: opts.OstreeRepositoryName,
	}

	resp, err := svc.ImportUploads(ctx, repositoryID, req)
	if err != nil {
		return nil, &FinalizeError{RepositoryID: repositoryID, Err: err}
	}
	if resp == nil {
		resp = &ImportResponse{}
	}
	return resp, nil
}

// entryFor builds the import entry for a streamed or deduplicated session.
func entryFor(s *Session, name string) ImportEntry {
	return ImportEntry{
		ID:            s.ID,
		ContentUnitID: s.ContentUnitID,
		Name:          name,
		Size:          s.Size,
		Checksum:      s.Checksum,
	}
}
