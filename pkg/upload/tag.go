package upload

import (
	"context"

	"go.uber.org/zap"
)

// UploadTag imports a container tag that points at an existing manifest
// digest. There is no local content: the session is opened with size 0,
// no chunks are streamed, and the import always publishes.
//
// The session is destroyed on every path once created. The result always
// carries the failure. In FailFast mode it is also returned as the error;
// in ContinueOnError mode the error is nil and the caller inspects the
// result.
func (u *Uploader) UploadTag(ctx context.Context, tag, digest string) (FileResult, error) {
	res := u.uploadTag(ctx, tag, digest)
	if res.Err != nil && u.cfg.Policy == FailFast {
		return res, res.Err
	}
	return res, nil
}

func (u *Uploader) uploadTag(ctx context.Context, tag, digest string) (res FileResult) {
	res = FileResult{Path: tag, Name: tag}

	sess, err := OpenSession(ctx, u.svc, u.cfg.RepositoryID, CreateRequest{Size: 0})
	if err != nil {
		res.Err = err
		u.log.Error("Tag upload failed", zap.String("tag", tag), zap.Error(err))
		return res
	}
	res.UploadID = sess.ID

	defer func() {
		if cerr := sess.Close(ctx); cerr != nil {
			u.log.Warn("Failed to destroy upload session",
				zap.String("upload_id", sess.ID),
				zap.Error(cerr))
			if res.Err == nil {
				res.Err = cerr
			}
		}
		if res.Err != nil {
			u.log.Error("Tag upload failed", zap.String("tag", tag), zap.Error(res.Err))
		}
	}()

	entry := ImportEntry{ID: sess.ID, Name: tag, Digest: digest}
	resp, err := Finalize(ctx, u.svc, u.cfg.RepositoryID, []ImportEntry{entry}, FinalizeOptions{
		Last:        true,
		ContentType: DockerTagContentType,
	})
	if err != nil {
		res.Err = err
		return res
	}
	res.Response = resp
	res.Published = true
	return res
}
