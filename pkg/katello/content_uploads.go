package katello

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/3leaps/contentctl/pkg/upload"
)

var _ upload.Service = (*Client)(nil)

type createUploadBody struct {
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

type createUploadResponse struct {
	UploadID        string `json:"upload_id"`
	ContentUnitHref string `json:"content_unit_href"`
}

type importUpload struct {
	ID            string `json:"id"`
	ContentUnitID string `json:"content_unit_id,omitempty"`
	Name          string `json:"name,omitempty"`
	Size          *int64 `json:"size,omitempty"`
	Checksum      string `json:"checksum,omitempty"`
	Digest        string `json:"digest,omitempty"`
}

type importUploadsBody struct {
	Uploads              []importUpload `json:"uploads"`
	PublishRepository    bool           `json:"publish_repository"`
	SyncCapsule          bool           `json:"sync_capsule"`
	ContentType          string         `json:"content_type,omitempty"`
	OstreeRepositoryName string         `json:"ostree_repository_name,omitempty"`
}

type importUploadsResponse struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Output struct {
		UploadResults []struct {
			Type   string `json:"type"`
			Digest string `json:"digest"`
		} `json:"upload_results"`
	} `json:"output"`
}

func uploadsPath(repositoryID string) string {
	return "/katello/api/repositories/" + url.PathEscape(repositoryID) + "/content_uploads"
}

// CreateUpload opens an upload session in the repository.
func (c *Client) CreateUpload(ctx context.Context, repositoryID string, req upload.CreateRequest) (*upload.CreateResponse, error) {
	var resp createUploadResponse
	err := c.do(ctx, http.MethodPost, uploadsPath(repositoryID), createUploadBody{
		Size:        req.Size,
		Checksum:    req.Checksum,
		ContentType: req.ContentType,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &upload.CreateResponse{UploadID: resp.UploadID, ContentUnitID: resp.ContentUnitHref}, nil
}

// UpdateUpload sends one chunk as a multipart form with offset, size and
// a content file part.
func (c *Client) UpdateUpload(ctx context.Context, repositoryID, uploadID string, chunk upload.Chunk) error {
	fields := []formField{
		{name: "offset", value: strconv.FormatInt(chunk.Offset, 10)},
		{name: "size", value: strconv.FormatInt(chunk.TotalSize, 10)},
	}
	path := uploadsPath(repositoryID) + "/" + url.PathEscape(uploadID)
	return c.do(ctx, http.MethodPut, path, nil, nil,
		withMultipart(fields, "content", "content", chunk.Payload))
}

// DestroyUpload deletes the upload session.
func (c *Client) DestroyUpload(ctx context.Context, repositoryID, uploadID string) error {
	path := uploadsPath(repositoryID) + "/" + url.PathEscape(uploadID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// ImportUploads imports completed sessions into the repository.
func (c *Client) ImportUploads(ctx context.Context, repositoryID string, req upload.ImportRequest) (*upload.ImportResponse, error) {
	body := importUploadsBody{
		Uploads:              make([]importUpload, 0, len(req.Uploads)),
		PublishRepository:    req.Publish,
		SyncCapsule:          req.PropagateDownstream,
		ContentType:          req.ContentType,
		OstreeRepositoryName: req.OstreeRepositoryName,
	}
	for _, e := range req.Uploads {
		u := importUpload{
			ID:            e.ID,
			ContentUnitID: e.ContentUnitID,
			Name:          e.Name,
			Checksum:      e.Checksum,
			Digest:        e.Digest,
		}
		// Tag entries reference a manifest and carry no size.
		if e.Digest == "" {
			size := e.Size
			u.Size = &size
		}
		body.Uploads = append(body.Uploads, u)
	}

	var resp importUploadsResponse
	path := "/katello/api/repositories/" + url.PathEscape(repositoryID) + "/import_uploads"
	if err := c.do(ctx, http.MethodPut, path, body, &resp); err != nil {
		return nil, err
	}

	out := &upload.ImportResponse{}
	for _, r := range resp.Output.UploadResults {
		out.Results = append(out.Results, upload.Result{Type: r.Type, Digest: r.Digest})
	}
	return out, nil
}
