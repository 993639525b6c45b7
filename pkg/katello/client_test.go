package katello

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/contentctl/pkg/upload"
	"github.com/3leaps/contentctl/test/katellotest"
)

func newTestClient(t *testing.T, srv *katellotest.Server, mutate ...func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		BaseURL:     srv.URL,
		Username:    katellotest.Username,
		Password:    katellotest.Password,
		LookupDelay: time.Millisecond,
		RequestID:   "req-1",
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "valid", cfg: Config{BaseURL: "https://katello.example.com/"}},
		{name: "missing url", cfg: Config{}, wantErr: "base URL is required"},
		{name: "bad scheme", cfg: Config{BaseURL: "ftp://katello.example.com"}, wantErr: "http or https"},
		{name: "no host", cfg: Config{BaseURL: "https://"}, wantErr: "no host"},
		{name: "missing CA file", cfg: Config{BaseURL: "https://k.example.com", CAFile: "/nonexistent/ca.pem"}, wantErr: "read CA file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, c.RequestID())
		})
	}
}

func TestNew_CAFileWithoutCertificates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0o600))

	_, err := New(Config{BaseURL: "https://k.example.com", CAFile: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no certificates found")
}

func TestContentUploadLifecycle(t *testing.T) {
	srv := katellotest.New(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	created, err := c.CreateUpload(ctx, "42", upload.CreateRequest{Size: 5, Checksum: "abc", ContentType: "file"})
	require.NoError(t, err)
	require.NotEmpty(t, created.UploadID)
	assert.Empty(t, created.ContentUnitID)

	require.NoError(t, c.UpdateUpload(ctx, "42", created.UploadID, upload.Chunk{Offset: 0, Payload: []byte("hel"), TotalSize: 5}))
	require.NoError(t, c.UpdateUpload(ctx, "42", created.UploadID, upload.Chunk{Offset: 3, Payload: []byte("lo"), TotalSize: 5}))

	resp, err := c.ImportUploads(ctx, "42", upload.ImportRequest{
		Uploads:             []upload.ImportEntry{{ID: created.UploadID, Name: "hello.txt", Size: 5, Checksum: "abc"}},
		Publish:             true,
		PropagateDownstream: true,
		ContentType:         "file",
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "file", resp.Results[0].Type)

	require.NoError(t, c.DestroyUpload(ctx, "42", created.UploadID))

	sessions := srv.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, []byte("hello"), sessions[0].Data)
	assert.Equal(t, int64(5), sessions[0].Size)
	assert.Equal(t, "abc", sessions[0].Checksum)
	assert.Equal(t, "file", sessions[0].ContentType)
	assert.True(t, sessions[0].Destroyed)

	chunks := srv.Chunks()
	require.Len(t, chunks, 2)
	assert.Equal(t, int64(0), chunks[0].Offset)
	assert.Equal(t, int64(3), chunks[1].Offset)
	assert.Equal(t, int64(5), chunks[1].Size)

	imports := srv.Imports()
	require.Len(t, imports, 1)
	imp := imports[0]
	assert.Equal(t, "42", imp.RepositoryID)
	assert.True(t, imp.PublishRepository)
	assert.True(t, imp.SyncCapsule)
	assert.Equal(t, "file", imp.ContentType)
	require.Len(t, imp.Uploads, 1)
	assert.Equal(t, "hello.txt", imp.Uploads[0].Name)
	require.NotNil(t, imp.Uploads[0].Size)
	assert.Equal(t, int64(5), *imp.Uploads[0].Size)

	assert.Equal(t, []string{
		"POST /katello/api/repositories/42/content_uploads",
		"PUT /katello/api/repositories/42/content_uploads/" + created.UploadID,
		"PUT /katello/api/repositories/42/content_uploads/" + created.UploadID,
		"PUT /katello/api/repositories/42/import_uploads",
		"DELETE /katello/api/repositories/42/content_uploads/" + created.UploadID,
	}, srv.CallLines())

	for _, call := range srv.Calls() {
		assert.Equal(t, AcceptHeader, call.Accept)
		assert.Equal(t, "req-1", call.RequestID)
	}
}

func TestCreateUpload_KnownContent(t *testing.T) {
	srv := katellotest.New(t)
	srv.KnownChecksums["abc"] = "/pulp/api/v3/content/file/files/1/"
	c := newTestClient(t, srv)

	resp, err := c.CreateUpload(context.Background(), "42", upload.CreateRequest{Size: 5, Checksum: "abc"})
	require.NoError(t, err)
	assert.Empty(t, resp.UploadID)
	assert.Equal(t, "/pulp/api/v3/content/file/files/1/", resp.ContentUnitID)
}

func TestImportUploads_TagEntryOmitsSize(t *testing.T) {
	srv := katellotest.New(t)
	srv.UploadResults = []map[string]string{{"type": "docker_tag"}}
	c := newTestClient(t, srv)

	_, err := c.ImportUploads(context.Background(), "42", upload.ImportRequest{
		Uploads:     []upload.ImportEntry{{ID: "u1", Name: "latest", Digest: "sha256:abc"}},
		Publish:     true,
		ContentType: upload.DockerTagContentType,
	})
	require.NoError(t, err)

	imp := srv.Imports()[0]
	require.Len(t, imp.Uploads, 1)
	assert.Nil(t, imp.Uploads[0].Size)
	assert.Equal(t, "sha256:abc", imp.Uploads[0].Digest)
	assert.Equal(t, upload.DockerTagContentType, imp.ContentType)
}

func TestImportUploads_ManifestResult(t *testing.T) {
	srv := katellotest.New(t)
	srv.UploadResults = []map[string]string{{"type": "docker_manifest", "digest": "sha256:def"}}
	c := newTestClient(t, srv)

	resp, err := c.ImportUploads(context.Background(), "42", upload.ImportRequest{
		Uploads: []upload.ImportEntry{{ID: "u1", Name: "image.tar"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.True(t, resp.Results[0].IsManifest())
	assert.Equal(t, "sha256:def", resp.Results[0].Digest)
}

func TestAPIErrors(t *testing.T) {
	t.Run("display message is parsed", func(t *testing.T) {
		srv := katellotest.New(t)
		srv.CreateStatus = http.StatusUnprocessableEntity
		c := newTestClient(t, srv)

		_, err := c.CreateUpload(context.Background(), "42", upload.CreateRequest{Size: 1})
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
		assert.Equal(t, http.MethodPost, apiErr.Method)
		assert.Equal(t, "/katello/api/repositories/42/content_uploads", apiErr.Path)
		assert.Equal(t, "create failed", apiErr.Message)
		assert.False(t, IsUnavailable(err))
	})

	t.Run("bad credentials", func(t *testing.T) {
		srv := katellotest.New(t)
		c := newTestClient(t, srv, func(cfg *Config) { cfg.Password = "wrong" })

		err := c.DestroyUpload(context.Background(), "42", "u1")
		assert.True(t, IsUnauthorized(err))
	})

	t.Run("server errors are unavailable", func(t *testing.T) {
		srv := katellotest.New(t)
		srv.ImportStatus = http.StatusServiceUnavailable
		c := newTestClient(t, srv)

		_, err := c.ImportUploads(context.Background(), "42", upload.ImportRequest{})
		assert.True(t, IsUnavailable(err))
	})

	t.Run("404 matches ErrNotFound", func(t *testing.T) {
		srv := katellotest.New(t)
		c := newTestClient(t, srv)

		err := c.UpdateUpload(context.Background(), "42", "missing", upload.Chunk{Payload: []byte("x"), TotalSize: 1})
		assert.True(t, IsNotFound(err))
	})

	t.Run("transport failure", func(t *testing.T) {
		srv := katellotest.New(t)
		c := newTestClient(t, srv, func(cfg *Config) { cfg.BaseURL = "http://127.0.0.1:1" })

		err := c.DestroyUpload(context.Background(), "42", "u1")
		var tErr *TransportError
		require.ErrorAs(t, err, &tErr)
		assert.True(t, IsUnavailable(err))
	})
}

func TestRateLimit(t *testing.T) {
	srv := katellotest.New(t)
	// One call per hour: the first call uses the burst, the second must wait.
	c := newTestClient(t, srv, func(cfg *Config) { cfg.RateLimit = 1.0 / 3600 })

	require.NoError(t, c.DestroyUpload(context.Background(), "42", "u1"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.DestroyUpload(ctx, "42", "u2")
	require.Error(t, err)
	assert.Len(t, srv.Calls(), 1)
}

func TestNew_GeneratesRequestID(t *testing.T) {
	a, err := New(Config{BaseURL: "https://k.example.com"})
	require.NoError(t, err)
	b, err := New(Config{BaseURL: "https://k.example.com"})
	require.NoError(t, err)
	assert.NotEqual(t, a.RequestID(), b.RequestID())
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"server error", &APIError{StatusCode: 502}, true},
		{"too many requests", &APIError{StatusCode: 429}, true},
		{"not found", &APIError{StatusCode: 404}, false},
		{"transport", &TransportError{Err: errors.New("reset")}, true},
		{"cancelled", context.Canceled, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}
