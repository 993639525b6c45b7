package cmd

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/contentctl/pkg/katello"
	"github.com/3leaps/contentctl/pkg/output"
	"github.com/3leaps/contentctl/test/katellotest"
)

func writeInputs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func uploadArgs(srv *katellotest.Server, extra ...string) []string {
	args := append([]string{"repository", "upload-content"}, serverArgs(srv)...)
	return append(args, extra...)
}

func TestUploadContent_Directory(t *testing.T) {
	srv := katellotest.New(t)
	dir := writeInputs(t, map[string]string{
		"b.rpm":        "second file",
		"a.rpm":        "first",
		".hidden":      "skip me",
		"nested/c.rpm": "not descended into",
	})

	out, _, err := runCLI(t, uploadArgs(srv, "--id", "42", "--path", dir, "--chunk-size", "4")...)
	require.NoError(t, err)

	assert.Equal(t, "Successfully uploaded file 'a.rpm'\nSuccessfully uploaded file 'b.rpm'\n", out)

	sessions := srv.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, "first", string(sessions[0].Data))
	assert.Equal(t, "second file", string(sessions[1].Data))
	for _, s := range sessions {
		assert.True(t, s.Destroyed, "session %s not destroyed", s.ID)
	}

	sum := sha256.Sum256([]byte("first"))
	assert.Equal(t, hex.EncodeToString(sum[:]), sessions[0].Checksum)

	// 11 bytes in 4-byte chunks.
	var offsets []int64
	for _, c := range srv.Chunks() {
		if c.UploadID == sessions[1].ID {
			offsets = append(offsets, c.Offset)
		}
	}
	assert.Equal(t, []int64{0, 4, 8}, offsets)

	imports := srv.Imports()
	require.Len(t, imports, 2)
	assert.False(t, imports[0].PublishRepository)
	assert.False(t, imports[0].SyncCapsule)
	assert.True(t, imports[1].PublishRepository)
	assert.True(t, imports[1].SyncCapsule)
	assert.Equal(t, "a.rpm", imports[0].Uploads[0].Name)
	assert.Equal(t, "b.rpm", imports[1].Uploads[0].Name)
}

func TestUploadContent_NoInput(t *testing.T) {
	srv := katellotest.New(t)
	dir := writeInputs(t, map[string]string{".only-hidden": "x"})

	_, _, err := runCLI(t, uploadArgs(srv, "--id", "42", "--path", dir)...)
	ee := requireExitCode(t, err, ExitNoInput)
	assert.Equal(t, "Could not find any files matching "+dir, ee.Message)
	assert.Empty(t, srv.Calls())
}

func TestUploadContent_NoGlobMatches(t *testing.T) {
	srv := katellotest.New(t)
	dir := writeInputs(t, map[string]string{"a.txt": "x"})

	_, _, err := runCLI(t, uploadArgs(srv, "--id", "42", "--path", filepath.Join(dir, "*.rpm"))...)
	requireExitCode(t, err, ExitNoInput)
	assert.Empty(t, srv.Calls())
}

func TestUploadContent_InvalidArguments(t *testing.T) {
	dir := writeInputs(t, map[string]string{"a.rpm": "x"})

	tests := []struct {
		name string
		args []string
	}{
		{name: "no repository", args: []string{"--path", dir}},
		{name: "id with product", args: []string{"--id", "42", "--product", "animals", "--path", dir}},
		{name: "name without product", args: []string{"--name", "zoo", "--path", dir}},
		{name: "product without organization", args: []string{"--name", "zoo", "--product", "animals", "--path", dir}},
		{name: "chunk size too large", args: []string{"--id", "42", "--path", dir, "--chunk-size", "2621441"}},
		{name: "bad glob", args: []string{"--id", "42", "--path", filepath.Join(dir, "[a")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := katellotest.New(t)
			_, _, err := runCLI(t, uploadArgs(srv, tt.args...)...)
			requireExitCode(t, err, foundry.ExitInvalidArgument)
			assert.Empty(t, srv.Calls())
		})
	}
}

func TestUploadContent_IDWithProductMessage(t *testing.T) {
	srv := katellotest.New(t)
	dir := writeInputs(t, map[string]string{"a.rpm": "x"})

	_, _, err := runCLI(t, uploadArgs(srv, "--id", "42", "--product-id", "10", "--path", dir)...)
	requireExitCode(t, err, foundry.ExitInvalidArgument)

	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "Cannot specify both product options and repository ID.", ee.Message)
	assert.ErrorIs(t, err, katello.ErrIDWithProduct)
	assert.Empty(t, srv.Calls())
}

func TestUploadContent_FailFast(t *testing.T) {
	srv := katellotest.New(t)
	srv.FailImportFor = "a.rpm"
	dir := writeInputs(t, map[string]string{"a.rpm": "first", "b.rpm": "second"})

	out, errOut, err := runCLI(t, uploadArgs(srv, "--id", "42", "--path", dir)...)
	requireExitCode(t, err, ExitDataErr)

	assert.Empty(t, out)
	assert.Contains(t, errOut, "Failed to upload 'a.rpm'")

	sessions := srv.Sessions()
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Destroyed)
	assert.Len(t, srv.Imports(), 1)
}

func TestUploadContent_ContinueOnError(t *testing.T) {
	srv := katellotest.New(t)
	srv.FailImportFor = "a.rpm"
	dir := writeInputs(t, map[string]string{"a.rpm": "first", "b.rpm": "second"})

	out, errOut, err := runCLI(t, uploadArgs(srv, "--id", "42", "--path", dir, "--continue-on-error")...)
	requireExitCode(t, err, ExitDataErr)

	assert.Equal(t, "Successfully uploaded file 'b.rpm'\n", out)
	assert.Contains(t, errOut, "Failed to upload 'a.rpm'")

	sessions := srv.Sessions()
	require.Len(t, sessions, 2)
	for _, s := range sessions {
		assert.True(t, s.Destroyed)
	}
	imports := srv.Imports()
	require.Len(t, imports, 2)
	assert.True(t, imports[1].PublishRepository)
}

func TestUploadContent_ChunkFailureCleansUp(t *testing.T) {
	srv := katellotest.New(t)
	srv.FailUpdateAt = 4
	dir := writeInputs(t, map[string]string{"a.rpm": "0123456789"})

	_, errOut, err := runCLI(t, uploadArgs(srv, "--id", "42", "--path", dir, "--chunk-size", "4")...)
	requireExitCode(t, err, ExitDataErr)
	assert.Contains(t, errOut, "Failed to upload 'a.rpm'")

	sessions := srv.Sessions()
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Destroyed)
	assert.Empty(t, srv.Imports())
}

func TestUploadContent_KnownContentSkipsTransfer(t *testing.T) {
	srv := katellotest.New(t)
	sum := sha256.Sum256([]byte("already there"))
	srv.KnownChecksums[hex.EncodeToString(sum[:])] = "/pulp/api/v3/content/file/files/9/"
	dir := writeInputs(t, map[string]string{"a.rpm": "already there"})

	out, _, err := runCLI(t, uploadArgs(srv, "--id", "42", "--path", dir)...)
	require.NoError(t, err)
	assert.Equal(t, "Successfully uploaded file 'a.rpm'\n", out)

	assert.Empty(t, srv.Chunks())
	imports := srv.Imports()
	require.Len(t, imports, 1)
	assert.Equal(t, "/pulp/api/v3/content/file/files/9/", imports[0].Uploads[0].ContentUnitID)
}

func TestUploadContent_ManifestMessage(t *testing.T) {
	srv := katellotest.New(t)
	srv.UploadResults = []map[string]string{{"type": "docker_manifest", "digest": "sha256:abc"}}
	dir := writeInputs(t, map[string]string{"image.tar": "layers"})

	out, _, err := runCLI(t, uploadArgs(srv, "--id", "42", "--path", filepath.Join(dir, "image.tar"),
		"--content-type", "docker_manifest")...)
	require.NoError(t, err)
	assert.Equal(t, "Successfully uploaded manifest file 'image.tar' with digest 'sha256:abc'\n", out)
	assert.Equal(t, "docker_manifest", srv.Imports()[0].ContentType)
	assert.Equal(t, "docker_manifest", srv.Sessions()[0].ContentType)
}

func TestUploadContent_ByName(t *testing.T) {
	srv := katellotest.New(t)
	srv.AddOrganization(1, "ACME", "acme")
	srv.AddProduct(1, 10, "animals")
	srv.AddRepository(10, 42, "zoo")
	dir := writeInputs(t, map[string]string{"a.rpm": "x"})

	_, _, err := runCLI(t, uploadArgs(srv, "--name", "zoo", "--product", "animals",
		"--organization-label", "acme", "--path", dir)...)
	require.NoError(t, err)

	imports := srv.Imports()
	require.Len(t, imports, 1)
	assert.Equal(t, "42", imports[0].RepositoryID)
}

func TestUploadContent_UnknownRepository(t *testing.T) {
	srv := katellotest.New(t)
	srv.AddRepository(10, 42, "zoo")
	dir := writeInputs(t, map[string]string{"a.rpm": "x"})

	_, _, err := runCLI(t, uploadArgs(srv, "--name", "aquarium", "--product-id", "10", "--path", dir)...)
	requireExitCode(t, err, foundry.ExitInvalidArgument)
	assert.Empty(t, srv.Sessions())
}

func TestUploadContent_JSONL(t *testing.T) {
	srv := katellotest.New(t)
	srv.FailImportFor = "b.rpm"
	dir := writeInputs(t, map[string]string{"a.rpm": "first", "b.rpm": "second", "c.rpm": "third"})

	out, _, err := runCLI(t, uploadArgs(srv, "--id", "42", "--path", dir, "--continue-on-error", "-o", "jsonl")...)
	requireExitCode(t, err, ExitDataErr)

	var records []output.Record
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var rec output.Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		records = append(records, rec)
	}
	require.Len(t, records, 4)

	types := make([]string, len(records))
	for i, r := range records {
		types[i] = r.Type
		assert.Equal(t, "42", r.RepositoryID)
		assert.NotEmpty(t, r.RunID)
	}
	assert.Equal(t, []string{output.TypeUpload, output.TypeError, output.TypeUpload, output.TypeSummary}, types)

	var last output.UploadRecord
	require.NoError(t, json.Unmarshal(records[2].Data, &last))
	assert.Equal(t, "c.rpm", last.Name)
	assert.True(t, last.Published)
	assert.Equal(t, int64(5), last.Bytes)

	var failed output.ErrorRecord
	require.NoError(t, json.Unmarshal(records[1].Data, &failed))
	assert.Equal(t, output.ErrCodeFinalize, failed.Code)

	var summary output.SummaryRecord
	require.NoError(t, json.Unmarshal(records[3].Data, &summary))
	assert.Equal(t, 3, summary.FilesTotal)
	assert.Equal(t, 2, summary.FilesUploaded)
	assert.Equal(t, 1, summary.FilesFailed)

	// The run id is the request id sent to the server.
	assert.Equal(t, srv.Calls()[0].RequestID, records[0].RunID)
}

func TestUploadContent_SessionCreateFailure(t *testing.T) {
	srv := katellotest.New(t)
	srv.CreateStatus = http.StatusInternalServerError
	dir := writeInputs(t, map[string]string{"a.rpm": "first"})

	_, errOut, err := runCLI(t, uploadArgs(srv, "--id", "42", "--path", dir)...)
	requireExitCode(t, err, ExitDataErr)
	assert.Contains(t, errOut, "Failed to upload 'a.rpm'")

	assert.Equal(t, []string{"POST /katello/api/repositories/42/content_uploads"}, srv.CallLines())
}
