package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

type recordedChunk struct {
	uploadID  string
	offset    int64
	length    int
	totalSize int64
}

// fakeService records every call against an in-memory upload service.
type fakeService struct {
	calls   []string
	creates []CreateRequest
	chunks  []recordedChunk
	imports []ImportRequest
	destroy []string

	nextID int

	// Hooks; nil means succeed.
	onCreate  func(n int, req CreateRequest) (*CreateResponse, error)
	onUpdate  func(n int, chunk Chunk) error
	onImport  func(n int, req ImportRequest) (*ImportResponse, error)
	onDestroy func(uploadID string) error
}

func (f *fakeService) CreateUpload(_ context.Context, repositoryID string, req CreateRequest) (*CreateResponse, error) {
	f.calls = append(f.calls, "create")
	f.creates = append(f.creates, req)
	if f.onCreate != nil {
		resp, err := f.onCreate(len(f.creates), req)
		if err != nil || resp != nil {
			return resp, err
		}
	}
	f.nextID++
	return &CreateResponse{UploadID: fmt.Sprintf("upload-%d", f.nextID)}, nil
}

func (f *fakeService) UpdateUpload(_ context.Context, _ string, uploadID string, chunk Chunk) error {
	f.calls = append(f.calls, "update")
	f.chunks = append(f.chunks, recordedChunk{uploadID: uploadID, offset: chunk.Offset, length: len(chunk.Payload), totalSize: chunk.TotalSize})
	if f.onUpdate != nil {
		return f.onUpdate(len(f.chunks), chunk)
	}
	return nil
}

func (f *fakeService) DestroyUpload(_ context.Context, _ string, uploadID string) error {
	f.calls = append(f.calls, "destroy")
	f.destroy = append(f.destroy, uploadID)
	if f.onDestroy != nil {
		return f.onDestroy(uploadID)
	}
	return nil
}

func (f *fakeService) ImportUploads(_ context.Context, _ string, req ImportRequest) (*ImportResponse, error) {
	f.calls = append(f.calls, "import")
	f.imports = append(f.imports, req)
	if f.onImport != nil {
		return f.onImport(len(f.imports), req)
	}
	return &ImportResponse{}, nil
}

func (f *fakeService) count(op string) int {
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

// memOpener serves inputs from memory.
type memOpener struct {
	files    map[string][]byte
	declared map[string]int64
	opens    int
}

func (m *memOpener) Open(_ context.Context, ref string) (io.ReadCloser, int64, error) {
	m.opens++
	data, ok := m.files[ref]
	if !ok {
		return nil, 0, errors.New("no such file")
	}
	size := int64(len(data))
	if d, ok := m.declared[ref]; ok {
		size = d
	}
	return io.NopCloser(bytes.NewReader(data)), size, nil
}

type collectReporter struct {
	results []FileResult
}

func (c *collectReporter) Report(_ context.Context, res *FileResult) {
	c.results = append(c.results, *res)
}
