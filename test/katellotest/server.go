// Package katellotest runs an in-process fake of the Katello content API
// for tests.
//
// Usage:
//
//	func TestUpload(t *testing.T) {
//	    srv := katellotest.New(t)
//	    srv.AddRepository(1, 10, "zoo")
//	    // point the client at srv.URL ...
//	    calls := srv.Calls()
//	}
package katellotest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// Credentials accepted by the fake.
const (
	Username = "admin"
	Password = "changeme"
)

// Call is one request received by the fake.
type Call struct {
	Method    string
	Path      string
	RequestID string
	Accept    string
}

// String renders the call as "METHOD /path".
func (c Call) String() string {
	return c.Method + " " + c.Path
}

// Import is a decoded import_uploads body.
type Import struct {
	RepositoryID         string        `json:"-"`
	Uploads              []ImportEntry `json:"uploads"`
	PublishRepository    bool          `json:"publish_repository"`
	SyncCapsule          bool          `json:"sync_capsule"`
	ContentType          string        `json:"content_type"`
	OstreeRepositoryName string        `json:"ostree_repository_name"`
}

// ImportEntry is one element of Import.Uploads.
type ImportEntry struct {
	ID            string `json:"id"`
	ContentUnitID string `json:"content_unit_id"`
	Name          string `json:"name"`
	Size          *int64 `json:"size"`
	Checksum      string `json:"checksum"`
	Digest        string `json:"digest"`
}

// Chunk is one received multipart update.
type Chunk struct {
	UploadID string
	Offset   int64
	Size     int64
	Payload  []byte
}

// Session is a server-side upload session.
type Session struct {
	ID          string
	Size        int64
	Checksum    string
	ContentType string
	Data        []byte
	Destroyed   bool
}

type entity struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Label    string `json:"label,omitempty"`
	parentID int64
}

// Server is the fake API. Fields ending in Status make the matching
// endpoint fail with that HTTP status when non-zero.
type Server struct {
	URL string

	mu       sync.Mutex
	calls    []Call
	sessions map[string]*Session
	order    []string
	chunks   []Chunk
	imports  []Import
	updates  map[string]map[string]any
	nextID   int

	orgs     []entity
	products []entity
	repos    []entity

	// KnownChecksums maps a checksum to an existing content unit id;
	// creates with that checksum return no session.
	KnownChecksums map[string]string

	// UploadResults is returned for every import; nil means one result
	// of type "file".
	UploadResults []map[string]string

	CreateStatus  int
	UpdateStatus  int
	ImportStatus  int
	DestroyStatus int
	ListStatus    int

	// FailUpdateAt fails the update whose offset equals this value with
	// UpdateStatus (500 when unset). Negative disables it.
	FailUpdateAt int64

	// FailImportFor fails imports whose first entry has this name.
	FailImportFor string
}

// New starts a fake server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		sessions:       make(map[string]*Session),
		updates:        make(map[string]map[string]any),
		KnownChecksums: make(map[string]string),
		FailUpdateAt:   -1,
	}
	srv := httptest.NewServer(s.router())
	t.Cleanup(srv.Close)
	s.URL = srv.URL
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record, s.auth)

	r.Route("/katello/api", func(r chi.Router) {
		r.Get("/organizations", s.list(func() []entity { return s.orgs }, nil))
		r.Get("/products", s.list(func() []entity { return s.products }, func(req *http.Request) int64 {
			return parseID(req.URL.Query().Get("organization_id"))
		}))
		r.Get("/repositories", s.list(func() []entity { return s.repos }, func(req *http.Request) int64 {
			return parseID(req.URL.Query().Get("product_id"))
		}))

		r.Put("/repositories/{repoID}", s.updateRepository)
		r.Put("/repositories/{repoID}/import_uploads", s.importUploads)
		r.Post("/repositories/{repoID}/content_uploads", s.createUpload)
		r.Put("/repositories/{repoID}/content_uploads/{uploadID}", s.updateUpload)
		r.Delete("/repositories/{repoID}/content_uploads/{uploadID}", s.destroyUpload)
	})
	return r
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls = append(s.calls, Call{
			Method:    r.Method,
			Path:      r.URL.Path,
			RequestID: r.Header.Get("X-Request-Id"),
			Accept:    r.Header.Get("Accept"),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != Username || pass != Password {
			writeError(w, http.StatusUnauthorized, "Unable to authenticate user "+user)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AddOrganization registers an organization for lookups.
func (s *Server) AddOrganization(id int64, name, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orgs = append(s.orgs, entity{ID: id, Name: name, Label: label})
}

// AddProduct registers a product under an organization.
func (s *Server) AddProduct(orgID, id int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = append(s.products, entity{ID: id, Name: name, parentID: orgID})
}

// AddRepository registers a repository under a product.
func (s *Server) AddRepository(productID, id int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos = append(s.repos, entity{ID: id, Name: name, parentID: productID})
}

// Calls returns the received requests in order.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallLines returns Calls rendered as "METHOD /path".
func (s *Server) CallLines() []string {
	calls := s.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

// Sessions returns the sessions in creation order.
func (s *Server) Sessions() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Session, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.sessions[id])
	}
	return out
}

// Chunks returns the received chunk updates in order.
func (s *Server) Chunks() []Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Chunk(nil), s.chunks...)
}

// Imports returns the received import bodies in order.
func (s *Server) Imports() []Import {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Import(nil), s.imports...)
}

// RepositoryUpdate returns the last attribute update body for a repository.
func (s *Server) RepositoryUpdate(id string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates[id]
}

func (s *Server) list(all func() []entity, parent func(*http.Request) int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		status := s.ListStatus
		items := all()
		s.mu.Unlock()
		if status != 0 {
			writeError(w, status, "list failed")
			return
		}

		q := r.URL.Query()
		name := q.Get("name")
		if search := q.Get("search"); search != "" {
			name = searchValue(search, "name")
		}
		label := searchValue(q.Get("search"), "label")

		results := []entity{}
		for _, e := range items {
			if parent != nil && e.parentID != parent(r) {
				continue
			}
			// Mimic the server's fuzzy search: substring match.
			if name != "" && !strings.Contains(e.Name, name) {
				continue
			}
			if label != "" && e.Label != label {
				continue
			}
			results = append(results, e)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"total":    len(items),
			"subtotal": len(results),
			"results":  results,
		})
	}
}

func (s *Server) createUpload(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Size        int64  `json:"size"`
		Checksum    string `json:"checksum"`
		ContentType string `json:"content_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateStatus != 0 {
		writeError(w, s.CreateStatus, "create failed")
		return
	}
	if unit, ok := s.KnownChecksums[body.Checksum]; ok && body.Checksum != "" {
		writeJSON(w, http.StatusOK, map[string]any{"upload_id": nil, "content_unit_href": unit})
		return
	}

	s.nextID++
	id := fmt.Sprintf("upload-%d", s.nextID)
	s.sessions[id] = &Session{ID: id, Size: body.Size, Checksum: body.Checksum, ContentType: body.ContentType}
	s.order = append(s.order, id)
	writeJSON(w, http.StatusOK, map[string]any{"upload_id": id})
}

func (s *Server) updateUpload(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "uploadID")
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset := parseID(r.FormValue("offset"))
	size := parseID(r.FormValue("size"))
	f, _, err := r.FormFile("content")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer func() { _ = f.Close() }()
	payload, err := io.ReadAll(f)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpdateAt >= 0 && offset == s.FailUpdateAt {
		status := s.UpdateStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		writeError(w, status, "chunk rejected")
		return
	}
	if s.UpdateStatus != 0 {
		writeError(w, s.UpdateStatus, "chunk rejected")
		return
	}
	sess, ok := s.sessions[uploadID]
	if !ok || sess.Destroyed {
		writeError(w, http.StatusNotFound, "upload not found")
		return
	}
	if offset != int64(len(sess.Data)) {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("offset %d does not follow %d bytes", offset, len(sess.Data)))
		return
	}
	sess.Data = append(sess.Data, payload...)
	s.chunks = append(s.chunks, Chunk{UploadID: uploadID, Offset: offset, Size: size, Payload: payload})
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) destroyUpload(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "uploadID")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DestroyStatus != 0 {
		writeError(w, s.DestroyStatus, "destroy failed")
		return
	}
	// Sessions skipped for known content are released as a no-op.
	if sess, ok := s.sessions[uploadID]; ok {
		sess.Destroyed = true
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) importUploads(w http.ResponseWriter, r *http.Request) {
	var body Import
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	body.RepositoryID = chi.URLParam(r, "repoID")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.imports = append(s.imports, body)
	if s.ImportStatus != 0 {
		writeError(w, s.ImportStatus, "import failed")
		return
	}
	if s.FailImportFor != "" && len(body.Uploads) > 0 && body.Uploads[0].Name == s.FailImportFor {
		writeError(w, http.StatusUnprocessableEntity, "import failed for "+s.FailImportFor)
		return
	}

	results := s.UploadResults
	if results == nil {
		results = []map[string]string{{"type": "file"}}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":     "task-1",
		"state":  "stopped",
		"output": map[string]any{"upload_results": results},
	})
}

func (s *Server) updateRepository(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := chi.URLParam(r, "repoID")
	found := false
	for _, e := range s.repos {
		if strconv.FormatInt(e.ID, 10) == id {
			found = true
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, "Repository with id "+id+" not found")
		return
	}
	s.updates[id] = body
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

// searchValue extracts key="value" from a scoped search expression.
func searchValue(search, key string) string {
	prefix := key + "="
	if !strings.HasPrefix(search, prefix) {
		return ""
	}
	v := strings.TrimPrefix(search, prefix)
	if unq, err := strconv.Unquote(v); err == nil {
		return unq
	}
	return v
}

func parseID(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"displayMessage": msg, "errors": []string{msg}})
}
