// Package katello implements the content upload service and repository
// lookups against a Katello-compatible HTTP API.
//
// All calls are sequential and synchronous. Lookups (idempotent GETs) are
// retried; upload calls are not.
package katello

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// AcceptHeader selects version 2 of the API.
	AcceptHeader = "application/json;version=2"

	// RequestIDHeader carries the per-invocation correlation id.
	RequestIDHeader = "X-Request-Id"

	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 5 * time.Minute

	// DefaultLookupAttempts is the number of tries for repository lookups.
	DefaultLookupAttempts = 3

	// DefaultLookupDelay is the delay between lookup retries.
	DefaultLookupDelay = time.Second

	maxErrorBody = 64 << 10
)

// Config configures a Client.
type Config struct {
	// BaseURL is the server root, e.g. https://katello.example.com (required).
	BaseURL string

	Username string
	Password string

	// Timeout bounds each request. Zero uses DefaultTimeout.
	Timeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// CAFile is a PEM bundle trusted in addition to the system roots.
	CAFile string

	// RateLimit caps API calls per second. Zero disables pacing.
	RateLimit float64

	// LookupAttempts and LookupDelay control repository lookup retries.
	LookupAttempts uint
	LookupDelay    time.Duration

	// RequestID is sent on every call. Empty generates a random id.
	RequestID string

	UserAgent string

	// HTTPClient overrides the transport built from the TLS settings.
	HTTPClient *http.Client

	Logger *zap.Logger
}

// Client talks to the content management API.
type Client struct {
	baseURL   *url.URL
	username  string
	password  string
	requestID string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	attempts  uint
	delay     time.Duration
	log       *zap.Logger
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("katello: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("katello: parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("katello: base URL must be http or https: %q", cfg.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("katello: base URL has no host: %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient, err = newHTTPClient(cfg)
		if err != nil {
			return nil, err
		}
	}

	c := &Client{
		baseURL:   base,
		username:  cfg.Username,
		password:  cfg.Password,
		requestID: cfg.RequestID,
		userAgent: cfg.UserAgent,
		http:      httpClient,
		attempts:  cfg.LookupAttempts,
		delay:     cfg.LookupDelay,
		log:       cfg.Logger,
	}
	if c.requestID == "" {
		c.requestID = uuid.NewString()
	}
	if c.userAgent == "" {
		c.userAgent = "contentctl"
	}
	if c.attempts == 0 {
		c.attempts = DefaultLookupAttempts
	}
	if c.delay <= 0 {
		c.delay = DefaultLookupDelay
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c, nil
}

// RequestID returns the correlation id sent with every call.
func (c *Client) RequestID() string {
	return c.requestID
}

func newHTTPClient(cfg Config) (*http.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in via server.insecure_skip_verify
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("katello: read CA file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("katello: no certificates found in %s", cfg.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsCfg
	return &http.Client{Timeout: timeout, Transport: transport}, nil
}

type request struct {
	query     url.Values
	multipart *multipartForm
}

type multipartForm struct {
	fields    []formField
	fileField string
	fileName  string
	payload   []byte
}

type formField struct {
	name, value string
}

// requestOption adjusts a single call.
type requestOption func(*request)

func withQuery(q url.Values) requestOption {
	return func(r *request) { r.query = q }
}

// withMultipart sends the call as multipart/form-data with the given
// fields followed by one file part. The JSON body, if any, is ignored.
func withMultipart(fields []formField, fileField, fileName string, payload []byte) requestOption {
	return func(r *request) {
		r.multipart = &multipartForm{fields: fields, fileField: fileField, fileName: fileName, payload: payload}
	}
}

// do performs one API call. body is JSON-encoded when non-nil; out is
// decoded from a non-empty 2xx response when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any, opts ...requestOption) error {
	var r request
	for _, opt := range opts {
		opt(&r)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	var (
		reader      io.Reader
		contentType string
	)
	switch {
	case r.multipart != nil:
		buf, ct, err := r.multipart.encode()
		if err != nil {
			return fmt.Errorf("katello: encode multipart body: %w", err)
		}
		reader, contentType = buf, ct
	case body != nil:
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("katello: encode request body: %w", err)
		}
		reader, contentType = bytes.NewReader(data), "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("katello: build request: %w", err)
	}
	req.Header.Set("Accept", AcceptHeader)
	req.Header.Set(RequestIDHeader, c.requestID)
	req.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Method: method, Path: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.Debug("API call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode >= http.StatusBadRequest {
		return newAPIError(method, path, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Method: method, Path: path, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("katello: decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (m *multipartForm) encode() (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	buf.Grow(len(m.payload) + 512)
	mw := multipart.NewWriter(buf)

	for _, f := range m.fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}
	part, err := mw.CreateFormFile(m.fileField, m.fileName)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(m.payload); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf, mw.FormDataContentType(), nil
}

func newAPIError(method, path string, resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, Method: method, Path: path}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var env errorEnvelope
	if json.Unmarshal(data, &env) == nil {
		apiErr.Message = env.message()
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// errorEnvelope covers the error bodies the API returns.
type errorEnvelope struct {
	DisplayMessage string   `json:"displayMessage"`
	Errors         []string `json:"errors"`
	Error          *struct {
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"error"`
}

func (e errorEnvelope) message() string {
	switch {
	case e.DisplayMessage != "":
		return e.DisplayMessage
	case len(e.Errors) > 0:
		return strings.Join(e.Errors, "; ")
	case e.Error != nil && e.Error.Message != "":
		return e.Error.Message
	case e.Error != nil:
		return e.Error.Details
	}
	return ""
}
