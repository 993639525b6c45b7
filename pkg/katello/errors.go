package katello

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound indicates a lookup matched nothing.
	ErrNotFound = errors.New("not found")

	// ErrAmbiguous indicates a lookup matched more than one record.
	ErrAmbiguous = errors.New("ambiguous match")

	// ErrIDWithProduct indicates a repository id was combined with
	// product options.
	ErrIDWithProduct = errors.New("repository id cannot be combined with product options")
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// TransportError is a failure to exchange a request with the server.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// LookupError describes a failed repository identification step.
type LookupError struct {
	Kind  string
	Query string
	Err   error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Kind, e.Query, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a 404 or an empty lookup.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnauthorized reports whether the server rejected the credentials.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden)
}

// IsUnavailable reports whether err is a transport failure or a 5xx.
func IsUnavailable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	var tErr *TransportError
	return errors.As(err, &tErr)
}

// retryable reports whether a lookup should be attempted again.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}
	var tErr *TransportError
	return errors.As(err, &tErr)
}
