package prompts

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Use with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrBackend         = errors.New("backend error")
)

// HTTPError is implemented by errors that map to an HTTP status code.
type HTTPError interface {
	error
	StatusCode() int
}

// NotFoundError indicates a document, version or track does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}
func (e *NotFoundError) StatusCode() int      { return http.StatusNotFound }
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError indicates a rename or create would collide with an existing identity.
type ConflictError struct {
	Resource string
	ID       string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Resource, e.ID)
}
func (e *ConflictError) StatusCode() int      { return http.StatusConflict }
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// InvalidArgumentError is a precondition violation, reported before any
// backend call is made.
type InvalidArgumentError struct {
	Message string
}

func (e *InvalidArgumentError) Error() string        { return e.Message }
func (e *InvalidArgumentError) StatusCode() int      { return http.StatusBadRequest }
func (e *InvalidArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

// BackendError wraps an error returned by the generation or social data backend.
// The backend message is kept verbatim.
type BackendError struct {
	Backend string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Backend, e.Err)
}
func (e *BackendError) Unwrap() error        { return e.Err }
func (e *BackendError) StatusCode() int      { return http.StatusBadGateway }
func (e *BackendError) Is(target error) bool { return target == ErrBackend }

// Invalidf returns an InvalidArgumentError with a formatted message.
func Invalidf(format string, args ...any) error {
	return &InvalidArgumentError{Message: fmt.Sprintf(format, args...)}
}

// StatusCode returns the HTTP status for err, or 500 when err carries none.
func StatusCode(err error) int {
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}
