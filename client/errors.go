package client

import (
	"errors"
	"net/http"

	"github.com/sony/gobreaker/v2"

	"github.com/daveduya011/wph-task-manager/domain"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("task service unavailable")

// StatusError is a non-2xx API response.
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return e.Method + " " + e.Path + ": " + msg
}

// Unwrap exposes the domain error matching the status code so callers can
// use errors.Is and errors.As against the domain taxonomy.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case e.Status == http.StatusNotFound:
		return domain.ErrNotFound
	case e.Status == http.StatusConflict:
		return domain.ErrConflict
	case e.Status == http.StatusBadRequest:
		return &domain.ValidationError{Reason: e.Message}
	default:
		return &domain.TransientStoreError{Op: e.Method + " " + e.Path, Err: errors.New(e.Message)}
	}
}

// Result is the uniform outcome handed to the presentation layer.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// OK is the successful Result.
var OK = Result{Success: true}

// ResultOf converts err into a Result. A nil error is a success.
func ResultOf(err error) Result {
	if err == nil {
		return OK
	}
	var se *StatusError
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return Result{Error: "Unauthorized"}
	case errors.Is(err, domain.ErrNotFound):
		return Result{Error: "Task not found"}
	case errors.Is(err, ErrUnavailable):
		return Result{Error: "Service unavailable, try again later"}
	case errors.As(err, &se) && se.Message != "":
		return Result{Error: se.Message}
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return Result{Error: ve.Error()}
	}
	return Result{Error: err.Error()}
}

func breakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Join(ErrUnavailable, err)
	}
	return err
}
