package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no record exists for an id.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is returned when the caller has no valid session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict is returned for duplicate submissions and duplicate accounts.
	ErrConflict = errors.New("conflict")
)

// ValidationError describes a rejected field value. It is never persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// TransientStoreError wraps a backend failure that is neither a missing
// record nor a validation problem. Callers surface it as a generic failure
// and leave retrying to the user.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// Transient wraps err unless it already belongs to the known taxonomy.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	var te *TransientStoreError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrUnauthorized):
		return err
	case errors.As(err, &ve), errors.As(err, &te):
		return err
	}
	return &TransientStoreError{Op: op, Err: err}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTransient reports whether err carries a TransientStoreError.
func IsTransient(err error) bool {
	var te *TransientStoreError
	return errors.As(err, &te)
}
