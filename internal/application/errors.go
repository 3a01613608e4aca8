package application

import (
	"errors"

	"github.com/example/library-system/internal/bookid"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a unique attribute is already taken.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrConflict is returned when the current state of a resource forbids the change.
	ErrConflict = errors.New("application: conflict")
	// ErrInvalidCredentials is returned when a login does not match an account.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrAccountDisabled is returned when an inactive account tries to log in.
	ErrAccountDisabled = errors.New("application: account disabled")
	// ErrLimitExceeded is returned when a borrower already holds the maximum number of loans.
	ErrLimitExceeded = errors.New("application: borrowing limit exceeded")
	// ErrBookUnavailable is returned when a book is not available for borrowing.
	ErrBookUnavailable = errors.New("application: book unavailable")
	// ErrAlreadyReturned is returned when a borrowing has already been settled.
	ErrAlreadyReturned = errors.New("application: already returned")
	// ErrStoreUnavailable is returned when the backing store cannot complete a request.
	ErrStoreUnavailable = errors.New("application: store unavailable")
	// ErrInvalidArgument is returned when catalog identifier inputs are unusable.
	ErrInvalidArgument = bookid.ErrInvalidArgument
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error. The first message per field wins.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

func (v *ValidationError) orNil() error {
	if v.HasErrors() {
		return v
	}
	return nil
}
