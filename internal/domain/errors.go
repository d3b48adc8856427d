package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrPayloadTooLarge     = errors.New("payload too large")
	ErrNotFound            = errors.New("document not found")
	ErrInvalidState        = errors.New("invalid document state")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("access denied")
	ErrDuplicateCode       = errors.New("verification code already in use")
)

// StateError reports an operation attempted on a document in the wrong status.
type StateError struct {
	Op      string
	Current DocumentStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s document in status %q", e.Op, e.Current)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}
