package services

import (
	"errors"
	"fmt"
)

// ErrNotFound covers missing, expired, exhausted and undecodable pastes.
// Callers cannot tell these apart.
var ErrNotFound = errors.New("paste not found")

// ValidationError reports a rejected create request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// StoreError wraps a failure of the record store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
