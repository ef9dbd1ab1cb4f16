package engine

import (
	"errors"
	"fmt"

	"github.com/alphabot-ai/stumble/internal/store"
)

var (
	ErrValidation   = errors.New("invalid input")
	ErrUnauthorized = errors.New("not authorized")
	ErrConflict     = errors.New("conflict")
	ErrState        = errors.New("action not allowed in current state")
	ErrNotFound     = errors.New("not found")
	ErrInternal     = errors.New("internal error")
)

// BannedError is returned when a hard ban blocks an action.
type BannedError struct {
	Ban *store.Ban
}

func (e *BannedError) Error() string {
	return "banned: " + e.Ban.Name
}

func (e *BannedError) Unwrap() error {
	return ErrUnauthorized
}

// StoreError wraps a failure of the underlying store. It matches ErrInternal
// so callers can hide the detail.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrInternal
}

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func stateErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrState, fmt.Sprintf(format, args...))
}

func notFoundErr(what string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, what)
}

func conflictErr(what string) error {
	return fmt.Errorf("%w: %s", ErrConflict, what)
}
