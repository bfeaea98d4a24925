package storage

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("storage: record not found")
	ErrConflict = errors.New("storage: concurrent modification")
)

// Error is a transient backend failure (transport, timeout, driver error).
type Error struct {
	Op         string
	Collection string
	Err        error
}

func (e *Error) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap classifies a backend error. ErrNotFound and ErrConflict pass through
// untouched; anything else becomes a transient *Error.
func Wrap(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Collection: collection, Err: err}
}

// IsTransient reports whether err is a storage failure worth retrying.
func IsTransient(err error) bool {
	var se *Error
	return errors.As(err, &se)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
