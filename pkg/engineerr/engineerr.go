// Package engineerr holds the error kinds of spec §7. Structural errors
// (metainfo mismatch, invariant violation) are not modeled here: they are
// fatal and surface as a panic per the rassert/guarantee convention
// described in spec §7.
package engineerr

import (
	"errors"
	"fmt"
)

// Interrupted is returned when an interruptor signal pulses while an
// operation is suspended. Every public entry point may surface it.
var Interrupted = errors.New("operation was interrupted")

// NotFound is returned when a name or UUID does not resolve to any
// sindex record.
var NotFound = errors.New("not found")

// SindexNotReadyError distinguishes "still being built" from "being
// deleted" in its message, per spec §4.4 acquire-for-{read,write}.
type SindexNotReadyError struct {
	Name         string
	BeingDeleted bool
}

func (e *SindexNotReadyError) Error() string {
	if e.BeingDeleted {
		return fmt.Sprintf("index `%s` is being deleted", e.Name)
	}
	return fmt.Sprintf("index `%s` was accessed before its construction was finished", e.Name)
}

// SindexNotReady constructs the §7 SindexNotReady error for name,
// distinguishing in-construction from being-deleted.
func SindexNotReady(name string, beingDeleted bool) error {
	return &SindexNotReadyError{Name: name, BeingDeleted: beingDeleted}
}

// UserQueryError is the generic surface for the artificial-table
// adapter: unsupported features and per-row application errors.
type UserQueryError struct {
	Message string
	Cause   error
}

func (e *UserQueryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *UserQueryError) Unwrap() error { return e.Cause }

// NewUserQueryError wraps msg as a UserQueryError with no cause.
func NewUserQueryError(msg string) error {
	return &UserQueryError{Message: msg}
}

// WrapBackendError promotes an opaque backend failure to a UserQueryError
// carrying the backend's message (spec §7: BackendError).
func WrapBackendError(msg string, cause error) error {
	return &UserQueryError{Message: msg, Cause: cause}
}

// Fixed, user-visible messages for artificial-table operations that are
// unconditionally unsupported (spec §4.7 Non-goals).
var (
	ErrNoChangefeeds = NewUserQueryError("changefeeds are not supported on artificial tables")
	ErrNoSync        = NewUserQueryError("sync is not supported on artificial tables")
	ErrNoSindex      = NewUserQueryError("secondary indexes are not supported on artificial tables")
	ErrNoGeoQuery    = NewUserQueryError("geospatial queries are not supported on artificial tables")
	ErrUnknownSindex = NewUserQueryError("unknown secondary index")
)
