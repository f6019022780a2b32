package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the services matches exactly one of
// these with errors.Is.
var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrNotFound           = errors.New("container not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrImageUnavailable   = errors.New("image unavailable")
	ErrRuntimeMissing     = errors.New("runtime container missing")
	ErrRuntimeFailure     = errors.New("runtime failure")
	ErrExecFailure        = errors.New("exec failure")
)

var kinds = []error{
	ErrNotAuthenticated,
	ErrNotFound,
	ErrInvalidArgument,
	ErrPreconditionFailed,
	ErrImageUnavailable,
	ErrRuntimeMissing,
	ErrRuntimeFailure,
	ErrExecFailure,
}

// OpError records which operation failed against which resource.
type OpError struct {
	Op       string
	Resource string
	Kind     error
	Err      error
}

// NewOpError builds an OpError. If kind is nil it is taken from err, falling
// back to ErrRuntimeFailure.
func NewOpError(op, resource string, kind, err error) *OpError {
	if kind == nil {
		kind = KindOf(err)
	}
	return &OpError{Op: op, Resource: resource, Kind: kind, Err: err}
}

func (e *OpError) Error() string {
	msg := e.Op
	if e.Resource != "" {
		msg += " " + e.Resource
	}
	if e.Err != nil && e.Err != e.Kind {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return fmt.Sprintf("%s: %v", msg, e.Kind)
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the kind sentinel err matches, or ErrRuntimeFailure when it
// matches none.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrRuntimeFailure
}

// KindName is the stable, machine readable name of an error kind.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrNotAuthenticated:
		return "not_authenticated"
	case ErrNotFound:
		return "not_found"
	case ErrInvalidArgument:
		return "invalid_argument"
	case ErrPreconditionFailed:
		return "precondition_failed"
	case ErrImageUnavailable:
		return "image_unavailable"
	case ErrRuntimeMissing:
		return "runtime_missing"
	case ErrExecFailure:
		return "exec_failure"
	default:
		return "runtime_failure"
	}
}
