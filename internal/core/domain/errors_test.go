package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpErrorMatchesKindAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewOpError("start", "abc123", ErrRuntimeFailure, cause)

	assert.ErrorIs(t, err, ErrRuntimeFailure)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "start abc123: connection refused", err.Error())
}

func TestOpErrorInfersKind(t *testing.T) {
	wrapped := fmt.Errorf("inspect: %w", ErrRuntimeMissing)
	err := NewOpError("stop", "abc123", nil, wrapped)
	assert.Equal(t, ErrRuntimeMissing, err.Kind)

	err = NewOpError("stop", "abc123", nil, errors.New("boom"))
	assert.Equal(t, ErrRuntimeFailure, err.Kind)
}

func TestKindName(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrNotAuthenticated, "not_authenticated"},
		{NewOpError("start", "x", ErrNotFound, nil), "not_found"},
		{fmt.Errorf("wrap: %w", ErrExecFailure), "exec_failure"},
		{ErrPreconditionFailed, "precondition_failed"},
		{errors.New("other"), "runtime_failure"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindName(tt.err), tt.err.Error())
	}
}
