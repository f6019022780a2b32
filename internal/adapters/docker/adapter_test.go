package docker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/melih/lighthouse-sandbox/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	missing := classify("failed to start container", fmt.Errorf("No such container: abc: %w", errdefs.ErrNotFound))
	assert.ErrorIs(t, missing, domain.ErrRuntimeMissing)
	assert.Contains(t, missing.Error(), "failed to start container")

	other := classify("failed to start container", errors.New("daemon unreachable"))
	assert.NotErrorIs(t, other, domain.ErrRuntimeMissing)
	assert.Equal(t, domain.ErrRuntimeFailure, domain.KindOf(other))
}

func TestPullError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"registry 404", fmt.Errorf("manifest for x not found: %w", errdefs.ErrNotFound), domain.ErrImageUnavailable},
		{"unauthorized", fmt.Errorf("denied: %w", errdefs.ErrUnauthenticated), domain.ErrImageUnavailable},
		{"stream manifest unknown", &jsonmessage.JSONError{Message: "manifest unknown: manifest unknown"}, domain.ErrImageUnavailable},
		{"stream access denied", &jsonmessage.JSONError{Message: "pull access denied for nope, repository does not exist"}, domain.ErrImageUnavailable},
		{"stream io failure", &jsonmessage.JSONError{Message: "unexpected EOF"}, domain.ErrRuntimeFailure},
		{"daemon down", errors.New("Cannot connect to the Docker daemon: connection refused"), domain.ErrRuntimeFailure},
		{"cancelled", context.Canceled, domain.ErrRuntimeFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pullError("javierhersan/code-ai", tt.err)
			assert.Equal(t, tt.want, domain.KindOf(err))
			assert.ErrorIs(t, err, tt.err)
			assert.Contains(t, err.Error(), "failed to pull image javierhersan/code-ai")
		})
	}
}

func TestWaitExecReturnsExitCodeOnceFinished(t *testing.T) {
	polls := 0
	inspect := func(ctx context.Context, id string) (container.ExecInspect, error) {
		polls++
		if polls < 3 {
			return container.ExecInspect{ExecID: id, Running: true}, nil
		}
		return container.ExecInspect{ExecID: id, ExitCode: 2}, nil
	}

	code, err := waitExec(context.Background(), inspect, "e1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, code)
	assert.Equal(t, 3, polls)
}

func TestWaitExecStillRunningIsAnError(t *testing.T) {
	inspect := func(ctx context.Context, id string) (container.ExecInspect, error) {
		return container.ExecInspect{ExecID: id, Running: true}, nil
	}

	_, err := waitExec(context.Background(), inspect, "e1", 60*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still running")
	assert.Equal(t, domain.ErrRuntimeFailure, domain.KindOf(err))
}

func TestWaitExecHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inspect := func(context.Context, string) (container.ExecInspect, error) {
		cancel()
		return container.ExecInspect{Running: true}, nil
	}

	_, err := waitExec(ctx, inspect, "e1", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitExecMissingContainer(t *testing.T) {
	inspect := func(context.Context, string) (container.ExecInspect, error) {
		return container.ExecInspect{}, fmt.Errorf("no such exec: %w", errdefs.ErrNotFound)
	}

	_, err := waitExec(context.Background(), inspect, "e1", time.Second)
	assert.ErrorIs(t, err, domain.ErrRuntimeMissing)
}
