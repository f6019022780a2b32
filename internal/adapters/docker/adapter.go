package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/melih/lighthouse-sandbox/internal/core/domain"
	"github.com/melih/lighthouse-sandbox/internal/core/ports"
	"github.com/melih/lighthouse-sandbox/internal/log"
)

// Adapter implements ports.ContainerRuntime using Docker SDK
type Adapter struct {
	cli         *client.Client
	stopTimeout time.Duration
}

// NewAdapter creates a new Docker adapter instance
func NewAdapter(stopTimeout time.Duration) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Adapter{cli: cli, stopTimeout: stopTimeout}, nil
}

// Ping verifies the Docker daemon is reachable.
func (a *Adapter) Ping(ctx context.Context) error {
	if _, err := a.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon not accessible: %w", err)
	}
	return nil
}

// Close releases Docker client resources.
func (a *Adapter) Close() error {
	return a.cli.Close()
}

// PullImage fetches an image and waits for the pull to finish. Pull errors are
// often only reported inside the progress stream, so the stream is decoded
// rather than discarded.
func (a *Adapter) PullImage(ctx context.Context, ref string) error {
	reader, err := a.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return pullError(ref, err)
	}
	defer reader.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(reader, io.Discard, 0, false, nil); err != nil {
		return pullError(ref, err)
	}
	log.Debug("image pulled", "image", ref)
	return nil
}

// pullError marks errors meaning the image cannot be fetched as
// domain.ErrImageUnavailable. Anything else, such as an unreachable daemon,
// stays a runtime failure.
func pullError(ref string, err error) error {
	msg := "failed to pull image " + ref
	if errdefs.IsNotFound(err) || errdefs.IsUnauthorized(err) || imageMissingMessage(err) {
		return fmt.Errorf("%s: %w: %w", msg, domain.ErrImageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// imageMissingMessage matches the registry errors that arrive as plain text in
// the pull progress stream.
func imageMissingMessage(err error) bool {
	var jsonErr *jsonmessage.JSONError
	if !errors.As(err, &jsonErr) {
		return false
	}
	text := strings.ToLower(jsonErr.Message)
	for _, needle := range []string{"manifest unknown", "not found", "pull access denied", "repository does not exist"} {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}

// CreateContainer creates (but does not start) a container. The container gets
// a TTY and an open stdin so shell-entrypoint images stay up once started.
func (a *Adapter) CreateContainer(ctx context.Context, opts ports.CreateOptions) (string, error) {
	resp, err := a.cli.ContainerCreate(ctx, &container.Config{
		Image:      opts.Image,
		WorkingDir: opts.WorkingDir,
		Labels:     opts.Labels,
		Tty:        true,
		OpenStdin:  true,
	}, nil, nil, nil, opts.Name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return "", fmt.Errorf("failed to create container: %w: %w", domain.ErrImageUnavailable, err)
		}
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	for _, w := range resp.Warnings {
		log.Warn("container create warning", "container_id", resp.ID, "warning", w)
	}
	return resp.ID, nil
}

// StartContainer starts a container. Starting a running container succeeds.
func (a *Adapter) StartContainer(ctx context.Context, id string) error {
	if err := a.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return classify("failed to start container", err)
	}
	return nil
}

// StopContainer stops a running container
func (a *Adapter) StopContainer(ctx context.Context, id string) error {
	timeout := int(a.stopTimeout.Seconds())
	// The engine may take the full grace period before killing the process.
	ctx, cancel := context.WithTimeout(ctx, a.stopTimeout+10*time.Second)
	defer cancel()
	if err := a.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return classify("failed to stop container", err)
	}
	return nil
}

// RemoveContainer removes a container and its anonymous volumes.
func (a *Adapter) RemoveContainer(ctx context.Context, id string) error {
	if err := a.cli.ContainerRemove(ctx, id, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	}); err != nil {
		return classify("failed to remove container", err)
	}
	return nil
}

// ContainerState returns the engine's state string for a container.
func (a *Adapter) ContainerState(ctx context.Context, id string) (string, error) {
	inspect, err := a.cli.ContainerInspect(ctx, id)
	if err != nil {
		return "", classify("failed to inspect container", err)
	}
	if inspect.State == nil {
		return "", fmt.Errorf("failed to inspect container: no state reported")
	}
	return inspect.State.Status, nil
}

// ContainerAddress returns the first network IP of a container.
func (a *Adapter) ContainerAddress(ctx context.Context, id string) (string, error) {
	inspect, err := a.cli.ContainerInspect(ctx, id)
	if err != nil {
		return "", classify("failed to inspect container", err)
	}
	if inspect.NetworkSettings != nil {
		for _, ep := range inspect.NetworkSettings.Networks {
			if ep != nil && ep.IPAddress != "" {
				return ep.IPAddress, nil
			}
		}
	}
	return "", fmt.Errorf("container %s has no network address", id)
}

// GetContainerLogs returns a stream of container logs
func (a *Adapter) GetContainerLogs(ctx context.Context, id string) (io.ReadCloser, error) {
	options := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     false,
		Timestamps: true,
	}
	rc, err := a.cli.ContainerLogs(ctx, id, options)
	if err != nil {
		return nil, classify("failed to read container logs", err)
	}
	return rc, nil
}

// Exec runs cmd inside the container without a TTY, waits for it, and returns
// its demultiplexed output together with the exit code.
func (a *Adapter) Exec(ctx context.Context, id string, cmd []string) (ports.ExecResult, error) {
	created, err := a.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ports.ExecResult{}, classify("failed to create exec", err)
	}

	resp, err := a.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return ports.ExecResult{}, classify("failed to attach exec", err)
	}
	defer resp.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, resp.Reader); err != nil {
		return ports.ExecResult{}, fmt.Errorf("failed to read exec output: %w", err)
	}

	exitCode, err := waitExec(ctx, a.cli.ContainerExecInspect, created.ID, execWaitLimit)
	if err != nil {
		return ports.ExecResult{}, err
	}
	return ports.ExecResult{
		ExitCode: exitCode,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}, nil
}

const (
	execPollInterval = 25 * time.Millisecond
	execWaitLimit    = 30 * time.Second
)

type execInspectFunc func(ctx context.Context, execID string) (container.ExecInspect, error)

// waitExec polls until the exec process is reported finished. The output
// stream closes slightly before the engine records the exit code. A process
// still running after limit is an error, never a success.
func waitExec(ctx context.Context, inspect execInspectFunc, execID string, limit time.Duration) (int, error) {
	deadline := time.Now().Add(limit)
	for {
		res, err := inspect(ctx, execID)
		if err != nil {
			return 0, classify("failed to inspect exec", err)
		}
		if !res.Running {
			return res.ExitCode, nil
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("exec %s still running after %s", execID, limit)
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(execPollInterval):
		}
	}
}

// OpenShell starts an interactive process with a TTY and returns its stream.
func (a *Adapter) OpenShell(ctx context.Context, id string, cmd []string) (ports.ExecChannel, error) {
	created, err := a.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          cmd,
		Tty:          true,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, classify("failed to create shell exec", err)
	}

	resp, err := a.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{Tty: true})
	if err != nil {
		return nil, classify("failed to attach shell exec", err)
	}
	return &execChannel{resp: resp}, nil
}

// CopyToContainer extracts a tar archive into dir inside the container.
func (a *Adapter) CopyToContainer(ctx context.Context, id, dir string, archive io.Reader) error {
	if err := a.cli.CopyToContainer(ctx, id, dir, archive, container.CopyToContainerOptions{}); err != nil {
		// The container was resolved before the transfer, so a 404 here means
		// the target directory does not exist.
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("failed to copy to %s: %w: %w", dir, domain.ErrExecFailure, err)
		}
		return fmt.Errorf("failed to copy to container: %w", err)
	}
	return nil
}

// classify wraps engine errors so a missing container is reported as
// domain.ErrRuntimeMissing.
func classify(msg string, err error) error {
	if errdefs.IsNotFound(err) {
		return fmt.Errorf("%s: %w: %w", msg, domain.ErrRuntimeMissing, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
