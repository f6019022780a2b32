package ports

import (
	"context"
	"io"
)

// CreateOptions describes a container to create.
type CreateOptions struct {
	Name       string
	Image      string
	WorkingDir string
	Labels     map[string]string
}

// ExecResult is the outcome of a command run to completion inside a container.
type ExecResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// ExecChannel is a live, bidirectional byte stream attached to a process
// inside a container. Read returns io.EOF once the process output ends.
type ExecChannel interface {
	io.ReadWriteCloser
}

// ContainerRuntime is the narrow capability set used against the container
// engine. This interface allows us to switch between Docker, Podman, or
// Kubernetes without changing the business logic.
//
// Implementations report a missing container with domain.ErrRuntimeMissing and
// an image that cannot be fetched with domain.ErrImageUnavailable.
type ContainerRuntime interface {
	PullImage(ctx context.Context, image string) error
	CreateContainer(ctx context.Context, opts CreateOptions) (string, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string) error

	// ContainerState returns the engine's state string ("running", "exited", ...).
	ContainerState(ctx context.Context, id string) (string, error)

	// ContainerAddress returns the container's IP on its first network.
	ContainerAddress(ctx context.Context, id string) (string, error)

	GetContainerLogs(ctx context.Context, id string) (io.ReadCloser, error)

	// Exec runs cmd without a shell and waits for it to exit.
	Exec(ctx context.Context, id string, cmd []string) (ExecResult, error)

	// OpenShell starts cmd with a TTY and returns its stdin/stdout stream.
	OpenShell(ctx context.Context, id string, cmd []string) (ExecChannel, error)

	// CopyToContainer extracts a tar archive into dir.
	CopyToContainer(ctx context.Context, id, dir string, archive io.Reader) error
}
