package ports

import (
	"context"
	"io"

	"github.com/melih/lighthouse-sandbox/internal/core/domain"
)

// LifecycleService drives owned containers through create, start, stop and
// delete.
type LifecycleService interface {
	Create(ctx context.Context, ownerID, image string) (domain.ContainerRecord, error)
	List(ctx context.Context, ownerID string) ([]domain.ContainerRecord, error)
	Reconcile(ctx context.Context, ownerID, containerID string) (domain.ContainerRecord, error)
	Start(ctx context.Context, ownerID, containerID string) (domain.ContainerRecord, error)
	Stop(ctx context.Context, ownerID, containerID string) (domain.ContainerRecord, error)
	Delete(ctx context.Context, ownerID, containerID string) error
	Logs(ctx context.Context, ownerID, containerID string) (io.ReadCloser, error)
	Address(ctx context.Context, ownerID, containerID string) (string, error)
}

// FilesystemService manipulates files inside an owned, running container.
type FilesystemService interface {
	ListTree(ctx context.Context, ownerID, containerID string) ([]domain.FilesystemEntry, error)
	ListChildren(ctx context.Context, ownerID, containerID, encodedParent string) ([]domain.FilesystemEntry, error)
	ReadFile(ctx context.Context, ownerID, containerID, path string) (string, error)
	WriteFile(ctx context.Context, ownerID, containerID, name, parentPath, content string) error
	Move(ctx context.Context, ownerID, containerID, src, dst string) error
	CreateFolder(ctx context.Context, ownerID, containerID, path string) error
	CreateFile(ctx context.Context, ownerID, containerID, path string) error
	RemovePath(ctx context.Context, ownerID, containerID, path string) error
}
