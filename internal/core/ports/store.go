package ports

import (
	"context"

	"github.com/melih/lighthouse-sandbox/internal/core/domain"
)

// RecordStore persists container ownership records. Lookups that match no row
// return domain.ErrNotFound.
type RecordStore interface {
	Insert(ctx context.Context, rec domain.ContainerRecord) error
	GetByContainer(ctx context.Context, ownerID, containerID string) (domain.ContainerRecord, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.ContainerRecord, error)
	UpdateStatus(ctx context.Context, containerID string, status domain.Status) (domain.ContainerRecord, error)
	Delete(ctx context.Context, containerID string) error
}
