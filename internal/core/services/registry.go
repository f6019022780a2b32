package services

import (
	"context"
	"errors"

	"github.com/melih/lighthouse-sandbox/internal/core/domain"
	"github.com/melih/lighthouse-sandbox/internal/core/ports"
)

// Registry maps owners to the containers they own. Every read is scoped by
// owner; a record owned by someone else is reported exactly like a missing
// one.
type Registry struct {
	store ports.RecordStore
}

// NewRegistry creates a registry over store.
func NewRegistry(store ports.RecordStore) *Registry {
	return &Registry{store: store}
}

// Lookup returns the record for containerID if ownerID owns it.
func (r *Registry) Lookup(ctx context.Context, op, ownerID, containerID string) (domain.ContainerRecord, error) {
	if ownerID == "" {
		return domain.ContainerRecord{}, domain.NewOpError(op, containerID, domain.ErrNotAuthenticated, nil)
	}
	rec, err := r.store.GetByContainer(ctx, ownerID, containerID)
	if errors.Is(err, domain.ErrNotFound) {
		return rec, domain.NewOpError(op, containerID, domain.ErrNotFound, nil)
	}
	if err != nil {
		return rec, domain.NewOpError(op, containerID, domain.ErrRuntimeFailure, err)
	}
	return rec, nil
}

// List returns every record owned by ownerID.
func (r *Registry) List(ctx context.Context, ownerID string) ([]domain.ContainerRecord, error) {
	if ownerID == "" {
		return nil, domain.NewOpError("list containers", "", domain.ErrNotAuthenticated, nil)
	}
	recs, err := r.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, domain.NewOpError("list containers", ownerID, domain.ErrRuntimeFailure, err)
	}
	return recs, nil
}

// Register persists a new record.
func (r *Registry) Register(ctx context.Context, rec domain.ContainerRecord) error {
	if err := r.store.Insert(ctx, rec); err != nil {
		return domain.NewOpError("register container", rec.ContainerID, domain.ErrRuntimeFailure, err)
	}
	return nil
}

// SetStatus records a confirmed runtime state.
func (r *Registry) SetStatus(ctx context.Context, containerID string, status domain.Status) (domain.ContainerRecord, error) {
	rec, err := r.store.UpdateStatus(ctx, containerID, status)
	if err != nil {
		return rec, domain.NewOpError("update status", containerID, nil, err)
	}
	return rec, nil
}

// Forget deletes the record for containerID. A record that is already gone
// is not an error.
func (r *Registry) Forget(ctx context.Context, containerID string) error {
	err := r.store.Delete(ctx, containerID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.NewOpError("forget container", containerID, domain.ErrRuntimeFailure, err)
	}
	return nil
}
