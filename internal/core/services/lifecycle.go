package services

import (
	"context"
	"errors"
	"io"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/melih/lighthouse-sandbox/internal/core/domain"
	"github.com/melih/lighthouse-sandbox/internal/core/ports"
	"github.com/melih/lighthouse-sandbox/internal/log"
	"github.com/moby/locker"
)

// Container labels applied to every runtime container this service creates.
const (
	LabelOwner  = "lighthouse.owner"
	LabelRecord = "lighthouse.record"
)

// LifecycleOptions configures the lifecycle controller.
type LifecycleOptions struct {
	// DefaultImage is used when a create request names no image.
	DefaultImage string
	// AllowedImages lists images, besides DefaultImage, callers may request.
	AllowedImages []string
	// WorkingDir is the working directory of created containers.
	WorkingDir string
}

// Lifecycle drives containers through created, running, exited and removed.
// Every transition is checked against the registry first, and the registry is
// written only after the runtime confirms the transition. Transitions on the
// same container are serialized.
type Lifecycle struct {
	runtime  ports.ContainerRuntime
	registry *Registry
	locks    *locker.Locker
	opts     LifecycleOptions
	now      func() time.Time
}

// NewLifecycle creates a lifecycle controller.
func NewLifecycle(runtime ports.ContainerRuntime, registry *Registry, opts LifecycleOptions) *Lifecycle {
	return &Lifecycle{
		runtime:  runtime,
		registry: registry,
		locks:    locker.New(),
		opts:     opts,
		now:      time.Now,
	}
}

func (l *Lifecycle) lock(containerID string) func() {
	l.locks.Lock(containerID)
	return func() { _ = l.locks.Unlock(containerID) }
}

// Create pulls the image, creates (without starting) a container and records
// it with status created. Nothing is persisted unless every step succeeds.
func (l *Lifecycle) Create(ctx context.Context, ownerID, image string) (domain.ContainerRecord, error) {
	const op = "create container"
	if ownerID == "" {
		return domain.ContainerRecord{}, domain.NewOpError(op, "", domain.ErrNotAuthenticated, nil)
	}
	if image == "" {
		image = l.opts.DefaultImage
	}
	if image != l.opts.DefaultImage && !slices.Contains(l.opts.AllowedImages, image) {
		return domain.ContainerRecord{}, domain.NewOpError(op, image, domain.ErrInvalidArgument, errors.New("image is not allowed"))
	}

	if err := l.runtime.PullImage(ctx, image); err != nil {
		return domain.ContainerRecord{}, domain.NewOpError(op, image, nil, err)
	}

	recordID := uuid.NewString()
	containerID, err := l.runtime.CreateContainer(ctx, ports.CreateOptions{
		Name:       "lighthouse-" + recordID[:8],
		Image:      image,
		WorkingDir: l.opts.WorkingDir,
		Labels: map[string]string{
			LabelOwner:  ownerID,
			LabelRecord: recordID,
		},
	})
	if err != nil {
		kind := domain.ErrRuntimeFailure
		if errors.Is(err, domain.ErrImageUnavailable) {
			kind = domain.ErrImageUnavailable
		}
		return domain.ContainerRecord{}, domain.NewOpError(op, image, kind, err)
	}

	now := l.now()
	rec := domain.ContainerRecord{
		ID:          recordID,
		ContainerID: containerID,
		Image:       image,
		OwnerID:     ownerID,
		Status:      domain.StatusCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := l.registry.Register(ctx, rec); err != nil {
		if rmErr := l.runtime.RemoveContainer(context.WithoutCancel(ctx), containerID); rmErr != nil {
			log.Error("removing unrecorded container", "container_id", containerID, "error", rmErr)
		}
		return domain.ContainerRecord{}, err
	}

	log.Info("container created", "container_id", containerID, "owner", ownerID, "image", image)
	return rec, nil
}

// List returns the caller's records without consulting the runtime.
func (l *Lifecycle) List(ctx context.Context, ownerID string) ([]domain.ContainerRecord, error) {
	return l.registry.List(ctx, ownerID)
}

// Start starts an owned container and records it as running. Starting a
// running container succeeds.
func (l *Lifecycle) Start(ctx context.Context, ownerID, containerID string) (domain.ContainerRecord, error) {
	return l.transition(ctx, "start container", ownerID, containerID, domain.StatusRunning, l.runtime.StartContainer)
}

// Stop stops an owned container and records it as exited.
func (l *Lifecycle) Stop(ctx context.Context, ownerID, containerID string) (domain.ContainerRecord, error) {
	return l.transition(ctx, "stop container", ownerID, containerID, domain.StatusExited, l.runtime.StopContainer)
}

func (l *Lifecycle) transition(ctx context.Context, op, ownerID, containerID string, to domain.Status, call func(context.Context, string) error) (domain.ContainerRecord, error) {
	unlock := l.lock(containerID)
	defer unlock()

	rec, err := l.registry.Lookup(ctx, op, ownerID, containerID)
	if err != nil {
		return rec, err
	}
	if err := call(ctx, rec.ContainerID); err != nil {
		// The stored status is left untouched; it still reflects the last
		// confirmed state.
		return rec, domain.NewOpError(op, containerID, nil, err)
	}

	rec, err = l.registry.SetStatus(ctx, rec.ContainerID, to)
	if err != nil {
		return rec, err
	}
	log.Info("container transitioned", "op", op, "container_id", containerID, "status", to)
	return rec, nil
}

// Delete stops (best effort) and removes an owned container, then drops its
// record. When the runtime container is already gone the record is still
// dropped and ErrRuntimeMissing is returned.
func (l *Lifecycle) Delete(ctx context.Context, ownerID, containerID string) error {
	const op = "delete container"
	unlock := l.lock(containerID)
	defer unlock()

	rec, err := l.registry.Lookup(ctx, op, ownerID, containerID)
	if err != nil {
		return err
	}

	if err := l.runtime.StopContainer(ctx, rec.ContainerID); err != nil {
		log.Debug("stop before delete failed", "container_id", containerID, "error", err)
	}

	removeErr := l.runtime.RemoveContainer(ctx, rec.ContainerID)
	if removeErr != nil && !errors.Is(removeErr, domain.ErrRuntimeMissing) {
		return domain.NewOpError(op, containerID, domain.ErrRuntimeFailure, removeErr)
	}

	if err := l.registry.Forget(ctx, rec.ContainerID); err != nil {
		return err
	}
	if removeErr != nil {
		log.Warn("container already gone from runtime", "container_id", containerID)
		return domain.NewOpError(op, containerID, domain.ErrRuntimeMissing, removeErr)
	}

	log.Info("container deleted", "container_id", containerID, "owner", ownerID)
	return nil
}

// Reconcile reads the runtime's view of an owned container and writes it to
// the registry when it differs. A container the runtime no longer knows is
// recorded as removed.
func (l *Lifecycle) Reconcile(ctx context.Context, ownerID, containerID string) (domain.ContainerRecord, error) {
	return l.reconcile(ctx, "inspect container", ownerID, containerID)
}

func (l *Lifecycle) reconcile(ctx context.Context, op, ownerID, containerID string) (domain.ContainerRecord, error) {
	unlock := l.lock(containerID)
	defer unlock()

	rec, err := l.registry.Lookup(ctx, op, ownerID, containerID)
	if err != nil {
		return rec, err
	}

	observed := domain.StatusRemoved
	state, err := l.runtime.ContainerState(ctx, rec.ContainerID)
	switch {
	case errors.Is(err, domain.ErrRuntimeMissing):
	case err != nil:
		return rec, domain.NewOpError(op, containerID, domain.ErrRuntimeFailure, err)
	default:
		observed = domain.StatusFromState(state)
	}

	if observed == rec.Status {
		return rec, nil
	}
	log.Info("container status drifted", "container_id", containerID, "recorded", rec.Status, "observed", observed)
	return l.registry.SetStatus(ctx, rec.ContainerID, observed)
}

// RequireRunning returns the caller's record after confirming with the
// runtime that the container is running.
func (l *Lifecycle) RequireRunning(ctx context.Context, op, ownerID, containerID string) (domain.ContainerRecord, error) {
	rec, err := l.reconcile(ctx, op, ownerID, containerID)
	if err != nil {
		return rec, err
	}
	switch rec.Status {
	case domain.StatusRunning:
		return rec, nil
	case domain.StatusRemoved:
		return rec, domain.NewOpError(op, containerID, domain.ErrRuntimeMissing, nil)
	default:
		return rec, domain.NewOpError(op, containerID, domain.ErrPreconditionFailed, errors.New("container is not running"))
	}
}

// Logs streams the logs of an owned container.
func (l *Lifecycle) Logs(ctx context.Context, ownerID, containerID string) (io.ReadCloser, error) {
	const op = "container logs"
	rec, err := l.registry.Lookup(ctx, op, ownerID, containerID)
	if err != nil {
		return nil, err
	}
	rc, err := l.runtime.GetContainerLogs(ctx, rec.ContainerID)
	if err != nil {
		return nil, domain.NewOpError(op, containerID, nil, err)
	}
	return rc, nil
}

// Address returns the network address of an owned, running container.
func (l *Lifecycle) Address(ctx context.Context, ownerID, containerID string) (string, error) {
	const op = "resolve address"
	rec, err := l.RequireRunning(ctx, op, ownerID, containerID)
	if err != nil {
		return "", err
	}
	addr, err := l.runtime.ContainerAddress(ctx, rec.ContainerID)
	if err != nil {
		return "", domain.NewOpError(op, containerID, nil, err)
	}
	return addr, nil
}
