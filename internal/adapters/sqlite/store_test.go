package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/melih/lighthouse-sandbox/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(id, containerID, owner string) domain.ContainerRecord {
	now := time.Now()
	return domain.ContainerRecord{
		ID:          id,
		ContainerID: containerID,
		Image:       "javierhersan/code-ai",
		OwnerID:     owner,
		Status:      domain.StatusCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestInsertAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, record("rec-1", "c1", "alice")))

	got, err := s.GetByContainer(ctx, "alice", "c1")
	require.NoError(t, err)
	assert.Equal(t, "rec-1", got.ID)
	assert.Equal(t, domain.StatusCreated, got.Status)
	assert.Equal(t, "javierhersan/code-ai", got.Image)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetScopedByOwner(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, record("rec-1", "c1", "alice")))

	_, err := s.GetByContainer(ctx, "bob", "c1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.GetByContainer(ctx, "alice", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInsertRejectsDuplicateContainer(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, record("rec-1", "c1", "alice")))
	assert.Error(t, s.Insert(ctx, record("rec-2", "c1", "bob")))
}

func TestListByOwner(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	empty, err := s.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	require.NoError(t, s.Insert(ctx, record("rec-1", "c1", "alice")))
	require.NoError(t, s.Insert(ctx, record("rec-2", "c2", "bob")))
	require.NoError(t, s.Insert(ctx, record("rec-3", "c3", "alice")))

	got, err := s.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, rec := range got {
		assert.Equal(t, "alice", rec.OwnerID)
	}
}

func TestUpdateStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, record("rec-1", "c1", "alice")))

	updated, err := s.UpdateStatus(ctx, "c1", domain.StatusRunning)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, updated.Status)
	assert.Equal(t, "alice", updated.OwnerID)

	got, err := s.GetByContainer(ctx, "alice", "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, got.Status)

	_, err = s.UpdateStatus(ctx, "missing", domain.StatusRunning)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, record("rec-1", "c1", "alice")))

	require.NoError(t, s.Delete(ctx, "c1"))
	_, err := s.GetByContainer(ctx, "alice", "c1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, "c1"), domain.ErrNotFound)
}
