package services

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/melih/lighthouse-sandbox/internal/adapters/sqlite"
	"github.com/melih/lighthouse-sandbox/internal/core/domain"
	"github.com/melih/lighthouse-sandbox/internal/log"
	"github.com/melih/lighthouse-sandbox/internal/testutil"
	"github.com/stretchr/testify/require"
)

const testImage = "javierhersan/code-ai"

type harness struct {
	runtime   *testutil.FakeRuntime
	store     *sqlite.Store
	lifecycle *Lifecycle
	gateway   *Gateway
	bridge    *TerminalBridge
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log.SetOutput(io.Discard)

	store, err := sqlite.OpenStore(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	rt := testutil.NewFakeRuntime()
	lc := NewLifecycle(rt, NewRegistry(store), LifecycleOptions{
		DefaultImage:  testImage,
		AllowedImages: []string{"alpine:3.20"},
		WorkingDir:    "/app",
	})
	return &harness{
		runtime:   rt,
		store:     store,
		lifecycle: lc,
		gateway:   NewGateway(rt, lc, "/app"),
		bridge:    NewTerminalBridge(rt, lc, []string{"/bin/sh"}),
	}
}

// running creates and starts a container for owner.
func (h *harness) running(t *testing.T, owner string) domain.ContainerRecord {
	t.Helper()
	ctx := context.Background()
	rec, err := h.lifecycle.Create(ctx, owner, "")
	require.NoError(t, err)
	rec, err = h.lifecycle.Start(ctx, owner, rec.ContainerID)
	require.NoError(t, err)
	return rec
}
