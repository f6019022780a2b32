package services

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/melih/lighthouse-sandbox/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findEntry(entries []domain.FilesystemEntry, p string) (domain.FilesystemEntry, bool) {
	for _, e := range entries {
		if e.Path == p {
			return e, true
		}
	}
	return domain.FilesystemEntry{}, false
}

func TestParseEntries(t *testing.T) {
	out := []byte("/app\r\n/app/src\n\n  /app/src/lib  \n")
	entries := ParseEntries(out, domain.KindDirectory)
	require.Len(t, entries, 3)

	assert.Equal(t, "app", entries[0].Name)
	assert.Nil(t, entries[0].ParentPath)

	assert.Equal(t, "lib", entries[2].Name)
	require.NotNil(t, entries[2].ParentPath)
	assert.Equal(t, "/app/src", *entries[2].ParentPath)
	assert.Equal(t, domain.KindDirectory, entries[2].Kind)

	assert.Empty(t, ParseEntries(nil, domain.KindFile))
}

func TestDecodePath(t *testing.T) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		got, err := DecodePath(enc.EncodeToString([]byte("/app/a")))
		require.NoError(t, err)
		assert.Equal(t, "/app/a", got)
	}
	_, err := DecodePath("not base64!")
	assert.Error(t, err)
}

func TestCreateFolderThenListTree(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rec := h.running(t, "alice")

	require.NoError(t, h.gateway.CreateFolder(ctx, "alice", rec.ContainerID, "/app/newdir"))

	entries, err := h.gateway.ListTree(ctx, "alice", rec.ContainerID)
	require.NoError(t, err)
	e, ok := findEntry(entries, "/app/newdir")
	require.True(t, ok)
	assert.Equal(t, domain.KindDirectory, e.Kind)
	assert.Equal(t, "newdir", e.Name)
	require.NotNil(t, e.ParentPath)
	assert.Equal(t, "/app", *e.ParentPath)

	root, ok := findEntry(entries, "/app")
	require.True(t, ok)
	assert.Nil(t, root.ParentPath)
}

func TestListTreeKinds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rec := h.running(t, "alice")
	h.runtime.SeedFile(rec.ContainerID, "/app/src/main.go", "package main\n")

	entries, err := h.gateway.ListTree(ctx, "alice", rec.ContainerID)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	f, ok := findEntry(entries, "/app/src/main.go")
	require.True(t, ok)
	assert.Equal(t, domain.KindFile, f.Kind)
	assert.Nil(t, f.Content)
	assert.True(t, f.IsSaved)
	assert.False(t, f.IsOpen)
}

func TestListChildrenSubstringMatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rec := h.running(t, "alice")
	h.runtime.SeedFile(rec.ContainerID, "/app/a/one.txt", "1")
	h.runtime.SeedFile(rec.ContainerID, "/app/ab/file", "2")
	h.runtime.SeedFile(rec.ContainerID, "/app/b/other.txt", "3")

	encoded := base64.StdEncoding.EncodeToString([]byte("/app/a"))
	entries, err := h.gateway.ListChildren(ctx, "alice", rec.ContainerID, encoded)
	require.NoError(t, err)

	var paths []string
	for _, e := range entries {
		require.NotNil(t, e.ParentPath)
		assert.Contains(t, *e.ParentPath, "/app/a")
		paths = append(paths, e.Path)
	}
	assert.ElementsMatch(t, []string{"/app/a/one.txt", "/app/ab/file"}, paths)
}

func TestListChildrenRejectsBadEncoding(t *testing.T) {
	h := newHarness(t)
	rec := h.running(t, "alice")
	_, err := h.gateway.ListChildren(context.Background(), "alice", rec.ContainerID, "%%%")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rec := h.running(t, "alice")

	content := "line one\r\nline two\r\n\tindented\n"
	require.NoError(t, h.gateway.WriteFile(ctx, "alice", rec.ContainerID, "notes.txt", "/app", content))

	got, err := h.gateway.ReadFile(ctx, "alice", rec.ContainerID, "/app/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, NormalizeLineEndings(content), got)
	assert.NotContains(t, got, "\r")

	// Last write wins.
	require.NoError(t, h.gateway.WriteFile(ctx, "alice", rec.ContainerID, "notes.txt", "/app", "v2"))
	got, err = h.gateway.ReadFile(ctx, "alice", rec.ContainerID, "/app/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "v2", got)
}

func TestWriteFileValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rec := h.running(t, "alice")

	tests := []struct {
		name, parent string
	}{
		{"", "/app"},
		{"..", "/app"},
		{"a/b.txt", "/app"},
		{"ok.txt", "relative"},
		{"ok.txt", "/app\n"},
	}
	for _, tt := range tests {
		err := h.gateway.WriteFile(ctx, "alice", rec.ContainerID, tt.name, tt.parent, "x")
		assert.ErrorIs(t, err, domain.ErrInvalidArgument, "%q in %q", tt.name, tt.parent)
	}
	assert.NotContains(t, h.runtime.Calls(), "copy")
}

func TestWriteFileMissingDirectory(t *testing.T) {
	h := newHarness(t)
	rec := h.running(t, "alice")
	err := h.gateway.WriteFile(context.Background(), "alice", rec.ContainerID, "x.txt", "/nowhere", "x")
	assert.ErrorIs(t, err, domain.ErrExecFailure)
}

func TestReadFileMissing(t *testing.T) {
	h := newHarness(t)
	rec := h.running(t, "alice")
	_, err := h.gateway.ReadFile(context.Background(), "alice", rec.ContainerID, "/app/missing.txt")
	assert.ErrorIs(t, err, domain.ErrExecFailure)
	assert.Contains(t, err.Error(), "No such file")
}

func TestMoveCreateRemove(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rec := h.running(t, "alice")
	id := rec.ContainerID

	require.NoError(t, h.gateway.CreateFile(ctx, "alice", id, "/app/a.txt"))
	content, ok := h.runtime.File(id, "/app/a.txt")
	require.True(t, ok)
	assert.Empty(t, content)

	require.NoError(t, h.gateway.CreateFolder(ctx, "alice", id, "/app/x/y"))
	require.NoError(t, h.gateway.Move(ctx, "alice", id, "/app/a.txt", "/app/x/y/b.txt"))
	_, ok = h.runtime.File(id, "/app/x/y/b.txt")
	assert.True(t, ok)

	require.NoError(t, h.gateway.RemovePath(ctx, "alice", id, "/app/x"))
	entries, err := h.gateway.ListTree(ctx, "alice", id)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Path, "/app/x"), e.Path)
	}

	err = h.gateway.Move(ctx, "alice", id, "/app/ghost", "/app/z")
	assert.ErrorIs(t, err, domain.ErrExecFailure)
	err = h.gateway.CreateFile(ctx, "alice", id, "/app/no/such/dir/f")
	assert.ErrorIs(t, err, domain.ErrExecFailure)
}

func TestCommandsAreArgumentVectors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rec := h.running(t, "alice")

	hostile := "/app/x; rm -rf /app"
	require.NoError(t, h.gateway.CreateFolder(ctx, "alice", rec.ContainerID, hostile))

	entries, err := h.gateway.ListTree(ctx, "alice", rec.ContainerID)
	require.NoError(t, err)
	_, ok := findEntry(entries, hostile)
	assert.True(t, ok, "the whole string is one path operand")
	assert.Contains(t, h.runtime.Calls(), "exec mkdir -p -- "+hostile)
}

func TestPathValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rec := h.running(t, "alice")
	id := rec.ContainerID

	assert.ErrorIs(t, h.gateway.RemovePath(ctx, "alice", id, "/"), domain.ErrInvalidArgument)
	assert.ErrorIs(t, h.gateway.RemovePath(ctx, "alice", id, "//."), domain.ErrInvalidArgument)
	assert.ErrorIs(t, h.gateway.CreateFolder(ctx, "alice", id, "relative/dir"), domain.ErrInvalidArgument)
	assert.ErrorIs(t, h.gateway.CreateFile(ctx, "alice", id, "/app/a\x00b"), domain.ErrInvalidArgument)
	assert.ErrorIs(t, h.gateway.Move(ctx, "alice", id, "/app", "-rf"), domain.ErrInvalidArgument)
	_, err := h.gateway.ReadFile(ctx, "alice", id, "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestFilesystemRequiresRunning(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rec, err := h.lifecycle.Create(ctx, "alice", "")
	require.NoError(t, err)

	_, err = h.gateway.ListTree(ctx, "alice", rec.ContainerID)
	assert.ErrorIs(t, err, domain.ErrPreconditionFailed)

	// Stopped outside the service; the record catches up.
	_, err = h.lifecycle.Start(ctx, "alice", rec.ContainerID)
	require.NoError(t, err)
	h.runtime.SetState(rec.ContainerID, "exited")

	err = h.gateway.CreateFile(ctx, "alice", rec.ContainerID, "/app/f")
	assert.ErrorIs(t, err, domain.ErrPreconditionFailed)
	recs, err := h.lifecycle.List(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExited, recs[0].Status)
}

func TestListTreeExecFailure(t *testing.T) {
	h := newHarness(t)
	rec := h.running(t, "alice")
	h.gateway.root = "/missing"

	_, err := h.gateway.ListTree(context.Background(), "alice", rec.ContainerID)
	assert.ErrorIs(t, err, domain.ErrExecFailure)
}

func TestRuntimeErrorsSurface(t *testing.T) {
	h := newHarness(t)
	rec := h.running(t, "alice")
	h.runtime.ExecErr = errors.New("exec create: daemon gone")

	_, err := h.gateway.ReadFile(context.Background(), "alice", rec.ContainerID, "/app/x")
	assert.ErrorIs(t, err, domain.ErrRuntimeFailure)
	assert.Contains(t, err.Error(), "read file")
}
