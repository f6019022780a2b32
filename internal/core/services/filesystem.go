package services

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/melih/lighthouse-sandbox/internal/core/domain"
	"github.com/melih/lighthouse-sandbox/internal/core/ports"
)

// Gateway translates filesystem operations into commands run inside a
// container. Commands are passed to the runtime as argument vectors, never
// through a shell, and every path operand follows "--".
type Gateway struct {
	runtime ports.ContainerRuntime
	guard   RunningGuard
	root    string
}

// NewGateway creates a gateway whose tree listings start at root.
func NewGateway(runtime ports.ContainerRuntime, guard RunningGuard, root string) *Gateway {
	return &Gateway{runtime: runtime, guard: guard, root: root}
}

// ListTree returns every directory and file under the root. Order follows
// the runtime's enumeration.
func (g *Gateway) ListTree(ctx context.Context, ownerID, containerID string) ([]domain.FilesystemEntry, error) {
	const op = "list filesystem"
	if _, err := g.guard.RequireRunning(ctx, op, ownerID, containerID); err != nil {
		return nil, err
	}
	return g.enumerate(ctx, op, containerID)
}

// ListChildren returns the entries whose parent path contains the decoded
// target. Matching is by substring, so "/app/a" also selects entries under
// "/app/ab".
func (g *Gateway) ListChildren(ctx context.Context, ownerID, containerID, encodedParent string) ([]domain.FilesystemEntry, error) {
	const op = "list directory"
	target, err := DecodePath(encodedParent)
	if err != nil {
		return nil, domain.NewOpError(op, containerID, domain.ErrInvalidArgument, err)
	}
	if _, err := g.guard.RequireRunning(ctx, op, ownerID, containerID); err != nil {
		return nil, err
	}

	entries, err := g.enumerate(ctx, op, containerID)
	if err != nil {
		return nil, err
	}
	children := []domain.FilesystemEntry{}
	for _, e := range entries {
		if e.ParentPath != nil && strings.Contains(*e.ParentPath, target) {
			children = append(children, e)
		}
	}
	return children, nil
}

func (g *Gateway) enumerate(ctx context.Context, op, containerID string) ([]domain.FilesystemEntry, error) {
	dirs, err := g.runtime.Exec(ctx, containerID, []string{"find", g.root, "-type", "d"})
	if err != nil {
		return nil, domain.NewOpError(op, containerID, nil, err)
	}
	files, err := g.runtime.Exec(ctx, containerID, []string{"find", g.root, "-type", "f"})
	if err != nil {
		return nil, domain.NewOpError(op, containerID, nil, err)
	}
	// find exits non-zero when part of the tree is unreadable but still
	// prints what it could reach; only fail when both walks failed.
	if dirs.ExitCode != 0 && files.ExitCode != 0 {
		return nil, domain.NewOpError(op, containerID, domain.ErrExecFailure,
			fmt.Errorf("find exited with status %d: %s", dirs.ExitCode, strings.TrimSpace(string(dirs.Stderr))))
	}

	entries := ParseEntries(dirs.Stdout, domain.KindDirectory)
	return append(entries, ParseEntries(files.Stdout, domain.KindFile)...), nil
}

// ParseEntries turns newline separated absolute paths into entries of kind.
func ParseEntries(output []byte, kind domain.EntryKind) []domain.FilesystemEntry {
	entries := []domain.FilesystemEntry{}
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		entries = append(entries, domain.NewFilesystemEntry(line, kind))
	}
	return entries
}

// DecodePath decodes a base64 path parameter. Standard and URL-safe
// alphabets are accepted, padded or not.
func DecodePath(encoded string) (string, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(encoded); err == nil {
			return string(b), nil
		}
	}
	return "", fmt.Errorf("path %q is not valid base64", encoded)
}

// ReadFile returns the raw contents of a file.
func (g *Gateway) ReadFile(ctx context.Context, ownerID, containerID, filePath string) (string, error) {
	res, err := g.run(ctx, "read file", ownerID, containerID, filePath, "cat", "--", filePath)
	if err != nil {
		return "", err
	}
	return string(res.Stdout), nil
}

// WriteFile replaces (or creates) parentPath/name with content in a single
// archive upload. CRLF line endings are normalized to LF.
func (g *Gateway) WriteFile(ctx context.Context, ownerID, containerID, name, parentPath, content string) error {
	const op = "write file"
	if err := validateName(name); err != nil {
		return domain.NewOpError(op, containerID, domain.ErrInvalidArgument, err)
	}
	if err := validatePath(parentPath); err != nil {
		return domain.NewOpError(op, containerID, domain.ErrInvalidArgument, err)
	}
	if _, err := g.guard.RequireRunning(ctx, op, ownerID, containerID); err != nil {
		return err
	}

	archive, err := fileArchive(name, []byte(NormalizeLineEndings(content)))
	if err != nil {
		return domain.NewOpError(op, containerID, domain.ErrRuntimeFailure, err)
	}
	if err := g.runtime.CopyToContainer(ctx, containerID, parentPath, archive); err != nil {
		return domain.NewOpError(op, containerID+":"+path.Join(parentPath, name), nil, err)
	}
	return nil
}

// Move renames src to dst.
func (g *Gateway) Move(ctx context.Context, ownerID, containerID, src, dst string) error {
	if err := validatePath(dst); err != nil {
		return domain.NewOpError("move", containerID, domain.ErrInvalidArgument, err)
	}
	_, err := g.run(ctx, "move", ownerID, containerID, src, "mv", "--", src, dst)
	return err
}

// CreateFolder creates a directory and any missing parents.
func (g *Gateway) CreateFolder(ctx context.Context, ownerID, containerID, dir string) error {
	_, err := g.run(ctx, "create folder", ownerID, containerID, dir, "mkdir", "-p", "--", dir)
	return err
}

// CreateFile creates an empty file, leaving an existing one untouched.
func (g *Gateway) CreateFile(ctx context.Context, ownerID, containerID, filePath string) error {
	_, err := g.run(ctx, "create file", ownerID, containerID, filePath, "touch", "--", filePath)
	return err
}

// RemovePath removes a file or directory tree. A missing path is not an
// error. The filesystem root itself is refused.
func (g *Gateway) RemovePath(ctx context.Context, ownerID, containerID, target string) error {
	if err := validatePath(target); err == nil && path.Clean(target) == "/" {
		return domain.NewOpError("remove path", containerID, domain.ErrInvalidArgument, errors.New("refusing to remove /"))
	}
	_, err := g.run(ctx, "remove path", ownerID, containerID, target, "rm", "-rf", "--", target)
	return err
}

// run validates target, checks the container, and runs cmd, failing with
// ErrExecFailure on a non-zero exit status.
func (g *Gateway) run(ctx context.Context, op, ownerID, containerID, target string, cmd ...string) (ports.ExecResult, error) {
	if err := validatePath(target); err != nil {
		return ports.ExecResult{}, domain.NewOpError(op, containerID, domain.ErrInvalidArgument, err)
	}
	if _, err := g.guard.RequireRunning(ctx, op, ownerID, containerID); err != nil {
		return ports.ExecResult{}, err
	}

	resource := containerID + ":" + target
	res, err := g.runtime.Exec(ctx, containerID, cmd)
	if err != nil {
		return res, domain.NewOpError(op, resource, nil, err)
	}
	if res.ExitCode != 0 {
		return res, domain.NewOpError(op, resource, domain.ErrExecFailure,
			fmt.Errorf("%s exited with status %d: %s", cmd[0], res.ExitCode, strings.TrimSpace(string(res.Stderr))))
	}
	return res, nil
}

// NormalizeLineEndings converts CRLF line endings to LF.
func NormalizeLineEndings(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

func validatePath(p string) error {
	switch {
	case p == "":
		return errors.New("path is empty")
	case !strings.HasPrefix(p, "/"):
		return fmt.Errorf("path %q is not absolute", p)
	case strings.ContainsAny(p, "\x00\n\r"):
		return fmt.Errorf("path %q contains control characters", p)
	}
	return nil
}

func validateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("invalid file name %q", name)
	case strings.ContainsAny(name, "/\x00\n\r"):
		return fmt.Errorf("file name %q must be a single path segment", name)
	}
	return nil
}

// fileArchive packs a single regular file into a tar stream.
func fileArchive(name string, content []byte) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	header := &tar.Header{
		Name:    name,
		Mode:    0644,
		Size:    int64(len(content)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return nil, fmt.Errorf("writing tar header: %w", err)
	}
	if _, err := tw.Write(content); err != nil {
		return nil, fmt.Errorf("writing %s to tar: %w", name, err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("closing tar: %w", err)
	}
	return &buf, nil
}
