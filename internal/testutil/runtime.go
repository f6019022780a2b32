// Package testutil provides in-memory stand-ins for the container engine and
// client connections.
package testutil

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/melih/lighthouse-sandbox/internal/core/domain"
	"github.com/melih/lighthouse-sandbox/internal/core/ports"
)

// FakeContainer is the state of one fake container.
type FakeContainer struct {
	ID     string
	Name   string
	Image  string
	State  string
	Labels map[string]string

	dirs  map[string]bool
	files map[string]string
}

// FakeRuntime implements ports.ContainerRuntime in memory. Containers carry a
// tiny filesystem that understands the find, cat, mkdir, touch, rm and mv
// invocations the gateway issues.
type FakeRuntime struct {
	// Root is the directory every new container starts with.
	Root string

	// Injected failures, returned by the matching call when non-nil.
	PullErr   error
	CreateErr error
	StartErr  error
	StopErr   error
	RemoveErr error
	ExecErr   error

	// NewShell builds the channel returned by OpenShell. Defaults to a
	// FakeShell that answers "ls".
	NewShell func(c *FakeContainer) ports.ExecChannel

	mu         sync.Mutex
	seq        int
	containers map[string]*FakeContainer
	calls      []string
}

// NewFakeRuntime returns an empty runtime whose containers start with /app.
func NewFakeRuntime() *FakeRuntime {
	return &FakeRuntime{
		Root:       "/app",
		containers: make(map[string]*FakeContainer),
	}
}

func (f *FakeRuntime) record(call string) {
	f.calls = append(f.calls, call)
}

// Calls returns the names of runtime calls made so far, in order.
func (f *FakeRuntime) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Container returns a copy of the container's metadata.
func (f *FakeRuntime) Container(id string) (FakeContainer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return FakeContainer{}, false
	}
	return *c, true
}

// Count returns the number of containers the runtime knows.
func (f *FakeRuntime) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.containers)
}

// SetState forces a container's state, as if it changed outside the service.
func (f *FakeRuntime) SetState(id, state string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.containers[id]; ok {
		c.State = state
	}
}

// Forget drops a container without going through RemoveContainer.
func (f *FakeRuntime) Forget(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, id)
}

// SeedFile writes a file, creating its parent directories.
func (f *FakeRuntime) SeedFile(id, p, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.containers[id]
	c.mkdirAll(path.Dir(p))
	c.files[p] = content
}

// File returns a file's content.
func (f *FakeRuntime) File(id, p string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return "", false
	}
	content, ok := c.files[p]
	return content, ok
}

func (f *FakeRuntime) get(id string) (*FakeContainer, error) {
	c, ok := f.containers[id]
	if !ok {
		return nil, fmt.Errorf("no such container %s: %w", id, domain.ErrRuntimeMissing)
	}
	return c, nil
}

func (f *FakeRuntime) PullImage(ctx context.Context, image string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("pull")
	if f.PullErr != nil {
		return f.PullErr
	}
	return nil
}

func (f *FakeRuntime) CreateContainer(ctx context.Context, opts ports.CreateOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create")
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	f.seq++
	id := fmt.Sprintf("c%04d", f.seq)
	c := &FakeContainer{
		ID:     id,
		Name:   opts.Name,
		Image:  opts.Image,
		State:  "created",
		Labels: opts.Labels,
		dirs:   map[string]bool{},
		files:  map[string]string{},
	}
	c.mkdirAll(f.Root)
	f.containers[id] = c
	return id, nil
}

func (f *FakeRuntime) StartContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start")
	if f.StartErr != nil {
		return f.StartErr
	}
	c, err := f.get(id)
	if err != nil {
		return err
	}
	c.State = "running"
	return nil
}

func (f *FakeRuntime) StopContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("stop")
	if f.StopErr != nil {
		return f.StopErr
	}
	c, err := f.get(id)
	if err != nil {
		return err
	}
	c.State = "exited"
	return nil
}

func (f *FakeRuntime) RemoveContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remove")
	if f.RemoveErr != nil {
		return f.RemoveErr
	}
	if _, err := f.get(id); err != nil {
		return err
	}
	delete(f.containers, id)
	return nil
}

func (f *FakeRuntime) ContainerState(ctx context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.get(id)
	if err != nil {
		return "", err
	}
	return c.State, nil
}

func (f *FakeRuntime) ContainerAddress(ctx context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.get(id); err != nil {
		return "", err
	}
	return "127.0.0.1", nil
}

func (f *FakeRuntime) GetContainerLogs(ctx context.Context, id string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.get(id)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader("started " + c.Name + "\n")), nil
}

func (f *FakeRuntime) CopyToContainer(ctx context.Context, id, dir string, archive io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("copy")
	c, err := f.get(id)
	if err != nil {
		return err
	}
	if !c.dirs[dir] {
		return fmt.Errorf("copy to %s: %w", dir, domain.ErrExecFailure)
	}
	tr := tar.NewReader(archive)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return err
		}
		c.files[path.Join(dir, hdr.Name)] = string(data)
	}
}

// Exec interprets the handful of commands the gateway runs.
func (f *FakeRuntime) Exec(ctx context.Context, id string, cmd []string) (ports.ExecResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("exec " + strings.Join(cmd, " "))
	if f.ExecErr != nil {
		return ports.ExecResult{}, f.ExecErr
	}
	c, err := f.get(id)
	if err != nil {
		return ports.ExecResult{}, err
	}
	if c.State != "running" {
		return ports.ExecResult{}, fmt.Errorf("container %s is not running", id)
	}
	return c.exec(cmd), nil
}

func (f *FakeRuntime) OpenShell(ctx context.Context, id string, cmd []string) (ports.ExecChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("shell")
	c, err := f.get(id)
	if err != nil {
		return nil, err
	}
	if f.NewShell != nil {
		return f.NewShell(c), nil
	}
	names := c.children(f.Root)
	return NewFakeShell(func(line string) string {
		if line == "ls" {
			return strings.Join(names, "  ") + "\r\n"
		}
		return ""
	}), nil
}

func (c *FakeContainer) mkdirAll(p string) {
	for p != "/" && p != "." && p != "" {
		c.dirs[p] = true
		p = path.Dir(p)
	}
}

func (c *FakeContainer) exists(p string) bool {
	_, isFile := c.files[p]
	return isFile || c.dirs[p]
}

func (c *FakeContainer) children(dir string) []string {
	var names []string
	for _, p := range c.paths() {
		if path.Dir(p) == dir {
			names = append(names, path.Base(p))
		}
	}
	sort.Strings(names)
	return names
}

func (c *FakeContainer) paths() []string {
	all := make([]string, 0, len(c.dirs)+len(c.files))
	for d := range c.dirs {
		all = append(all, d)
	}
	for p := range c.files {
		all = append(all, p)
	}
	sort.Strings(all)
	return all
}

func under(p, root string) bool {
	return p == root || strings.HasPrefix(p, root+"/")
}

func ok(stdout string) ports.ExecResult {
	return ports.ExecResult{Stdout: []byte(stdout)}
}

func fail(format string, args ...any) ports.ExecResult {
	return ports.ExecResult{ExitCode: 1, Stderr: []byte(fmt.Sprintf(format, args...))}
}

// operands drops flags and the "--" separator.
func operands(args []string) []string {
	var out []string
	dashdash := false
	for _, a := range args {
		if !dashdash && a == "--" {
			dashdash = true
			continue
		}
		if !dashdash && strings.HasPrefix(a, "-") {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (c *FakeContainer) exec(cmd []string) ports.ExecResult {
	if len(cmd) == 0 {
		return fail("empty command")
	}
	switch cmd[0] {
	case "find":
		// find ROOT -type d|f
		if len(cmd) != 4 {
			return fail("find: unsupported arguments")
		}
		root, kind := cmd[1], cmd[3]
		if !c.dirs[root] {
			return fail("find: '%s': No such file or directory", root)
		}
		var out strings.Builder
		for _, p := range c.paths() {
			if !under(p, root) {
				continue
			}
			if (kind == "d") == c.dirs[p] {
				out.WriteString(p + "\n")
			}
		}
		return ok(out.String())

	case "cat":
		args := operands(cmd[1:])
		if len(args) == 0 {
			return fail("cat: missing operand")
		}
		content, found := c.files[args[0]]
		if !found {
			return fail("cat: %s: No such file or directory", args[0])
		}
		return ok(content)

	case "mkdir":
		for _, p := range operands(cmd[1:]) {
			if _, isFile := c.files[p]; isFile {
				return fail("mkdir: %s: File exists", p)
			}
			c.mkdirAll(p)
		}
		return ok("")

	case "touch":
		for _, p := range operands(cmd[1:]) {
			if !c.dirs[path.Dir(p)] {
				return fail("touch: %s: No such file or directory", p)
			}
			if !c.exists(p) {
				c.files[p] = ""
			}
		}
		return ok("")

	case "rm":
		for _, p := range operands(cmd[1:]) {
			for _, existing := range c.paths() {
				if under(existing, p) {
					delete(c.dirs, existing)
					delete(c.files, existing)
				}
			}
		}
		return ok("")

	case "mv":
		args := operands(cmd[1:])
		if len(args) != 2 {
			return fail("mv: missing operand")
		}
		src, dst := args[0], args[1]
		if !c.exists(src) {
			return fail("mv: %s: No such file or directory", src)
		}
		if c.dirs[dst] {
			dst = path.Join(dst, path.Base(src))
		}
		if !c.dirs[path.Dir(dst)] {
			return fail("mv: %s: No such file or directory", dst)
		}
		for _, existing := range c.paths() {
			if !under(existing, src) {
				continue
			}
			moved := dst + strings.TrimPrefix(existing, src)
			if content, isFile := c.files[existing]; isFile {
				delete(c.files, existing)
				c.files[moved] = content
			} else {
				delete(c.dirs, existing)
				c.dirs[moved] = true
			}
		}
		return ok("")
	}
	return fail("%s: command not found", cmd[0])
}
