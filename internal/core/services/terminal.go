package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/melih/lighthouse-sandbox/internal/core/domain"
	"github.com/melih/lighthouse-sandbox/internal/core/ports"
	"github.com/melih/lighthouse-sandbox/internal/log"
	"golang.org/x/sync/errgroup"
)

const readChunkSize = 4096

// RunningGuard confirms a caller owns a container that is currently running.
type RunningGuard interface {
	RequireRunning(ctx context.Context, op, ownerID, containerID string) (domain.ContainerRecord, error)
}

// TerminalBridge relays bytes between client connections and interactive
// shells inside containers. It owns the table of live sessions.
type TerminalBridge struct {
	runtime ports.ContainerRuntime
	guard   RunningGuard
	shell   []string

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewTerminalBridge creates a bridge that runs shell for every session.
func NewTerminalBridge(runtime ports.ContainerRuntime, guard RunningGuard, shell []string) *TerminalBridge {
	return &TerminalBridge{
		runtime:  runtime,
		guard:    guard,
		shell:    shell,
		sessions: make(map[string]*Session),
	}
}

// SessionInfo describes a live session.
type SessionInfo struct {
	ID          string    `json:"id"`
	ContainerID string    `json:"container_id"`
	OwnerID     string    `json:"owner_id"`
	StartedAt   time.Time `json:"started_at"`
}

// Open starts a shell in an owned, running container and registers a session
// bound to conn. The caller drives the relay with Session.Serve.
func (b *TerminalBridge) Open(ctx context.Context, ownerID, containerID string, conn ports.ClientConn) (*Session, error) {
	const op = "open terminal"
	rec, err := b.guard.RequireRunning(ctx, op, ownerID, containerID)
	if err != nil {
		return nil, err
	}

	exec, err := b.runtime.OpenShell(ctx, rec.ContainerID, b.shell)
	if err != nil {
		return nil, domain.NewOpError(op, containerID, nil, err)
	}

	s := &Session{
		info: SessionInfo{
			ID:          uuid.NewString(),
			ContainerID: rec.ContainerID,
			OwnerID:     ownerID,
			StartedAt:   time.Now(),
		},
		exec:   exec,
		conn:   conn,
		echo:   &EchoFilter{},
		done:   make(chan struct{}),
		bridge: b,
	}
	s.log = log.With("session_id", s.info.ID, "container_id", rec.ContainerID)

	b.mu.Lock()
	b.sessions[s.info.ID] = s
	b.mu.Unlock()

	s.log.Info("terminal session opened", "owner", ownerID)
	return s, nil
}

// Sessions lists live sessions ordered by start time.
func (b *TerminalBridge) Sessions() []SessionInfo {
	b.mu.Lock()
	infos := make([]SessionInfo, 0, len(b.sessions))
	for _, s := range b.sessions {
		infos = append(infos, s.info)
	}
	b.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].StartedAt.Before(infos[j].StartedAt) })
	return infos
}

// Count returns the number of live sessions.
func (b *TerminalBridge) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// CloseAll tears down every live session.
func (b *TerminalBridge) CloseAll() {
	b.mu.Lock()
	sessions := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

func (b *TerminalBridge) remove(id string) {
	b.mu.Lock()
	delete(b.sessions, id)
	b.mu.Unlock()
}

// Session is one live relay between a client connection and a shell.
type Session struct {
	info   SessionInfo
	exec   ports.ExecChannel
	conn   ports.ClientConn
	echo   *EchoFilter
	bridge *TerminalBridge
	log    *slog.Logger

	once sync.Once
	done chan struct{}
}

// ID returns the session handle.
func (s *Session) ID() string {
	return s.info.ID
}

// Info describes the session.
func (s *Session) Info() SessionInfo {
	return s.info
}

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Serve runs the output and input loops until either side ends or ctx is
// cancelled, then tears the session down. A client disconnect or shell exit
// is a normal end and returns nil.
func (s *Session) Serve(ctx context.Context) error {
	defer s.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer s.Close()
		return s.pumpOutput()
	})
	g.Go(func() error {
		defer s.Close()
		return s.pumpInput()
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
		return nil
	})
	return g.Wait()
}

// pumpOutput forwards shell output to the client in the order it was read.
// Multi-byte characters split across reads are held back until complete.
func (s *Session) pumpOutput() error {
	buf := make([]byte, readChunkSize)
	var pending []byte
	for {
		n, err := s.exec.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			var chunk []byte
			chunk, pending = splitUTF8(pending)
			if len(chunk) > 0 {
				if werr := s.forward(string(chunk)); werr != nil {
					if s.closed() {
						return nil
					}
					return fmt.Errorf("writing to client: %w", werr)
				}
			}
		}
		if err != nil || n == 0 {
			// Bytes held back for an incomplete character are sent as they
			// are once the shell has nothing more to say.
			if flushErr := s.flush(pending); flushErr != nil {
				return flushErr
			}
			if err == nil || errors.Is(err, io.EOF) || s.closed() {
				s.log.Debug("shell output ended")
				return nil
			}
			return fmt.Errorf("reading shell output: %w", err)
		}
	}
}

func (s *Session) flush(pending []byte) error {
	if len(pending) == 0 {
		return nil
	}
	if err := s.forward(string(pending)); err != nil && !s.closed() {
		return fmt.Errorf("writing to client: %w", err)
	}
	return nil
}

func (s *Session) forward(chunk string) error {
	if s.echo.Suppress(chunk) {
		return nil
	}
	if s.closed() {
		return nil
	}
	return s.conn.WriteMessage([]byte(chunk))
}

// pumpInput forwards client messages to the shell in the order received.
func (s *Session) pumpInput() error {
	for {
		msg, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed() {
				s.log.Debug("client disconnected", "error", err)
			}
			return nil
		}
		s.echo.Record(string(msg))
		if _, err := s.exec.Write(msg); err != nil {
			if s.closed() {
				return nil
			}
			return fmt.Errorf("writing to shell: %w", err)
		}
	}
}

// Close tears the session down. It is safe to call any number of times from
// any goroutine; the connection and channel are closed exactly once.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
		s.bridge.remove(s.info.ID)
		if err := s.conn.Close(); err != nil {
			s.log.Debug("closing client connection", "error", err)
		}
		// Closing our end of the exec stream unblocks the output loop; the
		// runtime reaps the shell once its socket is gone.
		if err := s.exec.Close(); err != nil {
			s.log.Debug("closing shell stream", "error", err)
		}
		s.log.Info("terminal session closed", "duration", time.Since(s.info.StartedAt).Round(time.Millisecond))
	})
}

// EchoFilter suppresses a shell's echo of the line the client just sent.
//
// A shell attached to a TTY writes typed input back, but the client has
// already rendered it. The filter drops an output chunk when, ignoring
// surrounding whitespace, it equals the most recent client input. Only whole
// chunks are compared: an echo split across reads, or arriving in the same
// chunk as other output, passes through unchanged.
type EchoFilter struct {
	mu    sync.Mutex
	last  string
	armed bool
}

// Record remembers the latest client input.
func (f *EchoFilter) Record(input string) {
	f.mu.Lock()
	f.last = strings.TrimSpace(input)
	f.armed = true
	f.mu.Unlock()
}

// Suppress reports whether output is the echo of the latest input.
func (f *EchoFilter) Suppress(output string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.armed && strings.TrimSpace(output) == f.last
}

// splitUTF8 returns the longest prefix of b that does not end inside a
// multi-byte character, and the remainder.
func splitUTF8(b []byte) ([]byte, []byte) {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i], append([]byte(nil), b[i:]...)
			}
			break
		}
	}
	return b, nil
}
