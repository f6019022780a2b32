package testutil

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"
)

// FakeShell is an ExecChannel that behaves like a shell on a TTY: every line
// written is echoed back, followed by the reply for that line.
type FakeShell struct {
	reply func(line string) string

	out  *io.PipeReader
	outW *io.PipeWriter

	mu     sync.Mutex
	input  []string
	closed bool
}

// NewFakeShell returns a shell that answers each input line with reply(line).
func NewFakeShell(reply func(line string) string) *FakeShell {
	r, w := io.Pipe()
	return &FakeShell{reply: reply, out: r, outW: w}
}

func (s *FakeShell) Read(p []byte) (int, error) {
	return s.out.Read(p)
}

// Write records the input, then emits the echo and the reply as separate
// chunks.
func (s *FakeShell) Write(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	s.input = append(s.input, string(p))
	s.mu.Unlock()

	line := strings.TrimRight(string(p), "\r\n")
	if _, err := s.outW.Write([]byte(line + "\r\n")); err != nil {
		return 0, err
	}
	if out := s.reply(line); out != "" {
		if _, err := s.outW.Write([]byte(out)); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Emit writes unsolicited output, such as a prompt.
func (s *FakeShell) Emit(out string) error {
	_, err := s.outW.Write([]byte(out))
	return err
}

// Exit ends the shell's output stream.
func (s *FakeShell) Exit() {
	s.outW.Close()
}

func (s *FakeShell) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.outW.Close()
	return s.out.Close()
}

// Input returns everything written to the shell.
func (s *FakeShell) Input() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.input...)
}

// Closed reports whether Close was called.
func (s *FakeShell) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ErrConnClosed is returned by FakeConn after Close or Disconnect.
var ErrConnClosed = errors.New("connection closed")

// FakeConn is an in-memory ports.ClientConn.
type FakeConn struct {
	inbound chan []byte
	gone    chan struct{}
	once    sync.Once

	mu         sync.Mutex
	sent       []string
	closeCalls int
	notify     chan struct{}
}

// NewFakeConn returns an open connection.
func NewFakeConn() *FakeConn {
	return &FakeConn{
		inbound: make(chan []byte, 16),
		gone:    make(chan struct{}),
		notify:  make(chan struct{}, 1),
	}
}

// Send queues a message as if the client typed it.
func (c *FakeConn) Send(msg string) {
	c.inbound <- []byte(msg)
}

// Disconnect simulates the client going away.
func (c *FakeConn) Disconnect() {
	c.once.Do(func() { close(c.gone) })
}

func (c *FakeConn) ReadMessage() ([]byte, error) {
	select {
	case msg := <-c.inbound:
		return msg, nil
	case <-c.gone:
		return nil, ErrConnClosed
	}
}

func (c *FakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.gone:
		return ErrConnClosed
	default:
	}
	c.mu.Lock()
	c.sent = append(c.sent, string(data))
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *FakeConn) Close() error {
	c.mu.Lock()
	c.closeCalls++
	c.mu.Unlock()
	c.Disconnect()
	return nil
}

// Sent returns every message written to the client.
func (c *FakeConn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// CloseCalls returns how many times Close was called.
func (c *FakeConn) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

// WaitFor blocks until the concatenated output contains want or timeout
// elapses, and reports whether it was seen.
func (c *FakeConn) WaitFor(want string, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if strings.Contains(strings.Join(c.Sent(), ""), want) {
			return true
		}
		select {
		case <-c.notify:
		case <-deadline:
			return false
		}
	}
}
