package docker

import (
	"sync"

	"github.com/docker/docker/api/types"
)

// execChannel adapts a hijacked exec connection to ports.ExecChannel. With a
// TTY the engine sends raw bytes, so no demultiplexing is needed.
type execChannel struct {
	resp types.HijackedResponse
	once sync.Once
}

func (c *execChannel) Read(p []byte) (int, error) {
	return c.resp.Reader.Read(p)
}

func (c *execChannel) Write(p []byte) (int, error) {
	return c.resp.Conn.Write(p)
}

// Close closes the hijacked socket; the engine reclaims the exec process.
func (c *execChannel) Close() error {
	c.once.Do(c.resp.Close)
	return nil
}
