package ports

// ClientConn is the client side of a terminal session, one message per frame.
type ClientConn interface {
	// ReadMessage blocks until the next frame arrives or the client goes away.
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}
