package chat

import "errors"

// ErrListenerClosed is returned (possibly wrapped) by Listener.Accept once the
// listener has been closed.
var ErrListenerClosed = errors.New("chat: listener closed")

// Conn is a bidirectional line stream to one client.
//
// ReadLine blocks for the next line and returns it without its terminator.
// End-of-stream is reported as io.EOF; any other error is a stream failure.
// Send must be safe for concurrent use and Close must be idempotent.
type Conn interface {
	ReadLine() (string, error)
	Send(msg string) error
	Close() error
	RemoteAddr() string
}

// Listener yields accepted connections.
type Listener interface {
	Accept() (Conn, error)
	Close() error
	Addr() string
}
