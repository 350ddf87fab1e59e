package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/Tyrowin/linechat/internal/chat"
)

// TCPListener accepts raw TCP clients speaking the newline-delimited
// protocol.
type TCPListener struct {
	ln           net.Listener
	maxLine      int
	writeTimeout time.Duration
}

// ListenTCP binds addr. maxLine bounds the bytes kept per received line and
// writeTimeout bounds every Send (zero disables it).
func ListenTCP(addr string, maxLine int, writeTimeout time.Duration) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return &TCPListener{ln: ln, maxLine: maxLine, writeTimeout: writeTimeout}, nil
}

// Accept waits for the next client.
func (l *TCPListener) Accept() (chat.Conn, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, fmt.Errorf("tcp accept: %w", chat.ErrListenerClosed)
		}
		return nil, fmt.Errorf("tcp accept: %w", err)
	}
	return NewLineConn(conn, l.maxLine, l.writeTimeout), nil
}

// Close stops accepting.
func (l *TCPListener) Close() error {
	return l.ln.Close()
}

// Addr returns the bound address.
func (l *TCPListener) Addr() string {
	return l.ln.Addr().String()
}

// LineConn adapts a net.Conn to chat.Conn.
type LineConn struct {
	conn         net.Conn
	reader       *bufio.Reader
	maxLine      int
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewLineConn wraps conn. Non-positive maxLine falls back to 1024 bytes.
func NewLineConn(conn net.Conn, maxLine int, writeTimeout time.Duration) *LineConn {
	if maxLine <= 0 {
		maxLine = defaultMaxLineLength
	}
	return &LineConn{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		maxLine:      maxLine,
		writeTimeout: writeTimeout,
	}
}

// ReadLine returns the next line without its terminator. Bytes beyond
// maxLine are discarded up to the end of the line. A final unterminated
// line is returned before io.EOF.
func (c *LineConn) ReadLine() (string, error) {
	line := make([]byte, 0, 128)
	for {
		chunk, err := c.reader.ReadSlice('\n')
		if room := c.maxLine - len(line); room > 0 {
			if len(chunk) > room {
				chunk = chunk[:room]
			}
			line = append(line, chunk...)
		}

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(line) > 0 {
				break
			}
			return "", err
		}
		break
	}
	return strings.TrimRight(string(line), "\r\n"), nil
}

// Send writes msg as-is. It is safe for concurrent use.
func (c *LineConn) Send(msg string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(c.conn, msg)
	return err
}

// Close closes the socket; later calls return the first result.
func (c *LineConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the peer address.
func (c *LineConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
