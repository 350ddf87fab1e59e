package chat

import (
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// fakeConn is an in-memory Conn. Lines fed with feed are returned by
// ReadLine; hangup makes ReadLine report end-of-stream.
type fakeConn struct {
	addr     string
	in       chan string
	closedCh chan struct{}

	mu        sync.Mutex
	sent      []string
	sendErr   error
	closed    bool
	closes    int
	closeOnce sync.Once
}

func newFakeConn(addr string) *fakeConn {
	return &fakeConn{
		addr:     addr,
		in:       make(chan string, 16),
		closedCh: make(chan struct{}),
	}
}

func (c *fakeConn) ReadLine() (string, error) {
	select {
	case line, ok := <-c.in:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-c.closedCh:
		return "", net.ErrClosed
	}
}

func (c *fakeConn) Send(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return net.ErrClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closes++
	c.closed = true
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closedCh) })
	return nil
}

func (c *fakeConn) RemoteAddr() string {
	return c.addr
}

func (c *fakeConn) feed(lines ...string) {
	for _, line := range lines {
		c.in <- line
	}
}

func (c *fakeConn) hangup() {
	close(c.in)
}

func (c *fakeConn) failSends(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

func (c *fakeConn) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *fakeConn) count(msg string) int {
	n := 0
	for _, m := range c.messages() {
		if m == msg {
			n++
		}
	}
	return n
}

// waitFor blocks until conn has been sent a message containing substr.
func (c *fakeConn) waitFor(t *testing.T, substr string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, m := range c.messages() {
			if strings.Contains(m, substr) {
				return true
			}
		}
		return false
	}, waitTimeout, 5*time.Millisecond, "%s never received %q; got %q", c.addr, substr, c.messages())
}

func (c *fakeConn) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-c.closedCh:
	case <-time.After(waitTimeout):
		t.Fatalf("%s was not closed", c.addr)
	}
}

// fakeListener hands out connections pushed onto its queue.
type fakeListener struct {
	conns    chan Conn
	errs     chan error
	closedCh chan struct{}
	once     sync.Once
}

func newFakeListener() *fakeListener {
	return &fakeListener{
		conns:    make(chan Conn),
		errs:     make(chan error, 4),
		closedCh: make(chan struct{}),
	}
}

func (l *fakeListener) Accept() (Conn, error) {
	select {
	case err := <-l.errs:
		return nil, err
	case conn := <-l.conns:
		return conn, nil
	case <-l.closedCh:
		return nil, ErrListenerClosed
	}
}

func (l *fakeListener) Close() error {
	l.once.Do(func() { close(l.closedCh) })
	return nil
}

func (l *fakeListener) Addr() string {
	return "fake"
}

func quietLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

var errSendFailed = errors.New("send failed")
