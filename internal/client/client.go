// Package client implements the terminal side of the line protocol: it pipes
// stdin lines to the server and server bytes to stdout.
package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/linechat/internal/chat"
)

const quitCommand = "/quit"

// halfCloser is implemented by *net.TCPConn.
type halfCloser interface {
	CloseWrite() error
}

// Client pipes one terminal to one chat connection.
type Client struct {
	conn io.ReadWriteCloser
	log  logrus.FieldLogger
}

// Dial connects to a chat server over TCP.
func Dial(ctx context.Context, addr string, timeout time.Duration, log logrus.FieldLogger) (*Client, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn, log), nil
}

// New wraps an established connection.
func New(conn io.ReadWriteCloser, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{conn: conn, log: log}
}

// Run copies server output to out and lines from in to the server until the
// server closes the connection or ctx is cancelled. After /quit, or when in
// is exhausted, nothing more is sent and Run waits for the server to hang up.
func (c *Client) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	serverDone := make(chan error, 1)
	go func() {
		_, err := io.Copy(out, c.conn)
		serverDone <- err
	}()

	go c.pump(in)

	var err error
	select {
	case err = <-serverDone:
	case <-ctx.Done():
		c.log.Debug("Interrupted, closing connection")
		_ = c.conn.Close()
		<-serverDone
		return ctx.Err()
	}
	_ = c.conn.Close()

	if err != nil && !chat.IsExpectedCloseError(err) {
		return fmt.Errorf("read from server: %w", err)
	}
	return nil
}

// pump forwards input lines. It stops at /quit, at end of input, or when a
// write fails.
func (c *Client) pump(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if _, err := io.WriteString(c.conn, line+"\n"); err != nil {
			c.log.WithError(err).Debug("Error writing to server")
			return
		}
		if strings.TrimSpace(line) == quitCommand {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		c.log.WithError(err).Debug("Error reading input")
	}
	c.closeWrite()
}

// closeWrite signals end of input to the server. Transports without a write
// half are closed outright.
func (c *Client) closeWrite() {
	if hc, ok := c.conn.(halfCloser); ok {
		if err := hc.CloseWrite(); err == nil {
			return
		}
	}
	_ = c.conn.Close()
}
