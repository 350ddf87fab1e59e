// Package server adapts WebSocket connections to the chat line protocol,
// handling keepalive pings, read limits, and lifecycle control for each
// connection.
package server

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/linechat/internal/chat"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	controlWait  = 10 * time.Second
	wsListenAddr = "websocket"
)

// WSConn adapts a gorilla WebSocket to chat.Conn. Every text frame carries
// one or more lines; every Send becomes one text frame.
type WSConn struct {
	conn         *websocket.Conn
	addr         string
	writeTimeout time.Duration
	log          logrus.FieldLogger

	pending []string

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// NewWSConn wraps conn and starts its keepalive pinger. Frames larger than
// maxMessageSize fail the read.
func NewWSConn(conn *websocket.Conn, addr string, maxMessageSize int64, writeTimeout time.Duration, log logrus.FieldLogger) *WSConn {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &WSConn{
		conn:         conn,
		addr:         addr,
		writeTimeout: writeTimeout,
		log:          log.WithField("peer", addr),
		done:         make(chan struct{}),
	}
	conn.SetReadLimit(maxMessageSize)
	c.setupReadConnection()
	go c.keepalive()
	return c
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *WSConn) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.WithError(err).Debug("Error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// keepalive pings the peer until the connection is closed. A peer that stops
// answering trips the read deadline, which ends the owning session.
func (c *WSConn) keepalive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWait)); err != nil {
				if !chat.IsExpectedCloseError(err) {
					c.log.WithError(err).Debug("Error writing ping message")
				}
				return
			}
		}
	}
}

// ReadLine returns the next line. A normal close frame is reported as io.EOF.
func (c *WSConn) ReadLine() (string, error) {
	for len(c.pending) == 0 {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", translateReadError(err)
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		text := strings.TrimRight(string(data), "\r\n")
		c.pending = strings.Split(text, "\n")
	}

	line := c.pending[0]
	c.pending = c.pending[1:]
	return strings.TrimRight(line, "\r"), nil
}

func translateReadError(err error) error {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) {
		return io.EOF
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		return fmt.Errorf("websocket frame exceeds read limit: %w", err)
	}
	return err
}

// Send writes msg as one text frame. It is safe for concurrent use.
func (c *WSConn) Send(msg string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

// Close sends a close frame and closes the socket; it is idempotent.
func (c *WSConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := c.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(controlWait)); err != nil && !chat.IsExpectedCloseError(err) {
			c.log.WithError(err).Debug("Error writing close message")
		}
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the peer address reported by the HTTP request.
func (c *WSConn) RemoteAddr() string {
	return c.addr
}

// WSListener is a chat.Listener fed by the HTTP upgrade handler.
type WSListener struct {
	conns     chan chat.Conn
	done      chan struct{}
	closeOnce sync.Once
}

// NewWSListener creates an open listener.
func NewWSListener() *WSListener {
	return &WSListener{
		conns: make(chan chat.Conn),
		done:  make(chan struct{}),
	}
}

// Accept waits for the next upgraded connection.
func (l *WSListener) Accept() (chat.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, fmt.Errorf("websocket accept: %w", chat.ErrListenerClosed)
	}
}

// Close stops Accept and makes further hand-offs fail.
func (l *WSListener) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

// Addr names the listener in logs.
func (l *WSListener) Addr() string {
	return wsListenAddr
}

// handoff passes conn to whoever is blocked in Accept.
func (l *WSListener) handoff(conn chat.Conn) error {
	select {
	case l.conns <- conn:
		return nil
	case <-l.done:
		return chat.ErrListenerClosed
	}
}
