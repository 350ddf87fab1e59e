// Package testhelpers provides common utilities for the linechat integration
// tests: a running server on loopback ports, and TCP and WebSocket chat
// clients that read until an expected piece of text arrives.
package testhelpers

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/linechat/internal/chat"
	"github.com/Tyrowin/linechat/internal/server"
)

// TestOrigin is the only origin the test servers accept.
const TestOrigin = "http://localhost:8080"

// ReadTimeout bounds every wait for server output.
const ReadTimeout = 3 * time.Second

// RunningServer is a server started by StartServer.
type RunningServer struct {
	*server.Server
	done chan error
}

// Stop shuts the server down and returns what Run returned.
func (s *RunningServer) Stop(t *testing.T) error {
	t.Helper()
	shutdownErr := s.Shutdown()
	select {
	case err := <-s.done:
		if err == nil {
			err = shutdownErr
		}
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
		return nil
	}
}

// StartServer runs a server on loopback ports. configure may adjust the
// config before the listeners are bound. The server is stopped on cleanup.
func StartServer(t *testing.T, configure func(*server.Config)) *RunningServer {
	t.Helper()
	cfg := server.NewConfig()
	cfg.TCPAddr = "127.0.0.1:0"
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.AllowedOrigins = server.OriginList{TestOrigin}
	cfg.ShutdownTimeout = 2 * time.Second
	if configure != nil {
		configure(cfg)
	}

	logger, _ := test.NewNullLogger()
	srv, err := server.New(cfg, logger)
	require.NoError(t, err)

	running := &RunningServer{Server: srv, done: make(chan error, 1)}
	go func() { running.done <- srv.Run(context.Background()) }()
	t.Cleanup(func() {
		_ = srv.Shutdown()
	})
	return running
}

// MakeRequest creates and executes an HTTP request, returning the response.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err, "Failed to create request")

	resp, err := client.Do(req)
	require.NoError(t, err, "Failed to make request")
	return resp
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	assert.Equal(t, expected, resp.StatusCode, "unexpected status code")
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	assert.Equal(t, expected, resp.Header.Get("Content-Type"), "unexpected content type")
}

// lineReader is what the chat clients below read from.
type lineReader interface {
	readChunk(deadline time.Time) (string, error)
}

// transcript accumulates server output so tests can wait for text that may
// arrive split across reads.
type transcript struct {
	src     lineReader
	pending string
}

func (tr *transcript) readUntil(t *testing.T, want string) string {
	t.Helper()
	out, _ := tr.readUntilAny(t, want)
	return out
}

// readUntilAny waits for the first of wants to arrive and returns the output
// up to and including it, plus the one that matched.
func (tr *transcript) readUntilAny(t *testing.T, wants ...string) (string, string) {
	t.Helper()
	deadline := time.Now().Add(ReadTimeout)
	for {
		if idx, want := firstMatch(tr.pending, wants); idx >= 0 {
			end := idx + len(want)
			out := tr.pending[:end]
			tr.pending = tr.pending[end:]
			return out, want
		}
		chunk, err := tr.src.readChunk(deadline)
		tr.pending += chunk
		if err != nil {
			if idx, _ := firstMatch(tr.pending, wants); idx >= 0 {
				continue
			}
			t.Fatalf("waiting for %q: %v (received %q)", wants, err, tr.pending)
		}
	}
}

func firstMatch(s string, wants []string) (int, string) {
	best, match := -1, ""
	for _, want := range wants {
		if idx := strings.Index(s, want); idx >= 0 && (best < 0 || idx < best) {
			best, match = idx, want
		}
	}
	return best, match
}

// readUntilClosed drains output until the server hangs up.
func (tr *transcript) readUntilClosed(t *testing.T) string {
	t.Helper()
	deadline := time.Now().Add(ReadTimeout)
	for {
		chunk, err := tr.src.readChunk(deadline)
		tr.pending += chunk
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			t.Fatalf("connection still open (received %q)", tr.pending)
		}
		out := tr.pending
		tr.pending = ""
		return out
	}
}

// TCPClient is a raw line-protocol client.
type TCPClient struct {
	conn   net.Conn
	reader *bufio.Reader
	transcript
}

// DialTCP connects to addr and closes the connection on cleanup.
func DialTCP(t *testing.T, addr string) *TCPClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	c := &TCPClient{conn: conn, reader: bufio.NewReader(conn)}
	c.src = c
	return c
}

func (c *TCPClient) readChunk(deadline time.Time) (string, error) {
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return "", err
	}
	buf := make([]byte, 4096)
	n, err := c.reader.Read(buf)
	return string(buf[:n]), err
}

// Send writes one line.
func (c *TCPClient) Send(t *testing.T, line string) {
	t.Helper()
	_, err := io.WriteString(c.conn, line+"\n")
	require.NoError(t, err)
}

// ReadUntil returns everything received up to and including want.
func (c *TCPClient) ReadUntil(t *testing.T, want string) string {
	t.Helper()
	return c.readUntil(t, want)
}

// ReadUntilAny waits for whichever of wants arrives first and reports it.
func (c *TCPClient) ReadUntilAny(t *testing.T, wants ...string) string {
	t.Helper()
	_, match := c.readUntilAny(t, wants...)
	return match
}

// ReadUntilClosed returns what arrives before the server hangs up.
func (c *TCPClient) ReadUntilClosed(t *testing.T) string {
	t.Helper()
	return c.readUntilClosed(t)
}

// Join answers the username prompt and waits for the welcome block.
func (c *TCPClient) Join(t *testing.T, name string) {
	t.Helper()
	c.ReadUntil(t, chat.PromptUsername)
	c.Send(t, name)
	c.ReadUntil(t, chat.WelcomeMessage(name))
}

// Close hangs up.
func (c *TCPClient) Close() error {
	return c.conn.Close()
}

// WSClient speaks the chat protocol over WebSocket, one line per frame.
type WSClient struct {
	conn *websocket.Conn
	transcript
}

// ConnectWebSocket creates a WebSocket connection to the specified URL with
// the test origin. It returns the connection or an error if connection fails.
func ConnectWebSocket(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// DialWS opens a chat connection to the /ws endpoint of httpAddr.
func DialWS(t *testing.T, httpAddr string) *WSClient {
	t.Helper()
	conn, _, err := ConnectWebSocket("ws://"+httpAddr+"/ws", TestOrigin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	c := &WSClient{conn: conn}
	c.src = c
	return c
}

func (c *WSClient) readChunk(deadline time.Time) (string, error) {
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return "", err
	}
	_, data, err := c.conn.ReadMessage()
	return string(data), err
}

// Send writes one line as a text frame.
func (c *WSClient) Send(t *testing.T, line string) {
	t.Helper()
	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte(line)))
}

// ReadUntil returns everything received up to and including want.
func (c *WSClient) ReadUntil(t *testing.T, want string) string {
	t.Helper()
	return c.readUntil(t, want)
}

// ReadUntilClosed returns what arrives before the server hangs up.
func (c *WSClient) ReadUntilClosed(t *testing.T) string {
	t.Helper()
	return c.readUntilClosed(t)
}

// Join answers the username prompt and waits for the welcome block.
func (c *WSClient) Join(t *testing.T, name string) {
	t.Helper()
	c.ReadUntil(t, chat.PromptUsername)
	c.Send(t, name)
	c.ReadUntil(t, chat.WelcomeMessage(name))
}

// Close sends a normal close frame and hangs up.
func (c *WSClient) Close() error {
	err := c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return c.conn.Close()
}
