package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/linechat/internal/chat"
)

// wsPair upgrades one connection through an httptest server and returns the
// server-side WSConn and the raw client socket.
func wsPair(t *testing.T, maxMessage int64) (*WSConn, *websocket.Conn) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	serverSide := make(chan *WSConn, 1)

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverSide <- NewWSConn(conn, r.RemoteAddr, maxMessage, time.Second, logger)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case conn := <-serverSide:
		t.Cleanup(func() { _ = conn.Close() })
		return conn, client
	case <-time.After(2 * time.Second):
		t.Fatal("upgrade did not complete")
		return nil, nil
	}
}

func TestWSConnReadLineSplitsFrames(t *testing.T) {
	conn, client := wsPair(t, 1024)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("alice")))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("hello\r\n/who\n")))

	for _, want := range []string{"alice", "hello", "/who"} {
		line, err := conn.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, want, line)
	}
}

func TestWSConnSend(t *testing.T) {
	conn, client := wsPair(t, 1024)

	require.NoError(t, conn.Send(chat.JoinMessage("bob")))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	messageType, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, messageType)
	assert.Equal(t, "*** bob joined the chat ***\n", string(data))
	assert.NotEmpty(t, conn.RemoteAddr())
}

func TestWSConnNormalCloseIsEOF(t *testing.T) {
	conn, client := wsPair(t, 1024)

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	require.NoError(t, client.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second)))

	_, err := conn.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

func TestWSConnReadLimit(t *testing.T) {
	conn, client := wsPair(t, 16)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 64))))

	_, err := conn.ReadLine()
	require.Error(t, err)
	assert.ErrorIs(t, err, websocket.ErrReadLimit)
}

func TestWSConnCloseIsIdempotent(t *testing.T) {
	conn, client := wsPair(t, 1024)

	require.NoError(t, conn.Close())
	_ = conn.Close()

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestWSListenerHandoff(t *testing.T) {
	listener := NewWSListener()
	assert.Equal(t, "websocket", listener.Addr())

	conn, _ := wsPair(t, 1024)
	go func() { _ = listener.handoff(conn) }()

	accepted, err := listener.Accept()
	require.NoError(t, err)
	assert.Same(t, conn, accepted)

	require.NoError(t, listener.Close())
	_, err = listener.Accept()
	assert.ErrorIs(t, err, chat.ErrListenerClosed)
	assert.ErrorIs(t, listener.handoff(conn), chat.ErrListenerClosed)
}
