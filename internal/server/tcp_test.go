package server

import (
	"bufio"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/linechat/internal/chat"
)

func pipeLineConn(t *testing.T, maxLine int) (*LineConn, net.Conn) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	t.Cleanup(func() {
		_ = serverSide.Close()
		_ = clientSide.Close()
	})
	return NewLineConn(serverSide, maxLine, time.Second), clientSide
}

func TestLineConnReadLine(t *testing.T) {
	conn, client := pipeLineConn(t, 64)

	go func() {
		_, _ = io.WriteString(client, "alice\r\n/who\n")
		_, _ = io.WriteString(client, "partial")
		_ = client.Close()
	}()

	for _, want := range []string{"alice", "/who", "partial"} {
		line, err := conn.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, want, line)
	}

	_, err := conn.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

func TestLineConnTruncatesLongLines(t *testing.T) {
	conn, client := pipeLineConn(t, 10)
	long := strings.Repeat("x", 5000)

	go func() {
		_, _ = io.WriteString(client, long+"\nnext\n")
	}()

	line, err := conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 10), line)

	line, err = conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "next", line, "the rest of an over-long line is discarded")
}

func TestLineConnConcurrentSend(t *testing.T) {
	conn, client := pipeLineConn(t, 64)
	const senders = 10

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, conn.Send("[bob] hello world\n"))
		}()
	}

	reader := bufio.NewReader(client)
	for i := 0; i < senders; i++ {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, "[bob] hello world\n", line, "writes must not interleave")
	}
	wg.Wait()
}

func TestLineConnCloseIsIdempotent(t *testing.T) {
	conn, _ := pipeLineConn(t, 64)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	assert.Error(t, conn.Send("late\n"))
	_, err := conn.ReadLine()
	assert.True(t, chat.IsExpectedCloseError(err))
}

func TestTCPListener(t *testing.T) {
	listener, err := ListenTCP("127.0.0.1:0", 64, time.Second)
	require.NoError(t, err)

	accepted := make(chan chat.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	client, err := net.Dial("tcp", listener.Addr())
	require.NoError(t, err)
	defer client.Close()

	var conn chat.Conn
	select {
	case conn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
	}
	defer conn.Close()

	assert.Equal(t, client.LocalAddr().String(), conn.RemoteAddr())

	require.NoError(t, conn.Send(chat.PromptUsername))
	buf := make([]byte, len(chat.PromptUsername))
	_, err = io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, chat.PromptUsername, string(buf))

	require.NoError(t, listener.Close())
	_, err = listener.Accept()
	assert.ErrorIs(t, err, chat.ErrListenerClosed)
}
