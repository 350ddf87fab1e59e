package client

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/linechat/internal/chat"
)

// fakeServer reads lines from conn and records them, replying to the first
// one with the welcome block. It hangs up after /quit or at end of input.
func fakeServer(conn net.Conn, received chan<- []string) {
	defer conn.Close()
	var lines []string
	defer func() { received <- lines }()

	if _, err := io.WriteString(conn, chat.PromptUsername); err != nil {
		return
	}
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSuffix(line, "\n")
		lines = append(lines, line)
		if len(lines) == 1 {
			_, _ = io.WriteString(conn, chat.WelcomeMessage(line))
		}
		if line == "/quit" {
			return
		}
	}
}

func runClient(t *testing.T, ctx context.Context, input string) (string, []string, error) {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	received := make(chan []string, 1)
	go fakeServer(serverSide, received)

	logger, _ := test.NewNullLogger()
	var out bytes.Buffer
	err := New(clientSide, logger).Run(ctx, strings.NewReader(input), &out)

	select {
	case lines := <-received:
		return out.String(), lines, err
	case <-time.After(2 * time.Second):
		t.Fatal("server side did not finish")
		return "", nil, err
	}
}

func TestRunStopsAfterQuit(t *testing.T) {
	out, lines, err := runClient(t, context.Background(), "alice\nhello all\n/quit\nnever sent\n")

	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "hello all", "/quit"}, lines)
	assert.True(t, strings.HasPrefix(out, chat.PromptUsername))
	assert.Contains(t, out, chat.WelcomeMessage("alice"))
}

func TestRunEndOfInputHangsUp(t *testing.T) {
	out, lines, err := runClient(t, context.Background(), "bob\n")

	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, lines)
	assert.Contains(t, out, chat.PromptUsername)
}

func TestRunCancelled(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer serverSide.Close()

	// input that never ends
	stdin, stdinWriter := io.Pipe()
	defer stdinWriter.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	logger, _ := test.NewNullLogger()
	go func() {
		done <- New(clientSide, logger).Run(ctx, stdin, io.Discard)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
