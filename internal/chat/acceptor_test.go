package chat

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startAcceptor(t *testing.T, capacity int) (*Acceptor, *fakeListener, *Registry, <-chan error) {
	t.Helper()
	registry := NewRegistry(capacity, 0)
	listener := newFakeListener()
	acceptor := NewAcceptor(listener, registry, NewRouter(registry, quietLogger()), quietLogger())

	served := make(chan error, 1)
	go func() { served <- acceptor.Serve() }()
	return acceptor, listener, registry, served
}

func TestAcceptorSpawnsSessions(t *testing.T) {
	acceptor, listener, registry, _ := startAcceptor(t, 4)
	defer func() { _ = acceptor.Shutdown(time.Second) }()

	alice := newFakeConn("alice-addr")
	alice.feed("alice")
	listener.conns <- alice

	bob := newFakeConn("bob-addr")
	bob.feed("bob")
	listener.conns <- bob

	alice.waitFor(t, "Welcome, alice!")
	bob.waitFor(t, "Welcome, bob!")
	assert.Equal(t, 2, registry.Count())
}

func TestAcceptorIsNotBlockedBySessions(t *testing.T) {
	acceptor, listener, _, _ := startAcceptor(t, 4)
	defer func() { _ = acceptor.Shutdown(time.Second) }()

	// A client that never sends its name stays in negotiation forever.
	idle := newFakeConn("idle")
	listener.conns <- idle
	idle.waitFor(t, PromptUsername)

	next := newFakeConn("next")
	next.feed("carol")
	select {
	case listener.conns <- next:
	case <-time.After(waitTimeout):
		t.Fatal("acceptor blocked behind an idle session")
	}
	next.waitFor(t, "Welcome, carol!")
}

func TestAcceptorContinuesAfterAcceptError(t *testing.T) {
	acceptor, listener, _, served := startAcceptor(t, 2)
	defer func() { _ = acceptor.Shutdown(time.Second) }()

	listener.errs <- errors.New("accept: too many open files")

	conn := newFakeConn("after-error")
	conn.feed("alice")
	listener.conns <- conn
	conn.waitFor(t, "Welcome, alice!")

	select {
	case err := <-served:
		t.Fatalf("Serve returned early: %v", err)
	default:
	}
}

func TestAcceptorRejectsWhenFull(t *testing.T) {
	acceptor, listener, registry, _ := startAcceptor(t, 1)
	defer func() { _ = acceptor.Shutdown(time.Second) }()

	first := newFakeConn("first")
	first.feed("alice")
	listener.conns <- first
	first.waitFor(t, "Welcome, alice!")

	second := newFakeConn("second")
	listener.conns <- second
	second.waitClosed(t)

	assert.Equal(t, []string{MsgServerFull}, second.messages())
	assert.Equal(t, 1, registry.Count())
}

func TestAcceptorShutdown(t *testing.T) {
	acceptor, listener, registry, served := startAcceptor(t, 4)

	alice := newFakeConn("alice-addr")
	alice.feed("alice")
	listener.conns <- alice
	alice.waitFor(t, "Welcome, alice!")

	pending := newFakeConn("pending")
	listener.conns <- pending
	pending.waitFor(t, PromptUsername)

	require.NoError(t, acceptor.Shutdown(time.Second))

	alice.waitClosed(t)
	pending.waitClosed(t)
	assert.Contains(t, alice.messages(), MsgShuttingDown)
	assert.Equal(t, 0, registry.Count(), "every session unregistered itself")

	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("Serve did not return after shutdown")
	}
}
