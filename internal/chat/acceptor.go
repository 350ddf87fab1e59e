package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Acceptor turns every connection accepted from a Listener into a Session
// running on its own goroutine. Several acceptors may share one Registry.
type Acceptor struct {
	listener Listener
	registry *Registry
	router   *Router
	log      logrus.FieldLogger

	mutex   sync.Mutex
	conns   map[Conn]struct{}
	closing bool
	wg      sync.WaitGroup
}

// NewAcceptor creates an acceptor for listener.
func NewAcceptor(listener Listener, registry *Registry, router *Router, log logrus.FieldLogger) *Acceptor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Acceptor{
		listener: listener,
		registry: registry,
		router:   router,
		log:      log.WithField("listener", listener.Addr()),
		conns:    make(map[Conn]struct{}),
	}
}

// Serve accepts connections until the listener is closed. Accept failures
// other than closure are logged and retried with a short backoff. It returns
// nil after Shutdown.
func (a *Acceptor) Serve() error {
	a.log.Info("Accepting chat connections")

	var backoff time.Duration
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			if errors.Is(err, ErrListenerClosed) || a.isClosing() {
				a.log.Info("Listener closed, exiting accept loop")
				return nil
			}
			backoff = nextBackoff(backoff)
			a.log.WithError(err).Warnf("Error accepting connection; retrying in %v", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if !a.track(conn) {
			_ = conn.Close()
			return nil
		}

		session := NewSession(conn, a.registry, a.router, a.log)
		a.log.WithField("session", session.ID()).Debugf("Accepted connection from %s", conn.RemoteAddr())
		go func() {
			defer a.wg.Done()
			defer a.untrack(conn)
			session.Run()
		}()
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptBackoff
	}
	d *= 2
	if d > maxAcceptBackoff {
		d = maxAcceptBackoff
	}
	return d
}

func (a *Acceptor) isClosing() bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.closing
}

// track records conn and reserves a wait-group slot for its session. It fails
// once Shutdown has started.
func (a *Acceptor) track(conn Conn) bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.closing {
		return false
	}
	a.conns[conn] = struct{}{}
	a.wg.Add(1)
	return true
}

func (a *Acceptor) untrack(conn Conn) {
	a.mutex.Lock()
	delete(a.conns, conn)
	a.mutex.Unlock()
}

// Shutdown stops accepting, notifies and closes every connection this
// acceptor spawned, and waits for their sessions to finish their own
// teardown. It returns context.DeadlineExceeded if that takes longer than
// timeout.
func (a *Acceptor) Shutdown(timeout time.Duration) error {
	a.log.Info("Initiating acceptor shutdown...")

	a.mutex.Lock()
	a.closing = true
	conns := make([]Conn, 0, len(a.conns))
	for conn := range a.conns {
		conns = append(conns, conn)
	}
	a.mutex.Unlock()

	if err := a.listener.Close(); err != nil && !IsExpectedCloseError(err) {
		a.log.WithError(err).Warn("Error closing listener")
	}

	// Closing the handle makes the owning session's blocking read fail, so
	// each session still unregisters itself.
	for _, conn := range conns {
		_ = conn.Send(MsgShuttingDown)
		if err := conn.Close(); err != nil && !IsExpectedCloseError(err) {
			a.log.WithError(err).Debugf("Error closing connection from %s", conn.RemoteAddr())
		}
	}
	a.log.Infof("Closed %d client connections", len(conns))

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.log.Info("Acceptor shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		a.log.Warn("Acceptor shutdown timeout reached, some sessions may still be running")
		return context.DeadlineExceeded
	}
}
