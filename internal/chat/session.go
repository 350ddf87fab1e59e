package chat

import (
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// State is a position in the per-connection protocol state machine.
type State int32

const (
	StateConnected State = iota
	StateNegotiating
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session drives one connection from name negotiation to teardown. Only the
// goroutine running Run mutates the session's registry slot.
type Session struct {
	id       string
	conn     Conn
	registry *Registry
	router   *Router
	log      logrus.FieldLogger

	ref       SessionRef
	name      string
	state     atomic.Int32
	closeOnce sync.Once
}

// NewSession prepares a handler for conn. Nothing is registered until Run.
func NewSession(conn Conn, registry *Registry, router *Router, log logrus.FieldLogger) *Session {
	if log == nil {
		log = logrus.StandardLogger()
	}
	id := uuid.NewString()
	return &Session{
		id:       id,
		conn:     conn,
		registry: registry,
		router:   router,
		log: log.WithFields(logrus.Fields{
			"session": id,
			"peer":    conn.RemoteAddr(),
		}),
	}
}

// ID returns the session's log correlation id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current protocol state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

// Run executes the protocol until the client quits or the stream ends.
// It blocks for the lifetime of the connection.
func (s *Session) Run() {
	ref, err := s.registry.Register(s.conn, s.conn.RemoteAddr())
	if err != nil {
		s.log.Warn("Rejecting connection: server full")
		if sendErr := s.conn.Send(MsgServerFull); sendErr != nil {
			s.log.WithError(sendErr).Debug("Error sending capacity notice")
		}
		s.closeConn()
		s.setState(StateClosed)
		return
	}
	s.ref = ref
	defer s.teardown()

	s.setState(StateNegotiating)
	if !s.negotiate() {
		return
	}

	s.setState(StateActive)
	s.serve()
}

// negotiate performs the single name attempt and reports whether the session
// may enter the active loop.
func (s *Session) negotiate() bool {
	if err := s.conn.Send(PromptUsername); err != nil {
		s.logStreamError(err)
		return false
	}

	line, err := s.conn.ReadLine()
	if err != nil {
		s.logStreamError(err)
		return false
	}

	cmd := ParseUsername(line)
	err = s.registry.SetUsername(s.ref, cmd.Name)
	switch {
	case errors.Is(err, ErrNameTaken):
		s.log.WithField("user", cmd.Name).Info("Rejecting username already in use")
		s.router.Reply(s.conn, cmd.Name, MsgNameTaken)
		return false
	case err != nil:
		s.log.WithField("user", cmd.Name).Info("Rejecting invalid username")
		s.router.Reply(s.conn, cmd.Name, MsgInvalidName)
		return false
	}

	s.name = cmd.Name
	s.log = s.log.WithField("user", s.name)
	s.router.Reply(s.conn, s.name, WelcomeMessage(s.name))
	s.router.AnnounceJoin(s.ref, s.name)
	s.log.Info("User joined the chat")
	return true
}

func (s *Session) serve() {
	for {
		line, err := s.conn.ReadLine()
		if err != nil {
			s.logStreamError(err)
			return
		}

		if !s.dispatch(ParseCommand(line)) {
			return
		}
	}
}

// dispatch handles one command and returns false when the session must close.
func (s *Session) dispatch(cmd Command) bool {
	switch cmd.Kind {
	case CommandEmpty:
	case CommandQuit:
		s.log.Info("User quit")
		return false
	case CommandListUsers:
		s.router.Reply(s.conn, s.name, UserListMessage(s.registry.ListUsernames()))
	case CommandPrivate:
		if err := s.router.SendPrivate(s.ref, s.conn, cmd.Name, cmd.Body); err != nil {
			s.log.WithField("target", cmd.Name).Debug("Private message target not found")
		}
	case CommandInvalidPrivate:
		s.router.Reply(s.conn, s.name, MsgPrivateUsage)
	case CommandBroadcast:
		s.router.Broadcast(s.ref, cmd.Body)
	}
	return true
}

// teardown releases the slot, announces the departure and closes the
// connection. It runs at most once whichever exit path reaches it.
func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		name, released := s.registry.Unregister(s.ref)
		if released && name != "" {
			s.router.AnnounceLeave(s.ref, name)
			s.log.Info("User left the chat")
		}
		s.closeConn()
		s.setState(StateClosed)
	})
}

func (s *Session) closeConn() {
	if err := s.conn.Close(); err != nil && !IsExpectedCloseError(err) {
		s.log.WithError(err).Warn("Error closing connection")
	}
}

func (s *Session) logStreamError(err error) {
	switch {
	case errors.Is(err, io.EOF):
		s.log.Info("Client disconnected")
	case IsExpectedCloseError(err):
		s.log.WithError(err).Debug("Client connection closed")
	default:
		s.log.WithError(err).Warn("Read error")
	}
}

// IsExpectedCloseError reports whether err is the usual noise of a peer or
// the server closing a connection.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
