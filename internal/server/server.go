package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/linechat/internal/chat"
)

// Server runs the TCP acceptor, and optionally the HTTP server with its
// WebSocket acceptor, over one shared registry.
type Server struct {
	cfg      *Config
	log      logrus.FieldLogger
	registry *chat.Registry
	router   *chat.Router

	tcp         *TCPListener
	tcpAcceptor *chat.Acceptor

	ws         *WSListener
	wsAcceptor *chat.Acceptor
	httpServer *http.Server
	httpLn     net.Listener

	shutdownOnce sync.Once
	shutdownErr  error
	done         chan struct{}
}

// New binds the configured listeners. Nothing is served until Run.
func New(cfg *Config, log logrus.FieldLogger) (*Server, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	cfg.sanitize()
	if log == nil {
		log = logrus.StandardLogger()
	}

	registry := chat.NewRegistry(cfg.MaxClients, cfg.MaxUsernameLength)
	router := chat.NewRouter(registry, log)
	s := &Server{
		cfg:      cfg,
		log:      log,
		registry: registry,
		router:   router,
		done:     make(chan struct{}),
	}

	tcp, err := ListenTCP(cfg.TCPAddr, cfg.MaxLineLength, cfg.WriteTimeout)
	if err != nil {
		return nil, err
	}
	s.tcp = tcp
	s.tcpAcceptor = chat.NewAcceptor(tcp, registry, router, log.WithField("transport", "tcp"))

	if cfg.HTTPEnabled() {
		httpLn, err := net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			_ = tcp.Close()
			return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
		}
		s.httpLn = httpLn
		s.ws = NewWSListener()
		s.wsAcceptor = chat.NewAcceptor(s.ws, registry, router, log.WithField("transport", "websocket"))

		handlers := NewHandlers(cfg, registry, s.ws, log.WithField("component", "http"))
		s.httpServer = CreateServer(httpLn.Addr().String(), SetupRoutes(handlers))
	}

	return s, nil
}

// Registry exposes the shared session registry.
func (s *Server) Registry() *chat.Registry {
	return s.registry
}

// TCPAddr returns the bound chat address.
func (s *Server) TCPAddr() string {
	return s.tcp.Addr()
}

// HTTPAddr returns the bound HTTP address, or "" when HTTP is disabled.
func (s *Server) HTTPAddr() string {
	if s.httpLn == nil {
		return ""
	}
	return s.httpLn.Addr().String()
}

// Run serves until ctx is cancelled or Shutdown is called, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(s.tcpAcceptor.Serve)
	s.log.Infof("Chat server listening on %s", s.TCPAddr())

	if s.httpServer != nil {
		g.Go(s.wsAcceptor.Serve)
		g.Go(func() error {
			s.log.Infof("HTTP server listening on %s", s.HTTPAddr())
			if err := s.httpServer.Serve(s.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-s.done:
		}
		return s.Shutdown()
	})

	return g.Wait()
}

// Shutdown stops every listener and waits for sessions to finish, bounded by
// the configured timeout per acceptor. It is safe to call more than once.
func (s *Server) Shutdown() error {
	s.shutdownOnce.Do(func() {
		close(s.done)

		var errs []error
		if s.httpServer != nil {
			if err := ShutdownServer(s.httpServer, s.cfg.ShutdownTimeout, s.log); err != nil {
				errs = append(errs, err)
			}
			if err := s.wsAcceptor.Shutdown(s.cfg.ShutdownTimeout); err != nil {
				errs = append(errs, fmt.Errorf("websocket sessions: %w", err))
			}
		}
		if err := s.tcpAcceptor.Shutdown(s.cfg.ShutdownTimeout); err != nil {
			errs = append(errs, fmt.Errorf("tcp sessions: %w", err))
		}
		s.shutdownErr = errors.Join(errs...)
	})
	return s.shutdownErr
}
