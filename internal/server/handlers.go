// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, live statistics, and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/linechat/internal/chat"
)

const healthMessage = "linechat server is running"

// Handlers serves the HTTP side of the chat: upgrades to the shared
// registry plus read-only status endpoints.
type Handlers struct {
	registry     *chat.Registry
	listener     *WSListener
	upgrader     websocket.Upgrader
	maxMessage   int64
	writeTimeout time.Duration
	log          logrus.FieldLogger
}

// NewHandlers wires the HTTP handlers. Upgraded connections are handed to
// listener.
func NewHandlers(cfg *Config, registry *chat.Registry, listener *WSListener, log logrus.FieldLogger) *Handlers {
	if log == nil {
		log = logrus.StandardLogger()
	}
	origins := NewOriginPolicy(cfg.AllowedOrigins, log)
	return &Handlers{
		registry: registry,
		listener: listener,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.CheckOrigin,
		},
		maxMessage:   int64(cfg.MaxLineLength),
		writeTimeout: cfg.WriteTimeout,
		log:          log,
	}
}

// WebSocketHandler validates that the request uses the GET method, upgrades
// it, and hands the connection to the WebSocket acceptor.
func (h *Handlers) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	wsConn := NewWSConn(conn, r.RemoteAddr, h.maxMessage, h.writeTimeout, h.log)
	if err := h.listener.handoff(wsConn); err != nil {
		_ = wsConn.Send(chat.MsgShuttingDown)
		_ = wsConn.Close()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, healthMessage)
}

// Stats is the JSON body of the stats endpoint.
type Stats struct {
	Active   int                `json:"active"`
	Capacity int                `json:"capacity"`
	Users    []string           `json:"users"`
	Sessions []chat.SessionInfo `json:"sessions"`
}

// StatsHandler reports the registry occupancy.
func (h *Handlers) StatsHandler(w http.ResponseWriter, _ *http.Request) {
	sessions := h.registry.Sessions()
	stats := Stats{
		Active:   len(sessions),
		Capacity: h.registry.Capacity(),
		Users:    h.registry.ListUsernames(),
		Sessions: sessions,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		h.log.WithError(err).Warn("Error writing stats response")
	}
}

// TestPageHandler serves an HTML page that speaks the chat protocol over the
// WebSocket endpoint.
func (h *Handlers) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		h.log.WithError(err).Warn("Error writing HTML response")
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>linechat</title>
    <style>
        body { font-family: monospace; margin: 20px; }
        #log { border: 1px solid #ccc; height: 360px; padding: 10px; overflow-y: scroll; white-space: pre-wrap; }
        input[type="text"] { width: 400px; padding: 5px; }
    </style>
</head>
<body>
    <h1>linechat</h1>
    <div id="log"></div>
    <input type="text" id="line" placeholder="username, then messages, @name msg, /who, /quit" autofocus>
    <script>
        const log = document.getElementById('log');
        const input = document.getElementById('line');
        const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
        const ws = new WebSocket(scheme + location.host + '/ws');

        function append(text) {
            log.textContent += text;
            log.scrollTop = log.scrollHeight;
        }

        ws.onmessage = function(event) { append(event.data); };
        ws.onclose = function() { append('\n[connection closed]\n'); input.disabled = true; };

        input.addEventListener('keypress', function(e) {
            if (e.key === 'Enter' && ws.readyState === WebSocket.OPEN) {
                ws.send(input.value);
                append(input.value + '\n');
                input.value = '';
            }
        });
    </script>
</body>
</html>`
