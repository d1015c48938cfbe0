// Package signaling is the WebSocket transport for the relay: it upgrades
// GET /ws, frames {"event", "payload"} envelopes, and bridges each connection
// to the hub with one reader and one writer goroutine.
package signaling

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/webrtc-meet/signal-relay/internal/config"
	"github.com/webrtc-meet/signal-relay/internal/metrics"
	"github.com/webrtc-meet/signal-relay/internal/ratelimit"
	"github.com/webrtc-meet/signal-relay/internal/relay"
)

// Server accepts signaling WebSocket connections and registers them with the
// hub. Origin policy is enforced by the HTTP middleware the handler is
// mounted behind, so the upgrader itself accepts any origin.
type Server struct {
	cfg config.Config
	log *slog.Logger
	m   *metrics.Metrics
	hub *relay.Hub

	upgrader websocket.Upgrader
}

func NewServer(cfg config.Config, hub *relay.Hub, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		cfg: cfg,
		log: logger,
		m:   m,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	// The origin allow-list runs in httpserver.WithOriginPolicy before the
	// request reaches this handler; checking again here would double up.
	s.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	return s
}

// ServeHTTP handles GET /ws.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.log.Debug("websocket upgrade failed", "remote_addr", r.RemoteAddr, "err", err)
		return
	}

	ws.SetReadLimit(s.cfg.MaxMessageBytes)

	c := &client{
		id:           uuid.NewString(),
		log:          s.log,
		m:            s.m,
		hub:          s.hub,
		ws:           ws,
		idleTimeout:  s.cfg.WSIdleTimeout,
		pingInterval: s.cfg.WSPingInterval,
		limiter:      ratelimit.NewTokenBucket(ratelimit.RealClock{}, int64(s.cfg.MaxMessagesPerSecond), int64(s.cfg.MaxMessagesPerSecond)),
		send:         make(chan relay.Envelope, s.cfg.SendBufferMessages),
		done:         make(chan struct{}),
	}

	s.hub.Register(c)
	s.log.Info("signaling connection accepted", "conn_id", c.id, "remote_addr", r.RemoteAddr)

	go c.writePump()
	go c.readPump()
}
