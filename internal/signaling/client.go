package signaling

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/webrtc-meet/signal-relay/internal/metrics"
	"github.com/webrtc-meet/signal-relay/internal/ratelimit"
	"github.com/webrtc-meet/signal-relay/internal/relay"
)

const writeWait = 10 * time.Second

// client wraps one signaling WebSocket connection. readPump is the only
// reader and writePump the only writer; everyone else talks to the client
// through Deliver.
type client struct {
	id  string
	log *slog.Logger
	m   *metrics.Metrics

	hub *relay.Hub
	ws  *websocket.Conn

	idleTimeout  time.Duration
	pingInterval time.Duration
	limiter      *ratelimit.TokenBucket

	send chan relay.Envelope

	// done is closed exactly once when the connection tears down. The send
	// channel is never closed, so Deliver can race with shutdown safely.
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) ID() string { return c.id }

// Deliver queues an outbound envelope. It never blocks: a full queue or a
// closing connection drops the envelope and reports false.
func (c *client) Deliver(env relay.Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// readPump pumps inbound frames into the hub until the connection errors or
// a protocol violation forces a close. It owns unregistration: the hub learns
// about the disconnect from here regardless of which pump failed first.
func (c *client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.close()
	}()

	c.ws.SetReadDeadline(time.Now().Add(c.idleTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.idleTimeout))
		return nil
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				c.m.Inc(metrics.DropReasonMessageTooLarge)
				c.closeWith(websocket.CloseMessageTooBig, "message too large")
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.log.Debug("signaling read failed", "conn_id", c.id, "err", err)
			}
			return
		}
		// Any inbound frame counts as liveness, not just pongs.
		c.ws.SetReadDeadline(time.Now().Add(c.idleTimeout))

		if msgType != websocket.TextMessage {
			c.closeWith(websocket.CloseUnsupportedData, "text frames only")
			return
		}

		if !c.limiter.Allow(1) {
			c.m.Inc(metrics.DropReasonRateLimited)
			c.closeWith(websocket.ClosePolicyViolation, "message rate exceeded")
			return
		}

		env, err := parseEnvelope(data)
		if err != nil {
			// Malformed frame: drop it, keep the connection. One client's bad
			// payload must not take down its own session, let alone others'.
			c.m.Inc(metrics.DropReasonBadPayload)
			c.log.Warn("dropping malformed frame", "conn_id", c.id, "err", err)
			continue
		}

		c.hub.Dispatch(c.id, env)
	}
}

// writePump serializes all writes to the socket: queued envelopes, keepalive
// pings, and the final close frame.
func (c *client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case env := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(env); err != nil {
				c.log.Debug("signaling write failed", "conn_id", c.id, "err", err)
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// closeWith sends a close frame from the read side. WriteControl is safe to
// call concurrently with writePump.
func (c *client) closeWith(code int, reason string) {
	c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	c.log.Warn("closing signaling connection", "conn_id", c.id, "code", code, "reason", reason)
}
