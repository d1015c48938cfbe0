package relay

import (
	"context"
	"log/slog"

	"github.com/webrtc-meet/signal-relay/internal/metrics"
)

// Conn is the transport-level handle the Hub routes to. Implementations must
// make Deliver non-blocking: queue the envelope or drop it, never wait.
type Conn interface {
	// ID returns the connection identifier assigned at connect time.
	ID() string

	// Deliver hands an outbound envelope to the connection. It reports false
	// when the envelope was dropped (queue full or connection gone); the Hub
	// never retries either way.
	Deliver(Envelope) bool
}

type inbound struct {
	senderID string
	env      Envelope
}

// Hub owns all relay state and processes events one at a time in arrival
// order. Register, Unregister, and Dispatch may be called from any goroutine;
// they enqueue onto the Hub's loop and return once the event is accepted
// (or the Hub has stopped).
type Hub struct {
	log *slog.Logger
	m   *metrics.Metrics

	registry *Registry
	rooms    *Rooms
	conns    map[string]Conn

	register   chan Conn
	unregister chan Conn
	events     chan inbound

	done chan struct{}
}

func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log:        logger,
		m:          m,
		registry:   NewRegistry(),
		rooms:      NewRooms(),
		conns:      make(map[string]Conn),
		register:   make(chan Conn),
		unregister: make(chan Conn),
		events:     make(chan inbound),
		done:       make(chan struct{}),
	}
}

// Run processes events until ctx is cancelled. It must be called exactly once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.handleRegister(c)
		case c := <-h.unregister:
			h.handleUnregister(c)
		case ev := <-h.events:
			h.route(ev.senderID, ev.env)
		}
	}
}

// Register adds a freshly accepted connection.
func (h *Hub) Register(c Conn) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister removes a connection, cleaning up its identity and room
// membership and notifying former room peers. Unregistering a connection
// that was never registered (or already removed) is a no-op.
func (h *Hub) Unregister(c Conn) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Dispatch hands one inbound client envelope to the router.
func (h *Hub) Dispatch(senderID string, env Envelope) {
	select {
	case h.events <- inbound{senderID: senderID, env: env}:
	case <-h.done:
	}
}

func (h *Hub) handleRegister(c Conn) {
	h.conns[c.ID()] = c
	h.registry.Register(c.ID())
	h.m.Inc(metrics.ConnOpened)
	h.log.Debug("connection registered", "conn_id", c.ID())
}

func (h *Hub) handleUnregister(c Conn) {
	connID := c.ID()
	if _, ok := h.conns[connID]; !ok {
		return
	}

	identity, _ := h.registry.IdentityOf(connID)
	left := h.rooms.LeaveAll(connID)
	h.registry.Unregister(connID)
	delete(h.conns, connID)
	h.m.Inc(metrics.ConnClosed)

	// Departure notice so remaining peers can drop their UI state. Membership
	// is already cleaned up, so Members() is exactly the remaining peers.
	notice := presenceEnvelope(EventUserLeft, identity, connID)
	for _, room := range left {
		for _, member := range h.rooms.Members(room) {
			if h.deliver(member, notice) {
				h.m.Inc(metrics.UserLeftSent)
			}
		}
	}

	h.log.Debug("connection unregistered", "conn_id", connID, "identity", identity, "rooms", len(left))
}

func (h *Hub) route(senderID string, env Envelope) {
	if !h.registry.Known(senderID) {
		// Sender disconnected between enqueue and processing.
		return
	}

	switch env.Event {
	case EventRoomJoin:
		h.handleJoin(senderID, env)
	case EventUserCall, EventCallAccepted, EventPeerCandidate, EventPeerNegotiation, EventPeerNegoDone:
		h.forward(senderID, env, routes[env.Event])
	default:
		h.m.Inc(metrics.DropReasonUnknownEvent)
		h.log.Warn("dropping unknown event", "event", env.Event, "conn_id", senderID)
	}
}

// handleJoin implements room:join: bind the identity, announce the joiner to
// everyone already in the room, add the joiner, then echo room:join back to
// the joiner only. The announcement precedes the membership update so the
// joiner never sees a user:joined about itself.
func (h *Hub) handleJoin(senderID string, env Envelope) {
	fields, err := payloadFields(env.Payload)
	if err != nil {
		h.dropBadPayload(senderID, env.Event, err.Error())
		return
	}
	identity, ok := stringField(fields, "identity")
	if !ok {
		h.dropBadPayload(senderID, env.Event, "missing identity")
		return
	}
	room, ok := stringField(fields, "room")
	if !ok {
		h.dropBadPayload(senderID, env.Event, "missing room")
		return
	}

	h.registry.SetIdentity(senderID, identity)

	notice := presenceEnvelope(EventUserJoined, identity, senderID)
	for _, member := range h.rooms.Members(room) {
		if member == senderID {
			continue
		}
		if h.deliver(member, notice) {
			h.m.Inc(metrics.UserJoinedSent)
		}
	}

	h.rooms.Join(room, senderID)
	h.m.Inc(metrics.RoomJoined)

	h.deliver(senderID, env)
	h.log.Info("room joined", "room", room, "identity", identity, "conn_id", senderID)
}

// forward implements the point-to-point events: strip the routing field,
// optionally stamp the sender, and deliver to the target only. The remaining
// payload fields pass through unmodified.
func (h *Hub) forward(senderID string, env Envelope, r route) {
	fields, err := payloadFields(env.Payload)
	if err != nil {
		h.dropBadPayload(senderID, env.Event, err.Error())
		return
	}
	target, ok := stringField(fields, r.targetKey)
	if !ok {
		h.dropBadPayload(senderID, env.Event, "missing "+r.targetKey)
		return
	}
	delete(fields, r.targetKey)
	if r.withFrom {
		fields["from"] = jsonString(senderID)
	}

	if _, ok := h.conns[target]; !ok {
		// Unknown or disconnected target: at-most-once best effort, no error
		// back to the sender.
		h.m.Inc(metrics.DropReasonUnknownTarget)
		h.log.Debug("dropping event for unknown target", "event", env.Event, "target", target)
		return
	}

	out := Envelope{Event: r.out, Payload: marshalFields(fields)}
	if h.deliver(target, out) {
		h.m.Inc(metrics.EventRouted)
	}
}

func (h *Hub) deliver(connID string, env Envelope) bool {
	c, ok := h.conns[connID]
	if !ok {
		return false
	}
	if !c.Deliver(env) {
		h.m.Inc(metrics.DropReasonSendQueueFull)
		h.log.Warn("dropped outbound event", "event", env.Event, "conn_id", connID)
		return false
	}
	return true
}

func (h *Hub) dropBadPayload(senderID, event, reason string) {
	h.m.Inc(metrics.DropReasonBadPayload)
	h.log.Warn("dropping malformed event", "event", event, "conn_id", senderID, "reason", reason)
}
