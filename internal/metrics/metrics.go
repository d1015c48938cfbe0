package metrics

import "sync"

// Counter names used across the relay. Routing drops carry a reason so the
// silent best-effort semantics of the router stay observable.
const (
	ConnOpened = "conn_opened"
	ConnClosed = "conn_closed"

	EventRouted    = "event_routed"
	RoomJoined     = "room_joined"
	UserJoinedSent = "user_joined_sent"
	UserLeftSent   = "user_left_sent"

	DropReasonUnknownTarget   = "drop_unknown_target"
	DropReasonUnknownEvent    = "drop_unknown_event"
	DropReasonBadPayload      = "drop_bad_payload"
	DropReasonRateLimited     = "drop_rate_limited"
	DropReasonMessageTooLarge = "drop_message_too_large"
	DropReasonSendQueueFull   = "drop_send_queue_full"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// Counters are exposed via PrometheusHandler; keeping the registry in-process
// avoids pulling a metrics SDK into a service whose whole job is forwarding
// small JSON frames.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
