package relay

import (
	"encoding/json"
	"fmt"
)

// Event names understood by the router. Clients send the inbound names; the
// router emits the outbound names. The vocabulary is fixed: anything else is
// dropped without processing.
const (
	// Inbound.
	EventRoomJoin        = "room:join"
	EventUserCall        = "user:call"
	EventCallAccepted    = "call:accepted"
	EventPeerCandidate   = "peer:candidate"
	EventPeerNegotiation = "peer:negotiation"
	EventPeerNegoDone    = "peer:nego:done"

	// Outbound only.
	EventUserJoined    = "user:joined"
	EventUserLeft      = "user:left"
	EventIncomingCall  = "incoming:call"
	EventPeerNegoFinal = "peer:nego:final"
)

// Envelope is the framed structure exchanged with clients:
// {"event": "...", "payload": {...}}.
//
// The payload stays opaque to the relay except for the routing fields the
// router consumes (`room`/`identity` on join, `toUser`/`to` on targeted
// events).
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// route describes how one inbound targeted event maps to its outbound
// counterpart.
type route struct {
	// out is the event name delivered to the target.
	out string
	// targetKey is the payload field naming the target connection. It is
	// consumed by the router and stripped from the forwarded payload.
	targetKey string
	// withFrom adds a `from` field carrying the sender's connection id.
	withFrom bool
}

var routes = map[string]route{
	EventUserCall:        {out: EventIncomingCall, targetKey: "toUser", withFrom: true},
	EventCallAccepted:    {out: EventCallAccepted, targetKey: "to", withFrom: true},
	EventPeerCandidate:   {out: EventPeerCandidate, targetKey: "to", withFrom: false},
	EventPeerNegotiation: {out: EventPeerNegotiation, targetKey: "to", withFrom: true},
	EventPeerNegoDone:    {out: EventPeerNegoFinal, targetKey: "to", withFrom: true},
}

// payloadFields decodes a payload into its top-level fields without
// interpreting the values. Forwarded fields are re-encoded untouched.
func payloadFields(payload json.RawMessage) (map[string]json.RawMessage, error) {
	if len(payload) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("payload is not an object: %w", err)
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	return fields, nil
}

// stringField extracts a non-empty string field from decoded payload fields.
func stringField(fields map[string]json.RawMessage, name string) (string, bool) {
	raw, ok := fields[name]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}

func marshalFields(fields map[string]json.RawMessage) json.RawMessage {
	// Marshaling a map cannot fail for these value types.
	data, _ := json.Marshal(fields)
	return data
}

func jsonString(s string) json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}

// presence is the payload of user:joined and user:left notifications.
type presence struct {
	Identity string `json:"identity"`
	ID       string `json:"id"`
}

func presenceEnvelope(event, identity, connID string) Envelope {
	payload, _ := json.Marshal(presence{Identity: identity, ID: connID})
	return Envelope{Event: event, Payload: payload}
}
