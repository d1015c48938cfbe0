package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/webrtc-meet/signal-relay/internal/relay"
)

var errMissingEvent = errors.New("missing event name")

// parseEnvelope decodes one text frame into the {"event", "payload"} wire
// envelope. The payload is kept raw; routing-field validation happens in the
// hub so a bad payload is dropped per event, not per connection.
func parseEnvelope(data []byte) (relay.Envelope, error) {
	var env relay.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return relay.Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return relay.Envelope{}, errMissingEvent
	}
	return env, nil
}
