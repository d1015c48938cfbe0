package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

const (
	envICEServersJSON = "ICE_SERVERS_JSON"

	envStunURLs       = "STUN_URLS"
	envTurnURLs       = "TURN_URLS"
	envTurnUsername   = "TURN_USERNAME"
	envTurnCredential = "TURN_CREDENTIAL"
)

// defaultSTUNURL matches what the reference client hardcoded before the relay
// started serving its ICE configuration.
const defaultSTUNURL = "stun:stun.l.google.com:19302"

// parseICEServersFromValues builds the ICE server list either from the JSON
// env var or from the convenience STUN/TURN vars. With neither set, a public
// STUN server is used so browser peers behind ordinary NATs still connect.
func parseICEServersFromValues(iceServersJSON, stunURLs, turnURLs, turnUsername, turnCredential string) ([]webrtc.ICEServer, error) {
	if raw := strings.TrimSpace(iceServersJSON); raw != "" {
		servers, err := parseICEServersJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envICEServersJSON, err)
		}
		return servers, nil
	}

	var servers []webrtc.ICEServer

	stun := splitURLList(stunURLs)
	if len(stun) == 0 && strings.TrimSpace(turnURLs) == "" {
		stun = []string{defaultSTUNURL}
	}
	if len(stun) > 0 {
		for _, url := range stun {
			if !hasSchemeFold(url, "stun:", "stuns:") {
				return nil, fmt.Errorf("%s: %q is not a stun: URL", envStunURLs, url)
			}
		}
		servers = append(servers, webrtc.ICEServer{URLs: stun})
	}

	if turn := splitURLList(turnURLs); len(turn) > 0 {
		for _, url := range turn {
			if !hasSchemeFold(url, "turn:", "turns:") {
				return nil, fmt.Errorf("%s: %q is not a turn: URL", envTurnURLs, url)
			}
		}
		servers = append(servers, webrtc.ICEServer{
			URLs:       turn,
			Username:   strings.TrimSpace(turnUsername),
			Credential: strings.TrimSpace(turnCredential),
		})
	}

	return servers, nil
}

type iceServerJSON struct {
	URLs       stringOrStringSlice `json:"urls"`
	Username   string              `json:"username,omitempty"`
	Credential string              `json:"credential,omitempty"`
}

type stringOrStringSlice []string

func (s *stringOrStringSlice) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*s = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

func parseICEServersJSON(raw string) ([]webrtc.ICEServer, error) {
	var servers []iceServerJSON
	if err := json.Unmarshal([]byte(raw), &servers); err != nil {
		return nil, err
	}

	out := make([]webrtc.ICEServer, 0, len(servers))
	for i, server := range servers {
		urls := make([]string, 0, len(server.URLs))
		for _, url := range server.URLs {
			url = strings.TrimSpace(url)
			if url == "" {
				continue
			}
			if !hasSchemeFold(url, "stun:", "stuns:", "turn:", "turns:") {
				return nil, fmt.Errorf("servers[%d]: unsupported URL %q", i, url)
			}
			urls = append(urls, url)
		}
		if len(urls) == 0 {
			return nil, fmt.Errorf("servers[%d]: no urls", i)
		}

		entry := webrtc.ICEServer{
			URLs:     urls,
			Username: strings.TrimSpace(server.Username),
		}
		if cred := strings.TrimSpace(server.Credential); cred != "" {
			entry.Credential = cred
		}
		out = append(out, entry)
	}
	return out, nil
}

func splitURLList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func hasSchemeFold(url string, schemes ...string) bool {
	lower := strings.ToLower(url)
	for _, scheme := range schemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}
