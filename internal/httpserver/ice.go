package httpserver

import (
	"net/http"
	"strings"

	"github.com/pion/webrtc/v4"
)

// handleICEServers serves the STUN/TURN configuration clients feed into their
// local RTCPeerConnection. When TURN REST is enabled, short-lived credentials
// are minted per request and injected into the TURN entries.
func (s *Server) handleICEServers(w http.ResponseWriter, r *http.Request) {
	servers := s.cfg.ICEServers

	if s.turn != nil {
		creds, err := s.turn.GenerateRandom()
		if err != nil {
			s.log.Error("failed to mint TURN credentials", "err", err)
			WriteJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
			return
		}
		servers = withTURNCredentials(servers, creds.Username, creds.Credential)
		WriteJSON(w, http.StatusOK, map[string]any{
			"iceServers": serversOrEmpty(servers),
			"ttl":        s.cfg.TURNREST.TTLSeconds,
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"iceServers": serversOrEmpty(servers)})
}

// serversOrEmpty keeps the JSON response as `[]` rather than `null` when no
// servers are configured.
func serversOrEmpty(servers []webrtc.ICEServer) []webrtc.ICEServer {
	if servers == nil {
		return []webrtc.ICEServer{}
	}
	return servers
}

func withTURNCredentials(servers []webrtc.ICEServer, username, credential string) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, len(servers))
	for i, server := range servers {
		out[i] = server
		if iceServerHasTURNURL(server) {
			out[i].Username = username
			out[i].Credential = credential
		}
	}
	return out
}

func iceServerHasTURNURL(server webrtc.ICEServer) bool {
	for _, raw := range server.URLs {
		url := strings.ToLower(strings.TrimSpace(raw))
		if strings.HasPrefix(url, "turn:") || strings.HasPrefix(url, "turns:") {
			return true
		}
	}
	return false
}
