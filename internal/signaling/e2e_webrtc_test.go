package signaling

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/logging"
	"github.com/pion/transport/v4/vnet"
	"github.com/pion/webrtc/v4"

	"github.com/webrtc-meet/signal-relay/internal/relay"
)

// wsPeer serializes writes to one signaling connection. ICE candidate
// callbacks fire on pion goroutines, so writes need a lock.
type wsPeer struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (p *wsPeer) send(t *testing.T, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Errorf("marshal %s payload: %v", event, err)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ws.WriteJSON(relay.Envelope{Event: event, Payload: raw}); err != nil {
		t.Logf("write %s: %v", event, err)
	}
}

// pump reads envelopes into a channel so SDP and trickle candidates can be
// consumed from one place.
func pump(ws *websocket.Conn) <-chan relay.Envelope {
	ch := make(chan relay.Envelope, 32)
	go func() {
		defer close(ch)
		for {
			var env relay.Envelope
			if err := ws.ReadJSON(&env); err != nil {
				return
			}
			ch <- env
		}
	}()
	return ch
}

// awaitEvent waits for a specific event, feeding any trickle candidates that
// arrive in the meantime into the peer connection.
func awaitEvent(t *testing.T, ch <-chan relay.Envelope, pc *webrtc.PeerConnection, want string) relay.Envelope {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case env, ok := <-ch:
			if !ok {
				t.Fatalf("signaling connection closed while waiting for %s", want)
			}
			if env.Event == "peer:candidate" && pc != nil {
				addCandidate(pc, env)
				continue
			}
			if env.Event == want {
				return env
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func drainCandidates(ch <-chan relay.Envelope, pc *webrtc.PeerConnection) {
	for env := range ch {
		if env.Event == "peer:candidate" {
			addCandidate(pc, env)
		}
	}
}

func addCandidate(pc *webrtc.PeerConnection, env relay.Envelope) {
	var p struct {
		Candidate webrtc.ICECandidateInit `json:"candidate"`
	}
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return
	}
	_ = pc.AddICECandidate(p.Candidate)
}

func newVNetAPI(n *vnet.Net) (*webrtc.API, error) {
	se := webrtc.SettingEngine{}
	se.SetNet(n)

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	return webrtc.NewAPI(
		webrtc.WithSettingEngine(se),
		webrtc.WithMediaEngine(mediaEngine),
	), nil
}

// TestEndToEndDataChannelOverRelay stands up two pion peers on a virtual
// network and has them negotiate a data channel using the relay as their
// only signaling channel: offer via user:call, answer via call:accepted,
// trickle ICE via peer:candidate.
func TestEndToEndDataChannelOverRelay(t *testing.T) {
	const (
		cidr = "10.0.0.0/24"
		ipA  = "10.0.0.1"
		ipB  = "10.0.0.2"
	)

	router, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          cidr,
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	t.Cleanup(func() { _ = router.Stop() })

	netA, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{ipA}})
	if err != nil {
		t.Fatalf("new net A: %v", err)
	}
	netB, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{ipB}})
	if err != nil {
		t.Fatalf("new net B: %v", err)
	}
	if err := router.AddNet(netA); err != nil {
		t.Fatalf("add net A: %v", err)
	}
	if err := router.AddNet(netB); err != nil {
		t.Fatalf("add net B: %v", err)
	}
	if err := router.Start(); err != nil {
		t.Fatalf("start router: %v", err)
	}

	apiA, err := newVNetAPI(netA)
	if err != nil {
		t.Fatalf("new api A: %v", err)
	}
	apiB, err := newVNetAPI(netB)
	if err != nil {
		t.Fatalf("new api B: %v", err)
	}

	pcA, err := apiA.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("new pc A: %v", err)
	}
	t.Cleanup(func() { _ = pcA.Close() })

	pcB, err := apiB.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("new pc B: %v", err)
	}
	t.Cleanup(func() { _ = pcB.Close() })

	// Signaling side: both peers join the same room.
	url := startServer(t, testConfig())

	alice := &wsPeer{ws: dial(t, url)}
	bob := &wsPeer{ws: dial(t, url)}
	aliceCh := pump(alice.ws)
	bobCh := pump(bob.ws)

	alice.send(t, "room:join", map[string]string{"identity": "alice", "room": "e2e"})
	awaitEvent(t, aliceCh, nil, "room:join")
	bob.send(t, "room:join", map[string]string{"identity": "bob", "room": "e2e"})
	awaitEvent(t, bobCh, nil, "room:join")

	joined := awaitEvent(t, aliceCh, nil, "user:joined")
	var jp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(joined.Payload, &jp); err != nil || jp.ID == "" {
		t.Fatalf("user:joined payload: %s (err %v)", joined.Payload, err)
	}
	bobID := jp.ID

	// Offerer side.
	pcA.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		alice.send(t, "peer:candidate", map[string]any{"to": bobID, "candidate": c.ToJSON()})
	})

	dc, err := pcA.CreateDataChannel("chat", nil)
	if err != nil {
		t.Fatalf("create datachannel: %v", err)
	}
	dcOpen := make(chan struct{})
	dc.OnOpen(func() { close(dcOpen) })

	offer, err := pcA.CreateOffer(nil)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if err := pcA.SetLocalDescription(offer); err != nil {
		t.Fatalf("set local offer: %v", err)
	}
	alice.send(t, "user:call", map[string]any{"toUser": bobID, "offer": pcA.LocalDescription()})

	// Answerer side.
	incoming := awaitEvent(t, bobCh, pcB, "incoming:call")
	var call struct {
		From  string                    `json:"from"`
		Offer webrtc.SessionDescription `json:"offer"`
	}
	if err := json.Unmarshal(incoming.Payload, &call); err != nil {
		t.Fatalf("decode incoming:call: %v", err)
	}
	aliceID := call.From

	pcB.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		bob.send(t, "peer:candidate", map[string]any{"to": aliceID, "candidate": c.ToJSON()})
	})

	gotMsg := make(chan string, 1)
	pcB.OnDataChannel(func(remote *webrtc.DataChannel) {
		remote.OnMessage(func(msg webrtc.DataChannelMessage) {
			select {
			case gotMsg <- string(msg.Data):
			default:
			}
		})
	})

	if err := pcB.SetRemoteDescription(call.Offer); err != nil {
		t.Fatalf("set remote offer: %v", err)
	}
	answer, err := pcB.CreateAnswer(nil)
	if err != nil {
		t.Fatalf("create answer: %v", err)
	}
	if err := pcB.SetLocalDescription(answer); err != nil {
		t.Fatalf("set local answer: %v", err)
	}
	bob.send(t, "call:accepted", map[string]any{"to": aliceID, "ans": pcB.LocalDescription()})

	accepted := awaitEvent(t, aliceCh, pcA, "call:accepted")
	var ans struct {
		Ans webrtc.SessionDescription `json:"ans"`
	}
	if err := json.Unmarshal(accepted.Payload, &ans); err != nil {
		t.Fatalf("decode call:accepted: %v", err)
	}
	if err := pcA.SetRemoteDescription(ans.Ans); err != nil {
		t.Fatalf("set remote answer: %v", err)
	}

	// Late trickle candidates keep flowing while ICE completes.
	go drainCandidates(aliceCh, pcA)
	go drainCandidates(bobCh, pcB)

	select {
	case <-dcOpen:
	case <-time.After(15 * time.Second):
		t.Fatal("timed out waiting for datachannel to open")
	}

	if err := dc.SendText("hello through the relay"); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case msg := <-gotMsg:
		if msg != "hello through the relay" {
			t.Fatalf("message = %q", msg)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for datachannel message")
	}
}
