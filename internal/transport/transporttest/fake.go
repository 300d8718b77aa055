// Package transporttest provides an in-memory linked Transport pair.
//
// The pair completes a connection as soon as an offer/answer round trip has
// been applied on both sides: both ends report connected, data channels
// created on one side are announced to the other through OnDataChannel and
// opened, and newly attached tracks are announced through OnTrack. Each side
// gathers one host candidate after its first SetLocalDescription.
//
// Callbacks run synchronously on the calling goroutine, never while a lock is
// held. Connection state changes are the exception: like pion, they are
// delivered on another goroutine, in the order they happened.
package transporttest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/peerlink/internal/transport"
)

var (
	ErrClosed         = errors.New("transport closed")
	ErrNoRemoteOffer  = errors.New("no remote offer to answer")
	ErrNoRemoteSDP    = errors.New("remote description not set")
	ErrChannelNotOpen = errors.New("data channel not open")
	ErrUnknownSender  = errors.New("sender not attached")
	ErrUnexpectedSDP  = errors.New("unexpected description in this signaling state")
)

var _ transport.Transport = (*Transport)(nil)

// Transport is one end of a linked pair.
type Transport struct {
	name string
	peer *Transport

	mu        sync.Mutex
	state     webrtc.PeerConnectionState
	signaling webrtc.SignalingState
	closed    bool
	gathered  bool
	local     *webrtc.SessionDescription
	remote    *webrtc.SessionDescription

	channels  []*Channel
	announced map[*Channel]bool
	senders   []*Sender
	sent      map[*Sender]bool

	negotiationNeeded  bool
	negotiationPending bool
	offers             int
	candidates         []webrtc.ICECandidateInit

	failRemote    error
	failCandidate error

	stateQueue    []webrtc.PeerConnectionState
	stateDraining bool

	onNegotiationNeeded func()
	onICECandidate      func(*webrtc.ICECandidateInit)
	onState             func(webrtc.PeerConnectionState)
	onSignaling         func(webrtc.SignalingState)
	onDataChannel       func(transport.Channel)
	onTrack             func(transport.RemoteTrack)
}

// NewPair returns two linked transports.
func NewPair() (a, b *Transport) {
	a = newTransport("a")
	b = newTransport("b")
	a.peer, b.peer = b, a
	return a, b
}

func newTransport(name string) *Transport {
	return &Transport{
		name:      name,
		state:     webrtc.PeerConnectionStateNew,
		signaling: webrtc.SignalingStateStable,
		announced: make(map[*Channel]bool),
		sent:      make(map[*Sender]bool),
	}
}

// FailRemoteDescription makes the next SetRemoteDescription return err.
func (t *Transport) FailRemoteDescription(err error) {
	t.mu.Lock()
	t.failRemote = err
	t.mu.Unlock()
}

// FailCandidates makes every AddICECandidate return err (nil clears it).
func (t *Transport) FailCandidates(err error) {
	t.mu.Lock()
	t.failCandidate = err
	t.mu.Unlock()
}

// Offers returns how many offers this side has created.
func (t *Transport) Offers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offers
}

// RemoteCandidates returns the candidates applied with AddICECandidate.
func (t *Transport) RemoteCandidates() []webrtc.ICECandidateInit {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), t.candidates...)
}

// RemoteDescription returns the last applied remote description, or nil.
func (t *Transport) RemoteDescription() *webrtc.SessionDescription {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remote
}

// Senders returns the currently attached senders.
func (t *Transport) Senders() []*Sender {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Sender(nil), t.senders...)
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Disconnect simulates a network failure: both ends go to disconnected.
func (t *Transport) Disconnect() {
	t.setState(webrtc.PeerConnectionStateDisconnected)
	t.peer.setState(webrtc.PeerConnectionStateDisconnected)
}

func run(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

func (t *Transport) setState(s webrtc.PeerConnectionState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setStateLocked(s)
}

// setStateLocked records s and queues it for the state callback.
func (t *Transport) setStateLocked(s webrtc.PeerConnectionState) {
	if t.state == s || t.state == webrtc.PeerConnectionStateClosed {
		return
	}
	t.state = s
	if t.onState != nil {
		t.stateQueue = append(t.stateQueue, s)
		if !t.stateDraining {
			t.stateDraining = true
			go t.drainStates()
		}
	}
}

func (t *Transport) drainStates() {
	for {
		t.mu.Lock()
		if len(t.stateQueue) == 0 {
			t.stateDraining = false
			t.mu.Unlock()
			return
		}
		s := t.stateQueue[0]
		t.stateQueue = t.stateQueue[1:]
		fn := t.onState
		t.mu.Unlock()

		fn(s)
	}
}

func (t *Transport) setSignalingLocked(s webrtc.SignalingState) []func() {
	if t.signaling == s {
		return nil
	}
	t.signaling = s
	var fire []func()
	if fn := t.onSignaling; fn != nil {
		fire = append(fire, func() { fn(s) })
	}
	if s == webrtc.SignalingStateStable {
		t.negotiationNeeded = false
		if t.negotiationPending {
			t.negotiationPending = false
			fire = append(fire, t.negotiationNeededLocked()...)
		}
	}
	return fire
}

// negotiationNeededLocked fires now when stable, else once stable again.
// Notifications coalesce until the next completed negotiation.
func (t *Transport) negotiationNeededLocked() []func() {
	if t.signaling != webrtc.SignalingStateStable {
		t.negotiationPending = true
		return nil
	}
	if t.negotiationNeeded {
		return nil
	}
	t.negotiationNeeded = true
	if fn := t.onNegotiationNeeded; fn != nil {
		return []func(){fn}
	}
	return nil
}

func (t *Transport) CreateOffer() (webrtc.SessionDescription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return webrtc.SessionDescription{}, ErrClosed
	}
	t.offers++
	return webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  fmt.Sprintf("fake-offer-%s-%d", t.name, t.offers),
	}, nil
}

func (t *Transport) CreateAnswer() (webrtc.SessionDescription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return webrtc.SessionDescription{}, ErrClosed
	}
	if t.remote == nil || t.remote.Type != webrtc.SDPTypeOffer || t.signaling != webrtc.SignalingStateHaveRemoteOffer {
		return webrtc.SessionDescription{}, ErrNoRemoteOffer
	}
	return webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  "fake-answer-" + t.name + "-to-" + t.remote.SDP,
	}, nil
}

func (t *Transport) SetLocalDescription(sdp webrtc.SessionDescription) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}

	var fire []func()
	completed := false
	switch sdp.Type {
	case webrtc.SDPTypeOffer:
		if t.signaling != webrtc.SignalingStateStable {
			t.mu.Unlock()
			return ErrUnexpectedSDP
		}
		fire = t.setSignalingLocked(webrtc.SignalingStateHaveLocalOffer)
	case webrtc.SDPTypeAnswer:
		if t.signaling != webrtc.SignalingStateHaveRemoteOffer {
			t.mu.Unlock()
			return ErrUnexpectedSDP
		}
		completed = true
	default:
		t.mu.Unlock()
		return ErrUnexpectedSDP
	}
	t.local = &sdp

	if t.state == webrtc.PeerConnectionStateNew {
		t.setStateLocked(webrtc.PeerConnectionStateConnecting)
	}
	if !t.gathered {
		t.gathered = true
		if fn := t.onICECandidate; fn != nil {
			c := webrtc.ICECandidateInit{Candidate: "candidate:fake-" + t.name + " 1 udp 2130706431 127.0.0.1 9 typ host"}
			fire = append(fire, func() { fn(&c) }, func() { fn(nil) })
		}
	}
	if completed {
		fire = append(fire, t.setSignalingLocked(webrtc.SignalingStateStable)...)
	}
	t.mu.Unlock()

	run(fire)
	return nil
}

func (t *Transport) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if err := t.failRemote; err != nil {
		t.failRemote = nil
		t.mu.Unlock()
		return err
	}

	var fire []func()
	completed := false
	switch sdp.Type {
	case webrtc.SDPTypeOffer:
		if t.signaling != webrtc.SignalingStateStable {
			t.mu.Unlock()
			return ErrUnexpectedSDP
		}
		fire = t.setSignalingLocked(webrtc.SignalingStateHaveRemoteOffer)
	case webrtc.SDPTypeAnswer:
		if t.signaling != webrtc.SignalingStateHaveLocalOffer {
			t.mu.Unlock()
			return ErrUnexpectedSDP
		}
		completed = true
	default:
		t.mu.Unlock()
		return ErrUnexpectedSDP
	}
	t.remote = &sdp
	if completed {
		fire = append(fire, t.setSignalingLocked(webrtc.SignalingStateStable)...)
	}
	t.mu.Unlock()

	run(fire)
	if completed {
		t.link()
	}
	return nil
}

// link runs once the offerer applied the answer: both sides connect and
// exchange any channels and tracks not yet announced.
func (t *Transport) link() {
	for _, side := range []*Transport{t, t.peer} {
		side.setState(webrtc.PeerConnectionStateConnected)
	}

	t.announce()
	t.peer.announce()
}

// announce mirrors this side's pending channels and tracks onto the peer.
func (t *Transport) announce() {
	t.mu.Lock()
	if t.closed || t.state != webrtc.PeerConnectionStateConnected {
		t.mu.Unlock()
		return
	}
	var channels []*Channel
	for _, ch := range t.channels {
		if !t.announced[ch] {
			t.announced[ch] = true
			channels = append(channels, ch)
		}
	}
	var senders []*Sender
	for _, s := range t.senders {
		if !t.sent[s] {
			t.sent[s] = true
			senders = append(senders, s)
		}
	}
	t.mu.Unlock()

	t.peer.mu.Lock()
	onDataChannel := t.peer.onDataChannel
	onTrack := t.peer.onTrack
	t.peer.mu.Unlock()

	for _, ch := range channels {
		mirror := newChannel(ch.label)
		ch.link(mirror)
		if onDataChannel != nil {
			onDataChannel(mirror)
		}
		ch.open()
		mirror.open()
	}
	for _, s := range senders {
		if onTrack != nil {
			onTrack(transport.RemoteTrack{
				ID:       s.track.ID(),
				StreamID: s.track.StreamID(),
				Kind:     s.track.Kind(),
			})
		}
	}
}

func (t *Transport) AddICECandidate(c webrtc.ICECandidateInit) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.remote == nil {
		return ErrNoRemoteSDP
	}
	if t.failCandidate != nil {
		return t.failCandidate
	}
	t.candidates = append(t.candidates, c)
	return nil
}

// CreateDataChannel registers a channel. The first channel needs a
// negotiation; later ones open over the existing association.
func (t *Transport) CreateDataChannel(label string, _ *webrtc.DataChannelInit) (transport.Channel, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	ch := newChannel(label)
	first := len(t.channels) == 0
	t.channels = append(t.channels, ch)
	connected := t.state == webrtc.PeerConnectionStateConnected

	var fire []func()
	if first && !connected {
		fire = t.negotiationNeededLocked()
	}
	t.mu.Unlock()

	run(fire)
	if connected {
		t.announce()
	}
	return ch, nil
}

func (t *Transport) AddTrack(track webrtc.TrackLocal) (transport.Sender, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	s := &Sender{track: track}
	t.senders = append(t.senders, s)
	fire := t.negotiationNeededLocked()
	t.mu.Unlock()

	run(fire)
	return s, nil
}

func (t *Transport) RemoveTrack(sender transport.Sender) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	idx := -1
	for i, s := range t.senders {
		if transport.Sender(s) == sender {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.mu.Unlock()
		return ErrUnknownSender
	}
	t.senders = append(t.senders[:idx:idx], t.senders[idx+1:]...)
	fire := t.negotiationNeededLocked()
	t.mu.Unlock()

	run(fire)
	return nil
}

func (t *Transport) ConnectionState() webrtc.PeerConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) OnNegotiationNeeded(fn func()) {
	t.mu.Lock()
	t.onNegotiationNeeded = fn
	t.mu.Unlock()
}

func (t *Transport) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	t.mu.Lock()
	t.onICECandidate = fn
	t.mu.Unlock()
}

func (t *Transport) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	t.mu.Lock()
	t.onState = fn
	t.mu.Unlock()
}

func (t *Transport) OnSignalingStateChange(fn func(webrtc.SignalingState)) {
	t.mu.Lock()
	t.onSignaling = fn
	t.mu.Unlock()
}

func (t *Transport) OnDataChannel(fn func(transport.Channel)) {
	t.mu.Lock()
	t.onDataChannel = fn
	t.mu.Unlock()
}

func (t *Transport) OnTrack(fn func(transport.RemoteTrack)) {
	t.mu.Lock()
	t.onTrack = fn
	t.mu.Unlock()
}

// Close closes this end and its channels; the peer sees disconnected.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.setStateLocked(webrtc.PeerConnectionStateClosed)
	t.closed = true
	channels := append([]*Channel(nil), t.channels...)
	t.mu.Unlock()

	for _, ch := range channels {
		ch.Close()
	}
	t.peer.setState(webrtc.PeerConnectionStateDisconnected)
	return nil
}

// Sender is the fake handle of an attached track.
type Sender struct {
	track webrtc.TrackLocal
}

func (s *Sender) Track() webrtc.TrackLocal { return s.track }
