package transport

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/peerlink/internal/util"
)

// Compile-time interface checks.
var (
	_ Transport = (*PeerTransport)(nil)
	_ Channel   = (*webrtc.DataChannel)(nil)
	_ Sender    = (*webrtc.RTPSender)(nil)
)

// Option tunes the pion setting engine of a PeerTransport.
type Option func(*webrtc.SettingEngine)

// WithLoopback lets ICE gather loopback candidates, so two transports in one
// process can connect without any network interface.
func WithLoopback() Option {
	return func(se *webrtc.SettingEngine) {
		se.SetIncludeLoopbackCandidate(true)
		se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
	}
}

// PeerTransport is the Transport backed by a pion PeerConnection.
type PeerTransport struct {
	pc *webrtc.PeerConnection

	mu        sync.RWMutex
	pcState   webrtc.PeerConnectionState
	onStateFn func(webrtc.PeerConnectionState)

	closeOnce sync.Once
	closeErr  error
}

// NewPeerTransport creates a PeerConnection with the default codecs and the
// given ICE configuration.
func NewPeerTransport(config webrtc.Configuration, opts ...Option) (*PeerTransport, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	se := webrtc.SettingEngine{}
	for _, opt := range opts {
		opt(&se)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se))
	pc, err := api.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	t := &PeerTransport{pc: pc, pcState: webrtc.PeerConnectionStateNew}

	// The state is cached before the user callback runs so ConnectionState
	// never lags behind a delivered transition.
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		t.mu.Lock()
		t.pcState = state
		fn := t.onStateFn
		t.mu.Unlock()
		if fn != nil {
			fn(state)
		}
	})

	return t, nil
}

func (t *PeerTransport) CreateOffer() (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

func (t *PeerTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

func (t *PeerTransport) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(sdp)
}

func (t *PeerTransport) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(sdp)
}

func (t *PeerTransport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(candidate)
}

// CreateDataChannel opens a labeled channel. A nil init uses pion's defaults
// (ordered, reliable).
func (t *PeerTransport) CreateDataChannel(label string, init *webrtc.DataChannelInit) (Channel, error) {
	dc, err := t.pc.CreateDataChannel(label, init)
	if err != nil {
		return nil, err
	}
	return dc, nil
}

// AddTrack attaches an outbound track and starts draining its RTCP feedback,
// which pion requires for interceptors to make progress.
func (t *PeerTransport) AddTrack(track webrtc.TrackLocal) (Sender, error) {
	sender, err := t.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}

	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	return sender, nil
}

func (t *PeerTransport) RemoveTrack(sender Sender) error {
	rs, ok := sender.(*webrtc.RTPSender)
	if !ok {
		return fmt.Errorf("sender %T does not belong to a pion transport", sender)
	}
	return t.pc.RemoveTrack(rs)
}

// ConnectionState returns the last observed PeerConnection state.
func (t *PeerTransport) ConnectionState() webrtc.PeerConnectionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pcState
}

func (t *PeerTransport) OnNegotiationNeeded(fn func()) {
	t.pc.OnNegotiationNeeded(fn)
}

func (t *PeerTransport) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			fn(nil)
			return
		}
		init := c.ToJSON()
		fn(&init)
	})
}

func (t *PeerTransport) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	t.mu.Lock()
	t.onStateFn = fn
	t.mu.Unlock()
}

func (t *PeerTransport) OnSignalingStateChange(fn func(webrtc.SignalingState)) {
	t.pc.OnSignalingStateChange(fn)
}

func (t *PeerTransport) OnDataChannel(fn func(Channel)) {
	t.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		fn(dc)
	})
}

func (t *PeerTransport) OnTrack(fn func(RemoteTrack)) {
	t.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		util.LogDebug("Remote %s track %s (stream %s, %s)",
			track.Kind(), track.ID(), track.StreamID(), track.Codec().MimeType)
		fn(RemoteTrack{
			ID:       track.ID(),
			StreamID: track.StreamID(),
			Kind:     track.Kind(),
			Remote:   track,
		})
	})
}

// Close shuts down the PeerConnection. Later calls return the first result.
func (t *PeerTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.pc.Close()
		if errors.Is(t.closeErr, webrtc.ErrConnectionClosed) {
			t.closeErr = nil
		}
	})
	return t.closeErr
}
