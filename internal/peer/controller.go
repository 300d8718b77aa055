// Package peer orchestrates one side of a two-party WebRTC session.
//
// A Controller owns a transport, runs the offer/answer exchange and ICE
// trickling over a signaling bus, demultiplexes labeled data channels to
// their sinks, and attaches or detaches an optional local media stream.
// Host and Guest specialize it: the Host creates every channel and may
// always initiate a negotiation; the Guest adopts the channels the Host
// opens and initiates only once connected, so the two never offer at the
// same step.
//
// Transport callbacks and signaling deliveries never run controller logic
// directly. They are queued on a per-controller loop and handled one at a
// time in arrival order, starting with the first call to Connect.
package peer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/peerlink/internal/config"
	"github.com/1ureka/peerlink/internal/media"
	"github.com/1ureka/peerlink/internal/signaling"
	"github.com/1ureka/peerlink/internal/transport"
	"github.com/1ureka/peerlink/internal/util"
)

// Options configures a controller.
type Options struct {
	Transport transport.Transport
	Signaling signaling.Bus
	// Lifecycle may be shared between peers. A private one is created when nil.
	Lifecycle *Lifecycle

	Channels []ChannelDescriptor
	// ChannelTimeout bounds each Connect. Zero uses the configured default.
	ChannelTimeout time.Duration

	// LocalStream is attached at construction when set.
	LocalStream *media.Stream
	// OnRemoteTrack is called once per inbound track.
	OnRemoteTrack func(transport.RemoteTrack)

	// AutoConnect makes a Guest start Connect on the first Connecting
	// notification. Ignored by Host.
	AutoConnect bool
}

// roleBehavior is what Host and Guest plug into the shared controller.
type roleBehavior interface {
	role() config.Role
	// mayInitiate reports whether the role may send an offer now.
	mayInitiate(connected bool) bool
}

// Controller is the role-independent part of a peer. A Controller built with
// NewController has no role: it negotiates but cannot Connect.
type Controller struct {
	log       util.Logger
	behavior  roleBehavior
	transport transport.Transport
	bus       signaling.Bus
	lifecycle *Lifecycle
	mux       *multiplexer
	loop      *loop
	timeout   time.Duration

	stream        *media.Stream
	onRemoteTrack func(transport.RemoteTrack)

	mediaMu sync.Mutex
	senders []transport.Sender

	// state is only touched on the loop.
	state webrtc.PeerConnectionState

	connectedOnce sync.Once
	closed        atomic.Bool
	closeOnce     sync.Once
	cleanup       []func()
}

// NewController returns a controller without a role.
func NewController(opts Options) (*Controller, error) {
	return newController(opts, nil)
}

func newController(opts Options, behavior roleBehavior) (*Controller, error) {
	if opts.Transport == nil {
		return nil, errors.New("peer: Options.Transport is required")
	}
	if opts.Signaling == nil {
		return nil, errors.New("peer: Options.Signaling is required")
	}

	tag := "Peer"
	if behavior != nil {
		tag = behavior.role().String()
	}
	log := util.NewLogger(tag)

	c := &Controller{
		log:           log,
		behavior:      behavior,
		transport:     opts.Transport,
		bus:           opts.Signaling,
		lifecycle:     opts.Lifecycle,
		loop:          newLoop(log),
		timeout:       opts.ChannelTimeout,
		stream:        opts.LocalStream,
		onRemoteTrack: opts.OnRemoteTrack,
		state:         webrtc.PeerConnectionStateNew,
	}
	if c.lifecycle == nil {
		c.lifecycle = NewLifecycle()
	}
	if c.timeout <= 0 {
		c.timeout = time.Duration(config.DefaultDataChannelWaitSec) * time.Second
	}

	mux, err := newMultiplexer(log, opts.Channels, c.loop.post)
	if err != nil {
		return nil, err
	}
	c.mux = mux

	c.wireTransport()
	c.wireSignaling()
	return c, nil
}

// wireTransport registers every transport callback once.
func (c *Controller) wireTransport() {
	t := c.transport

	t.OnNegotiationNeeded(func() {
		c.loop.post(c.handleNegotiationNeeded)
	})
	t.OnICECandidate(func(cand *webrtc.ICECandidateInit) {
		c.loop.post(func() { c.handleLocalCandidate(cand) })
	})
	t.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.loop.post(func() { c.handleStateChange(s) })
	})
	t.OnSignalingStateChange(func(s webrtc.SignalingState) {
		c.log.Debug("signaling state: %s", s)
	})
	// Channel callbacks must be in place before the callback returns or
	// early messages are lost.
	t.OnDataChannel(func(ch transport.Channel) {
		c.log.Debug("inbound data channel %q", ch.Label())
		c.mux.attach(ch)
	})
	t.OnTrack(func(rt transport.RemoteTrack) {
		c.loop.post(func() {
			c.log.Info("remote %s track %q from stream %q", rt.Kind, rt.ID, rt.StreamID)
			if c.onRemoteTrack != nil {
				c.onRemoteTrack(rt)
			}
		})
	})
}

// wireSignaling subscribes to both bus topics, dropping our own signals.
func (c *Controller) wireSignaling() {
	own := c.ownRole()

	unsubDesc := c.bus.SubscribeDescriptions(func(sig signaling.Tagged[signaling.Description]) {
		if sig.Source == own {
			return
		}
		c.loop.post(func() { c.handleRemoteDescription(sig.Value) })
	})
	unsubCand := c.bus.SubscribeCandidates(func(sig signaling.Tagged[signaling.Candidate]) {
		if sig.Source == own {
			return
		}
		c.loop.post(func() { c.handleRemoteCandidate(sig.Value) })
	})
	c.cleanup = append(c.cleanup, unsubDesc, unsubCand)
}

func (c *Controller) ownRole() config.Role {
	if c.behavior == nil {
		return ""
	}
	return c.behavior.role()
}

// Lifecycle returns the notification bus of this controller.
func (c *Controller) Lifecycle() *Lifecycle {
	return c.lifecycle
}

// PeerType returns the role, or ErrAbstractRole for a role-less controller.
func (c *Controller) PeerType() (config.Role, error) {
	if c.behavior == nil {
		return "", ErrAbstractRole
	}
	return c.behavior.role(), nil
}

// ConnectionState returns the transport's current connection state.
func (c *Controller) ConnectionState() webrtc.PeerConnectionState {
	return c.transport.ConnectionState()
}

// ---------------------------------------------------------------------------
// Negotiation (runs on the loop)
// ---------------------------------------------------------------------------

func (c *Controller) handleNegotiationNeeded() {
	if c.closed.Load() {
		return
	}

	connected := c.transport.ConnectionState() == webrtc.PeerConnectionStateConnected
	if !connected {
		c.lifecycle.Connecting.Emit(struct{}{})
	}
	if c.behavior != nil && !c.behavior.mayInitiate(connected) {
		c.log.Debug("negotiation needed before connecting, waiting for the remote offer")
		return
	}

	offer, err := c.transport.CreateOffer()
	if err != nil {
		c.log.Error("%v", fmt.Errorf("%w: create offer: %v", ErrNegotiationApply, err))
		return
	}
	if err := c.transport.SetLocalDescription(offer); err != nil {
		c.log.Error("%v", fmt.Errorf("%w: local offer: %v", ErrNegotiationApply, err))
		return
	}
	c.publishDescription(offer)
}

func (c *Controller) handleRemoteDescription(desc webrtc.SessionDescription) {
	if c.closed.Load() {
		return
	}
	c.log.Debug("received %s", desc.Type)

	if err := c.transport.SetRemoteDescription(desc); err != nil {
		c.log.Error("%v", fmt.Errorf("%w: remote %s: %v", ErrNegotiationApply, desc.Type, err))
		return
	}
	if desc.Type != webrtc.SDPTypeOffer {
		return
	}

	answer, err := c.transport.CreateAnswer()
	if err != nil {
		c.log.Error("%v", fmt.Errorf("%w: create answer: %v", ErrNegotiationApply, err))
		return
	}
	if err := c.transport.SetLocalDescription(answer); err != nil {
		c.log.Error("%v", fmt.Errorf("%w: local answer: %v", ErrNegotiationApply, err))
		return
	}
	c.publishDescription(answer)
}

func (c *Controller) publishDescription(desc webrtc.SessionDescription) {
	err := c.bus.PublishDescription(signaling.Tagged[signaling.Description]{Value: desc, Source: c.ownRole()})
	if err != nil {
		c.log.Error("failed to publish %s: %v", desc.Type, err)
		return
	}
	c.log.Debug("sent %s", desc.Type)
}

func (c *Controller) handleLocalCandidate(cand *webrtc.ICECandidateInit) {
	if cand == nil {
		c.log.Debug("ICE gathering complete")
		return
	}
	if c.closed.Load() {
		return
	}
	err := c.bus.PublishCandidate(signaling.Tagged[signaling.Candidate]{Value: *cand, Source: c.ownRole()})
	if err != nil {
		c.log.Error("failed to publish candidate: %v", err)
	}
}

func (c *Controller) handleRemoteCandidate(cand webrtc.ICECandidateInit) {
	if c.closed.Load() {
		return
	}
	if err := c.transport.AddICECandidate(cand); err != nil {
		c.log.Warn("%v", fmt.Errorf("%w: %v", ErrCandidateApply, err))
	}
}

func (c *Controller) handleStateChange(s webrtc.PeerConnectionState) {
	prev := c.state
	if s == prev {
		return
	}
	c.state = s
	c.log.Info("connection state: %s", s)

	if isDown(s) && !isDown(prev) {
		c.lifecycle.Closed.Emit(struct{}{})
	}
}

func isDown(s webrtc.PeerConnectionState) bool {
	return s == webrtc.PeerConnectionStateClosed || s == webrtc.PeerConnectionStateDisconnected
}

// ---------------------------------------------------------------------------
// Public operations
// ---------------------------------------------------------------------------

// Connect starts event processing and waits until every registered channel
// has opened at least once, then fires Lifecycle.Connected. The wait is
// bounded by the channel timeout and by ctx. Connected fires only for the
// first successful call; later calls return nil once the barrier holds.
func (c *Controller) Connect(ctx context.Context) error {
	if c.behavior == nil {
		return ErrAbstractRole
	}
	if c.closed.Load() {
		return ErrClosed
	}
	c.loop.start()

	if err := c.mux.waitOpen(ctx, c.timeout); err != nil {
		c.log.Error("connect failed: %v", err)
		return err
	}
	if c.closed.Load() {
		return ErrClosed
	}

	c.connectedOnce.Do(func() {
		c.log.Info("all data channels open")
		c.lifecycle.Connected.Emit(struct{}{})
	})
	return nil
}

// SendData sends a binary message on the named channel.
func (c *Controller) SendData(name string, payload []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.mux.send(name, payload, false)
}

// SendText sends a text message on the named channel.
func (c *Controller) SendText(name, text string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.mux.send(name, []byte(text), true)
}

// SetMedia attaches (true) or detaches (false) the local stream. The
// resulting renegotiation runs through the transport's negotiation-needed
// signal.
func (c *Controller) SetMedia(available bool) error {
	if c.stream == nil {
		return ErrNoLocalMedia
	}
	if c.closed.Load() {
		return ErrClosed
	}
	if available {
		return c.addMediaStream()
	}
	return c.removeMediaStream()
}

// addMediaStream attaches every live track of the local stream. Attaching
// while already attached does nothing.
func (c *Controller) addMediaStream() error {
	c.mediaMu.Lock()
	defer c.mediaMu.Unlock()
	if len(c.senders) > 0 {
		return nil
	}

	var errs []error
	for _, track := range c.stream.Tracks() {
		sender, err := c.transport.AddTrack(track.Local())
		if err != nil {
			errs = append(errs, fmt.Errorf("attach track %q: %w", track.ID(), err))
			continue
		}
		c.senders = append(c.senders, sender)
		c.log.Debug("attached %s track %q", track.Kind(), track.ID())
	}
	return errors.Join(errs...)
}

// removeMediaStream detaches every recorded sender.
func (c *Controller) removeMediaStream() error {
	c.mediaMu.Lock()
	defer c.mediaMu.Unlock()

	var errs []error
	for _, sender := range c.senders {
		if err := c.transport.RemoveTrack(sender); err != nil {
			errs = append(errs, err)
		}
	}
	c.senders = nil
	return errors.Join(errs...)
}

// Close shuts the peer down: channels, senders and transport are closed and
// every local track is stopped. Calling it again does nothing.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		for _, fn := range c.cleanup {
			fn()
		}

		c.mux.close()
		var errs []error
		if c.stream != nil {
			errs = append(errs, c.removeMediaStream())
			for _, track := range c.stream.AllTracks() {
				track.Stop()
				c.stream.RemoveTrack(track)
			}
		}
		errs = append(errs, c.transport.Close())
		err = errors.Join(errs...)

		// The transport may report closed only after the loop has stopped.
		c.loop.post(func() { c.handleStateChange(webrtc.PeerConnectionStateClosed) })
		c.loop.stop()
		c.log.Info("closed")
	})
	return err
}

// Done is closed after Close once every queued event has been handled.
func (c *Controller) Done() <-chan struct{} {
	return c.loop.Done()
}
