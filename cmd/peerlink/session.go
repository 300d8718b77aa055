package main

import (
	"github.com/pterm/pterm"

	"github.com/1ureka/peerlink/internal/config"
	"github.com/1ureka/peerlink/internal/media"
	"github.com/1ureka/peerlink/internal/peer"
	"github.com/1ureka/peerlink/internal/signaling"
	"github.com/1ureka/peerlink/internal/transport"
)

// peerSetup gathers what a Host or Guest needs besides its role.
type peerSetup struct {
	cfg       config.Config
	bus       signaling.Bus
	lifecycle *peer.Lifecycle
	onMessage func(peer.Message)
	loopback  bool
}

// descriptors turns the configured channels into descriptors sharing one sink.
func (s peerSetup) descriptors() []peer.ChannelDescriptor {
	descs := make([]peer.ChannelDescriptor, len(s.cfg.Channels))
	for i, ch := range s.cfg.Channels {
		descs[i] = peer.ChannelDescriptor{
			Name:      ch.Name,
			OnMessage: s.onMessage,
			Options:   ch.DataChannelInit(),
		}
	}
	return descs
}

func (s peerSetup) options(role config.Role) (peer.Options, error) {
	var opts []transport.Option
	if s.loopback {
		opts = append(opts, transport.WithLoopback())
	}
	t, err := transport.NewPeerTransport(s.cfg.WebRTCConfiguration(), opts...)
	if err != nil {
		return peer.Options{}, err
	}

	o := peer.Options{
		Transport:      t,
		Signaling:      s.bus,
		Lifecycle:      s.lifecycle,
		Channels:       s.descriptors(),
		ChannelTimeout: s.cfg.ChannelTimeout(),
		OnRemoteTrack: func(rt transport.RemoteTrack) {
			pterm.Info.Printfln("%s received a remote %s track from stream %q", role, rt.Kind, rt.StreamID)
		},
	}
	if s.cfg.Media {
		video, err := media.NewVideoTrack(string(role)+"-video", string(role)+"-stream")
		if err != nil {
			t.Close()
			return peer.Options{}, err
		}
		o.LocalStream = media.NewStream(string(role)+"-stream", video)
	}
	return o, nil
}

// newPeer builds a Host or Guest controller. The transport is closed on
// failure.
func newPeer(role config.Role, setup peerSetup) (*peer.Controller, error) {
	opts, err := setup.options(role)
	if err != nil {
		return nil, err
	}
	if role == config.RoleHost {
		h, err := peer.NewHost(opts)
		if err != nil {
			opts.Transport.Close()
			return nil, err
		}
		return h.Controller, nil
	}
	g, err := peer.NewGuest(opts)
	if err != nil {
		opts.Transport.Close()
		return nil, err
	}
	return g.Controller, nil
}
