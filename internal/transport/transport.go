// Package transport defines the real-time transport primitive the peer
// controllers drive, and provides its pion/webrtc implementation.
//
// The controllers never touch pion directly. They see a Transport: create and
// apply session descriptions, trickle ICE candidates, open labeled data
// channels, attach and detach outbound tracks, and observe connectivity.
package transport

import (
	"github.com/pion/webrtc/v4"
)

// Channel is a labeled bidirectional data channel. *webrtc.DataChannel
// satisfies it.
type Channel interface {
	Label() string
	ReadyState() webrtc.DataChannelState

	OnOpen(func())
	OnClose(func())
	OnMessage(func(webrtc.DataChannelMessage))
	OnError(func(error))

	Send(data []byte) error
	SendText(s string) error
	Close() error
}

// Sender is the handle of an attached outbound track, used to detach it.
// *webrtc.RTPSender satisfies it.
type Sender interface {
	Track() webrtc.TrackLocal
}

// RemoteTrack describes an inbound media track. Remote is nil for
// transports that carry no real media.
type RemoteTrack struct {
	ID       string
	StreamID string
	Kind     webrtc.RTPCodecType
	Remote   *webrtc.TrackRemote
}

// Transport is one side of a peer connection.
//
// Callbacks may be invoked from any goroutine. A nil candidate passed to the
// OnICECandidate callback marks the end of gathering.
type Transport interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error

	CreateDataChannel(label string, init *webrtc.DataChannelInit) (Channel, error)
	AddTrack(track webrtc.TrackLocal) (Sender, error)
	RemoveTrack(sender Sender) error

	ConnectionState() webrtc.PeerConnectionState

	OnNegotiationNeeded(func())
	OnICECandidate(func(*webrtc.ICECandidateInit))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	OnSignalingStateChange(func(webrtc.SignalingState))
	OnDataChannel(func(Channel))
	OnTrack(func(RemoteTrack))

	Close() error
}
