// Package signaling carries session descriptions and ICE candidates between
// the two peers of a session.
//
// Every signal is tagged with the role of the peer that produced it. A [Bus]
// delivers each published signal to every current subscriber, including the
// publisher's own; receivers drop signals carrying their own role. Three
// implementations share the same contract:
//
//   - [MemoryBus] relays in-process, for peers running in one process.
//   - [WSBus] talks to a [Relay] over WebSocket.
//   - [SSEBus] publishes with HTTP POST and listens on an [SSERelay] event stream.
package signaling

import (
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/peerlink/internal/config"
	"github.com/1ureka/peerlink/internal/event"
)

type (
	Description = webrtc.SessionDescription
	Candidate   = webrtc.ICECandidateInit
)

// Tagged is a signal stamped with the role of the peer that published it.
type Tagged[T any] struct {
	Value  T
	Source config.Role
}

var (
	// ErrBusClosed is returned when publishing on a closed bus.
	ErrBusClosed = errors.New("signaling bus closed")

	// ErrUnauthorized is returned when a relay rejects the PIN.
	ErrUnauthorized = errors.New("signaling relay rejected the PIN")

	// ErrMissingSource is returned for signals published without a role tag.
	ErrMissingSource = errors.New("signal has no source role")
)

// Bus is the shared signaling conduit. Subscribers are invoked in
// subscription order, synchronously per published signal. There is no replay
// for late subscribers.
type Bus interface {
	PublishDescription(sig Tagged[Description]) error
	PublishCandidate(sig Tagged[Candidate]) error

	SubscribeDescriptions(fn func(Tagged[Description])) (unsubscribe func())
	SubscribeCandidates(fn func(Tagged[Candidate])) (unsubscribe func())

	Close() error
}

// topics holds the two subscriber lists every Bus implementation dispatches to.
type topics struct {
	descriptions event.Emitter[Tagged[Description]]
	candidates   event.Emitter[Tagged[Candidate]]
}

func (t *topics) SubscribeDescriptions(fn func(Tagged[Description])) func() {
	return t.descriptions.Subscribe(fn)
}

func (t *topics) SubscribeCandidates(fn func(Tagged[Candidate])) func() {
	return t.candidates.Subscribe(fn)
}

// dispatch hands a decoded wire message to the matching topic.
func (t *topics) dispatch(msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	switch msg.Type {
	case MsgTypeDescription:
		t.descriptions.Emit(Tagged[Description]{Value: *msg.Description, Source: msg.Source})
	case MsgTypeCandidate:
		t.candidates.Emit(Tagged[Candidate]{Value: *msg.Candidate, Source: msg.Source})
	}
	return nil
}
