package peer

import "github.com/1ureka/peerlink/internal/event"

// Lifecycle carries the local connection notifications. One Lifecycle may be
// shared by both peers of a process; subscribers run in subscription order.
type Lifecycle struct {
	// Connecting fires when a negotiation starts while not connected.
	Connecting *event.Emitter[struct{}]
	// Connected fires once per successful Connect.
	Connected *event.Emitter[struct{}]
	// Closed fires when the connection enters closed or disconnected.
	Closed *event.Emitter[struct{}]
}

func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		Connecting: event.New[struct{}](),
		Connected:  event.New[struct{}](),
		Closed:     event.New[struct{}](),
	}
}
