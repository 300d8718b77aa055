package transporttest

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/peerlink/internal/transport"
)

var _ transport.Channel = (*Channel)(nil)

// Channel is one end of a linked data channel. Send delivers synchronously
// to the other end's OnMessage callback.
type Channel struct {
	label string

	mu        sync.Mutex
	state     webrtc.DataChannelState
	remote    *Channel
	onOpen    func()
	onClose   func()
	onMessage func(webrtc.DataChannelMessage)
	onError   func(error)
}

func newChannel(label string) *Channel {
	return &Channel{label: label, state: webrtc.DataChannelStateConnecting}
}

func (c *Channel) link(other *Channel) {
	c.mu.Lock()
	c.remote = other
	c.mu.Unlock()
	other.mu.Lock()
	other.remote = c
	other.mu.Unlock()
}

func (c *Channel) open() {
	c.mu.Lock()
	if c.state != webrtc.DataChannelStateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = webrtc.DataChannelStateOpen
	fn := c.onOpen
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *Channel) Label() string { return c.label }

func (c *Channel) ReadyState() webrtc.DataChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnOpen runs fn immediately when the channel is already open, like pion.
func (c *Channel) OnOpen(fn func()) {
	c.mu.Lock()
	c.onOpen = fn
	open := c.state == webrtc.DataChannelStateOpen
	c.mu.Unlock()
	if open && fn != nil {
		fn()
	}
}

func (c *Channel) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

func (c *Channel) OnMessage(fn func(webrtc.DataChannelMessage)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

func (c *Channel) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

func (c *Channel) Send(data []byte) error {
	return c.deliver(webrtc.DataChannelMessage{Data: append([]byte(nil), data...)})
}

func (c *Channel) SendText(s string) error {
	return c.deliver(webrtc.DataChannelMessage{IsString: true, Data: []byte(s)})
}

func (c *Channel) deliver(msg webrtc.DataChannelMessage) error {
	c.mu.Lock()
	if c.state != webrtc.DataChannelStateOpen || c.remote == nil {
		c.mu.Unlock()
		return ErrChannelNotOpen
	}
	remote := c.remote
	c.mu.Unlock()

	remote.mu.Lock()
	fn := remote.onMessage
	remote.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
	return nil
}

// Close closes both ends.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.state == webrtc.DataChannelStateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = webrtc.DataChannelStateClosed
	fn := c.onClose
	remote := c.remote
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
	if remote != nil {
		remote.Close()
	}
	return nil
}
