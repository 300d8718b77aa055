package peer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/peerlink/internal/transport"
	"github.com/1ureka/peerlink/internal/util"
)

// Message is one inbound data channel message.
type Message struct {
	Channel  string
	Data     []byte
	IsString bool
}

// Text returns the payload as a string.
func (m Message) Text() string { return string(m.Data) }

// ChannelDescriptor declares a logical channel and its sinks. Options are
// handed to the transport untouched; nil means transport defaults.
type ChannelDescriptor struct {
	Name      string
	OnMessage func(Message)
	OnOpen    func()
	Options   *webrtc.DataChannelInit
}

type channelState int

const (
	channelConnecting channelState = iota
	channelOpen
	channelClosed
)

func (s channelState) String() string {
	switch s {
	case channelConnecting:
		return "connecting"
	case channelOpen:
		return "open"
	}
	return "closed"
}

type channelEntry struct {
	name  string
	ch    transport.Channel
	state channelState
}

// multiplexer routes runtime channels to their descriptors by label and
// tracks which names have opened at least once.
type multiplexer struct {
	log util.Logger
	// dispatch runs sink callbacks; the controller points it at its loop.
	dispatch func(func()) bool

	mu          sync.Mutex
	names       []string
	descriptors map[string]ChannelDescriptor
	entries     map[string]*channelEntry
	opened      map[string]bool
	allOpen     chan struct{}
	releaseOnce sync.Once
}

func newMultiplexer(log util.Logger, descs []ChannelDescriptor, dispatch func(func()) bool) (*multiplexer, error) {
	m := &multiplexer{
		log:         log,
		dispatch:    dispatch,
		descriptors: make(map[string]ChannelDescriptor, len(descs)),
		entries:     make(map[string]*channelEntry, len(descs)),
		opened:      make(map[string]bool, len(descs)),
		allOpen:     make(chan struct{}),
	}
	for _, d := range descs {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: empty channel name", ErrUnknownChannel)
		}
		if _, ok := m.descriptors[d.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateChannel, d.Name)
		}
		m.descriptors[d.Name] = d
		m.names = append(m.names, d.Name)
	}
	if len(descs) == 0 {
		m.releaseBarrier()
	}
	return m, nil
}

// descriptorList returns the descriptors in registration order.
func (m *multiplexer) descriptorList() []ChannelDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ChannelDescriptor, len(m.names))
	for i, name := range m.names {
		out[i] = m.descriptors[name]
	}
	return out
}

// attach binds a runtime channel to the descriptor with the same label. The
// first channel per name wins; later ones are reported and left alone.
func (m *multiplexer) attach(ch transport.Channel) error {
	name := ch.Label()

	m.mu.Lock()
	desc, ok := m.descriptors[name]
	if !ok {
		m.mu.Unlock()
		err := fmt.Errorf("%w: %q", ErrUnknownChannel, name)
		m.log.Error("%v", err)
		return err
	}
	if _, dup := m.entries[name]; dup {
		m.mu.Unlock()
		err := fmt.Errorf("%w: %q, keeping the first one", ErrDuplicateChannel, name)
		m.log.Error("%v", err)
		return err
	}
	entry := &channelEntry{name: name, ch: ch, state: channelConnecting}
	m.entries[name] = entry
	m.mu.Unlock()

	ch.OnOpen(func() {
		first, all := m.markOpen(entry)
		if !first {
			return
		}
		m.log.Info("data channel %q open", name)
		if desc.OnOpen != nil {
			m.dispatch(desc.OnOpen)
		}
		// Released behind the sink so Connect returns after every OnOpen ran.
		if all && !m.dispatch(m.releaseBarrier) {
			m.releaseBarrier()
		}
	})
	ch.OnClose(func() {
		m.setState(entry, channelClosed)
		m.log.Info("data channel %q closed", name)
	})
	ch.OnError(func(err error) {
		m.log.Warn("data channel %q error: %v", name, err)
	})
	ch.OnMessage(func(msg webrtc.DataChannelMessage) {
		util.Stats.AddRecv(len(msg.Data))
		if desc.OnMessage == nil {
			return
		}
		in := Message{Channel: name, Data: msg.Data, IsString: msg.IsString}
		m.dispatch(func() { desc.OnMessage(in) })
	})
	return nil
}

// markOpen records the first transition to open of entry. first is false
// when entry was already open or has been dropped; all is true for the open
// that completes the set of registered names.
func (m *multiplexer) markOpen(entry *channelEntry) (first, all bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[entry.name] != entry || entry.state != channelConnecting {
		return false, false
	}
	entry.state = channelOpen
	util.Stats.AddOpen()

	if !m.opened[entry.name] {
		m.opened[entry.name] = true
		all = len(m.opened) == len(m.descriptors)
	}
	return true, all
}

func (m *multiplexer) releaseBarrier() {
	m.releaseOnce.Do(func() { close(m.allOpen) })
}

func (m *multiplexer) setState(entry *channelEntry, s channelState) {
	m.mu.Lock()
	entry.state = s
	m.mu.Unlock()
}

// pending lists registered names that never opened, in registration order.
func (m *multiplexer) pending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, name := range m.names {
		if !m.opened[name] {
			out = append(out, name)
		}
	}
	return out
}

// waitOpen blocks until every registered channel opened at least once. A
// positive timeout bounds the wait; the caller's ctx cancels it.
func (m *multiplexer) waitOpen(ctx context.Context, timeout time.Duration) error {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case <-m.allOpen:
		return nil
	case <-waitCtx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return &ChannelTimeoutError{Pending: m.pending(), Timeout: timeout}
	}
}

// send writes payload to the open channel name.
func (m *multiplexer) send(name string, payload []byte, text bool) error {
	m.mu.Lock()
	entry, ok := m.entries[name]
	open := ok && entry.state == channelOpen
	m.mu.Unlock()

	if !open {
		return fmt.Errorf("%w: %q is not open", ErrUnknownChannel, name)
	}

	var err error
	if text {
		err = entry.ch.SendText(string(payload))
	} else {
		err = entry.ch.Send(payload)
	}
	if err != nil {
		return fmt.Errorf("failed to send on %q: %w", name, err)
	}
	util.Stats.AddSent(len(payload))
	return nil
}

// close closes and drops every runtime channel.
func (m *multiplexer) close() {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*channelEntry)
	m.mu.Unlock()

	for _, e := range entries {
		if err := e.ch.Close(); err != nil {
			m.log.Debug("closing data channel %q: %v", e.name, err)
		}
	}
}
