package signaling

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/1ureka/peerlink/internal/util"
)

var _ Bus = (*WSBus)(nil)

// WSBus is a Bus backed by a WebSocket connection to a Relay. Published
// signals come back through the relay's broadcast, so local subscribers see
// them the same way they would on a MemoryBus.
type WSBus struct {
	topics

	conn *websocket.Conn
	mu   sync.Mutex // gorilla/websocket supports one concurrent writer

	done      chan struct{}
	closeOnce sync.Once
}

// DialWS connects to a relay URL such as ws://host:port/ws?pin=1234 and
// starts the read loop.
func DialWS(ctx context.Context, url string) (*WSBus, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to connect to WS relay: %w", err)
	}

	b := &WSBus{conn: conn, done: make(chan struct{})}
	go b.readLoop()
	return b, nil
}

func (b *WSBus) PublishDescription(sig Tagged[Description]) error {
	return b.write(descriptionMessage(sig))
}

func (b *WSBus) PublishCandidate(sig Tagged[Candidate]) error {
	return b.write(candidateMessage(sig))
}

func (b *WSBus) write(msg Message) error {
	if msg.Source == "" {
		return ErrMissingSource
	}
	select {
	case <-b.done:
		return ErrBusClosed
	default:
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}
	return nil
}

func (b *WSBus) readLoop() {
	defer b.shutdown()
	for {
		var msg Message
		if err := b.conn.ReadJSON(&msg); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.ClosePolicyViolation {
				util.LogWarning("Relay refused the connection: %s", closeErr.Text)
			}
			return
		}
		if err := b.dispatch(msg); err != nil {
			util.LogDebug("Ignoring relay message: %v", err)
		}
	}
}

// Done is closed once the connection to the relay is gone.
func (b *WSBus) Done() <-chan struct{} {
	return b.done
}

func (b *WSBus) shutdown() {
	b.closeOnce.Do(func() {
		close(b.done)
		b.conn.Close()
	})
}

// Close sends a normal close frame and tears the connection down.
func (b *WSBus) Close() error {
	b.mu.Lock()
	_ = b.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	b.mu.Unlock()
	b.shutdown()
	return nil
}
