package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/donovanhide/eventsource"

	"github.com/1ureka/peerlink/internal/util"
)

const sseChannel = "signal"

// sseEvent adapts a signaling Message to eventsource.Event.
type sseEvent struct {
	id   string
	kind MessageType
	data []byte
}

func (e sseEvent) Id() string    { return e.id }
func (e sseEvent) Event() string { return string(e.kind) }
func (e sseEvent) Data() string  { return string(e.data) }

// SSERelay is the HTTP alternative to Relay. Clients POST messages to
// /publish and receive every message on the /events stream.
type SSERelay struct {
	pin    string
	srv    *eventsource.Server
	nextID atomic.Uint64
}

// NewSSERelay creates an SSE relay guarded by pin (empty disables the check).
func NewSSERelay(pin string) *SSERelay {
	return &SSERelay{pin: pin, srv: eventsource.NewServer()}
}

// Handler serves /events and /publish.
func (r *SSERelay) Handler() http.Handler {
	events := r.srv.Handler(sseChannel)
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, req *http.Request) {
		if !r.authorized(req) {
			http.Error(w, "Invalid PIN", http.StatusUnauthorized)
			return
		}
		events(w, req)
	})
	mux.HandleFunc("/publish", r.handlePublish)
	return mux
}

func (r *SSERelay) authorized(req *http.Request) bool {
	return r.pin == "" || req.URL.Query().Get("pin") == r.pin
}

func (r *SSERelay) handlePublish(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !r.authorized(req) {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	var msg Message
	if err := json.NewDecoder(req.Body).Decode(&msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := msg.validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	id := strconv.FormatUint(r.nextID.Add(1), 10)
	r.srv.Publish([]string{sseChannel}, sseEvent{id: id, kind: msg.Type, data: data})
	w.WriteHeader(http.StatusNoContent)
}

// Close disconnects every subscriber.
func (r *SSERelay) Close() error {
	r.srv.Close()
	return nil
}

var _ Bus = (*SSEBus)(nil)

// SSEBus publishes with HTTP POST and subscribes to the relay's event stream.
type SSEBus struct {
	topics

	base   *url.URL
	client *http.Client
	stream *eventsource.Stream
	cancel context.CancelFunc

	done      chan struct{}
	released  chan struct{}
	closeOnce sync.Once
}

// DialSSE subscribes to the relay at base, e.g. http://host:port/?pin=1234.
// The PIN query is forwarded on every request. The stream reconnects on its
// own after transient errors.
func DialSSE(base string) (*SSEBus, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid SSE relay URL: %w", err)
	}

	b := &SSEBus{
		base:     u,
		client:   &http.Client{Timeout: 10 * time.Second},
		done:     make(chan struct{}),
		released: make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint("/events"), http.NoBody)
	if err != nil {
		cancel()
		return nil, err
	}
	stream, err := eventsource.SubscribeWithRequest("", req)
	if err != nil {
		cancel()
		var subErr eventsource.SubscriptionError
		if errors.As(err, &subErr) && subErr.Code == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to subscribe to SSE relay: %w", err)
	}
	b.stream = stream
	b.cancel = cancel

	go b.readLoop()
	return b, nil
}

func (b *SSEBus) endpoint(path string) string {
	u := *b.base
	u.Path = path
	return u.String()
}

// readLoop is the only reader of the stream channels. The stream's own
// goroutine may still be sending when Close is called, so the channels are
// drained until the canceled request surfaces as an error, and only then is
// the stream closed.
func (b *SSEBus) readLoop() {
	defer close(b.released)
	for {
		select {
		case ev, ok := <-b.stream.Events:
			if !ok {
				return
			}
			if b.closing() {
				continue
			}
			var msg Message
			if err := json.Unmarshal([]byte(ev.Data()), &msg); err != nil {
				util.LogDebug("Ignoring malformed SSE event: %v", err)
				continue
			}
			if err := b.dispatch(msg); err != nil {
				util.LogDebug("Ignoring relay message: %v", err)
			}
		case err, ok := <-b.stream.Errors:
			if !ok {
				return
			}
			if b.closing() {
				b.stream.Close()
				return
			}
			util.LogDebug("SSE stream error: %v", err)
		}
	}
}

func (b *SSEBus) closing() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

func (b *SSEBus) PublishDescription(sig Tagged[Description]) error {
	return b.post(descriptionMessage(sig))
}

func (b *SSEBus) PublishCandidate(sig Tagged[Candidate]) error {
	return b.post(candidateMessage(sig))
}

func (b *SSEBus) post(msg Message) error {
	if msg.Source == "" {
		return ErrMissingSource
	}
	if b.closing() {
		return ErrBusClosed
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	resp, err := b.client.Post(b.endpoint("/publish"), "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode >= 300:
		return fmt.Errorf("relay rejected %s: %s", msg.Type, resp.Status)
	}
	return nil
}

// Close ends the event stream subscription. The stream is released in the
// background; Done reports when that has happened.
func (b *SSEBus) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
		b.cancel()
	})
	return nil
}

// Done is closed once the event stream has been released.
func (b *SSEBus) Done() <-chan struct{} {
	return b.released
}
