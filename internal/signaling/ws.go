package signaling

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/1ureka/peerlink/internal/util"
)

// MaxRelayClients is the number of peers a relay admits: one Host, one Guest.
const MaxRelayClients = 2

const relaySendBuffer = 64

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

var relayLog = util.NewLogger("Relay")

// Relay is the WebSocket signaling server. Every valid message received from
// a client is broadcast to all connected clients, the sender included.
type Relay struct {
	pin      string
	listener net.Listener
	srv      *http.Server

	mu      sync.Mutex
	clients map[*relayClient]struct{}
	closed  bool
}

type relayClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewRelay creates a relay that requires the given PIN from clients. An empty
// PIN disables the check.
func NewRelay(pin string) *Relay {
	return &Relay{
		pin:     pin,
		clients: make(map[*relayClient]struct{}),
	}
}

// Handler returns the relay's HTTP handler, serving the WebSocket on /ws.
func (r *Relay) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", r.handleWS)
	return mux
}

// Start listens on addr (":0" picks a random port) and serves in the
// background. Returns the assigned port number.
func (r *Relay) Start(addr string) (int, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to start WS relay: %w", err)
	}
	r.listener = listener
	r.srv = &http.Server{Handler: r.Handler()}
	port := listener.Addr().(*net.TCPAddr).Port

	go func() {
		if err := r.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			relayLog.Error("serve: %v", err)
		}
	}()

	return port, nil
}

// Clients returns the number of connected clients.
func (r *Relay) Clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *Relay) handleWS(w http.ResponseWriter, req *http.Request) {
	if r.pin != "" && req.URL.Query().Get("pin") != r.pin {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}

	c := &relayClient{conn: conn, send: make(chan []byte, relaySendBuffer)}
	if !r.register(c) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session full"))
		conn.Close()
		return
	}
	relayLog.Info("client connected from %s", req.RemoteAddr)

	go c.writeLoop()
	r.readLoop(c)
}

func (r *Relay) register(c *relayClient) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || len(r.clients) >= MaxRelayClients {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

func (r *Relay) unregister(c *relayClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c]; ok {
		delete(r.clients, c)
		close(c.send)
	}
}

// readLoop validates each incoming message and broadcasts it until the
// client goes away.
func (r *Relay) readLoop(c *relayClient) {
	defer func() {
		r.unregister(c)
		c.conn.Close()
		relayLog.Info("client disconnected")
	}()

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		if err := msg.validate(); err != nil {
			relayLog.Warn("dropping invalid message: %v", err)
			continue
		}
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		r.broadcast(data)
	}
}

func (r *Relay) broadcast(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.clients {
		select {
		case c.send <- data:
		default:
			relayLog.Warn("client send buffer full, dropping message")
		}
	}
}

func (c *relayClient) writeLoop() {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// Close stops accepting clients and disconnects the current ones.
func (r *Relay) Close() error {
	r.mu.Lock()
	r.closed = true
	conns := make([]*websocket.Conn, 0, len(r.clients))
	for c := range r.clients {
		conns = append(conns, c.conn)
	}
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
	if r.srv != nil {
		return r.srv.Close()
	}
	return nil
}

// GeneratePIN returns a random numeric PIN of the specified length.
func GeneratePIN(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits)
}
