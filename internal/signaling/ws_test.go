package signaling

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/peerlink/internal/config"
)

func startRelay(t *testing.T, pin string) (*Relay, string) {
	t.Helper()
	relay := NewRelay(pin)
	srv := httptest.NewServer(relay.Handler())
	t.Cleanup(func() {
		relay.Close()
		srv.Close()
	})
	return relay, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?pin=" + pin
}

func waitClients(t *testing.T, relay *Relay, n int) {
	t.Helper()
	for deadline := time.Now().Add(3 * time.Second); relay.Clients() < n; {
		if time.Now().After(deadline) {
			t.Fatalf("relay has %d clients, want %d", relay.Clients(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func dial(t *testing.T, url string) *WSBus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	bus, err := DialWS(ctx, url)
	if err != nil {
		t.Fatalf("DialWS: %v", err)
	}
	t.Cleanup(func() { bus.Close() })
	return bus
}

func TestRelayBroadcastsToBothPeers(t *testing.T) {
	relay, url := startRelay(t, "1234")
	host := dial(t, url)
	guest := dial(t, url)
	waitClients(t, relay, 2)

	hostGot := make(chan Tagged[Description], 1)
	guestGot := make(chan Tagged[Description], 1)
	host.SubscribeDescriptions(func(s Tagged[Description]) { hostGot <- s })
	guest.SubscribeDescriptions(func(s Tagged[Description]) { guestGot <- s })

	offer := Tagged[Description]{
		Value:  Description{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"},
		Source: config.RoleHost,
	}
	if err := host.PublishDescription(offer); err != nil {
		t.Fatalf("PublishDescription: %v", err)
	}

	for name, ch := range map[string]chan Tagged[Description]{"guest": guestGot, "host (echo)": hostGot} {
		select {
		case got := <-ch:
			if got.Source != config.RoleHost || got.Value.Type != webrtc.SDPTypeOffer || got.Value.SDP != "v=0\r\n" {
				t.Errorf("%s received %+v", name, got)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("%s did not receive the offer", name)
		}
	}
}

func TestRelayCarriesCandidates(t *testing.T) {
	relay, url := startRelay(t, "")
	host := dial(t, url)
	guest := dial(t, url)
	waitClients(t, relay, 2)

	got := make(chan Tagged[Candidate], 1)
	host.SubscribeCandidates(func(s Tagged[Candidate]) {
		if s.Source == config.RoleGuest {
			got <- s
		}
	})

	mid := "0"
	err := guest.PublishCandidate(Tagged[Candidate]{
		Value:  Candidate{Candidate: "candidate:1 1 udp 1 127.0.0.1 5000 typ host", SDPMid: &mid},
		Source: config.RoleGuest,
	})
	if err != nil {
		t.Fatalf("PublishCandidate: %v", err)
	}

	select {
	case c := <-got:
		if c.Value.SDPMid == nil || *c.Value.SDPMid != "0" {
			t.Errorf("SDPMid lost in transit: %+v", c.Value)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("host did not receive the candidate")
	}
}

func TestRelayRejectsWrongPIN(t *testing.T) {
	_, url := startRelay(t, "1234")
	bad := strings.Replace(url, "pin=1234", "pin=0000", 1)

	_, err := DialWS(context.Background(), bad)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("DialWS with wrong PIN error = %v, want ErrUnauthorized", err)
	}
}

func TestRelayRejectsThirdClient(t *testing.T) {
	relay, url := startRelay(t, "42")
	dial(t, url)
	dial(t, url)
	waitClients(t, relay, 2)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.ClosePolicyViolation {
		t.Fatalf("third client read error = %v, want policy violation close", err)
	}
}

func TestWSBusPublishAfterClose(t *testing.T) {
	_, url := startRelay(t, "")
	bus := dial(t, url)
	bus.Close()

	select {
	case <-bus.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("Done not closed after Close")
	}
	err := bus.PublishCandidate(Tagged[Candidate]{Source: config.RoleHost})
	if !errors.Is(err, ErrBusClosed) {
		t.Errorf("publish after Close error = %v, want ErrBusClosed", err)
	}
}

func TestGeneratePIN(t *testing.T) {
	pin := GeneratePIN(6)
	if len(pin) != 6 {
		t.Fatalf("len = %d, want 6", len(pin))
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			t.Fatalf("non-digit %q in PIN %q", r, pin)
		}
	}
}
