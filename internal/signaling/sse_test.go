package signaling

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/peerlink/internal/config"
)

func startSSERelay(t *testing.T, pin string) string {
	t.Helper()
	relay := NewSSERelay(pin)
	srv := httptest.NewServer(relay.Handler())
	t.Cleanup(func() {
		srv.CloseClientConnections()
		relay.Close()
		srv.Close()
	})
	return srv.URL + "/?pin=" + pin
}

func TestSSEBusRoundTrip(t *testing.T) {
	base := startSSERelay(t, "9876")

	host, err := DialSSE(base)
	if err != nil {
		t.Fatalf("DialSSE host: %v", err)
	}
	defer host.Close()
	guest, err := DialSSE(base)
	if err != nil {
		t.Fatalf("DialSSE guest: %v", err)
	}
	defer guest.Close()

	got := make(chan Tagged[Description], 8)
	guest.SubscribeDescriptions(func(s Tagged[Description]) {
		if s.Source == config.RoleHost {
			got <- s
		}
	})

	offer := Tagged[Description]{
		Value:  Description{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\no=- 1 1 IN IP4 0.0.0.0\r\n"},
		Source: config.RoleHost,
	}

	// The relay registers subscribers asynchronously; retry until one lands.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		if err := host.PublishDescription(offer); err != nil {
			t.Fatalf("PublishDescription: %v", err)
		}
		select {
		case s := <-got:
			if s.Value.SDP != offer.Value.SDP {
				t.Errorf("SDP = %q, want %q", s.Value.SDP, offer.Value.SDP)
			}
			return
		case <-tick.C:
		case <-deadline:
			t.Fatal("guest never received the offer")
		}
	}
}

func TestSSERelayRejectsWrongPIN(t *testing.T) {
	base := startSSERelay(t, "9876")

	_, err := DialSSE(strings.Replace(base, "pin=9876", "pin=1", 1))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("DialSSE with wrong PIN error = %v, want ErrUnauthorized", err)
	}
}

func TestSSERelayRejectsInvalidMessage(t *testing.T) {
	base := startSSERelay(t, "")
	url := strings.Replace(base, "/?", "/publish?", 1)

	resp, err := http.Post(url, "application/json", strings.NewReader(`{"type":"candidate","source":"host"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSSEBusCloseWhileStreaming(t *testing.T) {
	base := startSSERelay(t, "9876")

	sender, err := DialSSE(base)
	if err != nil {
		t.Fatalf("DialSSE sender: %v", err)
	}
	defer sender.Close()
	receiver, err := DialSSE(base)
	if err != nil {
		t.Fatalf("DialSSE receiver: %v", err)
	}

	received := make(chan struct{}, 1)
	receiver.SubscribeCandidates(func(Tagged[Candidate]) {
		select {
		case received <- struct{}{}:
		default:
		}
	})

	stop := make(chan struct{})
	publishing := make(chan struct{})
	go func() {
		defer close(publishing)
		cand := Tagged[Candidate]{
			Value:  Candidate{Candidate: "candidate:1 1 udp 2130706431 127.0.0.1 9 typ host"},
			Source: config.RoleHost,
		}
		for {
			select {
			case <-stop:
				return
			default:
			}
			if err := sender.PublishCandidate(cand); err != nil {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		close(stop)
		t.Fatal("receiver never got a candidate")
	}

	// Close while events are still in flight.
	if err := receiver.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := receiver.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	select {
	case <-receiver.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stream was not released after Close")
	}

	time.Sleep(50 * time.Millisecond)
	close(stop)
	<-publishing

	err = receiver.PublishCandidate(Tagged[Candidate]{Value: Candidate{Candidate: "x"}, Source: config.RoleGuest})
	if !errors.Is(err, ErrBusClosed) {
		t.Errorf("PublishCandidate after Close error = %v, want ErrBusClosed", err)
	}
}
