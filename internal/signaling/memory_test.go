package signaling

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/peerlink/internal/config"
)

func TestMemoryBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewMemoryBus()

	var got []string
	bus.SubscribeDescriptions(func(s Tagged[Description]) { got = append(got, "a:"+string(s.Source)) })
	bus.SubscribeDescriptions(func(s Tagged[Description]) { got = append(got, "b:"+string(s.Source)) })

	offer := Tagged[Description]{
		Value:  Description{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
		Source: config.RoleHost,
	}
	if err := bus.PublishDescription(offer); err != nil {
		t.Fatalf("PublishDescription: %v", err)
	}

	if len(got) != 2 || got[0] != "a:host" || got[1] != "b:host" {
		t.Errorf("deliveries = %v, want [a:host b:host]", got)
	}
}

func TestMemoryBusTopicsAreSeparate(t *testing.T) {
	bus := NewMemoryBus()

	var descriptions, candidates int
	bus.SubscribeDescriptions(func(Tagged[Description]) { descriptions++ })
	bus.SubscribeCandidates(func(Tagged[Candidate]) { candidates++ })

	_ = bus.PublishCandidate(Tagged[Candidate]{Value: Candidate{Candidate: "candidate:1"}, Source: config.RoleGuest})
	_ = bus.PublishCandidate(Tagged[Candidate]{Value: Candidate{Candidate: "candidate:2"}, Source: config.RoleGuest})

	if descriptions != 0 || candidates != 2 {
		t.Errorf("descriptions=%d candidates=%d, want 0 and 2", descriptions, candidates)
	}
}

func TestMemoryBusNoReplay(t *testing.T) {
	bus := NewMemoryBus()
	_ = bus.PublishDescription(Tagged[Description]{Value: Description{Type: webrtc.SDPTypeOffer}, Source: config.RoleHost})

	called := false
	bus.SubscribeDescriptions(func(Tagged[Description]) { called = true })
	if called {
		t.Error("late subscriber received an earlier signal")
	}
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	bus := NewMemoryBus()

	count := 0
	unsubscribe := bus.SubscribeCandidates(func(Tagged[Candidate]) { count++ })
	_ = bus.PublishCandidate(Tagged[Candidate]{Source: config.RoleHost})
	unsubscribe()
	_ = bus.PublishCandidate(Tagged[Candidate]{Source: config.RoleHost})

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestMemoryBusRejects(t *testing.T) {
	bus := NewMemoryBus()

	if err := bus.PublishCandidate(Tagged[Candidate]{}); !errors.Is(err, ErrMissingSource) {
		t.Errorf("untagged publish error = %v, want ErrMissingSource", err)
	}

	_ = bus.Close()
	err := bus.PublishDescription(Tagged[Description]{Source: config.RoleHost})
	if !errors.Is(err, ErrBusClosed) {
		t.Errorf("publish after Close error = %v, want ErrBusClosed", err)
	}
}
