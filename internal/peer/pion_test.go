package peer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/peerlink/internal/signaling"
	"github.com/1ureka/peerlink/internal/transport"
)

// TestPionLoopback runs the full Host/Guest exchange over two real pion
// transports in one process.
func TestPionLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping real WebRTC session in -short mode")
	}

	hostT, err := transport.NewPeerTransport(webrtc.Configuration{}, transport.WithLoopback())
	if err != nil {
		t.Fatal(err)
	}
	guestT, err := transport.NewPeerTransport(webrtc.Configuration{}, transport.WithLoopback())
	if err != nil {
		t.Fatal(err)
	}

	bus := signaling.NewMemoryBus()
	hostLife, guestLife := NewLifecycle(), NewLifecycle()
	hostIn, guestIn := newInbox(), newInbox()

	host, err := NewHost(Options{
		Transport:      hostT,
		Signaling:      bus,
		Lifecycle:      hostLife,
		Channels:       hostIn.descriptors("message", "meta"),
		ChannelTimeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer host.Close()

	guest, err := NewGuest(Options{
		Transport:      guestT,
		Signaling:      bus,
		Lifecycle:      guestLife,
		Channels:       guestIn.descriptors("message", "meta"),
		ChannelTimeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer guest.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	errs := make(chan error, 2)
	go func() { errs <- host.Connect(ctx) }()
	go func() { errs <- guest.Connect(ctx) }()
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Connect: %v", err)
		}
	}

	if err := guest.SendText("message", "hello"); err != nil {
		t.Fatal(err)
	}
	if m := hostIn.next(t); m.Channel != "message" || m.Text() != "hello" {
		t.Errorf("host received %q on %q", m.Text(), m.Channel)
	}

	if err := host.SendText("meta", "typing"); err != nil {
		t.Fatal(err)
	}
	if m := guestIn.next(t); m.Channel != "meta" || m.Text() != "typing" {
		t.Errorf("guest received %q on %q", m.Text(), m.Channel)
	}

	// pion reports closed on its own goroutine; the closing peer still fires
	// Closed exactly once.
	var hostClosed atomic.Int32
	hostLife.Closed.Subscribe(func(struct{}) { hostClosed.Add(1) })
	if err := host.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	waitDone(t, host.Done())
	time.Sleep(200 * time.Millisecond)
	if got := hostClosed.Load(); got != 1 {
		t.Errorf("host Closed fired %d times, want 1", got)
	}
}
