package peer

import (
	"testing"
	"time"

	"github.com/1ureka/peerlink/internal/util"
)

func waitDone(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestLoopRunsInOrder(t *testing.T) {
	l := newLoop(util.NewLogger("test"))

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.post(func() { got = append(got, i) })
	}
	done := make(chan struct{})
	l.post(func() { close(done) })

	l.start()
	waitDone(t, done)

	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d] = %d, handlers ran out of order", i, v)
		}
	}
	if len(got) != 100 {
		t.Fatalf("ran %d handlers, want 100", len(got))
	}
}

func TestLoopPostFromHandler(t *testing.T) {
	l := newLoop(util.NewLogger("test"))
	l.start()

	done := make(chan struct{})
	l.post(func() {
		l.post(func() { close(done) })
	})
	waitDone(t, done)
}

func TestLoopSurvivesPanic(t *testing.T) {
	l := newLoop(util.NewLogger("test"))
	l.start()

	l.post(func() { panic("boom") })
	done := make(chan struct{})
	l.post(func() { close(done) })
	waitDone(t, done)
}

func TestLoopStopDrains(t *testing.T) {
	l := newLoop(util.NewLogger("test"))

	ran := 0
	for i := 0; i < 10; i++ {
		l.post(func() { ran++ })
	}
	l.start()
	l.stop()
	waitDone(t, l.Done())

	if ran != 10 {
		t.Errorf("ran %d queued handlers, want 10", ran)
	}
	if l.post(func() {}) {
		t.Error("post after stop should report false")
	}
}

func TestLoopStopBeforeStart(t *testing.T) {
	l := newLoop(util.NewLogger("test"))
	l.post(func() { t.Error("handler ran on a loop that never started") })
	l.stop()
	waitDone(t, l.Done())

	l.start()
	time.Sleep(20 * time.Millisecond)
}
