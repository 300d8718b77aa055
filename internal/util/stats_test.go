package util

import "testing"

func TestFormatBytes(t *testing.T) {
	testCases := []struct {
		in   float64
		want string
	}{
		{in: 0, want: " 0.0   B"},
		{in: 99, want: "99.0   B"},
		{in: 1536, want: " 1.5 KiB"},
		{in: 100 * 1024, want: " 0.1 MiB"},
	}

	for _, tc := range testCases {
		if got := formatBytes(tc.in); got != tc.want {
			t.Errorf("formatBytes(%v) = %q, want %q", tc.in, got, tc.want)
		}
		if len(formatBytes(tc.in)) != 8 {
			t.Errorf("formatBytes(%v) is not 8 chars wide", tc.in)
		}
	}
}

func TestStatsCounters(t *testing.T) {
	before := Stats.Snapshot()

	Stats.AddOpen()
	Stats.AddSent(5)
	Stats.AddRecv(7)
	Stats.AddRecv(1)

	after := Stats.Snapshot()
	if d := after.ChannelsOpened - before.ChannelsOpened; d != 1 {
		t.Errorf("ChannelsOpened delta = %d, want 1", d)
	}
	if d := after.MessagesSent - before.MessagesSent; d != 1 {
		t.Errorf("MessagesSent delta = %d, want 1", d)
	}
	if d := after.BytesSent - before.BytesSent; d != 5 {
		t.Errorf("BytesSent delta = %d, want 5", d)
	}
	if d := after.MessagesRecv - before.MessagesRecv; d != 2 {
		t.Errorf("MessagesRecv delta = %d, want 2", d)
	}
	if d := after.BytesRecv - before.BytesRecv; d != 8 {
		t.Errorf("BytesRecv delta = %d, want 8", d)
	}
}

func TestSetLogLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "silent"} {
		if err := SetLogLevel(level); err != nil {
			t.Errorf("SetLogLevel(%q): %v", level, err)
		}
	}
	if err := SetLogLevel("loud"); err == nil {
		t.Error("SetLogLevel accepted an unknown level")
	}
	_ = SetLogLevel("info")
}
