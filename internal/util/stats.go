package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide data channel traffic counter.
var Stats = &stats{}

type stats struct {
	ChannelsOpened atomic.Int64 // cumulative count of data channels that reached "open"
	MessagesSent   atomic.Int64 // cumulative messages written to data channels
	MessagesRecv   atomic.Int64 // cumulative messages read from data channels
	BytesSent      atomic.Int64 // cumulative payload bytes written to data channels
	BytesRecv      atomic.Int64 // cumulative payload bytes read from data channels
}

func (s *stats) AddOpen() { s.ChannelsOpened.Add(1) }

func (s *stats) AddSent(n int) {
	s.MessagesSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *stats) AddRecv(n int) {
	s.MessagesRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	ChannelsOpened, MessagesSent, MessagesRecv, BytesSent, BytesRecv int64
}

// Snapshot reads every counter once.
func (s *stats) Snapshot() Snapshot {
	return Snapshot{
		ChannelsOpened: s.ChannelsOpened.Load(),
		MessagesSent:   s.MessagesSent.Load(),
		MessagesRecv:   s.MessagesRecv.Load(),
		BytesSent:      s.BytesSent.Load(),
		BytesRecv:      s.BytesRecv.Load(),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs channel traffic
// every interval. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		prev := Stats.Snapshot()
		for {
			select {
			case <-ticker.C:
				cur := Stats.Snapshot()
				secs := interval.Seconds()

				outS := float64(cur.BytesSent-prev.BytesSent) / secs
				inS := float64(cur.BytesRecv-prev.BytesRecv) / secs
				outM := cur.MessagesSent - prev.MessagesSent
				inM := cur.MessagesRecv - prev.MessagesRecv

				if outM > 0 || inM > 0 {
					pterm.DefaultLogger.Info(formatStats(inS, outS, inM, outM))
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS float64, inM, outM int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Msg: %3d↓ %3d↑",
		formatBytes(inS),
		formatBytes(outS),
		inM,
		outM,
	)
}
