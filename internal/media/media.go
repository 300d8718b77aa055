// Package media holds the local media stream a peer may attach to its
// connection.
package media

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// ErrTrackStopped is returned when writing to a stopped track.
var ErrTrackStopped = errors.New("track stopped")

// Track is a local outbound track. Stop is idempotent.
type Track struct {
	local   webrtc.TrackLocal
	stopped atomic.Bool
}

// NewTrack wraps an existing pion local track.
func NewTrack(local webrtc.TrackLocal) *Track {
	return &Track{local: local}
}

// NewVideoTrack creates a VP8 sample track.
func NewVideoTrack(id, streamID string) (*Track, error) {
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, id, streamID)
	if err != nil {
		return nil, err
	}
	return NewTrack(local), nil
}

// NewAudioTrack creates an Opus sample track.
func NewAudioTrack(id, streamID string) (*Track, error) {
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}, id, streamID)
	if err != nil {
		return nil, err
	}
	return NewTrack(local), nil
}

func (t *Track) Local() webrtc.TrackLocal  { return t.local }
func (t *Track) ID() string                { return t.local.ID() }
func (t *Track) Kind() webrtc.RTPCodecType { return t.local.Kind() }

// Stop ends the track. Stopping an already stopped track does nothing.
func (t *Track) Stop() {
	t.stopped.Store(true)
}

func (t *Track) Stopped() bool {
	return t.stopped.Load()
}

// WriteSample pushes one media sample to every connection the track is
// attached to. Only sample tracks support it.
func (t *Track) WriteSample(s pionmedia.Sample) error {
	if t.Stopped() {
		return ErrTrackStopped
	}
	w, ok := t.local.(interface {
		WriteSample(pionmedia.Sample) error
	})
	if !ok {
		return errors.New("track does not accept samples")
	}
	return w.WriteSample(s)
}

// Stream groups the local tracks sharing one stream ID.
type Stream struct {
	id string

	mu     sync.Mutex
	tracks []*Track
}

// NewStream returns a stream holding tracks.
func NewStream(id string, tracks ...*Track) *Stream {
	return &Stream{id: id, tracks: tracks}
}

func (s *Stream) ID() string { return s.id }

// Tracks returns the tracks that are not stopped.
func (s *Stream) Tracks() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := make([]*Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		if !t.Stopped() {
			live = append(live, t)
		}
	}
	return live
}

// AllTracks returns every track, stopped ones included.
func (s *Stream) AllTracks() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Track(nil), s.tracks...)
}

func (s *Stream) AddTrack(t *Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, t)
}

// RemoveTrack drops t from the stream without stopping it.
func (s *Stream) RemoveTrack(t *Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.tracks {
		if cur == t {
			s.tracks = append(s.tracks[:i:i], s.tracks[i+1:]...)
			return
		}
	}
}

// Stop stops every track of the stream.
func (s *Stream) Stop() {
	for _, t := range s.AllTracks() {
		t.Stop()
	}
}
