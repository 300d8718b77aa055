package signaling

import (
	"sync/atomic"

	"github.com/1ureka/peerlink/internal/config"
)

// Compile-time interface check.
var _ Bus = (*MemoryBus)(nil)

// MemoryBus is an in-process Bus. Two peers sharing one MemoryBus signal each
// other without any network; Publish returns after every subscriber ran.
type MemoryBus struct {
	topics
	closed atomic.Bool
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

func (b *MemoryBus) PublishDescription(sig Tagged[Description]) error {
	if err := b.check(sig.Source); err != nil {
		return err
	}
	b.descriptions.Emit(sig)
	return nil
}

func (b *MemoryBus) PublishCandidate(sig Tagged[Candidate]) error {
	if err := b.check(sig.Source); err != nil {
		return err
	}
	b.candidates.Emit(sig)
	return nil
}

func (b *MemoryBus) check(source config.Role) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if source == "" {
		return ErrMissingSource
	}
	return nil
}

// Close stops further publishing. Subscriptions stay registered but no longer
// receive anything.
func (b *MemoryBus) Close() error {
	b.closed.Store(true)
	return nil
}
