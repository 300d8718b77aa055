// Package event provides an in-process ordered multicast primitive.
//
// An Emitter delivers every emitted value to all current subscribers,
// synchronously, in subscription order. Late subscribers do not see past
// values. A panicking subscriber is isolated: the panic is reported to
// FallbackHandler and delivery continues with the next subscriber.
package event

import (
	"fmt"
	"sync"

	"github.com/1ureka/peerlink/internal/util"
)

// FallbackHandler receives panics recovered from subscribers. It defaults to
// logging the panic as an error.
var FallbackHandler = func(value any, recovered any) {
	util.LogError("event subscriber panicked on %v: %v", value, recovered)
}

type subscription[T any] struct {
	id uint64
	fn func(T)
}

// Emitter is an ordered multicast topic. The zero value is ready to use.
type Emitter[T any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscription[T]
}

// New returns an empty emitter.
func New[T any]() *Emitter[T] {
	return &Emitter[T]{}
}

// Subscribe appends fn to the subscriber list and returns a function that
// removes it. The returned function is safe to call more than once.
func (e *Emitter[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.subs = append(e.subs, subscription[T]{id: id, fn: fn})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(id) })
	}
}

func (e *Emitter[T]) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.subs {
		if s.id == id {
			// Copy so an Emit already iterating its snapshot is unaffected.
			subs := make([]subscription[T], 0, len(e.subs)-1)
			subs = append(subs, e.subs[:i]...)
			e.subs = append(subs, e.subs[i+1:]...)
			return
		}
	}
}

// Emit delivers v to every subscriber registered at the time of the call.
// Subscribers may subscribe, unsubscribe or emit from inside the callback.
func (e *Emitter[T]) Emit(v T) {
	e.mu.Lock()
	subs := e.subs
	e.mu.Unlock()

	for _, s := range subs {
		deliver(s.fn, v)
	}
}

// Len reports the number of current subscribers.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

func deliver[T any](fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			FallbackHandler(fmt.Sprint(v), r)
		}
	}()
	fn(v)
}
