// Package fanout implements the shared-receivers pattern from the
// design notes: a set of span receivers read far more often than it is
// mutated, so it is kept as an atomically-swapped immutable slice rather
// than behind a read/write lock. A Receiver is anything that can accept
// a decoded span and be closed when the daemon shuts down.
package fanout

import (
	"sync"
	"sync/atomic"

	"github.com/htrace/htraced/pkg/span"
)

// Receiver accepts spans delivered out-of-band from normal ingestion,
// e.g. a debug tap or a secondary sink registered at runtime.
type Receiver interface {
	Receive(s *span.Span)
	Close()
}

// Receivers holds a mutable set of Receiver values behind an atomic
// pointer swap, so Broadcast never blocks on Add/Remove and concurrent
// readers never see a partially updated slice.
type Receivers struct {
	mu  sync.Mutex // serializes Add/Remove; Broadcast never takes it
	ptr atomic.Pointer[[]Receiver]
}

// New returns an empty Receivers set.
func New() *Receivers {
	r := &Receivers{}
	empty := []Receiver{}
	r.ptr.Store(&empty)
	return r
}

// Add registers a receiver, copying the current slice so in-flight
// Broadcast calls keep iterating the old one.
func (r *Receivers) Add(rc Receiver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := *r.ptr.Load()
	next := make([]Receiver, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, rc)
	r.ptr.Store(&next)
}

// Remove unregisters a receiver by identity, closing it.
func (r *Receivers) Remove(rc Receiver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := *r.ptr.Load()
	next := make([]Receiver, 0, len(cur))
	for _, existing := range cur {
		if existing != rc {
			next = append(next, existing)
		}
	}
	r.ptr.Store(&next)
	rc.Close()
}

// Broadcast delivers s to every currently registered receiver. Safe to
// call concurrently with Add/Remove; it always sees a consistent
// snapshot taken at the start of the call.
func (r *Receivers) Broadcast(s *span.Span) {
	for _, rc := range *r.ptr.Load() {
		rc.Receive(s)
	}
}

// CloseAll closes every registered receiver and empties the set.
func (r *Receivers) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := *r.ptr.Load()
	empty := []Receiver{}
	r.ptr.Store(&empty)
	for _, rc := range cur {
		rc.Close()
	}
}
