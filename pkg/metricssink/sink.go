// Package metricssink implements the per-origin write accounting actor
// from spec §4.G: a single goroutine owns the counter map so readers
// never need a lock, requests and snapshot replies travel over the same
// channel, and an LRU cap keeps a noisy or churning fleet of client
// addresses from growing the map without bound.
package metricssink

import (
	"container/list"
	"context"
	"time"
)

// Defaults from spec §4.G.
const (
	DefaultMaxAddrEntries  = 2
	DefaultHeartbeatPeriod = 1 * time.Second
)

// Totals is a snapshot of one origin's lifetime write/drop counts.
type Totals struct {
	Written int64
	Dropped int64
}

// recordMsg and snapshotMsg both travel over Sink.msgs so a snapshot
// requested after N records is guaranteed to observe all N: a single
// channel preserves send order, two channels would not.
type recordMsg struct {
	origin  string
	written int
	dropped int
}

type snapshotMsg struct {
	reply chan map[string]Totals
}

// Sink is a channel-actor accumulating per-origin Totals. The zero value
// is not usable; construct with New.
type Sink struct {
	msgs    chan interface{}
	stop    chan struct{}
	stopped chan struct{}

	maxAddrEntries int
	heartbeat      time.Duration

	onHeartbeat func(map[string]Totals)
}

// Option configures a Sink at construction.
type Option func(*Sink)

// WithMaxAddrEntries overrides DefaultMaxAddrEntries.
func WithMaxAddrEntries(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.maxAddrEntries = n
		}
	}
}

// WithHeartbeatPeriod overrides DefaultHeartbeatPeriod.
func WithHeartbeatPeriod(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// WithHeartbeatObserver registers a callback invoked on every heartbeat
// tick with the current totals, used to mirror counts into the ambient
// Prometheus gauges in pkg/metrics.
func WithHeartbeatObserver(fn func(map[string]Totals)) Option {
	return func(s *Sink) { s.onHeartbeat = fn }
}

// New starts the sink's actor goroutine. Close stops it.
func New(opts ...Option) *Sink {
	s := &Sink{
		msgs:           make(chan interface{}, 64),
		stop:           make(chan struct{}),
		stopped:        make(chan struct{}),
		maxAddrEntries: DefaultMaxAddrEntries,
		heartbeat:      DefaultHeartbeatPeriod,
	}
	for _, o := range opts {
		o(s)
	}
	go s.run()
	return s
}

// Record accounts written and/or dropped spans against origin. Safe to
// call from any goroutine.
func (s *Sink) Record(origin string, written, dropped int) {
	if written == 0 && dropped == 0 {
		return
	}
	select {
	case s.msgs <- recordMsg{origin: origin, written: written, dropped: dropped}:
	case <-s.stopped:
	}
}

// AccessTotals returns a snapshot of every tracked origin's totals,
// reflecting every Record call that happened-before this one on the
// caller's goroutine. It blocks until the actor goroutine replies or ctx
// is done.
func (s *Sink) AccessTotals(ctx context.Context) (map[string]Totals, error) {
	reply := make(chan map[string]Totals, 1)
	select {
	case s.msgs <- snapshotMsg{reply: reply}:
	case <-s.stopped:
		return nil, context.Canceled
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case totals := <-reply:
		return totals, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the actor goroutine. Subsequent Record calls are no-ops.
func (s *Sink) Close() {
	close(s.stop)
	<-s.stopped
}

// entry is a map value paired with its position in the LRU list, so
// eviction is O(1) once the oldest element is known.
type entry struct {
	origin string
	totals Totals
	elem   *list.Element
}

func (s *Sink) run() {
	defer close(s.stopped)

	byOrigin := make(map[string]*entry, s.maxAddrEntries)
	order := list.New() // front = most recently touched

	touch := func(origin string) *entry {
		if e, ok := byOrigin[origin]; ok {
			order.MoveToFront(e.elem)
			return e
		}
		e := &entry{origin: origin}
		e.elem = order.PushFront(origin)
		byOrigin[origin] = e
		for len(byOrigin) > s.maxAddrEntries {
			oldest := order.Back()
			if oldest == nil {
				break
			}
			order.Remove(oldest)
			delete(byOrigin, oldest.Value.(string))
		}
		return e
	}

	snapshotLocked := func() map[string]Totals {
		out := make(map[string]Totals, len(byOrigin))
		for origin, e := range byOrigin {
			out[origin] = e.totals
		}
		return out
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case raw := <-s.msgs:
			switch msg := raw.(type) {
			case recordMsg:
				e := touch(msg.origin)
				e.totals.Written += int64(msg.written)
				e.totals.Dropped += int64(msg.dropped)
			case snapshotMsg:
				msg.reply <- snapshotLocked()
			}
		case <-ticker.C:
			if s.onHeartbeat != nil {
				s.onHeartbeat(snapshotLocked())
			}
		case <-s.stop:
			return
		}
	}
}
