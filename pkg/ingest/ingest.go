// Package ingest implements the span-ingestion boundary from spec §4.E:
// routes an incoming span to its shard by id hash, fills in a default
// tracer id, rejects zero-id spans as bad-span without tearing down the
// connection, and accounts queue-full drops against the originating
// remote address.
package ingest

import (
	"errors"

	"github.com/htrace/htraced/pkg/log"
	"github.com/htrace/htraced/pkg/metricssink"
	"github.com/htrace/htraced/pkg/shard"
	"github.com/htrace/htraced/pkg/span"
	"github.com/htrace/htraced/pkg/spanid"
)

// ErrBadSpan is returned for a span carrying spanid.Invalid.
var ErrBadSpan = errors.New("ingest: span has zero id")

// ErrQueueFull is returned when Blocking is false and the destination
// shard's queue has no room.
var ErrQueueFull = shard.ErrQueueFull

// Ingestor routes spans to shard writers and accounts per-origin
// write/drop counters.
type Ingestor struct {
	writers         []*shard.Writer
	sink            *metricssink.Sink
	defaultTracerID string
	blocking        bool
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithDefaultTracerID sets the tracer id filled into spans that omit
// one. The zero value leaves TracerID empty.
func WithDefaultTracerID(id string) Option {
	return func(i *Ingestor) { i.defaultTracerID = id }
}

// WithBlockingEnqueue makes Ingest block on a full queue instead of
// dropping. REST/RPC handlers default to non-blocking.
func WithBlockingEnqueue() Option {
	return func(i *Ingestor) { i.blocking = true }
}

// New builds an Ingestor routing over writers, indexed by shard index
// (writers[i].Index() == i is assumed, matching hstore's load order).
func New(writers []*shard.Writer, sink *metricssink.Sink, opts ...Option) *Ingestor {
	i := &Ingestor{writers: writers, sink: sink}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Ingest routes s to its shard. origin identifies the remote peer for
// metrics accounting. A zero span id is rejected as bad-span without
// touching any shard.
func (i *Ingestor) Ingest(origin string, s *span.Span) error {
	if s.ID.IsInvalid() {
		log.WithOrigin(origin).Warn().Msg("rejecting span with zero id")
		return ErrBadSpan
	}
	if s.TracerID == "" {
		// span.Span is immutable after construction (pkg/span doc
		// comment); fill the default tracer id onto a copy rather than
		// the caller's original so that invariant still holds for s.
		cp := *s
		cp.TracerID = i.defaultTracerID
		s = &cp
	}

	idx := spanid.Shard(s.ID, len(i.writers))
	w := i.writers[idx]

	if i.blocking {
		if err := w.Enqueue(origin, s, nil); err != nil {
			return err
		}
		return nil
	}

	err := w.TryEnqueue(origin, s, nil)
	if errors.Is(err, shard.ErrQueueFull) {
		if i.sink != nil {
			i.sink.Record(origin, 0, 1)
		}
		log.WithOrigin(origin).Warn().Msg("queue full, dropping span")
		return ErrQueueFull
	}
	return err
}

// IngestBatch ingests spans in order, continuing past individual
// bad-span/queue-full failures and returning the count actually
// accepted.
func (i *Ingestor) IngestBatch(origin string, spans []*span.Span) int {
	accepted := 0
	for _, s := range spans {
		if err := i.Ingest(origin, s); err == nil {
			accepted++
		}
	}
	return accepted
}

// Close marks origin's connection as finished. Per-span accounting is
// already recorded synchronously on each Ingest call, so there is
// nothing left to flush; Close exists so callers have a single place to
// log connection teardown.
func (i *Ingestor) Close(origin string) {
	log.WithOrigin(origin).Debug().Msg("ingestor connection closed")
}
