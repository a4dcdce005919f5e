// Package shard implements the single-writer-per-shard commit loop
// (spec §4.C): a bounded queue of (span, completion hook) pairs drained
// by one goroutine that coalesces up to batch_max_spans spans — or
// whatever arrived within flush_interval — into a single key/value store
// batch covering the primary record and every secondary index entry.
//
// The queue/drain/batch shape mirrors the sharded executor pattern used
// elsewhere in the retrieval pack's ingestion snippets (a per-shard
// bounded channel with a dedicated worker goroutine and FIFO ordering per
// producer), adapted here so the unit of work is a span rather than an
// arbitrary job, and the worker commits directly against pkg/store
// instead of calling out to a generic Job interface.
package shard

import (
	"fmt"
	"time"

	"github.com/htrace/htraced/pkg/index"
	"github.com/htrace/htraced/pkg/log"
	"github.com/htrace/htraced/pkg/metricssink"
	"github.com/htrace/htraced/pkg/span"
	"github.com/htrace/htraced/pkg/store"
)

// Defaults from spec §4.C.
const (
	DefaultQueueCapacity = 1024
	DefaultBatchMaxSpans = 128
	DefaultFlushInterval = 50 * time.Millisecond
)

// Config parameterizes a Writer.
type Config struct {
	QueueCapacity int
	BatchMaxSpans int
	FlushInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.BatchMaxSpans <= 0 {
		c.BatchMaxSpans = DefaultBatchMaxSpans
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	return c
}

// CompletionHook is invoked once a span's batch has committed (or failed
// to). err is nil on success.
type CompletionHook func(err error)

type writeRequest struct {
	origin string
	span   *span.Span
	done   CompletionHook
}

// ErrQueueFull is returned by TryEnqueue when the shard's queue has no
// room and the caller asked not to block.
var ErrQueueFull = fmt.Errorf("shard: queue full")

// ErrClosed is returned by Enqueue/TryEnqueue after Close.
var ErrClosed = fmt.Errorf("shard: writer closed")

// Writer owns one shard's store exclusively for mutation and commits
// batches drained from its bounded queue.
type Writer struct {
	idx    int
	store  *store.ShardStore
	sink   *metricssink.Sink
	cfg    Config
	queue  chan writeRequest
	done   chan struct{}
	closed chan struct{}
}

// NewWriter starts a shard's write loop. Close must be called to flush
// and release the shard's store.
func NewWriter(idx int, st *store.ShardStore, sink *metricssink.Sink, cfg Config) *Writer {
	cfg = cfg.withDefaults()
	w := &Writer{
		idx:    idx,
		store:  st,
		sink:   sink,
		cfg:    cfg,
		queue:  make(chan writeRequest, cfg.QueueCapacity),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go w.run()
	return w
}

// Index returns the shard index this writer owns.
func (w *Writer) Index() int { return w.idx }

// Store exposes the shard's store for read-only access by the query
// executor and point lookups. Only the write loop below mutates it.
func (w *Writer) Store() *store.ShardStore { return w.store }

// Enqueue blocks until there is room in the queue or the writer is
// closed.
func (w *Writer) Enqueue(origin string, s *span.Span, done CompletionHook) error {
	req := writeRequest{origin: origin, span: s, done: done}
	select {
	case w.queue <- req:
		return nil
	case <-w.done:
		return ErrClosed
	}
}

// TryEnqueue attempts a non-blocking enqueue, returning ErrQueueFull if
// the shard's queue is currently full. Callers that chose non-blocking
// ingestion count this against the origin's drop counter themselves.
func (w *Writer) TryEnqueue(origin string, s *span.Span, done CompletionHook) error {
	req := writeRequest{origin: origin, span: s, done: done}
	select {
	case w.queue <- req:
		return nil
	case <-w.done:
		return ErrClosed
	default:
		return ErrQueueFull
	}
}

// Close signals shutdown, drains whatever remains in the queue into a
// final batch, and releases the shard's store.
func (w *Writer) Close() error {
	close(w.done)
	<-w.closed
	return w.store.Close()
}

func (w *Writer) run() {
	defer close(w.closed)
	timer := time.NewTimer(w.cfg.FlushInterval)
	defer timer.Stop()

	batch := make([]writeRequest, 0, w.cfg.BatchMaxSpans)
	draining := false

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.commit(batch)
		batch = batch[:0]
	}

	for {
		if draining {
			select {
			case req := <-w.queue:
				batch = append(batch, req)
				if len(batch) >= w.cfg.BatchMaxSpans {
					flush()
				}
			default:
				flush()
				return
			}
			continue
		}

		select {
		case req := <-w.queue:
			batch = append(batch, req)
			if len(batch) >= w.cfg.BatchMaxSpans {
				flush()
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(w.cfg.FlushInterval)
			}
		case <-timer.C:
			flush()
			timer.Reset(w.cfg.FlushInterval)
		case <-w.done:
			draining = true
		}
	}
}

// commit builds every batch member's index entries, commits them in one
// store transaction, and fans the result out to completion hooks and the
// metrics sink. A commit failure fails every span in the batch; spec
// §4.C does not ask for partial-batch recovery.
func (w *Writer) commit(batch []writeRequest) {
	logger := log.WithShard(w.idx)
	entries := make([]index.Entry, 0, len(batch)*4)
	byOrigin := make(map[string]int, 4)
	for _, req := range batch {
		entries = append(entries, index.EntriesForSpan(req.span)...)
		byOrigin[req.origin]++
	}

	err := w.store.PutBatch(entries)
	if err != nil {
		logger.Error().Err(err).Int("batch_size", len(batch)).Msg("batch commit failed")
	} else {
		logger.Debug().Int("batch_size", len(batch)).Int("entries", len(entries)).Msg("committed batch")
	}

	for origin, n := range byOrigin {
		if w.sink != nil {
			if err != nil {
				w.sink.Record(origin, 0, n)
			} else {
				w.sink.Record(origin, n, 0)
			}
		}
	}
	for _, req := range batch {
		if req.done != nil {
			req.done(err)
		}
	}
}
