package ingest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htrace/htraced/pkg/index"
	"github.com/htrace/htraced/pkg/ingest"
	"github.com/htrace/htraced/pkg/metricssink"
	"github.com/htrace/htraced/pkg/shard"
	"github.com/htrace/htraced/pkg/span"
	"github.com/htrace/htraced/pkg/spanid"
	"github.com/htrace/htraced/pkg/store"
)

// waitForCommit polls the shard's store until id's primary record
// appears (or the deadline passes), since a Writer commits asynchronously
// off its own flush loop.
func waitForCommit(t *testing.T, w *shard.Writer, id spanid.SpanId) *span.Span {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		raw, err := w.Store().Get(index.PrimaryKey(id))
		require.NoError(t, err)
		if raw != nil {
			sp, err := span.Decode(raw)
			require.NoError(t, err)
			return sp
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("span never committed")
	return nil
}

func newSingleWriter(t *testing.T, sink *metricssink.Sink, cfg shard.Config) *shard.Writer {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	w := shard.NewWriter(0, st, sink, cfg)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func sampleSpan(b byte) *span.Span {
	var id spanid.SpanId
	id[15] = b
	return span.New(span.Options{ID: id, Begin: 1, End: 2})
}

func TestIngestRejectsZeroID(t *testing.T) {
	w := newSingleWriter(t, nil, shard.Config{})
	ing := ingest.New([]*shard.Writer{w}, nil)

	err := ing.Ingest("peer-a", span.New(span.Options{}))
	assert.ErrorIs(t, err, ingest.ErrBadSpan)
}

func TestIngestFillsDefaultTracerID(t *testing.T) {
	w := newSingleWriter(t, nil, shard.Config{FlushInterval: time.Millisecond})
	ing := ingest.New([]*shard.Writer{w}, nil, ingest.WithDefaultTracerID("fallback-tracer"))

	s := sampleSpan(1)
	require.NoError(t, ing.Ingest("peer-a", s))
	assert.Equal(t, "", s.TracerID, "the caller's own span is left untouched")

	committed := waitForCommit(t, w, s.ID)
	assert.Equal(t, "fallback-tracer", committed.TracerID)
}

func TestIngestLeavesExplicitTracerIDAlone(t *testing.T) {
	w := newSingleWriter(t, nil, shard.Config{})
	ing := ingest.New([]*shard.Writer{w}, nil, ingest.WithDefaultTracerID("fallback-tracer"))

	s := sampleSpan(1)
	s.TracerID = "explicit"
	require.NoError(t, ing.Ingest("peer-a", s))
	assert.Equal(t, "explicit", s.TracerID)
}

func TestNonBlockingIngestDropsAndAccountsOnFullQueue(t *testing.T) {
	sink := metricssink.New(metricssink.WithMaxAddrEntries(4))
	defer sink.Close()

	// BatchMaxSpans=1 forces a real disk commit after every enqueued
	// span, so a tight burst of non-blocking sends against a
	// one-deep queue reliably outruns the drain loop at least once.
	w := newSingleWriter(t, sink, shard.Config{QueueCapacity: 1, BatchMaxSpans: 1, FlushInterval: time.Hour})
	ing := ingest.New([]*shard.Writer{w}, sink)

	sawFull := false
	for i := 0; i < 200; i++ {
		err := ing.Ingest("peer-a", sampleSpan(byte(i%255+1)))
		if errors.Is(err, ingest.ErrQueueFull) {
			sawFull = true
			break
		}
		require.NoError(t, err)
	}
	require.True(t, sawFull, "expected at least one non-blocking enqueue to observe a full queue")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	totals, err := sink.AccessTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), totals["peer-a"].Dropped)
}

func TestBlockingIngestWaitsForRoomInsteadOfDropping(t *testing.T) {
	w := newSingleWriter(t, nil, shard.Config{QueueCapacity: 1, FlushInterval: time.Millisecond})
	ing := ingest.New([]*shard.Writer{w}, nil, ingest.WithBlockingEnqueue())

	done := make(chan error, 1)
	go func() {
		// Enough sends to force at least one blocking wait while the
		// writer's drain loop keeps making room.
		for i := 0; i < 50; i++ {
			if err := ing.Ingest("peer-a", sampleSpan(byte(i+1))); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("blocking ingest never completed")
	}
}

func TestIngestBatchContinuesPastBadSpans(t *testing.T) {
	w := newSingleWriter(t, nil, shard.Config{})
	ing := ingest.New([]*shard.Writer{w}, nil)

	spans := []*span.Span{
		sampleSpan(1),
		span.New(span.Options{}), // zero id, rejected
		sampleSpan(2),
	}
	accepted := ing.IngestBatch("peer-a", spans)
	assert.Equal(t, 2, accepted)
}
