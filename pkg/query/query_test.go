package query_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htrace/htraced/pkg/index"
	"github.com/htrace/htraced/pkg/query"
	"github.com/htrace/htraced/pkg/span"
	"github.com/htrace/htraced/pkg/spanid"
	"github.com/htrace/htraced/pkg/store"
)

// newExecutor builds a single-shard executor and inserts spans, routing
// every span to the one shard regardless of its id hash so tests can
// pick deliberate ids without fighting the hash-routing rule.
func newExecutor(t *testing.T, spans ...*span.Span) *query.Executor {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	for _, sp := range spans {
		require.NoError(t, s.PutBatch(index.EntriesForSpan(sp)))
	}
	return query.NewExecutor([]query.Shard{{Index: 0, Store: s}})
}

func id(b byte) spanid.SpanId {
	var raw [16]byte
	raw[15] = b
	return raw
}

func run(t *testing.T, ex *query.Executor, q query.Query) *query.Result {
	t.Helper()
	res, err := ex.Run(context.Background(), q)
	require.NoError(t, err)
	return res
}

func ids(res *query.Result) []spanid.SpanId {
	out := make([]spanid.SpanId, len(res.Spans))
	for i, s := range res.Spans {
		out[i] = s.ID
	}
	return out
}

// 1. Simple query: three spans with begins 123, 125, 200 (ids ...01,
// ...02, ...03). GE BEGIN 125, lim=5 -> [...02, ...03] in that order.
func TestSimpleQueryAscendingByBegin(t *testing.T) {
	ex := newExecutor(t,
		span.New(span.Options{ID: id(1), Begin: 123, End: 124}),
		span.New(span.Options{ID: id(2), Begin: 125, End: 126}),
		span.New(span.Options{ID: id(3), Begin: 200, End: 201}),
	)

	res := run(t, ex, query.Query{
		Predicates: []query.Predicate{{Field: query.FieldBegin, Op: query.OpGE, Value: "125"}},
		Limit:      5,
	})

	assert.Equal(t, []spanid.SpanId{id(2), id(3)}, ids(res))
}

// 2. Descending: LE BEGIN 200, lim=5 in reverse yields newest-first.
func TestDescendingQueryByBegin(t *testing.T) {
	ex := newExecutor(t,
		span.New(span.Options{ID: id(1), Begin: 123, End: 124}),
		span.New(span.Options{ID: id(2), Begin: 125, End: 126}),
		span.New(span.Options{ID: id(3), Begin: 200, End: 201}),
	)

	res := run(t, ex, query.Query{
		Predicates: []query.Predicate{{Field: query.FieldBegin, Op: query.OpLE, Value: "200"}},
		Limit:      5,
	})

	assert.Equal(t, []spanid.SpanId{id(3), id(2), id(1)}, ids(res))
}

// 3. Compound: driving predicate picks the range, the remaining
// predicate narrows candidates within that range without changing scan
// order.
func TestCompoundQueryAppliesSecondPredicateAsFilter(t *testing.T) {
	ex := newExecutor(t,
		span.New(span.Options{ID: id(1), Begin: 100, End: 110, TracerID: "a"}),
		span.New(span.Options{ID: id(2), Begin: 200, End: 210, TracerID: "b"}),
		span.New(span.Options{ID: id(3), Begin: 300, End: 310, TracerID: "a"}),
	)

	res := run(t, ex, query.Query{
		Predicates: []query.Predicate{
			{Field: query.FieldBegin, Op: query.OpGE, Value: "0"},
			{Field: query.FieldTracerID, Op: query.OpEQ, Value: "a"},
		},
		Limit: 10,
	})

	assert.Equal(t, []spanid.SpanId{id(1), id(3)}, ids(res))
}

// 4. Continuation: prev names the last span of a prior page, and the
// next page picks up immediately after it in the same scan order.
func TestContinuationTokenResumesAfterPrev(t *testing.T) {
	ex := newExecutor(t,
		span.New(span.Options{ID: id(1), Begin: 123, End: 124}),
		span.New(span.Options{ID: id(2), Begin: 125, End: 126}),
		span.New(span.Options{ID: id(3), Begin: 200, End: 201}),
	)

	first := run(t, ex, query.Query{
		Predicates: []query.Predicate{{Field: query.FieldBegin, Op: query.OpGE, Value: "0"}},
		Limit:      2,
	})
	require.Equal(t, []spanid.SpanId{id(1), id(2)}, ids(first))

	prev := id(2)
	second := run(t, ex, query.Query{
		Predicates: []query.Predicate{{Field: query.FieldBegin, Op: query.OpGE, Value: "0"}},
		Limit:      2,
		Prev:       &prev,
	})
	assert.Equal(t, []spanid.SpanId{id(3)}, ids(second))
}

// 5. Span-id range: LE SPAN_ID ...02, lim=100 -> [...02, ...01], since
// no predicate maps to an index family and the fallback scan runs
// newest-first over begin.
func TestSpanIDRangeFallsBackToReverseBeginScan(t *testing.T) {
	ex := newExecutor(t,
		span.New(span.Options{ID: id(1), Begin: 123, End: 124}),
		span.New(span.Options{ID: id(2), Begin: 125, End: 126}),
		span.New(span.Options{ID: id(3), Begin: 200, End: 201}),
	)

	res := run(t, ex, query.Query{
		Predicates: []query.Predicate{{Field: query.FieldSpanID, Op: query.OpLE, Value: id(2).String()}},
		Limit:      100,
	})

	assert.Equal(t, []spanid.SpanId{id(2), id(1)}, ids(res))
}

// 6. Children: FindChildren returns every span whose parent list
// contains the given id, ascending by child id.
func TestFindChildrenReturnsDescendantsAscending(t *testing.T) {
	parent := id(1)
	ex := newExecutor(t,
		span.New(span.Options{ID: id(1), Begin: 100, End: 110}),
		span.New(span.Options{ID: id(3), Begin: 200, End: 210, Parents: []spanid.SpanId{parent}}),
		span.New(span.Options{ID: id(2), Begin: 150, End: 160, Parents: []spanid.SpanId{parent}}),
		span.New(span.Options{ID: id(4), Begin: 300, End: 310}),
	)

	children, err := ex.FindChildren(context.Background(), parent, 100)
	require.NoError(t, err)
	assert.Equal(t, []spanid.SpanId{id(2), id(3)}, children)
}

func TestEQSpanIDIsAPointLookupThatIgnoresOtherSpans(t *testing.T) {
	ex := newExecutor(t,
		span.New(span.Options{ID: id(1), Begin: 100, End: 110, Description: "x"}),
		span.New(span.Options{ID: id(2), Begin: 200, End: 210, Description: "y"}),
	)

	res := run(t, ex, query.Query{
		Predicates: []query.Predicate{{Field: query.FieldSpanID, Op: query.OpEQ, Value: id(2).String()}},
		Limit:      5,
	})
	require.Len(t, res.Spans, 1)
	assert.Equal(t, id(2), res.Spans[0].ID)
}

func TestUnknownFieldIsABadQuery(t *testing.T) {
	ex := newExecutor(t)
	_, err := ex.Run(context.Background(), query.Query{
		Predicates: []query.Predicate{{Field: "nonsense", Op: query.OpEQ, Value: "1"}},
		Limit:      5,
	})
	var bq query.ErrBadQuery
	assert.ErrorAs(t, err, &bq)
}

func TestContainsOnNonDescriptionFieldIsABadQuery(t *testing.T) {
	ex := newExecutor(t)
	_, err := ex.Run(context.Background(), query.Query{
		Predicates: []query.Predicate{{Field: query.FieldTracerID, Op: query.OpContains, Value: "a"}},
		Limit:      5,
	})
	var bq query.ErrBadQuery
	assert.ErrorAs(t, err, &bq)
}

func TestPrevNamingUnknownSpanIsABadQuery(t *testing.T) {
	ex := newExecutor(t, span.New(span.Options{ID: id(1), Begin: 1, End: 2}))
	unknown := id(9)
	_, err := ex.Run(context.Background(), query.Query{
		Predicates: []query.Predicate{{Field: query.FieldBegin, Op: query.OpGE, Value: "0"}},
		Limit:      5,
		Prev:       &unknown,
	})
	var bq query.ErrBadQuery
	assert.ErrorAs(t, err, &bq)
}
