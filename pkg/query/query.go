// Package query implements the predicate-query planner and per-shard
// fan-out executor from spec §4.F: pick a driving predicate that maps to
// one of the B/E/D/S/T indexes (or fall back to a full B scan), run a
// bounded scan per shard in parallel, and merge the per-shard streams
// with a min-heap that preserves global scan order and the span-id
// tie-break rule.
package query

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/htrace/htraced/pkg/index"
	"github.com/htrace/htraced/pkg/log"
	"github.com/htrace/htraced/pkg/span"
	"github.com/htrace/htraced/pkg/spanid"
	"github.com/htrace/htraced/pkg/store"
)

// Field names a queryable span attribute.
type Field string

const (
	FieldSpanID      Field = "span_id"
	FieldBegin       Field = "begin"
	FieldEnd         Field = "end"
	FieldDuration    Field = "duration"
	FieldDescription Field = "description"
	FieldTracerID    Field = "tracer_id"
)

// Op names a predicate comparison.
type Op string

const (
	OpEQ       Op = "EQ"
	OpLT       Op = "LT"
	OpLE       Op = "LE"
	OpGT       Op = "GT"
	OpGE       Op = "GE"
	OpContains Op = "CONTAINS"
)

// Predicate is one clause of a Query, carrying its value as the literal
// string the caller supplied; the planner and the filter parse it per
// Field (hex for span_id, base-10 int64 for begin/end/duration).
type Predicate struct {
	Field Field
	Op    Op
	Value string
}

// Query is the executor's unit of work: a conjunction of predicates,
// a result cap, and an optional continuation token.
type Query struct {
	Predicates []Predicate
	Limit      int
	Prev       *spanid.SpanId
}

// ErrBadQuery reports a malformed predicate list: unknown field/op,
// CONTAINS on a non-description field, an unparsable value, or a prev
// token that does not resolve to a known span.
type ErrBadQuery struct{ Reason string }

func (e ErrBadQuery) Error() string { return "bad query: " + e.Reason }

// Shard is the subset of a shard's identity the executor needs: its
// index (for result ordering in ScannedPerShard) and its store for
// range scans and primary lookups.
type Shard struct {
	Index int
	Store *store.ShardStore
}

// Executor runs queries across a fixed set of shards.
type Executor struct {
	shards []Shard
}

// NewExecutor builds an Executor over shards, which should be supplied
// in ShardIndex order (as hstore.Set and pkg/shard.Writer already keep
// them).
func NewExecutor(shards []Shard) *Executor {
	return &Executor{shards: shards}
}

// Result is the outcome of running a Query.
type Result struct {
	Spans           []*span.Span
	ScannedPerShard []int
}

// Run plans and executes q across every shard, merging results into
// global scan order. A shard I/O error fails the whole query; there are
// no partial results.
func (ex *Executor) Run(ctx context.Context, q Query) (*Result, error) {
	plan, err := planQuery(q)
	if err != nil {
		return nil, err
	}

	if plan.pointLookup != nil {
		return ex.runPointLookup(*plan.pointLookup, plan.filters)
	}

	if q.Prev != nil {
		prevSpan, err := ex.findSpan(*q.Prev)
		if err != nil {
			return nil, err
		}
		if prevSpan == nil {
			return nil, ErrBadQuery{Reason: "prev does not name a known span"}
		}
		plan.applyPrev(prevSpan)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 1
	}

	scanned := make([]int, len(ex.shards))
	perShard := make([][]*span.Span, len(ex.shards))

	g, gctx := errgroup.WithContext(ctx)
	for i, sh := range ex.shards {
		i, sh := i, sh
		g.Go(func() error {
			spans, n, err := ex.scanShard(gctx, sh, plan, limit)
			if err != nil {
				return fmt.Errorf("shard %d: %w", sh.Index, err)
			}
			perShard[i] = spans
			scanned[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := mergeShards(perShard, plan.family, plan.reverse, limit)
	return &Result{Spans: merged, ScannedPerShard: scanned}, nil
}

func (ex *Executor) findSpan(id spanid.SpanId) (*span.Span, error) {
	shardIdx := spanid.Shard(id, len(ex.shards))
	for _, sh := range ex.shards {
		if sh.Index != shardIdx {
			continue
		}
		raw, err := sh.Store.Get(index.PrimaryKey(id))
		if err != nil {
			return nil, err
		}
		if raw == nil {
			return nil, nil
		}
		s, err := span.Decode(raw)
		if err != nil {
			log.WithSpanID(id.String()).Error().Err(err).Msg("decoding primary span record failed")
			return nil, err
		}
		return s, nil
	}
	return nil, nil
}

func (ex *Executor) runPointLookup(id spanid.SpanId, filters []Predicate) (*Result, error) {
	s, err := ex.findSpan(id)
	if err != nil {
		return nil, err
	}
	scanned := make([]int, len(ex.shards))
	if s == nil {
		return &Result{ScannedPerShard: scanned}, nil
	}
	idx := spanid.Shard(id, len(ex.shards))
	for i, sh := range ex.shards {
		if sh.Index == idx {
			scanned[i] = 1
		}
	}
	if !matchesAll(s, filters) {
		return &Result{ScannedPerShard: scanned}, nil
	}
	return &Result{Spans: []*span.Span{s}, ScannedPerShard: scanned}, nil
}

// scanShard walks one shard's driving index within [lo, hi), resolving
// each candidate to its full span, filtering, and capping at limit
// matches. Every candidate examined, pass or fail, counts as scanned.
func (ex *Executor) scanShard(ctx context.Context, sh Shard, plan *plan, limit int) ([]*span.Span, int, error) {
	it, err := sh.Store.RangeScan(plan.lo, plan.hi, plan.reverse)
	if err != nil {
		return nil, 0, err
	}
	defer it.Close()

	var matches []*span.Span
	scanned := 0
	for it.Next() {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		id, err := index.SpanIDFromTailKey(it.Key())
		if err != nil {
			return nil, 0, err
		}
		scanned++
		raw, err := sh.Store.Get(index.PrimaryKey(id))
		if err != nil {
			return nil, 0, err
		}
		if raw == nil {
			continue
		}
		s, err := span.Decode(raw)
		if err != nil {
			log.WithSpanID(id.String()).Error().Err(err).Msg("decoding indexed span record failed")
			return nil, 0, err
		}
		if matchesAll(s, plan.filters) {
			matches = append(matches, s)
			if len(matches) >= limit {
				break
			}
		}
	}
	return matches, scanned, nil
}

func matchesAll(s *span.Span, preds []Predicate) bool {
	for _, p := range preds {
		if !matches(s, p) {
			return false
		}
	}
	return true
}

func matches(s *span.Span, p Predicate) bool {
	switch p.Field {
	case FieldSpanID:
		v, err := spanid.Parse(p.Value)
		if err != nil {
			return false
		}
		return compareOp(p.Op, s.ID.Compare(v))
	case FieldBegin:
		v, err := strconv.ParseInt(p.Value, 10, 64)
		if err != nil {
			return false
		}
		return compareOp(p.Op, compareInt64(s.Begin, v))
	case FieldEnd:
		v, err := strconv.ParseInt(p.Value, 10, 64)
		if err != nil {
			return false
		}
		return compareOp(p.Op, compareInt64(s.End, v))
	case FieldDuration:
		v, err := strconv.ParseInt(p.Value, 10, 64)
		if err != nil {
			return false
		}
		return compareOp(p.Op, compareInt64(s.Duration(), v))
	case FieldDescription:
		if p.Op == OpContains {
			return strings.Contains(s.Description, p.Value)
		}
		return compareOp(p.Op, strings.Compare(s.Description, p.Value))
	case FieldTracerID:
		return compareOp(p.Op, strings.Compare(s.TracerID, p.Value))
	default:
		return false
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareOp(op Op, cmp int) bool {
	switch op {
	case OpEQ:
		return cmp == 0
	case OpLT:
		return cmp < 0
	case OpLE:
		return cmp <= 0
	case OpGT:
		return cmp > 0
	case OpGE:
		return cmp >= 0
	default:
		return false
	}
}
