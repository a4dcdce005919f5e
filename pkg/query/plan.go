package query

import (
	"container/heap"
	"strconv"

	"github.com/htrace/htraced/pkg/index"
	"github.com/htrace/htraced/pkg/span"
	"github.com/htrace/htraced/pkg/spanid"
)

// plan is the output of planQuery: a range to scan per shard (or a
// single point lookup), the scan direction, and the filter predicates
// every candidate must satisfy besides the driving predicate itself.
type plan struct {
	pointLookup *spanid.SpanId // set only for EQ span_id
	lo, hi      []byte
	reverse     bool
	family      index.Prefix
	filters     []Predicate
}

var comparisonOps = map[Op]bool{OpEQ: true, OpLT: true, OpLE: true, OpGT: true, OpGE: true}

func planQuery(q Query) (*plan, error) {
	for _, p := range q.Predicates {
		if err := validatePredicate(p); err != nil {
			return nil, err
		}
	}

	// (a) EQ span_id: single primary fetch, no scan.
	for i, p := range q.Predicates {
		if p.Field == FieldSpanID && p.Op == OpEQ {
			id, err := spanid.Parse(p.Value)
			if err != nil {
				return nil, ErrBadQuery{Reason: "span_id: " + err.Error()}
			}
			return &plan{pointLookup: &id, filters: without(q.Predicates, i)}, nil
		}
	}

	// (b) comparison on begin/end/duration.
	if pl := planNumeric(q, FieldBegin, index.PrefixBegin); pl != nil {
		return pl, nil
	}
	if pl := planNumeric(q, FieldEnd, index.PrefixEnd); pl != nil {
		return pl, nil
	}
	if pl := planNumeric(q, FieldDuration, index.PrefixDuration); pl != nil {
		return pl, nil
	}

	// (c) comparison on description/tracer_id (CONTAINS does not drive).
	if pl := planString(q, FieldDescription, index.PrefixDescription); pl != nil {
		return pl, nil
	}
	if pl := planString(q, FieldTracerID, index.PrefixTracerID); pl != nil {
		return pl, nil
	}

	// (d) fallback: no predicate maps to an index, so scan all of B.
	// Newest-first (reverse) matches the common "most recent spans"
	// access pattern and is what an unindexed predicate like a span_id
	// comparison effectively rides on.
	return &plan{
		lo:      index.FamilyStart(index.PrefixBegin),
		hi:      index.FamilyEnd(index.PrefixBegin),
		reverse: true,
		family:  index.PrefixBegin,
		filters: q.Predicates,
	}, nil
}

func planNumeric(q Query, field Field, prefix index.Prefix) *plan {
	for i, p := range q.Predicates {
		if p.Field != field || !comparisonOps[p.Op] {
			continue
		}
		v, err := strconv.ParseInt(p.Value, 10, 64)
		if err != nil {
			continue
		}
		lo, hi, reverse := numericRange(prefix, p.Op, v)
		return &plan{lo: lo, hi: hi, reverse: reverse, family: prefix, filters: without(q.Predicates, i)}
	}
	return nil
}

func planString(q Query, field Field, prefix index.Prefix) *plan {
	for i, p := range q.Predicates {
		if p.Field != field || !comparisonOps[p.Op] {
			continue
		}
		lo, hi, reverse := stringRange(prefix, p.Op, p.Value)
		return &plan{lo: lo, hi: hi, reverse: reverse, family: prefix, filters: without(q.Predicates, i)}
	}
	return nil
}

func numericRange(prefix index.Prefix, op Op, v int64) (lo, hi []byte, reverse bool) {
	switch op {
	case OpGE:
		return index.IntKey(prefix, v, spanid.Invalid), index.FamilyEnd(prefix), false
	case OpGT:
		return index.ExclusiveUpperBound(index.IntKey(prefix, v, spanid.Max)), index.FamilyEnd(prefix), false
	case OpLE:
		return index.FamilyStart(prefix), index.ExclusiveUpperBound(index.IntKey(prefix, v, spanid.Max)), true
	case OpLT:
		return index.FamilyStart(prefix), index.IntKey(prefix, v, spanid.Invalid), true
	case OpEQ:
		return index.IntKey(prefix, v, spanid.Invalid), index.ExclusiveUpperBound(index.IntKey(prefix, v, spanid.Max)), false
	}
	return index.FamilyStart(prefix), index.FamilyEnd(prefix), false
}

func stringRange(prefix index.Prefix, op Op, v string) (lo, hi []byte, reverse bool) {
	switch op {
	case OpGE:
		return index.StringFieldKey(prefix, v, spanid.Invalid), index.FamilyEnd(prefix), false
	case OpGT:
		return index.ExclusiveUpperBound(index.StringFieldKey(prefix, v, spanid.Max)), index.FamilyEnd(prefix), false
	case OpLE:
		return index.FamilyStart(prefix), index.ExclusiveUpperBound(index.StringFieldKey(prefix, v, spanid.Max)), true
	case OpLT:
		return index.FamilyStart(prefix), index.StringFieldKey(prefix, v, spanid.Invalid), true
	case OpEQ:
		return index.StringFieldKey(prefix, v, spanid.Invalid), index.ExclusiveUpperBound(index.StringFieldKey(prefix, v, spanid.Max)), false
	}
	return index.FamilyStart(prefix), index.FamilyEnd(prefix), false
}

// applyPrev narrows the scan range to start strictly after prevSpan's
// position in scan order, implementing the continuation-token
// invariant. It recomputes the boundary using prevSpan's own value for
// the driving family, so the cut is exact even though multiple spans
// may share that value.
func (pl *plan) applyPrev(prevSpan *span.Span) {
	if pl.pointLookup != nil {
		return
	}
	key := driverKey(pl.family, prevSpan)
	if pl.reverse {
		pl.hi = key // exclusive: stop before prev, scanning strictly earlier entries
	} else {
		pl.lo = index.ExclusiveUpperBound(key) // start strictly after prev
	}
}

func driverKey(prefix index.Prefix, s *span.Span) []byte {
	switch prefix {
	case index.PrefixBegin:
		return index.IntKey(prefix, s.Begin, s.ID)
	case index.PrefixEnd:
		return index.IntKey(prefix, s.End, s.ID)
	case index.PrefixDuration:
		return index.IntKey(prefix, s.Duration(), s.ID)
	case index.PrefixDescription:
		return index.StringFieldKey(prefix, s.Description, s.ID)
	case index.PrefixTracerID:
		return index.StringFieldKey(prefix, s.TracerID, s.ID)
	default:
		return index.IntKey(index.PrefixBegin, s.Begin, s.ID)
	}
}

func validatePredicate(p Predicate) error {
	switch p.Field {
	case FieldSpanID, FieldBegin, FieldEnd, FieldDuration, FieldDescription, FieldTracerID:
	default:
		return ErrBadQuery{Reason: "unknown field " + string(p.Field)}
	}
	if p.Op == OpContains && p.Field != FieldDescription {
		return ErrBadQuery{Reason: "CONTAINS is only valid on description"}
	}
	switch p.Op {
	case OpEQ, OpLT, OpLE, OpGT, OpGE, OpContains:
	default:
		return ErrBadQuery{Reason: "unknown operator " + string(p.Op)}
	}
	switch p.Field {
	case FieldSpanID:
		if _, err := spanid.Parse(p.Value); err != nil {
			return ErrBadQuery{Reason: "span_id: " + err.Error()}
		}
	case FieldBegin, FieldEnd, FieldDuration:
		if _, err := strconv.ParseInt(p.Value, 10, 64); err != nil {
			return ErrBadQuery{Reason: string(p.Field) + ": " + err.Error()}
		}
	}
	return nil
}

func without(preds []Predicate, i int) []Predicate {
	out := make([]Predicate, 0, len(preds)-1)
	for j, p := range preds {
		if j != i {
			out = append(out, p)
		}
	}
	return out
}

// orderValue extracts the scalar a span was ordered by within its
// shard's scan, so the cross-shard merge can compare on the same key
// the per-shard range scan used rather than on span-id (spans route to
// shards by id hash, which has no relationship to begin/end/duration).
func orderValue(family index.Prefix, s *span.Span) (n int64, str string, isString bool) {
	switch family {
	case index.PrefixEnd:
		return s.End, "", false
	case index.PrefixDuration:
		return s.Duration(), "", false
	case index.PrefixDescription:
		return 0, s.Description, true
	case index.PrefixTracerID:
		return 0, s.TracerID, true
	default:
		return s.Begin, "", false
	}
}

// less reports whether a sorts before b in a forward scan over family,
// falling back to the span-id tie-break from spec §4.F when the driving
// values are equal.
func less(family index.Prefix, a, b *span.Span) bool {
	an, astr, isString := orderValue(family, a)
	bn, bstr, _ := orderValue(family, b)
	if isString {
		if astr != bstr {
			return astr < bstr
		}
	} else if an != bn {
		return an < bn
	}
	return a.ID.Less(b.ID)
}

// mergeHeap implements container/heap over the head elements of each
// shard's already-sorted result slice, so popping repeatedly yields the
// global scan order. Ties break on span-id ascending in a forward scan,
// descending in reverse, per spec §4.F.
type mergeHeap struct {
	heads   []*span.Span
	streams [][]*span.Span
	family  index.Prefix
	reverse bool
}

func (h *mergeHeap) Len() int { return len(h.heads) }

func (h *mergeHeap) Less(i, j int) bool {
	a, b := h.heads[i], h.heads[j]
	if !h.reverse {
		return less(h.family, a, b)
	}
	return less(h.family, b, a)
}

func (h *mergeHeap) Swap(i, j int) {
	h.heads[i], h.heads[j] = h.heads[j], h.heads[i]
	h.streams[i], h.streams[j] = h.streams[j], h.streams[i]
}

func (h *mergeHeap) Push(x interface{}) {}
func (h *mergeHeap) Pop() interface{} {
	n := len(h.heads)
	v := h.heads[n-1]
	h.heads = h.heads[:n-1]
	h.streams = h.streams[:n-1]
	return v
}

func mergeShards(perShard [][]*span.Span, family index.Prefix, reverse bool, limit int) []*span.Span {
	h := &mergeHeap{family: family, reverse: reverse}
	for _, stream := range perShard {
		if len(stream) == 0 {
			continue
		}
		h.heads = append(h.heads, stream[0])
		h.streams = append(h.streams, stream[1:])
	}
	heap.Init(h)

	var out []*span.Span
	for h.Len() > 0 && len(out) < limit {
		top := h.heads[0]
		rest := h.streams[0]
		out = append(out, top)
		if len(rest) > 0 {
			h.heads[0] = rest[0]
			h.streams[0] = rest[1:]
			heap.Fix(h, 0)
		} else {
			heap.Pop(h)
		}
	}
	return out
}
