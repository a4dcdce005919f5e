// Package span implements htraced's core data model: the immutable Span,
// its tagged binary codec for on-disk and wire storage, and its
// single-letter-key JSON form.
//
// A Span is never mutated after Options is turned into a Span by New; the
// index layer and shard writer both depend on that invariant to avoid
// locking a span's fields while they derive index keys from it.
package span

import (
	"sort"

	"github.com/htrace/htraced/pkg/spanid"
)

// TimelineAnnotation is one (time, message) entry in a span's timeline.
type TimelineAnnotation struct {
	Time    int64
	Message string
}

// Span is one unit of traced work. It is immutable after construction.
type Span struct {
	ID          spanid.SpanId
	Begin       int64
	End         int64
	Description string
	TracerID    string
	Parents     []spanid.SpanId
	Info        map[string][]byte
	Timeline    []TimelineAnnotation
}

// Options is the configuration record used to build a Span, replacing a
// builder-style constructor with a single struct literal. Fields left at
// their zero value are omitted from the persisted/encoded form where the
// type allows distinguishing "unset" from "zero".
type Options struct {
	ID          spanid.SpanId
	Begin       int64
	End         int64
	Description string
	TracerID    string
	Parents     []spanid.SpanId
	Info        map[string][]byte
	Timeline    []TimelineAnnotation
}

// New builds a Span from opts, sorting and de-duplicating Parents.
func New(opts Options) *Span {
	s := &Span{
		ID:          opts.ID,
		Begin:       opts.Begin,
		End:         opts.End,
		Description: opts.Description,
		TracerID:    opts.TracerID,
		Parents:     dedupSortedParents(opts.Parents),
		Info:        opts.Info,
		Timeline:    opts.Timeline,
	}
	return s
}

func dedupSortedParents(parents []spanid.SpanId) []spanid.SpanId {
	if len(parents) == 0 {
		return nil
	}
	sorted := make([]spanid.SpanId, len(parents))
	copy(sorted, parents)
	sort.Sort(spanid.ByCompare(sorted))
	out := sorted[:0:0]
	for i, p := range sorted {
		if i == 0 || p != sorted[i-1] {
			out = append(out, p)
		}
	}
	return out
}

// Duration is the derived, clamped-at-zero span duration.
func (s *Span) Duration() int64 {
	d := s.End - s.Begin
	if d < 0 {
		return 0
	}
	return d
}

// Equal reports field-for-field equality, used by the round-trip tests.
func (s *Span) Equal(o *Span) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.ID != o.ID || s.Begin != o.Begin || s.End != o.End ||
		s.Description != o.Description || s.TracerID != o.TracerID {
		return false
	}
	if len(s.Parents) != len(o.Parents) {
		return false
	}
	for i := range s.Parents {
		if s.Parents[i] != o.Parents[i] {
			return false
		}
	}
	if len(s.Info) != len(o.Info) {
		return false
	}
	for k, v := range s.Info {
		ov, ok := o.Info[k]
		if !ok || string(v) != string(ov) {
			return false
		}
	}
	if len(s.Timeline) != len(o.Timeline) {
		return false
	}
	for i := range s.Timeline {
		if s.Timeline[i] != o.Timeline[i] {
			return false
		}
	}
	return true
}
