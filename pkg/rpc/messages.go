package rpc

import (
	"bytes"

	"github.com/htrace/htraced/pkg/query"
	"github.com/htrace/htraced/pkg/span"
	"github.com/htrace/htraced/pkg/spanid"
)

// WriteSpansRequest carries a batch of spans from one origin, plus the
// default tracer id to fill in for spans that omit one (mirroring the
// REST adapter's htrace-trid header).
type WriteSpansRequest struct {
	Origin          string
	DefaultTracerID string
	Spans           []*span.Span
}

func (m *WriteSpansRequest) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	putString(&buf, m.Origin)
	putString(&buf, m.DefaultTracerID)
	putVarint(&buf, int64(len(m.Spans)))
	for _, s := range m.Spans {
		putSpan(&buf, s)
	}
	return buf.Bytes(), nil
}

func (m *WriteSpansRequest) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	var err error
	if m.Origin, err = getString(r); err != nil {
		return err
	}
	if m.DefaultTracerID, err = getString(r); err != nil {
		return err
	}
	n, err := getVarint(r)
	if err != nil {
		return err
	}
	m.Spans = make([]*span.Span, 0, n)
	for i := int64(0); i < n; i++ {
		s, err := getSpan(r)
		if err != nil {
			return err
		}
		m.Spans = append(m.Spans, s)
	}
	return nil
}

// WriteSpansResponse reports how many of the batch were accepted.
type WriteSpansResponse struct {
	Accepted int32
}

func (m *WriteSpansResponse) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	putVarint(&buf, int64(m.Accepted))
	return buf.Bytes(), nil
}

func (m *WriteSpansResponse) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	n, err := getVarint(r)
	if err != nil {
		return err
	}
	m.Accepted = int32(n)
	return nil
}

// PredicateWire is the wire form of query.Predicate.
type PredicateWire struct {
	Field string
	Op    string
	Value string
}

// QueryRequest is the wire form of query.Query.
type QueryRequest struct {
	Predicates []PredicateWire
	Limit      int32
	HasPrev    bool
	Prev       spanid.SpanId
}

func (m *QueryRequest) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	putVarint(&buf, int64(len(m.Predicates)))
	for _, p := range m.Predicates {
		putString(&buf, p.Field)
		putString(&buf, p.Op)
		putString(&buf, p.Value)
	}
	putVarint(&buf, int64(m.Limit))
	if m.HasPrev {
		buf.WriteByte(1)
		putSpanID(&buf, m.Prev)
	} else {
		buf.WriteByte(0)
	}
	return buf.Bytes(), nil
}

func (m *QueryRequest) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	n, err := getVarint(r)
	if err != nil {
		return err
	}
	m.Predicates = make([]PredicateWire, 0, n)
	for i := int64(0); i < n; i++ {
		var p PredicateWire
		if p.Field, err = getString(r); err != nil {
			return err
		}
		if p.Op, err = getString(r); err != nil {
			return err
		}
		if p.Value, err = getString(r); err != nil {
			return err
		}
		m.Predicates = append(m.Predicates, p)
	}
	limit, err := getVarint(r)
	if err != nil {
		return err
	}
	m.Limit = int32(limit)
	hasPrev, err := r.ReadByte()
	if err != nil {
		return ErrTruncated
	}
	if hasPrev == 1 {
		m.HasPrev = true
		if m.Prev, err = getSpanID(r); err != nil {
			return err
		}
	}
	return nil
}

// ToQuery converts the wire form to the query package's native type.
func (m *QueryRequest) ToQuery() query.Query {
	q := query.Query{Limit: int(m.Limit)}
	for _, p := range m.Predicates {
		q.Predicates = append(q.Predicates, query.Predicate{
			Field: query.Field(p.Field), Op: query.Op(p.Op), Value: p.Value,
		})
	}
	if m.HasPrev {
		prev := m.Prev
		q.Prev = &prev
	}
	return q
}

// QueryResponse is the wire form of query.Result.
type QueryResponse struct {
	Spans           []*span.Span
	ScannedPerShard []int32
}

func (m *QueryResponse) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	putVarint(&buf, int64(len(m.Spans)))
	for _, s := range m.Spans {
		putSpan(&buf, s)
	}
	putVarint(&buf, int64(len(m.ScannedPerShard)))
	for _, n := range m.ScannedPerShard {
		putVarint(&buf, int64(n))
	}
	return buf.Bytes(), nil
}

func (m *QueryResponse) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	n, err := getVarint(r)
	if err != nil {
		return err
	}
	m.Spans = make([]*span.Span, 0, n)
	for i := int64(0); i < n; i++ {
		s, err := getSpan(r)
		if err != nil {
			return err
		}
		m.Spans = append(m.Spans, s)
	}
	sn, err := getVarint(r)
	if err != nil {
		return err
	}
	m.ScannedPerShard = make([]int32, sn)
	for i := range m.ScannedPerShard {
		v, err := getVarint(r)
		if err != nil {
			return err
		}
		m.ScannedPerShard[i] = int32(v)
	}
	return nil
}

// FindSpanRequest looks up a single span by id.
type FindSpanRequest struct {
	ID spanid.SpanId
}

func (m *FindSpanRequest) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	putSpanID(&buf, m.ID)
	return buf.Bytes(), nil
}

func (m *FindSpanRequest) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	id, err := getSpanID(r)
	if err != nil {
		return err
	}
	m.ID = id
	return nil
}

// FindSpanResponse carries the span if found.
type FindSpanResponse struct {
	Found bool
	Span  *span.Span
}

func (m *FindSpanResponse) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if m.Found {
		buf.WriteByte(1)
		putSpan(&buf, m.Span)
	} else {
		buf.WriteByte(0)
	}
	return buf.Bytes(), nil
}

func (m *FindSpanResponse) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	found, err := r.ReadByte()
	if err != nil {
		return ErrTruncated
	}
	if found == 1 {
		m.Found = true
		if m.Span, err = getSpan(r); err != nil {
			return err
		}
	}
	return nil
}

// FindChildrenRequest looks up up to Limit children of ID.
type FindChildrenRequest struct {
	ID    spanid.SpanId
	Limit int32
}

func (m *FindChildrenRequest) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	putSpanID(&buf, m.ID)
	putVarint(&buf, int64(m.Limit))
	return buf.Bytes(), nil
}

func (m *FindChildrenRequest) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	id, err := getSpanID(r)
	if err != nil {
		return err
	}
	m.ID = id
	limit, err := getVarint(r)
	if err != nil {
		return err
	}
	m.Limit = int32(limit)
	return nil
}

// FindChildrenResponse carries the matched child ids.
type FindChildrenResponse struct {
	Children []spanid.SpanId
}

func (m *FindChildrenResponse) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	putVarint(&buf, int64(len(m.Children)))
	for _, id := range m.Children {
		putSpanID(&buf, id)
	}
	return buf.Bytes(), nil
}

func (m *FindChildrenResponse) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	n, err := getVarint(r)
	if err != nil {
		return err
	}
	m.Children = make([]spanid.SpanId, 0, n)
	for i := int64(0); i < n; i++ {
		id, err := getSpanID(r)
		if err != nil {
			return err
		}
		m.Children = append(m.Children, id)
	}
	return nil
}
