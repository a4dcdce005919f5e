package fanout_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htrace/htraced/pkg/fanout"
	"github.com/htrace/htraced/pkg/span"
	"github.com/htrace/htraced/pkg/spanid"
)

type recorder struct {
	received []*span.Span
	closed   bool
}

func (r *recorder) Receive(s *span.Span) { r.received = append(r.received, s) }
func (r *recorder) Close()               { r.closed = true }

func sampleSpan() *span.Span {
	return span.New(span.Options{ID: spanid.New(1, 1), Begin: 1, End: 2})
}

func TestBroadcastDeliversToEveryReceiver(t *testing.T) {
	rs := fanout.New()
	a, b := &recorder{}, &recorder{}
	rs.Add(a)
	rs.Add(b)

	s := sampleSpan()
	rs.Broadcast(s)

	require.Len(t, a.received, 1)
	require.Len(t, b.received, 1)
	assert.Same(t, s, a.received[0])
}

func TestRemoveStopsFutureDeliveryAndClosesReceiver(t *testing.T) {
	rs := fanout.New()
	a := &recorder{}
	rs.Add(a)
	rs.Remove(a)

	rs.Broadcast(sampleSpan())

	assert.Empty(t, a.received)
	assert.True(t, a.closed)
}

func TestBroadcastOnEmptySetIsANoop(t *testing.T) {
	rs := fanout.New()
	assert.NotPanics(t, func() { rs.Broadcast(sampleSpan()) })
}

func TestCloseAllClosesEveryReceiverAndEmptiesSet(t *testing.T) {
	rs := fanout.New()
	a, b := &recorder{}, &recorder{}
	rs.Add(a)
	rs.Add(b)

	rs.CloseAll()

	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.NotPanics(t, func() { rs.Broadcast(sampleSpan()) })
}
