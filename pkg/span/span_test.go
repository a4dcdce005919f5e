package span_test

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htrace/htraced/pkg/span"
	"github.com/htrace/htraced/pkg/spanid"
)

func sampleSpan() *span.Span {
	return span.New(span.Options{
		ID:          spanid.New(1, 2),
		Begin:       math.MinInt64 + 1,
		End:         math.MaxInt64,
		Description: "getFileDescriptors",
		TracerID:    "datanode-1",
		Parents:     []spanid.SpanId{spanid.New(9, 9), spanid.New(3, 3), spanid.New(9, 9)},
		Info:        map[string][]byte{"host": []byte("node-a")},
		Timeline:    []span.TimelineAnnotation{{Time: 100, Message: "start"}, {Time: 200, Message: "end"}},
	})
}

func TestNewDedupsAndSortsParents(t *testing.T) {
	s := sampleSpan()
	require.Len(t, s.Parents, 2)
	assert.True(t, s.Parents[0].Less(s.Parents[1]))
}

func TestBinaryRoundTrip(t *testing.T) {
	s := sampleSpan()
	decoded, err := span.Decode(s.Encode())
	require.NoError(t, err)
	assert.True(t, s.Equal(decoded))
}

func TestBinaryRoundTripZeroAndNegativeValues(t *testing.T) {
	s := span.New(span.Options{ID: spanid.New(0, 1), Begin: -1, End: 0})
	decoded, err := span.Decode(s.Encode())
	require.NoError(t, err)
	assert.True(t, s.Equal(decoded))
	assert.Equal(t, int64(0), decoded.Duration())
}

func TestJSONRoundTrip(t *testing.T) {
	s := sampleSpan()
	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded span.Span
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, s.Equal(&decoded))
}

func TestWriteJSONWritesOneEncodedObject(t *testing.T) {
	s := sampleSpan()
	var buf bytes.Buffer
	require.NoError(t, span.WriteJSON(&buf, s))

	var decoded span.Span
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.True(t, s.Equal(&decoded))
}

func TestDurationClampsAtZeroWhenEndBeforeBegin(t *testing.T) {
	s := span.New(span.Options{Begin: 200, End: 100})
	assert.Equal(t, int64(0), s.Duration())
}

func TestUnknownBinaryTagIsSkipped(t *testing.T) {
	s := sampleSpan()
	encoded := s.Encode()

	// Append an unrecognized tag with a length-prefixed payload; Decode
	// must skip it by length rather than fail.
	extended := append(append([]byte{}, encoded...), 200, 3, 'x', 'y', 'z')
	decoded, err := span.Decode(extended)
	require.NoError(t, err)
	assert.True(t, s.Equal(decoded))
}
