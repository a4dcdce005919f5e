package spanid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htrace/htraced/pkg/spanid"
)

func TestStringIsThirtyTwoLowercaseHex(t *testing.T) {
	id := spanid.New(0x0123456789abcdef, 0xfedcba9876543210)
	s := id.String()
	assert.Len(t, s, 32)
	assert.Equal(t, "0123456789abcdeffedcba9876543210", s)

	assert.Equal(t, "00000000000000000000000000000000", spanid.Invalid.String())
}

func TestParseIsInverseOfString(t *testing.T) {
	id := spanid.New(1, 2)
	parsed, err := spanid.Parse(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := spanid.Parse("not-hex")
	assert.ErrorIs(t, err, spanid.ErrMalformed)

	_, err = spanid.Parse("abcd")
	assert.ErrorIs(t, err, spanid.ErrMalformed)
}

func TestCompareOrdersLikeBigEndianBytes(t *testing.T) {
	a := spanid.New(1, 0)
	b := spanid.New(1, 1)
	assert.True(t, a.Less(b))
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a))
}

func TestNextCarries(t *testing.T) {
	id := spanid.New(0, 0xffffffffffffffff)
	next := id.Next()
	assert.Equal(t, spanid.New(1, 0), next)

	assert.Equal(t, spanid.Invalid, spanid.Max.Next())
}

func TestJSONRoundTrip(t *testing.T) {
	id := spanid.New(42, 7)
	data, err := id.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"`+id.String()+`"`, string(data))

	var decoded spanid.SpanId
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.Equal(t, id, decoded)
}
