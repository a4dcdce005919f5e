// Package spanid implements the 128-bit span identifier used throughout
// htraced: its wire encoding, ordering, and the hash used to route a span
// to a shard.
package spanid

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
)

// Size is the length in bytes of a SpanId.
const Size = 16

// ErrMalformed is returned when a hex string does not decode to a SpanId.
var ErrMalformed = errors.New("spanid: malformed hex string")

// SpanId is a 128-bit opaque identifier, compared lexicographically over
// its big-endian byte representation.
type SpanId [Size]byte

// Invalid is the all-zero span id. Spans carrying it are rejected on
// ingest.
var Invalid = SpanId{}

// Max is the all-ones span id, the largest possible value, used by the
// query executor to bound one side of a value-equality key range.
var Max = func() SpanId {
	var id SpanId
	for i := range id {
		id[i] = 0xff
	}
	return id
}()

// IsInvalid reports whether id is the all-zero id.
func (id SpanId) IsInvalid() bool {
	return id == Invalid
}

// Compare returns -1, 0 or 1 as id is less than, equal to, or greater
// than other, comparing big-endian byte order.
func (id SpanId) Compare(other SpanId) int {
	for i := 0; i < Size; i++ {
		if id[i] != other[i] {
			if id[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Less reports whether id sorts strictly before other.
func (id SpanId) Less(other SpanId) bool {
	return id.Compare(other) < 0
}

// Next returns id+1, carrying across the 16 bytes. Next of the maximum id
// wraps to Invalid, matching unsigned-integer overflow.
func (id SpanId) Next() SpanId {
	next := id
	for i := Size - 1; i >= 0; i-- {
		next[i]++
		if next[i] != 0 {
			break
		}
	}
	return next
}

// Bytes returns the canonical big-endian byte slice backing id.
func (id SpanId) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, id[:])
	return b
}

// High64 and Low64 expose the two halves as big-endian uint64s, convenient
// for hashing and for constructing ids in tests.
func (id SpanId) High64() uint64 {
	return binary.BigEndian.Uint64(id[0:8])
}

func (id SpanId) Low64() uint64 {
	return binary.BigEndian.Uint64(id[8:16])
}

// New builds a SpanId from a high/low 64-bit pair, big-endian.
func New(high, low uint64) SpanId {
	var id SpanId
	binary.BigEndian.PutUint64(id[0:8], high)
	binary.BigEndian.PutUint64(id[8:16], low)
	return id
}

// FromBytes copies a 16-byte slice into a SpanId.
func FromBytes(b []byte) (SpanId, error) {
	var id SpanId
	if len(b) != Size {
		return id, errors.New("spanid: wrong byte length")
	}
	copy(id[:], b)
	return id, nil
}

// String renders id as exactly 32 lowercase hex characters.
func (id SpanId) String() string {
	return hex.EncodeToString(id[:])
}

// MarshalJSON renders id as a quoted hex string, since JavaScript cannot
// hold a full 64-bit integer, let alone 128 bits.
func (id SpanId) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, Size*2+2)
	buf = append(buf, '"')
	buf = append(buf, id.String()...)
	buf = append(buf, '"')
	return buf, nil
}

// UnmarshalJSON parses the quoted hex string form.
func (id *SpanId) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return ErrMalformed
	}
	parsed, err := Parse(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Parse decodes exactly 32 lowercase or uppercase hex characters into a
// SpanId.
func Parse(s string) (SpanId, error) {
	var id SpanId
	if len(s) != Size*2 {
		return id, ErrMalformed
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, ErrMalformed
	}
	copy(id[:], b)
	return id, nil
}

// ByCompare sorts a slice of SpanId values ascending; it implements
// sort.Interface when combined with a slice type in callers that need it.
type ByCompare []SpanId

func (s ByCompare) Len() int           { return len(s) }
func (s ByCompare) Less(i, j int) bool { return s[i].Less(s[j]) }
func (s ByCompare) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
