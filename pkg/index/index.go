// Package index derives the key/value store entries written for a span
// and builds/parses the composite scan keys used by the query executor.
// It implements the seven key families from spec §4.D:
//
//	P  span-id                    -> encoded span (primary record)
//	C  parent-id || child-id      -> empty        (parent->children)
//	B  begin-ms(be) || span-id    -> empty        (order by begin)
//	E  end-ms(be) || span-id      -> empty        (order by end)
//	D  duration(be) || span-id    -> empty        (order by duration)
//	S  description || span-id     -> empty        (order by description)
//	T  tracer-id || span-id       -> empty        (order by tracer id)
//
// All multi-byte integers are big-endian with the sign bit flipped, so
// lexicographic byte order equals numeric order including negatives.
package index

import (
	"encoding/binary"

	"github.com/htrace/htraced/pkg/span"
	"github.com/htrace/htraced/pkg/spanid"
)

// Prefix identifies a key family.
type Prefix byte

const (
	PrefixPrimary     Prefix = 'P'
	PrefixChildren    Prefix = 'C'
	PrefixBegin       Prefix = 'B'
	PrefixEnd         Prefix = 'E'
	PrefixDuration    Prefix = 'D'
	PrefixDescription Prefix = 'S'
	PrefixTracerID    Prefix = 'T'
)

// Entry is one key/value pair to write or delete as part of a span's
// index footprint. Delete distinguishes "remove this key" from "store an
// empty value" (several families, e.g. C, always carry an empty value).
type Entry struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// EncodeSortableInt64 flips the sign bit of a signed 64-bit integer and
// writes it big-endian, so that byte-lexicographic order equals numeric
// order across negative and positive values.
func EncodeSortableInt64(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v)^0x8000000000000000)
	return b
}

// DecodeSortableInt64 is the inverse of EncodeSortableInt64.
func DecodeSortableInt64(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b) ^ 0x8000000000000000)
}

func primaryKey(id spanid.SpanId) []byte {
	k := make([]byte, 0, 1+spanid.Size)
	k = append(k, byte(PrefixPrimary))
	return append(k, id[:]...)
}

func childKey(parent, child spanid.SpanId) []byte {
	k := make([]byte, 0, 1+2*spanid.Size)
	k = append(k, byte(PrefixChildren))
	k = append(k, parent[:]...)
	return append(k, child[:]...)
}

// ChildScanPrefix returns the prefix identifying all C-family keys for a
// given parent, used to range-scan its children.
func ChildScanPrefix(parent spanid.SpanId) []byte {
	k := make([]byte, 0, 1+spanid.Size)
	k = append(k, byte(PrefixChildren))
	return append(k, parent[:]...)
}

// ChildFromKey extracts the child id from a C-family key known to have
// ChildScanPrefix(parent) as its prefix.
func ChildFromKey(key []byte) (spanid.SpanId, error) {
	if len(key) != 1+2*spanid.Size {
		return spanid.SpanId{}, ErrMalformedKey
	}
	return spanid.FromBytes(key[1+spanid.Size:])
}

func sortableInt64Key(prefix Prefix, v int64, id spanid.SpanId) []byte {
	k := make([]byte, 0, 1+8+spanid.Size)
	k = append(k, byte(prefix))
	k = append(k, EncodeSortableInt64(v)...)
	return append(k, id[:]...)
}

func stringKey(prefix Prefix, s string, id spanid.SpanId) []byte {
	k := make([]byte, 0, 1+len(s)+spanid.Size)
	k = append(k, byte(prefix))
	k = append(k, s...)
	return append(k, id[:]...)
}

// SpanIDFromTailKey extracts the trailing span-id from any of the fixed
// or variable-width secondary keys.
func SpanIDFromTailKey(key []byte) (spanid.SpanId, error) {
	if len(key) < spanid.Size {
		return spanid.SpanId{}, ErrMalformedKey
	}
	return spanid.FromBytes(key[len(key)-spanid.Size:])
}

// EntriesForSpan returns every key/value pair that writing s must produce:
// one primary record, one C entry per parent, and one ordering entry in
// each of B/E/D/S/T.
func EntriesForSpan(s *span.Span) []Entry {
	entries := make([]Entry, 0, 5+len(s.Parents))
	entries = append(entries, Entry{Key: primaryKey(s.ID), Value: s.Encode()})
	for _, p := range s.Parents {
		entries = append(entries, Entry{Key: childKey(p, s.ID)})
	}
	entries = append(entries, Entry{Key: sortableInt64Key(PrefixBegin, s.Begin, s.ID)})
	entries = append(entries, Entry{Key: sortableInt64Key(PrefixEnd, s.End, s.ID)})
	entries = append(entries, Entry{Key: sortableInt64Key(PrefixDuration, s.Duration(), s.ID)})
	entries = append(entries, Entry{Key: stringKey(PrefixDescription, s.Description, s.ID)})
	entries = append(entries, Entry{Key: stringKey(PrefixTracerID, s.TracerID, s.ID)})
	return entries
}

// PrimaryKey exposes the P-family key for a span id, used by point
// lookups and by the query executor to resolve a candidate id to its
// full span.
func PrimaryKey(id spanid.SpanId) []byte {
	return primaryKey(id)
}

// IntKey builds the B/E/D-family key for a given value and span id,
// exported for the query executor's range-boundary construction.
func IntKey(prefix Prefix, v int64, id spanid.SpanId) []byte {
	return sortableInt64Key(prefix, v, id)
}

// StringFieldKey builds the S/T-family key for a given value and span
// id, exported for the query executor's range-boundary construction.
func StringFieldKey(prefix Prefix, s string, id spanid.SpanId) []byte {
	return stringKey(prefix, s, id)
}

// FamilyStart returns the lowest possible key in a family.
func FamilyStart(prefix Prefix) []byte {
	return []byte{byte(prefix)}
}

// FamilyEnd returns the exclusive upper bound of a family: the lowest
// key of the next prefix byte.
func FamilyEnd(prefix Prefix) []byte {
	return []byte{byte(prefix) + 1}
}

// ExclusiveUpperBound returns the smallest key strictly greater than
// key, used to turn an inclusive key boundary into the exclusive "end"
// argument RangeScan expects.
func ExclusiveUpperBound(key []byte) []byte {
	b := make([]byte, len(key)+1)
	copy(b, key)
	return b
}

// DeletionsForSpan returns delete markers for every entry EntriesForSpan
// would have written, for removing a span's whole index footprint in one
// PutBatch.
func DeletionsForSpan(s *span.Span) []Entry {
	entries := EntriesForSpan(s)
	for i := range entries {
		entries[i].Value = nil
		entries[i].Delete = true
	}
	return entries
}
