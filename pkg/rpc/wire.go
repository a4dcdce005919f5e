// Package rpc implements the binary RPC boundary adapter from spec
// §4.I/§6: the same writeSpans/query/findSpan/findChildren contract the
// REST adapter exposes, carried over grpc-go's transport and framing
// but encoded with this package's own tagged binary messages instead of
// protobuf-generated code, via a codec registered through grpc's
// ForceServerCodec/ForceCodec extension points.
package rpc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/htrace/htraced/pkg/span"
	"github.com/htrace/htraced/pkg/spanid"
)

// ErrTruncated mirrors span.ErrTruncated for this package's own
// length-prefixed fields.
var ErrTruncated = errors.New("rpc: truncated message")

func putVarint(buf *bytes.Buffer, v int64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func getVarint(r *bytes.Reader) (int64, error) {
	v, err := binary.ReadVarint(r)
	if err != nil {
		return 0, ErrTruncated
	}
	return v, nil
}

func putBytes(buf *bytes.Buffer, b []byte) {
	putVarint(buf, int64(len(b)))
	buf.Write(b)
}

func getBytes(r *bytes.Reader) ([]byte, error) {
	n, err := getVarint(r)
	if err != nil || n < 0 {
		return nil, ErrTruncated
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, ErrTruncated
	}
	return b, nil
}

func putString(buf *bytes.Buffer, s string) { putBytes(buf, []byte(s)) }

func getString(r *bytes.Reader) (string, error) {
	b, err := getBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func putSpanID(buf *bytes.Buffer, id spanid.SpanId) { buf.Write(id[:]) }

func getSpanID(r *bytes.Reader) (spanid.SpanId, error) {
	var b [spanid.Size]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return spanid.SpanId{}, ErrTruncated
	}
	return spanid.FromBytes(b[:])
}

func putSpan(buf *bytes.Buffer, s *span.Span) { putBytes(buf, s.Encode()) }

func getSpan(r *bytes.Reader) (*span.Span, error) {
	b, err := getBytes(r)
	if err != nil {
		return nil, err
	}
	return span.Decode(b)
}
