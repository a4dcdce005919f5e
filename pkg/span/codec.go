package span

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/htrace/htraced/pkg/spanid"
)

// Binary wire tags. Each encoded field is (tag byte, uvarint length,
// payload). An unrecognized tag is skipped by length, giving the format
// forward compatibility: a reader built against an older tag set can
// still decode a span written by a newer one.
const (
	tagID          = 1
	tagBegin       = 2
	tagEnd         = 3
	tagDescription = 4
	tagTracerID    = 5
	tagParent      = 6 // repeated
	tagInfo        = 7 // repeated, payload is key||value each length-prefixed
	tagTimeline    = 8 // repeated, payload is time||message
)

// ErrTruncated is returned when a binary span is cut short mid-field.
var ErrTruncated = errors.New("span: truncated encoding")

// ErrZeroID describes a span whose id is spanid.Invalid. Encode, Decode
// and New never return it: the codec encodes and decodes zero ids
// faithfully so that malformed input can still be inspected.
var ErrZeroID = errors.New("span: zero span id")

// Encode produces the self-describing tagged binary form used for both
// on-disk primary records and the binary RPC wire format.
func (s *Span) Encode() []byte {
	var buf bytes.Buffer
	writeField(&buf, tagID, s.ID[:])
	writeVarintField(&buf, tagBegin, s.Begin)
	writeVarintField(&buf, tagEnd, s.End)
	if s.Description != "" {
		writeField(&buf, tagDescription, []byte(s.Description))
	}
	if s.TracerID != "" {
		writeField(&buf, tagTracerID, []byte(s.TracerID))
	}
	for _, p := range s.Parents {
		writeField(&buf, tagParent, p[:])
	}
	for k, v := range s.Info {
		var kv bytes.Buffer
		writeLenPrefixed(&kv, []byte(k))
		writeLenPrefixed(&kv, v)
		writeField(&buf, tagInfo, kv.Bytes())
	}
	for _, t := range s.Timeline {
		var tv bytes.Buffer
		var tmp [binary.MaxVarintLen64]byte
		n := binary.PutVarint(tmp[:], t.Time)
		tv.Write(tmp[:n])
		writeLenPrefixed(&tv, []byte(t.Message))
		writeField(&buf, tagTimeline, tv.Bytes())
	}
	return buf.Bytes()
}

func writeField(buf *bytes.Buffer, tag byte, payload []byte) {
	buf.WriteByte(tag)
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(payload)))
	buf.Write(tmp[:n])
	buf.Write(payload)
}

func writeVarintField(buf *bytes.Buffer, tag byte, v int64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	writeField(buf, tag, tmp[:n])
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(b)))
	buf.Write(tmp[:n])
	buf.Write(b)
}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	l, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, ErrTruncated
	}
	b := make([]byte, l)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, ErrTruncated
	}
	return b, nil
}

// Decode parses the tagged binary form produced by Encode.
func Decode(data []byte) (*Span, error) {
	r := bytes.NewReader(data)
	s := &Span{}
	var info map[string][]byte
	for r.Len() > 0 {
		tag, err := r.ReadByte()
		if err != nil {
			return nil, ErrTruncated
		}
		payload, err := readLenPrefixed(r)
		if err != nil {
			return nil, err
		}
		switch tag {
		case tagID:
			id, err := spanid.FromBytes(payload)
			if err != nil {
				return nil, ErrTruncated
			}
			s.ID = id
		case tagBegin:
			v, n := binary.Varint(payload)
			if n <= 0 {
				return nil, ErrTruncated
			}
			s.Begin = v
		case tagEnd:
			v, n := binary.Varint(payload)
			if n <= 0 {
				return nil, ErrTruncated
			}
			s.End = v
		case tagDescription:
			s.Description = string(payload)
		case tagTracerID:
			s.TracerID = string(payload)
		case tagParent:
			id, err := spanid.FromBytes(payload)
			if err != nil {
				return nil, ErrTruncated
			}
			s.Parents = append(s.Parents, id)
		case tagInfo:
			pr := bytes.NewReader(payload)
			k, err := readLenPrefixed(pr)
			if err != nil {
				return nil, err
			}
			v, err := readLenPrefixed(pr)
			if err != nil {
				return nil, err
			}
			if info == nil {
				info = make(map[string][]byte)
			}
			info[string(k)] = v
		case tagTimeline:
			pr := bytes.NewReader(payload)
			t, err := binary.ReadVarint(pr)
			if err != nil {
				return nil, ErrTruncated
			}
			msg, err := readLenPrefixed(pr)
			if err != nil {
				return nil, err
			}
			s.Timeline = append(s.Timeline, TimelineAnnotation{Time: t, Message: string(msg)})
		default:
			// unknown tag: already consumed via its length prefix, skip.
		}
	}
	s.Info = info
	s.Parents = dedupSortedParents(s.Parents)
	return s, nil
}
