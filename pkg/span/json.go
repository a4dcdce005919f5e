package span

import (
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/htrace/htraced/pkg/spanid"
)

// jsonTimeline mirrors TimelineAnnotation with the wire's short keys.
type jsonTimeline struct {
	Time    int64  `json:"t"`
	Message string `json:"m"`
}

// jsonSpan is the single-letter-key wire form described in spec §4.A:
// s=id b=begin e=end d=description r=tracer-id p=parents n=info t=timeline.
// Info values are byte strings and travel base64-encoded, same as
// encoding/json does for a []byte field.
type jsonSpan struct {
	ID          spanid.SpanId           `json:"s"`
	Begin       int64                   `json:"b"`
	End         int64                   `json:"e"`
	Description string                  `json:"d,omitempty"`
	TracerID    string                  `json:"r,omitempty"`
	Parents     []spanid.SpanId         `json:"p,omitempty"`
	Info        map[string]string       `json:"n,omitempty"`
	Timeline    []jsonTimeline          `json:"t,omitempty"`
}

// MarshalJSON renders s in the wire's single-letter-key form.
func (s *Span) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.toWire())
}

func (s *Span) toWire() jsonSpan {
	js := jsonSpan{
		ID:          s.ID,
		Begin:       s.Begin,
		End:         s.End,
		Description: s.Description,
		TracerID:    s.TracerID,
		Parents:     s.Parents,
	}
	if len(s.Info) > 0 {
		js.Info = make(map[string]string, len(s.Info))
		for k, v := range s.Info {
			js.Info[k] = base64.StdEncoding.EncodeToString(v)
		}
	}
	if len(s.Timeline) > 0 {
		js.Timeline = make([]jsonTimeline, len(s.Timeline))
		for i, t := range s.Timeline {
			js.Timeline[i] = jsonTimeline{Time: t.Time, Message: t.Message}
		}
	}
	return js
}

// UnmarshalJSON parses the wire form back into s.
func (s *Span) UnmarshalJSON(data []byte) error {
	var js jsonSpan
	if err := json.Unmarshal(data, &js); err != nil {
		return err
	}
	var info map[string][]byte
	if len(js.Info) > 0 {
		info = make(map[string][]byte, len(js.Info))
		for k, v := range js.Info {
			b, err := base64.StdEncoding.DecodeString(v)
			if err != nil {
				return err
			}
			info[k] = b
		}
	}
	var timeline []TimelineAnnotation
	if len(js.Timeline) > 0 {
		timeline = make([]TimelineAnnotation, len(js.Timeline))
		for i, t := range js.Timeline {
			timeline[i] = TimelineAnnotation{Time: t.Time, Message: t.Message}
		}
	}
	*s = Span{
		ID:          js.ID,
		Begin:       js.Begin,
		End:         js.End,
		Description: js.Description,
		TracerID:    js.TracerID,
		Parents:     dedupSortedParents(js.Parents),
		Info:        info,
		Timeline:    timeline,
	}
	return nil
}

// WriteJSON writes s's wire-form JSON to w, per spec §4.A's
// codec.write_json contract used directly by the REST point-lookup
// handler.
func WriteJSON(w io.Writer, s *Span) error {
	return json.NewEncoder(w).Encode(s)
}
