package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Decode parses a webhook body. Any syntactically valid JSON value except null is accepted;
// numbers are kept as json.Number so large int64 values survive.
func Decode(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	// Reject trailing data such as `{} {}`.
	if rest := bytes.TrimSpace(body[dec.InputOffset():]); len(rest) > 0 {
		return nil, fmt.Errorf("decode payload: unexpected data after JSON value")
	}
	if v == nil {
		return nil, fmt.Errorf("decode payload: null payload")
	}
	return v, nil
}

// EventType returns the top-level "event" string of a decoded payload,
// or "" when the payload is not an object or the field is missing.
func EventType(payload any) string {
	obj, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	return Deref(stringAt(obj, "event"))
}

// Extract maps a decoded payload to Fields. It never fails: lookups that hit a
// missing key or an unexpected type leave the corresponding field nil.
func Extract(payload any) Fields {
	obj, ok := payload.(map[string]any)
	if !ok {
		return Fields{}
	}

	f := Fields{
		EventID:   stringAt(obj, "id"),
		CreatedAt: intAt(obj, "createdAt"),
	}

	if room := objectAt(obj, "room"); room != nil {
		f.Room = &RoomInfo{
			SID:             stringAt(room, "sid"),
			Name:            stringAt(room, "name"),
			NumParticipants: intAt(room, "numParticipants"),
			NumPublishers:   intAt(room, "numPublishers"),
			MaxParticipants: intAt(room, "maxParticipants"),
			CreationTime:    intAt(room, "creationTime"),
			Metadata:        stringAt(room, "metadata"),
			ActiveRecording: boolAt(room, "activeRecording"),
		}
	}

	if p := objectAt(obj, "participant"); p != nil {
		f.Participant = &ParticipantInfo{
			SID:      stringAt(p, "sid"),
			Identity: stringAt(p, "identity"),
			Name:     stringAt(p, "name"),
			State:    stringAt(p, "state"),
			Kind:     stringAt(p, "kind"),
			JoinedAt: intAt(p, "joinedAt"),
		}
	}

	if t := objectAt(obj, "track"); t != nil {
		f.Track = &TrackInfo{
			SID:    stringAt(t, "sid"),
			Type:   stringAt(t, "type"),
			Name:   stringAt(t, "name"),
			Source: stringAt(t, "source"),
			Muted:  boolAt(t, "muted"),
		}
	}

	if eg := objectAt(obj, "egressInfo"); eg != nil {
		f.EgressID = stringAt(eg, "egressId")
	}
	if in := objectAt(obj, "ingressInfo"); in != nil {
		f.IngressID = stringAt(in, "ingressId")
	}

	return f
}

func objectAt(m map[string]any, key string) map[string]any {
	v, ok := m[key].(map[string]any)
	if !ok {
		return nil
	}
	return v
}

func stringAt(m map[string]any, key string) *string {
	v, ok := m[key].(string)
	if !ok {
		return nil
	}
	return &v
}

func boolAt(m map[string]any, key string) *bool {
	v, ok := m[key].(bool)
	if !ok {
		return nil
	}
	return &v
}

// intAt accepts JSON numbers and numeric strings. Protobuf JSON encodes
// int64 fields such as createdAt and joinedAt as strings.
func intAt(m map[string]any, key string) *int64 {
	switch v := m[key].(type) {
	case json.Number:
		return parseInt(v.String())
	case string:
		return parseInt(strings.TrimSpace(v))
	case float64:
		if v != math.Trunc(v) {
			return nil
		}
		n := int64(v)
		return &n
	default:
		return nil
	}
}

func parseInt(s string) *int64 {
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &n
	}
	// Accept integral floats like "1.7e9".
	fv, err := strconv.ParseFloat(s, 64)
	if err != nil || fv != math.Trunc(fv) || math.IsInf(fv, 0) {
		return nil
	}
	n := int64(fv)
	return &n
}
