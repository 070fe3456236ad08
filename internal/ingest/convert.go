package ingest

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/graaaaa/livekit-webhook-logger/internal/event"
)

// Clock provides time for deterministic testing.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// DefaultClock is used when no clock is configured.
var DefaultClock Clock = realClock{}

// ToRecord builds the record for a verified body. payload is the decoded body.
func ToRecord(body []byte, payload any, clk Clock) *event.Record {
	return &event.Record{
		ID:         uuid.NewString(),
		ReceivedAt: clk.Now().UTC(),
		EventType:  event.EventType(payload),
		RawPayload: json.RawMessage(append([]byte(nil), body...)),
		Fields:     event.Extract(payload),
	}
}

// Summary renders a one-line, human-readable description of a record,
// for example "participant_joined room=demo participant=bob".
func Summary(rec *event.Record) string {
	var sb strings.Builder
	if rec.EventType == "" {
		sb.WriteString("(untyped)")
	} else {
		sb.WriteString(rec.EventType)
	}

	f := rec.Fields
	if f.Room != nil {
		if name := roomLabel(f.Room); name != "" {
			sb.WriteString(" room=")
			sb.WriteString(name)
		}
	}
	if f.Participant != nil {
		if id := event.Deref(f.Participant.Identity); id != "" {
			sb.WriteString(" participant=")
			sb.WriteString(id)
		}
	}
	if f.Track != nil {
		if sid := event.Deref(f.Track.SID); sid != "" {
			sb.WriteString(" track=")
			sb.WriteString(sid)
			if kind := event.Deref(f.Track.Type); kind != "" {
				sb.WriteString("(" + strings.ToLower(kind) + ")")
			}
		}
	}
	if id := event.Deref(f.EgressID); id != "" {
		sb.WriteString(" egress=")
		sb.WriteString(id)
	}
	if id := event.Deref(f.IngressID); id != "" {
		sb.WriteString(" ingress=")
		sb.WriteString(id)
	}
	return sb.String()
}

func roomLabel(r *event.RoomInfo) string {
	if name := event.Deref(r.Name); name != "" {
		return name
	}
	return event.Deref(r.SID)
}
