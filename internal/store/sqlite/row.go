package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/graaaaa/livekit-webhook-logger/internal/event"
	"github.com/graaaaa/livekit-webhook-logger/internal/store"
)

// eventRow is the internal type representing a database row.
type eventRow struct {
	Seq        int64
	ID         string
	ReceivedAt string
	EventType  string
	RawPayload []byte
	FieldsJSON string
}

// toRecord converts a database row to a Record.
func (r *eventRow) toRecord() (event.Record, error) {
	receivedAt, err := time.Parse(store.TimeFormat, r.ReceivedAt)
	if err != nil {
		return event.Record{}, fmt.Errorf("parse received_at %q: %w", r.ReceivedAt, err)
	}

	var fields event.Fields
	if err := json.Unmarshal([]byte(r.FieldsJSON), &fields); err != nil {
		return event.Record{}, fmt.Errorf("decode fields of %s: %w", r.ID, err)
	}

	return event.Record{
		ID:         r.ID,
		Seq:        r.Seq,
		ReceivedAt: receivedAt,
		EventType:  r.EventType,
		RawPayload: json.RawMessage(r.RawPayload),
		Fields:     fields,
	}, nil
}

// recordToRow converts a Record to a database row. Seq is filled in by Append.
func recordToRow(rec *event.Record) (*eventRow, error) {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	return &eventRow{
		ID:         rec.ID,
		ReceivedAt: rec.ReceivedAt.UTC().Format(store.TimeFormat),
		EventType:  rec.EventType,
		RawPayload: rec.RawPayload,
		FieldsJSON: string(fields),
	}, nil
}
