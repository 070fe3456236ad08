package store

import (
	"bytes"
	"context"
	"sync"

	"github.com/graaaaa/livekit-webhook-logger/internal/event"
)

// MemoryLog is the default event log. Records live until the process exits.
// Appends are serialized by a single writer lock; readers get a snapshot of
// fully written records.
type MemoryLog struct {
	mu      sync.RWMutex
	records []event.Record
	closed  bool
}

// NewMemoryLog creates an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// Append stores a copy of r and sets r.Seq to its position in the log.
func (m *MemoryLog) Append(ctx context.Context, r *event.Record) error {
	if err := ValidateRecord(r); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := *r
	stored.RawPayload = bytes.Clone(r.RawPayload)
	stored.ReceivedAt = r.ReceivedAt.UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if n := len(m.records); n > 0 {
		stored.ReceivedAt = NotBefore(stored.ReceivedAt, m.records[n-1].ReceivedAt)
	}
	stored.Seq = int64(len(m.records)) + 1
	m.records = append(m.records, stored)

	r.Seq = stored.Seq
	r.ReceivedAt = stored.ReceivedAt
	return nil
}

// Query returns records in insertion order.
func (m *MemoryLog) Query(ctx context.Context, f QueryFilter) (QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return QueryResult{}, err
	}

	var afterSeq int64
	if f.Cursor != nil && *f.Cursor != "" {
		_, seq, err := DecodeCursor(*f.Cursor)
		if err != nil {
			return QueryResult{}, err
		}
		afterSeq = seq
	}
	limit := EffectiveLimit(f.Limit)

	m.mu.RLock()
	snapshot := m.records
	m.mu.RUnlock()

	// snapshot shares the backing array, but entries below len(snapshot) are never rewritten.
	items := make([]event.Record, 0)
	var nextCursor *string
	for i := range snapshot {
		r := snapshot[i]
		if r.Seq <= afterSeq || !matches(&r, f) {
			continue
		}
		if limit > 0 && len(items) == limit {
			last := items[len(items)-1]
			c := EncodeCursor(last.ReceivedAt, last.Seq)
			nextCursor = &c
			break
		}
		items = append(items, r)
	}

	return QueryResult{
		Items:      items,
		Total:      int64(len(snapshot)),
		NextCursor: nextCursor,
	}, nil
}

// Count returns the number of stored records.
func (m *MemoryLog) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.records)), nil
}

// Stats aggregates the log by event type.
func (m *MemoryLog) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	snapshot := m.records
	m.mu.RUnlock()

	st := Stats{
		Total:  int64(len(snapshot)),
		ByType: make(map[string]int64),
	}
	for i := range snapshot {
		key := snapshot[i].EventType
		if key == "" {
			key = TypeKey
		}
		st.ByType[key]++
	}
	if len(snapshot) > 0 {
		first := snapshot[0].ReceivedAt
		last := snapshot[len(snapshot)-1].ReceivedAt
		st.FirstReceivedAt = &first
		st.LastReceivedAt = &last
	}
	return st, nil
}

// Close marks the log closed. Later appends fail with ErrClosed; reads keep working.
func (m *MemoryLog) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func matches(r *event.Record, f QueryFilter) bool {
	if f.Type != nil && *f.Type != "" && r.EventType != *f.Type {
		return false
	}
	if f.Since != nil && r.ReceivedAt.Before(f.Since.UTC()) {
		return false
	}
	if f.Until != nil && !r.ReceivedAt.Before(f.Until.UTC()) {
		return false
	}
	return true
}
