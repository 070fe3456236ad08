// Package store defines the event log contract shared by all backends and
// provides the default in-memory log.
//
// Backends assign Record.Seq on append. Seq starts at 1 and increases by one per
// record, so ordering by Seq is insertion order.
package store

import (
	"context"
	"time"

	"github.com/graaaaa/livekit-webhook-logger/internal/event"
)

// Log is the append-only event log implemented by MemoryLog and the
// sqlite and postgres backends.
type Log interface {
	Append(ctx context.Context, r *event.Record) error
	Query(ctx context.Context, f QueryFilter) (QueryResult, error)
	Count(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

var _ Log = (*MemoryLog)(nil)

// TimeFormat is the fixed-width RFC3339 format used for timestamps.
// Using fixed width ensures lexicographic ordering matches chronological ordering.
const TimeFormat = "2006-01-02T15:04:05.000000000Z"

// MaxLimit caps a single page when a limit is requested.
const MaxLimit = 1000

// QueryFilter contains filter options for querying records.
// The zero value selects every record.
type QueryFilter struct {
	Since  *time.Time
	Until  *time.Time
	Type   *string
	Limit  int // 0 means no limit
	Cursor *string
}

// QueryResult contains the result of a query.
type QueryResult struct {
	Items      []event.Record
	Total      int64 // number of records in the log, ignoring the filter
	NextCursor *string
}

// Stats holds aggregate counts over the whole log.
type Stats struct {
	Total           int64            `json:"total_events"`
	ByType          map[string]int64 `json:"by_type"`
	FirstReceivedAt *time.Time       `json:"first_received_at"`
	LastReceivedAt  *time.Time       `json:"last_received_at"`
}

// EffectiveLimit clamps a requested limit. It returns 0 for "no limit".
func EffectiveLimit(limit int) int {
	switch {
	case limit <= 0:
		return 0
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// TypeKey is the ByType key used for records without an event type.
const TypeKey = "(none)"

// NotBefore returns t, or prev when t is earlier. Backends apply it to
// received_at under their writer lock, so received_at never decreases in
// seq order even when concurrent deliveries read the clock out of order.
func NotBefore(t, prev time.Time) time.Time {
	if t.Before(prev) {
		return prev
	}
	return t
}
