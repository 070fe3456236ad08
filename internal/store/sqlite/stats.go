package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/graaaaa/livekit-webhook-logger/internal/store"
)

// Stats aggregates the whole log by event type.
func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	st := store.Stats{ByType: make(map[string]int64)}

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_type, COUNT(*) FROM events
		GROUP BY event_type
	`)
	if err != nil {
		return store.Stats{}, fmt.Errorf("count by type: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			typ string
			n   int64
		)
		if err := rows.Scan(&typ, &n); err != nil {
			return store.Stats{}, err
		}
		if typ == "" {
			typ = store.TypeKey
		}
		st.ByType[typ] += n
		st.Total += n
	}
	if err := rows.Err(); err != nil {
		return store.Stats{}, err
	}

	// First and last by insertion order, not by timestamp.
	var first, last sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT received_at FROM events ORDER BY seq ASC LIMIT 1),
			(SELECT received_at FROM events ORDER BY seq DESC LIMIT 1)
	`).Scan(&first, &last)
	if err != nil {
		return store.Stats{}, fmt.Errorf("first/last received_at: %w", err)
	}
	if st.FirstReceivedAt, err = parseNullTime(first); err != nil {
		return store.Stats{}, err
	}
	if st.LastReceivedAt, err = parseNullTime(last); err != nil {
		return store.Stats{}, err
	}

	return st, nil
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	t, err := time.Parse(store.TimeFormat, v.String)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", v.String, err)
	}
	return &t, nil
}
