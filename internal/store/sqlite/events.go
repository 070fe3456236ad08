package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/graaaaa/livekit-webhook-logger/internal/event"
	"github.com/graaaaa/livekit-webhook-logger/internal/store"
)

// Append inserts rec as the next record of the log and sets rec.Seq.
func (s *Store) Append(ctx context.Context, rec *event.Record) error {
	if err := store.ValidateRecord(rec); err != nil {
		return err
	}
	row, err := recordToRow(rec)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var (
		seq  int64
		last sql.NullString
	)
	const nextQuery = `
	SELECT COALESCE(MAX(seq), 0) + 1,
	       (SELECT received_at FROM events ORDER BY seq DESC LIMIT 1)
	FROM events
	`
	if err := tx.QueryRowContext(ctx, nextQuery).Scan(&seq, &last); err != nil {
		return fmt.Errorf("next seq: %w", err)
	}
	receivedAt := rec.ReceivedAt.UTC()
	if last.Valid {
		prev, err := time.Parse(store.TimeFormat, last.String)
		if err != nil {
			return fmt.Errorf("parse last received_at %q: %w", last.String, err)
		}
		receivedAt = store.NotBefore(receivedAt, prev)
	}
	row.ReceivedAt = receivedAt.Format(store.TimeFormat)

	const query = `
	INSERT INTO events (seq, id, received_at, event_type, raw_payload, fields_json)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query,
		seq, row.ID, row.ReceivedAt, row.EventType, row.RawPayload, row.FieldsJSON,
	); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	rec.Seq = seq
	rec.ReceivedAt = receivedAt
	return nil
}

// Query returns records in insertion order with optional filters and
// cursor-based pagination.
func (s *Store) Query(ctx context.Context, f store.QueryFilter) (store.QueryResult, error) {
	limit := store.EffectiveLimit(f.Limit)

	var (
		sb   strings.Builder
		args []any
	)

	sb.WriteString(`
SELECT seq, id, received_at, event_type, raw_payload, fields_json
FROM events
WHERE 1=1
`)

	if f.Since != nil {
		sb.WriteString(" AND received_at >= ?")
		args = append(args, f.Since.UTC().Format(store.TimeFormat))
	}
	if f.Until != nil {
		sb.WriteString(" AND received_at < ?")
		args = append(args, f.Until.UTC().Format(store.TimeFormat))
	}
	if f.Type != nil && *f.Type != "" {
		sb.WriteString(" AND event_type = ?")
		args = append(args, *f.Type)
	}
	if f.Cursor != nil && *f.Cursor != "" {
		_, afterSeq, err := store.DecodeCursor(*f.Cursor)
		if err != nil {
			return store.QueryResult{}, fmt.Errorf("decode cursor: %w", err)
		}
		sb.WriteString(" AND seq > ?")
		args = append(args, afterSeq)
	}

	sb.WriteString(" ORDER BY seq ASC")
	if limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, limit+1) // fetch one extra to detect next page
	}

	// Total and page come from one read transaction so they agree.
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return store.QueryResult{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var total int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&total); err != nil {
		return store.QueryResult{}, fmt.Errorf("count records: %w", err)
	}

	rows, err := tx.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return store.QueryResult{}, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	items := make([]event.Record, 0)
	for rows.Next() {
		var r eventRow
		if err := rows.Scan(&r.Seq, &r.ID, &r.ReceivedAt, &r.EventType, &r.RawPayload, &r.FieldsJSON); err != nil {
			return store.QueryResult{}, fmt.Errorf("scan record: %w", err)
		}
		rec, err := r.toRecord()
		if err != nil {
			return store.QueryResult{}, err
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return store.QueryResult{}, fmt.Errorf("rows error: %w", err)
	}

	var nextCursor *string
	if limit > 0 && len(items) > limit {
		last := items[limit-1]
		items = items[:limit]
		c := store.EncodeCursor(last.ReceivedAt, last.Seq)
		nextCursor = &c
	}

	return store.QueryResult{Items: items, Total: total, NextCursor: nextCursor}, nil
}

// Count returns the total number of records in the database.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}
