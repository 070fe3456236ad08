package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/graaaaa/livekit-webhook-logger/internal/event"
	"github.com/graaaaa/livekit-webhook-logger/internal/store"
)

var _ store.Log = (*DB)(nil)

// appendLockKey is the advisory lock that makes Append the single writer
// across every process sharing the database.
const appendLockKey = 0x6c6b686f6f6b // "lkhook"

// Append inserts rec as the next record of the log and sets rec.Seq.
// received_at is stored with microsecond precision.
func (db *DB) Append(ctx context.Context, rec *event.Record) error {
	if err := store.ValidateRecord(rec); err != nil {
		return err
	}
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	receivedAt := rec.ReceivedAt.UTC().Truncate(time.Microsecond)

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", int64(appendLockKey)); err != nil {
		return fmt.Errorf("lock: %w", err)
	}

	var (
		seq  int64
		last *time.Time
	)
	err = tx.QueryRow(ctx, `
SELECT COALESCE(MAX(seq), 0) + 1,
       (SELECT received_at FROM webhook_events ORDER BY seq DESC LIMIT 1)
FROM webhook_events`).Scan(&seq, &last)
	if err != nil {
		return fmt.Errorf("next seq: %w", err)
	}
	if last != nil {
		receivedAt = store.NotBefore(receivedAt, last.UTC())
	}

	_, err = tx.Exec(ctx, `
INSERT INTO webhook_events (seq, id, received_at, event_type, raw_payload, fields)
VALUES ($1, $2, $3, $4, $5, $6::jsonb)`,
		seq, rec.ID, receivedAt, rec.EventType, []byte(rec.RawPayload), string(fields))
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	rec.Seq = seq
	rec.ReceivedAt = receivedAt
	return nil
}

// Query returns records in insertion order.
func (db *DB) Query(ctx context.Context, f store.QueryFilter) (store.QueryResult, error) {
	limit := store.EffectiveLimit(f.Limit)

	cond := "WHERE 1=1"
	args := []any{}
	idx := 1

	if f.Since != nil {
		cond += fmt.Sprintf(" AND received_at >= $%d", idx)
		args = append(args, f.Since.UTC())
		idx++
	}
	if f.Until != nil {
		cond += fmt.Sprintf(" AND received_at < $%d", idx)
		args = append(args, f.Until.UTC())
		idx++
	}
	if f.Type != nil && *f.Type != "" {
		cond += fmt.Sprintf(" AND event_type = $%d", idx)
		args = append(args, *f.Type)
		idx++
	}
	if f.Cursor != nil && *f.Cursor != "" {
		_, afterSeq, err := store.DecodeCursor(*f.Cursor)
		if err != nil {
			return store.QueryResult{}, fmt.Errorf("decode cursor: %w", err)
		}
		cond += fmt.Sprintf(" AND seq > $%d", idx)
		args = append(args, afterSeq)
		idx++
	}

	sql := "SELECT seq, id, received_at, event_type, raw_payload, fields FROM webhook_events " + cond + " ORDER BY seq ASC"
	if limit > 0 {
		sql += fmt.Sprintf(" LIMIT $%d", idx)
		args = append(args, limit+1)
	}

	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return store.QueryResult{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var total int64
	if err := tx.QueryRow(ctx, "SELECT COUNT(*)::bigint FROM webhook_events").Scan(&total); err != nil {
		return store.QueryResult{}, fmt.Errorf("count records: %w", err)
	}

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return store.QueryResult{}, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	items := make([]event.Record, 0)
	for rows.Next() {
		var (
			rec    event.Record
			raw    []byte
			fields []byte
		)
		if err := rows.Scan(&rec.Seq, &rec.ID, &rec.ReceivedAt, &rec.EventType, &raw, &fields); err != nil {
			return store.QueryResult{}, fmt.Errorf("scan record: %w", err)
		}
		if err := json.Unmarshal(fields, &rec.Fields); err != nil {
			return store.QueryResult{}, fmt.Errorf("decode fields of %s: %w", rec.ID, err)
		}
		rec.ReceivedAt = rec.ReceivedAt.UTC()
		rec.RawPayload = json.RawMessage(raw)
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

// Count returns the number of stored records.
func (db *DB) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := db.Pool.QueryRow(ctx, "SELECT COUNT(*)::bigint FROM webhook_events").Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Stats aggregates the log by event type.
func (db *DB) Stats(ctx context.Context) (store.Stats, error) {
	st := store.Stats{ByType: make(map[string]int64)}

	rows, err := db.Pool.Query(ctx, "SELECT event_type, COUNT(*)::bigint FROM webhook_events GROUP BY event_type")
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
			return store.Stats{}, fmt.Errorf("scan count: %w", err)
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

	var first, last *time.Time
	err = db.Pool.QueryRow(ctx, `
SELECT
  (SELECT received_at FROM webhook_events ORDER BY seq ASC LIMIT 1),
  (SELECT received_at FROM webhook_events ORDER BY seq DESC LIMIT 1)`).Scan(&first, &last)
	if err != nil {
		return store.Stats{}, fmt.Errorf("first/last received_at: %w", err)
	}
	if first != nil {
		t := first.UTC()
		st.FirstReceivedAt = &t
	}
	if last != nil {
		t := last.UTC()
		st.LastReceivedAt = &t
	}
	return st, nil
}
