package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/graaaaa/livekit-webhook-logger/internal/event"
	"github.com/graaaaa/livekit-webhook-logger/internal/store"
)

// openTestDB connects to WEBHOOK_TEST_DATABASE_URL and empties the table.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("WEBHOOK_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("WEBHOOK_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := db.Pool.Exec(ctx, "TRUNCATE webhook_events"); err != nil {
		db.Close()
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func appendRecord(t *testing.T, db *DB, id, typ string, at time.Time) *event.Record {
	t.Helper()
	rec := &event.Record{
		ID:         id,
		ReceivedAt: at,
		EventType:  typ,
		RawPayload: json.RawMessage(fmt.Sprintf(`{ "event" : %q }`, typ)),
	}
	if err := db.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	return rec
}

func TestAppendAndQuery(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		rec := appendRecord(t, db, fmt.Sprintf("id-%d", i), event.TypeParticipantJoined, base.Add(time.Duration(i)*time.Second))
		if rec.Seq != int64(i+1) {
			t.Errorf("seq = %d, want %d", rec.Seq, i+1)
		}
	}

	res, err := db.Query(ctx, store.QueryFilter{Limit: 3})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Total != 5 || len(res.Items) != 3 || res.NextCursor == nil {
		t.Fatalf("page 1: total=%d items=%d cursor=%v", res.Total, len(res.Items), res.NextCursor)
	}
	if got := string(res.Items[0].RawPayload); got != `{ "event" : "participant_joined" }` {
		t.Errorf("raw payload not verbatim: %s", got)
	}

	res, err = db.Query(ctx, store.QueryFilter{Limit: 3, Cursor: res.NextCursor})
	if err != nil {
		t.Fatalf("Query page 2: %v", err)
	}
	if len(res.Items) != 2 || res.NextCursor != nil {
		t.Errorf("page 2: items=%d cursor=%v", len(res.Items), res.NextCursor)
	}
}

func TestStats(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	appendRecord(t, db, "a", event.TypeRoomStarted, base)
	appendRecord(t, db, "b", event.TypeRoomFinished, base.Add(time.Minute))

	st, err := db.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Total != 2 || st.ByType[event.TypeRoomStarted] != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.LastReceivedAt == nil || !st.LastReceivedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("LastReceivedAt = %v", st.LastReceivedAt)
	}
}

func TestAppend_ReceivedAtNeverDecreases(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	first := appendRecord(t, db, "a", event.TypeRoomStarted, base.Add(10*time.Second))
	late := appendRecord(t, db, "b", event.TypeRoomFinished, base.Add(5*time.Second))

	if !late.ReceivedAt.Equal(first.ReceivedAt) {
		t.Errorf("second received_at = %v, want clamped to %v", late.ReceivedAt, first.ReceivedAt)
	}
}
