package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/graaaaa/livekit-webhook-logger/internal/event"
	"github.com/graaaaa/livekit-webhook-logger/internal/store"
)

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.sqlite")

	st, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}

	journalMode, err := st.journalMode()
	if err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want %q", journalMode, "wal")
	}
}

func TestOpen_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.sqlite")

	st, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	appendRecord(t, st, "a", event.TypeRoomStarted, time.Now())
	st.Close()

	st, err = Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()

	rec := appendRecord(t, st, "b", event.TypeRoomFinished, time.Now())
	if rec.Seq != 2 {
		t.Errorf("seq after reopen = %d, want 2", rec.Seq)
	}
}

func TestAppend_RoundTrip(t *testing.T) {
	st := openTestStore(t)
	defer st.Close()

	ctx := context.Background()
	body := `{"event":"participant_joined",  "room":{"sid":"RM_1"},"participant":{"identity":"bob"}}`
	rec := &event.Record{
		ID:         "rec-1",
		ReceivedAt: time.Date(2024, 1, 1, 12, 0, 0, 123, time.UTC),
		EventType:  event.TypeParticipantJoined,
		RawPayload: json.RawMessage(body),
		Fields: event.Fields{
			Room:        &event.RoomInfo{SID: event.StringPtr("RM_1")},
			Participant: &event.ParticipantInfo{Identity: event.StringPtr("bob")},
		},
	}
	if err := st.Append(ctx, rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if rec.Seq != 1 {
		t.Errorf("seq = %d, want 1", rec.Seq)
	}

	res, err := st.Query(ctx, store.QueryFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("got %d items, want 1", len(res.Items))
	}
	got := res.Items[0]
	if string(got.RawPayload) != body {
		t.Errorf("raw payload = %s, want verbatim %s", got.RawPayload, body)
	}
	if !got.ReceivedAt.Equal(rec.ReceivedAt) {
		t.Errorf("received_at = %v, want %v", got.ReceivedAt, rec.ReceivedAt)
	}
	if got.Fields.Room == nil || event.Deref(got.Fields.Room.SID) != "RM_1" {
		t.Errorf("room = %+v", got.Fields.Room)
	}
	if got.Fields.Track != nil {
		t.Error("expected track to stay absent")
	}
}

func TestAppend_Validation(t *testing.T) {
	st := openTestStore(t)
	defer st.Close()

	ctx := context.Background()
	now := time.Now()

	tests := []struct {
		name string
		rec  *event.Record
	}{
		{"nil", nil},
		{"missing id", &event.Record{ReceivedAt: now, RawPayload: json.RawMessage(`{}`)}},
		{"missing received_at", &event.Record{ID: "x", RawPayload: json.RawMessage(`{}`)}},
		{"missing payload", &event.Record{ID: "x", ReceivedAt: now}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := st.Append(ctx, tt.rec); !errors.Is(err, store.ErrInvalidRecord) {
				t.Errorf("expected ErrInvalidRecord, got %v", err)
			}
		})
	}
}

func TestAppend_DuplicateIDFailsWithoutPartialWrite(t *testing.T) {
	st := openTestStore(t)
	defer st.Close()

	ctx := context.Background()
	appendRecord(t, st, "same", event.TypeRoomStarted, time.Now())

	dup := &event.Record{ID: "same", ReceivedAt: time.Now(), EventType: event.TypeRoomStarted, RawPayload: json.RawMessage(`{}`)}
	if err := st.Append(ctx, dup); err == nil {
		t.Fatal("expected duplicate id to fail")
	}

	count, err := st.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestAppend_Concurrent(t *testing.T) {
	st := openTestStore(t)
	defer st.Close()

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := &event.Record{
				ID:         fmt.Sprintf("id-%d", i),
				ReceivedAt: time.Now(),
				EventType:  event.TypeTrackPublished,
				RawPayload: json.RawMessage(`{}`),
			}
			if err := st.Append(context.Background(), rec); err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	res, err := st.Query(context.Background(), store.QueryFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Items) != n {
		t.Fatalf("got %d items, want %d", len(res.Items), n)
	}
	for i, item := range res.Items {
		if item.Seq != int64(i+1) {
			t.Fatalf("items[%d].Seq = %d, want %d", i, item.Seq, i+1)
		}
	}
}

func TestQuery_Pagination(t *testing.T) {
	st := openTestStore(t)
	defer st.Close()

	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		appendRecord(t, st, fmt.Sprintf("id-%d", i), event.TypeParticipantJoined, base.Add(time.Duration(i)*time.Minute))
	}

	result, err := st.Query(ctx, store.QueryFilter{Limit: 5})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result.Items) != 5 {
		t.Errorf("got %d items, want 5", len(result.Items))
	}
	if result.Total != 10 {
		t.Errorf("total = %d, want 10", result.Total)
	}
	if result.NextCursor == nil {
		t.Fatal("expected NextCursor to be set")
	}

	result2, err := st.Query(ctx, store.QueryFilter{Limit: 5, Cursor: result.NextCursor})
	if err != nil {
		t.Fatalf("Query page 2: %v", err)
	}
	if len(result2.Items) != 5 {
		t.Errorf("page 2 got %d items, want 5", len(result2.Items))
	}
	if result2.Items[0].Seq != 6 {
		t.Errorf("page 2 starts at seq %d, want 6", result2.Items[0].Seq)
	}
	if result2.NextCursor != nil {
		t.Error("expected NextCursor to be nil on last page")
	}
}

func TestQuery_FilterByTypeAndTime(t *testing.T) {
	st := openTestStore(t)
	defer st.Close()

	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	appendRecord(t, st, "a", event.TypeParticipantJoined, base)
	appendRecord(t, st, "b", event.TypeParticipantLeft, base.Add(time.Hour))
	appendRecord(t, st, "c", event.TypeParticipantJoined, base.Add(2*time.Hour))
	appendRecord(t, st, "d", event.TypeRoomFinished, base.Add(3*time.Hour))

	joinType := event.TypeParticipantJoined
	result, err := st.Query(ctx, store.QueryFilter{Type: &joinType})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result.Items) != 2 {
		t.Errorf("got %d items, want 2", len(result.Items))
	}

	since := base.Add(time.Hour)
	until := base.Add(3 * time.Hour)
	result, err = st.Query(ctx, store.QueryFilter{Since: &since, Until: &until})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result.Items) != 2 || result.Items[0].ID != "b" || result.Items[1].ID != "c" {
		t.Errorf("time window returned %+v", result.Items)
	}
}

func TestQuery_InvalidCursor(t *testing.T) {
	st := openTestStore(t)
	defer st.Close()

	bad := "not-valid-base64!!!"
	_, err := st.Query(context.Background(), store.QueryFilter{Cursor: &bad})
	if !errors.Is(err, store.ErrInvalidCursor) {
		t.Errorf("expected ErrInvalidCursor, got %v", err)
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.sqlite")
	st, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return st
}

func appendRecord(t *testing.T, st *Store, id, typ string, at time.Time) *event.Record {
	t.Helper()
	rec := &event.Record{
		ID:         id,
		ReceivedAt: at,
		EventType:  typ,
		RawPayload: json.RawMessage(fmt.Sprintf(`{"event":%q}`, typ)),
	}
	if err := st.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	return rec
}

func TestAppend_ReceivedAtNeverDecreases(t *testing.T) {
	st := openTestStore(t)
	defer st.Close()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	first := appendRecord(t, st, "a", event.TypeRoomStarted, base.Add(10*time.Second))
	late := appendRecord(t, st, "b", event.TypeRoomFinished, base.Add(5*time.Second))

	if !late.ReceivedAt.Equal(first.ReceivedAt) {
		t.Errorf("second received_at = %v, want clamped to %v", late.ReceivedAt, first.ReceivedAt)
	}
	res, err := st.Query(context.Background(), store.QueryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Items[1].ReceivedAt.Equal(res.Items[0].ReceivedAt) {
		t.Errorf("stored received_at = %v then %v", res.Items[0].ReceivedAt, res.Items[1].ReceivedAt)
	}
}
