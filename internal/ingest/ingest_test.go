package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/graaaaa/livekit-webhook-logger/internal/event"
	"github.com/graaaaa/livekit-webhook-logger/internal/signature"
	"github.com/graaaaa/livekit-webhook-logger/internal/store"
)

const testSecret = "test-secret"

type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time {
	return c.t
}

// mockStore implements EventStore for testing.
type mockStore struct {
	mu       sync.Mutex
	appended []event.Record
	appendFn func(ctx context.Context, r *event.Record) error
}

func (m *mockStore) Append(ctx context.Context, r *event.Record) error {
	if m.appendFn != nil {
		if err := m.appendFn(ctx, r); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Seq = int64(len(m.appended)) + 1
	m.appended = append(m.appended, *r)
	return nil
}

func (m *mockStore) records() []event.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]event.Record(nil), m.appended...)
}

func delivery(body string, sig string) Delivery {
	return Delivery{Body: strings.NewReader(body), Signature: sig, RemoteAddr: "10.0.0.1:5555"}
}

func signed(body string) Delivery {
	return delivery(body, signature.Sign(testSecret, []byte(body)))
}

func newTestPipeline(st EventStore, opts ...Option) *Pipeline {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))}, opts...)
	return New(signature.NewVerifier(testSecret), st, opts...)
}

func TestReceive_StoresSignedDelivery(t *testing.T) {
	st := &mockStore{}
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	p := newTestPipeline(st, WithClock(&testClock{t: now}))

	body := `{"event":"participant_joined", "room":{"sid":"RM_1","name":"r"},"participant":{"sid":"PA_1","identity":"bob"}}`
	rec, err := p.Receive(context.Background(), signed(body))
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}

	if rec.EventType != event.TypeParticipantJoined {
		t.Errorf("EventType = %q", rec.EventType)
	}
	if !rec.ReceivedAt.Equal(now) {
		t.Errorf("ReceivedAt = %v, want %v", rec.ReceivedAt, now)
	}
	if string(rec.RawPayload) != body {
		t.Errorf("RawPayload = %s, want verbatim body", rec.RawPayload)
	}
	if rec.ID == "" {
		t.Error("expected an id")
	}
	if event.Deref(rec.Fields.Room.SID) != "RM_1" || event.Deref(rec.Fields.Participant.Identity) != "bob" {
		t.Errorf("fields = %+v", rec.Fields)
	}
	if rec.Fields.Track != nil {
		t.Error("expected track to be absent")
	}

	if got := st.records(); len(got) != 1 || got[0].ID != rec.ID {
		t.Errorf("stored = %+v", got)
	}
}

func TestReceive_UnknownEventTypeAccepted(t *testing.T) {
	st := &mockStore{}
	p := newTestPipeline(st)

	for _, body := range []string{`{"event":"some_future_event"}`, `{}`, `[1,2]`} {
		rec, err := p.Receive(context.Background(), signed(body))
		if err != nil {
			t.Fatalf("Receive(%s): %v", body, err)
		}
		if string(rec.RawPayload) != body {
			t.Errorf("RawPayload = %s, want %s", rec.RawPayload, body)
		}
	}
	if n := len(st.records()); n != 3 {
		t.Errorf("stored %d records, want 3", n)
	}
}

func TestReceive_Rejections(t *testing.T) {
	body := `{"event":"room_started"}`
	tests := []struct {
		name   string
		d      Delivery
		secret string
		want   Reason
	}{
		{"missing signature", delivery(body, ""), testSecret, ReasonSignature},
		{"wrong signature", delivery(body, signature.Sign("other", []byte(body))), testSecret, ReasonSignature},
		{"signature of other body", delivery(body, signature.Sign(testSecret, []byte(`{}`))), testSecret, ReasonSignature},
		{"no secret configured", delivery(body, signature.Sign("", []byte(body))), "", ReasonSignature},
		{"malformed json", signed(`{"event":`), testSecret, ReasonMalformed},
		{"empty body", signed(``), testSecret, ReasonMalformed},
		{"nil body", Delivery{Signature: "00"}, testSecret, ReasonMalformed},
		{"null body", signed(`null`), testSecret, ReasonMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &mockStore{}
			p := New(signature.NewVerifier(tt.secret), st,
				WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))

			rec, err := p.Receive(context.Background(), tt.d)
			if rec != nil {
				t.Error("expected no record")
			}
			var re *RejectError
			if !errors.As(err, &re) {
				t.Fatalf("error = %v, want *RejectError", err)
			}
			if re.Reason != tt.want {
				t.Errorf("reason = %v, want %v", re.Reason, tt.want)
			}
			if n := len(st.records()); n != 0 {
				t.Errorf("store has %d records after rejection", n)
			}
		})
	}
}

func TestReceive_TooLarge(t *testing.T) {
	st := &mockStore{}
	p := newTestPipeline(st, WithMaxBodyBytes(16))

	body := `{"event":"room_started","pad":"xxxxxxxx"}`
	_, err := p.Receive(context.Background(), signed(body))
	var re *RejectError
	if !errors.As(err, &re) || re.Reason != ReasonTooLarge {
		t.Fatalf("error = %v, want ReasonTooLarge", err)
	}
}

// countingReader records whether anything read from it.
type countingReader struct {
	r     io.Reader
	reads int
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads++
	return c.r.Read(p)
}

func TestReceive_MissingSignatureSkipsBody(t *testing.T) {
	st := &mockStore{}
	p := newTestPipeline(st, WithMaxBodyBytes(16))

	body := &countingReader{r: strings.NewReader(strings.Repeat("x", 1024))}
	_, err := p.Receive(context.Background(), Delivery{Body: body})
	var re *RejectError
	if !errors.As(err, &re) || re.Reason != ReasonSignature {
		t.Fatalf("error = %v, want ReasonSignature", err)
	}
	if body.reads != 0 {
		t.Errorf("body read %d times before signature check", body.reads)
	}
}

func TestReceive_NoSecretSkipsBody(t *testing.T) {
	p := New(signature.NewVerifier(""), &mockStore{},
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))

	body := &countingReader{r: strings.NewReader(`{"event":"room_started"}`)}
	_, err := p.Receive(context.Background(), Delivery{Body: body, Signature: "abcd"})
	var re *RejectError
	if !errors.As(err, &re) || re.Reason != ReasonSignature {
		t.Fatalf("error = %v, want ReasonSignature", err)
	}
	if body.reads != 0 {
		t.Errorf("body read %d times without a secret", body.reads)
	}
}

func TestReceive_MaxBytesReaderIsTooLarge(t *testing.T) {
	st := &mockStore{}
	p := newTestPipeline(st)

	body := `{"event":"room_started"}`
	rr := httptest.NewRecorder()
	limited := http.MaxBytesReader(rr, io.NopCloser(strings.NewReader(body)), 4)

	_, err := p.Receive(context.Background(), Delivery{Body: limited, Signature: signature.Sign(testSecret, []byte(body))})
	var re *RejectError
	if !errors.As(err, &re) || re.Reason != ReasonTooLarge {
		t.Fatalf("error = %v, want ReasonTooLarge", err)
	}
}

func TestReceive_StoreFailure(t *testing.T) {
	storeErr := errors.New("disk full")
	st := &mockStore{appendFn: func(context.Context, *event.Record) error { return storeErr }}

	hookCalled := false
	p := newTestPipeline(st, WithOnInsert("tracker", func(context.Context, event.Record) error {
		hookCalled = true
		return nil
	}))

	_, err := p.Receive(context.Background(), signed(`{"event":"room_started"}`))
	if !errors.Is(err, storeErr) {
		t.Fatalf("error = %v, want wrapped store error", err)
	}
	var re *RejectError
	if errors.As(err, &re) {
		t.Error("store failure must not be a RejectError")
	}
	if hookCalled {
		t.Error("hooks must not run when append fails")
	}
}

func TestReceive_HooksRunInOrderAndFailuresAreLogged(t *testing.T) {
	var logs bytes.Buffer
	st := &mockStore{}

	var order []string
	p := New(signature.NewVerifier(testSecret), st,
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		WithOnInsert("first", func(_ context.Context, rec event.Record) error {
			order = append(order, "first")
			if rec.Seq != 1 {
				t.Errorf("hook saw seq %d, want 1", rec.Seq)
			}
			return errors.New("boom")
		}),
		WithOnInsert("second", func(context.Context, event.Record) error {
			order = append(order, "second")
			return nil
		}),
	)

	if _, err := p.Receive(context.Background(), signed(`{"event":"track_published"}`)); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if strings.Join(order, ",") != "first,second" {
		t.Errorf("order = %v", order)
	}
	if !strings.Contains(logs.String(), "hook=first") {
		t.Errorf("hook failure not logged: %s", logs.String())
	}
}

func TestReceive_LogsRejectionAtWarn(t *testing.T) {
	var logs bytes.Buffer
	p := New(signature.NewVerifier(testSecret), &mockStore{},
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	_, _ = p.Receive(context.Background(), delivery(`{}`, "deadbeef"))

	out := logs.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "reason=signature") {
		t.Errorf("unexpected log output: %s", out)
	}
	if !strings.Contains(out, "remote=10.0.0.1:5555") {
		t.Errorf("remote address not logged: %s", out)
	}
}

func TestReceive_ConcurrentWithMemoryLog(t *testing.T) {
	log := store.NewMemoryLog()
	p := newTestPipeline(log)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Receive(context.Background(), signed(`{"event":"participant_joined"}`)); err != nil {
				t.Errorf("Receive: %v", err)
			}
		}()
	}
	wg.Wait()

	count, _ := log.Count(context.Background())
	if count != n {
		t.Errorf("count = %d, want %d", count, n)
	}
}

func TestReceive_ConcurrentHooksSeeSeqOrder(t *testing.T) {
	log := store.NewMemoryLog()

	var mu sync.Mutex
	var seen []int64
	p := newTestPipeline(log, WithOnInsert("record", func(_ context.Context, rec event.Record) error {
		mu.Lock()
		seen = append(seen, rec.Seq)
		mu.Unlock()
		// Give later deliveries a chance to overtake.
		time.Sleep(time.Duration(rec.Seq%3) * time.Millisecond)
		return nil
	}))

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Receive(context.Background(), signed(`{"event":"participant_joined"}`)); err != nil {
				t.Errorf("Receive: %v", err)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != n {
		t.Fatalf("hook ran %d times, want %d", len(seen), n)
	}
	for i, seq := range seen {
		if seq != int64(i+1) {
			t.Fatalf("hook call %d saw seq %d, want %d", i, seq, i+1)
		}
	}
}

func TestReceive_HookPanicDoesNotStallLaterDeliveries(t *testing.T) {
	p := newTestPipeline(&mockStore{}, WithOnInsert("panics", func(_ context.Context, rec event.Record) error {
		if rec.Seq == 1 {
			panic("hook failure")
		}
		return nil
	}))

	func() {
		defer func() { _ = recover() }()
		_, _ = p.Receive(context.Background(), signed(`{"event":"room_started"}`))
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := p.Receive(context.Background(), signed(`{"event":"room_finished"}`)); err != nil {
			t.Errorf("Receive: %v", err)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second delivery blocked behind panicked hook")
	}
}

// backwardsClock returns an earlier time on every call.
type backwardsClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *backwardsClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(-time.Millisecond)
	return c.t
}

func TestReceive_ConcurrentReceivedAtNeverDecreases(t *testing.T) {
	log := store.NewMemoryLog()
	clock := &backwardsClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	p := newTestPipeline(log, WithClock(clock))

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Receive(context.Background(), signed(`{"event":"track_published"}`)); err != nil {
				t.Errorf("Receive: %v", err)
			}
		}()
	}
	wg.Wait()

	res, err := log.Query(context.Background(), store.QueryFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Items) != n {
		t.Fatalf("got %d records, want %d", len(res.Items), n)
	}
	for i := 1; i < len(res.Items); i++ {
		prev, cur := res.Items[i-1], res.Items[i]
		if cur.Seq != prev.Seq+1 {
			t.Fatalf("seq %d follows %d", cur.Seq, prev.Seq)
		}
		if cur.ReceivedAt.Before(prev.ReceivedAt) {
			t.Fatalf("seq %d received_at %v is before seq %d received_at %v",
				cur.Seq, cur.ReceivedAt, prev.Seq, prev.ReceivedAt)
		}
	}
}

func TestSummary(t *testing.T) {
	rec := &event.Record{
		EventType: event.TypeTrackPublished,
		Fields: event.Fields{
			Room:        &event.RoomInfo{SID: event.StringPtr("RM_1")},
			Participant: &event.ParticipantInfo{Identity: event.StringPtr("alice")},
			Track:       &event.TrackInfo{SID: event.StringPtr("TR_9"), Type: event.StringPtr("AUDIO")},
		},
	}
	want := "track_published room=RM_1 participant=alice track=TR_9(audio)"
	if got := Summary(rec); got != want {
		t.Errorf("Summary = %q, want %q", got, want)
	}

	if got := Summary(&event.Record{}); got != "(untyped)" {
		t.Errorf("Summary(empty) = %q", got)
	}
}

func TestRejectError(t *testing.T) {
	inner := signature.ErrMismatch
	err := error(&RejectError{Reason: ReasonSignature, Err: inner})
	if !errors.Is(err, signature.ErrMismatch) {
		t.Error("errors.Is should see the wrapped error")
	}
	if !strings.Contains(err.Error(), "signature") {
		t.Errorf("Error() = %q", err.Error())
	}
}
