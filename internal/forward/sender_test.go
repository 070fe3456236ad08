package forward

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/graaaaa/livekit-webhook-logger/internal/appinfo"
	"github.com/graaaaa/livekit-webhook-logger/internal/config"
	"github.com/graaaaa/livekit-webhook-logger/internal/event"
)

func TestHTTPSender_PostsBatchWithBearer(t *testing.T) {
	var gotAuth, gotType string
	var got Batch
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL, config.Secret("tok-123"))
	batch := BuildBatches([]event.Record{makeRecord(1), makeRecord(2)}, time.Now())[0]

	result, _ := s.Send(context.Background(), batch)
	if result != SendOK {
		t.Fatalf("result = %v, want ok", result)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotType != "application/json" {
		t.Errorf("Content-Type = %q", gotType)
	}
	if got.Count != 2 || len(got.Records) != 2 || got.Source != appinfo.ServiceName {
		t.Errorf("body = %+v", got)
	}
	if string(got.Records[0].RawPayload) != `{"event":"participant_joined"}` {
		t.Errorf("raw payload = %s", got.Records[0].RawPayload)
	}
}

func TestHTTPSender_NoTokenNoHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h := r.Header.Get("Authorization"); h != "" {
			t.Errorf("unexpected Authorization %q", h)
		}
	}))
	defer srv.Close()

	result, _ := NewHTTPSender(srv.URL, "").Send(context.Background(), Batch{})
	if result != SendOK {
		t.Errorf("result = %v, want ok", result)
	}
}

func TestHTTPSender_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		retryAfter string
		want       SendResult
		wantDelay  time.Duration
	}{
		{"ok", http.StatusOK, "", SendOK, 0},
		{"no content", http.StatusNoContent, "", SendOK, 0},
		{"rate limited", http.StatusTooManyRequests, "7", SendRetryable, 7 * time.Second},
		{"rate limited decimal", http.StatusTooManyRequests, "1.5", SendRetryable, 1500 * time.Millisecond},
		{"request timeout", http.StatusRequestTimeout, "", SendRetryable, 0},
		{"unauthorized", http.StatusUnauthorized, "", SendFatal, 0},
		{"not found", http.StatusNotFound, "", SendFatal, 0},
		{"server error", http.StatusInternalServerError, "", SendRetryable, 0},
		{"bad gateway", http.StatusBadGateway, "", SendRetryable, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			result, delay := NewHTTPSender(srv.URL, "x").Send(context.Background(), Batch{})
			if result != tt.want {
				t.Errorf("result = %v, want %v", result, tt.want)
			}
			if delay != tt.wantDelay {
				t.Errorf("retry after = %v, want %v", delay, tt.wantDelay)
			}
		})
	}
}

func TestHTTPSender_NetworkErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	result, _ := NewHTTPSender(url, "").Send(context.Background(), Batch{})
	if result != SendRetryable {
		t.Errorf("result = %v, want retryable", result)
	}
}

func TestHTTPSender_EmptyURLIsFatal(t *testing.T) {
	result, _ := NewHTTPSender("", "").Send(context.Background(), Batch{})
	if result != SendFatal {
		t.Errorf("result = %v, want fatal", result)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d := parseRetryAfter(""); d != 0 {
		t.Errorf("empty = %v", d)
	}
	if d := parseRetryAfter("garbage"); d != 0 {
		t.Errorf("garbage = %v", d)
	}
	future := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
	if d := parseRetryAfter(future); d <= 0 || d > 31*time.Second {
		t.Errorf("http date = %v", d)
	}
}

func TestBackoff_Delay(t *testing.T) {
	b := NewBackoffWithSeed(DefaultBackoffConfig, 1)

	if d := b.Delay(0); d < 800*time.Millisecond || d > 1200*time.Millisecond {
		t.Errorf("attempt 0: expected ~1s, got %v", d)
	}
	if d := b.Delay(1); d < 1600*time.Millisecond || d > 2400*time.Millisecond {
		t.Errorf("attempt 1: expected ~2s, got %v", d)
	}
	cfg := DefaultBackoffConfig
	if d := b.Delay(100); d > cfg.MaxDelay+time.Duration(float64(cfg.MaxDelay)*cfg.JitterFactor) {
		t.Errorf("attempt 100: expected <= MaxDelay + jitter, got %v", d)
	}

	// Same seed, same sequence.
	a1 := NewBackoffWithSeed(DefaultBackoffConfig, 42)
	a2 := NewBackoffWithSeed(DefaultBackoffConfig, 42)
	for i := 0; i < 5; i++ {
		if x, y := a1.Delay(i), a2.Delay(i); x != y {
			t.Errorf("attempt %d: %v != %v", i, x, y)
		}
	}
}

func TestBuildBatches_Empty(t *testing.T) {
	if b := BuildBatches(nil, time.Now()); b != nil {
		t.Error("expected nil for no records")
	}
}
