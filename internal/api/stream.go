package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/graaaaa/livekit-webhook-logger/internal/event"
	"github.com/graaaaa/livekit-webhook-logger/internal/store"
)

const (
	// heartbeatInterval is the interval for sending SSE heartbeat comments.
	heartbeatInterval = 20 * time.Second

	// missedPageSize is the number of records fetched per page during replay.
	missedPageSize = 100
)

// handleStream handles GET /stream (SSE).
// Each record is sent with its seq as the event id, so a reconnecting client
// resumes after the last record it saw via Last-Event-ID.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	lastEventID := r.Header.Get("Last-Event-ID")
	if lastEventID == "" {
		lastEventID = r.URL.Query().Get("last_event_id")
	}

	// Subscribe before replaying so nothing stored in between is lost;
	// duplicates are filtered by seq below.
	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	ctx := r.Context()

	// Without Last-Event-ID the stream starts at the current end of the log.
	// Seq is dense from 1, so the record count is the latest seq.
	lastSent, resume := parseLastEventID(lastEventID)
	if !resume {
		res, err := s.logs.List(ctx, store.QueryFilter{Limit: 1})
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "internal error", err)
			return
		}
		lastSent = res.TotalEvents
	}

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	catchUp := func() bool {
		sent, err := s.sendMissed(ctx, w, flusher, lastSent)
		lastSent = sent
		if err != nil {
			s.logger.Debug("sse replay stopped", "error", err)
			return false
		}
		return true
	}

	if resume && !catchUp() {
		return
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-sub.Events():
			if !ok {
				return
			}
			if rec.Seq <= lastSent {
				continue
			}
			if rec.Seq > lastSent+1 {
				// Records in between were dropped on the way; the log has them.
				if !catchUp() {
					return
				}
				if rec.Seq <= lastSent {
					continue
				}
			}
			writeSSERecord(w, rec)
			flusher.Flush()
			lastSent = rec.Seq

		case <-sub.Lagged():
			if !catchUp() {
				return
			}

		case <-ticker.C:
			fmt.Fprintf(w, ":\n\n")
			flusher.Flush()

		case <-ctx.Done():
			return

		case <-sub.Done():
			return
		}
	}
}

// parseLastEventID accepts a non-negative seq.
func parseLastEventID(id string) (int64, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, false
	}
	seq, err := strconv.ParseInt(id, 10, 64)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}

// sendMissed writes every stored record with seq greater than after, paging
// until it reaches the end of the log, and returns the last seq written.
func (s *Server) sendMissed(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, after int64) (int64, error) {
	cursor := store.EncodeCursor(time.Time{}, after)
	filter := store.QueryFilter{
		Cursor: &cursor,
		Limit:  missedPageSize,
	}

	last := after
	for {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		result, err := s.logs.List(ctx, filter)
		if err != nil {
			return last, err
		}

		for i := range result.Logs {
			writeSSERecord(w, &result.Logs[i])
			last = result.Logs[i].Seq
		}
		flusher.Flush()

		if result.NextCursor == nil {
			return last, nil
		}
		filter.Cursor = result.NextCursor
	}
}

// writeSSERecord writes a single record in SSE format. Records without an
// event type use the default "message" event.
func writeSSERecord(w http.ResponseWriter, rec *event.Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}

	fmt.Fprintf(w, "id: %d\n", rec.Seq)
	if rec.EventType != "" && !strings.ContainsAny(rec.EventType, "\r\n") {
		fmt.Fprintf(w, "event: %s\n", rec.EventType)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
