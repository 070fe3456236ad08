package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/graaaaa/livekit-webhook-logger/internal/store"
)

// handleLogs handles GET /logs
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseLogsFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	result, err := s.logs.List(r.Context(), filter)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCursor) {
			s.writeError(w, http.StatusBadRequest, "invalid cursor", nil)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "internal error", err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// parseLogsFilter parses query parameters into a QueryFilter.
// With no parameters the filter selects the whole log.
func parseLogsFilter(r *http.Request) (store.QueryFilter, error) {
	var filter store.QueryFilter
	q := r.URL.Query()

	// Parse 'since' (RFC3339)
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return filter, fmt.Errorf("invalid since: %s", s)
		}
		filter.Since = &t
	}

	// Parse 'until' (RFC3339)
	if u := q.Get("until"); u != "" {
		t, err := time.Parse(time.RFC3339Nano, u)
		if err != nil {
			return filter, fmt.Errorf("invalid until: %s", u)
		}
		filter.Until = &t
	}

	// Event types are an open set, so any value is accepted.
	if t, ok := q["type"]; ok {
		typ := t[0]
		filter.Type = &typ
	}

	// Parse 'limit'; 0 means no limit
	if l := q.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 0 {
			return filter, fmt.Errorf("invalid limit: %s", l)
		}
		filter.Limit = limit
	}

	if c := q.Get("cursor"); c != "" {
		filter.Cursor = &c
	}

	return filter, nil
}
