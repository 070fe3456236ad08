package app

import (
	"context"

	"github.com/graaaaa/livekit-webhook-logger/internal/event"
	"github.com/graaaaa/livekit-webhook-logger/internal/store"
)

// LogsUsecase defines the event listing use case.
type LogsUsecase interface {
	List(ctx context.Context, filter store.QueryFilter) (LogsResult, error)
}

// LogsResult is the /logs response body.
type LogsResult struct {
	TotalEvents int64          `json:"total_events"`
	Logs        []event.Record `json:"logs"`
	NextCursor  *string        `json:"next_cursor,omitempty"`
}

// EventStore defines store operations needed by LogsService.
type EventStore interface {
	Query(ctx context.Context, filter store.QueryFilter) (store.QueryResult, error)
}

// LogsService implements LogsUsecase.
type LogsService struct {
	Store EventStore
}

// List returns the records selected by filter in insertion order, together
// with the total number of records in the log.
func (s LogsService) List(ctx context.Context, filter store.QueryFilter) (LogsResult, error) {
	res, err := s.Store.Query(ctx, filter)
	if err != nil {
		return LogsResult{}, err
	}

	logs := res.Items
	if logs == nil {
		logs = []event.Record{}
	}
	return LogsResult{
		TotalEvents: res.Total,
		Logs:        logs,
		NextCursor:  res.NextCursor,
	}, nil
}
