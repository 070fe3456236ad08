package app

import (
	"context"
	"time"

	"github.com/graaaaa/livekit-webhook-logger/internal/forward"
	"github.com/graaaaa/livekit-webhook-logger/internal/store"
)

// StatsResult represents the response for the stats endpoint.
type StatsResult struct {
	TotalEvents     int64            `json:"total_events"`
	ByType          map[string]int64 `json:"by_type"`
	FirstReceivedAt *time.Time       `json:"first_received_at"`
	LastReceivedAt  *time.Time       `json:"last_received_at"`
	ActiveRooms     int              `json:"active_rooms"`
	UptimeSec       int64            `json:"uptime_sec"`
	Forwarder       *forward.Status  `json:"forwarder,omitempty"`
}

// StatsUsecase defines the interface for stats operations.
type StatsUsecase interface {
	GetStats(ctx context.Context) (*StatsResult, error)
}

// StatsStore defines the interface for stats data access.
type StatsStore interface {
	Stats(ctx context.Context) (store.Stats, error)
}

// RoomCounter reports the number of active rooms.
type RoomCounter interface {
	RoomCount() int
}

// ForwardStatus reports forwarder health.
type ForwardStatus interface {
	Status() forward.Status
}

// StatsService implements StatsUsecase.
type StatsService struct {
	store     StatsStore
	rooms     RoomCounter
	forwarder ForwardStatus
	startedAt time.Time
	now       func() time.Time
}

// StatsOption configures a StatsService.
type StatsOption func(*StatsService)

// WithRooms adds the active room count to results.
func WithRooms(r RoomCounter) StatsOption {
	return func(s *StatsService) { s.rooms = r }
}

// WithForwarder adds forwarder status to results.
func WithForwarder(f ForwardStatus) StatsOption {
	return func(s *StatsService) { s.forwarder = f }
}

// WithNow sets the clock (for testing).
func WithNow(now func() time.Time) StatsOption {
	return func(s *StatsService) { s.now = now }
}

// NewStatsService creates a new StatsService. Uptime is measured from the call.
func NewStatsService(st StatsStore, opts ...StatsOption) *StatsService {
	s := &StatsService{store: st, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.startedAt = s.now()
	return s
}

// GetStats aggregates log statistics with runtime status.
func (s *StatsService) GetStats(ctx context.Context) (*StatsResult, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}

	byType := st.ByType
	if byType == nil {
		byType = map[string]int64{}
	}
	res := &StatsResult{
		TotalEvents:     st.Total,
		ByType:          byType,
		FirstReceivedAt: st.FirstReceivedAt,
		LastReceivedAt:  st.LastReceivedAt,
		UptimeSec:       int64(s.now().Sub(s.startedAt) / time.Second),
	}
	if s.rooms != nil {
		res.ActiveRooms = s.rooms.RoomCount()
	}
	if s.forwarder != nil {
		fs := s.forwarder.Status()
		res.Forwarder = &fs
	}
	return res, nil
}
