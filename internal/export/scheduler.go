package export

import (
	"context"
	"log/slog"
	"time"
)

// finalExportTimeout bounds the export written on shutdown.
const finalExportTimeout = 30 * time.Second

// Scheduler exports the log to its destinations on an interval.
type Scheduler struct {
	src          Source
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger
}

// NewScheduler creates a scheduler. A nil logger uses slog.Default().
func NewScheduler(src Source, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		src:          src,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
}

// Run exports on every tick until ctx is cancelled, then writes one final
// snapshot so records received since the last tick are not lost.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), finalExportTimeout)
			s.Once(finalCtx)
			cancel()
			return
		case <-ticker.C:
			s.Once(ctx)
		}
	}
}

// Once exports a single snapshot to every destination. Destination errors
// are logged and do not stop the others. It returns the number of
// destinations written.
func (s *Scheduler) Once(ctx context.Context) int {
	data, n, err := Snapshot(ctx, s.src)
	if err != nil {
		s.logger.Error("export failed", "error", err)
		return 0
	}

	ok := 0
	for _, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			s.logger.Error("export destination write failed", "destination", dest.String(), "error", err)
			continue
		}
		ok++
	}

	s.logger.Info("export completed",
		"records", n,
		"bytes", len(data),
		"destinations", ok,
	)
	return ok
}
