package processing

import (
	"context"
	"log/slog"
	"time"

	"github.com/princekumarofficial/video-service/internal/metrics"
	"github.com/princekumarofficial/video-service/internal/types"
)

// StaleReason is recorded on records the sweeper gives up on.
const StaleReason = "processing timed out"

// StaleStore fails records stuck in pending or processing.
type StaleStore interface {
	FailStale(ctx context.Context, olderThan time.Time, reason string) ([]string, error)
}

// Sweeper periodically fails records whose job was lost, e.g. because the
// server restarted with the job still queued.
type Sweeper struct {
	store      StaleStore
	staleAfter time.Duration
	interval   time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func NewSweeper(store StaleStore, staleAfter, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		store:      store,
		staleAfter: staleAfter,
		interval:   interval,
		logger:     slog.Default().With(slog.String("component", "stale-sweeper")),
		now:        time.Now,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Stale sweeper started",
		slog.String("interval", s.interval.String()),
		slog.String("stale_after", s.staleAfter.String()))

	// Run once immediately on startup
	s.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stale sweeper shutting down")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and returns the ids it failed.
func (s *Sweeper) Sweep(ctx context.Context) []string {
	startTime := time.Now()
	cutoff := s.now().UTC().Add(-s.staleAfter)

	ids, err := s.store.FailStale(ctx, cutoff, StaleReason)
	if err != nil {
		s.logger.Error("Failed to sweep stale videos",
			slog.String("error", err.Error()),
			slog.Int64("duration_ms", time.Since(startTime).Milliseconds()))
		return nil
	}

	if len(ids) > 0 {
		metrics.ProcessingJobs.WithLabelValues(string(types.StatusFailed)).Add(float64(len(ids)))
		s.logger.Info("Failed stale videos",
			slog.Int("count", len(ids)),
			slog.Any("video_ids", ids),
			slog.Int64("duration_ms", time.Since(startTime).Milliseconds()))
	}
	return ids
}
