package worker

import (
	"context"
	"time"

	"instagram-webhook/internal/models"
	"instagram-webhook/pkg/metrics"

	"go.uber.org/zap"
)

type KindCounter interface {
	CountByKind(ctx context.Context, since time.Time) (map[models.NotificationKind]int64, error)
}

// ArchiveStats reports how many notifications of each kind were archived
// within a trailing window.
type ArchiveStats struct {
	counter  KindCounter
	window   time.Duration
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewArchiveStats(counter KindCounter, window, interval time.Duration, logger *zap.Logger) *ArchiveStats {
	return &ArchiveStats{
		counter:  counter,
		window:   window,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *ArchiveStats) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.RunOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce counts once and updates the gauge. Kinds with no archived
// notifications report zero. On error the gauge keeps its last value.
func (s *ArchiveStats) RunOnce(ctx context.Context) (map[models.NotificationKind]int64, error) {
	counts, err := s.counter.CountByKind(ctx, s.now().Add(-s.window))
	if err != nil {
		s.logger.Warn("Failed to count archived notifications", zap.Error(err))
		return nil, err
	}

	out := map[models.NotificationKind]int64{
		models.NotificationComment: 0,
		models.NotificationMessage: 0,
	}
	for kind, n := range counts {
		out[kind] = n
	}
	for kind, n := range out {
		metrics.ActivityArchivedRecent.WithLabelValues(string(kind)).Set(float64(n))
	}
	return out, nil
}
