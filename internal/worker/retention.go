package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Purger interface {
	PurgeEvents(ctx context.Context, cutoff time.Time) (int64, error)
}

// Retention deletes audit log rows older than a fixed number of days.
type Retention struct {
	purger   Purger
	days     int
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewRetention(purger Purger, days int, interval time.Duration, logger *zap.Logger) *Retention {
	return &Retention{
		purger:   purger,
		days:     days,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run purges once immediately and then on every tick until ctx ends. It
// returns at once when retention is disabled.
func (r *Retention) Run(ctx context.Context) {
	if r.days <= 0 {
		r.logger.Info("Audit log retention disabled")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.RunOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Retention) RunOnce(ctx context.Context) int64 {
	cutoff := r.now().AddDate(0, 0, -r.days)

	n, err := r.purger.PurgeEvents(ctx, cutoff)
	if err != nil {
		r.logger.Error("Audit log purge failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		r.logger.Info("Purged old webhook events",
			zap.Int64("deleted", n),
			zap.Time("cutoff", cutoff))
	}
	return n
}
