package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/syften-relay/internal/repository"
)

// PruneWorker periodically deletes delivery log records older than the
// retention period, so the log holds recent history only.
type PruneWorker struct {
	repo      repository.DeliveryRepository
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewPruneWorker(
	repo repository.DeliveryRepository,
	retention time.Duration,
	interval time.Duration,
	logger *zap.Logger,
) *PruneWorker {
	return &PruneWorker{
		repo:      repo,
		retention: retention,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
	}
}

// Run prunes once immediately, then every interval.
// Stops cleanly when ctx is cancelled.
func (pw *PruneWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(pw.interval)
	defer ticker.Stop()

	pw.logger.Info("prune worker started",
		zap.Duration("interval", pw.interval),
		zap.Duration("retention", pw.retention),
	)

	pw.prune(ctx)
	for {
		select {
		case <-ctx.Done():
			pw.logger.Info("prune worker stopping")
			return
		case <-ticker.C:
			pw.prune(ctx)
		}
	}
}

func (pw *PruneWorker) prune(ctx context.Context) {
	cutoff := pw.now().UTC().Add(-pw.retention)
	removed, err := pw.repo.Prune(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			pw.logger.Error("prune delivery log", zap.Error(err))
		}
		return
	}
	if removed > 0 {
		pw.logger.Info("pruned delivery log", zap.Int64("removed", removed), zap.Time("cutoff", cutoff))
	}
}
