package store

import (
	"context"
	"time"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"go.uber.org/zap"
)

type runPruner interface {
	PruneAbandonedRuns(ctx context.Context, cutoff time.Time) (int64, error)
}

// runCleanupTask periodically deletes runs that were started but never completed
func runCleanupTask(p runPruner, logger *zap.Logger, freq, ttl time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(freq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, err := p.PruneAbandonedRuns(context.Background(), time.Now().Add(-ttl))
			if err != nil {
				logger.Error("Failed to prune abandoned runs", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Debug("Pruned abandoned runs", zap.Int64("removed_count", removed))
			}
		case <-stopCh:
			return
		}
	}
}

var (
	_ core.Store = (*MemoryStore)(nil)
	_ core.Store = (*SQLStore)(nil)
)
