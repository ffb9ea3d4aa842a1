package store

import (
	"context"
	"log/slog"
	"time"
)

// RetentionInterval is how often the retention worker sweeps.
const RetentionInterval = time.Hour

// StartRetentionWorker runs a background goroutine that deletes users, and
// their call log, not seen within retention. The first sweep runs at start.
func StartRetentionWorker(ctx context.Context, repo Repository, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", interval, "retention", retention)

		purgeStaleUsers(ctx, repo, retention)
		for {
			select {
			case <-ticker.C:
				purgeStaleUsers(ctx, repo, retention)
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func purgeStaleUsers(ctx context.Context, repo Repository, retention time.Duration) int64 {
	purgeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	deleted, err := repo.DeleteStaleUsers(purgeCtx, retention)
	if err != nil {
		slog.Error("Retention worker failed to purge stale users", "error", err)
		return 0
	}
	if deleted > 0 {
		slog.Info("Retention worker purged stale users", "count", deleted, "retention", retention)
	}
	return deleted
}
