package jobs

import (
	"context"
	"time"

	"prreview/internal/config"
	"prreview/internal/metrics"
	"prreview/internal/store"
)

// RetentionStats captures the number of records deleted by TTL cleanup.
type RetentionStats struct {
	JobsDeleted int64 `json:"jobsDeleted"`
}

// CleanupExpiredData deletes old jobs from stores that do not expire keys
// on their own. Stores with native expiry (Redis) are skipped.
func CleanupExpiredData(ctx context.Context, cfg *config.Config, st store.JobStore) RetentionStats {
	var stats RetentionStats

	sweeper, ok := st.(store.Sweeper)
	if !ok || cfg.Retention.JobTTLHours <= 0 {
		return stats
	}

	cutoff := time.Now().UTC().Add(-time.Duration(cfg.Retention.JobTTLHours) * time.Hour)
	if n, err := sweeper.DeleteExpired(ctx, cutoff); err == nil && n > 0 {
		stats.JobsDeleted = n
		metrics.RecordRetentionJobs(n)
	}
	return stats
}
