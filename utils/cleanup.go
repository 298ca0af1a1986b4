package utils

import (
	"context"
	"time"

	"github.com/vnkhanh/course-tracker-backend/logger"
)

// Sweeper removes expired rows and reports how many were deleted.
type Sweeper interface {
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)
}

// CleanupExpiredNotifications runs one sweep.
func CleanupExpiredNotifications(ctx context.Context, s Sweeper) {
	log := logger.Component("cleanup")

	n, err := s.CleanupExpired(ctx, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("failed to delete expired notifications")
		return
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Msg("deleted expired notifications")
	}
}

// StartCleanupJob sweeps once at startup and then every interval until ctx
// is cancelled.
func StartCleanupJob(ctx context.Context, s Sweeper, interval time.Duration) {
	log := logger.Component("cleanup")
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	CleanupExpiredNotifications(ctx, s)

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("cleanup job stopped")
				return
			case <-ticker.C:
				CleanupExpiredNotifications(ctx, s)
			}
		}
	}()

	log.Info().Dur("interval", interval).Msg("cleanup job started")
}
