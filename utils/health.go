package utils

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/vnkhanh/course-tracker-backend/logger"
)

// PingDB checks the underlying connection pool.
func PingDB(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// StartHealthLogger pings the database every interval and logs pool stats.
func StartHealthLogger(ctx context.Context, db *gorm.DB, interval time.Duration) {
	log := logger.Component("db-health")
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := PingDB(ctx, db); err != nil {
					log.Error().Err(err).Msg("database ping failed")
					continue
				}
				if sqlDB, err := db.DB(); err == nil {
					st := sqlDB.Stats()
					log.Debug().
						Int("open", st.OpenConnections).
						Int("in_use", st.InUse).
						Int("idle", st.Idle).
						Int64("wait_count", st.WaitCount).
						Msg("database healthy")
				}
			}
		}
	}()
}
