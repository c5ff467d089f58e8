// internal/app/system/workers/cacheexpiry.go
package workers

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CacheExpirer drops cached state written before a cutoff.
type CacheExpirer interface {
	ExpireCaches(cutoff time.Time) int
}

// CacheExpiryJob forgets cached follow and preference state older than maxAge,
// so a change that never reached this process is picked up on the next read.
// It runs every maxAge/2; a zero maxAge disables it.
func CacheExpiryJob(e CacheExpirer, logger *zap.Logger, maxAge time.Duration) Job {
	return Job{
		Name:     "cache-expiry",
		Interval: maxAge / 2,
		Run: func(ctx context.Context) error {
			if n := e.ExpireCaches(time.Now().Add(-maxAge)); n > 0 {
				logger.Debug("cache entries expired", zap.Int("entries", n))
			}
			return nil
		},
	}
}
