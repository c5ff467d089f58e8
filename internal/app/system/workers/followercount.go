// internal/app/system/workers/followercount.go
package workers

import (
	"context"
	"time"

	"github.com/dalemusser/alerthub/internal/app/followercount"
	"go.uber.org/zap"
)

// AllReconciler recomputes every organization's follower count.
type AllReconciler interface {
	ReconcileAll(ctx context.Context) (followercount.Summary, error)
}

// FollowerCountJob periodically recomputes all follower counts, repairing
// counts left stale by a failed reconcile or by out-of-band writes.
func FollowerCountJob(r AllReconciler, logger *zap.Logger, interval, timeout time.Duration) Job {
	return Job{
		Name:     "follower-count-reconcile",
		Interval: interval,
		Timeout:  timeout,
		Run: func(ctx context.Context) error {
			s, err := r.ReconcileAll(ctx)
			if err != nil {
				return err
			}
			logger.Info("follower counts reconciled",
				zap.Int("organizations", s.Organizations),
				zap.Int("reconciled", s.Reconciled),
				zap.Int("failed", s.Failed))
			return nil
		},
	}
}
