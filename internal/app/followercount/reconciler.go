// Package followercount keeps organizations.follower_count equal to the
// number of users whose followed set contains the organization.
//
// The count is only ever recomputed from membership. There is no increment
// or decrement path, so repeated, concurrent or retried calls converge on the
// same value.
package followercount

import (
	"context"
	"errors"
	"fmt"

	organizationstore "github.com/dalemusser/alerthub/internal/app/store/organizations"
	"github.com/dalemusser/alerthub/internal/app/system/keylock"
	"github.com/dalemusser/alerthub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ErrNotFound is returned when the organization does not exist.
var ErrNotFound = errors.New("organization not found")

// MembershipCounter counts followers from the authoritative membership data.
type MembershipCounter interface {
	CountFollowers(ctx context.Context, orgID primitive.ObjectID) (int64, error)
}

// CountStore persists recomputed counts.
type CountStore interface {
	SetFollowerCount(ctx context.Context, id primitive.ObjectID, count int) error
	ListIDs(ctx context.Context) ([]primitive.ObjectID, error)
}

// Reconciler recomputes follower counts. Reconciles of one organization are
// serialized from count through write, so a scan that started earlier can
// never overwrite the result of one that started later.
type Reconciler struct {
	members MembershipCounter
	orgs    CountStore
	log     *zap.Logger
	locks   keylock.Map[primitive.ObjectID]
}

func New(members MembershipCounter, orgs CountStore, logger *zap.Logger) *Reconciler {
	return &Reconciler{members: members, orgs: orgs, log: logger}
}

// Reconcile counts the followers of orgID and stores the result on the
// organization.
func (r *Reconciler) Reconcile(ctx context.Context, orgID primitive.ObjectID) (int, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), r.log, "followercount.reconcile")
	defer cancel()

	var (
		count int
		err   error
	)
	r.locks.With(orgID, func() {
		count, err = r.recount(ctx, orgID)
	})
	return count, err
}

func (r *Reconciler) recount(ctx context.Context, orgID primitive.ObjectID) (int, error) {
	n, err := r.members.CountFollowers(ctx, orgID)
	if err != nil {
		return 0, fmt.Errorf("count followers: %w", err)
	}
	count := int(n)
	if err := r.orgs.SetFollowerCount(ctx, orgID, count); err != nil {
		if errors.Is(err, organizationstore.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, orgID.Hex())
		}
		return 0, fmt.Errorf("store follower count: %w", err)
	}
	return count, nil
}

// Summary describes one ReconcileAll pass.
type Summary struct {
	Organizations int
	Reconciled    int
	Failed        int
}

// ReconcileAll recomputes the count of every active organization. A failure
// on one organization is logged and does not stop the pass.
func (r *Reconciler) ReconcileAll(ctx context.Context) (Summary, error) {
	listCtx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), r.log, "followercount.list")
	ids, err := r.orgs.ListIDs(listCtx)
	cancel()
	if err != nil {
		return Summary{}, fmt.Errorf("list organizations: %w", err)
	}

	s := Summary{Organizations: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			return s, ctx.Err()
		}
		if _, err := r.Reconcile(ctx, id); err != nil {
			s.Failed++
			r.log.Warn("follower count reconcile failed",
				zap.String("org_id", id.Hex()),
				zap.Error(err))
			continue
		}
		s.Reconciled++
	}
	return s, nil
}
