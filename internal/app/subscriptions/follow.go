package subscriptions

import (
	"context"

	"github.com/dalemusser/alerthub/internal/app/followcache"
	"github.com/dalemusser/alerthub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// GetFollowStatus returns whether userID follows orgID, from the cache when
// known. Concurrent misses for the same key share one store read. An unknown
// organization is ErrNotFound and is not cached.
//
// On error the caller may render "not following", but must not use that for
// anything else.
func (c *Coordinator) GetFollowStatus(ctx context.Context, userID, orgID primitive.ObjectID) (bool, error) {
	key := followcache.FollowKey{UserID: userID, OrgID: orgID}
	if v, ok := c.followCache.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.loads.Do("follow:"+userID.Hex()+":"+orgID.Hex(), func() (any, error) {
		unlock := c.followLocks.Lock(key)
		defer unlock()
		if v, ok := c.followCache.Get(key); ok {
			return v, nil
		}

		// Shared by every waiter, so it must not die with the first caller.
		ctx, cancel := timeouts.Detached(ctx, timeouts.Short(), c.log, "subscriptions.get_follow_status")
		defer cancel()

		if _, err := c.orgs.GetByID(ctx, orgID); err != nil {
			return false, classify(err)
		}
		following, err := c.follows.IsFollowing(ctx, userID, orgID)
		if err != nil {
			return false, classify(err)
		}
		c.followCache.Set(key, following)
		return following, nil
	})
	if err != nil {
		c.log.Warn("get follow status failed",
			zap.String("user_id", userID.Hex()),
			zap.String("org_id", orgID.Hex()),
			zap.Error(err))
		return false, err
	}
	return v.(bool), nil
}

// SetFollowStatus follows or unfollows orgID for userID.
//
// desired is visible in the cache before any store call is made.
// Re-applying the current state succeeds. On failure the previous cache value
// is restored and the error is one of ErrUnauthenticated, ErrNotFound or
// ErrStoreUnavailable. The call ignores ctx cancellation so that an abandoned
// request still finishes or reverts; it is bounded by timeouts.Long.
func (c *Coordinator) SetFollowStatus(ctx context.Context, userID, orgID primitive.ObjectID, desired bool) error {
	ctx, cancel := timeouts.Detached(ctx, timeouts.Long(), c.log, "subscriptions.set_follow_status")
	defer cancel()

	key := followcache.FollowKey{UserID: userID, OrgID: orgID}
	unlock := c.followLocks.Lock(key)
	defer unlock()

	prev, hadPrev := c.followCache.Get(key)
	c.followCache.Set(key, desired)

	fail := func(err error) error {
		if hadPrev {
			c.followCache.Set(key, prev)
		} else {
			c.followCache.Delete(key)
		}
		c.log.Warn("follow change reverted",
			zap.String("user_id", userID.Hex()),
			zap.String("org_id", orgID.Hex()),
			zap.Bool("desired", desired),
			zap.Error(err))
		return err
	}

	if err := c.authenticate(ctx, userID); err != nil {
		return fail(err)
	}
	if _, err := c.orgs.GetByID(ctx, orgID); err != nil {
		return fail(classify(err))
	}
	if err := c.follows.SetFollowing(ctx, userID, orgID, desired); err != nil {
		return fail(classify(err))
	}

	if !desired {
		// The store dropped this org's preferences with the follow.
		c.forgetPreferences(userID, orgID)
	}
	c.reconcile(ctx, orgID)

	c.followCache.Set(key, desired)
	c.publish(ctx, Change{Kind: ChangeFollow, UserID: userID, OrgID: orgID, Value: desired})

	c.log.Info("follow status changed",
		zap.String("user_id", userID.Hex()),
		zap.String("org_id", orgID.Hex()),
		zap.Bool("following", desired))
	return nil
}

// reconcile recomputes the follower count, retrying once. Failure leaves the
// count stale until the periodic sweep; the follow itself has succeeded.
func (c *Coordinator) reconcile(ctx context.Context, orgID primitive.ObjectID) {
	if c.reconciler == nil {
		return
	}
	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		var n int
		if n, err = c.reconciler.Reconcile(ctx, orgID); err == nil {
			c.log.Debug("follower count reconciled",
				zap.String("org_id", orgID.Hex()),
				zap.Int("follower_count", n))
			return
		}
		c.log.Warn("follower count reconcile failed",
			zap.String("org_id", orgID.Hex()),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	c.log.Error("follower count left stale",
		zap.String("org_id", orgID.Hex()),
		zap.Error(err))
}

// forgetPreferences drops the cached preferences of userID in orgID. Caller
// holds the follow lock for (userID, orgID).
func (c *Coordinator) forgetPreferences(userID, orgID primitive.ObjectID) {
	keys := c.prefCache.Keys(func(k followcache.PreferenceKey) bool {
		return k.UserID == userID && k.OrgID == orgID
	})
	for _, k := range keys {
		unlock := c.prefLocks.Lock(k)
		c.prefCache.Delete(k)
		unlock()
	}
}
