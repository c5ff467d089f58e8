package subscriptions

import (
	"context"
	"errors"

	"github.com/dalemusser/alerthub/internal/app/followcache"
	"github.com/dalemusser/alerthub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// GetGroupPreference reports whether userID has notifications enabled for
// groupID. A group the user never set, that does not exist, or that is
// private to the user is disabled.
func (c *Coordinator) GetGroupPreference(ctx context.Context, userID, orgID, groupID primitive.ObjectID) (bool, error) {
	enabled, err := c.storedGroupPreference(ctx, userID, orgID, groupID)
	if err != nil || !enabled {
		return false, err
	}

	// Only an enabled value can leak a hidden group.
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), c.log, "subscriptions.check_group_visible")
	defer cancel()
	if err := c.checkGroupVisible(ctx, userID, orgID, groupID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// storedGroupPreference returns the cached or stored value, without any
// visibility check.
func (c *Coordinator) storedGroupPreference(ctx context.Context, userID, orgID, groupID primitive.ObjectID) (bool, error) {
	key := followcache.PreferenceKey{UserID: userID, OrgID: orgID, GroupID: groupID}
	if v, ok := c.prefCache.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.loads.Do("pref:"+userID.Hex()+":"+orgID.Hex()+":"+groupID.Hex(), func() (any, error) {
		unlock := c.prefLocks.Lock(key)
		defer unlock()
		if v, ok := c.prefCache.Get(key); ok {
			return v, nil
		}

		ctx, cancel := timeouts.Detached(ctx, timeouts.Short(), c.log, "subscriptions.get_group_preference")
		defer cancel()

		enabled, found, err := c.prefs.Get(ctx, userID, orgID, groupID)
		if err != nil {
			return false, classify(err)
		}
		if !found {
			enabled = false
		}
		c.prefCache.Set(key, enabled)
		return enabled, nil
	})
	if err != nil {
		c.log.Warn("get group preference failed",
			zap.String("user_id", userID.Hex()),
			zap.String("org_id", orgID.Hex()),
			zap.String("group_id", groupID.Hex()),
			zap.Error(err))
		return false, err
	}
	return v.(bool), nil
}

// SetGroupPreference enables or disables notifications for one group, with
// the same optimistic protocol as SetFollowStatus. The group must belong to
// orgID and be visible to userID; a private group answers ErrNotFound to a
// non-admin.
func (c *Coordinator) SetGroupPreference(ctx context.Context, userID, orgID, groupID primitive.ObjectID, enabled bool) error {
	ctx, cancel := timeouts.Detached(ctx, timeouts.Long(), c.log, "subscriptions.set_group_preference")
	defer cancel()

	key := followcache.PreferenceKey{UserID: userID, OrgID: orgID, GroupID: groupID}
	unlock := c.prefLocks.Lock(key)
	defer unlock()

	prev, hadPrev := c.prefCache.Get(key)
	c.prefCache.Set(key, enabled)

	fail := func(err error) error {
		if hadPrev {
			c.prefCache.Set(key, prev)
		} else {
			c.prefCache.Delete(key)
		}
		c.log.Warn("preference change reverted",
			zap.String("user_id", userID.Hex()),
			zap.String("org_id", orgID.Hex()),
			zap.String("group_id", groupID.Hex()),
			zap.Bool("desired", enabled),
			zap.Error(err))
		return err
	}

	if err := c.authenticate(ctx, userID); err != nil {
		return fail(err)
	}
	if err := c.checkGroupVisible(ctx, userID, orgID, groupID); err != nil {
		return fail(err)
	}
	if err := c.prefs.Set(ctx, userID, orgID, groupID, enabled); err != nil {
		return fail(classify(err))
	}

	c.prefCache.Set(key, enabled)
	c.publish(ctx, Change{Kind: ChangePreference, UserID: userID, OrgID: orgID, GroupID: groupID, Value: enabled})

	c.log.Info("group preference changed",
		zap.String("user_id", userID.Hex()),
		zap.String("org_id", orgID.Hex()),
		zap.String("group_id", groupID.Hex()),
		zap.Bool("enabled", enabled))
	return nil
}
