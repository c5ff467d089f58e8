package subscriptions

import (
	"github.com/dalemusser/alerthub/internal/app/followcache"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ChangeKind tells follow changes from preference changes.
type ChangeKind string

const (
	ChangeFollow     ChangeKind = "follow"
	ChangePreference ChangeKind = "preference"
)

// Change is a confirmed mutation, as relayed between instances.
type Change struct {
	Kind    ChangeKind         `json:"kind"`
	UserID  primitive.ObjectID `json:"user_id"`
	OrgID   primitive.ObjectID `json:"org_id"`
	GroupID primitive.ObjectID `json:"group_id"`
	Value   bool               `json:"value"`
}

// ApplyRemote applies a change confirmed by another instance to the local
// caches. The store is not written; the other instance already did.
func (c *Coordinator) ApplyRemote(ch Change) {
	switch ch.Kind {
	case ChangeFollow:
		key := followcache.FollowKey{UserID: ch.UserID, OrgID: ch.OrgID}
		unlock := c.followLocks.Lock(key)
		defer unlock()
		if v, ok := c.followCache.Get(key); ok && v == ch.Value {
			return
		}
		c.followCache.Set(key, ch.Value)
		if !ch.Value {
			c.forgetPreferences(ch.UserID, ch.OrgID)
		}
	case ChangePreference:
		key := followcache.PreferenceKey{UserID: ch.UserID, OrgID: ch.OrgID, GroupID: ch.GroupID}
		unlock := c.prefLocks.Lock(key)
		defer unlock()
		if v, ok := c.prefCache.Get(key); ok && v == ch.Value {
			return
		}
		c.prefCache.Set(key, ch.Value)
	default:
		c.log.Warn("ignoring change of unknown kind", zap.String("kind", string(ch.Kind)))
	}
}
