// Package subscriptions coordinates follow state and group notification
// preferences between the shared in-memory caches and the authoritative store.
//
// Every mutation follows the same protocol under a per-key lock: apply the new
// value to the cache (subscribers see it immediately), authenticate with at
// most one session restore, write the store, and then either confirm the
// value or put the previous one back. Callers only ever observe a final
// success, where cache and store agree, or a final error with the cache
// restored.
package subscriptions

import (
	"context"
	"time"

	"github.com/dalemusser/alerthub/internal/app/followcache"
	"github.com/dalemusser/alerthub/internal/app/system/keylock"
	"github.com/dalemusser/alerthub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// FollowStore reads and writes the authoritative membership array.
type FollowStore interface {
	IsFollowing(ctx context.Context, userID, orgID primitive.ObjectID) (bool, error)
	SetFollowing(ctx context.Context, userID, orgID primitive.ObjectID, following bool) error
}

// PreferenceStore reads and writes group preferences.
type PreferenceStore interface {
	Get(ctx context.Context, userID, orgID, groupID primitive.ObjectID) (enabled, found bool, err error)
	Set(ctx context.Context, userID, orgID, groupID primitive.ObjectID, enabled bool) error
	ListByUserOrg(ctx context.Context, userID, orgID primitive.ObjectID) (map[primitive.ObjectID]bool, error)
}

// OrganizationStore loads organizations.
type OrganizationStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Organization, error)
}

// GroupStore loads the groups of an organization.
type GroupStore interface {
	ListByOrg(ctx context.Context, orgID primitive.ObjectID) ([]models.Group, error)
	GetInOrg(ctx context.Context, orgID, groupID primitive.ObjectID) (models.Group, error)
}

// UserStore loads users.
type UserStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
}

// Reconciler recomputes an organization's follower count.
type Reconciler interface {
	Reconcile(ctx context.Context, orgID primitive.ObjectID) (int, error)
}

// SessionProvider exposes the caller's session, carried in ctx.
type SessionProvider interface {
	CurrentUserID(ctx context.Context) (primitive.ObjectID, bool)
	IsSessionValid(ctx context.Context) bool
	RestoreSession(ctx context.Context) bool
}

// Publisher forwards confirmed changes to other instances.
type Publisher interface {
	Publish(ctx context.Context, ch Change) error
}

// Deps holds the collaborators of a Coordinator. Publisher may be nil.
type Deps struct {
	Follows       FollowStore
	Preferences   PreferenceStore
	Organizations OrganizationStore
	Groups        GroupStore
	Users         UserStore
	Reconciler    Reconciler
	Session       SessionProvider
	Publisher     Publisher

	FollowCache     *followcache.Follows
	PreferenceCache *followcache.Preferences
}

// Coordinator is the only writer of follow state and group preferences.
type Coordinator struct {
	follows    FollowStore
	prefs      PreferenceStore
	orgs       OrganizationStore
	groups     GroupStore
	users      UserStore
	reconciler Reconciler
	session    SessionProvider
	publisher  Publisher

	followCache *followcache.Follows
	prefCache   *followcache.Preferences

	// Lock order: a follow key before any preference key.
	followLocks keylock.Map[followcache.FollowKey]
	prefLocks   keylock.Map[followcache.PreferenceKey]
	loads       singleflight.Group

	log *zap.Logger
}

// New builds a Coordinator. Nil caches are replaced with fresh ones.
func New(d Deps, logger *zap.Logger) *Coordinator {
	if d.FollowCache == nil {
		d.FollowCache = followcache.NewFollows()
	}
	if d.PreferenceCache == nil {
		d.PreferenceCache = followcache.NewPreferences()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		follows:     d.Follows,
		prefs:       d.Preferences,
		orgs:        d.Organizations,
		groups:      d.Groups,
		users:       d.Users,
		reconciler:  d.Reconciler,
		session:     d.Session,
		publisher:   d.Publisher,
		followCache: d.FollowCache,
		prefCache:   d.PreferenceCache,
		log:         logger,
	}
}

// FollowCache returns the shared follow-state cache.
func (c *Coordinator) FollowCache() *followcache.Follows { return c.followCache }

// PreferenceCache returns the shared preference cache.
func (c *Coordinator) PreferenceCache() *followcache.Preferences { return c.prefCache }

// ExpireCaches drops follow and preference entries written before cutoff and
// reports how many were removed. The next read of a dropped key goes back to
// the store under the key's lock.
func (c *Coordinator) ExpireCaches(cutoff time.Time) int {
	return c.followCache.Expire(cutoff) + c.prefCache.Expire(cutoff)
}

// authenticate checks that ctx carries a valid session for userID, restoring
// it once if it has lapsed.
func (c *Coordinator) authenticate(ctx context.Context, userID primitive.ObjectID) error {
	if c.session == nil {
		return ErrUnauthenticated
	}
	if !c.session.IsSessionValid(ctx) {
		c.log.Info("session not valid, attempting restore", zap.String("user_id", userID.Hex()))
		if !c.session.RestoreSession(ctx) || !c.session.IsSessionValid(ctx) {
			return ErrUnauthenticated
		}
	}
	current, ok := c.session.CurrentUserID(ctx)
	if !ok || current != userID {
		return ErrUnauthenticated
	}
	return nil
}

func (c *Coordinator) publish(ctx context.Context, ch Change) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, ch); err != nil {
		c.log.Warn("publish change failed",
			zap.String("kind", string(ch.Kind)),
			zap.String("user_id", ch.UserID.Hex()),
			zap.String("org_id", ch.OrgID.Hex()),
			zap.Error(err))
	}
}
