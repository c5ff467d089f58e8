package followcache

import "go.mongodb.org/mongo-driver/bson/primitive"

// FollowKey identifies one user's follow state for one organization.
type FollowKey struct {
	UserID primitive.ObjectID
	OrgID  primitive.ObjectID
}

// PreferenceKey identifies one user's notification preference for a group.
type PreferenceKey struct {
	UserID  primitive.ObjectID
	OrgID   primitive.ObjectID
	GroupID primitive.ObjectID
}

// Follows caches follow state.
type Follows = Cache[FollowKey]

// Preferences caches group preferences.
type Preferences = Cache[PreferenceKey]

// NewFollows returns an empty follow-state cache.
func NewFollows() *Follows { return New[FollowKey]() }

// NewPreferences returns an empty preference cache.
func NewPreferences() *Preferences { return New[PreferenceKey]() }
