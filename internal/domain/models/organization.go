// internal/domain/models/organization.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Organization is an alert publisher that users follow.
//
// FollowerCount is derived. It is only ever written by the follower count
// reconciler, which recomputes it from users.followed_organizations.
type Organization struct {
	ID       primitive.ObjectID `bson:"_id" json:"id"`
	Name     string             `bson:"name" json:"name"`
	NameCI   string             `bson:"name_ci" json:"-"` // ← always stored
	Verified bool               `bson:"verified" json:"verified"`

	FollowerCount   int        `bson:"follower_count" json:"follower_count"`
	FollowerCountAt *time.Time `bson:"follower_count_at,omitempty" json:"follower_count_at,omitempty"`

	// GroupsArePrivate forces every group in the org to be treated as private.
	GroupsArePrivate     *bool `bson:"groups_are_private,omitempty" json:"groups_are_private,omitempty"`
	AllowPublicGroupJoin bool  `bson:"allow_public_group_join" json:"allow_public_group_join"`

	AdminIDs []primitive.ObjectID `bson:"admin_ids,omitempty" json:"-"`

	Status    string    `bson:"status" json:"status"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// HasAdmin reports whether userID is listed as an administrator of the org.
func (o Organization) HasAdmin(userID primitive.ObjectID) bool {
	for _, id := range o.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
