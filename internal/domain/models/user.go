// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is an app account.
//
// NOTE:
//   - FollowedOrganizations is the authoritative follow relationship.
//     Follower counts are derived from it; there is no followers
//     sub-collection on organizations.
type User struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FullName   string             `bson:"full_name" json:"full_name"`
	FullNameCI string             `bson:"full_name_ci" json:"-"` // lowercase, diacritics-stripped
	Email      string             `bson:"email" json:"email"`
	EmailCI    string             `bson:"email_ci" json:"-"`
	Role       string             `bson:"role" json:"role"` // admin | user
	Status     string             `bson:"status,omitempty" json:"status,omitempty"`

	FollowedOrganizations []primitive.ObjectID `bson:"followed_organizations,omitempty" json:"followed_organizations,omitempty"`
	FollowsUpdatedAt      *time.Time           `bson:"follows_updated_at,omitempty" json:"follows_updated_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Follows reports whether orgID is in the user's followed set.
func (u User) Follows(orgID primitive.ObjectID) bool {
	for _, id := range u.FollowedOrganizations {
		if id == orgID {
			return true
		}
	}
	return false
}
