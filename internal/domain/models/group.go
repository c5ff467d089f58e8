// internal/domain/models/group.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Group is an alert audience inside an organization.
//
// NOTE:
//   - IsPrivate is a pointer on purpose: a document without the field is
//     treated as private, never as public.
type Group struct {
	ID              primitive.ObjectID `bson:"_id" json:"id"`
	OrganizationID  primitive.ObjectID `bson:"organization_id" json:"organization_id"`
	Name            string             `bson:"name" json:"name"`
	NameCI          string             `bson:"name_ci" json:"-"`
	IsPrivate       *bool              `bson:"is_private,omitempty" json:"is_private,omitempty"`
	AllowPublicJoin bool               `bson:"allow_public_join" json:"allow_public_join"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Private reports the effective privacy of g within org.
// Absent metadata resolves to private.
func (g Group) Private(org Organization) bool {
	if org.GroupsArePrivate != nil && *org.GroupsArePrivate {
		return true
	}
	if g.IsPrivate == nil {
		return true
	}
	return *g.IsPrivate
}
