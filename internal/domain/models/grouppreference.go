package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GroupPreference is a user's notification opt-in for one group.
// Exactly one document per (user_id, org_id, group_id). A missing document
// means the user has not opted in.
type GroupPreference struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	OrgID     primitive.ObjectID `bson:"org_id" json:"org_id"`
	GroupID   primitive.ObjectID `bson:"group_id" json:"group_id"`
	Enabled   bool               `bson:"enabled" json:"enabled"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}
