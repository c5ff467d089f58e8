package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Token statuses.
const (
	TokenActive  = "active"
	TokenCleared = "cleared"
)

// NotificationToken is the push delivery token for a user's installation.
// One document per user. A cleared token keeps its document with the token
// field removed, so "cleared" stays distinguishable from "never registered".
type NotificationToken struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	Token     string             `bson:"token,omitempty" json:"-"`
	TokenFP   string             `bson:"token_fp,omitempty" json:"token_fp,omitempty"` // blake2b-128 hex
	Platform  string             `bson:"platform,omitempty" json:"platform,omitempty"`
	Status    string             `bson:"status" json:"status"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
	ClearedAt *time.Time         `bson:"cleared_at,omitempty" json:"cleared_at,omitempty"`
}
