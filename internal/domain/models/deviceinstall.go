package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DeviceInstall is what the app reports about itself on launch.
// The remediation sweep uses the newest one per user as its token source.
type DeviceInstall struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	InstallID string             `bson:"install_id" json:"install_id"`
	PushToken string             `bson:"push_token,omitempty" json:"-"`
	Platform  string             `bson:"platform" json:"platform"`
	SeenAt    time.Time          `bson:"seen_at" json:"seen_at"`
}
