// internal/app/store/installs/installstore.go
package installstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/alerthub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

var ErrNotFound = errors.New("no device install with a push token")

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("device_installs")}
}

// Record upserts what an installation reported on launch. One document per
// (user_id, install_id).
func (s *Store) Record(ctx context.Context, d models.DeviceInstall) error {
	set := bson.M{
		"platform": d.Platform,
		"seen_at":  time.Now().UTC(),
	}
	update := bson.M{"$set": set}
	if d.PushToken != "" {
		set["push_token"] = d.PushToken
	} else {
		update["$unset"] = bson.M{"push_token": ""}
	}
	_, err := s.c.UpdateOne(ctx,
		bson.M{"user_id": d.UserID, "install_id": d.InstallID},
		update,
		options.Update().SetUpsert(true))
	return err
}

// LatestForUser returns the most recently seen install of userID that
// reported a push token.
func (s *Store) LatestForUser(ctx context.Context, userID primitive.ObjectID) (models.DeviceInstall, error) {
	var d models.DeviceInstall
	opts := options.FindOne().SetSort(bson.D{{Key: "seen_at", Value: -1}})
	err := s.c.FindOne(ctx, bson.M{
		"user_id":    userID,
		"push_token": bson.M{"$exists": true, "$ne": ""},
	}, opts).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return models.DeviceInstall{}, ErrNotFound
	}
	if err != nil {
		return models.DeviceInstall{}, err
	}
	return d, nil
}
