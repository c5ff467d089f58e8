// internal/app/store/preferences/preferencestore.go
package preferencestore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("group_preferences")}
}

// Get returns the stored preference. found is false when the user has never
// set one for the group; callers must then treat it as disabled.
func (s *Store) Get(ctx context.Context, userID, orgID, groupID primitive.ObjectID) (enabled, found bool, err error) {
	var row struct {
		Enabled bool `bson:"enabled"`
	}
	err = s.c.FindOne(ctx, bson.M{"user_id": userID, "org_id": orgID, "group_id": groupID}).Decode(&row)
	if err == mongo.ErrNoDocuments {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return row.Enabled, true, nil
}

// Set upserts the preference for (userID, orgID, groupID). Re-applying the
// same value is a no-op apart from updated_at.
func (s *Store) Set(ctx context.Context, userID, orgID, groupID primitive.ObjectID, enabled bool) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"user_id": userID, "org_id": orgID, "group_id": groupID},
		bson.M{"$set": bson.M{
			"enabled":    enabled,
			"updated_at": time.Now().UTC(),
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

// ListByUserOrg returns every stored preference of userID in orgID keyed by
// group id. Groups without an entry are disabled.
func (s *Store) ListByUserOrg(ctx context.Context, userID, orgID primitive.ObjectID) (map[primitive.ObjectID]bool, error) {
	cur, err := s.c.Find(ctx, bson.M{"user_id": userID, "org_id": orgID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make(map[primitive.ObjectID]bool)
	for cur.Next(ctx) {
		var row struct {
			GroupID primitive.ObjectID `bson:"group_id"`
			Enabled bool               `bson:"enabled"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.GroupID] = row.Enabled
	}
	return out, cur.Err()
}
