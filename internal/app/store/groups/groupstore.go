// internal/app/store/groups/groupstore.go
package groupstore

import (
	"context"
	"errors"

	"github.com/dalemusser/alerthub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

var ErrNotFound = errors.New("group not found")

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("groups")}
}

// ListByOrg returns every group of orgID sorted by name, with no privacy
// filtering. Callers decide visibility.
func (s *Store) ListByOrg(ctx context.Context, orgID primitive.ObjectID) ([]models.Group, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"organization_id": orgID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var groups []models.Group
	if err := cur.All(ctx, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// GetInOrg loads groupID and checks that it belongs to orgID.
func (s *Store) GetInOrg(ctx context.Context, orgID, groupID primitive.ObjectID) (models.Group, error) {
	var g models.Group
	err := s.c.FindOne(ctx, bson.M{"_id": groupID, "organization_id": orgID}).Decode(&g)
	if err == mongo.ErrNoDocuments {
		return models.Group{}, ErrNotFound
	}
	if err != nil {
		return models.Group{}, err
	}
	return g, nil
}
