// internal/app/store/follows/followstore.go
package followstore

// The follow relationship lives on the user document as
// users.followed_organizations. That array is the single source of truth:
// follower counts are derived from it by query, and group preferences for an
// organization are removed together with the follow.

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/alerthub/internal/app/system/txn"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type Store struct {
	client *mongo.Client
	users  *mongo.Collection
	prefs  *mongo.Collection
	log    *zap.Logger
}

var ErrUserNotFound = errors.New("user not found")

func New(db *mongo.Database, logger *zap.Logger) *Store {
	return &Store{
		client: db.Client(),
		users:  db.Collection("users"),
		prefs:  db.Collection("group_preferences"),
		log:    logger,
	}
}

// IsFollowing reports whether userID's followed set contains orgID.
func (s *Store) IsFollowing(ctx context.Context, userID, orgID primitive.ObjectID) (bool, error) {
	opts := options.FindOne().SetProjection(bson.M{"_id": 1})
	err := s.users.FindOne(ctx, bson.M{"_id": userID, "followed_organizations": orgID}, opts).Err()
	if err == nil {
		return true, nil
	}
	if err != mongo.ErrNoDocuments {
		return false, err
	}

	// Not following; distinguish a missing user.
	n, err := s.users.CountDocuments(ctx, bson.M{"_id": userID}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, ErrUserNotFound
	}
	return false, nil
}

// SetFollowing adds or removes orgID from userID's followed set.
//
// Both directions are idempotent: following an org already followed, or
// unfollowing one not followed, succeeds without change. Unfollowing also
// deletes the user's group preferences for that org in the same transaction,
// so a later re-follow starts from the opted-out default.
func (s *Store) SetFollowing(ctx context.Context, userID, orgID primitive.ObjectID, following bool) error {
	now := time.Now().UTC()

	if following {
		res, err := s.users.UpdateOne(ctx,
			bson.M{"_id": userID},
			bson.M{
				"$addToSet": bson.M{"followed_organizations": orgID},
				"$set":      bson.M{"follows_updated_at": now},
			})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return ErrUserNotFound
		}
		return nil
	}

	return txn.Run(ctx, s.client, s.log, func(ctx context.Context) error {
		res, err := s.users.UpdateOne(ctx,
			bson.M{"_id": userID},
			bson.M{
				"$pull": bson.M{"followed_organizations": orgID},
				"$set":  bson.M{"follows_updated_at": now},
			})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return ErrUserNotFound
		}
		_, err = s.prefs.DeleteMany(ctx, bson.M{"user_id": userID, "org_id": orgID})
		return err
	})
}

// CountFollowers counts users whose followed set contains orgID.
func (s *Store) CountFollowers(ctx context.Context, orgID primitive.ObjectID) (int64, error) {
	return s.users.CountDocuments(ctx, bson.M{"followed_organizations": orgID})
}

// ListFollowerIDs returns the ids of users following orgID in _id order.
func (s *Store) ListFollowerIDs(ctx context.Context, orgID primitive.ObjectID) ([]primitive.ObjectID, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.users.Find(ctx, bson.M{"followed_organizations": orgID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []primitive.ObjectID
	for cur.Next(ctx) {
		var row struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		ids = append(ids, row.ID)
	}
	return ids, cur.Err()
}
