// internal/app/store/tokens/tokenstore.go
package tokenstore

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/dalemusser/alerthub/internal/app/system/txn"
	"github.com/dalemusser/alerthub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

type Store struct {
	client *mongo.Client
	c      *mongo.Collection
	log    *zap.Logger
}

var ErrNotFound = errors.New("notification token not found")

func New(db *mongo.Database, logger *zap.Logger) *Store {
	return &Store{
		client: db.Client(),
		c:      db.Collection("notification_tokens"),
		log:    logger,
	}
}

// Fingerprint returns a short stable digest of a push token. Tokens are
// matched and logged by fingerprint, never by value.
func Fingerprint(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}

// Get returns the token document for userID, including cleared tombstones.
func (s *Store) Get(ctx context.Context, userID primitive.ObjectID) (models.NotificationToken, error) {
	var tok models.NotificationToken
	err := s.c.FindOne(ctx, bson.M{"user_id": userID}).Decode(&tok)
	if err == mongo.ErrNoDocuments {
		return models.NotificationToken{}, ErrNotFound
	}
	if err != nil {
		return models.NotificationToken{}, err
	}
	return tok, nil
}

// Upsert makes token the single active token of userID.
//
// In one transaction it tombstones any other user's active record holding the
// same token (the device switched accounts) and overwrites userID's record.
// The user's previous token is superseded by the same write, so two active
// tokens can never exist for one installation.
func (s *Store) Upsert(ctx context.Context, userID primitive.ObjectID, token, platform string) error {
	fp := Fingerprint(token)
	now := time.Now().UTC()

	return txn.Run(ctx, s.client, s.log, func(ctx context.Context) error {
		if _, err := s.c.UpdateMany(ctx,
			bson.M{"token_fp": fp, "user_id": bson.M{"$ne": userID}, "status": models.TokenActive},
			bson.M{
				"$set":   bson.M{"status": models.TokenCleared, "cleared_at": now, "updated_at": now},
				"$unset": bson.M{"token": "", "token_fp": ""},
			}); err != nil {
			return err
		}

		_, err := s.c.UpdateOne(ctx,
			bson.M{"user_id": userID},
			bson.M{
				"$set": bson.M{
					"token":      token,
					"token_fp":   fp,
					"platform":   platform,
					"status":     models.TokenActive,
					"updated_at": now,
				},
				"$unset": bson.M{"cleared_at": ""},
			},
			options.Update().SetUpsert(true))
		return err
	})
}

// Clear tombstones userID's token. It reports whether a record existed;
// clearing a user that never registered is not an error.
func (s *Store) Clear(ctx context.Context, userID primitive.ObjectID) (bool, error) {
	now := time.Now().UTC()
	res, err := s.c.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$set":   bson.M{"status": models.TokenCleared, "cleared_at": now, "updated_at": now},
			"$unset": bson.M{"token": "", "token_fp": ""},
		})
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// ActiveUserIDs returns which of userIDs currently hold an active token.
func (s *Store) ActiveUserIDs(ctx context.Context, userIDs []primitive.ObjectID) (map[primitive.ObjectID]bool, error) {
	out := make(map[primitive.ObjectID]bool)
	if len(userIDs) == 0 {
		return out, nil
	}
	opts := options.Find().SetProjection(bson.M{"user_id": 1})
	cur, err := s.c.Find(ctx, bson.M{
		"user_id": bson.M{"$in": userIDs},
		"status":  models.TokenActive,
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var row struct {
			UserID primitive.ObjectID `bson:"user_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.UserID] = true
	}
	return out, cur.Err()
}
