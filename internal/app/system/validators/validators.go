// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates collections (if missing) and tries to attach JSON-Schema
// validators. On servers that don't support collMod/validators (e.g. some
// DocumentDB versions), we log and skip gracefully.
func EnsureAll(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	var problems []string

	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll, logger); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema, logger); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) {
				logger.Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	// Directory collections owned by other services; we read and follow.
	ensure("users", usersSchema())
	ensure("organizations", orgsSchema())
	ensure("groups", groupsSchema())

	// Subscription state
	ensure("group_preferences", groupPreferencesSchema())
	ensure("notification_tokens", notificationTokensSchema())
	ensure("device_installs", deviceInstallsSchema())

	ensure("audit_events", nil)

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

// collectionExists returns true when <name> already exists.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string, logger *zap.Logger) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		logger.Debug("collection exists", zap.String("collection", name))
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		if isNamespaceExistsErr(err) {
			return false, nil
		}
		logger.Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	logger.Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

// setValidator attaches validator with moderate validation, so documents
// written before the validator existed can still be updated.
func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M, logger *zap.Logger) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	logger.Debug("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func commandMatches(err error, code int32, phrases ...string) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == code {
		return true
	}
	s := strings.ToLower(err.Error())
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func isNamespaceExistsErr(err error) bool {
	return commandMatches(err, 48, "already exists", "namespace exists")
}

func isNoSuchCommand(err error) bool {
	return commandMatches(err, 59, "no such command")
}

func isNotImplemented(err error) bool {
	return commandMatches(err, 115, "not implemented", "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

var nonBlank = bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"}

func usersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"full_name", "role"},
			"properties": bson.M{
				"full_name":              nonBlank,
				"role":                   bson.M{"enum": bson.A{"admin", "user"}},
				"status":                 bson.M{"enum": bson.A{"active", "disabled"}},
				"followed_organizations": bson.M{"bsonType": "array", "items": bson.M{"bsonType": "objectId"}},
			},
		},
	}
}

func orgsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"name", "name_ci", "status"},
			"properties": bson.M{
				"name":           nonBlank,
				"name_ci":        nonBlank,
				"status":         bson.M{"enum": bson.A{"active", "disabled"}},
				"follower_count": bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0},
				"admin_ids":      bson.M{"bsonType": "array", "items": bson.M{"bsonType": "objectId"}},
			},
		},
	}
}

func groupsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"organization_id", "name"},
			"properties": bson.M{
				"organization_id": bson.M{"bsonType": "objectId"},
				"name":            nonBlank,
				"is_private":      bson.M{"bsonType": "bool"},
			},
		},
	}
}

func groupPreferencesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "org_id", "group_id", "enabled"},
			"properties": bson.M{
				"user_id":  bson.M{"bsonType": "objectId"},
				"org_id":   bson.M{"bsonType": "objectId"},
				"group_id": bson.M{"bsonType": "objectId"},
				"enabled":  bson.M{"bsonType": "bool"},
			},
		},
	}
}

// notificationTokensSchema requires a token on active records. A cleared
// record is a tombstone with the token removed.
func notificationTokensSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "status", "updated_at"},
			"properties": bson.M{
				"user_id":  bson.M{"bsonType": "objectId"},
				"status":   bson.M{"enum": bson.A{"active", "cleared"}},
				"platform": bson.M{"enum": bson.A{"ios", "android", "web"}},
			},
			"oneOf": bson.A{
				bson.M{
					"properties": bson.M{"status": bson.M{"enum": bson.A{"active"}}},
					"required":   bson.A{"token"},
				},
				bson.M{
					"properties": bson.M{"status": bson.M{"enum": bson.A{"cleared"}}},
				},
			},
		},
	}
}

func deviceInstallsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "install_id", "platform", "seen_at"},
			"properties": bson.M{
				"user_id":    bson.M{"bsonType": "objectId"},
				"install_id": nonBlank,
				"platform":   bson.M{"enum": bson.A{"ios", "android", "web"}},
				"seen_at":    bson.M{"bsonType": "date"},
			},
		},
	}
}
