package validators_test

import (
	"testing"
	"time"

	"github.com/dalemusser/alerthub/internal/app/system/validators"
	"github.com/dalemusser/alerthub/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	require.NoError(t, validators.EnsureAll(ctx, db, zap.NewNop()))
	require.NoError(t, validators.EnsureAll(ctx, db, zap.NewNop()))
}

func TestEnsureAll_CreatesCollections(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	require.NoError(t, validators.EnsureAll(ctx, db, zap.NewNop()))

	names, err := db.ListCollectionNames(ctx, bson.M{})
	require.NoError(t, err)
	for _, want := range []string{
		"users", "organizations", "groups",
		"group_preferences", "notification_tokens", "device_installs", "audit_events",
	} {
		assert.Contains(t, names, want)
	}
}

func TestEnsureAll_EnforcesSchemas(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	require.NoError(t, validators.EnsureAll(ctx, db, zap.NewNop()))
	now := time.Now().UTC()

	tests := []struct {
		name    string
		coll    string
		doc     bson.M
		wantErr bool
	}{
		{"valid user", "users", bson.M{"full_name": "Ada", "role": "user"}, false},
		{"user bad role", "users", bson.M{"full_name": "Ada", "role": "owner"}, true},
		{"org blank name", "organizations", bson.M{"name": "   ", "name_ci": "x", "status": "active"}, true},
		{"org negative count", "organizations", bson.M{"name": "Acme", "name_ci": "acme", "status": "active", "follower_count": -1}, true},
		{"valid preference", "group_preferences", bson.M{
			"user_id": primitive.NewObjectID(), "org_id": primitive.NewObjectID(),
			"group_id": primitive.NewObjectID(), "enabled": true,
		}, false},
		{"preference missing group", "group_preferences", bson.M{
			"user_id": primitive.NewObjectID(), "org_id": primitive.NewObjectID(), "enabled": true,
		}, true},
		{"active token", "notification_tokens", bson.M{
			"user_id": primitive.NewObjectID(), "status": "active", "token": "abc", "platform": "ios", "updated_at": now,
		}, false},
		{"active token without token", "notification_tokens", bson.M{
			"user_id": primitive.NewObjectID(), "status": "active", "updated_at": now,
		}, true},
		{"tombstone", "notification_tokens", bson.M{
			"user_id": primitive.NewObjectID(), "status": "cleared", "updated_at": now, "cleared_at": now,
		}, false},
		{"install bad platform", "device_installs", bson.M{
			"user_id": primitive.NewObjectID(), "install_id": "i-1", "platform": "symbian", "seen_at": now,
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.Collection(tt.coll).InsertOne(ctx, tt.doc)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
