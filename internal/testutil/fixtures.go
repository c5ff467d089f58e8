package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/alerthub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// Bool returns a pointer to b, for the optional privacy flags.
func Bool(b bool) *bool { return &b }

// CreateOrganization creates an active organization with the given name.
func (f *Fixtures) CreateOrganization(ctx context.Context, name string, admins ...primitive.ObjectID) models.Organization {
	f.t.Helper()

	now := time.Now().UTC()
	org := models.Organization{
		ID:        primitive.NewObjectID(),
		Name:      name,
		NameCI:    text.Fold(name),
		AdminIDs:  admins,
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := f.db.Collection("organizations").InsertOne(ctx, org); err != nil {
		f.t.Fatalf("failed to create test organization: %v", err)
	}
	return org
}

// CreateGroup creates a group in orgID. A nil isPrivate stores no privacy
// field at all.
func (f *Fixtures) CreateGroup(ctx context.Context, name string, orgID primitive.ObjectID, isPrivate *bool) models.Group {
	f.t.Helper()

	now := time.Now().UTC()
	g := models.Group{
		ID:             primitive.NewObjectID(),
		OrganizationID: orgID,
		Name:           name,
		NameCI:         text.Fold(name),
		IsPrivate:      isPrivate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := f.db.Collection("groups").InsertOne(ctx, g); err != nil {
		f.t.Fatalf("failed to create test group: %v", err)
	}
	return g
}

// CreateUser creates a user who follows the given organizations.
func (f *Fixtures) CreateUser(ctx context.Context, fullName, email string, follows ...primitive.ObjectID) models.User {
	f.t.Helper()
	return f.createUser(ctx, fullName, email, "user", follows)
}

// CreateAdmin creates a user with the system admin role.
func (f *Fixtures) CreateAdmin(ctx context.Context, fullName, email string) models.User {
	f.t.Helper()
	return f.createUser(ctx, fullName, email, "admin", nil)
}

func (f *Fixtures) createUser(ctx context.Context, fullName, email, role string, follows []primitive.ObjectID) models.User {
	now := time.Now().UTC()
	u := models.User{
		ID:                    primitive.NewObjectID(),
		FullName:              fullName,
		FullNameCI:            text.Fold(fullName),
		Email:                 email,
		EmailCI:               text.Fold(email),
		Role:                  role,
		Status:                "active",
		FollowedOrganizations: follows,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

// CreateFollowers creates n users who each follow orgID.
func (f *Fixtures) CreateFollowers(ctx context.Context, orgID primitive.ObjectID, n int) []models.User {
	f.t.Helper()
	out := make([]models.User, 0, n)
	for i := 0; i < n; i++ {
		id := primitive.NewObjectID()
		out = append(out, f.CreateUser(ctx, "Follower "+id.Hex(), id.Hex()+"@example.com", orgID))
	}
	return out
}

// CreateDeviceInstall records an app launch reporting pushToken for userID.
func (f *Fixtures) CreateDeviceInstall(ctx context.Context, userID primitive.ObjectID, installID, pushToken, platform string, seenAt time.Time) models.DeviceInstall {
	f.t.Helper()
	d := models.DeviceInstall{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		InstallID: installID,
		PushToken: pushToken,
		Platform:  platform,
		SeenAt:    seenAt.UTC(),
	}
	if _, err := f.db.Collection("device_installs").InsertOne(ctx, d); err != nil {
		f.t.Fatalf("failed to create device install: %v", err)
	}
	return d
}
