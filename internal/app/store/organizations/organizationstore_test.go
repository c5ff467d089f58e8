package organizationstore_test

import (
	"testing"

	organizationstore "github.com/dalemusser/alerthub/internal/app/store/organizations"
	"github.com/dalemusser/alerthub/internal/domain/models"
	"github.com/dalemusser/alerthub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStore_CreateAndGet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := organizationstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.Organization{Name: "Acme Relief", FollowerCount: 99})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.NameCI != "acme relief" {
		t.Errorf("expected folded name, got %q", created.NameCI)
	}
	if created.FollowerCount != 0 {
		t.Errorf("Create must not accept a caller-supplied follower count, got %d", created.FollowerCount)
	}

	got, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Name != "Acme Relief" || got.Status != "active" {
		t.Errorf("unexpected organization: %+v", got)
	}
}

func TestStore_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := organizationstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.GetByID(ctx, primitive.NewObjectID()); err != organizationstore.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_SetFollowerCount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := organizationstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	org := fixtures.CreateOrganization(ctx, "Acme")
	if err := store.SetFollowerCount(ctx, org.ID, 11); err != nil {
		t.Fatalf("SetFollowerCount failed: %v", err)
	}
	got, err := store.GetByID(ctx, org.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.FollowerCount != 11 || got.FollowerCountAt == nil {
		t.Errorf("expected count 11 with timestamp, got %d / %v", got.FollowerCount, got.FollowerCountAt)
	}

	if err := store.SetFollowerCount(ctx, primitive.NewObjectID(), 1); err != organizationstore.ErrNotFound {
		t.Errorf("expected ErrNotFound for unknown org, got %v", err)
	}
}

func TestStore_ListIDs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := organizationstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := fixtures.CreateOrganization(ctx, "A")
	b := fixtures.CreateOrganization(ctx, "B")

	ids, err := store.ListIDs(ctx)
	if err != nil {
		t.Fatalf("ListIDs failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != a.ID || ids[1] != b.ID {
		t.Errorf("expected [%s %s], got %v", a.ID.Hex(), b.ID.Hex(), ids)
	}
}
