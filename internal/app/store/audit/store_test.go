package audit_test

import (
	"testing"
	"time"

	"github.com/dalemusser/alerthub/internal/app/store/audit"
	"github.com/dalemusser/alerthub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStore_Log(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	err := store.Log(ctx, audit.Event{
		Category:  audit.CategorySubscription,
		EventType: audit.EventTokenRegistered,
		UserID:    &userID,
		IP:        "192.168.1.1",
		UserAgent: "TestApp/1.0",
		Success:   true,
	})
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	events, err := store.GetByUser(ctx, userID, 10)
	if err != nil {
		t.Fatalf("GetByUser failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ID.IsZero() {
		t.Error("expected ID to be generated")
	}
	if events[0].Timestamp.IsZero() {
		t.Error("expected Timestamp to be set")
	}
}

func TestStore_QueryFilters(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	orgID := primitive.NewObjectID()
	actor := primitive.NewObjectID()
	base := time.Now().UTC().Add(-time.Hour)

	events := []audit.Event{
		{Category: audit.CategoryAdmin, EventType: audit.EventTokensRemediated, OrganizationID: &orgID, ActorID: &actor, Success: true, Timestamp: base},
		{Category: audit.CategoryAdmin, EventType: audit.EventFollowerCountReconciled, OrganizationID: &orgID, ActorID: &actor, Success: true, Timestamp: base.Add(time.Minute)},
		{Category: audit.CategorySubscription, EventType: audit.EventFollowed, OrganizationID: &orgID, Success: true, Timestamp: base.Add(2 * time.Minute)},
		{Category: audit.CategoryAdmin, EventType: audit.EventOrgAccessDenied, Success: false, Timestamp: base.Add(3 * time.Minute)},
	}
	for _, e := range events {
		if err := store.Log(ctx, e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	byOrg, err := store.GetByOrganization(ctx, orgID, 10)
	if err != nil {
		t.Fatalf("GetByOrganization failed: %v", err)
	}
	if len(byOrg) != 3 {
		t.Fatalf("expected 3 org events, got %d", len(byOrg))
	}
	if byOrg[0].EventType != audit.EventFollowed {
		t.Errorf("expected newest first, got %s", byOrg[0].EventType)
	}

	tests := []struct {
		name   string
		filter audit.QueryFilter
		want   int64
	}{
		{"category", audit.QueryFilter{Category: audit.CategoryAdmin}, 3},
		{"event type", audit.QueryFilter{EventType: audit.EventTokensRemediated}, 1},
		{"org and category", audit.QueryFilter{OrganizationID: &orgID, Category: audit.CategoryAdmin}, 2},
		{"since", audit.QueryFilter{StartTime: timePtr(base.Add(90 * time.Second))}, 2},
		{"window", audit.QueryFilter{StartTime: timePtr(base), EndTime: timePtr(base.Add(time.Minute))}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := store.CountByFilter(ctx, tt.filter)
			if err != nil {
				t.Fatalf("CountByFilter failed: %v", err)
			}
			if n != tt.want {
				t.Errorf("count = %d, want %d", n, tt.want)
			}
		})
	}

	page, err := store.Query(ctx, audit.QueryFilter{Category: audit.CategoryAdmin, Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(page) != 2 || page[0].EventType != audit.EventFollowerCountReconciled {
		t.Errorf("unexpected page %+v", page)
	}
}

func timePtr(t time.Time) *time.Time { return &t }
