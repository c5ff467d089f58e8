package auditlog_test

import (
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/alerthub/internal/app/store/audit"
	"github.com/dalemusser/alerthub/internal/app/system/auditlog"
	"github.com/dalemusser/alerthub/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_NilLogger(t *testing.T) {
	var logger *auditlog.Logger
	ctx, cancel := testutil.TestContext()
	defer cancel()
	req := httptest.NewRequest("GET", "/", nil)
	id := primitive.NewObjectID()

	logger.Log(ctx, audit.Event{EventType: "test"})
	logger.FollowChanged(ctx, req, id, id, true)
	logger.TokenRegistered(ctx, req, id, "ios", "abc")
	logger.TokenCleared(ctx, req, id)
	logger.TokensRemediated(ctx, req, id, id, 1, 1, 0)
	logger.FollowerCountReconciled(ctx, req, id, id, 3)
	logger.OrgAccessDenied(ctx, req, id, id, "remediate")
}

func TestLogger_Log_ConfigOff(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	logger := auditlog.New(store, zap.NewNop(), auditlog.Config{Subscription: "off", Admin: "off"})

	logger.Log(ctx, audit.Event{
		Category:  audit.CategorySubscription,
		EventType: audit.EventFollowed,
		UserID:    &userID,
		Success:   true,
	})

	events, err := store.GetByUser(ctx, userID, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestLogger_Log_ConfigLogOnly(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	core, logs := observer.New(zapcore.InfoLevel)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	logger := auditlog.New(store, zap.New(core), auditlog.Config{Subscription: "log"})
	logger.TokenCleared(ctx, httptest.NewRequest("DELETE", "/", nil), userID)

	events, err := store.GetByUser(ctx, userID, 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	entries := logs.FilterField(zap.String("event_type", audit.EventTokenCleared)).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "audit event", entries[0].Message)
}

func TestLogger_FollowChanged(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	orgID := primitive.NewObjectID()
	logger := auditlog.New(store, zap.NewNop(), auditlog.Config{Subscription: "db"})

	req := httptest.NewRequest("PUT", "/", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	req.Header.Set("User-Agent", "TestApp/1.0")

	logger.FollowChanged(ctx, req, userID, orgID, true)
	logger.FollowChanged(ctx, req, userID, orgID, false)

	events, err := store.GetByOrganization(ctx, orgID, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	types := []string{events[0].EventType, events[1].EventType}
	assert.ElementsMatch(t, []string{audit.EventFollowed, audit.EventUnfollowed}, types)
	assert.Equal(t, "192.168.1.1", events[0].IP)
	assert.Equal(t, "TestApp/1.0", events[0].UserAgent)
	assert.True(t, events[0].Success)
}

func TestLogger_TokensRemediated_PartialFailure(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	core, logs := observer.New(zapcore.InfoLevel)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	actorID := primitive.NewObjectID()
	orgID := primitive.NewObjectID()
	logger := auditlog.New(store, zap.New(core), auditlog.Config{Admin: "all"})

	logger.TokensRemediated(ctx, httptest.NewRequest("POST", "/", nil), actorID, orgID, 3, 2, 1)

	events, err := store.GetByOrganization(ctx, orgID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, audit.CategoryAdmin, e.Category)
	assert.False(t, e.Success)
	assert.Equal(t, "partial failure", e.FailureReason)
	assert.Equal(t, "3", e.Details["missing"])
	assert.Equal(t, "2", e.Details["registered"])
	assert.Equal(t, "1", e.Details["failed"])
	require.NotNil(t, e.ActorID)
	assert.Equal(t, actorID, *e.ActorID)

	warns := logs.FilterLevelExact(zapcore.WarnLevel).All()
	assert.Len(t, warns, 1)
}

func TestLogger_OrgAccessDenied(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	actorID := primitive.NewObjectID()
	orgID := primitive.NewObjectID()
	logger := auditlog.New(store, zap.NewNop(), auditlog.Config{Admin: "db"})

	logger.OrgAccessDenied(ctx, httptest.NewRequest("POST", "/", nil), actorID, orgID, "reconcile")

	count, err := store.CountByFilter(ctx, audit.QueryFilter{
		OrganizationID: &orgID,
		EventType:      audit.EventOrgAccessDenied,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
