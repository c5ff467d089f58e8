package tokens_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tokensfeature "github.com/dalemusser/alerthub/internal/app/features/tokens"
	"github.com/dalemusser/alerthub/internal/app/followercount"
	"github.com/dalemusser/alerthub/internal/app/store/audit"
	followstore "github.com/dalemusser/alerthub/internal/app/store/follows"
	installstore "github.com/dalemusser/alerthub/internal/app/store/installs"
	organizationstore "github.com/dalemusser/alerthub/internal/app/store/organizations"
	tokenstore "github.com/dalemusser/alerthub/internal/app/store/tokens"
	userstore "github.com/dalemusser/alerthub/internal/app/store/users"
	"github.com/dalemusser/alerthub/internal/app/subscriptions"
	"github.com/dalemusser/alerthub/internal/app/system/auditlog"
	"github.com/dalemusser/alerthub/internal/app/system/auth"
	"github.com/dalemusser/alerthub/internal/app/system/ratelimit"
	"github.com/dalemusser/alerthub/internal/app/tokens"
	"github.com/dalemusser/alerthub/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type testEnv struct {
	fx     *testutil.Fixtures
	sm     *auth.SessionManager
	orgs   *organizationstore.Store
	tokens *tokenstore.Store
	audit  *audit.Store
	router http.Handler
}

func newTestEnv(t *testing.T, orgOps *ratelimit.Limiter) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	sm := testutil.NewSessionManager(t)

	follows := followstore.New(db, logger)
	orgs := organizationstore.New(db)
	installs := installstore.New(db)
	tokStore := tokenstore.New(db, logger)
	recon := followercount.New(follows, orgs, logger)
	admins := subscriptions.New(subscriptions.Deps{
		Organizations: orgs,
		Users:         userstore.New(db),
	}, logger)
	reg := tokens.New(tokStore, follows, installs, 2, logger)

	auditStore := audit.New(db)
	h := tokensfeature.NewHandler(reg, installs, admins, recon, sm, logger)
	h.Audit = auditlog.New(auditStore, logger, auditlog.Config{Subscription: "db", Admin: "db"})

	r := chi.NewRouter()
	r.Use(sm.LoadSession)
	tokensfeature.Routes(r, h, sm, orgOps)
	return &testEnv{
		fx:     testutil.NewFixtures(t, db),
		sm:     sm,
		orgs:   orgs,
		tokens: tokStore,
		audit:  auditStore,
		router: r,
	}
}

func (e *testEnv) do(t *testing.T, userID primitive.ObjectID, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = testutil.SignedInRequest(t, e.sm, userID, method, target, nil)
	} else {
		req = testutil.SignedInRequest(t, e.sm, userID, method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type statusBody struct {
	Status   string `json:"status"`
	Platform string `json:"platform"`
	TokenFP  string `json:"token_fp"`
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) statusBody {
	t.Helper()
	var st statusBody
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return st
}

func TestTokens_Lifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	user := env.fx.CreateUser(ctx, "Ada", "ada@example.com")

	rec := env.do(t, user.ID, http.MethodGet, "/tokens", "")
	if rec.Code != http.StatusOK || decodeStatus(t, rec).Status != "none" {
		t.Fatalf("initial status: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, user.ID, http.MethodPut, "/tokens", `{"token":"tok-123","platform":"iOS"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("register: %d %s", rec.Code, rec.Body.String())
	}
	st := decodeStatus(t, rec)
	if st.Status != "active" || st.Platform != "ios" || st.TokenFP != tokenstore.Fingerprint("tok-123") {
		t.Errorf("after register: %+v", st)
	}
	if strings.Contains(rec.Body.String(), "tok-123") {
		t.Error("status must not expose the raw token")
	}

	rec = env.do(t, user.ID, http.MethodDelete, "/tokens", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("clear: got %d", rec.Code)
	}
	rec = env.do(t, user.ID, http.MethodGet, "/tokens", "")
	if got := decodeStatus(t, rec).Status; got != "cleared" {
		t.Errorf("after clear: status %q, want cleared", got)
	}

	// Clearing again is still a success.
	rec = env.do(t, user.ID, http.MethodDelete, "/tokens", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("second clear: got %d", rec.Code)
	}
}

func TestTokens_RejectsInvalid(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	user := env.fx.CreateUser(ctx, "Bo", "bo@example.com")

	tests := []struct {
		name string
		body string
	}{
		{"empty token", `{"token":"","platform":"ios"}`},
		{"whitespace token", `{"token":"   ","platform":"ios"}`},
		{"token with space", `{"token":"a b","platform":"ios"}`},
		{"unknown platform", `{"token":"abc","platform":"symbian"}`},
		{"not json", `token=abc`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, user.ID, http.MethodPut, "/tokens", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("got %d, want 400: %s", rec.Code, rec.Body.String())
			}
		})
	}

	rec := env.do(t, user.ID, http.MethodGet, "/tokens", "")
	if got := decodeStatus(t, rec).Status; got != "none" {
		t.Errorf("rejected registrations must not write, status %q", got)
	}
}

func TestInstalls_Record(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	user := env.fx.CreateUser(ctx, "Cy", "cy@example.com")

	rec := env.do(t, user.ID, http.MethodPut, "/installs", `{"install_id":"dev-1","push_token":"push-1","platform":"android"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("record: got %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, user.ID, http.MethodPut, "/installs", `{"platform":"android"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing install_id: got %d, want 400", rec.Code)
	}
}

type remediationBody struct {
	Followers        int      `json:"followers"`
	Missing          int      `json:"missing"`
	Registered       int      `json:"registered"`
	NoTokenAvailable int      `json:"no_token_available"`
	Failed           int      `json:"failed"`
	FailedUserIDs    []string `json:"failed_user_ids"`
}

func TestRemediate_AdminOnly(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin := env.fx.CreateUser(ctx, "Admin", "admin@example.com")
	org := env.fx.CreateOrganization(ctx, "Acme", admin.ID)
	member := env.fx.CreateUser(ctx, "Member", "member@example.com", org.ID)
	sysAdmin := env.fx.CreateAdmin(ctx, "Root", "root@example.com")

	path := "/orgs/" + org.ID.Hex() + "/tokens/remediate"
	if rec := env.do(t, member.ID, http.MethodPost, path, ""); rec.Code != http.StatusForbidden {
		t.Errorf("member: got %d, want 403", rec.Code)
	}
	if rec := env.do(t, admin.ID, http.MethodPost, path, ""); rec.Code != http.StatusOK {
		t.Errorf("org admin: got %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, sysAdmin.ID, http.MethodPost, path, ""); rec.Code != http.StatusOK {
		t.Errorf("system admin: got %d, want 200", rec.Code)
	}
	if rec := env.do(t, admin.ID, http.MethodPost, "/orgs/"+primitive.NewObjectID().Hex()+"/tokens/remediate", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown org: got %d, want 404", rec.Code)
	}

	denied, err := env.audit.CountByFilter(ctx, audit.QueryFilter{OrganizationID: &org.ID, EventType: audit.EventOrgAccessDenied})
	if err != nil {
		t.Fatalf("count audit: %v", err)
	}
	if denied != 1 {
		t.Errorf("access denied events: got %d, want 1", denied)
	}
	runs, err := env.audit.CountByFilter(ctx, audit.QueryFilter{OrganizationID: &org.ID, EventType: audit.EventTokensRemediated})
	if err != nil {
		t.Fatalf("count audit: %v", err)
	}
	if runs != 2 {
		t.Errorf("remediation events: got %d, want 2", runs)
	}
}

func TestRemediate_RegistersFromInstalls(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin := env.fx.CreateUser(ctx, "Admin", "admin@example.com")
	org := env.fx.CreateOrganization(ctx, "Acme", admin.ID)
	followers := env.fx.CreateFollowers(ctx, org.ID, 3)
	env.fx.CreateDeviceInstall(ctx, followers[0].ID, "i-0", "push-0", "ios", time.Now())
	env.fx.CreateDeviceInstall(ctx, followers[1].ID, "i-1", "push-1", "android", time.Now())

	rec := env.do(t, admin.ID, http.MethodPost, "/orgs/"+org.ID.Hex()+"/tokens/remediate", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	var got remediationBody
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Followers != 3 || got.Missing != 3 || got.Registered != 2 || got.NoTokenAvailable != 1 || got.Failed != 0 {
		t.Errorf("report = %+v", got)
	}

	tok, err := env.tokens.Get(ctx, followers[1].ID)
	if err != nil {
		t.Fatalf("token not written: %v", err)
	}
	if tok.Platform != "android" {
		t.Errorf("platform = %q, want android", tok.Platform)
	}

	// A second run finds nothing missing for the two registered users.
	rec = env.do(t, admin.ID, http.MethodPost, "/orgs/"+org.ID.Hex()+"/tokens/remediate", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Missing != 1 {
		t.Errorf("second run missing = %d, want 1", got.Missing)
	}
}

func TestReconcile_RecomputesCount(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin := env.fx.CreateUser(ctx, "Admin", "admin@example.com")
	org := env.fx.CreateOrganization(ctx, "Acme", admin.ID)
	env.fx.CreateFollowers(ctx, org.ID, 4)
	if err := env.orgs.SetFollowerCount(ctx, org.ID, 99); err != nil {
		t.Fatalf("seed stale count: %v", err)
	}

	rec := env.do(t, admin.ID, http.MethodPost, "/orgs/"+org.ID.Hex()+"/reconcile", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		FollowerCount int `json:"follower_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.FollowerCount != 4 {
		t.Errorf("follower_count = %d, want 4", got.FollowerCount)
	}
	stored, err := env.orgs.GetByID(ctx, org.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.FollowerCount != 4 {
		t.Errorf("stored count = %d, want 4", stored.FollowerCount)
	}
}

func TestOrgOps_RateLimited(t *testing.T) {
	limiter := ratelimit.New(1, time.Minute)
	defer limiter.Stop()
	env := newTestEnv(t, limiter)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin := env.fx.CreateUser(ctx, "Admin", "admin@example.com")
	org := env.fx.CreateOrganization(ctx, "Acme", admin.ID)
	path := "/orgs/" + org.ID.Hex() + "/reconcile"

	if rec := env.do(t, admin.ID, http.MethodPost, path, ""); rec.Code != http.StatusOK {
		t.Fatalf("first: got %d", rec.Code)
	}
	if rec := env.do(t, admin.ID, http.MethodPost, path, ""); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second: got %d, want 429", rec.Code)
	}
}
