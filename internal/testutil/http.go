package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dalemusser/alerthub/internal/app/system/auth"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// TestSessionKey signs cookies in handler tests.
const TestSessionKey = "test-session-key-must-be-32-chars-long"

// NewSessionManager returns a session manager for handler tests.
func NewSessionManager(t *testing.T) *auth.SessionManager {
	t.Helper()
	sm, err := auth.NewSessionManager(TestSessionKey, "alerthub-test", "", 24*time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	return sm
}

// SessionCookies signs in userID with role and returns the issued cookies.
func SessionCookies(t *testing.T, sm *auth.SessionManager, userID primitive.ObjectID, role string) []*http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	u := auth.SessionUser{ID: userID, Role: role, AccessToken: "test-access"}
	if err := sm.SignIn(rec, httptest.NewRequest(http.MethodGet, "/", nil), u); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	return rec.Result().Cookies()
}

// SignedInRequest builds a request carrying a session for userID.
func SignedInRequest(t *testing.T, sm *auth.SessionManager, userID primitive.ObjectID, method, target string, body io.Reader) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for _, c := range SessionCookies(t, sm, userID, "member") {
		req.AddCookie(c)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}
