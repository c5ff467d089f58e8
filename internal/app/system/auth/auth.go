// internal/app/system/auth/auth.go
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

/*─────────────────────────────────────────────────────────────────────────────*
| Session keys                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

const (
	userIDKey       = "user_id"
	roleKey         = "role"
	accessTokenKey  = "access_token"
	refreshTokenKey = "refresh_token"
	tokenExpiryKey  = "token_expiry" // unix seconds
)

// SessionUser is what a sign-in flow stores in the session.
type SessionUser struct {
	ID           primitive.ObjectID
	Role         string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time // zero means the session does not expire by token
}

/*─────────────────────────────────────────────────────────────────────────────*
| SessionManager                                                               |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionManager reads cookie sessions issued by the sign-in flow and
// restores them with the OAuth2 refresh token when the access token lapses.
// It implements subscriptions.SessionProvider on the request context.
type SessionManager struct {
	store *sessions.CookieStore
	name  string
	oauth *oauth2.Config
	log   *zap.Logger
	now   func() time.Time
}

// NewSessionManager builds a SessionManager. sessionKey signs the cookie and
// must be shared with the sign-in flow.
func NewSessionManager(sessionKey, name, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionKey == "" {
		return nil, fmt.Errorf("session key is empty; provide ≥32 random chars")
	}
	if len(sessionKey) < 32 {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(sessionKey)))
	}

	store := sessions.NewCookieStore([]byte(sessionKey))
	opts := &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if secure {
		opts.SameSite = http.SameSiteNoneMode
	}
	store.Options = opts

	logger.Info("session store initialized",
		zap.String("name", name),
		zap.Bool("secure", secure),
		zap.String("domain", domain))

	return &SessionManager{store: store, name: name, log: logger, now: time.Now}, nil
}

// GenerateDevKey returns a random session key for local development.
func GenerateDevKey() string {
	return string(securecookie.GenerateRandomKey(32))
}

// SetOAuth enables session restore through cfg's token endpoint.
func (m *SessionManager) SetOAuth(cfg *oauth2.Config) { m.oauth = cfg }

/*─────────────────────────────────────────────────────────────────────────────*
| Request context                                                              |
*─────────────────────────────────────────────────────────────────────────────*/

type ctxKey struct{}

// requestSession ties the cookie session to the response it must be saved on.
type requestSession struct {
	mu   sync.Mutex
	sess *sessions.Session
	w    http.ResponseWriter
	r    *http.Request
}

func fromContext(ctx context.Context) (*requestSession, bool) {
	rs, ok := ctx.Value(ctxKey{}).(*requestSession)
	return rs, ok && rs != nil
}

// LoadSession attaches the request's session to its context. An unreadable
// cookie (rotated key, tampering) is treated as signed out.
func (m *SessionManager) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.store.Get(r, m.name)
		if err != nil {
			var scErr securecookie.Error
			if errors.As(err, &scErr) && scErr.IsDecode() {
				m.log.Debug("discarding undecodable session cookie", zap.Error(err))
			} else {
				m.log.Warn("session load failed", zap.Error(err))
			}
		}
		rs := &requestSession{sess: sess, w: w, r: r}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, rs)))
	})
}

// RequireSignedIn rejects requests without a signed-in user with 401.
func (m *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := m.CurrentUserID(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "please sign in"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CurrentUserID returns the signed-in user of ctx.
func (m *SessionManager) CurrentUserID(ctx context.Context) (primitive.ObjectID, bool) {
	rs, ok := fromContext(ctx)
	if !ok {
		return primitive.NilObjectID, false
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	hex, _ := rs.sess.Values[userIDKey].(string)
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, false
	}
	return id, true
}

// Role returns the system role stored in the session.
func (m *SessionManager) Role(ctx context.Context) string {
	rs, ok := fromContext(ctx)
	if !ok {
		return ""
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	role, _ := rs.sess.Values[roleKey].(string)
	return strings.ToLower(role)
}

// IsSessionValid reports whether ctx has a signed-in user whose access token
// has not expired.
func (m *SessionManager) IsSessionValid(ctx context.Context) bool {
	if _, ok := m.CurrentUserID(ctx); !ok {
		return false
	}
	rs, _ := fromContext(ctx)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	exp, ok := rs.sess.Values[tokenExpiryKey].(int64)
	if !ok || exp == 0 {
		return true
	}
	return m.now().Before(time.Unix(exp, 0))
}

// RestoreSession exchanges the session's refresh token for a new access
// token and saves the session. It makes one attempt.
func (m *SessionManager) RestoreSession(ctx context.Context) bool {
	rs, ok := fromContext(ctx)
	if !ok || m.oauth == nil {
		return false
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()

	refresh, _ := rs.sess.Values[refreshTokenKey].(string)
	if refresh == "" {
		return false
	}
	expired := &oauth2.Token{RefreshToken: refresh, Expiry: m.now().Add(-time.Minute)}
	tok, err := m.oauth.TokenSource(ctx, expired).Token()
	if err != nil {
		m.log.Warn("session restore failed", zap.Error(err))
		return false
	}

	rs.sess.Values[accessTokenKey] = tok.AccessToken
	if tok.RefreshToken != "" {
		rs.sess.Values[refreshTokenKey] = tok.RefreshToken
	}
	if tok.Expiry.IsZero() {
		delete(rs.sess.Values, tokenExpiryKey)
	} else {
		rs.sess.Values[tokenExpiryKey] = tok.Expiry.Unix()
	}
	if err := rs.sess.Save(rs.r, rs.w); err != nil {
		m.log.Warn("saving restored session failed", zap.Error(err))
		return false
	}
	uid, _ := rs.sess.Values[userIDKey].(string)
	m.log.Info("session restored", zap.String("user_id", uid))
	return true
}

// SignIn writes a session for u. The production sign-in flow lives in a
// separate service that shares the key; this is used by it in-process and
// by tests.
func (m *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, u SessionUser) error {
	sess, _ := m.store.Get(r, m.name)
	sess.Values[userIDKey] = u.ID.Hex()
	sess.Values[roleKey] = u.Role
	sess.Values[accessTokenKey] = u.AccessToken
	sess.Values[refreshTokenKey] = u.RefreshToken
	if u.Expiry.IsZero() {
		delete(sess.Values, tokenExpiryKey)
	} else {
		sess.Values[tokenExpiryKey] = u.Expiry.Unix()
	}
	return sess.Save(r, w)
}
