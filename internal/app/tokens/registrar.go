// Package tokens associates push delivery tokens with user accounts.
//
// A user holds at most one active token. Registering replaces it, clearing
// leaves a tombstone so "cleared" and "never registered" stay distinct, and
// the remediation sweep back-fills tokens for followers of an organization
// from what their installations last reported.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tokenstore "github.com/dalemusser/alerthub/internal/app/store/tokens"
	"github.com/dalemusser/alerthub/internal/app/subscriptions"
	"github.com/dalemusser/alerthub/internal/app/system/keylock"
	"github.com/dalemusser/alerthub/internal/app/system/timeouts"
	"github.com/dalemusser/alerthub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"gopkg.in/go-playground/validator.v9"
)

// ErrInvalidToken is returned for an empty or malformed registration.
var ErrInvalidToken = errors.New("invalid token registration")

// Store persists one token record per user.
type Store interface {
	Get(ctx context.Context, userID primitive.ObjectID) (models.NotificationToken, error)
	Upsert(ctx context.Context, userID primitive.ObjectID, token, platform string) error
	Clear(ctx context.Context, userID primitive.ObjectID) (bool, error)
	ActiveUserIDs(ctx context.Context, userIDs []primitive.ObjectID) (map[primitive.ObjectID]bool, error)
}

// FollowerLister lists the followers of an organization.
type FollowerLister interface {
	ListFollowerIDs(ctx context.Context, orgID primitive.ObjectID) ([]primitive.ObjectID, error)
}

// TokenSource returns the newest token an installation of the user reported.
// It returns installstore.ErrNotFound when none did.
type TokenSource interface {
	LatestForUser(ctx context.Context, userID primitive.ObjectID) (models.DeviceInstall, error)
}

// Registration is a token as submitted by a client.
type Registration struct {
	Token    string `validate:"required,max=4096,excludesall=0x20"`
	Platform string `validate:"required,oneof=ios android web"`
}

// Registrar is the only writer of notification tokens.
type Registrar struct {
	store       Store
	followers   FollowerLister
	source      TokenSource
	validate    *validator.Validate
	locks       keylock.Map[primitive.ObjectID]
	concurrency int
	log         *zap.Logger
}

// DefaultConcurrency bounds the remediation sweep when no limit is configured.
const DefaultConcurrency = 8

func New(store Store, followers FollowerLister, source TokenSource, concurrency int, logger *zap.Logger) *Registrar {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Registrar{
		store:       store,
		followers:   followers,
		source:      source,
		validate:    validator.New(),
		concurrency: concurrency,
		log:         logger,
	}
}

func storeErr(err error) error {
	if errors.Is(err, subscriptions.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", subscriptions.ErrStoreUnavailable, err)
}

// RegisterToken makes token the user's active token, replacing any earlier
// one. Last writer wins.
func (r *Registrar) RegisterToken(ctx context.Context, userID primitive.ObjectID, token, platform string) error {
	reg := Registration{Token: strings.TrimSpace(token), Platform: strings.ToLower(strings.TrimSpace(platform))}
	if err := r.validate.Struct(reg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	unlock := r.locks.Lock(userID)
	defer unlock()

	ctx, cancel := timeouts.Detached(ctx, timeouts.Short(), r.log, "tokens.register")
	defer cancel()

	if err := r.store.Upsert(ctx, userID, reg.Token, reg.Platform); err != nil {
		return storeErr(err)
	}
	r.log.Info("notification token registered",
		zap.String("user_id", userID.Hex()),
		zap.String("token_fp", tokenstore.Fingerprint(reg.Token)),
		zap.String("platform", reg.Platform))
	return nil
}

// HandleTokenIssued is called when the push platform issues a new token for
// the signed-in installation.
func (r *Registrar) HandleTokenIssued(ctx context.Context, userID primitive.ObjectID, token, platform string) error {
	r.log.Debug("push platform issued token",
		zap.String("user_id", userID.Hex()),
		zap.String("platform", platform))
	return r.RegisterToken(ctx, userID, token, platform)
}

// ClearToken tombstones the user's token. Clearing a user that never
// registered succeeds.
func (r *Registrar) ClearToken(ctx context.Context, userID primitive.ObjectID) error {
	unlock := r.locks.Lock(userID)
	defer unlock()

	ctx, cancel := timeouts.Detached(ctx, timeouts.Short(), r.log, "tokens.clear")
	defer cancel()

	existed, err := r.store.Clear(ctx, userID)
	if err != nil {
		return storeErr(err)
	}
	r.log.Info("notification token cleared",
		zap.String("user_id", userID.Hex()),
		zap.Bool("existed", existed))
	return nil
}

// Status is the lifecycle state of a user's token.
type Status string

const (
	StatusNone    Status = "none"
	StatusActive  Status = "active"
	StatusCleared Status = "cleared"
)

// TokenStatus describes a user's token without exposing it.
type TokenStatus struct {
	Status      Status     `json:"status"`
	Platform    string     `json:"platform,omitempty"`
	Fingerprint string     `json:"token_fp,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	ClearedAt   *time.Time `json:"cleared_at,omitempty"`
}

// Lookup returns the token state of userID.
func (r *Registrar) Lookup(ctx context.Context, userID primitive.ObjectID) (TokenStatus, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), r.log, "tokens.lookup")
	defer cancel()

	tok, err := r.store.Get(ctx, userID)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return TokenStatus{Status: StatusNone}, nil
	}
	if err != nil {
		return TokenStatus{}, storeErr(err)
	}

	updated := tok.UpdatedAt
	st := TokenStatus{Platform: tok.Platform, UpdatedAt: &updated, ClearedAt: tok.ClearedAt}
	if tok.Status == models.TokenActive {
		st.Status = StatusActive
		st.Fingerprint = tok.TokenFP
	} else {
		st.Status = StatusCleared
	}
	return st, nil
}
