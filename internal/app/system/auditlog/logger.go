// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dalemusser/alerthub/internal/app/store/audit"
	"github.com/dalemusser/alerthub/internal/app/system/ratelimit"
	"github.com/dalemusser/alerthub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
type Config struct {
	// Subscription controls logging of follow and token lifecycle events.
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Subscription string
	// Admin controls logging of organization admin operations.
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Admin string
}

// Logger provides convenience methods for logging audit events.
// It logs to both MongoDB (via audit.Store) and structured logs (via zap).
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}

	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.OrganizationID != nil {
		fields = append(fields, zap.String("org_id", event.OrganizationID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
// The write is detached from the request so an abandoned request is still
// recorded.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategorySubscription:
		setting = l.config.Subscription
	case audit.CategoryAdmin:
		setting = l.config.Admin
	default:
		setting = "all"
	}

	if setting == "off" {
		return
	}

	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}

	if setting == "all" || setting == "db" {
		ctx, cancel := timeouts.Detached(ctx, timeouts.Short(), l.zapLog, "auditlog.store")
		defer cancel()
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

func fromRequest(r *http.Request, category, eventType string) audit.Event {
	return audit.Event{
		Category:  category,
		EventType: eventType,
		IP:        ratelimit.ClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
	}
}

// --- Subscription Events ---

// FollowChanged logs a follow or unfollow that reached the store.
func (l *Logger) FollowChanged(ctx context.Context, r *http.Request, userID, orgID primitive.ObjectID, following bool) {
	if l == nil {
		return
	}
	eventType := audit.EventUnfollowed
	if following {
		eventType = audit.EventFollowed
	}
	e := fromRequest(r, audit.CategorySubscription, eventType)
	e.UserID = &userID
	e.OrganizationID = &orgID
	l.Log(ctx, e)
}

// TokenRegistered logs a token registration. Only the fingerprint is kept.
func (l *Logger) TokenRegistered(ctx context.Context, r *http.Request, userID primitive.ObjectID, platform, tokenFP string) {
	if l == nil {
		return
	}
	e := fromRequest(r, audit.CategorySubscription, audit.EventTokenRegistered)
	e.UserID = &userID
	e.Details = map[string]string{"platform": platform, "token_fp": tokenFP}
	l.Log(ctx, e)
}

// TokenCleared logs a token being tombstoned.
func (l *Logger) TokenCleared(ctx context.Context, r *http.Request, userID primitive.ObjectID) {
	if l == nil {
		return
	}
	e := fromRequest(r, audit.CategorySubscription, audit.EventTokenCleared)
	e.UserID = &userID
	l.Log(ctx, e)
}

// --- Admin Events ---

// TokensRemediated logs a remediation sweep run by an admin. A sweep with
// failed users is recorded as unsuccessful.
func (l *Logger) TokensRemediated(ctx context.Context, r *http.Request, actorID, orgID primitive.ObjectID, missing, registered, failed int) {
	if l == nil {
		return
	}
	e := fromRequest(r, audit.CategoryAdmin, audit.EventTokensRemediated)
	e.ActorID = &actorID
	e.OrganizationID = &orgID
	e.Success = failed == 0
	if failed > 0 {
		e.FailureReason = "partial failure"
	}
	e.Details = map[string]string{
		"missing":    strconv.Itoa(missing),
		"registered": strconv.Itoa(registered),
		"failed":     strconv.Itoa(failed),
	}
	l.Log(ctx, e)
}

// FollowerCountReconciled logs an admin-triggered recount.
func (l *Logger) FollowerCountReconciled(ctx context.Context, r *http.Request, actorID, orgID primitive.ObjectID, count int) {
	if l == nil {
		return
	}
	e := fromRequest(r, audit.CategoryAdmin, audit.EventFollowerCountReconciled)
	e.ActorID = &actorID
	e.OrganizationID = &orgID
	e.Details = map[string]string{"follower_count": strconv.Itoa(count)}
	l.Log(ctx, e)
}

// OrgAccessDenied logs a non-admin attempting an admin operation.
func (l *Logger) OrgAccessDenied(ctx context.Context, r *http.Request, actorID, orgID primitive.ObjectID, op string) {
	if l == nil {
		return
	}
	e := fromRequest(r, audit.CategoryAdmin, audit.EventOrgAccessDenied)
	e.ActorID = &actorID
	e.OrganizationID = &orgID
	e.Success = false
	e.FailureReason = "not an organization admin"
	e.Details = map[string]string{"op": op}
	l.Log(ctx, e)
}
