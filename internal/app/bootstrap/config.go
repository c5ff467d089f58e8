// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"net/url"
	"time"

	"github.com/dalemusser/alerthub/internal/app/system/auth"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for alerthub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: ALERTHUB_MONGO_URI, ALERTHUB_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "alerthub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	{Name: "session_key", Default: "", Desc: "Session signing key shared with the sign-in service (generated in dev when blank)"},
	{Name: "session_name", Default: "alerthub-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "720h", Desc: "Session cookie lifetime"},

	// Session restore
	{Name: "oauth_client_id", Default: "", Desc: "OAuth2 client ID for refreshing sessions"},
	{Name: "oauth_client_secret", Default: "", Desc: "OAuth2 client secret"},
	{Name: "oauth_token_url", Default: "", Desc: "OAuth2 token endpoint (blank disables session restore)"},

	// Change relay
	{Name: "redis_url", Default: "", Desc: "Redis URL for the cross-instance change relay (blank disables it)"},
	{Name: "redis_channel", Default: "alerthub:changes", Desc: "Redis pub/sub channel for change events"},

	// Background work
	{Name: "count_reconcile_interval", Default: "15m", Desc: "How often every follower count is recomputed (0 disables)"},
	{Name: "cache_ttl", Default: "30m", Desc: "Age after which cached follow and preference state is reloaded from the store (0 disables)"},
	{Name: "remediation_concurrency", Default: 8, Desc: "Users remediated in parallel by a token sweep"},
	{Name: "org_ops_per_minute", Default: 6, Desc: "Admin remediate/reconcile calls allowed per organization per minute (0 is unlimited)"},

	// Audit logging
	{Name: "audit_log_subscription", Default: "all", Desc: "Follow and token event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_admin", Default: "all", Desc: "Admin event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	// Timeouts
	{Name: "timeout_short", Default: "5s", Desc: "Timeout for single-document store calls"},
	{Name: "timeout_long", Default: "15s", Desc: "Timeout for a whole follow/unfollow including reconcile"},
	{Name: "timeout_batch", Default: "2m", Desc: "Timeout for a token remediation sweep"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles .env files, config files,
// environment variables (WAFFLE_* for core, ALERTHUB_* for app) and flags,
// merged with precedence flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "ALERTHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		SessionKey:    appValues.String("session_key"),
		SessionName:   appValues.String("session_name"),
		SessionDomain: appValues.String("session_domain"),
		SessionMaxAge: appValues.Duration("session_max_age", 30*24*time.Hour),

		OAuthClientID:     appValues.String("oauth_client_id"),
		OAuthClientSecret: appValues.String("oauth_client_secret"),
		OAuthTokenURL:     appValues.String("oauth_token_url"),

		RedisURL:     appValues.String("redis_url"),
		RedisChannel: appValues.String("redis_channel"),

		CountReconcileInterval: appValues.Duration("count_reconcile_interval", 15*time.Minute),
		CacheTTL:               appValues.Duration("cache_ttl", 30*time.Minute),
		RemediationConcurrency: appValues.Int("remediation_concurrency"),
		OrgOpsPerMinute:        appValues.Int("org_ops_per_minute"),

		AuditLogSubscription: appValues.String("audit_log_subscription"),
		AuditLogAdmin:        appValues.String("audit_log_admin"),

		TimeoutShort: appValues.Duration("timeout_short", 5*time.Second),
		TimeoutLong:  appValues.Duration("timeout_long", 15*time.Second),
		TimeoutBatch: appValues.Duration("timeout_batch", 2*time.Minute),
	}

	// Dev convenience: a random key means sessions do not survive restarts.
	if appCfg.SessionKey == "" && coreCfg.Env == "dev" {
		appCfg.SessionKey = auth.GenerateDevKey()
		logger.Warn("session_key not set; generated a random dev key")
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// Connection strings are checked here so a typo fails fast instead of at
// the first request.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if appCfg.MongoDatabase == "" {
		return fmt.Errorf("mongo_database is required")
	}

	if appCfg.SessionKey == "" {
		return fmt.Errorf("session_key is required outside dev")
	}

	if appCfg.RedisURL != "" {
		if _, err := redis.ParseURL(appCfg.RedisURL); err != nil {
			logger.Error("invalid Redis URL", zap.Error(err))
			return fmt.Errorf("invalid redis_url: %w", err)
		}
		if appCfg.RedisChannel == "" {
			return fmt.Errorf("redis_channel is required when redis_url is set")
		}
	}

	if appCfg.OAuthTokenURL != "" {
		u, err := url.Parse(appCfg.OAuthTokenURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid oauth_token_url %q", appCfg.OAuthTokenURL)
		}
		if appCfg.OAuthClientID == "" {
			return fmt.Errorf("oauth_client_id is required when oauth_token_url is set")
		}
	}

	if appCfg.CountReconcileInterval < 0 {
		return fmt.Errorf("count_reconcile_interval must not be negative")
	}
	if appCfg.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must not be negative")
	}
	if appCfg.RemediationConcurrency < 0 || appCfg.OrgOpsPerMinute < 0 {
		return fmt.Errorf("remediation_concurrency and org_ops_per_minute must not be negative")
	}

	for key, v := range map[string]string{
		"audit_log_subscription": appCfg.AuditLogSubscription,
		"audit_log_admin":        appCfg.AuditLogAdmin,
	} {
		switch v {
		case "all", "db", "log", "off":
		default:
			return fmt.Errorf("%s must be one of all, db, log, off (got %q)", key, v)
		}
	}
	return nil
}
