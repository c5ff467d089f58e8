// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers the
// framework-level settings (ports, TLS, logging, CORS); everything specific
// to alerthub lives here and is passed to each lifecycle hook.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session management configuration. The key is shared with the sign-in
	// service that issues the cookies.
	SessionKey    string        // Secret key for signing session cookies (must be strong in production)
	SessionName   string        // Cookie name for sessions (default: alerthub-session)
	SessionDomain string        // Cookie domain (blank means current host)
	SessionMaxAge time.Duration // Cookie lifetime

	// OAuth2 token endpoint used to restore lapsed sessions
	OAuthClientID     string
	OAuthClientSecret string
	OAuthTokenURL     string // blank disables session restore

	// Cross-instance change relay
	RedisURL     string // blank disables the relay
	RedisChannel string

	// Background jobs and batch limits
	CountReconcileInterval time.Duration // zero disables the periodic sweep
	CacheTTL               time.Duration // age after which cached state is reloaded; zero keeps it
	RemediationConcurrency int
	OrgOpsPerMinute        int // admin remediate/reconcile calls per org per minute; zero is unlimited

	// Audit logging: "all", "db", "log" or "off"
	AuditLogSubscription string
	AuditLogAdmin        string

	// Store timeouts
	TimeoutShort time.Duration
	TimeoutLong  time.Duration
	TimeoutBatch time.Duration
}
