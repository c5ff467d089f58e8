// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/alerthub/internal/app/followcache"
	"github.com/dalemusser/alerthub/internal/app/followercount"
	"github.com/dalemusser/alerthub/internal/app/store/audit"
	followstore "github.com/dalemusser/alerthub/internal/app/store/follows"
	groupstore "github.com/dalemusser/alerthub/internal/app/store/groups"
	installstore "github.com/dalemusser/alerthub/internal/app/store/installs"
	organizationstore "github.com/dalemusser/alerthub/internal/app/store/organizations"
	preferencestore "github.com/dalemusser/alerthub/internal/app/store/preferences"
	tokenstore "github.com/dalemusser/alerthub/internal/app/store/tokens"
	userstore "github.com/dalemusser/alerthub/internal/app/store/users"
	"github.com/dalemusser/alerthub/internal/app/subscriptions"
	"github.com/dalemusser/alerthub/internal/app/system/auditlog"
	"github.com/dalemusser/alerthub/internal/app/system/auth"
	"github.com/dalemusser/alerthub/internal/app/system/eventrelay"
	"github.com/dalemusser/alerthub/internal/app/system/ratelimit"
	"github.com/dalemusser/alerthub/internal/app/system/timeouts"
	"github.com/dalemusser/alerthub/internal/app/system/workers"
	"github.com/dalemusser/alerthub/internal/app/tokens"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// services are the long-lived components shared by the handlers.
type services struct {
	sessions    *auth.SessionManager
	coordinator *subscriptions.Coordinator
	registrar   *tokens.Registrar
	reconciler  *followercount.Reconciler
	installs    *installstore.Store
	audit       *auditlog.Logger
	relay       *eventrelay.Relay
	jobs        *workers.Runner
	orgOps      *ratelimit.Limiter
}

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It builds
// the caches, the coordinator and the registrar, then starts the change
// relay and the background jobs.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.svc == nil {
		return fmt.Errorf("startup: DBDeps was not built by ConnectDB")
	}

	timeouts.Configure(timeouts.Config{
		Short: appCfg.TimeoutShort,
		Long:  appCfg.TimeoutLong,
		Batch: appCfg.TimeoutBatch,
	})

	sm, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain,
		appCfg.SessionMaxAge, coreCfg.Env == "prod", logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return err
	}
	if appCfg.OAuthTokenURL != "" {
		sm.SetOAuth(&oauth2.Config{
			ClientID:     appCfg.OAuthClientID,
			ClientSecret: appCfg.OAuthClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: appCfg.OAuthTokenURL},
		})
	}

	db := deps.MongoDatabase
	follows := followstore.New(db, logger)
	orgs := organizationstore.New(db)
	installs := installstore.New(db)
	reconciler := followercount.New(follows, orgs, logger)

	var relay *eventrelay.Relay
	var publisher subscriptions.Publisher
	if deps.Redis != nil {
		relay = eventrelay.New(deps.Redis, appCfg.RedisChannel, logger)
		publisher = relay
	}

	coord := subscriptions.New(subscriptions.Deps{
		Follows:         follows,
		Preferences:     preferencestore.New(db),
		Organizations:   orgs,
		Groups:          groupstore.New(db),
		Users:           userstore.New(db),
		Reconciler:      reconciler,
		Session:         sm,
		Publisher:       publisher,
		FollowCache:     followcache.NewFollows(),
		PreferenceCache: followcache.NewPreferences(),
	}, logger)

	auditLogger := auditlog.New(audit.New(db), logger, auditlog.Config{
		Subscription: appCfg.AuditLogSubscription,
		Admin:        appCfg.AuditLogAdmin,
	})

	registrar := tokens.New(tokenstore.New(db, logger), follows, installs, appCfg.RemediationConcurrency, logger)

	if relay != nil {
		if err := relay.Start(ctx, coord); err != nil {
			logger.Error("change relay start failed", zap.Error(err))
			return err
		}
	}

	jobs := workers.NewRunner(logger,
		workers.FollowerCountJob(reconciler, logger, appCfg.CountReconcileInterval, timeouts.Batch()),
		workers.CacheExpiryJob(coord, logger, appCfg.CacheTTL))
	jobs.Start()

	var orgOps *ratelimit.Limiter
	if appCfg.OrgOpsPerMinute > 0 {
		orgOps = ratelimit.New(appCfg.OrgOpsPerMinute, time.Minute)
	}

	*deps.svc = services{
		sessions:    sm,
		coordinator: coord,
		registrar:   registrar,
		reconciler:  reconciler,
		installs:    installs,
		audit:       auditLogger,
		relay:       relay,
		jobs:        jobs,
		orgOps:      orgOps,
	}
	return nil
}

// stop halts the background work started by Startup.
func (s *services) stop() {
	if s == nil {
		return
	}
	if s.jobs != nil {
		s.jobs.Stop()
	}
	if s.relay != nil {
		s.relay.Stop()
	}
	if s.orgOps != nil {
		s.orgOps.Stop()
	}
}
