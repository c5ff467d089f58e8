// internal/app/bootstrap/routes.go
package bootstrap

import (
	"fmt"
	"net/http"

	followsfeature "github.com/dalemusser/alerthub/internal/app/features/follows"
	healthfeature "github.com/dalemusser/alerthub/internal/app/features/health"
	tokensfeature "github.com/dalemusser/alerthub/internal/app/features/tokens"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// the Startup hook have completed. Health is public. Every other route runs
// behind the session middleware and requires a signed-in user.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	svc := deps.svc
	if svc == nil || svc.coordinator == nil {
		return nil, fmt.Errorf("build handler: Startup has not run")
	}

	r := chi.NewRouter()

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, deps.Redis, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	r.Group(func(r chi.Router) {
		r.Use(svc.sessions.LoadSession)

		followsHandler := followsfeature.NewHandler(svc.coordinator, svc.sessions, logger)
		followsHandler.Audit = svc.audit
		followsfeature.Routes(r, followsHandler, svc.sessions)

		tokensHandler := tokensfeature.NewHandler(svc.registrar, svc.installs, svc.coordinator,
			svc.reconciler, svc.sessions, logger)
		tokensHandler.Audit = svc.audit
		tokensfeature.Routes(r, tokensHandler, svc.sessions, svc.orgOps)
	})

	return r, nil
}
