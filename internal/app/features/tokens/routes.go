// internal/app/features/tokens/routes.go
package tokens

import (
	"net/http"

	"github.com/dalemusser/alerthub/internal/app/system/auth"
	"github.com/dalemusser/alerthub/internal/app/system/ratelimit"
	"github.com/go-chi/chi/v5"
)

// Routes registers the token, install and organization admin endpoints on
// r. Signed-in users only. orgOps limits the admin operations per
// organization; nil leaves them unlimited.
func Routes(r chi.Router, h *Handler, sm *auth.SessionManager, orgOps *ratelimit.Limiter) {
	r.Group(func(r chi.Router) {
		r.Use(sm.RequireSignedIn)

		r.Get("/tokens", h.ServeStatus)
		r.Put("/tokens", h.ServeRegister)
		r.Delete("/tokens", h.ServeClear)
		r.Put("/installs", h.ServeInstall)

		r.Group(func(r chi.Router) {
			if orgOps != nil {
				r.Use(orgOps.Middleware(func(req *http.Request) string {
					return chi.URLParam(req, "orgID")
				}))
			}
			r.Post("/orgs/{orgID}/tokens/remediate", h.ServeRemediate)
			r.Post("/orgs/{orgID}/reconcile", h.ServeReconcile)
		})
	})
}
