// internal/app/features/follows/routes.go
package follows

import (
	"github.com/dalemusser/alerthub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes registers the follow and preference endpoints on r. The endpoints
// share the /orgs/{orgID} prefix with other features, so they are added to
// the caller's router instead of being mounted. Every route requires a
// signed-in user.
func Routes(r chi.Router, h *Handler, sm *auth.SessionManager) {
	r.Group(func(r chi.Router) {
		r.Use(sm.RequireSignedIn)

		r.Get("/follows/stream", h.ServeStream)

		r.Get("/orgs/{orgID}/follow", h.ServeGetFollow)
		r.Put("/orgs/{orgID}/follow", h.ServeSetFollow)
		r.Get("/orgs/{orgID}/groups", h.ServeListGroups)
		r.Get("/orgs/{orgID}/groups/{groupID}/preference", h.ServeGetPreference)
		r.Put("/orgs/{orgID}/groups/{groupID}/preference", h.ServeSetPreference)
	})
}
