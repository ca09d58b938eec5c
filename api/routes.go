package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"simplicity-itsm/core/features"
	"simplicity-itsm/core/rbac"
)

func (s *Server) Routes() http.Handler {
	h := s.newRouteHandlers()

	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.realIPMiddleware)
	r.Use(s.securityHeadersMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metricsHandler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/signup", h.auth.Signup)
		r.Post("/auth/login", h.auth.Login)
		r.Post("/webhooks/billing", h.billing.Webhook)

		r.Route("/orgs/{orgID}", func(r chi.Router) {
			r.Use(s.withTenant)

			r.Get("/", s.requirePermission(rbac.ActionIncidentsRead)(h.orgs.Get))
			r.Patch("/", s.requirePermission(rbac.ActionOrgManage)(h.orgs.Update))
			r.Get("/features", s.requirePermission(rbac.ActionIncidentsRead)(h.orgs.Features))
			r.Get("/billing", s.requirePermission(rbac.ActionBillingManage)(h.orgs.Billing))
			r.With(s.requireFeature(features.IncidentManagement)).
				Get("/dashboard", s.requirePermission(rbac.ActionIncidentsRead)(h.dashboard.Overview))

			r.Route("/incidents", func(r chi.Router) {
				r.Use(s.requireFeature(features.IncidentManagement))
				r.Get("/", s.requirePermission(rbac.ActionIncidentsRead)(h.incidents.List))
				r.Post("/", s.requirePermission(rbac.ActionIncidentsWrite)(h.incidents.Create))
				r.Get("/{incidentID}", s.requirePermission(rbac.ActionIncidentsRead)(h.incidents.Get))
				r.Patch("/{incidentID}", s.requirePermission(rbac.ActionIncidentsWrite)(h.incidents.Update))
				r.Post("/{incidentID}/notes", s.requirePermission(rbac.ActionIncidentsWrite)(h.incidents.AddNote))
				r.Get("/{incidentID}/timeline", s.requirePermission(rbac.ActionIncidentsRead)(h.incidents.Timeline))
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/", s.requirePermission(rbac.ActionUsersManage)(h.users.List))
				r.Post("/", s.requirePermission(rbac.ActionUsersManage)(h.users.Invite))
				r.Patch("/{userID}", s.requirePermission(rbac.ActionUsersManage)(h.users.Update))
			})

			r.Get("/audit", s.requirePermission(rbac.ActionAuditRead)(h.audit.List))
		})
	})

	return r
}
