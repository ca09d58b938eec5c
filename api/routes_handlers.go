package api

import "simplicity-itsm/api/handlers"

type routeHandlers struct {
	auth      *handlers.AuthHandler
	orgs      *handlers.OrgsHandler
	users     *handlers.UsersHandler
	incidents *handlers.IncidentsHandler
	audit     *handlers.AuditHandler
	billing   *handlers.BillingHandler
	dashboard *handlers.DashboardHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	return routeHandlers{
		auth:      handlers.NewAuthHandler(s.authSvc, s.recorder, s.logger),
		orgs:      handlers.NewOrgsHandler(s.orgs, s.recorder, s.logger),
		users:     handlers.NewUsersHandler(s.users, s.recorder, s.logger),
		incidents: handlers.NewIncidentsHandler(s.incidentsSvc, s.logger),
		audit:     handlers.NewAuditHandler(s.audits),
		billing:   handlers.NewBillingHandler(s.billingSvc, s.logger),
		dashboard: handlers.NewDashboardHandler(s.incidentsStore),
	}
}
