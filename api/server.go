package api

import (
	"context"
	"net/http"
	"time"

	"simplicity-itsm/config"
	"simplicity-itsm/core/audit"
	"simplicity-itsm/core/auth"
	"simplicity-itsm/core/billing"
	"simplicity-itsm/core/incidents"
	"simplicity-itsm/core/store"
	"simplicity-itsm/core/tenant"
	"simplicity-itsm/core/utils"
)

// BackgroundWorker is anything composed alongside the server that runs its
// own loop (cron sweepers and the like).
type BackgroundWorker interface {
	Start(ctx context.Context) error
	Stop()
}

// ServerDeps collects everything the HTTP layer needs; appbootstrap builds
// it.
type ServerDeps struct {
	Config         *config.AppConfig
	Logger         *utils.Logger
	Tokens         *auth.TokenManager
	AuthSvc        *auth.Service
	Resolver       *tenant.Resolver
	IncidentsSvc   *incidents.Service
	BillingSvc     *billing.Service
	Recorder       *audit.Recorder
	Orgs           store.OrgsStore
	Users          store.UsersStore
	Audits         store.AuditStore
	IncidentsStore store.IncidentsStore
}

type Server struct {
	cfg            *config.AppConfig
	logger         *utils.Logger
	tokens         *auth.TokenManager
	authSvc        *auth.Service
	resolver       *tenant.Resolver
	incidentsSvc   *incidents.Service
	billingSvc     *billing.Service
	recorder       *audit.Recorder
	orgs           store.OrgsStore
	users          store.UsersStore
	audits         store.AuditStore
	incidentsStore store.IncidentsStore
}

func NewServer(deps ServerDeps) *Server {
	return &Server{
		cfg:            deps.Config,
		logger:         deps.Logger,
		tokens:         deps.Tokens,
		authSvc:        deps.AuthSvc,
		resolver:       deps.Resolver,
		incidentsSvc:   deps.IncidentsSvc,
		billingSvc:     deps.BillingSvc,
		recorder:       deps.Recorder,
		orgs:           deps.Orgs,
		users:          deps.Users,
		audits:         deps.Audits,
		incidentsStore: deps.IncidentsStore,
	}
}

// HTTPServer wraps the router in an http.Server with sane timeouts.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
