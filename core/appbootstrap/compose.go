// Package appbootstrap wires configuration, storage, services and workers
// into a runnable application.
package appbootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"simplicity-itsm/api"
	"simplicity-itsm/config"
	"simplicity-itsm/core/audit"
	"simplicity-itsm/core/auth"
	"simplicity-itsm/core/billing"
	"simplicity-itsm/core/incidents"
	"simplicity-itsm/core/notify"
	"simplicity-itsm/core/rbac"
	"simplicity-itsm/core/store"
	"simplicity-itsm/core/tenant"
	"simplicity-itsm/core/utils"
)

type App struct {
	Deps    api.ServerDeps
	Workers []api.BackgroundWorker
	DB      *sql.DB
}

// Compose builds the full dependency graph from configuration. It opens the
// database and applies migrations; Close releases what it opened.
func Compose(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) (*App, error) {
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.ApplyMigrations(ctx, db, cfg.DBDriver, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	orgs := store.NewOrgsStore(db)
	users := store.NewUsersStore(db)
	incidentsStore := store.NewIncidentsStore(db)
	auditStore := store.NewAuditStore(db)

	policy, err := rbac.NewPolicy()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	tokens, err := auth.NewTokenManager(cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	recorder := audit.NewRecorder(auditStore, logger)
	notifier := notify.NewService(logger,
		notify.NewSlackSender(cfg.Notifications.SlackWebhookURL),
		notify.NewEmailSender(cfg.Notifications),
	)

	deps := api.ServerDeps{
		Config:         cfg,
		Logger:         logger,
		Tokens:         tokens,
		AuthSvc:        auth.NewService(orgs, users, tokens, logger),
		Resolver:       tenant.NewResolver(orgs, users, policy),
		IncidentsSvc:   incidents.NewService(incidentsStore, users, recorder, notifier, logger),
		BillingSvc:     billing.NewService(orgs, recorder, cfg.Billing, logger),
		Recorder:       recorder,
		Orgs:           orgs,
		Users:          users,
		Audits:         auditStore,
		IncidentsStore: incidentsStore,
	}

	workers := []api.BackgroundWorker{
		audit.NewSweeper(auditStore, cfg, logger),
	}

	return &App{Deps: deps, Workers: workers, DB: db}, nil
}

func (a *App) Close() {
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
