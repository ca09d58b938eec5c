package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"strings"

	"github.com/pressly/goose/v3"

	"simplicity-itsm/core/utils"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS organizations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		plan TEXT NOT NULL DEFAULT 'free',
		feature_overrides TEXT NOT NULL DEFAULT '{}',
		billing_customer_id TEXT NOT NULL DEFAULT '',
		subscription_id TEXT NOT NULL DEFAULT '',
		subscription_status TEXT NOT NULL DEFAULT '',
		current_period_end TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		email TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		roles TEXT NOT NULL DEFAULT '[]',
		password_hash TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE(org_id, email),
		FOREIGN KEY(org_id) REFERENCES organizations(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS incidents (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		severity TEXT NOT NULL DEFAULT 'P3',
		status TEXT NOT NULL DEFAULT 'open',
		assignees TEXT NOT NULL DEFAULT '[]',
		reporter_id TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		affected_services TEXT NOT NULL DEFAULT '[]',
		resolved_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY(org_id) REFERENCES organizations(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS incident_timeline (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		incident_id TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL,
		old_value TEXT NOT NULL DEFAULT '',
		new_value TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY(incident_id) REFERENCES incidents(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		org_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		action TEXT NOT NULL,
		resource TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '{}',
		ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_users_org ON users(org_id);`,
	`CREATE INDEX IF NOT EXISTS idx_orgs_billing_customer ON organizations(billing_customer_id);`,
	`CREATE INDEX IF NOT EXISTS idx_incidents_org_status ON incidents(org_id, status);`,
	`CREATE INDEX IF NOT EXISTS idx_incidents_org_severity ON incidents(org_id, severity);`,
	`CREATE INDEX IF NOT EXISTS idx_incidents_org_created ON incidents(org_id, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_incident_timeline_incident ON incident_timeline(incident_id);`,
	`CREATE INDEX IF NOT EXISTS idx_audit_org_created ON audit_log(org_id, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_audit_org_resource ON audit_log(org_id, resource, resource_id);`,
	`CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at);`,
}

// ApplyMigrations brings the schema up to date. Postgres goes through goose
// with the embedded migration files; the raw statement list keeps the sqlite
// database used inside go test in sync with them.
func ApplyMigrations(ctx context.Context, db *sql.DB, driver string, logger *utils.Logger) error {
	if driver != "sqlite" {
		return applyGooseMigrations(ctx, db, logger)
	}
	if !isTestRuntime() {
		return fmt.Errorf("sqlite is only supported inside the go test runtime")
	}
	return applySQLiteTestMigrations(ctx, db, logger)
}

func applyGooseMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	goose.SetBaseFS(embeddedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	if logger != nil {
		logger.Printf("postgres migrations applied")
	}
	return nil
}

func applySQLiteTestMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	for i, stmt := range sqliteMigrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migration #%d failed: %w", i+1, err)
		}
	}
	if logger != nil {
		logger.Printf("sqlite test migrations applied")
	}
	return nil
}

func isTestRuntime() bool {
	exe := os.Args[0]
	return strings.HasSuffix(exe, ".test") || strings.Contains(exe, "/_test/") || strings.Contains(exe, "go-build")
}
