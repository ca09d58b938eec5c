package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"simplicity-itsm/config"
	"simplicity-itsm/core/utils"
)

// NewDB opens the configured database and waits for it to accept
// connections. Production runs on postgres via pgx; the sqlite driver exists
// for the go test runtime (see ApplyMigrations).
func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*sql.DB, error) {
	driver := "pgx"
	if cfg.DBDriver == "sqlite" {
		driver = "sqlite"
	}
	db, err := sql.Open(driver, cfg.DBURL)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// modernc sqlite handles one writer; serialize through the pool.
		db.SetMaxOpenConns(1)
	}
	ping := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return db.PingContext(ctx)
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(ping, bo); err != nil {
		_ = db.Close()
		return nil, err
	}
	if logger != nil {
		logger.Printf("database ready driver=%s", driver)
	}
	return db, nil
}
