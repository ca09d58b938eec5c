package appbootstrap

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"simplicity-itsm/api"
	"simplicity-itsm/config"
	"simplicity-itsm/core/utils"
)

const shutdownTimeout = 15 * time.Second

// Run composes the application and serves until SIGINT/SIGTERM, then shuts
// down the server and workers gracefully.
func Run(cfg *config.AppConfig, logger *utils.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := Compose(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	for _, w := range app.Workers {
		if err := w.Start(ctx); err != nil {
			return err
		}
	}

	server := api.NewServer(app.Deps).HTTPServer()
	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	for _, w := range app.Workers {
		w.Stop()
	}
	return nil
}
