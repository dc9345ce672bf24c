package app

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Run starts background work and serves the HTTP API until ctx is
// cancelled, then shuts down gracefully
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.Config.Server.Address(),
		Handler:           a.Handler(),
		ReadTimeout:       a.Config.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      a.Config.Server.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.Logger.WithFields(map[string]interface{}{
			"address":     srv.Addr,
			"environment": a.Config.Server.Environment,
			"db_driver":   a.DB.Driver,
		}).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("Shutting down")
	case runErr = <-serveErr:
		a.Logger.ErrorWithErr(runErr, "HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorWithErr(err, "HTTP server shutdown failed")
	}
	if err := a.Close(shutdownCtx); err != nil {
		a.Logger.ErrorWithErr(err, "Failed to flush pending snapshots")
		if runErr == nil {
			runErr = err
		}
	}

	a.Logger.Info("Server stopped")
	return runErr
}
