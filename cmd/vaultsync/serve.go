package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	httphandler "github.com/ericfisherdev/vaultsync/internal/adapter/driving/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the background sync loop and the local API",
	Long: `Run the background sync loop for the configured user and serve the
local JSON API until SIGINT or SIGTERM.

The sync loop is disabled when VAULTSYNC_USER_ID is unset; the API still
serves every user it is asked about.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	waitSync := goWait(func() { a.sync.Start(ctx) })
	// Deferred after Close, so it runs first: the loop stops before the DB closes.
	defer func() {
		stop()
		waitSync()
	}()

	apiHandler := httphandler.NewHandler(a.credentials, a.sync, a.audit, slog.Default())

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           httphandler.NewRouter(apiHandler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", a.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	slog.Info("vaultsync started",
		"listen_addr", a.cfg.ListenAddr,
		"sync_interval", a.cfg.SyncInterval,
		"user_id", a.cfg.UserID,
	)

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err, ok := <-serveErr:
		if ok {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// goWait runs fn on a new goroutine and returns a func that blocks until fn
// has returned.
func goWait(fn func()) (wait func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	return func() { <-done }
}
