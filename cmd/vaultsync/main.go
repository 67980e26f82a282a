package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container
	"gopkg.in/natefinch/lumberjack.v2"

	sqliteadapter "github.com/ericfisherdev/vaultsync/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/vaultsync/internal/adapter/driven/vaultapi"
	"github.com/ericfisherdev/vaultsync/internal/application"
	"github.com/ericfisherdev/vaultsync/internal/config"
)

var (
	userIDFlag int64
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "vaultsync",
	Short: "Local mirror and API for a remote password vault",
	Long: `vaultsync keeps a local SQLite mirror of a remote password vault and
serves it over a local JSON API.

Configuration comes from VAULTSYNC_* environment variables and an optional
.env file in the working directory.

Examples:
  vaultsync serve
  vaultsync sync --user 42 --full
  vaultsync list --user 42
  vaultsync audit --user 42 --json`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().Int64Var(&userIDFlag, "user", 0, "user id (default VAULTSYNC_USER_ID)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// app holds the wired adapters and services shared by every subcommand.
type app struct {
	cfg         *config.Config
	db          *sqliteadapter.DB
	logCloser   io.Closer
	sync        *application.SyncService
	credentials *application.CredentialService
	audit       *application.AuditService
}

// newApp loads configuration, installs the logger, opens and migrates the
// database and wires the services.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logCloser := setupLogger(cfg)

	slog.Info("config loaded",
		"api_base_url", cfg.APIBaseURL,
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"sync_interval", cfg.SyncInterval,
		"user_id", cfg.UserID,
	)

	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		closeQuietly(logCloser)
		return nil, err
	}
	slog.Info("database opened", "path", db.Path())

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		closeQuietly(logCloser)
		return nil, err
	}
	slog.Info("migrations complete")

	api, err := vaultapi.NewClient(vaultapi.Options{
		BaseURL:       cfg.APIBaseURL,
		Timeout:       cfg.RequestTimeout,
		SessionCookie: cfg.SessionCookie,
	})
	if err != nil {
		_ = db.Close()
		closeQuietly(logCloser)
		return nil, err
	}

	store := sqliteadapter.NewCredentialRepo(db)
	validator := application.NewSessionValidator(api)
	auditSvc := application.NewAuditService(api, validator)

	return &app{
		cfg:         cfg,
		db:          db,
		logCloser:   logCloser,
		sync:        application.NewSyncService(api, store, validator, cfg.UserID, cfg.SyncInterval),
		credentials: application.NewCredentialService(api, store, validator, auditSvc),
		audit:       auditSvc,
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
	closeQuietly(a.logCloser)
}

// userID resolves --user, falling back to the configured user.
func (a *app) userID() (int64, error) {
	if userIDFlag > 0 {
		return userIDFlag, nil
	}
	if a.cfg.HasUser() {
		return a.cfg.UserID, nil
	}
	return 0, fmt.Errorf("no user: pass --user or set VAULTSYNC_USER_ID")
}

// setupLogger installs the default slog logger. When a log file is configured
// output is rotated by lumberjack and the returned closer flushes it.
func setupLogger(cfg *config.Config) io.Closer {
	var out io.Writer = os.Stderr
	var closer io.Closer

	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		out, closer = rotator, rotator
	}

	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))

	return closer
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
