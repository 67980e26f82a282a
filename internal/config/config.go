// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	APIBaseURL     string
	UserID         int64 // Zero disables the background sync loop.
	SessionCookie  string
	SyncInterval   time.Duration
	RequestTimeout time.Duration
	ListenAddr     string
	DBPath         string
	LogLevel       slog.Level
	LogFormat      string // "text" or "json"
	LogFile        string // Empty logs to stderr.
}

// HasUser reports whether a user is configured for background sync.
func (c *Config) HasUser() bool {
	return c.UserID > 0
}

// Load reads .env from the working directory when present, then the
// environment. Variables already set in the environment win over .env.
func Load() (*Config, error) {
	return LoadWithEnvFile(".env")
}

// LoadWithEnvFile is Load with an explicit dotenv path. A missing file is not
// an error.
//
// Optional variables with defaults: VAULTSYNC_API_BASE_URL (http://localhost:5000),
// VAULTSYNC_SYNC_INTERVAL (5m), VAULTSYNC_REQUEST_TIMEOUT (10s),
// VAULTSYNC_LISTEN_ADDR (127.0.0.1:8080), VAULTSYNC_DB_PATH (vaultsync.db),
// VAULTSYNC_LOG_LEVEL (info), VAULTSYNC_LOG_FORMAT (text). VAULTSYNC_USER_ID,
// VAULTSYNC_SESSION_COOKIE and VAULTSYNC_LOG_FILE default to empty.
func LoadWithEnvFile(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg := &Config{
		APIBaseURL:     "http://localhost:5000",
		SyncInterval:   5 * time.Minute,
		RequestTimeout: 10 * time.Second,
		ListenAddr:     "127.0.0.1:8080",
		DBPath:         "vaultsync.db",
		LogLevel:       slog.LevelInfo,
		LogFormat:      "text",
	}

	if v, ok := os.LookupEnv("VAULTSYNC_API_BASE_URL"); ok {
		cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(v), "/")
	}
	u, err := url.Parse(cfg.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("VAULTSYNC_API_BASE_URL must be an http(s) URL, got %q", cfg.APIBaseURL)
	}

	if v, ok := os.LookupEnv("VAULTSYNC_USER_ID"); ok && strings.TrimSpace(v) != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("VAULTSYNC_USER_ID must be a positive integer, got %q", v)
		}
		cfg.UserID = id
	}

	cfg.SessionCookie = strings.TrimSpace(os.Getenv("VAULTSYNC_SESSION_COOKIE"))

	if cfg.SyncInterval, err = durationEnv("VAULTSYNC_SYNC_INTERVAL", cfg.SyncInterval); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = durationEnv("VAULTSYNC_REQUEST_TIMEOUT", cfg.RequestTimeout); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv("VAULTSYNC_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}

	if v, ok := os.LookupEnv("VAULTSYNC_DB_PATH"); ok {
		cfg.DBPath = v
	}

	if v, ok := os.LookupEnv("VAULTSYNC_LOG_LEVEL"); ok {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("VAULTSYNC_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	if v, ok := os.LookupEnv("VAULTSYNC_LOG_FORMAT"); ok {
		switch f := strings.ToLower(strings.TrimSpace(v)); f {
		case "text", "json":
			cfg.LogFormat = f
		default:
			return nil, fmt.Errorf("VAULTSYNC_LOG_FORMAT must be text or json, got %q", v)
		}
	}

	cfg.LogFile = os.Getenv("VAULTSYNC_LOG_FILE")

	return cfg, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", key, v)
	}
	return parsed, nil
}
