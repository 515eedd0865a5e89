package config

import (
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// Config holds runtime configuration values for the wiki server.
type Config struct {
	DBPath         string
	ServerPort     int
	LogLevel       string
	HomePageName   string
	PageListTTL    time.Duration
	MaxUploadBytes int64
	SentryDSN      string
	Environment    string
	ShutdownGrace  time.Duration
}

const (
	defaultDBPath        = "./data/markwiki.db"
	defaultServerPort    = 8080
	defaultLogLevel      = "info"
	defaultHomePageName  = "home-page"
	defaultPageListTTL   = 30 * time.Minute
	defaultMaxUpload     = 8 << 20
	defaultShutdownGrace = 10 * time.Second
)

// Load reads configuration values from environment variables, applying defaults where necessary.
func Load() (*Config, error) {
	cfg := &Config{
		DBPath:        getEnv("DB_PATH", defaultDBPath),
		LogLevel:      getEnv("LOG_LEVEL", defaultLogLevel),
		HomePageName:  getEnv("HOME_PAGE_NAME", defaultHomePageName),
		SentryDSN:     os.Getenv("SENTRY_DSN"),
		Environment:   os.Getenv("ENV"),
		ShutdownGrace: defaultShutdownGrace,
	}

	portValue := getEnv("SERVER_PORT", strconv.Itoa(defaultServerPort))
	port, err := strconv.Atoi(portValue)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid SERVER_PORT value: %s", portValue)
	}
	cfg.ServerPort = port

	ttl, err := getDuration("PAGE_LIST_TTL", defaultPageListTTL)
	if err != nil {
		return nil, err
	}
	cfg.PageListTTL = ttl

	maxUpload, err := getInt64("MAX_UPLOAD_BYTES", defaultMaxUpload)
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes = maxUpload

	grace, err := getDuration("SHUTDOWN_GRACE", defaultShutdownGrace)
	if err != nil {
		return nil, err
	}
	cfg.ShutdownGrace = grace

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, eris.Wrapf(err, "invalid %s value: %s", key, raw)
	}
	if parsed <= 0 {
		return 0, eris.Errorf("%s must be positive, got %s", key, raw)
	}

	return parsed, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}

	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "invalid %s value: %s", key, raw)
	}
	if parsed <= 0 {
		return 0, eris.Errorf("%s must be positive, got %s", key, raw)
	}

	return parsed, nil
}
