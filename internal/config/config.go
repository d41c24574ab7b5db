package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

type Config struct {
	Port int

	LineChannelSecret string
	LineChannelToken  string

	StoreBackend string
	DataDir      string
	DatabaseURL  string

	RemindInterval    time.Duration
	RemindThreshold   time.Duration
	RemindConcurrency int

	TogglTimeout time.Duration
	TimeZone     string

	AdminToken string

	LogLevel  string
	LogPretty bool
}

// Load reads the process configuration from the environment. A .env file in
// the working directory is applied first when present; real environment
// variables take precedence over it.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:              8000,
		LineChannelSecret: strings.TrimSpace(os.Getenv("LINE_CHANNEL_SECRET")),
		LineChannelToken:  strings.TrimSpace(os.Getenv("LINE_CHANNEL_ACCESS_TOKEN")),
		DataDir:           ".",
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RemindInterval:    time.Hour,
		RemindThreshold:   3 * time.Hour,
		RemindConcurrency: 4,
		TogglTimeout:      20 * time.Second,
		TimeZone:          "Asia/Tokyo",
		AdminToken:        strings.TrimSpace(os.Getenv("ADMIN_TOKEN")),
		LogLevel:          "info",
	}

	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 && p < 65536 {
			cfg.Port = p
		}
	}

	if v := strings.TrimSpace(os.Getenv("DATA_DIR")); v != "" {
		cfg.DataDir = v
	}

	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(os.Getenv("STORE_BACKEND")))
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = BackendFile
		if cfg.DatabaseURL != "" {
			cfg.StoreBackend = BackendPostgres
		}
	}

	cfg.RemindInterval = durationEnv("REMIND_INTERVAL", cfg.RemindInterval)
	cfg.RemindThreshold = durationEnv("REMIND_THRESHOLD", cfg.RemindThreshold)
	cfg.TogglTimeout = durationEnv("TOGGL_TIMEOUT", cfg.TogglTimeout)

	if v := os.Getenv("REMIND_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RemindConcurrency = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("TIMEZONE")); v != "" {
		cfg.TimeZone = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_PRETTY"); v != "" {
		cfg.LogPretty, _ = strconv.ParseBool(v)
	}

	return cfg
}

// durationEnv accepts Go duration strings ("90m") or a bare number of seconds.
func durationEnv(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}

// Validate reports settings the webhook server cannot run without.
func (c Config) Validate() error {
	var errs []error
	if c.LineChannelSecret == "" {
		errs = append(errs, errors.New("LINE_CHANNEL_SECRET is not set"))
	}
	return errors.Join(append(errs, c.ValidatePush())...)
}

// ValidatePush covers what a one-off reminder sweep needs: the store and the
// push token.
func (c Config) ValidatePush() error {
	var errs []error
	if c.LineChannelToken == "" {
		errs = append(errs, errors.New("LINE_CHANNEL_ACCESS_TOKEN is not set"))
	}
	switch c.StoreBackend {
	case BackendFile, BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("STORE_BACKEND=postgres requires DATABASE_URL"))
		}
	default:
		errs = append(errs, errors.New("unknown STORE_BACKEND "+strconv.Quote(c.StoreBackend)))
	}
	return errors.Join(errs...)
}

func (c Config) ListenAddr() string {
	return ":" + strconv.Itoa(c.Port)
}

// Location resolves TimeZone, falling back to UTC for unknown names.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
