package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"

	NotifyLog      = "log"
	NotifyTelegram = "telegram"
	NotifyFCM      = "fcm"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	LogLevel    string
	Environment string

	StoreDriver string
	DataDir     string
	SQLitePath  string
	DatabaseURL string

	// Timezone is an IANA name; empty means the process local zone.
	Timezone string

	NotifyBackend           string
	TelegramToken           string
	DefaultChatID           int64
	FirebaseCredentialsPath string
	AppDeepLink             string

	ExactAlarmsGranted  bool
	AllowWhileIdle      bool
	ImmediateFireWindow time.Duration
	InexactWindow       time.Duration
	MaxTimerSleep       time.Duration
	TriggerBudget       time.Duration
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.StoreDriver = strings.ToLower(os.Getenv("STORE_DRIVER"))
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = StoreSQLite
	}
	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	cfg.SQLitePath = os.Getenv("SQLITE_PATH")
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = filepath.Join(cfg.DataDir, "reminders.db")
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	switch cfg.StoreDriver {
	case StoreFile, StoreSQLite:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is not set")
		}
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", cfg.StoreDriver)
	}

	cfg.Timezone = os.Getenv("TIMEZONE")
	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
		}
	}

	cfg.NotifyBackend = strings.ToLower(os.Getenv("NOTIFY_BACKEND"))
	if cfg.NotifyBackend == "" {
		cfg.NotifyBackend = NotifyLog
	}
	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	cfg.FirebaseCredentialsPath = os.Getenv("FIREBASE_CREDENTIALS_PATH")
	cfg.AppDeepLink = os.Getenv("APP_DEEP_LINK")

	if chatIDStr := os.Getenv("DEFAULT_CHAT_ID"); chatIDStr != "" {
		cfg.DefaultChatID, err = strconv.ParseInt(chatIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid DEFAULT_CHAT_ID: %w", err)
		}
	}

	switch cfg.NotifyBackend {
	case NotifyLog:
	case NotifyTelegram:
		if cfg.TelegramToken == "" {
			return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
		}
	case NotifyFCM:
		if cfg.FirebaseCredentialsPath == "" {
			return nil, fmt.Errorf("FIREBASE_CREDENTIALS_PATH is not set")
		}
	default:
		return nil, fmt.Errorf("invalid NOTIFY_BACKEND %q", cfg.NotifyBackend)
	}

	if cfg.ExactAlarmsGranted, err = boolEnv("EXACT_ALARMS_GRANTED", true); err != nil {
		return nil, err
	}
	if cfg.AllowWhileIdle, err = boolEnv("ALLOW_WHILE_IDLE", true); err != nil {
		return nil, err
	}

	if cfg.ImmediateFireWindow, err = durationEnv("IMMEDIATE_FIRE_WINDOW", 1500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.InexactWindow, err = durationEnv("INEXACT_WINDOW", time.Minute); err != nil {
		return nil, err
	}
	if cfg.MaxTimerSleep, err = durationEnv("MAX_TIMER_SLEEP", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.TriggerBudget, err = durationEnv("TRIGGER_BUDGET", 5*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Location resolves the configured timezone. It is evaluated on every call so
// the scheduler always computes against the current zone.
func (c *AppConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func boolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}
