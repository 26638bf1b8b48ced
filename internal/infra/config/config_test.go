package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"LOG_LEVEL", "ENVIRONMENT", "STORE_DRIVER", "DATA_DIR", "SQLITE_PATH", "DATABASE_URL",
	"TIMEZONE", "NOTIFY_BACKEND", "TELEGRAM_TOKEN", "DEFAULT_CHAT_ID", "FIREBASE_CREDENTIALS_PATH",
	"APP_DEEP_LINK", "EXACT_ALARMS_GRANTED", "ALLOW_WHILE_IDLE", "IMMEDIATE_FIRE_WINDOW",
	"INEXACT_WINDOW", "MAX_TIMER_SLEEP", "TRIGGER_BUDGET",
}

// cleanEnv blanks every key and moves into an empty directory so no .env is picked up.
func cleanEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	testChdir(t, t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	cleanEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, StoreSQLite, cfg.StoreDriver)
	assert.Equal(t, filepath.Join("./data", "reminders.db"), cfg.SQLitePath)
	assert.Equal(t, NotifyLog, cfg.NotifyBackend)
	assert.True(t, cfg.ExactAlarmsGranted)
	assert.True(t, cfg.AllowWhileIdle)
	assert.Equal(t, 1500*time.Millisecond, cfg.ImmediateFireWindow)
	assert.Equal(t, time.Minute, cfg.InexactWindow)
	assert.Equal(t, 60*time.Second, cfg.MaxTimerSleep)
	assert.Equal(t, 5*time.Second, cfg.TriggerBudget)
	assert.Equal(t, time.Local, cfg.Location())
}

func TestLoad_Overrides(t *testing.T) {
	cleanEnv(t)
	t.Setenv("STORE_DRIVER", "FILE")
	t.Setenv("DATA_DIR", "/var/lib/pefr")
	t.Setenv("TIMEZONE", "Europe/Berlin")
	t.Setenv("NOTIFY_BACKEND", "telegram")
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("DEFAULT_CHAT_ID", "42")
	t.Setenv("EXACT_ALARMS_GRANTED", "false")
	t.Setenv("INEXACT_WINDOW", "5m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreFile, cfg.StoreDriver)
	assert.Equal(t, filepath.Join("/var/lib/pefr", "reminders.db"), cfg.SQLitePath)
	assert.Equal(t, int64(42), cfg.DefaultChatID)
	assert.False(t, cfg.ExactAlarmsGranted)
	assert.Equal(t, 5*time.Minute, cfg.InexactWindow)
	assert.Equal(t, "Europe/Berlin", cfg.Location().String())
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without url", map[string]string{"STORE_DRIVER": "postgres"}},
		{"unknown store", map[string]string{"STORE_DRIVER": "redis"}},
		{"telegram without token", map[string]string{"NOTIFY_BACKEND": "telegram"}},
		{"fcm without credentials", map[string]string{"NOTIFY_BACKEND": "fcm"}},
		{"unknown backend", map[string]string{"NOTIFY_BACKEND": "sms"}},
		{"bad timezone", map[string]string{"TIMEZONE": "Mars/Olympus"}},
		{"bad chat id", map[string]string{"DEFAULT_CHAT_ID": "abc"}},
		{"bad bool", map[string]string{"ALLOW_WHILE_IDLE": "maybe"}},
		{"bad duration", map[string]string{"TRIGGER_BUDGET": "soon"}},
		{"negative duration", map[string]string{"MAX_TIMER_SLEEP": "-1s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	cleanEnv(t)
	require.NoError(t, os.Unsetenv("LOG_LEVEL"))
	require.NoError(t, os.WriteFile(".env", []byte("LOG_LEVEL=debug\n"), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

// testChdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func testChdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
