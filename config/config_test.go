package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  dsn: "file::memory:"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "X-User-ID", cfg.Server.UserIDHeader)
	assert.Equal(t, 5*time.Minute, cfg.MeterFeed.Interval)
	assert.Equal(t, 100, cfg.MeterFeed.Request.PageSize)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, 5*time.Second, cfg.WorkerPool.PollInterval)
	assert.Equal(t, 500, cfg.History.EventCapacity)
	assert.Equal(t, 20, cfg.History.DefaultPageSize)
	assert.Equal(t, 100, cfg.History.MaxPageSize)
	assert.Equal(t, "Maintenance due", cfg.Alarms.MaintenanceTypeName)
	assert.Equal(t, "en", cfg.Alarms.Language)
	assert.Equal(t, 3600, cfg.Push.TTL)
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load("config.example.yaml")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 4, cfg.WorkerPool.Size)
	assert.Equal(t, "default", cfg.MeterFeed.Request.Payload["fleet"])
}

func TestLoad_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"unknown driver", "database:\n  driver: mysql\n  dsn: x\n"},
		{"missing dsn", "database:\n  driver: sqlite\n"},
		{"page sizes", "database:\n  driver: sqlite\n  dsn: x\nhistory:\n  default_page_size: 50\n  max_page_size: 10\n"},
		{"feed without url", "database:\n  driver: sqlite\n  dsn: x\nmeter_feed:\n  enabled: true\n"},
		{"not yaml", "database: ["},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
