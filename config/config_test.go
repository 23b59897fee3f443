package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Contains(t, cfg.StaticURL, "provider=ASTUCE")
	assert.Len(t, cfg.TripUpdateURLs, 3)
	assert.Equal(t, 720, cfg.StaticTTLMinutes)
	assert.Equal(t, "Europe/Paris", cfg.Timezone)
	assert.Equal(t, "memory", cfg.Storage.Driver)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
staticUrl: https://feeds.example.com/static.zip
staticTtlMinutes: 60
cityway:
  networks: [ASTUCE, CITYWAY]
storage:
  driver: sqlite
  dsn: feeds.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://feeds.example.com/static.zip", cfg.StaticURL)
	assert.Equal(t, 60, cfg.StaticTTLMinutes)
	// Untouched fields keep their defaults.
	assert.Equal(t, "Europe/Paris", cfg.Timezone)
	assert.Len(t, cfg.TripUpdateURLs, 3)
	assert.Equal(t, []string{"ASTUCE", "CITYWAY"}, cfg.Cityway.Networks)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "feeds.db", cfg.Storage.DSN)
}

func TestLoadRejectsBadValues(t *testing.T) {
	_, err := Load(writeConfig(t, "staticUrl: not-a-url\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "staticTtlMinutes: 1\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "storage:\n  driver: cassandra\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "tripUpdateUrls: [nope]\n"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "storage: [not: a: map\n"))
	assert.Error(t, err)
}
