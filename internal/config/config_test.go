package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimalConfig = `
[server]
port = 8080

[storage]
sqlite_path = "data/movebook.db"

[station]
airport_code = "EDKA"
latitude = 50.8231
longitude = 6.1864
elevation_feet = 623
`

func TestLoadAndValidateDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "ui", cfg.Sync.Actor)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"missing sqlite path", func(c *Config) { c.Storage.SQLitePath = "" }},
		{"missing airport code", func(c *Config) { c.Station.AirportCode = "" }},
		{"short airport code", func(c *Config) { c.Station.AirportCode = "EDK" }},
		{"latitude out of range", func(c *Config) { c.Station.Latitude = 91 }},
		{"longitude out of range", func(c *Config) { c.Station.Longitude = -181 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, minimalConfig))
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}
