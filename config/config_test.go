// Copyright 2025 The GroundGame Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Chdir(dir)

	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "us", cfg.Geocoder.Region)
	assert.Equal(t, 10*time.Second, cfg.Geocoder.Timeout)
	assert.InDelta(t, 200.0, cfg.Geocoder.FilterRadiusMeters, 1e-9)
	assert.InDelta(t, 10.0, cfg.Geocoder.RatePerSecond, 1e-9)
	assert.Equal(t, "GroundGame Geocoding Key", cfg.Geocoder.APIKeyDisplayName)
	assert.Equal(t, "https://groundgameapp.com/api", cfg.API.BaseURL)
	assert.False(t, cfg.API.Trace)
	assert.Equal(t, ".", cfg.DB.Path)
	assert.Equal(t, "localhost:8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
geocoder:
  region: uy
  timeout: 3s
  filter_radius_meters: 150
log:
  level: debug
  format: console
api:
  trace: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "groundgame.yaml"), []byte(yaml), 0o600))

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "uy", cfg.Geocoder.Region)
	assert.Equal(t, 3*time.Second, cfg.Geocoder.Timeout)
	assert.InDelta(t, 150.0, cfg.Geocoder.FilterRadiusMeters, 1e-9)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.True(t, cfg.API.Trace)
	// Defaults still apply for unset values
	assert.Equal(t, "localhost:8080", cfg.Server.Addr)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "groundgame.yaml"), []byte("api:\n  token: from-file\n"), 0o600))
	t.Setenv("GROUNDGAME_API_TOKEN", "from-env")
	t.Setenv("GROUNDGAME_DB_PATH", "/var/lib/groundgame")

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.API.Token)
	assert.Equal(t, "/var/lib/groundgame", cfg.DB.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero radius", mutate: func(c *Config) { c.Geocoder.FilterRadiusMeters = 0 }, wantErr: true},
		{name: "negative rate", mutate: func(c *Config) { c.API.RatePerSecond = -1 }, wantErr: true},
		{name: "bad format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				Geocoder: GeocoderConfig{FilterRadiusMeters: 200, RatePerSecond: 1},
				API:      APIConfig{RatePerSecond: 1},
				Log:      LogConfig{Level: "info", Format: "json"},
			}
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInitLogger(t *testing.T) {
	orig := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(orig) })

	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))

	require.Error(t, InitLogger(LogConfig{Level: "loud", Format: "json"}))
}
