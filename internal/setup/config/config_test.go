package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/d3vfreak/fleet-overview/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
version = 1

[esi]
client_id = "abc"
client_secret = "from-file"

[poll]
interval = 8000

[storage]
name_backend = "redis"
`)

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.ESI.ClientID)
	assert.Equal(t, "from-file", cfg.ESI.ClientSecret)
	assert.Equal(t, 8*time.Second, cfg.PollInterval())
	assert.Equal(t, config.NameBackendRedis, cfg.Storage.NameBackend)

	// Unset keys keep their defaults
	assert.Equal(t, 2, cfg.Poll.FailureThreshold)
	assert.Equal(t, config.UserBackendSQLite, cfg.Storage.UserBackend)
	assert.Equal(t, "https://esi.evetech.net", cfg.ESI.BaseURL)
}

func TestLoadFileEnvOverride(t *testing.T) {
	t.Setenv(config.EnvClientSecret, "from-env")

	path := writeConfig(t, `
version = 1

[esi]
client_id = "abc"
client_secret = "from-file"
`)

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.ESI.ClientSecret)
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "missing version",
			content: "[esi]\nclient_id = \"abc\"\n",
			wantErr: config.ErrConfigVersionMissing,
		},
		{
			name:    "version mismatch",
			content: "version = 7\n[esi]\nclient_id = \"abc\"\n",
			wantErr: config.ErrConfigVersionMismatch,
		},
		{
			name:    "missing client id",
			content: "version = 1\n",
			wantErr: config.ErrInvalidConfig,
		},
		{
			name:    "unknown backend",
			content: "version = 1\n[esi]\nclient_id = \"abc\"\n[storage]\nuser_backend = \"mongo\"\n",
			wantErr: config.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadFile(writeConfig(t, tt.content))
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorIs(t, err, config.ErrConfigFileNotFound)
}
