package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ServerURL)
	assert.Equal(t, BackendFirestore, cfg.StoreBackend)
	assert.Equal(t, BackendFirestore, cfg.DirectoryBackend)
	assert.Equal(t, 30*time.Second, cfg.WSAuthTimeout)
	assert.False(t, cfg.LogDevelopment)
	assert.False(t, cfg.MediaEnabled())
}

func TestLoadFromEnvFile(t *testing.T) {
	clearEnv(t)

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(`SERVER_URL=:9090
STORE_BACKEND=memory
DIRECTORY_BACKEND=postgres
DATABASE_URL=postgres://localhost/messenger
CLOUDINARY_CLOUD_NAME=demo
CLOUDINARY_UPLOAD_PRESET=unsigned
LOG_DEVELOPMENT=true
WS_AUTH_TIMEOUT=5s
`), 0o600))

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ServerURL)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, BackendPostgres, cfg.DirectoryBackend)
	assert.Equal(t, "postgres://localhost/messenger", cfg.DatabaseURL)
	assert.True(t, cfg.LogDevelopment)
	assert.Equal(t, 5*time.Second, cfg.WSAuthTimeout)
	assert.True(t, cfg.MediaEnabled())
}

func TestLoadRejects(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown store":     {"STORE_BACKEND": "mongo"},
		"unknown directory": {"DIRECTORY_BACKEND": "ldap"},
		"postgres no url":   {"DIRECTORY_BACKEND": "postgres"},
		"negative timeout":  {"WS_AUTH_TIMEOUT": "-1s"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for key, value := range env {
				t.Setenv(key, value)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}
