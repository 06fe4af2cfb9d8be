package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LIFEHUB_DB_DSN", "postgres://localhost/lifehub")
	t.Setenv("LIFEHUB_JWT_SECRET", "jwt-secret")
	t.Setenv("LIFEHUB_ENCRYPTION_SECRET", "enc-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Addr)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "localhost:6379", cfg.RedisAddr)
	require.Equal(t, "postgres://localhost/lifehub", cfg.DatabaseDSN)
	require.Equal(t, "enc-secret", cfg.EncryptionSecret)
	require.Equal(t, "uploads/chat-media", cfg.Media.Dir)
	require.Equal(t, int64(100<<20), cfg.Media.MaxUploadBytes)
}

func TestLoadEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LIFEHUB_ADDR", ":9999")
	t.Setenv("LIFEHUB_LOG_LEVEL", "debug")
	t.Setenv("LIFEHUB_MEDIA_MAX_UPLOAD_BYTES", "1048576")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, ":9999", cfg.Addr)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, int64(1<<20), cfg.Media.MaxUploadBytes)
}

func TestLoadMissingSecrets(t *testing.T) {
	t.Setenv("LIFEHUB_DB_DSN", "postgres://localhost/lifehub")
	t.Setenv("LIFEHUB_JWT_SECRET", "")
	t.Setenv("LIFEHUB_ENCRYPTION_SECRET", "")

	_, err := Load("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "jwt_secret")
}
