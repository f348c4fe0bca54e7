package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	validJWTSecret     = "test-jwt-secret-at-least-32-chars-long"
	validEncryptionKey = "0123456789abcdef0123456789abcdef"
)

// isolate keeps the loader away from any config.toml in the working
// directory so tests only see defaults and their own env.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.toml"))
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	cfg := Load()

	assert.Equal(t, "Passkey-Auth", cfg.AppName)
	assert.Equal(t, "localhost", cfg.RPID)
	assert.Equal(t, 300, cfg.AccessTokenSeconds)
	assert.Equal(t, 30*24*3600, cfg.RefreshTokenSeconds)
	assert.Equal(t, 5, cfg.LoginAttempts)
	assert.Equal(t, 900, cfg.LoginWindowSeconds)
	assert.Equal(t, 5, cfg.SecondFactorAttempts)
	assert.Equal(t, 10, cfg.BackupCodeCount)
}

func TestLoadThrottlingEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("LOGIN_ATTEMPTS", "8")
	t.Setenv("LOGIN_WINDOW_SECONDS", "600")
	t.Setenv("SECOND_FACTOR_ATTEMPTS", "3")
	t.Setenv("BACKUP_CODE_COUNT", "12")

	cfg := Load()
	assert.Equal(t, 8, cfg.LoginAttempts)
	assert.Equal(t, 600, cfg.LoginWindowSeconds)
	assert.Equal(t, 3, cfg.SecondFactorAttempts)
	assert.Equal(t, 12, cfg.BackupCodeCount)
}

func TestLoadRejectsNonPositiveOverride(t *testing.T) {
	isolate(t)
	t.Setenv("LOGIN_ATTEMPTS", "0")
	t.Setenv("SECOND_FACTOR_ATTEMPTS", "-1")

	cfg := Load()
	assert.Equal(t, 5, cfg.LoginAttempts, "non-positive value falls back to the default")
	assert.Equal(t, 5, cfg.SecondFactorAttempts)
}

func TestLoadTOMLFileThenEnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("login_attempts = 7\nsecond_factor_attempts = 2\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SECOND_FACTOR_ATTEMPTS", "4")

	cfg := Load()
	assert.Equal(t, 7, cfg.LoginAttempts, "file overrides the default")
	assert.Equal(t, 4, cfg.SecondFactorAttempts, "env overrides the file")
}

func TestValidate(t *testing.T) {
	isolate(t)
	cfg := Load()
	cfg.JWTSecret = validJWTSecret
	cfg.EncryptionKey = validEncryptionKey
	require.NoError(t, cfg.Validate())

	cfg.JWTSecret = "short"
	assert.Error(t, cfg.Validate())

	cfg.JWTSecret = validJWTSecret
	cfg.EncryptionKey = "not-a-valid-aes-key-length"
	assert.Error(t, cfg.Validate())

	cfg.EncryptionKey = validEncryptionKey
	cfg.DatabaseURL = ""
	assert.Error(t, cfg.Validate())
}
