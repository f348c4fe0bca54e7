package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds everything the auth core needs at runtime. Values are
// resolved in three layers: built-in defaults, then an optional TOML file
// (CONFIG_FILE, default "config.toml"), then environment variables.
type Config struct {
	AppName string `toml:"app_name"`

	// Relying-party parameters for the passkey ceremonies
	RPID          string   `toml:"rp_id"`
	RPDisplayName string   `toml:"rp_display_name"`
	RPOrigins     []string `toml:"rp_origins"`

	// Signing and at-rest encryption secrets
	JWTSecret     string `toml:"jwt_secret"`
	EncryptionKey string `toml:"encryption_key"`

	DatabaseURL string `toml:"database_url"`

	// Lifetimes
	AccessTokenSeconds  int `toml:"access_token_seconds"`
	RefreshTokenSeconds int `toml:"refresh_token_seconds"`
	ChallengeSeconds    int `toml:"challenge_seconds"`
	MFAPendingSeconds   int `toml:"mfa_pending_seconds"`

	// Second-factor and login throttling
	LoginAttempts        int `toml:"login_attempts"`
	LoginWindowSeconds   int `toml:"login_window_seconds"`
	SecondFactorAttempts int `toml:"second_factor_attempts"`

	BackupCodeCount int `toml:"backup_code_count"`

	CleanupIntervalMinutes int `toml:"cleanup_interval_minutes"`

	Cookie CookieConfig `toml:"-"`
}

// Load resolves the configuration. TOML file and env are both optional;
// Validate reports missing critical values.
func Load() *Config {
	cfg := &Config{
		AppName:                "Passkey-Auth",
		RPID:                   "localhost",
		RPDisplayName:          "Passkey Auth",
		RPOrigins:              []string{"http://localhost:3000"},
		DatabaseURL:            "auth.db",
		AccessTokenSeconds:     300,
		RefreshTokenSeconds:    30 * 24 * 3600,
		ChallengeSeconds:       300,
		MFAPendingSeconds:      300,
		LoginAttempts:          5,
		LoginWindowSeconds:     900,
		SecondFactorAttempts:   5,
		BackupCodeCount:        10,
		CleanupIntervalMinutes: 30,
	}

	path := GetEnvAsStr("CONFIG_FILE", "config.toml")
	if _, err := os.Stat(path); err == nil {
		// A broken config file should not silently fall back to defaults
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			panic(fmt.Sprintf("failed to parse %s: %v", path, err))
		}
	}

	// Env overrides win over the file
	cfg.AppName = GetEnvAsStr("APP_NAME", cfg.AppName)
	cfg.RPID = GetEnvAsStr("WEBAUTHN_RP_ID", cfg.RPID)
	cfg.RPDisplayName = GetEnvAsStr("WEBAUTHN_RP_NAME", cfg.RPDisplayName)
	if origins := GetEnvAsStr("WEBAUTHN_ORIGINS", ""); origins != "" {
		cfg.RPOrigins = strings.Split(origins, ",")
	}
	cfg.JWTSecret = GetEnvAsStr("JWT_SECRET_KEY", cfg.JWTSecret)
	cfg.EncryptionKey = GetEnvAsStr("ENCRYPTION_KEY", cfg.EncryptionKey)
	cfg.DatabaseURL = GetEnvAsStr("DB_URL", cfg.DatabaseURL)
	cfg.AccessTokenSeconds = GetEnvAsInt("ACCESS_TOKEN_EXPIRATION_SECONDS", cfg.AccessTokenSeconds, true)
	cfg.RefreshTokenSeconds = GetEnvAsInt("REFRESH_TOKEN_EXPIRATION_SECONDS", cfg.RefreshTokenSeconds, true)
	cfg.ChallengeSeconds = GetEnvAsInt("CHALLENGE_EXPIRATION_SECONDS", cfg.ChallengeSeconds, true)
	cfg.MFAPendingSeconds = GetEnvAsInt("MFA_PENDING_EXPIRATION_SECONDS", cfg.MFAPendingSeconds, true)
	cfg.LoginAttempts = GetEnvAsInt("LOGIN_ATTEMPTS", cfg.LoginAttempts, true)
	cfg.LoginWindowSeconds = GetEnvAsInt("LOGIN_WINDOW_SECONDS", cfg.LoginWindowSeconds, true)
	cfg.SecondFactorAttempts = GetEnvAsInt("SECOND_FACTOR_ATTEMPTS", cfg.SecondFactorAttempts, true)
	cfg.BackupCodeCount = GetEnvAsInt("BACKUP_CODE_COUNT", cfg.BackupCodeCount, true)
	cfg.CleanupIntervalMinutes = GetEnvAsInt("CLEANUP_INTERVAL_MINUTES", cfg.CleanupIntervalMinutes, true)

	cfg.Cookie = CookieConfig{
		Domain:   GetEnvAsStr("DOMAIN", ""),
		IsSecure: GetEnvAsStr("SECURE_COOKIE", "true") == "true",
		HttpOnly: true, // Always HttpOnly set to true for security
	}

	return cfg
}

// Validate refuses to start with weak or missing secrets.
func (c *Config) Validate() error {
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 characters")
	}
	switch len(c.EncryptionKey) {
	case 16, 24, 32:
	default:
		return fmt.Errorf("ENCRYPTION_KEY must be 16, 24, or 32 bytes, got %d", len(c.EncryptionKey))
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DB_URL is required")
	}
	return nil
}
