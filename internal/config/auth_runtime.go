package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAccessTTL          = "5m"
	defaultRefreshTTL         = "168h"
	defaultResetTTL           = "15m"
	defaultBcryptCost         = 10
	defaultCookieSecure       = "true"
	defaultCookieSameSite     = "Strict"
	defaultAccessCookiePath   = "/"
	defaultRefreshCookiePath  = "/api/v1/auth"
	defaultAccessSecret       = "change-me-access-secret"
	defaultRefreshSecret      = "change-me-refresh-secret"
	defaultResetSecret        = "change-me-reset-secret"
	defaultRefreshTokenPepper = "change-me-refresh-pepper"
)

type AuthRuntimeConfig struct {
	AppEnv             string
	AccessSecret       string
	RefreshSecret      string
	ResetSecret        string
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	ResetTTL           time.Duration
	RefreshTokenPepper string
	BcryptCost         int
	CookieSecure       bool
	CookieSameSite     string
	AccessCookiePath   string
	RefreshCookiePath  string
}

func LoadAuthRuntimeConfig() (*AuthRuntimeConfig, error) {
	cfg := &AuthRuntimeConfig{AppEnv: appEnv()}

	cfg.AccessSecret = strings.TrimSpace(getEnv("JWT_ACCESS_SECRET", defaultAccessSecret))
	cfg.RefreshSecret = strings.TrimSpace(getEnv("JWT_REFRESH_SECRET", defaultRefreshSecret))
	cfg.ResetSecret = strings.TrimSpace(getEnv("JWT_RESET_SECRET", defaultResetSecret))
	cfg.RefreshTokenPepper = strings.TrimSpace(getEnv("REFRESH_TOKEN_PEPPER", defaultRefreshTokenPepper))

	var err error
	if cfg.AccessTTL, err = parseDurationEnv("JWT_ACCESS_TTL", defaultAccessTTL); err != nil {
		return nil, err
	}
	if cfg.RefreshTTL, err = parseDurationEnv("JWT_REFRESH_TTL", defaultRefreshTTL); err != nil {
		return nil, err
	}
	if cfg.ResetTTL, err = parseDurationEnv("PASSWORD_RESET_TTL", defaultResetTTL); err != nil {
		return nil, err
	}
	if cfg.BcryptCost, err = parseIntEnv("BCRYPT_COST", defaultBcryptCost); err != nil {
		return nil, err
	}

	cfg.CookieSecure = parseBoolEnv("COOKIE_SECURE", defaultCookieSecure)
	cfg.CookieSameSite = strings.TrimSpace(getEnv("COOKIE_SAMESITE", defaultCookieSameSite))
	cfg.AccessCookiePath = strings.TrimSpace(getEnv("ACCESS_COOKIE_PATH", defaultAccessCookiePath))
	cfg.RefreshCookiePath = strings.TrimSpace(getEnv("REFRESH_COOKIE_PATH", defaultRefreshCookiePath))

	if err := validateAuthConfig(cfg); err != nil {
		return nil, err
	}

	slog.Info("auth cookie config",
		"secure", cfg.CookieSecure,
		"same_site", cfg.CookieSameSite,
		"access_path", cfg.AccessCookiePath,
		"refresh_path", cfg.RefreshCookiePath,
	)
	return cfg, nil
}

func validateAuthConfig(cfg *AuthRuntimeConfig) error {
	if cfg.AccessTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL must be > 0")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return fmt.Errorf("JWT_REFRESH_TTL must be longer than JWT_ACCESS_TTL")
	}
	if cfg.ResetTTL <= 0 {
		return fmt.Errorf("PASSWORD_RESET_TTL must be > 0")
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" || cfg.ResetSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET, JWT_REFRESH_SECRET and JWT_RESET_SECRET must not be empty")
	}
	if cfg.AccessSecret == cfg.RefreshSecret || cfg.AccessSecret == cfg.ResetSecret || cfg.RefreshSecret == cfg.ResetSecret {
		return fmt.Errorf("JWT_ACCESS_SECRET, JWT_REFRESH_SECRET and JWT_RESET_SECRET must be distinct")
	}
	if cfg.AccessCookiePath == "" || cfg.RefreshCookiePath == "" {
		return fmt.Errorf("cookie paths must not be empty")
	}
	sameSite := strings.ToLower(cfg.CookieSameSite)
	if sameSite != "lax" && sameSite != "none" && sameSite != "strict" {
		return fmt.Errorf("COOKIE_SAMESITE must be one of: Lax, None, Strict")
	}
	if sameSite == "none" && !cfg.CookieSecure {
		return fmt.Errorf("COOKIE_SECURE must be true when COOKIE_SAMESITE=None")
	}

	if IsProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.AccessSecret, defaultAccessSecret) ||
			isEmptyOrDefault(cfg.RefreshSecret, defaultRefreshSecret) ||
			isEmptyOrDefault(cfg.ResetSecret, defaultResetSecret) {
			return fmt.Errorf("in prod/release every JWT_*_SECRET must be set and not default")
		}
		if isEmptyOrDefault(cfg.RefreshTokenPepper, defaultRefreshTokenPepper) {
			return fmt.Errorf("in prod/release REFRESH_TOKEN_PEPPER must be set and not default")
		}
		if !cfg.CookieSecure {
			return fmt.Errorf("in prod/release COOKIE_SECURE must be true")
		}
	}
	return nil
}

func appEnv() string {
	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = strings.TrimSpace(os.Getenv("ENV"))
	}
	if env == "" {
		env = "dev"
	}
	return strings.ToLower(env)
}

func IsProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
