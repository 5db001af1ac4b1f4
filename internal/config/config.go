package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Site     SiteConfig
	Geo      GeoConfig
	Admin    AdminConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SecurityConfig contains security-related settings.
type SecurityConfig struct {
	SecretKey         string
	SessionName       string
	SessionMaxAge     int
	CSRFTokenLength   int
	BcryptCost        int
	RateLimitRequests int
	RateLimitWindow   time.Duration
	JWTAccessExpiry   time.Duration
	JWTRefreshExpiry  time.Duration
	LoginMaxAttempts  int
	LoginLockoutTime  time.Duration

	// Password-gate cookie settings. The TTL follows the platform convention
	// of ten days from redemption; an empty Domain means host-only.
	PostPassCookieTTL    time.Duration
	PostPassCookieDomain string
}

// SiteConfig contains site-wide settings.
type SiteConfig struct {
	Name string
	URL  string
}

// GeoConfig contains IP geolocation lookup settings. The lookup is
// best-effort; the timeout keeps a slow service from stalling redemptions.
type GeoConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// AdminConfig seeds the initial admin account when the user table is empty.
type AdminConfig struct {
	Username string
	Email    string
	Password string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvInt("ML_PORT", 8080),
			Host:            getEnv("ML_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvDuration("ML_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("ML_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("ML_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Path:            getEnv("ML_DB_PATH", "./data/magiclink.db"),
			MaxOpenConns:    getEnvInt("ML_DB_MAX_OPEN", 25),
			MaxIdleConns:    getEnvInt("ML_DB_MAX_IDLE", 5),
			ConnMaxLifetime: getEnvDuration("ML_DB_CONN_LIFETIME", 5*time.Minute),
		},
		Security: SecurityConfig{
			SecretKey:            getEnv("ML_SECRET_KEY", ""),
			SessionName:          getEnv("ML_SESSION_NAME", "magiclink_session"),
			SessionMaxAge:        getEnvInt("ML_SESSION_MAX_AGE", 86400*7), // 7 days
			CSRFTokenLength:      32,
			BcryptCost:           getEnvInt("ML_BCRYPT_COST", 12),
			RateLimitRequests:    getEnvInt("ML_RATE_LIMIT", 100),
			RateLimitWindow:      getEnvDuration("ML_RATE_WINDOW", time.Minute),
			JWTAccessExpiry:      getEnvDuration("ML_JWT_ACCESS_EXPIRY", 15*time.Minute),
			JWTRefreshExpiry:     getEnvDuration("ML_JWT_REFRESH_EXPIRY", 7*24*time.Hour),
			LoginMaxAttempts:     getEnvInt("ML_LOGIN_MAX_ATTEMPTS", 5),
			LoginLockoutTime:     getEnvDuration("ML_LOGIN_LOCKOUT", 15*time.Minute),
			PostPassCookieTTL:    getEnvDuration("ML_POSTPASS_TTL", 10*24*time.Hour),
			PostPassCookieDomain: getEnv("ML_POSTPASS_DOMAIN", ""),
		},
		Site: SiteConfig{
			Name: getEnv("ML_SITE_NAME", "Magic Links"),
			URL:  getEnv("ML_SITE_URL", "http://localhost:8080"),
		},
		Geo: GeoConfig{
			Endpoint: getEnv("ML_GEO_ENDPOINT", "http://ip-api.com/json"),
			Timeout:  getEnvDuration("ML_GEO_TIMEOUT", 3*time.Second),
		},
		Admin: AdminConfig{
			Username: getEnv("ML_ADMIN_USERNAME", ""),
			Email:    getEnv("ML_ADMIN_EMAIL", ""),
			Password: getEnv("ML_ADMIN_PASSWORD", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks that all required configuration is present and valid.
func (c *Config) validate() error {
	var errs []string

	// Generate secret key if not provided (for development only)
	if c.Security.SecretKey == "" {
		key, err := generateRandomKey(32)
		if err != nil {
			errs = append(errs, "failed to generate secret key")
		} else {
			c.Security.SecretKey = key
			fmt.Println("WARNING: No ML_SECRET_KEY set, using randomly generated key. Sessions and password cookies will not survive restarts.")
		}
	}

	if len(c.Security.SecretKey) < 32 {
		errs = append(errs, "ML_SECRET_KEY must be at least 32 characters")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "ML_PORT must be between 1 and 65535")
	}

	if c.Security.BcryptCost < 10 || c.Security.BcryptCost > 31 {
		errs = append(errs, "ML_BCRYPT_COST must be between 10 and 31")
	}

	if c.Security.PostPassCookieTTL <= 0 {
		errs = append(errs, "ML_POSTPASS_TTL must be positive")
	}

	if c.Geo.Timeout <= 0 {
		errs = append(errs, "ML_GEO_TIMEOUT must be positive")
	}

	if c.Geo.Endpoint == "" {
		errs = append(errs, "ML_GEO_ENDPOINT must not be empty")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// Address returns the server address string.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Helper functions for reading environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func generateRandomKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
