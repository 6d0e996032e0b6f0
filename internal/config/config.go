// Package config provides configuration management for the e-signature sync
// service. It loads configuration from environment variables with sensible
// defaults and validates it so the service starts safely.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - TLS_CERT_FILE, TLS_KEY_FILE: serve HTTPS when both are set
//   - LOG_LEVEL: Logging level (default: info)
//   - LOG_FILE: Log file path (default: esign-sync.log)
//
// Database Configuration:
//   - DATABASE_TYPE: "sqlite" or "postgres" (default: sqlite)
//   - DATABASE_PATH: SQLite database file path (default: ./esign_sync.db)
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_DB, POSTGRES_USER,
//     POSTGRES_PASSWORD, POSTGRES_SSL_MODE
//   - DATABASE_URL: postgres:// URL, replaces the POSTGRES_* settings when set
//
// Redis Configuration (optional, enables the shared token cache and
// distributed locks):
//   - REDIS_ADDRESS: Redis server address (default: empty, disabled)
//   - REDIS_PASSWORD, REDIS_DB (0-15), REDIS_POOL_SIZE
//
// Security Configuration:
//   - JWT_SECRET: HS256 key for caller identity tokens (required, minimum 32 characters)
//
// Rate Limiting (inbound API, per caller):
//   - RATE_LIMIT_ENABLED (default: true)
//   - RATE_LIMIT_DEFAULT: requests per window (default: 100)
//   - RATE_LIMIT_WINDOW (default: 60s)
//
// Signing service:
//   - DOCUSIGN_CLIENT_ID, DOCUSIGN_REDIRECT_URI (required)
//   - DOCUSIGN_OAUTH_BASE, DOCUSIGN_REST_BASE, DOCUSIGN_ACCOUNT_ID,
//     DOCUSIGN_ENFORCE_ACCOUNT_ID, DOCUSIGN_ORIGIN
//   - DOCUSIGN_MASTER_KEY_B64, DOCUSIGN_MASTER_PASSPHRASE, DOCUSIGN_KEY_DIR
//   - DOCUSIGN_WEBHOOK_URL, DOCUSIGN_CONNECT_HMAC_KEY, DOCUSIGN_WEBHOOK_SECRET,
//     DOCUSIGN_WEBHOOK_REQUIRE_AUTH, DOCUSIGN_WEBHOOK_INCLUDE_SECRET,
//     DOCUSIGN_WEBHOOK_INCLUDE_HOSTKEY
//   - DOCUSIGN_HTTP_CONNECT_TIMEOUT_MS, DOCUSIGN_HTTP_SOCKET_TIMEOUT_MS,
//     DOCUSIGN_HTTP_CONNECTION_REQUEST_TIMEOUT_MS, DOCUSIGN_API_RATE_PER_SEC
//
// Host record integration:
//   - SIGNED_ATTACH_MODE: "individual" or "combined" (default: individual)
//   - ATTACHMENTS_DIR (default: ./data/attachments)
//   - STATUS_POLL_SCHEDULE: cron spec for background refresh (default: @every 5m, empty disables)
//
// Example usage:
//
//	cfg := config.Load()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid configuration: %v", err)
//	}
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"esign-sync/internal/common/errors"
	"esign-sync/internal/common/validation"
	"esign-sync/internal/crypto"
)

// Config holds all configuration values for the service. String fields that
// hold numbers keep the raw environment text; Validate checks them and the
// typed accessors convert them.
type Config struct {
	// Application settings
	Port        string
	TLSCertFile string
	TLSKeyFile  string
	LogLevel    string
	LogFile     string

	// Database configuration
	DatabaseType     string // "sqlite" or "postgres"
	DatabasePath     string // SQLite file
	DatabaseURL      string // postgres:// URL, overrides the fields below
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	// Redis configuration for the shared token cache and locks
	RedisAddress  string
	RedisPassword string
	RedisDB       string
	RedisPoolSize string

	// Inbound API rate limiting
	RateLimitEnabled bool
	RateLimitDefault string // requests per window
	RateLimitWindow  string // e.g. "60s", "1m"

	// Caller identity
	JWTSecret string

	// OAuth client registered with the signing service
	DocuSignClientID         string
	DocuSignRedirectURI      string
	DocuSignOAuthBase        string
	DocuSignRestBase         string
	DocuSignAccountID        string
	DocuSignEnforceAccountID bool
	DocuSignOrigin           string

	// Master key sources, in priority order
	MasterKeyB64     string
	MasterPassphrase string
	KeyDir           string

	// Push notifications
	WebhookURL            string
	ConnectHMACKey        string
	WebhookSecret         string
	WebhookRequireAuth    bool
	WebhookIncludeSecret  bool
	WebhookIncludeHostKey bool

	// Outbound HTTP
	HTTPConnectTimeoutMs  string
	HTTPSocketTimeoutMs   string
	HTTPPoolWaitTimeoutMs string
	APIRatePerSec         string

	// Host record integration
	SignedAttachMode   string
	AttachmentsDir     string
	StatusPollSchedule string
}

// Load creates a new Config with values from environment variables. Unset
// variables take their defaults.
//
// This function does not validate the configuration; call Validate on the
// result.
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		TLSCertFile: getEnv("TLS_CERT_FILE", ""),
		TLSKeyFile:  getEnv("TLS_KEY_FILE", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     getEnv("LOG_FILE", "esign-sync.log"),

		DatabaseType:     getEnv("DATABASE_TYPE", "sqlite"),
		DatabasePath:     getEnv("DATABASE_PATH", "./esign_sync.db"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "esign_sync"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),
		RedisPoolSize: getEnv("REDIS_POOL_SIZE", "10"),

		RateLimitEnabled: getBoolEnv("RATE_LIMIT_ENABLED", true),
		RateLimitDefault: getEnv("RATE_LIMIT_DEFAULT", "100"),
		RateLimitWindow:  getEnv("RATE_LIMIT_WINDOW", "60s"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		DocuSignClientID:         getEnv("DOCUSIGN_CLIENT_ID", ""),
		DocuSignRedirectURI:      getEnv("DOCUSIGN_REDIRECT_URI", ""),
		DocuSignOAuthBase:        getEnv("DOCUSIGN_OAUTH_BASE", "https://account-d.docusign.com"),
		DocuSignRestBase:         getEnv("DOCUSIGN_REST_BASE", "https://demo.docusign.net/restapi"),
		DocuSignAccountID:        getEnv("DOCUSIGN_ACCOUNT_ID", ""),
		DocuSignEnforceAccountID: getBoolEnv("DOCUSIGN_ENFORCE_ACCOUNT_ID", false),
		DocuSignOrigin:           getEnv("DOCUSIGN_ORIGIN", "http://localhost:8080"),

		MasterKeyB64:     getEnv("DOCUSIGN_MASTER_KEY_B64", ""),
		MasterPassphrase: getEnv("DOCUSIGN_MASTER_PASSPHRASE", ""),
		KeyDir:           getEnv("DOCUSIGN_KEY_DIR", "./data"),

		WebhookURL:            getEnv("DOCUSIGN_WEBHOOK_URL", ""),
		ConnectHMACKey:        getEnv("DOCUSIGN_CONNECT_HMAC_KEY", ""),
		WebhookSecret:         getEnv("DOCUSIGN_WEBHOOK_SECRET", ""),
		WebhookRequireAuth:    getBoolEnv("DOCUSIGN_WEBHOOK_REQUIRE_AUTH", false),
		WebhookIncludeSecret:  getBoolEnv("DOCUSIGN_WEBHOOK_INCLUDE_SECRET", true),
		WebhookIncludeHostKey: getBoolEnv("DOCUSIGN_WEBHOOK_INCLUDE_HOSTKEY", false),

		HTTPConnectTimeoutMs:  getEnv("DOCUSIGN_HTTP_CONNECT_TIMEOUT_MS", "10000"),
		HTTPSocketTimeoutMs:   getEnv("DOCUSIGN_HTTP_SOCKET_TIMEOUT_MS", "30000"),
		HTTPPoolWaitTimeoutMs: getEnv("DOCUSIGN_HTTP_CONNECTION_REQUEST_TIMEOUT_MS", "5000"),
		APIRatePerSec:         getEnv("DOCUSIGN_API_RATE_PER_SEC", "10"),

		SignedAttachMode: getEnv("SIGNED_ATTACH_MODE", "individual"),
		AttachmentsDir:   getEnv("ATTACHMENTS_DIR", "./data/attachments"),
		// An explicitly empty schedule disables polling.
		StatusPollSchedule: getEnvAllowEmpty("STATUS_POLL_SCHEDULE", "@every 5m"),
	}
}

// getEnv retrieves an environment variable value or returns a default value
// if not set or empty.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty is getEnv for variables where an explicit empty value is
// meaningful.
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

// getBoolEnv accepts the strconv.ParseBool spellings; anything else yields
// defaultValue.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate checks required fields, formats and cross-field dependencies.
// The first problem found is returned as a config error.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.ConfigError("JWT_SECRET environment variable is required")
	}
	if len(c.JWTSecret) < 32 {
		return errors.ConfigError("JWT_SECRET must be at least 32 characters long")
	}
	if !validPort(c.Port) {
		return errors.ConfigError("PORT must be a valid port number between 1 and 65535")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.ConfigError("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}

	if strings.TrimSpace(c.DocuSignClientID) == "" {
		return errors.ConfigError("DOCUSIGN_CLIENT_ID is required")
	}
	if strings.TrimSpace(c.DocuSignRedirectURI) == "" {
		return errors.ConfigError("DOCUSIGN_REDIRECT_URI is required")
	}

	switch c.DatabaseType {
	case "sqlite", "postgres", "postgresql":
	default:
		return errors.ConfigError("DATABASE_TYPE must be 'sqlite' or 'postgres'")
	}
	if c.IsPostgres() && c.DatabaseURL == "" {
		if c.PostgresHost == "" {
			return errors.ConfigError("POSTGRES_HOST is required when using PostgreSQL")
		}
		if c.PostgresDB == "" {
			return errors.ConfigError("POSTGRES_DB is required when using PostgreSQL")
		}
		if c.PostgresUser == "" {
			return errors.ConfigError("POSTGRES_USER is required when using PostgreSQL")
		}
		if !validPort(c.PostgresPort) {
			return errors.ConfigError("POSTGRES_PORT must be a valid port number")
		}
	}

	if c.RedisEnabled() {
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return errors.ConfigError("REDIS_DB must be a number between 0 and 15")
		}
		if poolSize, err := strconv.Atoi(c.RedisPoolSize); err != nil || poolSize < 1 {
			return errors.ConfigError("REDIS_POOL_SIZE must be a positive number")
		}
	}

	if c.RateLimitEnabled {
		if limit, err := strconv.Atoi(c.RateLimitDefault); err != nil || limit < 1 {
			return errors.ConfigError("RATE_LIMIT_DEFAULT must be a positive number")
		}
		if window, err := time.ParseDuration(c.RateLimitWindow); err != nil || window <= 0 {
			return errors.ConfigError("RATE_LIMIT_WINDOW must be a valid duration (e.g., '60s', '1m')")
		}
	}

	if c.MasterKeyB64 != "" {
		if _, err := crypto.DecodeKey(c.MasterKeyB64); err != nil {
			return errors.ConfigError("DOCUSIGN_MASTER_KEY_B64 must be base64 of 32 bytes")
		}
	}

	for name, value := range map[string]string{
		"DOCUSIGN_HTTP_CONNECT_TIMEOUT_MS":            c.HTTPConnectTimeoutMs,
		"DOCUSIGN_HTTP_SOCKET_TIMEOUT_MS":             c.HTTPSocketTimeoutMs,
		"DOCUSIGN_HTTP_CONNECTION_REQUEST_TIMEOUT_MS": c.HTTPPoolWaitTimeoutMs,
	} {
		if ms, err := strconv.Atoi(value); err != nil || ms < 1 {
			return errors.ConfigError(name + " must be a positive number of milliseconds")
		}
	}
	if rps, err := strconv.ParseFloat(c.APIRatePerSec, 64); err != nil || rps < 0 {
		return errors.ConfigError("DOCUSIGN_API_RATE_PER_SEC must be a non-negative number")
	}

	switch strings.ToLower(strings.TrimSpace(c.SignedAttachMode)) {
	case "", "individual", "combined":
	default:
		return errors.ConfigError("SIGNED_ATTACH_MODE must be 'individual' or 'combined'")
	}
	if c.StatusPollSchedule != "" && !validation.ValidCronSchedule(c.StatusPollSchedule) {
		return errors.ConfigError(fmt.Sprintf("STATUS_POLL_SCHEDULE %q is not a valid cron schedule", c.StatusPollSchedule))
	}

	return nil
}

// IsPostgres reports whether the PostgreSQL backend is selected.
func (c *Config) IsPostgres() bool {
	return c.DatabaseType == "postgres" || c.DatabaseType == "postgresql"
}

// RedisEnabled reports whether a Redis address is configured.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.RedisAddress) != ""
}

// TLSEnabled reports whether both TLS files are configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// RedisDBNumber returns REDIS_DB as an int, 0 when invalid.
func (c *Config) RedisDBNumber() int {
	n, _ := strconv.Atoi(c.RedisDB)
	return n
}

// RedisPoolSizeNumber returns REDIS_POOL_SIZE as an int, 10 when invalid.
func (c *Config) RedisPoolSizeNumber() int {
	if n, err := strconv.Atoi(c.RedisPoolSize); err == nil && n > 0 {
		return n
	}
	return 10
}

// APIRatePerSecond returns the outbound call rate per remote account.
func (c *Config) APIRatePerSecond() float64 {
	rps, err := strconv.ParseFloat(c.APIRatePerSec, 64)
	if err != nil || rps < 0 {
		return 10
	}
	return rps
}

// HTTPTimeouts returns the connect, socket-read and pool-wait timeouts.
func (c *Config) HTTPTimeouts() (connect, socket, poolWait time.Duration) {
	return millis(c.HTTPConnectTimeoutMs, 10000), millis(c.HTTPSocketTimeoutMs, 30000), millis(c.HTTPPoolWaitTimeoutMs, 5000)
}

// APIRateLimit returns the inbound limit as requests per second and burst.
// A disabled or invalid setting returns zero.
func (c *Config) APIRateLimit() (perSecond float64, burst int) {
	if !c.RateLimitEnabled {
		return 0, 0
	}
	limit, err := strconv.Atoi(c.RateLimitDefault)
	if err != nil || limit < 1 {
		return 0, 0
	}
	window, err := time.ParseDuration(c.RateLimitWindow)
	if err != nil || window <= 0 {
		return 0, 0
	}
	return float64(limit) / window.Seconds(), limit
}

// Presence reports which optional settings are configured, never their
// values.
func (c *Config) Presence() map[string]bool {
	return map[string]bool{
		"clientId":        c.DocuSignClientID != "",
		"redirectUri":     c.DocuSignRedirectURI != "",
		"accountId":       c.DocuSignAccountID != "",
		"masterKey":       c.MasterKeyB64 != "" || c.MasterPassphrase != "",
		"webhookUrl":      c.WebhookURL != "",
		"connectHmacKey":  c.ConnectHMACKey != "",
		"webhookSecret":   c.WebhookSecret != "",
		"webhookRequired": c.WebhookRequireAuth,
		"redis":           c.RedisEnabled(),
		"tls":             c.TLSEnabled(),
		"statusPolling":   c.StatusPollSchedule != "",
	}
}

func validPort(s string) bool {
	port, err := strconv.Atoi(s)
	return err == nil && port >= 1 && port <= 65535
}

func millis(s string, def int) time.Duration {
	ms, err := strconv.Atoi(s)
	if err != nil || ms < 1 {
		ms = def
	}
	return time.Duration(ms) * time.Millisecond
}
