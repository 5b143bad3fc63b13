package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv    string
	Port      string
	LogLevel  string
	LogFormat string

	DatabaseURL string
	RedisURL    string

	PayoneMerchantID   string
	PayonePortalID     string
	PayoneSubAccountID string
	PayonePortalKey    string
	PayoneMode         string
	PayoneAPIURL       string

	GatewayTimeout      time.Duration
	WebhookReplayTTL    time.Duration
	LockTTL             time.Duration
	LockRetryBackoff    time.Duration
	FingerprintTokenTTL time.Duration

	// StatusMapping overrides the default txaction keyword to transition
	// mapping, e.g. "appointed=authorize,paid=pay".
	StatusMapping map[string]string

	// Authorization method used for initial payment requests per method
	// family: "authorization" or "preauthorization".
	DebitAuthorizationMethod       string
	InstallmentAuthorizationMethod string

	WebhookRateLimit   string
	CORSAllowedOrigins []string
	AutoMigrate        bool
	MigrationsPath     string

	TracingEnabled       bool
	TracingEndpoint      string
	TracingSamplingRatio float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:    valueOrDefault(k.String("APP_ENV"), "development"),
		Port:      valueOrDefault(k.String("PORT"), "8080"),
		LogLevel:  valueOrDefault(k.String("LOG_LEVEL"), "info"),
		LogFormat: valueOrDefault(k.String("LOG_FORMAT"), "json"),

		DatabaseURL: k.String("DATABASE_URL"),
		RedisURL:    k.String("REDIS_URL"),

		PayoneMerchantID:   k.String("PAYONE_MERCHANT_ID"),
		PayonePortalID:     k.String("PAYONE_PORTAL_ID"),
		PayoneSubAccountID: k.String("PAYONE_SUBACCOUNT_ID"),
		PayonePortalKey:    k.String("PAYONE_PORTAL_KEY"),
		PayoneMode:         valueOrDefault(k.String("PAYONE_MODE"), "test"),
		PayoneAPIURL:       valueOrDefault(k.String("PAYONE_API_URL"), "https://api.pay1.de/post-gateway/"),

		GatewayTimeout:      parseDuration(k.String("GATEWAY_TIMEOUT"), "15s"),
		WebhookReplayTTL:    parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),
		LockTTL:             parseDuration(k.String("LOCK_TTL"), "30s"),
		LockRetryBackoff:    parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),
		FingerprintTokenTTL: parseDuration(k.String("FINGERPRINT_TOKEN_TTL"), "30m"),

		StatusMapping: parseMapping(k.String("PAYONE_STATUS_MAPPING")),

		DebitAuthorizationMethod:       valueOrDefault(k.String("DEBIT_AUTHORIZATION_METHOD"), "authorization"),
		InstallmentAuthorizationMethod: valueOrDefault(k.String("INSTALLMENT_AUTHORIZATION_METHOD"), "preauthorization"),

		WebhookRateLimit:   valueOrDefault(k.String("WEBHOOK_RATE_LIMIT"), "120-M"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		AutoMigrate:        parseBool(k.String("AUTO_MIGRATE")),
		MigrationsPath:     valueOrDefault(k.String("MIGRATIONS_PATH"), "migrations"),

		TracingEnabled:       parseBool(k.String("TRACING_ENABLED")),
		TracingEndpoint:      k.String("TRACING_ENDPOINT"),
		TracingSamplingRatio: k.Float64("TRACING_SAMPLING_RATIO"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.PayonePortalKey == "" {
		return nil, errors.New("PAYONE_PORTAL_KEY is required")
	}
	switch cfg.PayoneMode {
	case "test", "live":
	default:
		return nil, fmt.Errorf("PAYONE_MODE must be test or live, got %q", cfg.PayoneMode)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseMapping decodes "keyword=transition" pairs separated by commas.
func parseMapping(value string) map[string]string {
	pairs := splitAndTrim(value)
	if len(pairs) == 0 {
		return nil
	}
	mapping := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, val, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if key != "" && val != "" {
			mapping[key] = val
		}
	}
	return mapping
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching
// the real environment permanently.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
