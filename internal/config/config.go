// Package config builds the server's runtime settings.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables. The result is validated once at startup and passed
// explicitly to whatever needs it; nothing reads the environment later.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// MinSecretLength is the shortest accepted AUTH_SECRET.
const MinSecretLength = 16

// Config holds runtime settings for the server.
type Config struct {
	Port        int      `yaml:"port"`
	DatabaseURL string   `yaml:"database_url"`
	AuthSecret  string   `yaml:"auth_secret"`
	CORSOrigins []string `yaml:"cors_origins"`

	// CookieSecure sets the Secure attribute on the auth cookie.
	// Leave false only for plain-HTTP local development.
	CookieSecure bool `yaml:"cookie_secure"`

	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text, json

	BcryptCost int `yaml:"bcrypt_cost"`

	// RedisAddr enables the signup/signin rate limiter when non-empty.
	RedisAddr       string        `yaml:"redis_addr"`
	AuthRateLimit   int           `yaml:"auth_rate_limit"`
	AuthRateWindow  time.Duration `yaml:"auth_rate_window"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the development defaults. AuthSecret is deliberately empty
// so a deployment cannot start without one.
func Default() Config {
	return Config{
		Port:            8000,
		DatabaseURL:     "data/todo.db",
		CORSOrigins:     []string{"http://localhost:3000"},
		LogLevel:        "info",
		LogFormat:       "text",
		BcryptCost:      12,
		AuthRateLimit:   10,
		AuthRateWindow:  time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the variables getenv returns. Pass os.Getenv in
// production and a map lookup in tests.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return cfg, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	var errs []error

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s=%q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s=%q is not a boolean", key, v))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s=%q is not a duration", key, v))
				return
			}
			*dst = d
		}
	}

	integer("PORT", &cfg.Port)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("AUTH_SECRET", &cfg.AuthSecret)
	if v := getenv("CORS_ORIGINS"); strings.TrimSpace(v) != "" {
		cfg.CORSOrigins = splitList(v)
	}
	boolean("COOKIE_SECURE", &cfg.CookieSecure)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	integer("BCRYPT_COST", &cfg.BcryptCost)
	str("REDIS_ADDR", &cfg.RedisAddr)
	integer("AUTH_RATE_LIMIT", &cfg.AuthRateLimit)
	duration("AUTH_RATE_WINDOW", &cfg.AuthRateWindow)
	duration("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	return errors.Join(errs...)
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if len(c.AuthSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("config: AUTH_SECRET must be at least %d characters", MinSecretLength))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: port %d out of range", c.Port))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("config: DATABASE_URL must not be empty"))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("config: bcrypt cost %d outside [%d, %d]", c.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log format %q must be text or json", c.LogFormat))
	}
	if c.RedisAddr != "" && (c.AuthRateLimit < 1 || c.AuthRateWindow <= 0) {
		errs = append(errs, errors.New("config: rate limiting needs a positive limit and window"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("config: shutdown timeout must be positive"))
	}

	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
