package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Base URL this server is reachable at; embedded in browser-openable
	// OAuth relay URLs.
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`

	// Token signing. TokenPrivateKey (PEM, EC P-256 or RSA) takes precedence
	// over the symmetric TokenSecret when both are set.
	TokenSecret     string `env:"TOKEN_SECRET"`
	TokenPrivateKey string `env:"TOKEN_PRIVATE_KEY"`
	TokenKeyID      string `env:"TOKEN_KEY_ID"`

	// AdminPasswordHash seeds the first operator account at startup when no
	// account exists yet.
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`
	EncryptionKey     string `env:"ENCRYPTION_KEY"`

	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`
	CORSAllowedMethods string `env:"CORS_ALLOWED_METHODS" envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	CORSAllowedHeaders string `env:"CORS_ALLOWED_HEADERS" envDefault:"Content-Type,Authorization,X-Device-Serial,X-Timestamp,X-Signature"`

	WebexClientID     string `env:"WEBEX_CLIENT_ID"`
	WebexClientSecret string `env:"WEBEX_CLIENT_SECRET"`
	WebexRedirectURI  string `env:"WEBEX_REDIRECT_URI"`
	WebexScope        string `env:"WEBEX_SCOPE" envDefault:"spark:people_read"`

	SweepIntervalSeconds int `env:"SWEEP_INTERVAL_SECONDS" envDefault:"30"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c *Config) Validate(isProduction bool) error {
	if c.TokenSecret == "" && c.TokenPrivateKey == "" {
		return fmt.Errorf("no token signing key material: set TOKEN_PRIVATE_KEY or TOKEN_SECRET")
	}

	if c.AdminPasswordHash != "" {
		if !strings.HasPrefix(c.AdminPasswordHash, "$2a$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2b$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2y$") {
			return fmt.Errorf("ADMIN_PASSWORD_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go <password>)")
		}
	}

	if isProduction {
		if c.TokenPrivateKey == "" {
			if err := validateSecret("TOKEN_SECRET", c.TokenSecret); err != nil {
				return err
			}
		}

		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.EncryptionKey == "" {
			log.Warn().Msg("ENCRYPTION_KEY is empty in production: vault secrets will not be encrypted at rest")
		}
		if c.WebexClientID == "" {
			log.Warn().Msg("WEBEX_CLIENT_ID is empty in production: OAuth relay and presence sweep disabled")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
