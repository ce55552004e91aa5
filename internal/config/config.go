package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "qr-secret", "password",
}

type Config struct {
	Port          int    `env:"PORT" envDefault:"8080"`
	DatabaseURL   string `env:"DATABASE_URL,required"`
	RedisURL      string `env:"REDIS_URL,required"`
	QRTokenSecret string `env:"QR_TOKEN_SECRET,required"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	// Scan-validation tolerances. Externally tunable so deployments and tests
	// can tighten or loosen them without a rebuild.
	ClockSkewToleranceMs          int64 `env:"CLOCK_SKEW_TOLERANCE_MS" envDefault:"50000"`
	LateWindowMs                  int64 `env:"LATE_WINDOW_MS" envDefault:"30000"`
	MaxSubmissionDelayMs          int64 `env:"MAX_SUBMISSION_DELAY_MS" envDefault:"120000"`
	QRTokenValiditySeconds        int   `env:"QR_TOKEN_VALIDITY_SECONDS" envDefault:"5"`
	DefaultSessionDurationMinutes int   `env:"DEFAULT_SESSION_DURATION_MINUTES" envDefault:"3"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) QRTokenValidity() time.Duration {
	return time.Duration(c.QRTokenValiditySeconds) * time.Second
}

func (c *Config) DefaultSessionDuration() time.Duration {
	return time.Duration(c.DefaultSessionDurationMinutes) * time.Minute
}

// NonceTTL is how long nonce metadata survives in the ephemeral store. It must
// outlive the token itself: a scan captured at the end of the late window and
// submitted at the edge of the delay limit can still arrive
// validity + lateWindow + maxDelay after issuance.
func (c *Config) NonceTTL() time.Duration {
	slack := time.Duration(c.LateWindowMs+c.MaxSubmissionDelayMs) * time.Millisecond
	return c.QRTokenValidity() + slack
}

func (c *Config) Validate(isProduction bool) error {
	if c.ClockSkewToleranceMs < 0 || c.LateWindowMs < 0 || c.MaxSubmissionDelayMs < 0 {
		return fmt.Errorf("scan tolerances must be non-negative")
	}
	if c.QRTokenValiditySeconds <= 0 {
		return fmt.Errorf("QR_TOKEN_VALIDITY_SECONDS must be positive")
	}
	if c.DefaultSessionDurationMinutes <= 0 {
		return fmt.Errorf("DEFAULT_SESSION_DURATION_MINUTES must be positive")
	}

	if isProduction {
		if err := validateSecret("QR_TOKEN_SECRET", c.QRTokenSecret); err != nil {
			return err
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
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
