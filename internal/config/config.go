package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// DirectClientIP selects the socket peer address instead of a header.
const DirectClientIP = "direct"

// Config holds everything the server reads from the environment.
type Config struct {
	ProjectName    string        `env:"PROJECT_NAME" envDefault:"Drop"`
	ListenAddr     string        `env:"LISTEN_ADDR" envDefault:":8081"`
	ClientIPHeader string        `env:"CLIENT_IP_HEADER" envDefault:"X-Real-IP"`
	BodyLimit      string        `env:"BODY_LIMIT" envDefault:"8M"`
	RateLimit      float64       `env:"RATE_LIMIT" envDefault:"100"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`

	Storage StorageConfig
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}
	if _, err := cfg.Storage.ResolveBackend(); err != nil {
		return nil, err
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("RATE_LIMIT must not be negative")
	}
	if cfg.SweepInterval < 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL must not be negative")
	}
	return &cfg, nil
}
