// Package config loads environment-variable configuration for the demo
// binaries under cmd/. The library packages (pkg/...) never depend on this;
// they take their configuration as plain Go values from their caller.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the environment-driven configuration for a projector demo
// process: where its SQLite database lives, how its control-row leases are
// timed, and where its secrets (e.g. a DSN credential) come from.
type Config struct {
	SQLiteDSN      string        `env:"PROJECTOR_SQLITE_DSN" envDefault:"file:projector.db"`
	LockTimeout    time.Duration `env:"PROJECTOR_LOCK_TIMEOUT" envDefault:"5s"`
	PersistBlock   int           `env:"PROJECTOR_PERSIST_BLOCK_SIZE" envDefault:"1000"`
	IdleSleep      time.Duration `env:"PROJECTOR_IDLE_SLEEP" envDefault:"100ms"`
	SecretsURL     string        `env:"PROJECTOR_SECRETS_URL"`
	NATSURL        string        `env:"PROJECTOR_NATS_URL"`
	LogLevel       string        `env:"PROJECTOR_LOG_LEVEL" envDefault:"info"`
}

// Load parses Config from the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	return cfg, nil
}
