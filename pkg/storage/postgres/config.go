package postgres

import (
	"time"

	"github.com/kikaiken/kikaiken/pkg/config"
)

// Pool defaults for a single bot process.
const (
	DefaultMaxConns        int32 = 8
	DefaultMaxConnLifetime       = 30 * time.Minute
	DefaultMaxConnIdleTime       = 5 * time.Minute
)

// Config configures the PostgreSQL store. Zero pool values take the
// package defaults.
type Config struct {
	DSN string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// MigrateOnStart applies the embedded migrations in New.
	MigrateOnStart bool
}

// FromConfig maps the storage.postgres config section.
func FromConfig(c config.PostgresConfig) Config {
	return Config{
		DSN:            c.DSN,
		MaxConns:       c.MaxConns,
		MigrateOnStart: c.MigrateOnStart,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxConns <= 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.MinConns < 0 || c.MinConns > c.MaxConns {
		c.MinConns = 0
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = DefaultMaxConnLifetime
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = DefaultMaxConnIdleTime
	}
	return c
}
