package storage

import (
	"fmt"
	"log/slog"
)

// Backend names accepted by Config.Backend.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config selects and parameterizes the storage backend. Fields carry both
// YAML and env tags; the env layer is applied by the caller (vault config
// loading) before Open.
type Config struct {
	// Backend forces a specific provider. When empty the backend is
	// derived from the execution context: APP_ENV=test binds the volatile
	// in-memory store, a configured DATABASE_URL binds Postgres, and
	// everything else falls back to the embedded SQLite file.
	Backend string `yaml:"backend" env:"ADSVAULT_BACKEND"`

	// AppEnv mirrors APP_ENV. "test" selects the in-memory provider.
	AppEnv string `yaml:"-" env:"APP_ENV"`

	// SQLitePath is the embedded database file. Default: "adsvault.db".
	SQLitePath string `yaml:"sqlite_path" env:"ADSVAULT_DB"`

	Postgres PostgresConfig `yaml:"postgres"`
}

func (c *Config) defaults() {
	if c.SQLitePath == "" {
		c.SQLitePath = "adsvault.db"
	}
}

// Resolve returns the backend Open will bind.
func (c *Config) Resolve() string {
	if c.Backend != "" {
		return c.Backend
	}
	if c.AppEnv == "test" {
		return BackendMemory
	}
	if c.Postgres.DatabaseURL != "" {
		return BackendPostgres
	}
	return BackendSQLite
}

// Open inspects the execution context once and binds exactly one Provider
// for the process lifetime. Construction failure is fatal to the caller:
// there is no fallback chain and no hot-swapping.
func Open(cfg Config, logger *slog.Logger) (Provider, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Resolve()
	switch backend {
	case BackendMemory:
		logger.Info("storage: using in-memory provider")
		return NewMemory(), nil
	case BackendSQLite:
		logger.Info("storage: using sqlite provider", "path", cfg.SQLitePath)
		p, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("storage: open sqlite: %w", err)
		}
		return p, nil
	case BackendPostgres:
		logger.Info("storage: using postgres provider", "host", cfg.Postgres.Host)
		p, err := OpenPostgres(cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("storage: open postgres: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", backend)
	}
}
