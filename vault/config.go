package vault

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/sellerlens/adsvault/domcache"
	"github.com/sellerlens/adsvault/migrate"
	"github.com/sellerlens/adsvault/storage"
)

// Config holds all adsvault configuration.
type Config struct {
	Storage storage.Config `yaml:"storage"`

	// MaxAge is the cache freshness threshold used by IsFresh answers.
	MaxAge time.Duration `yaml:"max_age" env:"ADSVAULT_MAX_AGE"`

	Migrate migrate.Config `yaml:"migrate"`
}

func (c *Config) defaults() {
	if c.MaxAge <= 0 {
		c.MaxAge = domcache.DefaultMaxAge
	}
}

// LoadConfigFile reads a YAML config file and applies environment
// overrides on top (APP_ENV, DATABASE_URL, ADSVAULT_*). Env always wins
// over the file so deployments can override without editing it.
func LoadConfigFile(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("vault: parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("vault: env config: %w", err)
	}
	return cfg, nil
}
