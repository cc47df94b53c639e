// Package config loads engine configuration from config.yaml with
// environment variable overrides. Environment variables always win;
// secrets (PGPASSWORD) must only come from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for concord-engine.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8420"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Seed configuration
	Seed SeedConfig `yaml:"seed"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host     string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User     string `yaml:"user" env:"PGUSER" env-default:"concord"`
	Password string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"PGDATABASE" env-default:"concord"`
	SSLMode  string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"prefer"`

	MaxConnections int32 `yaml:"max_connections" env:"PG_MAX_CONNECTIONS" env-default:"25"`
}

// SeedConfig controls the one-time ontology bootstrap.
type SeedConfig struct {
	// DefinitionPath points at the YAML ontology/workflow definition.
	DefinitionPath string `yaml:"definition_path" env:"SEED_DEFINITION_PATH" env-default:"seed/ontology.yaml"`

	// AdminPasswordHash is stored on the bootstrap admin user entity.
	// Produced by the auth plumbing's hasher; this engine treats it as
	// an opaque property value.
	AdminPasswordHash string `yaml:"-" env:"SEED_ADMIN_PASSWORD_HASH"`
}

// URL builds a pgx-compatible connection URL.
func (d *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.Database,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Load reads configuration from config.yaml with environment variable
// overrides. A missing config.yaml is fine; the environment and the
// env-default tags carry the full configuration on their own.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	return cfg, nil
}
