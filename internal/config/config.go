// Package config loads the negotiation service configuration from a YAML
// file with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server          ServerConfig          `yaml:"server"`
	Auth            AuthConfig            `yaml:"auth"`
	ContractService ContractServiceConfig `yaml:"contract_service"`
	Catalog         CatalogConfig         `yaml:"catalog"`
	Database        DatabaseConfig        `yaml:"database"`
	RateLimit       RateLimitConfig       `yaml:"rate_limit"`
	CORS            CORSConfig            `yaml:"cors"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig configures JWT verification.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// ContractServiceConfig configures the contract service client.
type ContractServiceConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	ServiceKey    string        `yaml:"service_key"`
	ServiceSecret string        `yaml:"service_secret"`
	Timeout       time.Duration `yaml:"timeout"`
}

// CatalogConfig points at the public catalog used to build resource URLs.
type CatalogConfig struct {
	BaseURL string `yaml:"base_url"`
}

// DatabaseConfig configures PostgreSQL. An empty DSN selects the in-memory
// store.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RateLimitConfig configures per-caller request limiting.
type RateLimitConfig struct {
	RequestsPerSecond int  `yaml:"requests_per_second"`
	Burst             int  `yaml:"burst"`
	Enabled           bool `yaml:"enabled"`
}

// CORSConfig configures allowed cross-origin callers.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the configuration used when no file is provided.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		ContractService: ContractServiceConfig{
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 20,
			MaxIdleConns: 5,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}

// Load reads the configuration from path, falling back to defaults when the
// path is empty, and applies environment overrides last.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt secret is required")
	}
	if c.ContractService.Endpoint == "" {
		return fmt.Errorf("contract service endpoint is required")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("CONTRACT_SERVICE_ENDPOINT"); v != "" {
		cfg.ContractService.Endpoint = v
	}
	if v := os.Getenv("CONTRACT_SERVICE_KEY"); v != "" {
		cfg.ContractService.ServiceKey = v
	}
	if v := os.Getenv("CONTRACT_SERVICE_SECRET"); v != "" {
		cfg.ContractService.ServiceSecret = v
	}
	if v := os.Getenv("CATALOG_BASE_URL"); v != "" {
		cfg.Catalog.BaseURL = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
}
