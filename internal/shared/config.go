package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Catalog  CatalogConfig  `toml:"catalog"`
	Database DatabaseConfig `toml:"database"`
	Cache    CacheConfig    `toml:"cache"`
	Retry    RetryConfig    `toml:"retry"`
	Server   ServerConfig   `toml:"server"`
}

// CatalogConfig contains catalog/streaming service credentials and endpoints.
type CatalogConfig struct {
	ClientID     string  `toml:"client_id"`
	ClientSecret string  `toml:"client_secret"`
	RedirectURI  string  `toml:"redirect_uri"`
	BaseURL      string  `toml:"base_url"`
	AuthURL      string  `toml:"auth_url"`
	TokenURL     string  `toml:"token_url"`
	RatePerSec   float64 `toml:"rate_per_sec"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// CacheConfig contains TTL cache settings.
type CacheConfig struct {
	MaxEntriesPerNamespace int `toml:"max_entries_per_namespace"`
	SweepIntervalSeconds   int `toml:"sweep_interval_seconds"`
}

// RetryConfig contains resilient client retry settings.
type RetryConfig struct {
	MaxRetries       int `toml:"max_retries"`
	BaseDelayMS      int `toml:"base_delay_ms"`
	MaxDelayMS       int `toml:"max_delay_ms"`
	AttemptTimeoutMS int `toml:"attempt_timeout_ms"`
}

// ServerConfig contains settings for the local account-link callback server.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingConfig, path, err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	// Write the embedded example config to the file
	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
