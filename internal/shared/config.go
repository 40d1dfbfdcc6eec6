package shared

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sethvargo/go-envconfig"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Directory DirectoryConfig `toml:"directory"`
	Feeds     FeedsConfig     `toml:"feeds"`
	HTTP      HTTPConfig      `toml:"http"`
	Log       LogConfig       `toml:"log"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" env:"PODX_DATABASE_PATH, overwrite"`
	MaxOpenConns int    `toml:"max_open_conns" env:"PODX_DATABASE_MAX_OPEN_CONNS, overwrite"`
	MaxIdleConns int    `toml:"max_idle_conns" env:"PODX_DATABASE_MAX_IDLE_CONNS, overwrite"`
}

// DirectoryConfig contains settings for the podcast directory (iTunes search) API.
type DirectoryConfig struct {
	BaseURL   string  `toml:"base_url" env:"PODX_DIRECTORY_BASE_URL, overwrite"`
	Country   string  `toml:"country" env:"PODX_DIRECTORY_COUNTRY, overwrite"`
	RateLimit float64 `toml:"rate_limit" env:"PODX_DIRECTORY_RATE_LIMIT, overwrite"`
	Burst     int     `toml:"burst" env:"PODX_DIRECTORY_BURST, overwrite"`
}

// FeedsConfig contains feed fetching and paging settings.
type FeedsConfig struct {
	Workers  int           `toml:"workers" env:"PODX_FEEDS_WORKERS, overwrite"`
	TTL      time.Duration `toml:"ttl" env:"PODX_FEEDS_TTL, overwrite"`
	PageSize int           `toml:"page_size" env:"PODX_FEEDS_PAGE_SIZE, overwrite"`
}

// HTTPConfig contains settings for the shared HTTP client and its on-disk response cache.
type HTTPConfig struct {
	CacheDir      string        `toml:"cache_dir" env:"PODX_HTTP_CACHE_DIR, overwrite"`
	CacheMaxBytes int64         `toml:"cache_max_bytes" env:"PODX_HTTP_CACHE_MAX_BYTES, overwrite"`
	MaxAge        time.Duration `toml:"max_age" env:"PODX_HTTP_MAX_AGE, overwrite"`
	Timeout       time.Duration `toml:"timeout" env:"PODX_HTTP_TIMEOUT, overwrite"`
	UserAgent     string        `toml:"user_agent" env:"PODX_HTTP_USER_AGENT, overwrite"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level" env:"PODX_LOG_LEVEL, overwrite"`
	File  string `toml:"file" env:"PODX_LOG_FILE, overwrite"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// ApplyEnv overrides config values with PODX_* environment variables.
//
// A nil lookuper reads the process environment.
func ApplyEnv(ctx context.Context, config *Config, lookuper envconfig.Lookuper) error {
	if lookuper == nil {
		lookuper = envconfig.OsLookuper()
	}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: config, Lookuper: lookuper}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return config.Validate()
}

// Validate reports values that would make the engine misbehave.
func (c *Config) Validate() error {
	switch {
	case c.Database.Path == "":
		return fmt.Errorf("%w: database.path is empty", ErrInvalidConfig)
	case c.Feeds.Workers < 1:
		return fmt.Errorf("%w: feeds.workers must be at least 1", ErrInvalidConfig)
	case c.Feeds.PageSize < 1:
		return fmt.Errorf("%w: feeds.page_size must be at least 1", ErrInvalidConfig)
	case c.HTTP.CacheMaxBytes < 0:
		return fmt.Errorf("%w: http.cache_max_bytes must not be negative", ErrInvalidConfig)
	case c.Directory.RateLimit < 0:
		return fmt.Errorf("%w: directory.rate_limit must not be negative", ErrInvalidConfig)
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
