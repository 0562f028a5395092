package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/desertthunder/ytplay/internal/models"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Service  ServiceConfig  `toml:"service"`
	Auth     AuthConfig     `toml:"auth"`
	Resolver ResolverConfig `toml:"resolver"`
	Cipher   CipherConfig   `toml:"cipher"`
	Database DatabaseConfig `toml:"database"`
	Cache    CacheConfig    `toml:"cache"`
	Playback PlaybackConfig `toml:"playback"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// Duration is a [time.Duration] that reads from TOML strings such as "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ServiceConfig points at the metadata proxy.
type ServiceConfig struct {
	Endpoint          string   `toml:"endpoint"`
	Timeout           Duration `toml:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
}

// AuthConfig holds session credentials.
type AuthConfig struct {
	Cookie     string `toml:"cookie"`
	CookieFile string `toml:"cookie_file"`
	TokenFile  string `toml:"token_file"`
}

// ResolverConfig controls format selection and URL validation.
type ResolverConfig struct {
	Quality          string                 `toml:"quality"`
	Metered          bool                   `toml:"metered"`
	ValidateTimeout  Duration               `toml:"validate_timeout"`
	UserAgent        string                 `toml:"user_agent"`
	OriginToken      string                 `toml:"origin_token"`
	FallbackProfiles []models.ClientProfile `toml:"fallback_profiles"`
}

// CipherConfig holds the versioned signature and n-parameter programs.
type CipherConfig struct {
	Version      string `toml:"version"`
	SignatureOps string `toml:"signature_ops"`
	NOps         string `toml:"n_ops"`
	NAltOps      string `toml:"n_alt_ops"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// CacheConfig selects the resolution cache backend.
type CacheConfig struct {
	Backend      string      `toml:"backend"`
	SafetyMargin Duration    `toml:"safety_margin"`
	Redis        RedisConfig `toml:"redis"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// PlaybackConfig contains audio pipeline and recovery settings.
type PlaybackConfig struct {
	RetryUnit Duration `toml:"retry_unit"`
	MPVPath   string   `toml:"mpv_path"`
}

// MetricsConfig contains the prometheus listener address.
type MetricsConfig struct {
	Listen string `toml:"listen"`
}

// LoadConfig reads a TOML configuration file and overlays it on [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
	} else if err != nil {
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

// Validate checks values that would otherwise fail deep inside the resolver.
func (c *Config) Validate() error {
	if _, err := models.ParseQualityPolicy(c.Resolver.Quality); err != nil {
		return fmt.Errorf("%w: resolver.quality: %v", ErrInvalidConfig, err)
	}

	switch c.Cache.Backend {
	case "memory", "redis", "sqlite":
	default:
		return fmt.Errorf("%w: cache.backend %q", ErrInvalidConfig, c.Cache.Backend)
	}

	if c.Resolver.ValidateTimeout.Duration <= 0 {
		return fmt.Errorf("%w: resolver.validate_timeout must be positive", ErrInvalidConfig)
	}
	if c.Playback.RetryUnit.Duration <= 0 {
		return fmt.Errorf("%w: playback.retry_unit must be positive", ErrInvalidConfig)
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes the config to path as TOML, replacing any existing file.
func SaveConfig(path string, c *Config) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
