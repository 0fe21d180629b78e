// Package config loads agencyctl settings from a YAML file overlaid with
// environment variables. With neither, the local development defaults apply.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/pkg/errors"
)

const (
	DriverFile   = "file"
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	API      APIConfig      `yaml:"api"`
	Storage  StorageConfig  `yaml:"storage"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	Log      LogConfig      `yaml:"log"`
}

// ProviderConfig locates the Keycloak realm and client.
type ProviderConfig struct {
	URL      string        `yaml:"url"       env:"KEYCLOAK_URL"       env-default:"http://localhost:8080"`
	Realm    string        `yaml:"realm"     env:"KEYCLOAK_REALM"     env-default:"morocco-view"`
	ClientID string        `yaml:"client_id" env:"KEYCLOAK_CLIENT_ID" env-default:"morocco-view-client"`
	Timeout  time.Duration `yaml:"timeout"   env:"KEYCLOAK_TIMEOUT"   env-default:"60s"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url" env:"API_URL"     env-default:"http://localhost:3000"`
	Timeout time.Duration `yaml:"timeout"  env:"API_TIMEOUT" env-default:"30s"`
}

// StorageConfig selects where the token pair is kept.
type StorageConfig struct {
	Driver   string `yaml:"driver"    env:"STORAGE_DRIVER" env-default:"file"`
	URL      string `yaml:"url"       env:"STORAGE_URL"`
	RedisURL string `yaml:"redis_url" env:"REDIS_URL"`
	Prefix   string `yaml:"prefix"    env:"REDIS_PREFIX"   env-default:"moroccoview:"`
}

type RefreshConfig struct {
	Dedupe bool `yaml:"dedupe" env:"REFRESH_DEDUPE" env-default:"true"`
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// Load reads path, or CONFIG_PATH when path is empty, then overlays the
// environment. With no file at all only the environment is read.
func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrapf(err, "config file %q", path)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to read config")
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to read env")
	}

	if cfg.Storage.URL == "" && cfg.Storage.Driver == DriverFile {
		cfg.Storage.URL = DefaultSessionPath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverFile:
		if c.Storage.URL == "" {
			return errors.New("require storage url")
		}
	case DriverMemory:
	case DriverRedis:
		if c.Storage.RedisURL == "" {
			return errors.New("require redis url")
		}
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}

// DefaultSessionPath is ~/.moroccoview/session.json, or a path under the
// working directory when the home directory is unknown.
func DefaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".moroccoview", "session.json")
}
