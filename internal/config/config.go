// Package config loads service configuration from a YAML file and
// SHAPESHYFT_-prefixed environment variables, environment taking precedence.
package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/johnqh/shapeshyft-api/internal/crypto"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

type AuthConfig struct {
	// Secret signs bearer tokens.
	Secret string `mapstructure:"secret" validate:"required"`
	// MasterKeyHex is the hex-encoded AES-256 key for credentials at rest.
	MasterKeyHex string `mapstructure:"master_key" validate:"required,len=64,hexadecimal"`
}

type LogConfig struct {
	Debug bool `mapstructure:"debug"`
	JSON  bool `mapstructure:"json"`
}

// MasterKey decodes the configured master key.
func (c AuthConfig) MasterKey() ([]byte, error) {
	key, err := hex.DecodeString(c.MasterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid master key: %w", err)
	}
	if len(key) != crypto.KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", crypto.KeySize, len(key))
	}
	return key, nil
}

// Load reads configuration. configFile may be empty, in which case only
// defaults and environment variables apply.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.debug", false)
	v.SetDefault("log.json", false)

	v.SetEnvPrefix("SHAPESHYFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
