package config

// Package config provides a reusable loader for trisync client configuration
// files and environment variables.

import (
	"fmt"

	"github.com/spf13/viper"

	"trisync/pkg/utils"
)

// Config represents the configuration of a trisync client process. It mirrors
// the structure of the YAML files under cmd/config.
type Config struct {
	Server struct {
		URL           string `mapstructure:"url" json:"url"`
		APIKey        string `mapstructure:"api_key" json:"api_key"`
		Token         string `mapstructure:"token" json:"token"`
		ConnectTimeMS int    `mapstructure:"connect_time_ms" json:"connect_time_ms"`
	} `mapstructure:"server" json:"server"`

	Reconnect struct {
		MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts"`
		BaseDelayMS int `mapstructure:"base_delay_ms" json:"base_delay_ms"`
		Factor      int `mapstructure:"factor" json:"factor"`
	} `mapstructure:"reconnect" json:"reconnect"`

	Schema struct {
		File string `mapstructure:"file" json:"file"`
	} `mapstructure:"schema" json:"schema"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up from .env

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the TRISYNC_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("TRISYNC_ENV", ""))
}
