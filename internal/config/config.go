// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// githubMaxPageSize is the upstream per_page ceiling.
const githubMaxPageSize = 100

// Config holds all configuration for the application.
type Config struct {
	LogLevel      string        `mapstructure:"LOG_LEVEL"`
	Port          int           `mapstructure:"PORT"`
	DBURL         string        `mapstructure:"DB_URL"`
	GithubOrg     string        `mapstructure:"GITHUB_ORG"`
	SortKey       string        `mapstructure:"SORT_KEY"`
	SyncOnStartup bool          `mapstructure:"SYNC_ON_STARTUP"`
	SyncPageSize  int           `mapstructure:"SYNC_PAGE_SIZE"`
	SyncTimeout   time.Duration `mapstructure:"SYNC_TIMEOUT"`
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	// Set default values
	viper.SetDefault("LOG_LEVEL", "info")
	// Registered empty so AutomaticEnv picks the key up; validated below.
	viper.SetDefault("DB_URL", "")
	viper.SetDefault("PORT", 5000)
	viper.SetDefault("GITHUB_ORG", "IBM")
	viper.SetDefault("SORT_KEY", "full_name")
	viper.SetDefault("SYNC_ON_STARTUP", false)
	viper.SetDefault("SYNC_PAGE_SIZE", githubMaxPageSize)
	viper.SetDefault("SYNC_TIMEOUT", "10m")

	// Load from .env file if it exists
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if file not found

	// Bind environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.DBURL == "" {
		return nil, errors.New("DB_URL is a required configuration field")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PORT must be a valid port number, got %d", cfg.Port)
	}
	if cfg.SyncPageSize <= 0 || cfg.SyncPageSize > githubMaxPageSize {
		return nil, fmt.Errorf("SYNC_PAGE_SIZE must be between 1 and %d, got %d", githubMaxPageSize, cfg.SyncPageSize)
	}
	if cfg.GithubOrg == "" {
		return nil, errors.New("GITHUB_ORG must not be empty")
	}

	return &cfg, nil
}
