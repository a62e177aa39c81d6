// Package config loads ordersync settings from a config file, environment
// variables, and defaults, in that order of increasing precedence for the
// environment. Command-line flags override everything and are applied by
// the CLI layer.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the settings for a pipeline run.
type Config struct {
	// DBPath is the SQLite store location.
	DBPath string
	// ExportPath is where the JSON snapshot is written. Empty disables export.
	ExportPath string
	// LogFile, when set, receives a rotated copy of the run log.
	LogFile string
	// Mode is the default sync mode: "sync" or "replace".
	Mode string
}

// Load reads configuration from the given file, or searches the working
// directory for ordersync.yaml when path is empty. A missing config file
// is not an error; defaults and ORDERSYNC_* environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("db_path", "orders.db")
	v.SetDefault("export_path", "exported_orders.json")
	v.SetDefault("log_file", "")
	v.SetDefault("mode", "sync")

	v.SetEnvPrefix("ORDERSYNC")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ordersync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Read through Get so environment overrides are honored.
	cfg := Config{
		DBPath:     v.GetString("db_path"),
		ExportPath: v.GetString("export_path"),
		LogFile:    v.GetString("log_file"),
		Mode:       v.GetString("mode"),
	}

	if cfg.Mode != "sync" && cfg.Mode != "replace" {
		return nil, fmt.Errorf("invalid mode %q: must be \"sync\" or \"replace\"", cfg.Mode)
	}

	return &cfg, nil
}

