package main

import (
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pepperhq/ordersync/internal/config"
)

var version = "0.3.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ordersync",
	Short: "ERP order CSV ingestion and incremental SQLite sync",
	Long: `ordersync ingests ERP order CSV exports into a local SQLite store.

Each run validates and normalizes every row, reconciles the batch against
the persisted state (upserts, deletes, and orphan-order cascades in one
transaction), reports aggregate analytics, and writes a JSON snapshot.
Invalid rows are kept and flagged rather than dropped, so they can be
reviewed and fixed in the source system.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default: ./ordersync.yaml)")
}

// loadConfig loads file/env configuration for a command.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// newLogger builds the run logger. When logFile is set, log lines are
// mirrored to a size-rotated file alongside stderr.
func newLogger(prefix, logFile string) *log.Logger {
	var w io.Writer = os.Stderr
	if logFile != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}
	return log.New(w, prefix, log.LstdFlags)
}
