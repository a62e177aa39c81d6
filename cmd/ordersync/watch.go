package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pepperhq/ordersync/internal/daemon"
	"github.com/pepperhq/ordersync/internal/pipeline"
	syncer "github.com/pepperhq/ordersync/internal/sync"
)

var (
	watchCSVPath  string
	watchDBPath   string
	watchOutPath  string
	watchLogFile  string
	watchDebounce time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Resync whenever the CSV export changes (foreground)",
	Long: `Watch the CSV export and rerun the incremental sync on every change.

This keeps the store current while an ERP system keeps re-exporting the
same file. Each change triggers a complete pipeline run against the new
snapshot. Press Ctrl+C to stop.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		dbPath := cfg.DBPath
		if cmd.Flags().Changed("db") {
			dbPath = watchDBPath
		}
		outPath := cfg.ExportPath
		if cmd.Flags().Changed("out") {
			outPath = watchOutPath
		}
		logFile := cfg.LogFile
		if cmd.Flags().Changed("log-file") {
			logFile = watchLogFile
		}

		logger := newLogger("[watch] ", logFile)

		resync := func(ctx context.Context) error {
			summary, err := pipeline.Run(ctx, pipeline.Options{
				CSVPath:    watchCSVPath,
				DBPath:     dbPath,
				ExportPath: outPath,
				Mode:       syncer.ModeSync,
				Logger:     logger,
			})
			if err != nil {
				return err
			}
			logger.Printf("Run %s: %d rows (%d invalid)",
				summary.RunID, summary.RowsTotal, summary.RowsInvalid)
			return nil
		}

		w, err := daemon.New(watchCSVPath, resync, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating watcher: %v\n", err)
			os.Exit(1)
		}
		w.SetDebounce(watchDebounce)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Sync once up front so the store reflects the file as it is now.
		if err := resync(ctx); err != nil {
			logger.Printf("WARNING: initial sync failed: %v", err)
		}

		fmt.Printf("Watching %s (store: %s). Press Ctrl+C to stop.\n", watchCSVPath, dbPath)
		if err := w.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Watcher stopped with error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchCSVPath, "csv", "", "path to the CSV export (required)")
	watchCmd.Flags().StringVar(&watchDBPath, "db", "", "path to the SQLite store")
	watchCmd.Flags().StringVar(&watchOutPath, "out", "", "path for the JSON export")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "mirror logs to a rotated file")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", daemon.DefaultDebounce,
		"delay after the last change before resyncing")
	_ = watchCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(watchCmd)
}
