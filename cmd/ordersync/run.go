package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pepperhq/ordersync/internal/pipeline"
	syncer "github.com/pepperhq/ordersync/internal/sync"
)

var (
	runCSVPath   string
	runDBPath    string
	runOutPath   string
	runLogFile   string
	runOverwrite bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ingest a CSV export and sync it into the store",
	Long: `Validate an ERP order CSV and reconcile it into the SQLite store.

By default this performs an incremental sync: the batch is treated as the
complete desired state, so missing rows are deleted and orders that lose
their last item are removed. With --overwrite the store is cleared and
reloaded from scratch.

After syncing, the command prints a validation summary, details of invalid
rows kept for review, per-order totals, the top customer, and distinct item
counts, then writes the JSON export.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		dbPath := cfg.DBPath
		if cmd.Flags().Changed("db") {
			dbPath = runDBPath
		}
		outPath := cfg.ExportPath
		if cmd.Flags().Changed("out") {
			outPath = runOutPath
		}
		logFile := cfg.LogFile
		if cmd.Flags().Changed("log-file") {
			logFile = runLogFile
		}
		mode := syncer.Mode(cfg.Mode)
		if runOverwrite {
			mode = syncer.ModeReplace
		}

		summary, err := pipeline.Run(cmd.Context(), pipeline.Options{
			CSVPath:    runCSVPath,
			DBPath:     dbPath,
			ExportPath: outPath,
			Mode:       mode,
			Logger:     newLogger("[ordersync] ", logFile),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		printSummary(summary, dbPath)
	},
}

// printSummary renders the run report: validation counts, invalid rows
// needing review, aggregate analytics, and the export location.
func printSummary(s *pipeline.Summary, dbPath string) {
	fmt.Printf("Rows processed: %d\n", s.RowsTotal)
	fmt.Printf("Store updated at %s (mode=%s, run=%s)\n", dbPath, s.Mode, s.RunID)

	fmt.Printf("\nInvalid rows needing review: %d\n", len(s.InvalidItems))
	for _, it := range s.InvalidItems {
		fmt.Printf("- Order ID: %s, Item: %s, Quantity: %s, Unit Price: %s, Error: %s\n",
			it.OrderID, it.Item,
			formatNullInt(it.Quantity), formatNullFloat(it.UnitPrice),
			formatNullString(it.ErrorMessage))
	}

	fmt.Printf("\nTotal value per order:\n")
	for _, t := range s.Totals {
		fmt.Printf("- Order ID: %s, Customer ID: %s, Total Value: $%.2f\n",
			t.OrderID, formatNullString(t.CustomerID), t.Total)
	}

	if s.TopCustomer != nil {
		fmt.Printf("\nTop customer: %s with total spend $%.2f\n",
			formatNullString(s.TopCustomer.CustomerID), s.TopCustomer.Total)
	}

	fmt.Printf("\nUnique items per order:\n")
	for _, c := range s.ItemCounts {
		fmt.Printf("- Order ID: %s, Unique Items: %d\n", c.OrderID, c.DistinctItems)
	}

	if s.ExportPath != "" {
		fmt.Printf("\nJSON export saved to %s\n", s.ExportPath)
	}
	fmt.Printf("Done in %v\n", s.Elapsed.Round(time.Millisecond))
}

func formatNullString(s *string) string {
	if s == nil {
		return "NULL"
	}
	return *s
}

func formatNullInt(n *int64) string {
	if n == nil {
		return "NULL"
	}
	return fmt.Sprintf("%d", *n)
}

func formatNullFloat(f *float64) string {
	if f == nil {
		return "NULL"
	}
	return fmt.Sprintf("%g", *f)
}

func init() {
	runCmd.Flags().StringVar(&runCSVPath, "csv", "", "path to the CSV export (required)")
	runCmd.Flags().StringVar(&runDBPath, "db", "", "path to the SQLite store")
	runCmd.Flags().StringVar(&runOutPath, "out", "", "path for the JSON export")
	runCmd.Flags().StringVar(&runLogFile, "log-file", "", "mirror logs to a rotated file")
	runCmd.Flags().BoolVar(&runOverwrite, "overwrite", false,
		"clear the store and reload instead of incremental sync")
	_ = runCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(runCmd)
}
