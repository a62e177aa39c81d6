package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pepperhq/ordersync/internal/export"
	"github.com/pepperhq/ordersync/internal/store"
)

var (
	exportDBPath  string
	exportOutPath string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the JSON snapshot of the current store",
	Long: `Re-export the persisted order state as JSON without syncing.

The snapshot contains every order that has at least one item, invalid items
included. With --out the snapshot is written to a file; otherwise it is
printed to stdout.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		dbPath := cfg.DBPath
		if cmd.Flags().Changed("db") {
			dbPath = exportDBPath
		}

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error: store not found at %s\n", dbPath)
			os.Exit(1)
		}

		db, err := store.Open(dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.InitSchema(); err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
			os.Exit(1)
		}

		if exportOutPath != "" {
			if err := export.WriteFile(cmd.Context(), db, exportOutPath); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing export: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("JSON export saved to %s\n", exportOutPath)
			return
		}

		data, err := export.JSON(cmd.Context(), db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error building export: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportDBPath, "db", "", "path to the SQLite store")
	exportCmd.Flags().StringVar(&exportOutPath, "out", "", "write the export to a file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}
