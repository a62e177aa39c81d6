package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pepperhq/ordersync/internal/store"
)

var statusDBPath string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show order store status",
	Long: `Display the current state of the order store.

Shows:
  - Store file location and size
  - Number of orders and order items
  - Number of invalid items kept for review
  - The most recent sync run`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		dbPath := cfg.DBPath
		if cmd.Flags().Changed("db") {
			dbPath = statusDBPath
		}

		info, err := os.Stat(dbPath)
		if os.IsNotExist(err) {
			fmt.Printf("Store not initialized at %s\n", dbPath)
			fmt.Printf("Run 'ordersync run --csv <file>' to create it\n")
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error checking store: %v\n", err)
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

		ctx := cmd.Context()
		orderCount, err := db.OrderCount(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error counting orders: %v\n", err)
			os.Exit(1)
		}
		itemCount, err := db.ItemCount(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error counting items: %v\n", err)
			os.Exit(1)
		}
		invalidCount, err := db.CountInvalidItems(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error counting invalid items: %v\n", err)
			os.Exit(1)
		}
		lastRun, err := db.LastRun(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading last run: %v\n", err)
			os.Exit(1)
		}

		sizeStr := fmt.Sprintf("%d bytes", info.Size())
		if info.Size() > 1024*1024 {
			sizeStr = fmt.Sprintf("%.1f MB", float64(info.Size())/(1024*1024))
		} else if info.Size() > 1024 {
			sizeStr = fmt.Sprintf("%.1f KB", float64(info.Size())/1024)
		}

		fmt.Printf("\nOrder Store Status\n\n")
		fmt.Printf("Location: %s\n", dbPath)
		fmt.Printf("Size: %s\n", sizeStr)
		fmt.Printf("Orders: %d\n", orderCount)
		fmt.Printf("Items: %d\n", itemCount)
		fmt.Printf("Invalid items: %d\n", invalidCount)
		if lastRun != nil {
			fmt.Printf("Last run: %s (%s) at %s, %d rows (%d invalid)\n",
				lastRun.RunID, lastRun.Mode,
				lastRun.FinishedAt.Local().Format(time.DateTime),
				lastRun.RowsTotal, lastRun.RowsInvalid)
		} else {
			fmt.Printf("Last run: none recorded\n")
		}
		fmt.Println()
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusDBPath, "db", "", "path to the SQLite store")
	rootCmd.AddCommand(statusCmd)
}
