// Package pipeline orchestrates one ingestion run: read and validate the
// CSV, reconcile the batch into the store, record the run, aggregate, and
// write the JSON export.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/pepperhq/ordersync/internal/export"
	"github.com/pepperhq/ordersync/internal/ingest"
	"github.com/pepperhq/ordersync/internal/schema"
	"github.com/pepperhq/ordersync/internal/store"
	syncer "github.com/pepperhq/ordersync/internal/sync"
)

// Options configures one pipeline run. CSVPath and DBPath are required;
// an empty ExportPath skips the JSON export.
type Options struct {
	CSVPath    string
	DBPath     string
	ExportPath string
	Mode       syncer.Mode
	Logger     *log.Logger
}

// Summary reports what one run did.
type Summary struct {
	RunID        string
	Mode         syncer.Mode
	RowsTotal    int
	RowsInvalid  int
	InvalidItems []store.Item
	Totals       []store.OrderTotal
	TopCustomer  *store.CustomerSpend
	ItemCounts   []store.OrderItemCount
	ExportPath   string
	Elapsed      time.Duration
}

// Run executes the full pipeline against the store at opts.DBPath.
//
// A missing CSV file is fatal before any store mutation. A sync failure
// leaves the store in its pre-run state and skips aggregation and export.
// The store handle is released on every exit path.
func Run(ctx context.Context, opts Options) (*Summary, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[pipeline] ", log.LstdFlags)
	}
	mode := opts.Mode
	if mode == "" {
		mode = syncer.ModeSync
	}

	started := time.Now()

	// Fail before touching the store if the input doesn't exist.
	if _, err := os.Stat(opts.CSVPath); err != nil {
		return nil, fmt.Errorf("input CSV %s: %w", opts.CSVPath, err)
	}

	batch, err := readBatch(opts.CSVPath)
	if err != nil {
		return nil, err
	}

	invalid := 0
	for _, rec := range batch {
		if !rec.IsValid {
			invalid++
		}
	}
	logger.Printf("Validated %d rows (%d invalid) from %s", len(batch), invalid, opts.CSVPath)

	db, err := store.Open(opts.DBPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if err := db.InitSchemaContext(ctx); err != nil {
		return nil, err
	}

	s := syncer.New(db, logger)
	switch mode {
	case syncer.ModeReplace:
		err = s.Replace(ctx, batch)
	case syncer.ModeSync:
		err = s.Sync(ctx, batch)
	default:
		return nil, fmt.Errorf("unknown sync mode %q", mode)
	}
	if err != nil {
		return nil, err
	}

	run := store.Run{
		RunID:       uuid.NewString(),
		Mode:        string(mode),
		StartedAt:   started,
		FinishedAt:  time.Now(),
		RowsTotal:   len(batch),
		RowsInvalid: invalid,
	}
	if err := db.RecordRun(ctx, run); err != nil {
		return nil, err
	}

	summary := &Summary{
		RunID:       run.RunID,
		Mode:        mode,
		RowsTotal:   len(batch),
		RowsInvalid: invalid,
	}

	if summary.InvalidItems, err = db.InvalidItems(ctx); err != nil {
		return nil, err
	}
	if summary.Totals, err = db.TotalsByOrder(ctx); err != nil {
		return nil, err
	}
	if summary.TopCustomer, err = db.TopCustomer(ctx); err != nil {
		return nil, err
	}
	if summary.ItemCounts, err = db.DistinctItemCountsByOrder(ctx); err != nil {
		return nil, err
	}

	if opts.ExportPath != "" {
		if err := export.WriteFile(ctx, db, opts.ExportPath); err != nil {
			return nil, err
		}
		summary.ExportPath = opts.ExportPath
		logger.Printf("Export written to %s", opts.ExportPath)
	}

	summary.Elapsed = time.Since(started)
	return summary, nil
}

// readBatch reads, validates, and deduplicates every row of the CSV in
// file order. The whole batch is materialized before sync begins.
func readBatch(path string) ([]*schema.Record, error) {
	reader, err := ingest.Open(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	dedup := schema.NewDeduper()
	var batch []*schema.Record
	for {
		row, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		rec := schema.ValidateRow(row)
		dedup.Apply(rec)
		batch = append(batch, rec)
	}
	return batch, nil
}
