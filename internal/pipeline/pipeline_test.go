package pipeline

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepperhq/ordersync/internal/store"
	syncer "github.com/pepperhq/ordersync/internal/sync"
)

const sampleCSV = `Customer ID,Order ID,Item,Quantity,Unit Price,Date
C1,1,Widget,2,9.99,2025-06-01
C2,2,Nut,4,2.00,01/06/2025
C2,2,Screw,1,,2025-06-01
C3,5,Bolt,1,1.50,2025-06-02
C3,5,Bolt,9,9.99,2025-06-02
`

// writeFile writes content into dir under name and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func quietLogger() *log.Logger {
	return log.New(discard{}, "", 0)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeFile(t, dir, "orders.csv", sampleCSV)
	dbPath := filepath.Join(dir, "orders.db")
	outPath := filepath.Join(dir, "export.json")

	summary, err := Run(context.Background(), Options{
		CSVPath:    csvPath,
		DBPath:     dbPath,
		ExportPath: outPath,
		Logger:     quietLogger(),
	})
	require.NoError(t, err)

	assert.Equal(t, 5, summary.RowsTotal)
	// Screw is missing its price; the second Bolt is a duplicate.
	assert.Equal(t, 2, summary.RowsInvalid)
	// Only Screw persists invalid: the duplicate Bolt loses staging to
	// the canonical first row.
	assert.Len(t, summary.InvalidItems, 1)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, syncer.ModeSync, summary.Mode)

	// Worked example: order 1 totals 2 x 9.99 = 19.98.
	require.NotEmpty(t, summary.Totals)
	assert.Equal(t, "1", summary.Totals[0].OrderID)
	assert.InDelta(t, 19.98, summary.Totals[0].Total, 1e-9)

	// Duplicate Bolt: only the first (1 x 1.50) counts toward order 5.
	var order5 *store.OrderTotal
	for i := range summary.Totals {
		if summary.Totals[i].OrderID == "5" {
			order5 = &summary.Totals[i]
		}
	}
	require.NotNil(t, order5)
	assert.InDelta(t, 1.50, order5.Total, 1e-9)

	// The export file exists and parses.
	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var exported []map[string]any
	require.NoError(t, json.Unmarshal(data, &exported))
	assert.Len(t, exported, 3)

	// The run was recorded.
	db, err := store.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()
	last, err := db.LastRun(context.Background())
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, summary.RunID, last.RunID)
	assert.Equal(t, 5, last.RowsTotal)
	assert.Equal(t, 2, last.RowsInvalid)
}

func TestRunDuplicateKeepsCanonicalRow(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeFile(t, dir, "orders.csv",
		"customer_id,order_id,item,quantity,unit_price,date\n"+
			"C3,5,Bolt,1,1.50,2025-06-02\n"+
			"C3,5,Bolt,9,9.99,2025-06-02\n")

	summary, err := Run(context.Background(), Options{
		CSVPath: csvPath,
		DBPath:  filepath.Join(dir, "orders.db"),
		Logger:  quietLogger(),
	})
	require.NoError(t, err)

	// The detector flags the repeat, but staging keeps the canonical first
	// row: one persisted item, valid, and only its price in the total.
	assert.Equal(t, 1, summary.RowsInvalid)
	assert.Empty(t, summary.InvalidItems)
	require.Len(t, summary.Totals, 1)
	assert.InDelta(t, 1.50, summary.Totals[0].Total, 1e-9)
}

func TestRunMissingCSVIsFatal(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "orders.db")

	_, err := Run(context.Background(), Options{
		CSVPath: filepath.Join(dir, "missing.csv"),
		DBPath:  dbPath,
		Logger:  quietLogger(),
	})
	require.Error(t, err)

	// No partial processing: the store file was never created.
	_, statErr := os.Stat(dbPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunReplaceMode(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "orders.db")

	first := writeFile(t, dir, "first.csv",
		"customer_id,order_id,item,quantity,unit_price,date\n"+
			"C1,1,Widget,2,9.99,2025-06-01\n")
	_, err := Run(context.Background(), Options{
		CSVPath: first,
		DBPath:  dbPath,
		Logger:  quietLogger(),
	})
	require.NoError(t, err)

	second := writeFile(t, dir, "second.csv",
		"customer_id,order_id,item,quantity,unit_price,date\n"+
			"C2,2,Nut,4,2.00,2025-06-01\n")
	summary, err := Run(context.Background(), Options{
		CSVPath: second,
		DBPath:  dbPath,
		Mode:    syncer.ModeReplace,
		Logger:  quietLogger(),
	})
	require.NoError(t, err)
	assert.Equal(t, syncer.ModeReplace, summary.Mode)

	require.Len(t, summary.Totals, 1)
	assert.Equal(t, "2", summary.Totals[0].OrderID)
}

func TestRunSkipsExportWhenUnset(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeFile(t, dir, "orders.csv",
		"customer_id,order_id,item,quantity,unit_price,date\n"+
			"C1,1,Widget,2,9.99,2025-06-01\n")

	summary, err := Run(context.Background(), Options{
		CSVPath: csvPath,
		DBPath:  filepath.Join(dir, "orders.db"),
		Logger:  quietLogger(),
	})
	require.NoError(t, err)
	assert.Empty(t, summary.ExportPath)
}
