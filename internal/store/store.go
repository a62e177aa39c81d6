// Package store provides the embedded SQLite persistence layer for order data.
//
// The database runs in embedded mode via ncruces/go-sqlite3 with WAL enabled.
// It is the single source of truth between pipeline runs: orders and
// order_items hold the reconciled state, sync_runs hold the per-run audit
// trail. The store is opened exclusively for the duration of one run; a
// second concurrent run against the same file is not supported.
//
// Schema:
//   - orders:      order_id (PK), customer_id, order_date
//   - order_items: (order_id, item) unique, quantity, unit_price,
//     is_valid, error_message; references orders(order_id)
//   - sync_runs:   run_id (PK), mode, timestamps, row counts
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DateLayout is used for order_date values in the database and in exports.
const DateLayout = "2006-01-02"

// DB wraps the SQLite connection for the order store.
type DB struct {
	conn *sql.DB
	path string
}

// Order is a parent record. It exists only while at least one item
// references it.
type Order struct {
	OrderID    string
	CustomerID *string
	OrderDate  *time.Time
}

// Item is a line-item record keyed by (OrderID, Item).
type Item struct {
	OrderID      string
	Item         string
	Quantity     *int64
	UnitPrice    *float64
	IsValid      bool
	ErrorMessage *string
}

// ItemKey is the composite natural key of an order item.
type ItemKey struct {
	OrderID string
	Item    string
}

// Open creates a database connection at the specified path.
//
// The parent directory is created if needed. WAL mode, a busy timeout and
// foreign keys are enabled. The caller must call Close when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		conn: conn,
		path: path,
	}

	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// Idempotent, safe to call on every run.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS orders (
		order_id TEXT NOT NULL PRIMARY KEY,
		customer_id TEXT,
		order_date TEXT
	);

	CREATE TABLE IF NOT EXISTS order_items (
		order_id TEXT NOT NULL,
		item TEXT NOT NULL,
		quantity INTEGER,
		unit_price REAL,
		is_valid INTEGER NOT NULL DEFAULT 1,
		error_message TEXT,
		PRIMARY KEY (order_id, item),
		FOREIGN KEY (order_id) REFERENCES orders(order_id)
	);

	CREATE TABLE IF NOT EXISTS sync_runs (
		run_id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		rows_total INTEGER NOT NULL,
		rows_invalid INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_order ON order_items(order_id);
	CREATE INDEX IF NOT EXISTS idx_items_valid ON order_items(is_valid);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON sync_runs(started_at);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// dateToNullString converts a time pointer to a nullable date string for SQL.
func dateToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: t.Format(DateLayout), Valid: true}
}

// nullStringToDate converts a nullable SQL date string to a time pointer.
func nullStringToDate(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(DateLayout, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

// stringToNull converts a string pointer to a nullable SQL string.
func stringToNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullToString converts a nullable SQL string to a string pointer.
func nullToString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// intToNull converts an int64 pointer to a nullable SQL int.
func intToNull(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

// nullToInt converts a nullable SQL int to an int64 pointer.
func nullToInt(nn sql.NullInt64) *int64 {
	if !nn.Valid {
		return nil
	}
	n := nn.Int64
	return &n
}

// floatToNull converts a float64 pointer to a nullable SQL float.
func floatToNull(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{Valid: false}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// nullToFloat converts a nullable SQL float to a float64 pointer.
func nullToFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}
