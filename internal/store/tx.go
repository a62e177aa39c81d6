package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Tx wraps a write transaction over the order store.
//
// All sync mutations run inside one Tx so a failed sync leaves the store in
// its prior consistent state. The caller must Commit or Rollback; Rollback
// after Commit is a no-op, so `defer tx.Rollback()` is the usual pattern.
type Tx struct {
	tx *sql.Tx
}

// Begin starts a write transaction.
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. Safe to call after Commit.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// UpsertOrder inserts or updates an order.
// On conflict the customer_id and order_date are overwritten.
func (t *Tx) UpsertOrder(ctx context.Context, o Order) error {
	query := `
	INSERT INTO orders (order_id, customer_id, order_date)
	VALUES (?, ?, ?)
	ON CONFLICT(order_id) DO UPDATE SET
		customer_id = excluded.customer_id,
		order_date = excluded.order_date
	`

	_, err := t.tx.ExecContext(ctx, query,
		o.OrderID,
		stringToNull(o.CustomerID),
		dateToNullString(o.OrderDate),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert order %s: %w", o.OrderID, err)
	}
	return nil
}

// UpsertItem inserts or updates an order item.
// The (order_id, item) key never changes on update; all other columns are
// overwritten. The parent order must already exist.
func (t *Tx) UpsertItem(ctx context.Context, it Item) error {
	query := `
	INSERT INTO order_items (order_id, item, quantity, unit_price, is_valid, error_message)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(order_id, item) DO UPDATE SET
		quantity = excluded.quantity,
		unit_price = excluded.unit_price,
		is_valid = excluded.is_valid,
		error_message = excluded.error_message
	`

	_, err := t.tx.ExecContext(ctx, query,
		it.OrderID,
		it.Item,
		intToNull(it.Quantity),
		floatToNull(it.UnitPrice),
		it.IsValid,
		stringToNull(it.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert item %s/%s: %w", it.OrderID, it.Item, err)
	}
	return nil
}

// DeleteItemsNotIn removes every persisted item whose (order_id, item) key
// is absent from keys, and returns the number of deleted rows.
//
// The keys are materialized into a temp table scoped to the connection so
// the set difference runs as a single DELETE regardless of batch size.
func (t *Tx) DeleteItemsNotIn(ctx context.Context, keys []ItemKey) (int64, error) {
	stmts := []string{
		`CREATE TEMP TABLE IF NOT EXISTS staging_item_keys (
			order_id TEXT NOT NULL,
			item TEXT NOT NULL,
			PRIMARY KEY (order_id, item)
		)`,
		`DELETE FROM staging_item_keys`,
	}
	for _, stmt := range stmts {
		if _, err := t.tx.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("failed to prepare staging table: %w", err)
		}
	}

	insert := `
	INSERT INTO staging_item_keys (order_id, item)
	VALUES (?, ?)
	ON CONFLICT(order_id, item) DO NOTHING
	`
	for _, key := range keys {
		if _, err := t.tx.ExecContext(ctx, insert, key.OrderID, key.Item); err != nil {
			return 0, fmt.Errorf("failed to stage key %s/%s: %w", key.OrderID, key.Item, err)
		}
	}

	res, err := t.tx.ExecContext(ctx, `
	DELETE FROM order_items
	WHERE (order_id, item) NOT IN (
		SELECT order_id, item FROM staging_item_keys
	)`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale items: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted items: %w", err)
	}

	// Release staging rows; the temp table itself lives until the
	// connection closes and is reused by later syncs.
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM staging_item_keys`); err != nil {
		return 0, fmt.Errorf("failed to clear staging table: %w", err)
	}

	return deleted, nil
}

// DeleteOrphanOrders removes orders with zero remaining items and returns
// the number of deleted rows. Must run after item deletions in the same
// transaction.
func (t *Tx) DeleteOrphanOrders(ctx context.Context) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
	DELETE FROM orders
	WHERE order_id NOT IN (
		SELECT DISTINCT order_id FROM order_items
	)`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphan orders: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted orders: %w", err)
	}
	return deleted, nil
}

// DeleteAll clears all items and orders for a clean-slate load.
// Items go first so the foreign key reference is never dangling.
func (t *Tx) DeleteAll(ctx context.Context) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM order_items`); err != nil {
		return fmt.Errorf("failed to clear order_items: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM orders`); err != nil {
		return fmt.Errorf("failed to clear orders: %w", err)
	}
	return nil
}
