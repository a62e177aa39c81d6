package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pepperhq/ordersync/internal/schema"
)

// OrderTotal is one row of the per-order totals aggregation.
type OrderTotal struct {
	OrderID    string
	CustomerID *string
	Total      float64
}

// CustomerSpend is the top-spender aggregation result.
type CustomerSpend struct {
	CustomerID *string
	Total      float64
}

// OrderItemCount is one row of the distinct-item-count aggregation.
type OrderItemCount struct {
	OrderID       string
	DistinctItems int
}

// OrderDetail is an order joined with all of its items, for export.
type OrderDetail struct {
	Order
	Items []Item
}

// TotalsByOrder computes the total value per order.
// Only items with a real item name (not the blank sentinel) and both
// quantity and unit_price present contribute; orders with no qualifying
// items are omitted.
func (db *DB) TotalsByOrder(ctx context.Context) ([]OrderTotal, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT o.order_id, o.customer_id, SUM(i.quantity * i.unit_price) AS total_value
	FROM orders o
	JOIN order_items i ON o.order_id = i.order_id
	WHERE i.item <> ? AND i.quantity IS NOT NULL AND i.unit_price IS NOT NULL
	GROUP BY o.order_id
	ORDER BY o.order_id ASC
	`, schema.BlankItem)
	if err != nil {
		return nil, fmt.Errorf("failed to query order totals: %w", err)
	}
	defer rows.Close()

	var totals []OrderTotal
	for rows.Next() {
		var t OrderTotal
		var customerID sql.NullString
		if err := rows.Scan(&t.OrderID, &customerID, &t.Total); err != nil {
			return nil, fmt.Errorf("failed to scan order total: %w", err)
		}
		t.CustomerID = nullToString(customerID)
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order totals: %w", err)
	}
	return totals, nil
}

// TopCustomer returns the customer with the highest total spend over items
// with quantity and unit_price present (blank-sentinel items included).
// Ties break deterministically on the lowest customer_id. Returns nil when
// no item qualifies.
func (db *DB) TopCustomer(ctx context.Context) (*CustomerSpend, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT o.customer_id, SUM(i.quantity * i.unit_price) AS total_spend
	FROM orders o
	JOIN order_items i ON o.order_id = i.order_id
	WHERE i.quantity IS NOT NULL AND i.unit_price IS NOT NULL
	GROUP BY o.customer_id
	ORDER BY total_spend DESC, o.customer_id ASC
	LIMIT 1
	`)

	var spend CustomerSpend
	var customerID sql.NullString
	err := row.Scan(&customerID, &spend.Total)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query top customer: %w", err)
	}
	spend.CustomerID = nullToString(customerID)
	return &spend, nil
}

// DistinctItemCountsByOrder counts distinct item values per order among
// items with a quantity present. The blank sentinel counts as one item.
func (db *DB) DistinctItemCountsByOrder(ctx context.Context) ([]OrderItemCount, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT o.order_id, COUNT(DISTINCT i.item) AS unique_items
	FROM orders o
	JOIN order_items i ON o.order_id = i.order_id
	WHERE i.quantity IS NOT NULL
	GROUP BY o.order_id
	ORDER BY o.order_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query item counts: %w", err)
	}
	defer rows.Close()

	var counts []OrderItemCount
	for rows.Next() {
		var c OrderItemCount
		if err := rows.Scan(&c.OrderID, &c.DistinctItems); err != nil {
			return nil, fmt.Errorf("failed to scan item count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item counts: %w", err)
	}
	return counts, nil
}

// InvalidItems returns all persisted items flagged invalid, for review.
func (db *DB) InvalidItems(ctx context.Context) ([]Item, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT order_id, item, quantity, unit_price, is_valid, error_message
	FROM order_items
	WHERE is_valid = 0
	ORDER BY order_id ASC, item ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query invalid items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// CountInvalidItems returns the number of persisted invalid items.
func (db *DB) CountInvalidItems(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM order_items WHERE is_valid = 0`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count invalid items: %w", err)
	}
	return count, nil
}

// OrderCount returns the total number of persisted orders.
func (db *DB) OrderCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return count, nil
}

// ItemCount returns the total number of persisted order items.
func (db *DB) ItemCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM order_items`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return count, nil
}

// ItemKeys returns the (order_id, item) keys of all persisted items.
func (db *DB) ItemKeys(ctx context.Context) ([]ItemKey, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT order_id, item FROM order_items ORDER BY order_id ASC, item ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query item keys: %w", err)
	}
	defer rows.Close()

	var keys []ItemKey
	for rows.Next() {
		var k ItemKey
		if err := rows.Scan(&k.OrderID, &k.Item); err != nil {
			return nil, fmt.Errorf("failed to scan item key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item keys: %w", err)
	}
	return keys, nil
}

// ActiveOrders returns every order that has at least one item, joined with
// all of its items (valid and invalid). Orders without items never exist
// after a sync, but the join guards against them regardless.
func (db *DB) ActiveOrders(ctx context.Context) ([]OrderDetail, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT o.order_id, o.customer_id, o.order_date,
	       i.item, i.quantity, i.unit_price, i.is_valid, i.error_message
	FROM orders o
	JOIN order_items i ON o.order_id = i.order_id
	ORDER BY o.order_id ASC, i.item ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active orders: %w", err)
	}
	defer rows.Close()

	var details []OrderDetail
	var current *OrderDetail
	for rows.Next() {
		var (
			orderID      string
			customerID   sql.NullString
			orderDate    sql.NullString
			it           Item
			quantity     sql.NullInt64
			unitPrice    sql.NullFloat64
			errorMessage sql.NullString
		)
		err := rows.Scan(&orderID, &customerID, &orderDate,
			&it.Item, &quantity, &unitPrice, &it.IsValid, &errorMessage)
		if err != nil {
			return nil, fmt.Errorf("failed to scan active order row: %w", err)
		}

		it.OrderID = orderID
		it.Quantity = nullToInt(quantity)
		it.UnitPrice = nullToFloat(unitPrice)
		it.ErrorMessage = nullToString(errorMessage)

		if current == nil || current.OrderID != orderID {
			details = append(details, OrderDetail{Order: Order{
				OrderID:    orderID,
				CustomerID: nullToString(customerID),
				OrderDate:  nullStringToDate(orderDate),
			}})
			current = &details[len(details)-1]
		}
		current.Items = append(current.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating active orders: %w", err)
	}
	return details, nil
}

// Run is one recorded pipeline run.
type Run struct {
	RunID       string
	Mode        string
	StartedAt   time.Time
	FinishedAt  time.Time
	RowsTotal   int
	RowsInvalid int
}

// RecordRun inserts a sync run audit row.
func (db *DB) RecordRun(ctx context.Context, run Run) error {
	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO sync_runs (run_id, mode, started_at, finished_at, rows_total, rows_invalid)
	VALUES (?, ?, ?, ?, ?, ?)
	`,
		run.RunID,
		run.Mode,
		run.StartedAt.UTC().Format(time.RFC3339),
		run.FinishedAt.UTC().Format(time.RFC3339),
		run.RowsTotal,
		run.RowsInvalid,
	)
	if err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}
	return nil
}

// LastRun returns the most recent sync run, or nil if none is recorded.
func (db *DB) LastRun(ctx context.Context) (*Run, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT run_id, mode, started_at, finished_at, rows_total, rows_invalid
	FROM sync_runs
	ORDER BY started_at DESC
	LIMIT 1
	`)

	var run Run
	var startedAt, finishedAt string
	err := row.Scan(&run.RunID, &run.Mode, &startedAt, &finishedAt,
		&run.RowsTotal, &run.RowsInvalid)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last run: %w", err)
	}

	if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
		run.StartedAt = t
	}
	if t, err := time.Parse(time.RFC3339, finishedAt); err == nil {
		run.FinishedAt = t
	}
	return &run, nil
}

// scanItems is a helper to scan multiple items from query results.
func scanItems(rows *sql.Rows) ([]Item, error) {
	var items []Item
	for rows.Next() {
		var it Item
		var quantity sql.NullInt64
		var unitPrice sql.NullFloat64
		var errorMessage sql.NullString

		err := rows.Scan(&it.OrderID, &it.Item, &quantity, &unitPrice,
			&it.IsValid, &errorMessage)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}

		it.Quantity = nullToInt(quantity)
		it.UnitPrice = nullToFloat(unitPrice)
		it.ErrorMessage = nullToString(errorMessage)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return items, nil
}
