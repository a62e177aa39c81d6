// Package export projects persisted order state into a JSON snapshot.
//
// The snapshot is a pure read over the store: one element per order that
// has at least one item, invalid items included so they can be reviewed.
// total_price is computed only from items with a real item name and both
// quantity and unit_price present, rounded to two decimal places.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/pepperhq/ordersync/internal/schema"
	"github.com/pepperhq/ordersync/internal/store"
)

// Item is one line item in the export, nulls preserved.
type Item struct {
	Item         string   `json:"item"`
	Quantity     *int64   `json:"quantity"`
	UnitPrice    *float64 `json:"unit_price"`
	IsValid      bool     `json:"is_valid"`
	ErrorMessage *string  `json:"error_message"`
}

// Order is one exported order with its items and computed total.
type Order struct {
	OrderID    string  `json:"order_id"`
	CustomerID *string `json:"customer_id"`
	Date       *string `json:"date"`
	TotalPrice float64 `json:"total_price"`
	Items      []Item  `json:"items"`
}

// Snapshot builds the export projection of all active orders.
func Snapshot(ctx context.Context, db *store.DB) ([]Order, error) {
	details, err := db.ActiveOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active orders: %w", err)
	}

	orders := make([]Order, 0, len(details))
	for _, detail := range details {
		var date *string
		if detail.OrderDate != nil {
			d := detail.OrderDate.Format(store.DateLayout)
			date = &d
		}

		order := Order{
			OrderID:    detail.OrderID,
			CustomerID: detail.CustomerID,
			Date:       date,
			Items:      make([]Item, 0, len(detail.Items)),
		}

		var total float64
		for _, it := range detail.Items {
			if it.Item != schema.BlankItem && it.Quantity != nil && it.UnitPrice != nil {
				total += float64(*it.Quantity) * *it.UnitPrice
			}
			order.Items = append(order.Items, Item{
				Item:         it.Item,
				Quantity:     it.Quantity,
				UnitPrice:    it.UnitPrice,
				IsValid:      it.IsValid,
				ErrorMessage: it.ErrorMessage,
			})
		}
		order.TotalPrice = math.Round(total*100) / 100

		orders = append(orders, order)
	}
	return orders, nil
}

// JSON renders the snapshot as a pretty-printed JSON array.
func JSON(ctx context.Context, db *store.DB) ([]byte, error) {
	orders, err := Snapshot(ctx, db)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(orders, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	return data, nil
}

// WriteFile renders the snapshot and writes it to path.
func WriteFile(ctx context.Context, db *store.DB, path string) error {
	data, err := JSON(ctx, db)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export file %s: %w", path, err)
	}
	return nil
}
