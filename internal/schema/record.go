// Package schema provides the normalized order record produced by CSV
// validation and consumed by the sync engine.
package schema

import (
	"strings"
	"time"
)

// BlankItem is the sentinel stored in place of a missing item name so the
// (order_id, item) composite key stays non-null. Rows carrying it are kept
// in the store and in exports but excluded from monetary aggregation.
const BlankItem = "__BLANK_ITEM__"

// Fields lists the canonical column names expected in the CSV, after header
// normalization (trimmed, lowercased, spaces replaced with underscores).
var Fields = []string{"customer_id", "order_id", "item", "quantity", "unit_price", "date"}

// Record is one normalized order row with its validation verdict.
//
// A nil field means the source value was missing or unparseable. IsValid is
// true only when every required field is present; ErrorMessage is nil exactly
// when IsValid is true. Records are created once per input row and not
// modified afterwards, except by Deduper which may flip a later duplicate
// to invalid before the record enters the sync batch.
type Record struct {
	CustomerID   *string
	OrderID      *string
	Item         *string
	Quantity     *int64
	UnitPrice    *float64
	Date         *time.Time
	IsValid      bool
	ErrorMessage *string
}

// NormalizedItem returns the item name with the blank sentinel substituted
// for a missing value. This is the value persisted as the item key component.
func (r *Record) NormalizedItem() string {
	if r.Item == nil || strings.TrimSpace(*r.Item) == "" {
		return BlankItem
	}
	return *r.Item
}
