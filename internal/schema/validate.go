package schema

import (
	"strconv"
	"strings"
	"time"
)

// dateLayouts are tried in order; the first successful parse wins.
// The layouts are deliberately unpadded so both "2025-06-01" and "2025-6-1"
// are accepted, mirroring common ERP export quirks.
var dateLayouts = []string{
	"2006-1-2",       // ISO
	"2/1/2006",       // day/month/year
	"2006/1/2",       // year/month/day
	"January 2 2006", // full month name
}

// ValidateRow turns one raw CSV row into a normalized Record.
//
// Field errors accumulate rather than short-circuiting, so a row missing
// several fields reports all of them. The row is keyed by canonical field
// names; absent keys behave like empty values.
func ValidateRow(row map[string]string) *Record {
	var errs []string

	customerID := parseStringField(row["customer_id"])
	if customerID == nil {
		errs = append(errs, "Invalid or missing customer_id")
	}

	orderID := parseStringField(row["order_id"])
	if orderID == nil {
		errs = append(errs, "Invalid or missing order_id")
	}

	item := parseStringField(row["item"])
	if item == nil {
		errs = append(errs, "Invalid or missing item")
	}

	quantity := parseIntField(row["quantity"])
	if quantity == nil {
		errs = append(errs, "Invalid or missing quantity")
	}

	unitPrice := parseFloatField(row["unit_price"])
	if unitPrice == nil {
		errs = append(errs, "Invalid or missing unit_price")
	}

	date := parseDateField(row["date"])
	if date == nil {
		errs = append(errs, "Invalid or missing date")
	}

	rec := &Record{
		CustomerID: customerID,
		OrderID:    orderID,
		Item:       item,
		Quantity:   quantity,
		UnitPrice:  unitPrice,
		Date:       date,
		IsValid:    len(errs) == 0,
	}
	if len(errs) > 0 {
		msg := strings.Join(errs, "; ")
		rec.ErrorMessage = &msg
	}
	return rec
}

func parseStringField(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func parseIntField(value string) *int64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func parseFloatField(value string) *float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseDateField(value string) *time.Time {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return &t
		}
	}
	return nil
}
