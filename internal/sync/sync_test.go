package sync

import (
	"context"
	"log"
	"math"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/pepperhq/ordersync/internal/schema"
	"github.com/pepperhq/ordersync/internal/store"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *store.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	return db
}

func testLogger() *log.Logger {
	return log.New(testWriter{}, "[test] ", 0)
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

// record builds a valid Record for orderID/item.
func record(orderID, customerID, item string, quantity int64, unitPrice float64) *schema.Record {
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return &schema.Record{
		CustomerID: &customerID,
		OrderID:    &orderID,
		Item:       &item,
		Quantity:   &quantity,
		UnitPrice:  &unitPrice,
		Date:       &date,
		IsValid:    true,
	}
}

// invalidRecord builds a Record flagged invalid with msg; item may be empty.
func invalidRecord(orderID, item, msg string) *schema.Record {
	rec := &schema.Record{
		OrderID:      &orderID,
		IsValid:      false,
		ErrorMessage: &msg,
	}
	if item != "" {
		rec.Item = &item
	}
	return rec
}

// itemKeySet fetches the persisted key set as a sorted slice.
func itemKeySet(t *testing.T, db *store.DB) []store.ItemKey {
	t.Helper()
	keys, err := db.ItemKeys(context.Background())
	if err != nil {
		t.Fatalf("ItemKeys failed: %v", err)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].OrderID != keys[j].OrderID {
			return keys[i].OrderID < keys[j].OrderID
		}
		return keys[i].Item < keys[j].Item
	})
	return keys
}

func TestSyncSetEquality(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	s := New(db, testLogger())

	first := []*schema.Record{
		record("1", "C1", "Widget", 2, 9.99),
		record("1", "C1", "Bolt", 1, 0.50),
		record("2", "C2", "Nut", 4, 2.00),
	}
	if err := s.Sync(ctx, first); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	second := []*schema.Record{
		record("1", "C1", "Widget", 3, 9.99), // updated quantity
		record("3", "C3", "Gear", 1, 5.00),   // new order
		// order 2 and item Bolt dropped
	}
	if err := s.Sync(ctx, second); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	want := []store.ItemKey{
		{OrderID: "1", Item: "Widget"},
		{OrderID: "3", Item: "Gear"},
	}
	got := itemKeySet(t, db)
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("key %d = %v, want %v", i, got[i], want[i])
		}
	}

	orders, err := db.OrderCount(ctx)
	if err != nil {
		t.Fatalf("OrderCount failed: %v", err)
	}
	if orders != 2 {
		t.Errorf("expected parent set {1,3}, got %d orders", orders)
	}

	// The update took effect.
	totals, err := db.TotalsByOrder(ctx)
	if err != nil {
		t.Fatalf("TotalsByOrder failed: %v", err)
	}
	if len(totals) != 2 || math.Abs(totals[0].Total-29.97) > 1e-9 {
		t.Errorf("unexpected totals after update: %+v", totals)
	}
}

func TestSyncIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	s := New(db, testLogger())

	batch := []*schema.Record{
		record("1", "C1", "Widget", 2, 9.99),
		record("2", "C2", "Nut", 4, 2.00),
		invalidRecord("2", "Screw", "Invalid or missing unit_price"),
	}

	if err := s.Sync(ctx, batch); err != nil {
		t.Fatalf("first Sync failed: %v", err)
	}
	firstKeys := itemKeySet(t, db)
	firstDetails, err := db.ActiveOrders(ctx)
	if err != nil {
		t.Fatalf("ActiveOrders failed: %v", err)
	}

	if err := s.Sync(ctx, batch); err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}
	secondKeys := itemKeySet(t, db)
	secondDetails, err := db.ActiveOrders(ctx)
	if err != nil {
		t.Fatalf("ActiveOrders failed: %v", err)
	}

	if len(firstKeys) != len(secondKeys) {
		t.Fatalf("key set changed between identical syncs: %v vs %v", firstKeys, secondKeys)
	}
	for i := range firstKeys {
		if firstKeys[i] != secondKeys[i] {
			t.Errorf("key %d changed: %v vs %v", i, firstKeys[i], secondKeys[i])
		}
	}
	if len(firstDetails) != len(secondDetails) {
		t.Errorf("order set changed between identical syncs")
	}
}

func TestSyncOrphanCascade(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	s := New(db, testLogger())

	if err := s.Sync(ctx, []*schema.Record{
		record("1", "C1", "Widget", 2, 9.99),
		record("2", "C2", "Nut", 4, 2.00),
	}); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	// Order 2 loses its only item.
	if err := s.Sync(ctx, []*schema.Record{
		record("1", "C1", "Widget", 2, 9.99),
	}); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	orders, err := db.OrderCount(ctx)
	if err != nil {
		t.Fatalf("OrderCount failed: %v", err)
	}
	if orders != 1 {
		t.Errorf("expected orphaned order 2 removed, got %d orders", orders)
	}
}

func TestSyncLastWriteWinsOnRepeatedKeys(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	s := New(db, testLogger())

	// Same key twice in one batch; staging keeps the later row.
	if err := s.Sync(ctx, []*schema.Record{
		record("1", "C1", "Widget", 2, 9.99),
		record("1", "C1", "Widget", 7, 1.00),
	}); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	items, err := db.ItemCount(ctx)
	if err != nil {
		t.Fatalf("ItemCount failed: %v", err)
	}
	if items != 1 {
		t.Fatalf("expected 1 item, got %d", items)
	}

	totals, err := db.TotalsByOrder(ctx)
	if err != nil {
		t.Fatalf("TotalsByOrder failed: %v", err)
	}
	if len(totals) != 1 || totals[0].Total != 7.00 {
		t.Errorf("expected last write (7 x 1.00) to win, got %+v", totals)
	}
}

func TestSyncDuplicateFlaggedRepeatKeepsCanonicalRow(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	s := New(db, testLogger())

	// The duplicate detector flags the second occurrence invalid; the
	// canonical first row is the one that persists and feeds totals.
	dup := record("5", "C3", "Bolt", 9, 9.99)
	dup.IsValid = false
	msg := "Duplicate order_id and item"
	dup.ErrorMessage = &msg

	if err := s.Sync(ctx, []*schema.Record{
		record("5", "C3", "Bolt", 1, 1.50),
		dup,
	}); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	items, err := db.ItemCount(ctx)
	if err != nil {
		t.Fatalf("ItemCount failed: %v", err)
	}
	if items != 1 {
		t.Fatalf("expected 1 item, got %d", items)
	}

	invalid, err := db.CountInvalidItems(ctx)
	if err != nil {
		t.Fatalf("CountInvalidItems failed: %v", err)
	}
	if invalid != 0 {
		t.Errorf("expected canonical valid row persisted, got %d invalid items", invalid)
	}

	totals, err := db.TotalsByOrder(ctx)
	if err != nil {
		t.Fatalf("TotalsByOrder failed: %v", err)
	}
	if len(totals) != 1 || math.Abs(totals[0].Total-1.50) > 1e-9 {
		t.Errorf("expected total from the first occurrence only, got %+v", totals)
	}
}

func TestSyncBlankItemParticipates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	s := New(db, testLogger())

	if err := s.Sync(ctx, []*schema.Record{
		record("1", "C1", "Widget", 2, 9.99),
		invalidRecord("1", "", "Invalid or missing item"),
	}); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	keys := itemKeySet(t, db)
	if len(keys) != 2 {
		t.Fatalf("expected blank item persisted, got keys %v", keys)
	}
	if keys[0].Item != schema.BlankItem {
		t.Errorf("expected blank sentinel key, got %v", keys[0])
	}

	// Resync without the blank row deletes it like any other item.
	if err := s.Sync(ctx, []*schema.Record{
		record("1", "C1", "Widget", 2, 9.99),
	}); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	keys = itemKeySet(t, db)
	if len(keys) != 1 || keys[0].Item != "Widget" {
		t.Errorf("expected blank item reconciled away, got %v", keys)
	}
}

func TestSyncInvalidRecordUpsertsParent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	s := New(db, testLogger())

	// An invalid record with no customer_id or date still creates its order.
	if err := s.Sync(ctx, []*schema.Record{
		invalidRecord("9", "Widget", "Invalid or missing customer_id"),
	}); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	details, err := db.ActiveOrders(ctx)
	if err != nil {
		t.Fatalf("ActiveOrders failed: %v", err)
	}
	if len(details) != 1 {
		t.Fatalf("expected 1 order, got %d", len(details))
	}
	if details[0].CustomerID != nil || details[0].OrderDate != nil {
		t.Errorf("expected NULL customer and date, got %+v", details[0].Order)
	}
}

func TestSyncNilOrderIDFailsAndRollsBack(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	s := New(db, testLogger())

	if err := s.Sync(ctx, []*schema.Record{
		record("1", "C1", "Widget", 2, 9.99),
	}); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	bad := []*schema.Record{
		record("2", "C2", "Nut", 4, 2.00),
		invalidRecord("", "Bolt", "Invalid or missing order_id"),
	}
	bad[1].OrderID = nil

	if err := s.Sync(ctx, bad); err == nil {
		t.Fatal("expected sync to fail on record without order_id")
	}

	// Prior state intact: order 2 was never committed, order 1 survives.
	keys := itemKeySet(t, db)
	if len(keys) != 1 || keys[0] != (store.ItemKey{OrderID: "1", Item: "Widget"}) {
		t.Errorf("store changed despite failed sync: %v", keys)
	}
}

func TestReplaceClearsPriorState(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	s := New(db, testLogger())

	if err := s.Sync(ctx, []*schema.Record{
		record("1", "C1", "Widget", 2, 9.99),
		record("2", "C2", "Nut", 4, 2.00),
	}); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if err := s.Replace(ctx, []*schema.Record{
		record("5", "C5", "Gear", 1, 5.00),
	}); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	keys := itemKeySet(t, db)
	if len(keys) != 1 || keys[0] != (store.ItemKey{OrderID: "5", Item: "Gear"}) {
		t.Errorf("expected clean-slate load, got %v", keys)
	}
}

func TestSyncEmptyBatchClearsStore(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	s := New(db, testLogger())

	if err := s.Sync(ctx, []*schema.Record{
		record("1", "C1", "Widget", 2, 9.99),
	}); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	// The batch is the desired state; an empty one empties the store.
	if err := s.Sync(ctx, nil); err != nil {
		t.Fatalf("Sync with empty batch failed: %v", err)
	}

	items, err := db.ItemCount(ctx)
	if err != nil {
		t.Fatalf("ItemCount failed: %v", err)
	}
	orders, err := db.OrderCount(ctx)
	if err != nil {
		t.Fatalf("OrderCount failed: %v", err)
	}
	if items != 0 || orders != 0 {
		t.Errorf("expected empty store, got %d orders and %d items", orders, items)
	}
}
