// Package sync reconciles a validated CSV batch against the persisted
// order store.
//
// # Overview
//
// The batch from one ingestion run is the complete desired state, not a
// diff. The syncer makes the store match it exactly:
//
//	CSV file ── ingest/validate ──► []*schema.Record
//	                                      │
//	                                   Syncer
//	                                      │
//	                                  SQLite store
//	                          (orders + order_items)
//
// # Incremental sync
//
// Sync stages the batch in memory keyed by (order_id, item), resolving
// repeated keys last-write-wins (an invalid repeat never displaces a
// valid staged record), then inside a single transaction:
//
//  1. upserts the order and item for every staged record
//  2. deletes persisted items whose key is absent from the staged set
//  3. deletes orders left with zero items
//
// After a successful Sync the persisted item key set equals the staged key
// set, and every order is referenced by at least one item. Running Sync
// twice with the same batch is a no-op the second time.
//
// # Full replace
//
// Replace clears all persisted orders and items and loads the staged batch
// fresh, also inside one transaction.
//
// # Failure semantics
//
// Any error - a record with no order_id, a constraint violation, an I/O
// failure - aborts the whole transaction and leaves the store in its
// pre-sync state. There is no partial sync.
package sync
