package sync

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/pepperhq/ordersync/internal/schema"
	"github.com/pepperhq/ordersync/internal/store"
)

// syncer implements the Syncer interface.
type syncer struct {
	db     *store.DB
	logger *log.Logger
}

// New creates a new Syncer instance.
//
// The database connection must be open and have its schema initialized
// before passing to this function. If logger is nil, a default logger
// writing to stderr is used.
func New(db *store.DB, logger *log.Logger) Syncer {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &syncer{
		db:     db,
		logger: logger,
	}
}

// stagedBatch is the batch keyed by (order_id, item) in first-seen order.
// Repeated keys overwrite in place, so the key keeps its original position.
type stagedBatch struct {
	keys []store.ItemKey
	rows map[store.ItemKey]*schema.Record
}

// stage materializes the batch for set reconciliation against the store.
//
// Repeated keys resolve last-write-wins, except that an invalid record
// never displaces a valid staged one: a repeat flagged by the duplicate
// detector loses to the canonical first occurrence, while raw repeats
// that bypassed the detector still resolve to the latest row.
//
// A record with no order_id cannot be keyed and is a contract violation.
func stage(batch []*schema.Record) (*stagedBatch, error) {
	staged := &stagedBatch{
		rows: make(map[store.ItemKey]*schema.Record, len(batch)),
	}
	for i, rec := range batch {
		if rec == nil {
			return nil, fmt.Errorf("record %d is nil", i)
		}
		if rec.OrderID == nil {
			return nil, fmt.Errorf("record %d has no order_id: cannot stage", i)
		}
		key := store.ItemKey{OrderID: *rec.OrderID, Item: rec.NormalizedItem()}
		if existing, ok := staged.rows[key]; ok {
			if existing.IsValid && !rec.IsValid {
				continue
			}
		} else {
			staged.keys = append(staged.keys, key)
		}
		staged.rows[key] = rec
	}
	return staged, nil
}

// upsertStaged writes every staged record into the transaction, parent
// order first so the item's reference is satisfied. Invalid records are
// written too: their order carries whatever customer_id and date survived
// validation, and the item carries the error for later review.
func upsertStaged(ctx context.Context, tx *store.Tx, staged *stagedBatch) error {
	for _, key := range staged.keys {
		rec := staged.rows[key]

		order := store.Order{
			OrderID:    key.OrderID,
			CustomerID: rec.CustomerID,
			OrderDate:  rec.Date,
		}
		if err := tx.UpsertOrder(ctx, order); err != nil {
			return err
		}

		item := store.Item{
			OrderID:      key.OrderID,
			Item:         key.Item,
			Quantity:     rec.Quantity,
			UnitPrice:    rec.UnitPrice,
			IsValid:      rec.IsValid,
			ErrorMessage: rec.ErrorMessage,
		}
		if err := tx.UpsertItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// Sync implements Syncer.Sync.
func (s *syncer) Sync(ctx context.Context, batch []*schema.Record) error {
	staged, err := stage(batch)
	if err != nil {
		return fmt.Errorf("failed to stage batch: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := upsertStaged(ctx, tx, staged); err != nil {
		return fmt.Errorf("failed to upsert staged records: %w", err)
	}

	itemsDeleted, err := tx.DeleteItemsNotIn(ctx, staged.keys)
	if err != nil {
		return fmt.Errorf("failed to delete stale items: %w", err)
	}

	ordersDeleted, err := tx.DeleteOrphanOrders(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete orphan orders: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.logger.Printf("Incremental sync complete: staged=%d, items deleted=%d, orders deleted=%d",
		len(staged.keys), itemsDeleted, ordersDeleted)
	return nil
}

// Replace implements Syncer.Replace.
func (s *syncer) Replace(ctx context.Context, batch []*schema.Record) error {
	staged, err := stage(batch)
	if err != nil {
		return fmt.Errorf("failed to stage batch: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := tx.DeleteAll(ctx); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}

	if err := upsertStaged(ctx, tx, staged); err != nil {
		return fmt.Errorf("failed to upsert staged records: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.logger.Printf("Replace complete: loaded %d items", len(staged.keys))
	return nil
}
