package sync

import (
	"context"

	"github.com/pepperhq/ordersync/internal/schema"
)

// Mode selects how a batch is applied to the store.
type Mode string

const (
	// ModeSync incrementally reconciles the store against the batch:
	// upserts for staged records, deletes for everything else.
	ModeSync Mode = "sync"
	// ModeReplace clears the store and loads the batch fresh.
	ModeReplace Mode = "replace"
)

// Syncer applies a validated batch to the order store.
//
// The batch is treated as the complete desired state: after a successful
// apply, the persisted (order_id, item) set equals the batch's staged key
// set exactly. Both operations are atomic; on error the store keeps its
// prior state.
type Syncer interface {
	// Sync incrementally reconciles the store against batch.
	//
	// Records are staged by (order_id, item) with last-write-wins on
	// repeated keys, except that an invalid repeat never displaces a
	// valid staged record; a nil item is normalized to the blank
	// sentinel. A record without an order_id is a contract violation
	// and fails the whole sync.
	Sync(ctx context.Context, batch []*schema.Record) error

	// Replace clears all persisted state and loads batch fresh.
	Replace(ctx context.Context, batch []*schema.Record) error
}
