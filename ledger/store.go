/*
store.go - Persistence interface for the movement ledger and cached totals

PURPOSE:
  Defines the boundary between the movement engine and the database. The
  ledger side is append-only; the only mutation the engine ever performs
  outside appends is the cached item total, and that happens in the same
  store transaction as the append.

APPEND-ONLY CONTRACT:
  - InsertInboundBatch / InsertOutboundBatch are the only ledger writes.
  - No update or delete of batches or lines exists on any interface here.

ATOMICITY:
  WithTx executes a function against a transactional view. Either every
  write inside commits or none do. The coordinator performs its whole
  read-check-write sequence inside one WithTx call, under per-item locks.

SNAPSHOT READS:
  Reads issued through a Tx see the transaction's own consistent snapshot.
  Reads on the Store outside a transaction are still individually
  consistent (a single statement / lock-protected scan), which is all the
  read-only endpoints need.

IMPLEMENTATIONS:
  - ledger/store/memory.go: in-memory, snapshot/rollback transactions
  - store/sqlite/sqlite.go: production SQLite

SEE ALSO:
  - movement.go: the only caller of the write side
*/
package ledger

import (
	"context"
	"time"

	"github.com/warp/inventory-engine/catalog"
)

// =============================================================================
// READER - consistent read operations
// =============================================================================

type Reader interface {
	// ItemLines returns every movement line for an item joined with the
	// parent batch's external timestamp, in insertion order.
	ItemLines(ctx context.Context, itemID catalog.ItemID) ([]ItemLine, error)

	// GetItems returns the catalog rows for the given ids. Missing ids are
	// simply absent from the map; the caller decides whether that is an error.
	GetItems(ctx context.Context, ids []catalog.ItemID) (map[catalog.ItemID]catalog.Item, error)

	// GetLocations mirrors GetItems for locations.
	GetLocations(ctx context.Context, ids []catalog.LocationID) (map[catalog.LocationID]catalog.Location, error)
}

// =============================================================================
// WRITER - append-only ledger writes plus the cached-total update
// =============================================================================

type Writer interface {
	// InsertInboundBatch persists the batch and its lines, assigning ids.
	// Lines must already reference their locations. Fails with
	// ErrDuplicateIdempotencyKey if the batch's key exists.
	InsertInboundBatch(ctx context.Context, b InboundBatch, lines []MovementLine) (BatchID, error)

	// InsertOutboundBatch mirrors InsertInboundBatch for issues.
	InsertOutboundBatch(ctx context.Context, b OutboundBatch, lines []MovementLine) (BatchID, error)

	// AdjustItemQuantity applies a delta to the cached total and stamps the
	// quantity-changed timestamp. Must only be called alongside the ledger
	// write that justifies the delta, inside the same transaction.
	AdjustItemQuantity(ctx context.Context, id catalog.ItemID, delta int64, at time.Time) error
}

// Tx is the transactional view handed to WithTx callbacks.
type Tx interface {
	Reader
	Writer
}

// =============================================================================
// STORE - what the movement engine requires of its persistence
// =============================================================================

type Store interface {
	Reader

	// WithTx executes fn against a transactional view. fn returning an
	// error rolls everything back; nil commits.
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// =============================================================================
// BATCH LISTER - read models for movement overviews
// =============================================================================

// BatchLister serves the movement history endpoints: batches newest-first
// with their lines grouped by batch id.
type BatchLister interface {
	ListInboundBatches(ctx context.Context) ([]InboundBatch, map[BatchID][]MovementLine, error)
	ListOutboundBatches(ctx context.Context) ([]OutboundBatch, map[BatchID][]MovementLine, error)
}
