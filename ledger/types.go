/*
Package ledger provides the inventory movement ledger and FIFO allocation engine.

PURPOSE:
  Every quantity change in the warehouse is recorded as an immutable
  movement line under an inbound or outbound batch. Balances are always
  derivable by summing lines; the cached per-item total in the catalog is a
  convenience kept in lock-step by the movement coordinator.

KEY CONCEPTS IN THIS FILE (types.go):
  - BatchRef: tagged reference to the parent batch. A line belongs to
    exactly one inbound OR one outbound batch; the sum type makes the
    "both set" and "neither set" states unrepresentable once validated.
  - MovementLine: the atomic ledger entry (item, quantity, batch, location).
  - InboundBatch / OutboundBatch: grouping created per operation.

DESIGN PRINCIPLES:
  1. Append-only: batches and lines are created once and never mutated.
  2. Positive quantities: direction lives on the batch kind, not the sign.
  3. Integer quantities: physical piece counts; money uses decimal.

SEE ALSO:
  - balance.go: net and per-location balances derived from lines
  - allocate.go: FIFO assignment of outbound quantity to locations
  - movement.go: the coordinator that writes batches atomically
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/inventory-engine/catalog"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type BatchID int64
type LineID int64

// =============================================================================
// BATCH REFERENCE - exactly one parent, enforced structurally
// =============================================================================

type BatchKind string

const (
	KindInbound  BatchKind = "inbound"
	KindOutbound BatchKind = "outbound"
)

// BatchRef ties a movement line to its parent batch. Kind decides which
// table the ID points into. The zero value is invalid on purpose: a line
// without a parent must never reach the store.
type BatchRef struct {
	Kind BatchKind
	ID   BatchID
}

func InboundRef(id BatchID) BatchRef  { return BatchRef{Kind: KindInbound, ID: id} }
func OutboundRef(id BatchID) BatchRef { return BatchRef{Kind: KindOutbound, ID: id} }

// Valid reports whether the reference names exactly one existing parent.
func (r BatchRef) Valid() bool {
	return (r.Kind == KindInbound || r.Kind == KindOutbound) && r.ID > 0
}

func (r BatchRef) IsInbound() bool  { return r.Kind == KindInbound }
func (r BatchRef) IsOutbound() bool { return r.Kind == KindOutbound }

// =============================================================================
// MOVEMENT LINE - the ledger entry
// =============================================================================

type MovementLine struct {
	ID       LineID
	ItemID   catalog.ItemID
	Batch    BatchRef
	Quantity int64 // always > 0; direction comes from Batch.Kind

	// Inbound lines always carry the location the goods were put.
	// Outbound lines carry the location the allocator drew from.
	// Zero means no location (defensive; never produced by the coordinator).
	LocationID catalog.LocationID

	// Optional acquisition cost per unit for inbound lines. Zero when the
	// caller did not price the delivery. Ignored on outbound lines.
	UnitCost decimal.Decimal
}

// Check verifies the per-line invariants before a write is attempted.
// Violations are internal bugs, not caller errors.
func (l MovementLine) Check() error {
	if !l.Batch.Valid() {
		return &ConsistencyError{Rule: "exactly-one-parent", Detail: "movement line has no valid batch reference"}
	}
	if l.Quantity <= 0 {
		return &ConsistencyError{Rule: "positive-quantity", Detail: "movement line quantity must be > 0"}
	}
	if l.ItemID <= 0 {
		return &ConsistencyError{Rule: "item-reference", Detail: "movement line has no item"}
	}
	return nil
}

// =============================================================================
// BATCHES
// =============================================================================

// InboundBatch records a delivery into the warehouse.
type InboundBatch struct {
	ID             BatchID
	OrderRef       string
	DeliveryRef    string
	ReceivedAt     time.Time // external timestamp; drives FIFO ordering
	IdempotencyKey string
	CreatedAt      time.Time
}

// OutboundBatch records an issue out of the warehouse.
type OutboundBatch struct {
	ID             BatchID
	Reason         string
	IssuedAt       time.Time
	IdempotencyKey string
	CreatedAt      time.Time
}

// =============================================================================
// LEDGER ROW - line joined with its parent's external timestamp
// =============================================================================

// ItemLine is what the balance calculator folds over: a movement line plus
// the parent batch's external timestamp (ReceivedAt or IssuedAt).
type ItemLine struct {
	Line        MovementLine
	EffectiveAt time.Time
}

// =============================================================================
// BALANCES
// =============================================================================

// LocationBalance is one entry of the per-location projection used by the
// FIFO allocator and the locationBalances read endpoint.
type LocationBalance struct {
	LocationID catalog.LocationID
	Available  int64

	// Earliest ReceivedAt over the inbound lines at this location. Zero
	// when the stock has no inbound lineage (defensive; sorts last).
	EarliestInboundAt time.Time
}

// Allocation is one step of a FIFO assignment plan: take Quantity from
// LocationID. A plan is ordered oldest location first.
type Allocation struct {
	LocationID catalog.LocationID
	Quantity   int64
}
