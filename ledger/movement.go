/*
movement.go - Movement transaction coordinator

PURPOSE:
  Orchestrates one inbound or outbound movement end-to-end:

    validate -> existence checks -> (outbound) availability + FIFO plan
      -> write batch + lines -> adjust cached totals -> commit

  Everything between the first read and the commit happens inside one store
  transaction AND under per-item locks, so two concurrent issues of the
  same item can never both pass the availability check and jointly
  overdraw. Cross-item operations proceed in parallel.

FAILURE SEMANTICS:
  Abort is total. A request that fails validation, existence, availability,
  or any invariant check leaves zero trace: no partial batch, no partial
  line, no cached-total drift.

LOCK ORDERING:
  Multi-item batches lock their distinct item ids in ascending order, which
  rules out deadlock between concurrent batches touching overlapping sets.

SEE ALSO:
  - balance.go / allocate.go: the read side the coordinator drives
  - store.go: the WithTx boundary the writes ride on
*/
package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/inventory-engine/catalog"
)

// =============================================================================
// REQUESTS
// =============================================================================

// InboundLine is one position of a delivery. The caller decides the
// location; inbound is never reallocated.
type InboundLine struct {
	ItemID     catalog.ItemID
	Quantity   int64
	LocationID catalog.LocationID
	UnitCost   decimal.Decimal // optional; zero when unpriced
}

type InboundRequest struct {
	Lines          []InboundLine
	OrderRef       string
	DeliveryRef    string
	ReceivedAt     time.Time
	IdempotencyKey string
}

// OutboundLine is one position of an issue. No location: the FIFO
// allocator assigns where the stock is drawn from.
type OutboundLine struct {
	ItemID   catalog.ItemID
	Quantity int64
}

type OutboundRequest struct {
	Lines          []OutboundLine
	Reason         string
	IssuedAt       time.Time
	IdempotencyKey string
}

// =============================================================================
// COORDINATOR
// =============================================================================

type Coordinator struct {
	Store Store

	// Now stamps operation start times. Overridable in tests.
	Now func() time.Time

	locks itemLocks
}

func NewCoordinator(store Store) *Coordinator {
	return &Coordinator{
		Store: store,
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

// RecordInbound books a delivery: one inbound batch, one movement line per
// input position, cached totals bumped. Atomic.
func (c *Coordinator) RecordInbound(ctx context.Context, req InboundRequest) (BatchID, error) {
	if err := validateInbound(req); err != nil {
		return 0, err
	}

	startedAt := c.Now()
	itemIDs := inboundItemIDs(req.Lines)

	unlock := c.locks.acquire(itemIDs)
	defer unlock()

	var batchID BatchID
	err := c.Store.WithTx(ctx, func(tx Tx) error {
		if err := checkExistence(ctx, tx, itemIDs, inboundLocationIDs(req.Lines)); err != nil {
			return err
		}

		lines := make([]MovementLine, len(req.Lines))
		for i, l := range req.Lines {
			lines[i] = MovementLine{
				ItemID:     l.ItemID,
				Quantity:   l.Quantity,
				LocationID: l.LocationID,
				UnitCost:   l.UnitCost,
			}
		}

		batch := InboundBatch{
			OrderRef:       req.OrderRef,
			DeliveryRef:    req.DeliveryRef,
			ReceivedAt:     req.ReceivedAt,
			IdempotencyKey: req.IdempotencyKey,
			CreatedAt:      startedAt,
		}

		id, err := tx.InsertInboundBatch(ctx, batch, lines)
		if err != nil {
			return err
		}
		batchID = id

		for itemID, delta := range quantityByItem(lines) {
			if err := tx.AdjustItemQuantity(ctx, itemID, delta, startedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return batchID, nil
}

// RecordOutbound books an issue: availability is verified for every
// position against one snapshot, then the FIFO allocator splits each
// position across locations, oldest stock first. Atomic; on any shortfall
// nothing is written.
func (c *Coordinator) RecordOutbound(ctx context.Context, req OutboundRequest) (BatchID, error) {
	if err := validateOutbound(req); err != nil {
		return 0, err
	}

	startedAt := c.Now()
	itemIDs := outboundItemIDs(req.Lines)

	unlock := c.locks.acquire(itemIDs)
	defer unlock()

	var batchID BatchID
	err := c.Store.WithTx(ctx, func(tx Tx) error {
		if err := checkExistence(ctx, tx, itemIDs, nil); err != nil {
			return err
		}

		calc := &BalanceCalculator{Reader: tx}

		// One snapshot of per-location balances per item. The working
		// copies are drawn down as positions are planned, so a second
		// position for the same item sees what the first consumed.
		working := make(map[catalog.ItemID][]LocationBalance)
		for _, id := range itemIDs {
			balances, err := calc.PerLocationBalances(ctx, id)
			if err != nil {
				return err
			}
			working[id] = balances
		}

		// Availability check for every position before any write.
		for _, l := range req.Lines {
			available := availableIn(working[l.ItemID])
			if available < l.Quantity {
				return &InsufficientStockError{
					ItemID:    l.ItemID,
					Requested: l.Quantity,
					Available: available,
				}
			}
		}

		var lines []MovementLine
		for _, l := range req.Lines {
			plan, rest, err := planAllocation(working[l.ItemID], l.ItemID, l.Quantity)
			if err != nil {
				return err
			}
			working[l.ItemID] = rest
			for _, a := range plan {
				lines = append(lines, MovementLine{
					ItemID:     l.ItemID,
					Quantity:   a.Quantity,
					LocationID: a.LocationID,
				})
			}
		}

		batch := OutboundBatch{
			Reason:         req.Reason,
			IssuedAt:       req.IssuedAt,
			IdempotencyKey: req.IdempotencyKey,
			CreatedAt:      startedAt,
		}

		id, err := tx.InsertOutboundBatch(ctx, batch, lines)
		if err != nil {
			return err
		}
		batchID = id

		// The cached total drops by the requested amount; the split lines
		// sum to the same figure by construction.
		for _, l := range req.Lines {
			if err := tx.AdjustItemQuantity(ctx, l.ItemID, -l.Quantity, startedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return batchID, nil
}

// =============================================================================
// PLANNING - pure allocation over a working balance snapshot
// =============================================================================

// planAllocation walks the ordered balances greedily and returns the plan
// plus the drawn-down remainder. The input slice is not modified.
func planAllocation(balances []LocationBalance, itemID catalog.ItemID, amount int64) ([]Allocation, []LocationBalance, error) {
	remaining := amount
	var plan []Allocation
	rest := make([]LocationBalance, 0, len(balances))

	for _, lb := range balances {
		take := min64(remaining, lb.Available)
		if take > 0 {
			plan = append(plan, Allocation{LocationID: lb.LocationID, Quantity: take})
			remaining -= take
			lb.Available -= take
		}
		if lb.Available > 0 {
			rest = append(rest, lb)
		}
	}

	if remaining > 0 {
		return nil, nil, &InsufficientStockError{
			ItemID:    itemID,
			Requested: amount,
			Available: amount - remaining,
		}
	}

	var planned int64
	for _, a := range plan {
		planned += a.Quantity
	}
	if planned != amount {
		return nil, nil, &ConsistencyError{Rule: "allocation-sum", Detail: "plan does not cover the requested amount"}
	}
	return plan, rest, nil
}

func availableIn(balances []LocationBalance) int64 {
	var total int64
	for _, lb := range balances {
		total += lb.Available
	}
	return total
}

// =============================================================================
// VALIDATION - before any ledger read
// =============================================================================

func validateInbound(req InboundRequest) error {
	if len(req.Lines) == 0 {
		return &ValidationError{Reason: "at least one line required"}
	}
	for _, l := range req.Lines {
		if l.ItemID <= 0 || l.Quantity <= 0 || l.LocationID <= 0 {
			return &ValidationError{Reason: "each line needs itemId > 0, amount > 0 and locationId > 0"}
		}
		if l.UnitCost.IsNegative() {
			return &ValidationError{Reason: "unit cost must not be negative"}
		}
	}
	return nil
}

func validateOutbound(req OutboundRequest) error {
	if len(req.Lines) == 0 {
		return &ValidationError{Reason: "at least one line required"}
	}
	for _, l := range req.Lines {
		if l.ItemID <= 0 || l.Quantity <= 0 {
			return &ValidationError{Reason: "each line needs itemId > 0 and amount > 0"}
		}
	}
	return nil
}

// checkExistence verifies catalog references and reports ALL missing ids
// in one error.
func checkExistence(ctx context.Context, r Reader, itemIDs []catalog.ItemID, locationIDs []catalog.LocationID) error {
	items, err := r.GetItems(ctx, itemIDs)
	if err != nil {
		return err
	}
	nf := &NotFoundError{}
	for _, id := range itemIDs {
		if _, ok := items[id]; !ok {
			nf.ItemIDs = append(nf.ItemIDs, id)
		}
	}

	if len(locationIDs) > 0 {
		locations, err := r.GetLocations(ctx, locationIDs)
		if err != nil {
			return err
		}
		for _, id := range locationIDs {
			if _, ok := locations[id]; !ok {
				nf.LocationIDs = append(nf.LocationIDs, id)
			}
		}
	}

	if len(nf.ItemIDs) > 0 || len(nf.LocationIDs) > 0 {
		return nf
	}
	return nil
}

// =============================================================================
// REQUEST SHAPING HELPERS
// =============================================================================

func inboundItemIDs(lines []InboundLine) []catalog.ItemID {
	ids := make([]catalog.ItemID, len(lines))
	for i, l := range lines {
		ids[i] = l.ItemID
	}
	return distinctItemIDs(ids)
}

func outboundItemIDs(lines []OutboundLine) []catalog.ItemID {
	ids := make([]catalog.ItemID, len(lines))
	for i, l := range lines {
		ids[i] = l.ItemID
	}
	return distinctItemIDs(ids)
}

func inboundLocationIDs(lines []InboundLine) []catalog.LocationID {
	seen := make(map[catalog.LocationID]bool)
	var ids []catalog.LocationID
	for _, l := range lines {
		if !seen[l.LocationID] {
			seen[l.LocationID] = true
			ids = append(ids, l.LocationID)
		}
	}
	return ids
}

func distinctItemIDs(ids []catalog.ItemID) []catalog.ItemID {
	seen := make(map[catalog.ItemID]bool)
	var out []catalog.ItemID
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func quantityByItem(lines []MovementLine) map[catalog.ItemID]int64 {
	totals := make(map[catalog.ItemID]int64)
	for _, l := range lines {
		totals[l.ItemID] += l.Quantity
	}
	return totals
}

// =============================================================================
// PER-ITEM LOCKS - explicit serialization of same-item movements
// =============================================================================

// itemLocks hands out one mutex per item id. acquire locks the given ids
// (already distinct and ascending) and returns the matching unlock.
type itemLocks struct {
	mu    sync.Mutex
	locks map[catalog.ItemID]*sync.Mutex
}

func (il *itemLocks) acquire(ids []catalog.ItemID) func() {
	il.mu.Lock()
	if il.locks == nil {
		il.locks = make(map[catalog.ItemID]*sync.Mutex)
	}
	ms := make([]*sync.Mutex, len(ids))
	for i, id := range ids {
		m := il.locks[id]
		if m == nil {
			m = &sync.Mutex{}
			il.locks[id] = m
		}
		ms[i] = m
	}
	il.mu.Unlock()

	for _, m := range ms {
		m.Lock()
	}
	return func() {
		for i := len(ms) - 1; i >= 0; i-- {
			ms[i].Unlock()
		}
	}
}
