/*
balance.go - Net and per-location balances derived from the ledger

PURPOSE:
  Answers "how much of this item is on hand, and where?" by folding over
  the item's movement lines. Pure projection: no side effects, and a call
  against an unchanged ledger always returns the same result.

NET BALANCE:
  sum(inbound line quantities) - sum(outbound line quantities), optionally
  scoped to one location. Never negative after committed operations; the
  coordinator refuses writes that would overdraw a location.

PER-LOCATION PROJECTION:
  For the allocator and the locationBalances endpoint: every location with
  available > 0, each tagged with the earliest ReceivedAt among the inbound
  lines ever recorded there. That timestamp is the FIFO ordering key. It is
  deliberately NOT restricted to surviving lots - this matches the observed
  behavior of drawing down whichever shelf received stock first.

ORDERING:
  Oldest inbound timestamp first; ties break on ascending location id;
  locations with stock but no inbound lineage (zero timestamp) sort last.

SEE ALSO:
  - allocate.go: walks the ordered projection greedily
*/
package ledger

import (
	"context"
	"sort"

	"github.com/warp/inventory-engine/catalog"
)

// =============================================================================
// BALANCE CALCULATOR
// =============================================================================

// BalanceCalculator derives balances from a consistent read view. Inside a
// coordinator transaction the Reader is the Tx itself, so availability
// checks and writes observe the same snapshot.
type BalanceCalculator struct {
	Reader Reader
}

// NetBalance computes inbound minus outbound for an item. locationID == 0
// means all locations. Returns 0 when no lines exist.
func (bc *BalanceCalculator) NetBalance(ctx context.Context, itemID catalog.ItemID, locationID catalog.LocationID) (int64, error) {
	lines, err := bc.Reader.ItemLines(ctx, itemID)
	if err != nil {
		return 0, err
	}

	var net int64
	for _, il := range lines {
		if locationID != 0 && il.Line.LocationID != locationID {
			continue
		}
		if il.Line.Batch.IsInbound() {
			net += il.Line.Quantity
		} else {
			net -= il.Line.Quantity
		}
	}
	return net, nil
}

// PerLocationBalances returns every location holding stock of the item
// (available > 0), ordered for FIFO consumption.
func (bc *BalanceCalculator) PerLocationBalances(ctx context.Context, itemID catalog.ItemID) ([]LocationBalance, error) {
	lines, err := bc.Reader.ItemLines(ctx, itemID)
	if err != nil {
		return nil, err
	}

	byLocation := make(map[catalog.LocationID]*LocationBalance)
	for _, il := range lines {
		if il.Line.LocationID == 0 {
			continue
		}
		lb := byLocation[il.Line.LocationID]
		if lb == nil {
			lb = &LocationBalance{LocationID: il.Line.LocationID}
			byLocation[il.Line.LocationID] = lb
		}
		if il.Line.Batch.IsInbound() {
			lb.Available += il.Line.Quantity
			if lb.EarliestInboundAt.IsZero() || il.EffectiveAt.Before(lb.EarliestInboundAt) {
				lb.EarliestInboundAt = il.EffectiveAt
			}
		} else {
			lb.Available -= il.Line.Quantity
		}
	}

	result := make([]LocationBalance, 0, len(byLocation))
	for _, lb := range byLocation {
		if lb.Available > 0 {
			result = append(result, *lb)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		// No inbound lineage sorts last.
		if a.EarliestInboundAt.IsZero() != b.EarliestInboundAt.IsZero() {
			return !a.EarliestInboundAt.IsZero()
		}
		if !a.EarliestInboundAt.Equal(b.EarliestInboundAt) {
			return a.EarliestInboundAt.Before(b.EarliestInboundAt)
		}
		return a.LocationID < b.LocationID
	})

	return result, nil
}

// TotalAvailable sums the per-location projection. This is what outbound
// availability checks compare against.
func (bc *BalanceCalculator) TotalAvailable(ctx context.Context, itemID catalog.ItemID) (int64, error) {
	balances, err := bc.PerLocationBalances(ctx, itemID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, lb := range balances {
		total += lb.Available
	}
	return total, nil
}
