/*
allocate.go - FIFO assignment of an outbound request to locations

PURPOSE:
  Decides WHICH shelves satisfy an issue. Given the per-location balances
  (already ordered oldest-first by balance.go), the allocator walks the
  list greedily: take min(remaining, available) at each location until the
  request is covered.

NO SIDE EFFECTS:
  Allocate only proposes a plan. The coordinator turns the plan into
  movement lines inside its transaction; on any failure the plan is simply
  discarded.

SPLITTING:
  Stock spread across many small locations yields one plan entry (and later
  one movement line) per contributing location. Expected, not an error.
*/
package ledger

import (
	"context"

	"github.com/warp/inventory-engine/catalog"
)

// =============================================================================
// FIFO ALLOCATOR
// =============================================================================

type Allocator struct {
	Balances *BalanceCalculator
}

// Allocate proposes a per-location split for issuing amount of an item.
// Fails with InsufficientStockError when the item's total availability
// across all locations is short; partial plans are never returned.
func (a *Allocator) Allocate(ctx context.Context, itemID catalog.ItemID, amount int64) ([]Allocation, error) {
	if amount <= 0 {
		return nil, &ValidationError{Reason: "allocation amount must be > 0"}
	}

	balances, err := a.Balances.PerLocationBalances(ctx, itemID)
	if err != nil {
		return nil, err
	}

	plan, _, err := planAllocation(balances, itemID, amount)
	return plan, err
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
