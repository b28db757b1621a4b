/*
valuation.go - Monetary value of on-hand stock

PURPOSE:
  Inbound lines optionally carry an acquisition cost per unit. This
  projection derives a weighted-average unit cost from the priced inbound
  history and values the current net balance with it.

PRECISION:
  Costs are decimal.Decimal throughout; quantities stay integers. The
  average divides total priced cost by total priced quantity, so unpriced
  deliveries neither inflate nor dilute the average.

READ-ONLY:
  Like the balance calculator, this is a pure fold over the item's lines.
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/inventory-engine/catalog"
)

// =============================================================================
// STOCK VALUATION
// =============================================================================

// StockValue summarizes what an item's on-hand quantity is worth.
type StockValue struct {
	ItemID          catalog.ItemID
	OnHand          int64
	AverageUnitCost decimal.Decimal // zero when no priced inbound exists
	TotalValue      decimal.Decimal // OnHand x AverageUnitCost
}

type Valuer struct {
	Reader Reader
}

// Value computes the weighted-average cost valuation for an item.
func (v *Valuer) Value(ctx context.Context, itemID catalog.ItemID) (StockValue, error) {
	lines, err := v.Reader.ItemLines(ctx, itemID)
	if err != nil {
		return StockValue{}, err
	}

	var (
		onHand     int64
		pricedQty  = decimal.Zero
		pricedCost = decimal.Zero
	)
	for _, il := range lines {
		if il.Line.Batch.IsInbound() {
			onHand += il.Line.Quantity
			if il.Line.UnitCost.IsPositive() {
				qty := decimal.NewFromInt(il.Line.Quantity)
				pricedQty = pricedQty.Add(qty)
				pricedCost = pricedCost.Add(il.Line.UnitCost.Mul(qty))
			}
		} else {
			onHand -= il.Line.Quantity
		}
	}

	sv := StockValue{ItemID: itemID, OnHand: onHand}
	if pricedQty.IsPositive() {
		sv.AverageUnitCost = pricedCost.Div(pricedQty)
		sv.TotalValue = sv.AverageUnitCost.Mul(decimal.NewFromInt(onHand))
	}
	return sv, nil
}
