package ledger_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/inventory-engine/ledger"
)

func TestValue_WeightedAverageAcrossDeliveries(t *testing.T) {
	m, c := newEngine(t)
	item := seedItem(t, m, "copper wire")
	loc := seedLocation(t, m, "R1", "A", "01")

	// 10 @ 2.00 and 10 @ 3.00 -> average 2.50
	_, err := c.RecordInbound(context.Background(), ledger.InboundRequest{
		Lines: []ledger.InboundLine{
			{ItemID: item, Quantity: 10, LocationID: loc, UnitCost: decimal.RequireFromString("2.00")},
		},
		ReceivedAt: day(1),
	})
	require.NoError(t, err)
	_, err = c.RecordInbound(context.Background(), ledger.InboundRequest{
		Lines: []ledger.InboundLine{
			{ItemID: item, Quantity: 10, LocationID: loc, UnitCost: decimal.RequireFromString("3.00")},
		},
		ReceivedAt: day(2),
	})
	require.NoError(t, err)

	v := &ledger.Valuer{Reader: m}
	sv, err := v.Value(context.Background(), item)
	require.NoError(t, err)

	assert.Equal(t, int64(20), sv.OnHand)
	assert.True(t, sv.AverageUnitCost.Equal(decimal.RequireFromString("2.5")),
		"got %s", sv.AverageUnitCost)
	assert.True(t, sv.TotalValue.Equal(decimal.RequireFromString("50")),
		"got %s", sv.TotalValue)
}

func TestValue_UnpricedDeliveriesDoNotDiluteAverage(t *testing.T) {
	m, c := newEngine(t)
	item := seedItem(t, m, "steel rod")
	loc := seedLocation(t, m, "R1", "A", "01")

	_, err := c.RecordInbound(context.Background(), ledger.InboundRequest{
		Lines: []ledger.InboundLine{
			{ItemID: item, Quantity: 5, LocationID: loc, UnitCost: decimal.RequireFromString("4.00")},
		},
		ReceivedAt: day(1),
	})
	require.NoError(t, err)
	receive(t, c, item, 5, loc, day(2)) // no cost attached

	v := &ledger.Valuer{Reader: m}
	sv, err := v.Value(context.Background(), item)
	require.NoError(t, err)

	assert.Equal(t, int64(10), sv.OnHand)
	assert.True(t, sv.AverageUnitCost.Equal(decimal.RequireFromString("4.00")),
		"unpriced stock keeps the priced average, got %s", sv.AverageUnitCost)
	assert.True(t, sv.TotalValue.Equal(decimal.RequireFromString("40.00")),
		"whole on-hand valued at the average, got %s", sv.TotalValue)
}

func TestValue_IssuesReduceOnHandNotAverage(t *testing.T) {
	m, c := newEngine(t)
	item := seedItem(t, m, "lubricant")
	loc := seedLocation(t, m, "R1", "A", "01")

	_, err := c.RecordInbound(context.Background(), ledger.InboundRequest{
		Lines: []ledger.InboundLine{
			{ItemID: item, Quantity: 8, LocationID: loc, UnitCost: decimal.RequireFromString("1.25")},
		},
		ReceivedAt: day(1),
	})
	require.NoError(t, err)

	_, err = c.RecordOutbound(context.Background(), ledger.OutboundRequest{
		Lines:    []ledger.OutboundLine{{ItemID: item, Quantity: 3}},
		IssuedAt: day(2),
	})
	require.NoError(t, err)

	v := &ledger.Valuer{Reader: m}
	sv, err := v.Value(context.Background(), item)
	require.NoError(t, err)

	assert.Equal(t, int64(5), sv.OnHand)
	assert.True(t, sv.AverageUnitCost.Equal(decimal.RequireFromString("1.25")))
	assert.True(t, sv.TotalValue.Equal(decimal.RequireFromString("6.25")))
}

func TestValue_NoPricedHistoryIsZeroValued(t *testing.T) {
	m, c := newEngine(t)
	item := seedItem(t, m, "donated part")
	loc := seedLocation(t, m, "R1", "A", "01")

	receive(t, c, item, 12, loc, day(1))

	v := &ledger.Valuer{Reader: m}
	sv, err := v.Value(context.Background(), item)
	require.NoError(t, err)

	assert.Equal(t, int64(12), sv.OnHand)
	assert.True(t, sv.AverageUnitCost.IsZero())
	assert.True(t, sv.TotalValue.IsZero())
}
