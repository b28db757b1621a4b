package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/inventory-engine/catalog"
	"github.com/warp/inventory-engine/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedItem(t *testing.T, st *Store, name string) catalog.ItemID {
	t.Helper()
	id, err := st.CreateItem(context.Background(), catalog.Item{Name: name})
	require.NoError(t, err)
	return id
}

func seedLocation(t *testing.T, st *Store, room, rack, bin string) catalog.LocationID {
	t.Helper()
	id, err := st.CreateLocation(context.Background(), catalog.Location{Room: room, Rack: rack, Bin: bin})
	require.NoError(t, err)
	return id
}

func day(d int) time.Time {
	return time.Date(2025, time.March, d, 10, 0, 0, 0, time.UTC)
}

// =============================================================================
// CATALOG
// =============================================================================

func TestItemCRUD(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	critical := int64(5)
	id, err := st.CreateItem(ctx, catalog.Item{
		Name:             "M6 bolt",
		Description:      "hex head",
		CriticalQuantity: &critical,
	})
	require.NoError(t, err)

	got, err := st.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "M6 bolt", got.Name)
	assert.Equal(t, "hex head", got.Description)
	require.NotNil(t, got.CriticalQuantity)
	assert.Equal(t, int64(5), *got.CriticalQuantity)
	assert.Equal(t, int64(0), got.TotalQuantity)
	assert.False(t, got.CreatedAt.IsZero())

	got.Name = "M6 bolt zinc"
	got.CriticalQuantity = nil
	require.NoError(t, st.UpdateItem(ctx, got))

	updated, err := st.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "M6 bolt zinc", updated.Name)
	assert.Nil(t, updated.CriticalQuantity)

	require.NoError(t, st.DeleteItem(ctx, id))
	_, err = st.GetItem(ctx, id)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestListItems_Filters(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	typeID, err := st.CreateItemType(ctx, catalog.ItemType{Name: "fasteners"})
	require.NoError(t, err)

	_, err = st.CreateItem(ctx, catalog.Item{Name: "M6 bolt", TypeID: typeID})
	require.NoError(t, err)
	_, err = st.CreateItem(ctx, catalog.Item{Name: "M8 bolt", TypeID: typeID})
	require.NoError(t, err)
	_, err = st.CreateItem(ctx, catalog.Item{Name: "gasket"})
	require.NoError(t, err)

	all, err := st.ListItems(ctx, catalog.ItemFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	bolts, err := st.ListItems(ctx, catalog.ItemFilter{Query: "bolt"})
	require.NoError(t, err)
	assert.Len(t, bolts, 2)

	typed, err := st.ListItems(ctx, catalog.ItemFilter{TypeID: typeID})
	require.NoError(t, err)
	assert.Len(t, typed, 2)
}

func TestLocationIdentityIsUnique(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.CreateLocation(ctx, catalog.Location{Room: "R1", Rack: "A", Bin: "03"})
	require.NoError(t, err)

	_, err = st.CreateLocation(ctx, catalog.Location{Room: "R1", Rack: "A", Bin: "03"})
	assert.ErrorIs(t, err, catalog.ErrDuplicateLocation)

	// A different bin in the same rack is fine.
	_, err = st.CreateLocation(ctx, catalog.Location{Room: "R1", Rack: "A", Bin: "04"})
	assert.NoError(t, err)
}

func TestListLocations_Filters(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seedLocation(t, st, "R1", "A", "01")
	seedLocation(t, st, "R1", "B", "01")
	seedLocation(t, st, "R2", "A", "01")

	room1, err := st.ListLocations(ctx, catalog.LocationFilter{Room: "R1"})
	require.NoError(t, err)
	assert.Len(t, room1, 2)

	rackA, err := st.ListLocations(ctx, catalog.LocationFilter{Room: "R1", Rack: "A"})
	require.NoError(t, err)
	assert.Len(t, rackA, 1)

	byQuery, err := st.ListLocations(ctx, catalog.LocationFilter{Query: "R2"})
	require.NoError(t, err)
	assert.Len(t, byQuery, 1)
}

func TestDeleteReferencedEntitiesRejected(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	coord := ledger.NewCoordinator(st)

	item := seedItem(t, st, "sealed part")
	loc := seedLocation(t, st, "R1", "A", "01")

	_, err := coord.RecordInbound(ctx, ledger.InboundRequest{
		Lines:      []ledger.InboundLine{{ItemID: item, Quantity: 3, LocationID: loc}},
		ReceivedAt: day(1),
	})
	require.NoError(t, err)

	assert.ErrorIs(t, st.DeleteItem(ctx, item), catalog.ErrInUse)
	assert.ErrorIs(t, st.DeleteLocation(ctx, loc), catalog.ErrInUse)
}

// =============================================================================
// LEDGER
// =============================================================================

func TestMovementRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	coord := ledger.NewCoordinator(st)

	item := seedItem(t, st, "bearing")
	l1 := seedLocation(t, st, "R1", "A", "01")
	l2 := seedLocation(t, st, "R1", "A", "02")

	_, err := coord.RecordInbound(ctx, ledger.InboundRequest{
		Lines:      []ledger.InboundLine{{ItemID: item, Quantity: 5, LocationID: l1}},
		OrderRef:   "PO-1",
		ReceivedAt: day(1),
	})
	require.NoError(t, err)
	_, err = coord.RecordInbound(ctx, ledger.InboundRequest{
		Lines:      []ledger.InboundLine{{ItemID: item, Quantity: 5, LocationID: l2}},
		ReceivedAt: day(2),
	})
	require.NoError(t, err)

	_, err = coord.RecordOutbound(ctx, ledger.OutboundRequest{
		Lines:    []ledger.OutboundLine{{ItemID: item, Quantity: 7}},
		Reason:   "maintenance",
		IssuedAt: day(3),
	})
	require.NoError(t, err)

	calc := &ledger.BalanceCalculator{Reader: st}
	n, err := calc.NetBalance(ctx, item, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	perLoc, err := calc.PerLocationBalances(ctx, item)
	require.NoError(t, err)
	require.Len(t, perLoc, 1, "day-1 location drained first")
	assert.Equal(t, l2, perLoc[0].LocationID)
	assert.Equal(t, int64(3), perLoc[0].Available)

	got, err := st.GetItem(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.TotalQuantity, "cached total tracks the ledger")
	assert.False(t, got.QuantityChangedAt.IsZero())
}

func TestItemLines_RoundTripsTimestampsAndCost(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	coord := ledger.NewCoordinator(st)

	item := seedItem(t, st, "priced part")
	loc := seedLocation(t, st, "R1", "A", "01")

	_, err := coord.RecordInbound(ctx, ledger.InboundRequest{
		Lines: []ledger.InboundLine{
			{ItemID: item, Quantity: 4, LocationID: loc, UnitCost: decimal.RequireFromString("12.50")},
		},
		ReceivedAt: day(1),
	})
	require.NoError(t, err)

	lines, err := st.ItemLines(ctx, item)
	require.NoError(t, err)
	require.Len(t, lines, 1)

	line := lines[0]
	assert.True(t, line.Line.Batch.IsInbound())
	assert.Equal(t, int64(4), line.Line.Quantity)
	assert.Equal(t, loc, line.Line.LocationID)
	assert.True(t, line.Line.UnitCost.Equal(decimal.RequireFromString("12.50")))
	assert.True(t, line.EffectiveAt.Equal(day(1)), "got %s", line.EffectiveAt)
}

func TestOutboundRollsBackOnShortfall(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	coord := ledger.NewCoordinator(st)

	item := seedItem(t, st, "scarce")
	loc := seedLocation(t, st, "R1", "A", "01")

	_, err := coord.RecordInbound(ctx, ledger.InboundRequest{
		Lines:      []ledger.InboundLine{{ItemID: item, Quantity: 10, LocationID: loc}},
		ReceivedAt: day(1),
	})
	require.NoError(t, err)

	_, err = coord.RecordOutbound(ctx, ledger.OutboundRequest{
		Lines:    []ledger.OutboundLine{{ItemID: item, Quantity: 11}},
		IssuedAt: day(2),
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)

	lines, err := st.ItemLines(ctx, item)
	require.NoError(t, err)
	assert.Len(t, lines, 1, "no outbound lines may survive the rollback")

	got, err := st.GetItem(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.TotalQuantity)

	batches, byBatch, err := st.ListOutboundBatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, batches)
	assert.Empty(t, byBatch)
}

func TestIdempotencyKeyUniqueAcrossRestarts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	coord := ledger.NewCoordinator(st)

	item := seedItem(t, st, "retried part")
	loc := seedLocation(t, st, "R1", "A", "01")

	req := ledger.InboundRequest{
		Lines:          []ledger.InboundLine{{ItemID: item, Quantity: 5, LocationID: loc}},
		ReceivedAt:     day(1),
		IdempotencyKey: "client-key-1",
	}
	_, err := coord.RecordInbound(ctx, req)
	require.NoError(t, err)

	_, err = coord.RecordInbound(ctx, req)
	assert.ErrorIs(t, err, ledger.ErrDuplicateIdempotencyKey)

	calc := &ledger.BalanceCalculator{Reader: st}
	n, err := calc.NetBalance(ctx, item, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestListBatches_NewestFirstWithLines(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	coord := ledger.NewCoordinator(st)

	item := seedItem(t, st, "listed part")
	loc := seedLocation(t, st, "R1", "A", "01")

	first, err := coord.RecordInbound(ctx, ledger.InboundRequest{
		Lines:      []ledger.InboundLine{{ItemID: item, Quantity: 2, LocationID: loc}},
		OrderRef:   "PO-first",
		ReceivedAt: day(1),
	})
	require.NoError(t, err)
	second, err := coord.RecordInbound(ctx, ledger.InboundRequest{
		Lines:      []ledger.InboundLine{{ItemID: item, Quantity: 3, LocationID: loc}},
		OrderRef:   "PO-second",
		ReceivedAt: day(2),
	})
	require.NoError(t, err)

	batches, byBatch, err := st.ListInboundBatches(ctx)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, second, batches[0].ID)
	assert.Equal(t, first, batches[1].ID)
	assert.Equal(t, "PO-second", batches[0].OrderRef)

	require.Len(t, byBatch[first], 1)
	assert.Equal(t, int64(2), byBatch[first][0].Quantity)
	require.Len(t, byBatch[second], 1)
	assert.Equal(t, int64(3), byBatch[second][0].Quantity)
}

func TestWithTx_ErrorRollsBackEverything(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	item := seedItem(t, st, "tx part")
	loc := seedLocation(t, st, "R1", "A", "01")

	sentinel := assert.AnError
	err := st.WithTx(ctx, func(tx ledger.Tx) error {
		line := ledger.MovementLine{ItemID: item, Quantity: 5, LocationID: loc}
		if _, err := tx.InsertInboundBatch(ctx, ledger.InboundBatch{ReceivedAt: day(1)}, []ledger.MovementLine{line}); err != nil {
			return err
		}
		if err := tx.AdjustItemQuantity(ctx, item, 5, day(1)); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	lines, err := st.ItemLines(ctx, item)
	require.NoError(t, err)
	assert.Empty(t, lines)

	got, err := st.GetItem(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.TotalQuantity)
}

func TestAdjustItemQuantity_NegativeCacheRejected(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	item := seedItem(t, st, "guarded")

	err := st.WithTx(ctx, func(tx ledger.Tx) error {
		return tx.AdjustItemQuantity(ctx, item, -1, day(1))
	})
	assert.ErrorIs(t, err, ledger.ErrConsistency)
}
