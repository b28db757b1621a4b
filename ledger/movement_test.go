package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/inventory-engine/catalog"
	"github.com/warp/inventory-engine/ledger"
	memstore "github.com/warp/inventory-engine/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newEngine(t *testing.T) (*memstore.Memory, *ledger.Coordinator) {
	t.Helper()
	m := memstore.NewMemory()
	return m, ledger.NewCoordinator(m)
}

func seedItem(t *testing.T, m *memstore.Memory, name string) catalog.ItemID {
	t.Helper()
	id, err := m.CreateItem(context.Background(), catalog.Item{Name: name})
	require.NoError(t, err)
	return id
}

func seedLocation(t *testing.T, m *memstore.Memory, room, rack, bin string) catalog.LocationID {
	t.Helper()
	id, err := m.CreateLocation(context.Background(), catalog.Location{Room: room, Rack: rack, Bin: bin})
	require.NoError(t, err)
	return id
}

func day(d int) time.Time {
	return time.Date(2025, time.March, d, 10, 0, 0, 0, time.UTC)
}

func receive(t *testing.T, c *ledger.Coordinator, item catalog.ItemID, qty int64, loc catalog.LocationID, at time.Time) ledger.BatchID {
	t.Helper()
	id, err := c.RecordInbound(context.Background(), ledger.InboundRequest{
		Lines:      []ledger.InboundLine{{ItemID: item, Quantity: qty, LocationID: loc}},
		ReceivedAt: at,
	})
	require.NoError(t, err)
	return id
}

func netBalance(t *testing.T, m *memstore.Memory, item catalog.ItemID, loc catalog.LocationID) int64 {
	t.Helper()
	calc := &ledger.BalanceCalculator{Reader: m}
	n, err := calc.NetBalance(context.Background(), item, loc)
	require.NoError(t, err)
	return n
}

// requireCacheConsistent asserts the invariant that the cached item total
// equals the ledger sum across all locations.
func requireCacheConsistent(t *testing.T, m *memstore.Memory, item catalog.ItemID) {
	t.Helper()
	got, err := m.GetItem(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, netBalance(t, m, item, 0), got.TotalQuantity,
		"cached total must equal the ledger sum")
}

// =============================================================================
// INBOUND
// =============================================================================

func TestRecordInbound_WritesLinesAndCache(t *testing.T) {
	m, c := newEngine(t)
	item := seedItem(t, m, "M6 bolt")
	loc := seedLocation(t, m, "R1", "A", "01")

	batchID, err := c.RecordInbound(context.Background(), ledger.InboundRequest{
		Lines: []ledger.InboundLine{
			{ItemID: item, Quantity: 40, LocationID: loc},
		},
		OrderRef:    "PO-1001",
		DeliveryRef: "DLV-7",
		ReceivedAt:  day(1),
	})
	require.NoError(t, err)
	assert.Greater(t, int64(batchID), int64(0))

	assert.Equal(t, int64(40), netBalance(t, m, item, 0))
	assert.Equal(t, int64(40), netBalance(t, m, item, loc))
	requireCacheConsistent(t, m, item)

	got, err := m.GetItem(context.Background(), item)
	require.NoError(t, err)
	assert.False(t, got.QuantityChangedAt.IsZero(), "quantity change must be stamped")
}

func TestRecordInbound_Validation(t *testing.T) {
	m, c := newEngine(t)
	item := seedItem(t, m, "washer")
	loc := seedLocation(t, m, "R1", "A", "01")

	cases := []struct {
		name  string
		lines []ledger.InboundLine
	}{
		{"empty line list", nil},
		{"zero item id", []ledger.InboundLine{{ItemID: 0, Quantity: 1, LocationID: loc}}},
		{"zero amount", []ledger.InboundLine{{ItemID: item, Quantity: 0, LocationID: loc}}},
		{"negative amount", []ledger.InboundLine{{ItemID: item, Quantity: -5, LocationID: loc}}},
		{"zero location", []ledger.InboundLine{{ItemID: item, Quantity: 1, LocationID: 0}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.RecordInbound(context.Background(), ledger.InboundRequest{
				Lines:      tc.lines,
				ReceivedAt: day(1),
			})
			assert.ErrorIs(t, err, ledger.ErrValidation)
		})
	}

	// Nothing may have been written.
	assert.Equal(t, int64(0), netBalance(t, m, item, 0))
	requireCacheConsistent(t, m, item)
}

func TestRecordInbound_ReportsAllMissingIDs(t *testing.T) {
	m, c := newEngine(t)
	item := seedItem(t, m, "nut")
	loc := seedLocation(t, m, "R1", "A", "01")

	_, err := c.RecordInbound(context.Background(), ledger.InboundRequest{
		Lines: []ledger.InboundLine{
			{ItemID: item, Quantity: 1, LocationID: loc},
			{ItemID: 98, Quantity: 1, LocationID: 77},
			{ItemID: 99, Quantity: 1, LocationID: loc},
		},
		ReceivedAt: day(1),
	})
	require.Error(t, err)

	var nf *ledger.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.ElementsMatch(t, []catalog.ItemID{98, 99}, nf.ItemIDs)
	assert.ElementsMatch(t, []catalog.LocationID{77}, nf.LocationIDs)

	assert.Equal(t, int64(0), netBalance(t, m, item, 0), "failed inbound must leave zero trace")
}

func TestRecordInbound_DuplicateIdempotencyKey(t *testing.T) {
	m, c := newEngine(t)
	item := seedItem(t, m, "screw")
	loc := seedLocation(t, m, "R1", "A", "01")

	req := ledger.InboundRequest{
		Lines:          []ledger.InboundLine{{ItemID: item, Quantity: 5, LocationID: loc}},
		ReceivedAt:     day(1),
		IdempotencyKey: "retry-123",
	}

	_, err := c.RecordInbound(context.Background(), req)
	require.NoError(t, err)

	_, err = c.RecordInbound(context.Background(), req)
	assert.ErrorIs(t, err, ledger.ErrDuplicateIdempotencyKey)
	assert.Equal(t, int64(5), netBalance(t, m, item, 0), "retry must not double-book")
}

// =============================================================================
// OUTBOUND
// =============================================================================

func TestRecordOutbound_FIFOAcrossLocations(t *testing.T) {
	// GIVEN: 5 received day 1 at L1, 5 received day 2 at L2
	// WHEN: issuing 7
	// THEN: 5 drawn from L1, 2 from L2
	m, c := newEngine(t)
	item := seedItem(t, m, "bearing")
	l1 := seedLocation(t, m, "R1", "A", "01")
	l2 := seedLocation(t, m, "R1", "A", "02")

	receive(t, c, item, 5, l1, day(1))
	receive(t, c, item, 5, l2, day(2))

	_, err := c.RecordOutbound(context.Background(), ledger.OutboundRequest{
		Lines:    []ledger.OutboundLine{{ItemID: item, Quantity: 7}},
		Reason:   "production order 42",
		IssuedAt: day(3),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(0), netBalance(t, m, item, l1))
	assert.Equal(t, int64(3), netBalance(t, m, item, l2))
	assert.Equal(t, int64(3), netBalance(t, m, item, 0))
	requireCacheConsistent(t, m, item)
}

func TestRecordOutbound_SplitAllocation(t *testing.T) {
	// L1=3 (oldest), L2=4, L3=2 (newest)
	m, c := newEngine(t)
	item := seedItem(t, m, "gasket")
	l1 := seedLocation(t, m, "R1", "A", "01")
	l2 := seedLocation(t, m, "R1", "A", "02")
	l3 := seedLocation(t, m, "R1", "A", "03")

	receive(t, c, item, 3, l1, day(1))
	receive(t, c, item, 4, l2, day(2))
	receive(t, c, item, 2, l3, day(3))

	_, err := c.RecordOutbound(context.Background(), ledger.OutboundRequest{
		Lines:    []ledger.OutboundLine{{ItemID: item, Quantity: 6}},
		IssuedAt: day(4),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(0), netBalance(t, m, item, l1))
	assert.Equal(t, int64(1), netBalance(t, m, item, l2))
	assert.Equal(t, int64(2), netBalance(t, m, item, l3), "newest location stays untouched")
	requireCacheConsistent(t, m, item)
}

func TestRecordOutbound_SplitDrainsEverything(t *testing.T) {
	m, c := newEngine(t)
	item := seedItem(t, m, "gasket")
	l1 := seedLocation(t, m, "R1", "A", "01")
	l2 := seedLocation(t, m, "R1", "A", "02")
	l3 := seedLocation(t, m, "R1", "A", "03")

	receive(t, c, item, 3, l1, day(1))
	receive(t, c, item, 4, l2, day(2))
	receive(t, c, item, 2, l3, day(3))

	_, err := c.RecordOutbound(context.Background(), ledger.OutboundRequest{
		Lines:    []ledger.OutboundLine{{ItemID: item, Quantity: 9}},
		IssuedAt: day(4),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(0), netBalance(t, m, item, 0))
	for _, loc := range []catalog.LocationID{l1, l2, l3} {
		assert.Equal(t, int64(0), netBalance(t, m, item, loc))
	}
	requireCacheConsistent(t, m, item)
}

func TestRecordOutbound_InsufficientStockIsAllOrNothing(t *testing.T) {
	m, c := newEngine(t)
	item := seedItem(t, m, "o-ring")
	loc := seedLocation(t, m, "R1", "A", "01")

	receive(t, c, item, 10, loc, day(1))

	_, err := c.RecordOutbound(context.Background(), ledger.OutboundRequest{
		Lines:    []ledger.OutboundLine{{ItemID: item, Quantity: 11}},
		IssuedAt: day(2),
	})
	require.Error(t, err)

	var short *ledger.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, item, short.ItemID)
	assert.Equal(t, int64(11), short.Requested)
	assert.Equal(t, int64(10), short.Available)

	assert.Equal(t, int64(10), netBalance(t, m, item, 0), "failed issue must leave balances unchanged")
	requireCacheConsistent(t, m, item)
}

func TestRecordOutbound_MultiLineShortfallAbortsWholeBatch(t *testing.T) {
	m, c := newEngine(t)
	ok := seedItem(t, m, "plenty")
	short := seedItem(t, m, "scarce")
	loc := seedLocation(t, m, "R1", "A", "01")

	receive(t, c, ok, 100, loc, day(1))
	receive(t, c, short, 2, loc, day(1))

	_, err := c.RecordOutbound(context.Background(), ledger.OutboundRequest{
		Lines: []ledger.OutboundLine{
			{ItemID: ok, Quantity: 10},
			{ItemID: short, Quantity: 5},
		},
		IssuedAt: day(2),
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)

	// The passing line must not have been written either.
	assert.Equal(t, int64(100), netBalance(t, m, ok, 0))
	assert.Equal(t, int64(2), netBalance(t, m, short, 0))
	requireCacheConsistent(t, m, ok)
	requireCacheConsistent(t, m, short)
}

func TestRecordOutbound_SameItemTwiceSharesOneSnapshot(t *testing.T) {
	// Two positions for the same item in one batch: the second sees what
	// the first consumed, and a joint overdraw aborts everything.
	m, c := newEngine(t)
	item := seedItem(t, m, "widget")
	loc := seedLocation(t, m, "R1", "A", "01")

	receive(t, c, item, 10, loc, day(1))

	_, err := c.RecordOutbound(context.Background(), ledger.OutboundRequest{
		Lines: []ledger.OutboundLine{
			{ItemID: item, Quantity: 6},
			{ItemID: item, Quantity: 6},
		},
		IssuedAt: day(2),
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)
	assert.Equal(t, int64(10), netBalance(t, m, item, 0))
	requireCacheConsistent(t, m, item)
}

func TestRecordOutbound_UnknownItem(t *testing.T) {
	_, c := newEngine(t)

	_, err := c.RecordOutbound(context.Background(), ledger.OutboundRequest{
		Lines:    []ledger.OutboundLine{{ItemID: 42, Quantity: 1}},
		IssuedAt: day(1),
	})

	var nf *ledger.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, []catalog.ItemID{42}, nf.ItemIDs)
}

func TestRecordOutbound_Validation(t *testing.T) {
	m, c := newEngine(t)
	item := seedItem(t, m, "thing")

	cases := []struct {
		name  string
		lines []ledger.OutboundLine
	}{
		{"empty line list", nil},
		{"zero item id", []ledger.OutboundLine{{ItemID: 0, Quantity: 1}}},
		{"zero amount", []ledger.OutboundLine{{ItemID: item, Quantity: 0}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.RecordOutbound(context.Background(), ledger.OutboundRequest{
				Lines:    tc.lines,
				IssuedAt: day(1),
			})
			assert.ErrorIs(t, err, ledger.ErrValidation)
		})
	}
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestConcurrentOutbound_ExactlyOneSucceeds(t *testing.T) {
	// Two issues of 7 against a stock of 10: individually fine, jointly
	// an overdraw. Exactly one must succeed.
	m, c := newEngine(t)
	item := seedItem(t, m, "contended")
	loc := seedLocation(t, m, "R1", "A", "01")

	receive(t, c, item, 10, loc, day(1))

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.RecordOutbound(context.Background(), ledger.OutboundRequest{
				Lines:    []ledger.OutboundLine{{ItemID: item, Quantity: 7}},
				IssuedAt: day(2),
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, shortfalls int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ledger.ErrInsufficientStock):
			shortfalls++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes, "exactly one issue must win")
	assert.Equal(t, 1, shortfalls, "the loser must see the shortfall")
	assert.Equal(t, int64(3), netBalance(t, m, item, 0))
	requireCacheConsistent(t, m, item)
}

func TestConcurrentMovements_ManyItemsStayConsistent(t *testing.T) {
	m, c := newEngine(t)
	loc := seedLocation(t, m, "R1", "A", "01")

	items := make([]catalog.ItemID, 4)
	for i := range items {
		items[i] = seedItem(t, m, "part")
		receive(t, c, items[i], 50, loc, day(1))
	}

	var wg sync.WaitGroup
	for _, item := range items {
		for j := 0; j < 5; j++ {
			wg.Add(1)
			go func(id catalog.ItemID) {
				defer wg.Done()
				_, _ = c.RecordOutbound(context.Background(), ledger.OutboundRequest{
					Lines:    []ledger.OutboundLine{{ItemID: id, Quantity: 8}},
					IssuedAt: day(2),
				})
			}(item)
		}
	}
	wg.Wait()

	for _, item := range items {
		requireCacheConsistent(t, m, item)
		assert.GreaterOrEqual(t, netBalance(t, m, item, 0), int64(0))
	}
}

// =============================================================================
// EXACTLY-ONE-PARENT
// =============================================================================

func TestMovementLine_ParentInvariant(t *testing.T) {
	valid := ledger.MovementLine{ItemID: 1, Quantity: 2, Batch: ledger.InboundRef(3)}
	assert.NoError(t, valid.Check())

	cases := []struct {
		name string
		line ledger.MovementLine
	}{
		{"no parent", ledger.MovementLine{ItemID: 1, Quantity: 2}},
		{"bad kind", ledger.MovementLine{ItemID: 1, Quantity: 2, Batch: ledger.BatchRef{Kind: "both", ID: 3}}},
		{"zero batch id", ledger.MovementLine{ItemID: 1, Quantity: 2, Batch: ledger.BatchRef{Kind: ledger.KindInbound}}},
		{"zero quantity", ledger.MovementLine{ItemID: 1, Quantity: 0, Batch: ledger.OutboundRef(3)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.line.Check(), ledger.ErrConsistency)
		})
	}
}
