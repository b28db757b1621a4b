// Package store provides an in-memory Store implementation (testing/dev).
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/inventory-engine/catalog"
	"github.com/warp/inventory-engine/ledger"
)

// =============================================================================
// MEMORY STORE - ledger + catalog in maps
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	items     map[catalog.ItemID]catalog.Item
	locations map[catalog.LocationID]catalog.Location
	itemTypes map[catalog.ItemTypeID]catalog.ItemType

	inbound  map[ledger.BatchID]ledger.InboundBatch
	outbound map[ledger.BatchID]ledger.OutboundBatch
	lines    []ledger.ItemLine // insertion order

	idempotency map[string]bool

	nextItem     int64
	nextLocation int64
	nextType     int64
	nextBatch    int64
	nextLine     int64
}

func NewMemory() *Memory {
	return &Memory{
		items:       make(map[catalog.ItemID]catalog.Item),
		locations:   make(map[catalog.LocationID]catalog.Location),
		itemTypes:   make(map[catalog.ItemTypeID]catalog.ItemType),
		inbound:     make(map[ledger.BatchID]ledger.InboundBatch),
		outbound:    make(map[ledger.BatchID]ledger.OutboundBatch),
		idempotency: make(map[string]bool),
	}
}

// =============================================================================
// LEDGER READS (ledger.Reader)
// =============================================================================

func (m *Memory) ItemLines(_ context.Context, itemID catalog.ItemID) ([]ledger.ItemLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.itemLinesLocked(itemID), nil
}

func (m *Memory) itemLinesLocked(itemID catalog.ItemID) []ledger.ItemLine {
	var result []ledger.ItemLine
	for _, il := range m.lines {
		if il.Line.ItemID == itemID {
			result = append(result, il)
		}
	}
	return result
}

func (m *Memory) GetItems(_ context.Context, ids []catalog.ItemID) (map[catalog.ItemID]catalog.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getItemsLocked(ids), nil
}

func (m *Memory) getItemsLocked(ids []catalog.ItemID) map[catalog.ItemID]catalog.Item {
	result := make(map[catalog.ItemID]catalog.Item, len(ids))
	for _, id := range ids {
		if item, ok := m.items[id]; ok {
			result[id] = item
		}
	}
	return result
}

func (m *Memory) GetLocations(_ context.Context, ids []catalog.LocationID) (map[catalog.LocationID]catalog.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocationsLocked(ids), nil
}

func (m *Memory) getLocationsLocked(ids []catalog.LocationID) map[catalog.LocationID]catalog.Location {
	result := make(map[catalog.LocationID]catalog.Location, len(ids))
	for _, id := range ids {
		if loc, ok := m.locations[id]; ok {
			result[id] = loc
		}
	}
	return result
}

// =============================================================================
// TRANSACTIONS - snapshot on entry, restore on error
// =============================================================================

// WithTx simulates a serializable transaction: the whole store is locked
// for the duration, and a failed callback restores the entry snapshot.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	items       map[catalog.ItemID]catalog.Item
	lines       []ledger.ItemLine
	inbound     map[ledger.BatchID]ledger.InboundBatch
	outbound    map[ledger.BatchID]ledger.OutboundBatch
	idempotency map[string]bool
	nextBatch   int64
	nextLine    int64
}

func (m *Memory) snapshot() memorySnapshot {
	items := make(map[catalog.ItemID]catalog.Item, len(m.items))
	for k, v := range m.items {
		items[k] = v
	}
	inbound := make(map[ledger.BatchID]ledger.InboundBatch, len(m.inbound))
	for k, v := range m.inbound {
		inbound[k] = v
	}
	outbound := make(map[ledger.BatchID]ledger.OutboundBatch, len(m.outbound))
	for k, v := range m.outbound {
		outbound[k] = v
	}
	idem := make(map[string]bool, len(m.idempotency))
	for k, v := range m.idempotency {
		idem[k] = v
	}
	return memorySnapshot{
		items:       items,
		lines:       append([]ledger.ItemLine{}, m.lines...),
		inbound:     inbound,
		outbound:    outbound,
		idempotency: idem,
		nextBatch:   m.nextBatch,
		nextLine:    m.nextLine,
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.items = s.items
	m.lines = s.lines
	m.inbound = s.inbound
	m.outbound = s.outbound
	m.idempotency = s.idempotency
	m.nextBatch = s.nextBatch
	m.nextLine = s.nextLine
}

// txView exposes the locked store as a ledger.Tx. All methods assume the
// parent's mutex is held by WithTx.
type txView struct {
	m *Memory
}

func (tv *txView) ItemLines(_ context.Context, itemID catalog.ItemID) ([]ledger.ItemLine, error) {
	return tv.m.itemLinesLocked(itemID), nil
}

func (tv *txView) GetItems(_ context.Context, ids []catalog.ItemID) (map[catalog.ItemID]catalog.Item, error) {
	return tv.m.getItemsLocked(ids), nil
}

func (tv *txView) GetLocations(_ context.Context, ids []catalog.LocationID) (map[catalog.LocationID]catalog.Location, error) {
	return tv.m.getLocationsLocked(ids), nil
}

func (tv *txView) InsertInboundBatch(_ context.Context, b ledger.InboundBatch, lines []ledger.MovementLine) (ledger.BatchID, error) {
	m := tv.m
	if b.IdempotencyKey != "" && m.idempotency[b.IdempotencyKey] {
		return 0, ledger.ErrDuplicateIdempotencyKey
	}

	m.nextBatch++
	b.ID = ledger.BatchID(m.nextBatch)

	for _, line := range lines {
		line.Batch = ledger.InboundRef(b.ID)
		m.nextLine++
		line.ID = ledger.LineID(m.nextLine)
		if err := line.Check(); err != nil {
			return 0, err
		}
		m.lines = append(m.lines, ledger.ItemLine{Line: line, EffectiveAt: b.ReceivedAt})
	}

	m.inbound[b.ID] = b
	if b.IdempotencyKey != "" {
		m.idempotency[b.IdempotencyKey] = true
	}
	return b.ID, nil
}

func (tv *txView) InsertOutboundBatch(_ context.Context, b ledger.OutboundBatch, lines []ledger.MovementLine) (ledger.BatchID, error) {
	m := tv.m
	if b.IdempotencyKey != "" && m.idempotency[b.IdempotencyKey] {
		return 0, ledger.ErrDuplicateIdempotencyKey
	}

	m.nextBatch++
	b.ID = ledger.BatchID(m.nextBatch)

	for _, line := range lines {
		line.Batch = ledger.OutboundRef(b.ID)
		m.nextLine++
		line.ID = ledger.LineID(m.nextLine)
		if err := line.Check(); err != nil {
			return 0, err
		}
		m.lines = append(m.lines, ledger.ItemLine{Line: line, EffectiveAt: b.IssuedAt})
	}

	m.outbound[b.ID] = b
	if b.IdempotencyKey != "" {
		m.idempotency[b.IdempotencyKey] = true
	}
	return b.ID, nil
}

func (tv *txView) AdjustItemQuantity(_ context.Context, id catalog.ItemID, delta int64, at time.Time) error {
	m := tv.m
	item, ok := m.items[id]
	if !ok {
		return catalog.ErrNotFound
	}
	next := item.TotalQuantity + delta
	if next < 0 {
		return &ledger.ConsistencyError{Rule: "non-negative-cache", Detail: "cached total would go negative"}
	}
	item.TotalQuantity = next
	item.QuantityChangedAt = at
	m.items[id] = item
	return nil
}

// =============================================================================
// CATALOG CRUD (catalog.Store)
// =============================================================================

func (m *Memory) CreateItem(_ context.Context, item catalog.Item) (catalog.ItemID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextItem++
	item.ID = catalog.ItemID(m.nextItem)
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	m.items[item.ID] = item
	return item.ID, nil
}

func (m *Memory) GetItem(_ context.Context, id catalog.ItemID) (catalog.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[id]
	if !ok {
		return catalog.Item{}, catalog.ErrNotFound
	}
	return item, nil
}

// UpdateItem edits non-quantity fields. The cached total and its stamp are
// owned by the movement coordinator and deliberately preserved here.
func (m *Memory) UpdateItem(_ context.Context, item catalog.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.items[item.ID]
	if !ok {
		return catalog.ErrNotFound
	}
	existing.Name = item.Name
	existing.Description = item.Description
	existing.TypeID = item.TypeID
	existing.CriticalQuantity = item.CriticalQuantity
	m.items[item.ID] = existing
	return nil
}

func (m *Memory) DeleteItem(_ context.Context, id catalog.ItemID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return catalog.ErrNotFound
	}
	for _, il := range m.lines {
		if il.Line.ItemID == id {
			return catalog.ErrInUse
		}
	}
	delete(m.items, id)
	return nil
}

func (m *Memory) ListItems(_ context.Context, f catalog.ItemFilter) ([]catalog.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []catalog.Item
	for _, item := range m.items {
		if f.TypeID != 0 && item.TypeID != f.TypeID {
			continue
		}
		if f.Query != "" && !strings.Contains(strings.ToLower(item.Name), strings.ToLower(f.Query)) {
			continue
		}
		result = append(result, item)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) CreateLocation(_ context.Context, loc catalog.Location) (catalog.LocationID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.locations {
		if other.Room == loc.Room && other.Rack == loc.Rack && other.Bin == loc.Bin {
			return 0, catalog.ErrDuplicateLocation
		}
	}
	m.nextLocation++
	loc.ID = catalog.LocationID(m.nextLocation)
	if loc.CreatedAt.IsZero() {
		loc.CreatedAt = time.Now().UTC()
	}
	m.locations[loc.ID] = loc
	return loc.ID, nil
}

func (m *Memory) GetLocation(_ context.Context, id catalog.LocationID) (catalog.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loc, ok := m.locations[id]
	if !ok {
		return catalog.Location{}, catalog.ErrNotFound
	}
	return loc, nil
}

func (m *Memory) UpdateLocation(_ context.Context, loc catalog.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locations[loc.ID]; !ok {
		return catalog.ErrNotFound
	}
	for id, other := range m.locations {
		if id != loc.ID && other.Room == loc.Room && other.Rack == loc.Rack && other.Bin == loc.Bin {
			return catalog.ErrDuplicateLocation
		}
	}
	existing := m.locations[loc.ID]
	existing.Room = loc.Room
	existing.Rack = loc.Rack
	existing.Bin = loc.Bin
	m.locations[loc.ID] = existing
	return nil
}

func (m *Memory) DeleteLocation(_ context.Context, id catalog.LocationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locations[id]; !ok {
		return catalog.ErrNotFound
	}
	for _, il := range m.lines {
		if il.Line.LocationID == id {
			return catalog.ErrInUse
		}
	}
	delete(m.locations, id)
	return nil
}

func (m *Memory) ListLocations(_ context.Context, f catalog.LocationFilter) ([]catalog.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []catalog.Location
	for _, loc := range m.locations {
		if !matchLocation(loc, f) {
			continue
		}
		result = append(result, loc)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Room != b.Room {
			return a.Room < b.Room
		}
		if a.Rack != b.Rack {
			return a.Rack < b.Rack
		}
		return a.Bin < b.Bin
	})
	return result, nil
}

func matchLocation(loc catalog.Location, f catalog.LocationFilter) bool {
	if f.Room != "" && loc.Room != f.Room {
		return false
	}
	if f.Rack != "" && loc.Rack != f.Rack {
		return false
	}
	if f.Bin != "" && loc.Bin != f.Bin {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(loc.Room), q) &&
			!strings.Contains(strings.ToLower(loc.Rack), q) &&
			!strings.Contains(strings.ToLower(loc.Bin), q) {
			return false
		}
	}
	return true
}

func (m *Memory) CreateItemType(_ context.Context, t catalog.ItemType) (catalog.ItemTypeID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextType++
	t.ID = catalog.ItemTypeID(m.nextType)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	m.itemTypes[t.ID] = t
	return t.ID, nil
}

func (m *Memory) ListItemTypes(_ context.Context) ([]catalog.ItemType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]catalog.ItemType, 0, len(m.itemTypes))
	for _, t := range m.itemTypes {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) DeleteItemType(_ context.Context, id catalog.ItemTypeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.itemTypes[id]; !ok {
		return catalog.ErrNotFound
	}
	for _, item := range m.items {
		if item.TypeID == id {
			return catalog.ErrInUse
		}
	}
	delete(m.itemTypes, id)
	return nil
}

// =============================================================================
// MOVEMENT LISTINGS - read models for the API
// =============================================================================

func (m *Memory) ListInboundBatches(_ context.Context) ([]ledger.InboundBatch, map[ledger.BatchID][]ledger.MovementLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	batches := make([]ledger.InboundBatch, 0, len(m.inbound))
	for _, b := range m.inbound {
		batches = append(batches, b)
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].ReceivedAt.After(batches[j].ReceivedAt) })

	return batches, m.linesByBatchLocked(ledger.KindInbound), nil
}

func (m *Memory) ListOutboundBatches(_ context.Context) ([]ledger.OutboundBatch, map[ledger.BatchID][]ledger.MovementLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	batches := make([]ledger.OutboundBatch, 0, len(m.outbound))
	for _, b := range m.outbound {
		batches = append(batches, b)
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].IssuedAt.After(batches[j].IssuedAt) })

	return batches, m.linesByBatchLocked(ledger.KindOutbound), nil
}

func (m *Memory) linesByBatchLocked(kind ledger.BatchKind) map[ledger.BatchID][]ledger.MovementLine {
	byBatch := make(map[ledger.BatchID][]ledger.MovementLine)
	for _, il := range m.lines {
		if il.Line.Batch.Kind == kind {
			byBatch[il.Line.Batch.ID] = append(byBatch[il.Line.Batch.ID], il.Line)
		}
	}
	return byBatch
}
