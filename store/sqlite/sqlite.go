/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements ledger.Store, ledger.BatchLister and catalog.Store on a single
  embedded database. The same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statements touch the movement tables. The only
  non-append write the engine performs is the cached item total, executed
  inside the same SQL transaction as the batch insert.

EXACTLY-ONE-PARENT:
  movement_lines carries two nullable batch columns plus a CHECK constraint
  requiring exactly one of them to be set. The domain-side BatchRef sum
  type makes the invalid states unreachable from Go; the constraint guards
  against everything else.

KEY TABLES:
  item_types, items, locations:      catalog
  inbound_batches, outbound_batches: movement batches
  movement_lines:                    the ledger

REFERENTIAL SAFETY:
  Foreign keys are ON (query parameter) and deletes of catalog rows that
  ledger lines reference are rejected, surfaced as catalog.ErrInUse.

WAL MODE:
  Opened with WAL for better concurrency: readers don't block, one writer
  at a time, better crash recovery.

CONCURRENCY:
  sync.RWMutex serializes writers within the process; the coordinator's
  per-item locks provide the finer-grained exclusion the availability
  checks need.

USAGE:
  st, err := sqlite.New("./data/inventory.db")
  defer st.Close()
  coord := ledger.NewCoordinator(st)

SEE ALSO:
  - ledger/store.go: interface definitions
  - ledger/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/inventory-engine/catalog"
	"github.com/warp/inventory-engine/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	st := &Store{db: db}
	if err := st.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return st, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS item_types (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		type_id INTEGER REFERENCES item_types(id),
		total_quantity INTEGER NOT NULL DEFAULT 0 CHECK (total_quantity >= 0),
		critical_quantity INTEGER,
		quantity_changed_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_type ON items(type_id);

	CREATE TABLE IF NOT EXISTS locations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room TEXT NOT NULL,
		rack TEXT NOT NULL,
		bin TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- The address triple is the location's identity.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_locations_room_rack_bin
		ON locations(room, rack, bin);

	CREATE TABLE IF NOT EXISTS inbound_batches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_ref TEXT NOT NULL DEFAULT '',
		delivery_ref TEXT NOT NULL DEFAULT '',
		received_at TEXT NOT NULL,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS outbound_batches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reason TEXT NOT NULL DEFAULT '',
		issued_at TEXT NOT NULL,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	-- Append-only ledger. Exactly one parent batch per line.
	CREATE TABLE IF NOT EXISTS movement_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id INTEGER NOT NULL REFERENCES items(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		inbound_batch_id INTEGER REFERENCES inbound_batches(id),
		outbound_batch_id INTEGER REFERENCES outbound_batches(id),
		location_id INTEGER REFERENCES locations(id),
		unit_cost TEXT,
		CHECK ((inbound_batch_id IS NULL) <> (outbound_batch_id IS NULL))
	);

	CREATE INDEX IF NOT EXISTS idx_lines_item ON movement_lines(item_id);
	CREATE INDEX IF NOT EXISTS idx_lines_location ON movement_lines(location_id);
	CREATE INDEX IF NOT EXISTS idx_lines_inbound ON movement_lines(inbound_batch_id);
	CREATE INDEX IF NOT EXISTS idx_lines_outbound ON movement_lines(outbound_batch_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// LEDGER READS (ledger.Reader)
// =============================================================================

func (s *Store) ItemLines(ctx context.Context, itemID catalog.ItemID) ([]ledger.ItemLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return itemLines(ctx, s.db, itemID)
}

func itemLines(ctx context.Context, db dbtx, itemID catalog.ItemID) ([]ledger.ItemLine, error) {
	query := `
		SELECT l.id, l.item_id, l.quantity,
		       l.inbound_batch_id, l.outbound_batch_id,
		       COALESCE(l.location_id, 0), COALESCE(l.unit_cost, ''),
		       COALESCE(ib.received_at, ob.issued_at)
		FROM movement_lines l
		LEFT JOIN inbound_batches ib ON ib.id = l.inbound_batch_id
		LEFT JOIN outbound_batches ob ON ob.id = l.outbound_batch_id
		WHERE l.item_id = ?
		ORDER BY l.id ASC
	`

	rows, err := db.QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load item lines: %w", err)
	}
	defer rows.Close()

	var result []ledger.ItemLine
	for rows.Next() {
		var (
			il          ledger.ItemLine
			inboundID   sql.NullInt64
			outboundID  sql.NullInt64
			unitCost    string
			effectiveAt string
		)
		if err := rows.Scan(&il.Line.ID, &il.Line.ItemID, &il.Line.Quantity,
			&inboundID, &outboundID, &il.Line.LocationID, &unitCost, &effectiveAt); err != nil {
			return nil, err
		}
		if inboundID.Valid {
			il.Line.Batch = ledger.InboundRef(ledger.BatchID(inboundID.Int64))
		} else {
			il.Line.Batch = ledger.OutboundRef(ledger.BatchID(outboundID.Int64))
		}
		if unitCost != "" {
			il.Line.UnitCost, _ = decimal.NewFromString(unitCost)
		}
		il.EffectiveAt, _ = time.Parse(time.RFC3339, effectiveAt)
		result = append(result, il)
	}
	return result, rows.Err()
}

func (s *Store) GetItems(ctx context.Context, ids []catalog.ItemID) (map[catalog.ItemID]catalog.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getItems(ctx, s.db, ids)
}

func getItems(ctx context.Context, db dbtx, ids []catalog.ItemID) (map[catalog.ItemID]catalog.Item, error) {
	result := make(map[catalog.ItemID]catalog.Item, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `
		SELECT id, name, description, COALESCE(type_id, 0), total_quantity,
		       critical_quantity, COALESCE(quantity_changed_at, ''), created_at
		FROM items WHERE id IN (` + placeholders(len(ids)) + `)`

	rows, err := db.QueryContext(ctx, query, idArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		result[item.ID] = item
	}
	return result, rows.Err()
}

func (s *Store) GetLocations(ctx context.Context, ids []catalog.LocationID) (map[catalog.LocationID]catalog.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getLocations(ctx, s.db, ids)
}

func getLocations(ctx context.Context, db dbtx, ids []catalog.LocationID) (map[catalog.LocationID]catalog.Location, error) {
	result := make(map[catalog.LocationID]catalog.Location, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `SELECT id, room, rack, bin, created_at FROM locations
		WHERE id IN (` + placeholders(len(ids)) + `)`

	rows, err := db.QueryContext(ctx, query, idArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load locations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		result[loc.ID] = loc
	}
	return result, rows.Err()
}

// =============================================================================
// TRANSACTIONS (ledger.Store)
// =============================================================================

// WithTx runs fn inside a SQL transaction. A non-nil error from fn rolls
// everything back.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txView{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txView struct {
	tx *sql.Tx
}

func (tv *txView) ItemLines(ctx context.Context, itemID catalog.ItemID) ([]ledger.ItemLine, error) {
	return itemLines(ctx, tv.tx, itemID)
}

func (tv *txView) GetItems(ctx context.Context, ids []catalog.ItemID) (map[catalog.ItemID]catalog.Item, error) {
	return getItems(ctx, tv.tx, ids)
}

func (tv *txView) GetLocations(ctx context.Context, ids []catalog.LocationID) (map[catalog.LocationID]catalog.Location, error) {
	return getLocations(ctx, tv.tx, ids)
}

func (tv *txView) InsertInboundBatch(ctx context.Context, b ledger.InboundBatch, lines []ledger.MovementLine) (ledger.BatchID, error) {
	res, err := tv.tx.ExecContext(ctx, `
		INSERT INTO inbound_batches (order_ref, delivery_ref, received_at, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		b.OrderRef, b.DeliveryRef, b.ReceivedAt.UTC().Format(time.RFC3339),
		nullString(b.IdempotencyKey), b.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, mapConstraintError(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	batchID := ledger.BatchID(id)

	for _, line := range lines {
		line.Batch = ledger.InboundRef(batchID)
		if err := tv.insertLine(ctx, line); err != nil {
			return 0, err
		}
	}
	return batchID, nil
}

func (tv *txView) InsertOutboundBatch(ctx context.Context, b ledger.OutboundBatch, lines []ledger.MovementLine) (ledger.BatchID, error) {
	res, err := tv.tx.ExecContext(ctx, `
		INSERT INTO outbound_batches (reason, issued_at, idempotency_key, created_at)
		VALUES (?, ?, ?, ?)`,
		b.Reason, b.IssuedAt.UTC().Format(time.RFC3339),
		nullString(b.IdempotencyKey), b.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, mapConstraintError(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	batchID := ledger.BatchID(id)

	for _, line := range lines {
		line.Batch = ledger.OutboundRef(batchID)
		if err := tv.insertLine(ctx, line); err != nil {
			return 0, err
		}
	}
	return batchID, nil
}

func (tv *txView) insertLine(ctx context.Context, line ledger.MovementLine) error {
	if err := line.Check(); err != nil {
		return err
	}

	var inboundID, outboundID any
	if line.Batch.IsInbound() {
		inboundID = int64(line.Batch.ID)
	} else {
		outboundID = int64(line.Batch.ID)
	}

	var unitCost any
	if line.UnitCost.IsPositive() {
		unitCost = line.UnitCost.String()
	}

	var locationID any
	if line.LocationID > 0 {
		locationID = int64(line.LocationID)
	}

	_, err := tv.tx.ExecContext(ctx, `
		INSERT INTO movement_lines (item_id, quantity, inbound_batch_id, outbound_batch_id, location_id, unit_cost)
		VALUES (?, ?, ?, ?, ?, ?)`,
		line.ItemID, line.Quantity, inboundID, outboundID, locationID, unitCost)
	if err != nil {
		if isCheckConstraintError(err) {
			return &ledger.ConsistencyError{Rule: "movement-line", Detail: err.Error()}
		}
		return fmt.Errorf("failed to insert movement line: %w", err)
	}
	return nil
}

func (tv *txView) AdjustItemQuantity(ctx context.Context, id catalog.ItemID, delta int64, at time.Time) error {
	res, err := tv.tx.ExecContext(ctx, `
		UPDATE items
		SET total_quantity = total_quantity + ?, quantity_changed_at = ?
		WHERE id = ?`,
		delta, at.UTC().Format(time.RFC3339), id)
	if err != nil {
		if isCheckConstraintError(err) {
			return &ledger.ConsistencyError{Rule: "non-negative-cache", Detail: "cached total would go negative"}
		}
		return fmt.Errorf("failed to adjust item quantity: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// =============================================================================
// BATCH LISTINGS (ledger.BatchLister)
// =============================================================================

func (s *Store) ListInboundBatches(ctx context.Context) ([]ledger.InboundBatch, map[ledger.BatchID][]ledger.MovementLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_ref, delivery_ref, received_at, COALESCE(idempotency_key, ''), created_at
		FROM inbound_batches ORDER BY received_at DESC, id DESC`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var batches []ledger.InboundBatch
	for rows.Next() {
		var b ledger.InboundBatch
		var receivedAt, createdAt string
		if err := rows.Scan(&b.ID, &b.OrderRef, &b.DeliveryRef, &receivedAt, &b.IdempotencyKey, &createdAt); err != nil {
			return nil, nil, err
		}
		b.ReceivedAt, _ = time.Parse(time.RFC3339, receivedAt)
		b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	lines, err := s.linesByBatch(ctx, "inbound_batch_id", ledger.KindInbound)
	if err != nil {
		return nil, nil, err
	}
	return batches, lines, nil
}

func (s *Store) ListOutboundBatches(ctx context.Context) ([]ledger.OutboundBatch, map[ledger.BatchID][]ledger.MovementLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reason, issued_at, COALESCE(idempotency_key, ''), created_at
		FROM outbound_batches ORDER BY issued_at DESC, id DESC`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var batches []ledger.OutboundBatch
	for rows.Next() {
		var b ledger.OutboundBatch
		var issuedAt, createdAt string
		if err := rows.Scan(&b.ID, &b.Reason, &issuedAt, &b.IdempotencyKey, &createdAt); err != nil {
			return nil, nil, err
		}
		b.IssuedAt, _ = time.Parse(time.RFC3339, issuedAt)
		b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	lines, err := s.linesByBatch(ctx, "outbound_batch_id", ledger.KindOutbound)
	if err != nil {
		return nil, nil, err
	}
	return batches, lines, nil
}

func (s *Store) linesByBatch(ctx context.Context, column string, kind ledger.BatchKind) (map[ledger.BatchID][]ledger.MovementLine, error) {
	query := fmt.Sprintf(`
		SELECT id, item_id, quantity, %s, COALESCE(location_id, 0), COALESCE(unit_cost, '')
		FROM movement_lines WHERE %s IS NOT NULL ORDER BY id ASC`, column, column)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byBatch := make(map[ledger.BatchID][]ledger.MovementLine)
	for rows.Next() {
		var (
			line     ledger.MovementLine
			batchID  ledger.BatchID
			unitCost string
		)
		if err := rows.Scan(&line.ID, &line.ItemID, &line.Quantity, &batchID, &line.LocationID, &unitCost); err != nil {
			return nil, err
		}
		line.Batch = ledger.BatchRef{Kind: kind, ID: batchID}
		if unitCost != "" {
			line.UnitCost, _ = decimal.NewFromString(unitCost)
		}
		byBatch[batchID] = append(byBatch[batchID], line)
	}
	return byBatch, rows.Err()
}

// =============================================================================
// CATALOG: ITEMS (catalog.Store)
// =============================================================================

func (s *Store) CreateItem(ctx context.Context, item catalog.Item) (catalog.ItemID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO items (name, description, type_id, total_quantity, critical_quantity, created_at)
		VALUES (?, ?, ?, 0, ?, ?)`,
		item.Name, item.Description, nullID(int64(item.TypeID)),
		nullInt(item.CriticalQuantity), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to create item: %w", err)
	}
	id, err := res.LastInsertId()
	return catalog.ItemID(id), err
}

func (s *Store) GetItem(ctx context.Context, id catalog.ItemID) (catalog.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items, err := getItems(ctx, s.db, []catalog.ItemID{id})
	if err != nil {
		return catalog.Item{}, err
	}
	item, ok := items[id]
	if !ok {
		return catalog.Item{}, catalog.ErrNotFound
	}
	return item, nil
}

// UpdateItem edits non-quantity fields only; the cached total and its
// stamp belong to the movement coordinator.
func (s *Store) UpdateItem(ctx context.Context, item catalog.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE items SET name = ?, description = ?, type_id = ?, critical_quantity = ?
		WHERE id = ?`,
		item.Name, item.Description, nullID(int64(item.TypeID)), nullInt(item.CriticalQuantity), item.ID)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	return requireRow(res)
}

func (s *Store) DeleteItem(ctx context.Context, id catalog.ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if used, err := s.referenced(ctx, "item_id", int64(id)); err != nil {
		return err
	} else if used {
		return catalog.ErrInUse
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return requireRow(res)
}

func (s *Store) ListItems(ctx context.Context, f catalog.ItemFilter) ([]catalog.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, name, description, COALESCE(type_id, 0), total_quantity,
		       critical_quantity, COALESCE(quantity_changed_at, ''), created_at
		FROM items WHERE 1=1`
	var args []any
	if f.TypeID != 0 {
		query += ` AND type_id = ?`
		args = append(args, f.TypeID)
	}
	if f.Query != "" {
		query += ` AND name LIKE ?`
		args = append(args, "%"+f.Query+"%")
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var result []catalog.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

// =============================================================================
// CATALOG: LOCATIONS
// =============================================================================

func (s *Store) CreateLocation(ctx context.Context, loc catalog.Location) (catalog.LocationID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO locations (room, rack, bin, created_at) VALUES (?, ?, ?, ?)`,
		loc.Room, loc.Rack, loc.Bin, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, mapConstraintError(err)
	}
	id, err := res.LastInsertId()
	return catalog.LocationID(id), err
}

func (s *Store) GetLocation(ctx context.Context, id catalog.LocationID) (catalog.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	locs, err := getLocations(ctx, s.db, []catalog.LocationID{id})
	if err != nil {
		return catalog.Location{}, err
	}
	loc, ok := locs[id]
	if !ok {
		return catalog.Location{}, catalog.ErrNotFound
	}
	return loc, nil
}

func (s *Store) UpdateLocation(ctx context.Context, loc catalog.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE locations SET room = ?, rack = ?, bin = ? WHERE id = ?`,
		loc.Room, loc.Rack, loc.Bin, loc.ID)
	if err != nil {
		return mapConstraintError(err)
	}
	return requireRow(res)
}

func (s *Store) DeleteLocation(ctx context.Context, id catalog.LocationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if used, err := s.referenced(ctx, "location_id", int64(id)); err != nil {
		return err
	} else if used {
		return catalog.ErrInUse
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM locations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete location: %w", err)
	}
	return requireRow(res)
}

func (s *Store) ListLocations(ctx context.Context, f catalog.LocationFilter) ([]catalog.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, room, rack, bin, created_at FROM locations WHERE 1=1`
	var args []any
	if f.Room != "" {
		query += ` AND room = ?`
		args = append(args, f.Room)
	}
	if f.Rack != "" {
		query += ` AND rack = ?`
		args = append(args, f.Rack)
	}
	if f.Bin != "" {
		query += ` AND bin = ?`
		args = append(args, f.Bin)
	}
	if f.Query != "" {
		query += ` AND (room LIKE ? OR rack LIKE ? OR bin LIKE ?)`
		like := "%" + f.Query + "%"
		args = append(args, like, like, like)
	}
	query += ` ORDER BY room ASC, rack ASC, bin ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	defer rows.Close()

	var result []catalog.Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, loc)
	}
	return result, rows.Err()
}

// =============================================================================
// CATALOG: ITEM TYPES
// =============================================================================

func (s *Store) CreateItemType(ctx context.Context, t catalog.ItemType) (catalog.ItemTypeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO item_types (name, description, created_at) VALUES (?, ?, ?)`,
		t.Name, t.Description, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to create item type: %w", err)
	}
	id, err := res.LastInsertId()
	return catalog.ItemTypeID(id), err
}

func (s *Store) ListItemTypes(ctx context.Context) ([]catalog.ItemType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, created_at FROM item_types ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list item types: %w", err)
	}
	defer rows.Close()

	var result []catalog.ItemType
	for rows.Next() {
		var t catalog.ItemType
		var createdAt string
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &createdAt); err != nil {
			return nil, err
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *Store) DeleteItemType(ctx context.Context, id catalog.ItemTypeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM items WHERE type_id = ?`, id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return catalog.ErrInUse
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM item_types WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item type: %w", err)
	}
	return requireRow(res)
}

// =============================================================================
// HELPERS
// =============================================================================

// placeholders builds "?, ?, ..." for IN clauses.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func idArgs[T ~int64](ids []T) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
	}
	return args
}

func (s *Store) referenced(ctx context.Context, column string, id int64) (bool, error) {
	var n int
	query := fmt.Sprintf(`SELECT COUNT(1) FROM movement_lines WHERE %s = ?`, column)
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(r rowScanner) (catalog.Item, error) {
	var (
		item      catalog.Item
		critical  sql.NullInt64
		changedAt string
		createdAt string
	)
	if err := r.Scan(&item.ID, &item.Name, &item.Description, &item.TypeID,
		&item.TotalQuantity, &critical, &changedAt, &createdAt); err != nil {
		return catalog.Item{}, err
	}
	if critical.Valid {
		v := critical.Int64
		item.CriticalQuantity = &v
	}
	if changedAt != "" {
		item.QuantityChangedAt, _ = time.Parse(time.RFC3339, changedAt)
	}
	item.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return item, nil
}

func scanLocation(r rowScanner) (catalog.Location, error) {
	var (
		loc       catalog.Location
		createdAt string
	)
	if err := r.Scan(&loc.ID, &loc.Room, &loc.Rack, &loc.Bin, &createdAt); err != nil {
		return catalog.Location{}, err
	}
	loc.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return loc, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// mapConstraintError translates SQLite constraint failures into domain errors.
func mapConstraintError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "idempotency_key"):
		return ledger.ErrDuplicateIdempotencyKey
	case strings.Contains(msg, "locations.room"):
		return catalog.ErrDuplicateLocation
	default:
		return err
	}
}

func isCheckConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "CHECK constraint failed")
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
