/*
store.go - Persistence interface for catalog entities

PURPOSE:
  Plain CRUD on the reference data. No allocation logic lives here; the
  one rule with teeth is referential safety: entities referenced by ledger
  history cannot be deleted, so the ledger never points at nothing.

SEE ALSO:
  - ledger/store.go: the movement side of persistence
  - store/sqlite/sqlite.go: implementation of both
*/
package catalog

import (
	"context"
	"errors"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned for lookups and edits of unknown ids.
	ErrNotFound = errors.New("catalog entity not found")

	// ErrDuplicateLocation is returned when a (room, rack, bin) triple
	// already exists. The triple is the location's identity.
	ErrDuplicateLocation = errors.New("room/rack/bin combination already exists")

	// ErrInUse is returned when deleting an entity that ledger history
	// still references. History must never be orphaned silently.
	ErrInUse = errors.New("entity referenced by ledger history")
)

// =============================================================================
// FILTERS
// =============================================================================

// ItemFilter narrows ListItems. Zero values mean "no filter".
type ItemFilter struct {
	TypeID ItemTypeID
	Query  string // substring match on name
}

// LocationFilter narrows ListLocations. Empty strings mean "no filter".
type LocationFilter struct {
	Query string // substring match on room, rack or bin
	Room  string
	Rack  string
	Bin   string
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// Items. Create assigns the id; Update touches only non-quantity
	// fields (quantity belongs to the movement coordinator).
	CreateItem(ctx context.Context, item Item) (ItemID, error)
	GetItem(ctx context.Context, id ItemID) (Item, error)
	UpdateItem(ctx context.Context, item Item) error
	DeleteItem(ctx context.Context, id ItemID) error
	ListItems(ctx context.Context, f ItemFilter) ([]Item, error)

	// Locations. The (room, rack, bin) triple is unique.
	CreateLocation(ctx context.Context, loc Location) (LocationID, error)
	GetLocation(ctx context.Context, id LocationID) (Location, error)
	UpdateLocation(ctx context.Context, loc Location) error
	DeleteLocation(ctx context.Context, id LocationID) error
	ListLocations(ctx context.Context, f LocationFilter) ([]Location, error)

	// Item types.
	CreateItemType(ctx context.Context, t ItemType) (ItemTypeID, error)
	ListItemTypes(ctx context.Context) ([]ItemType, error)
	DeleteItemType(ctx context.Context, id ItemTypeID) error
}
