/*
Package catalog holds the read-mostly reference data the ledger operates on.

PURPOSE:
  Items, storage locations, and item types are long-lived rows created and
  edited through plain CRUD. The ledger never invents them; it only checks
  they exist and, for items, maintains the cached total quantity.

KEY CONCEPTS:
  - Item: carries a denormalized TotalQuantity (net sum across all
    locations) plus the timestamp of the last quantity change. The cache is
    derived state; the ledger is the source of truth.
  - Location: a physical slot addressed as room / rack / bin. The triple is
    unique, and a location referenced by ledger history cannot be deleted.
  - ItemType: grouping for items.

MUTATION RULES:
  Item.TotalQuantity and Item.QuantityChangedAt are mutated ONLY by the
  movement coordinator, in the same store transaction as the ledger write.
  Everything else is plain catalog editing.

SEE ALSO:
  - ledger/movement.go: the only writer of cached quantities
  - store/sqlite/sqlite.go: persistence and the unique (room, rack, bin) index
*/
package catalog

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ItemID int64
type LocationID int64
type ItemTypeID int64

// =============================================================================
// ITEM - catalog row with cached total quantity
// =============================================================================

type Item struct {
	ID          ItemID
	Name        string
	Description string
	TypeID      ItemTypeID

	// Denormalized net balance across all locations. Derived from the
	// ledger; must equal the ledger sum whenever no movement is in flight.
	TotalQuantity int64

	// Alert threshold. Nil means no threshold configured.
	CriticalQuantity *int64

	QuantityChangedAt time.Time
	CreatedAt         time.Time
}

// BelowCritical reports whether the cached total has reached the configured
// critical threshold. Items without a threshold never report critical.
func (i Item) BelowCritical() bool {
	return i.CriticalQuantity != nil && i.TotalQuantity <= *i.CriticalQuantity
}

// =============================================================================
// LOCATION - room / rack / bin address
// =============================================================================

type Location struct {
	ID        LocationID
	Room      string
	Rack      string
	Bin       string
	CreatedAt time.Time
}

// Label renders the canonical display form, e.g. "R1-A-03".
func (l Location) Label() string {
	return fmt.Sprintf("%s-%s-%s", l.Room, l.Rack, l.Bin)
}

// Validate checks the address parts are present. Uniqueness of the triple
// is enforced by the store.
func (l Location) Validate() error {
	if strings.TrimSpace(l.Room) == "" || strings.TrimSpace(l.Rack) == "" || strings.TrimSpace(l.Bin) == "" {
		return fmt.Errorf("location needs room, rack and bin")
	}
	return nil
}

// =============================================================================
// ITEM TYPE
// =============================================================================

type ItemType struct {
	ID          ItemTypeID
	Name        string
	Description string
	CreatedAt   time.Time
}
