/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupling the domain model from
  the external contract.

NAMING CONVENTION:
  - *DTO: response types returned to clients
  - *Request: request body types from clients

VALIDATION:
  Shape validation happens in the handlers and the movement coordinator;
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: uses these types
*/
package api

import (
	"time"

	"github.com/warp/inventory-engine/catalog"
	"github.com/warp/inventory-engine/ledger"
)

// =============================================================================
// MOVEMENTS
// =============================================================================

// StockInLineRequest is one position of a delivery.
type StockInLineRequest struct {
	ItemID     int64  `json:"itemId"`
	Amount     int64  `json:"amount"`
	LocationID int64  `json:"locationId"`
	UnitCost   string `json:"unitCost,omitempty"` // decimal string, optional
}

type CreateStockInRequest struct {
	OrderRef       string               `json:"orderRef,omitempty"`
	DeliveryRef    string               `json:"deliveryRef,omitempty"`
	ReceivedAt     time.Time            `json:"receivedAt"`
	Items          []StockInLineRequest `json:"items"`
	IdempotencyKey string               `json:"idempotencyKey,omitempty"`
}

// StockOutLineRequest is one position of an issue. No location: the FIFO
// allocator picks where the stock comes from.
type StockOutLineRequest struct {
	ItemID int64 `json:"itemId"`
	Amount int64 `json:"amount"`
}

type CreateStockOutRequest struct {
	Reason         string                `json:"reason,omitempty"`
	IssuedAt       time.Time             `json:"issuedAt"`
	Items          []StockOutLineRequest `json:"items"`
	IdempotencyKey string                `json:"idempotencyKey,omitempty"`
}

type BatchCreatedDTO struct {
	ID int64 `json:"id"`
}

// MovementLineDTO is one ledger line in movement listings.
type MovementLineDTO struct {
	ItemID     int64  `json:"itemId"`
	ItemName   string `json:"itemName,omitempty"`
	Amount     int64  `json:"amount"`
	LocationID int64  `json:"locationId,omitempty"`
}

type StockInDTO struct {
	ID          int64             `json:"id"`
	OrderRef    string            `json:"orderRef,omitempty"`
	DeliveryRef string            `json:"deliveryRef,omitempty"`
	ReceivedAt  time.Time         `json:"receivedAt"`
	Items       []MovementLineDTO `json:"items"`
}

type StockOutDTO struct {
	ID       int64             `json:"id"`
	Reason   string            `json:"reason,omitempty"`
	IssuedAt time.Time         `json:"issuedAt"`
	Items    []MovementLineDTO `json:"items"`
}

// =============================================================================
// BALANCES
// =============================================================================

type BalanceDTO struct {
	ItemID     int64 `json:"itemId"`
	LocationID int64 `json:"locationId,omitempty"`
	Quantity   int64 `json:"quantity"`
}

type LocationBalanceDTO struct {
	LocationID        int64      `json:"locationId"`
	Available         int64      `json:"available"`
	EarliestInboundAt *time.Time `json:"earliestInboundAt,omitempty"`
}

type StockValueDTO struct {
	ItemID          int64  `json:"itemId"`
	OnHand          int64  `json:"onHand"`
	AverageUnitCost string `json:"averageUnitCost"`
	TotalValue      string `json:"totalValue"`
}

// =============================================================================
// CATALOG
// =============================================================================

type ItemDTO struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	Description      string     `json:"description,omitempty"`
	TypeID           int64      `json:"typeId,omitempty"`
	TotalQuantity    int64      `json:"totalQuantity"`
	CriticalQuantity *int64     `json:"criticalQuantity,omitempty"`
	ChangedAt        *time.Time `json:"amountLastChangedAt,omitempty"`
}

type SaveItemRequest struct {
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	TypeID           int64  `json:"typeId,omitempty"`
	CriticalQuantity *int64 `json:"criticalQuantity,omitempty"`
}

type LocationDTO struct {
	ID    int64  `json:"id"`
	Room  string `json:"room"`
	Rack  string `json:"rack"`
	Bin   string `json:"bin"`
	Label string `json:"label"`
}

type SaveLocationRequest struct {
	Room string `json:"room"`
	Rack string `json:"rack"`
	Bin  string `json:"bin"`
}

type ItemTypeDTO struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type SaveItemTypeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ItemAtLocationDTO is the items-at-location read model: net quantity of
// an item across the locations matching the filter.
type ItemAtLocationDTO struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	TypeID           int64  `json:"typeId,omitempty"`
	Amount           int64  `json:"amount"`
	CriticalQuantity *int64 `json:"criticalQuantity,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func itemDTO(i catalog.Item) ItemDTO {
	dto := ItemDTO{
		ID:               int64(i.ID),
		Name:             i.Name,
		Description:      i.Description,
		TypeID:           int64(i.TypeID),
		TotalQuantity:    i.TotalQuantity,
		CriticalQuantity: i.CriticalQuantity,
	}
	if !i.QuantityChangedAt.IsZero() {
		t := i.QuantityChangedAt
		dto.ChangedAt = &t
	}
	return dto
}

func locationDTO(l catalog.Location) LocationDTO {
	return LocationDTO{
		ID:    int64(l.ID),
		Room:  l.Room,
		Rack:  l.Rack,
		Bin:   l.Bin,
		Label: l.Label(),
	}
}

func locationBalanceDTO(lb ledger.LocationBalance) LocationBalanceDTO {
	dto := LocationBalanceDTO{
		LocationID: int64(lb.LocationID),
		Available:  lb.Available,
	}
	if !lb.EarliestInboundAt.IsZero() {
		t := lb.EarliestInboundAt
		dto.EarliestInboundAt = &t
	}
	return dto
}
