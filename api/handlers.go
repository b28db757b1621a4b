/*
handlers.go - HTTP API handlers for the inventory engine

PURPOSE:
  Exposes the movement engine and catalog via REST. Handles HTTP
  request/response and JSON; all allocation logic lives in the ledger
  package.

ENDPOINTS:
  Movements:
    POST /api/v1/stock-movements/in    Book a delivery
    POST /api/v1/stock-movements/out   Book an issue (FIFO allocated)
    GET  /api/v1/stock-movements/in    Inbound history
    GET  /api/v1/stock-movements/out   Outbound history

  Balances:
    GET /api/v1/items/{id}/balance     Net balance (optional ?locationId=)
    GET /api/v1/items/{id}/locations   Per-location availability
    GET /api/v1/items/{id}/value       Weighted-average stock value

  Catalog:
    items, locations, item-types CRUD plus the by-location and critical
    stock read models.

ERROR HANDLING:
  Domain errors map to statuses:
  - 400: validation (bad shape, bad dates, bad decimals)
  - 404: unknown catalog ids
  - 409: insufficient stock, duplicate idempotency key, duplicate
         room/rack/bin, delete of a referenced entity
  - 500: everything else (consistency violations included - those are bugs)

SEE ALSO:
  - dto.go: request/response structures
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/inventory-engine/catalog"
	"github.com/warp/inventory-engine/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is everything the HTTP layer needs from persistence.
type Backend interface {
	ledger.Store
	ledger.BatchLister
	catalog.Store
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Backend     Backend
	Coordinator *ledger.Coordinator
	Balances    *ledger.BalanceCalculator
	Valuer      *ledger.Valuer
}

// NewHandler wires the movement engine on top of the given backend.
func NewHandler(b Backend) *Handler {
	return &Handler{
		Backend:     b,
		Coordinator: ledger.NewCoordinator(b),
		Balances:    &ledger.BalanceCalculator{Reader: b},
		Valuer:      &ledger.Valuer{Reader: b},
	}
}

// =============================================================================
// MOVEMENT HANDLERS
// =============================================================================

// CreateStockIn books a delivery.
func (h *Handler) CreateStockIn(w http.ResponseWriter, r *http.Request) {
	var req CreateStockInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ReceivedAt.IsZero() {
		writeError(w, http.StatusBadRequest, "receivedAt required", nil)
		return
	}

	lines := make([]ledger.InboundLine, len(req.Items))
	for i, it := range req.Items {
		line := ledger.InboundLine{
			ItemID:     catalog.ItemID(it.ItemID),
			Quantity:   it.Amount,
			LocationID: catalog.LocationID(it.LocationID),
		}
		if it.UnitCost != "" {
			cost, err := decimal.NewFromString(it.UnitCost)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid unitCost", err)
				return
			}
			line.UnitCost = cost
		}
		lines[i] = line
	}

	batchID, err := h.Coordinator.RecordInbound(r.Context(), ledger.InboundRequest{
		Lines:          lines,
		OrderRef:       req.OrderRef,
		DeliveryRef:    req.DeliveryRef,
		ReceivedAt:     req.ReceivedAt,
		IdempotencyKey: idempotencyKey(req.IdempotencyKey),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, BatchCreatedDTO{ID: int64(batchID)})
}

// CreateStockOut books an issue; the FIFO allocator assigns locations.
func (h *Handler) CreateStockOut(w http.ResponseWriter, r *http.Request) {
	var req CreateStockOutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.IssuedAt.IsZero() {
		writeError(w, http.StatusBadRequest, "issuedAt required", nil)
		return
	}

	lines := make([]ledger.OutboundLine, len(req.Items))
	for i, it := range req.Items {
		lines[i] = ledger.OutboundLine{
			ItemID:   catalog.ItemID(it.ItemID),
			Quantity: it.Amount,
		}
	}

	batchID, err := h.Coordinator.RecordOutbound(r.Context(), ledger.OutboundRequest{
		Lines:          lines,
		Reason:         req.Reason,
		IssuedAt:       req.IssuedAt,
		IdempotencyKey: idempotencyKey(req.IdempotencyKey),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, BatchCreatedDTO{ID: int64(batchID)})
}

// ListStockIn returns inbound batches newest-first.
func (h *Handler) ListStockIn(w http.ResponseWriter, r *http.Request) {
	batches, lines, err := h.Backend.ListInboundBatches(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list inbound movements", err)
		return
	}

	names, err := h.itemNames(r, lines)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to resolve item names", err)
		return
	}

	dtos := make([]StockInDTO, len(batches))
	for i, b := range batches {
		dtos[i] = StockInDTO{
			ID:          int64(b.ID),
			OrderRef:    b.OrderRef,
			DeliveryRef: b.DeliveryRef,
			ReceivedAt:  b.ReceivedAt,
			Items:       movementLineDTOs(lines[b.ID], names),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListStockOut returns outbound batches newest-first.
func (h *Handler) ListStockOut(w http.ResponseWriter, r *http.Request) {
	batches, lines, err := h.Backend.ListOutboundBatches(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list outbound movements", err)
		return
	}

	names, err := h.itemNames(r, lines)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to resolve item names", err)
		return
	}

	dtos := make([]StockOutDTO, len(batches))
	for i, b := range batches {
		dtos[i] = StockOutDTO{
			ID:       int64(b.ID),
			Reason:   b.Reason,
			IssuedAt: b.IssuedAt,
			Items:    movementLineDTOs(lines[b.ID], names),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) itemNames(r *http.Request, lines map[ledger.BatchID][]ledger.MovementLine) (map[catalog.ItemID]string, error) {
	var ids []catalog.ItemID
	seen := make(map[catalog.ItemID]bool)
	for _, ls := range lines {
		for _, l := range ls {
			if !seen[l.ItemID] {
				seen[l.ItemID] = true
				ids = append(ids, l.ItemID)
			}
		}
	}

	items, err := h.Backend.GetItems(r.Context(), ids)
	if err != nil {
		return nil, err
	}
	names := make(map[catalog.ItemID]string, len(items))
	for id, item := range items {
		names[id] = item.Name
	}
	return names, nil
}

func movementLineDTOs(lines []ledger.MovementLine, names map[catalog.ItemID]string) []MovementLineDTO {
	dtos := make([]MovementLineDTO, len(lines))
	for i, l := range lines {
		dtos[i] = MovementLineDTO{
			ItemID:     int64(l.ItemID),
			ItemName:   names[l.ItemID],
			Amount:     l.Quantity,
			LocationID: int64(l.LocationID),
		}
	}
	return dtos
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GetItemBalance returns the net balance, optionally scoped to ?locationId=.
func (h *Handler) GetItemBalance(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r)
	if !ok {
		return
	}
	if !h.requireItem(w, r, catalog.ItemID(itemID)) {
		return
	}

	var locationID int64
	if raw := r.URL.Query().Get("locationId"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid locationId", err)
			return
		}
		locationID = v
	}

	quantity, err := h.Balances.NetBalance(r.Context(), catalog.ItemID(itemID), catalog.LocationID(locationID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{ItemID: itemID, LocationID: locationID, Quantity: quantity})
}

// GetItemLocations returns per-location availability, oldest stock first.
func (h *Handler) GetItemLocations(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r)
	if !ok {
		return
	}
	if !h.requireItem(w, r, catalog.ItemID(itemID)) {
		return
	}

	balances, err := h.Balances.PerLocationBalances(r.Context(), catalog.ItemID(itemID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute balances", err)
		return
	}

	dtos := make([]LocationBalanceDTO, len(balances))
	for i, lb := range balances {
		dtos[i] = locationBalanceDTO(lb)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetItemValue returns the weighted-average cost valuation.
func (h *Handler) GetItemValue(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r)
	if !ok {
		return
	}
	if !h.requireItem(w, r, catalog.ItemID(itemID)) {
		return
	}

	sv, err := h.Valuer.Value(r.Context(), catalog.ItemID(itemID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute stock value", err)
		return
	}
	writeJSON(w, http.StatusOK, StockValueDTO{
		ItemID:          int64(sv.ItemID),
		OnHand:          sv.OnHand,
		AverageUnitCost: sv.AverageUnitCost.String(),
		TotalValue:      sv.TotalValue.String(),
	})
}

// =============================================================================
// ITEM HANDLERS
// =============================================================================

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	f := catalog.ItemFilter{Query: r.URL.Query().Get("q")}
	if raw := r.URL.Query().Get("typeId"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid typeId", err)
			return
		}
		f.TypeID = catalog.ItemTypeID(v)
	}

	items, err := h.Backend.ListItems(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list items", err)
		return
	}

	dtos := make([]ItemDTO, len(items))
	for i, item := range items {
		dtos[i] = itemDTO(item)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	item, err := h.Backend.GetItem(r.Context(), catalog.ItemID(id))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemDTO(item))
}

func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req SaveItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required", nil)
		return
	}

	id, err := h.Backend.CreateItem(r.Context(), catalog.Item{
		Name:             req.Name,
		Description:      req.Description,
		TypeID:           catalog.ItemTypeID(req.TypeID),
		CriticalQuantity: req.CriticalQuantity,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, BatchCreatedDTO{ID: int64(id)})
}

func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req SaveItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required", nil)
		return
	}

	err := h.Backend.UpdateItem(r.Context(), catalog.Item{
		ID:               catalog.ItemID(id),
		Name:             req.Name,
		Description:      req.Description,
		TypeID:           catalog.ItemTypeID(req.TypeID),
		CriticalQuantity: req.CriticalQuantity,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Backend.DeleteItem(r.Context(), catalog.ItemID(id)); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCriticalItems returns items whose cached total is at or below their
// configured critical threshold.
func (h *Handler) ListCriticalItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Backend.ListItems(r.Context(), catalog.ItemFilter{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list items", err)
		return
	}

	dtos := make([]ItemDTO, 0)
	for _, item := range items {
		if item.BelowCritical() {
			dtos = append(dtos, itemDTO(item))
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListItemsByLocation returns net per-item quantities for the locations
// matching ?room=&rack=&bin=, filtered to positive amounts.
func (h *Handler) ListItemsByLocation(w http.ResponseWriter, r *http.Request) {
	f := catalog.LocationFilter{
		Room: r.URL.Query().Get("room"),
		Rack: r.URL.Query().Get("rack"),
		Bin:  r.URL.Query().Get("bin"),
	}
	if f.Room == "" {
		writeError(w, http.StatusBadRequest, "room required", nil)
		return
	}

	locations, err := h.Backend.ListLocations(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list locations", err)
		return
	}
	locSet := make(map[catalog.LocationID]bool, len(locations))
	for _, loc := range locations {
		locSet[loc.ID] = true
	}

	dtos := make([]ItemAtLocationDTO, 0)
	if len(locSet) == 0 {
		writeJSON(w, http.StatusOK, dtos)
		return
	}

	items, err := h.Backend.ListItems(r.Context(), catalog.ItemFilter{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list items", err)
		return
	}

	for _, item := range items {
		lines, err := h.Backend.ItemLines(r.Context(), item.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load ledger", err)
			return
		}
		var net int64
		for _, il := range lines {
			if !locSet[il.Line.LocationID] {
				continue
			}
			if il.Line.Batch.IsInbound() {
				net += il.Line.Quantity
			} else {
				net -= il.Line.Quantity
			}
		}
		if net > 0 {
			dtos = append(dtos, ItemAtLocationDTO{
				ID:               int64(item.ID),
				Name:             item.Name,
				TypeID:           int64(item.TypeID),
				Amount:           net,
				CriticalQuantity: item.CriticalQuantity,
			})
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// LOCATION HANDLERS
// =============================================================================

func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.Backend.ListLocations(r.Context(), catalog.LocationFilter{
		Query: r.URL.Query().Get("q"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list locations", err)
		return
	}

	dtos := make([]LocationDTO, len(locations))
	for i, loc := range locations {
		dtos[i] = locationDTO(loc)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	loc, err := h.Backend.GetLocation(r.Context(), catalog.LocationID(id))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, locationDTO(loc))
}

func (h *Handler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var req SaveLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	loc := catalog.Location{Room: req.Room, Rack: req.Rack, Bin: req.Bin}
	if err := loc.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	id, err := h.Backend.CreateLocation(r.Context(), loc)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, BatchCreatedDTO{ID: int64(id)})
}

func (h *Handler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req SaveLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	loc := catalog.Location{ID: catalog.LocationID(id), Room: req.Room, Rack: req.Rack, Bin: req.Bin}
	if err := loc.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := h.Backend.UpdateLocation(r.Context(), loc); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Backend.DeleteLocation(r.Context(), catalog.LocationID(id)); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ITEM TYPE HANDLERS
// =============================================================================

func (h *Handler) ListItemTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Backend.ListItemTypes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list item types", err)
		return
	}

	dtos := make([]ItemTypeDTO, len(types))
	for i, t := range types {
		dtos[i] = ItemTypeDTO{ID: int64(t.ID), Name: t.Name, Description: t.Description}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateItemType(w http.ResponseWriter, r *http.Request) {
	var req SaveItemTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required", nil)
		return
	}

	id, err := h.Backend.CreateItemType(r.Context(), catalog.ItemType{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, BatchCreatedDTO{ID: int64(id)})
}

func (h *Handler) DeleteItemType(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Backend.DeleteItemType(r.Context(), catalog.ItemTypeID(id)); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) requireItem(w http.ResponseWriter, r *http.Request, id catalog.ItemID) bool {
	if _, err := h.Backend.GetItem(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

func idempotencyKey(key string) string {
	if key != "" {
		return key
	}
	return uuid.NewString()
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		message = message + ": " + err.Error()
	}
	writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError maps ledger/catalog errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, ledger.ErrInsufficientStock),
		errors.Is(err, ledger.ErrDuplicateIdempotencyKey),
		errors.Is(err, catalog.ErrDuplicateLocation),
		errors.Is(err, catalog.ErrInUse):
		writeError(w, http.StatusConflict, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
