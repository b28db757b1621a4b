/*
errors.go - Centralized error types for the movement engine

PURPOSE:
  All error kinds the coordinator can surface, in one place. The API layer
  maps these to HTTP statuses; nothing here is retried internally.

ERROR CATEGORIES:
  1. Validation errors - malformed request shape, detected before any read
  2. Not-found errors  - unknown catalog ids, reported as a full set
  3. Stock errors      - outbound amount exceeds availability
  4. Consistency errors - internal invariant violations; never committable

USAGE:
  Callers match with errors.Is / errors.As:

    var short *ledger.InsufficientStockError
    if errors.As(err, &short) {
        // short.ItemID, short.Requested, short.Available
    }
*/
package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/warp/inventory-engine/catalog"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is wrapped by ValidationError.
	ErrValidation = errors.New("invalid movement request")

	// ErrNotFound is wrapped by NotFoundError.
	ErrNotFound = errors.New("referenced entity not found")

	// ErrInsufficientStock is wrapped by InsufficientStockError.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrConsistency is wrapped by ConsistencyError. Indicates a write that
	// would break a ledger invariant; such a write must never commit.
	ErrConsistency = errors.New("ledger consistency violation")

	// ErrDuplicateIdempotencyKey is returned when a batch with the same
	// idempotency key already exists. Expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a malformed request. Always raised before any
// ledger read, so it can never leave partial state.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }
func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError reports every missing catalog id in one error, not just the
// first encountered.
type NotFoundError struct {
	ItemIDs     []catalog.ItemID
	LocationIDs []catalog.LocationID
}

func (e *NotFoundError) Error() string {
	var parts []string
	if len(e.ItemIDs) > 0 {
		parts = append(parts, "items not found: "+joinIDs(e.ItemIDs))
	}
	if len(e.LocationIDs) > 0 {
		parts = append(parts, "locations not found: "+joinIDs(e.LocationIDs))
	}
	if len(parts) == 0 {
		return ErrNotFound.Error()
	}
	return strings.Join(parts, "; ")
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InsufficientStockError names the short item and the exact shortfall so
// the caller can adjust the order instead of guessing.
type InsufficientStockError struct {
	ItemID    catalog.ItemID
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %d: available %d < requested %d",
		e.ItemID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ConsistencyError is internal and fatal for the operation: a proposed
// write would break the exactly-one-parent rule, drive a balance negative,
// or desync the cached total from the ledger sum.
type ConsistencyError struct {
	Rule   string
	Detail string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency violation (%s): %s", e.Rule, e.Detail)
}

func (e *ConsistencyError) Unwrap() error { return ErrConsistency }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is the caller's to fix.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

func joinIDs[T ~int64](ids []T) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(int64(id), 10)
	}
	return strings.Join(parts, ", ")
}
