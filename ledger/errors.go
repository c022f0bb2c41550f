/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All engine error types in one place. A financial engine must never
  coerce a failed read into "zero"; every error here exists so callers
  are forced to distinguish "the ledger says zero" from "unknown".

ERROR CATEGORIES:
  1. Store errors     - Persistence failures (propagated, never swallowed)
  2. Settlement errors - Missing/irrecoverable settlement entries
  3. Domain errors    - Unknown customers/invoices

SEE ALSO:
  - settlement.go: Uses the settlement sentinels
  - sweep.go: Aggregates per-customer errors instead of aborting
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSettlementEntryMissing is returned when the ledger entry a
	// settlement was expected to produce cannot be found. This is a
	// critical condition: real money whose trail is lost.
	ErrSettlementEntryMissing = errors.New("settlement ledger entry missing")

	// ErrRecoveryFailed is returned when a synthesized recovery entry
	// still does not verify. Manual intervention is required.
	ErrRecoveryFailed = errors.New("settlement entry recovery failed")

	// ErrInvoiceNotFound is returned when a referenced invoice does not exist.
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrCustomerNotFound is returned when a referenced customer does not exist.
	ErrCustomerNotFound = errors.New("customer not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DiscrepancyError describes a denormalized balance that disagrees with
// the authoritative ledger-derived value by more than the materiality
// threshold.
type DiscrepancyError struct {
	CustomerID CustomerID
	Stored     decimal.Decimal
	Computed   decimal.Decimal
}

func (e *DiscrepancyError) Error() string {
	return fmt.Sprintf("balance discrepancy for customer %d: stored %s, computed %s",
		e.CustomerID, e.Stored.StringFixed(2), e.Computed.StringFixed(2))
}

// SettlementError wraps a settlement sentinel with the settlement's identity.
type SettlementError struct {
	SettlementID ReferenceID
	CustomerID   CustomerID
	Amount       decimal.Decimal
	Err          error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settlement %d (customer %d, amount %s): %v",
		e.SettlementID, e.CustomerID, e.Amount.StringFixed(2), e.Err)
}

func (e *SettlementError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsCritical reports whether the error represents missing or irrecoverable
// financial entries that must be surfaced to an operator.
func IsCritical(err error) bool {
	return errors.Is(err, ErrSettlementEntryMissing) ||
		errors.Is(err, ErrRecoveryFailed)
}

// IsNotFound reports whether the error indicates a missing business object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrCustomerNotFound)
}
