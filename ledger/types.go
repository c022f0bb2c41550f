/*
Package ledger provides the core ledger consistency and balance
reconciliation engine.

PURPOSE:
  A customer's monetary balance is always derivable, exactly, from an
  append-only ledger of financial entries. This file (types.go) defines
  the entry model and the single inclusion rule all balance math uses.

KEY CONCEPTS IN THIS FILE:
  - Entry: One monetary movement against a customer
  - EntryType: debit (customer owes more) / credit (customer owes less)
  - TransactionType: Open business category ("invoice", "payment", ...)
  - CountsTowardBalance: THE predicate deciding what may ever count

DESIGN PRINCIPLES:
  1. Single authoritative rule: every call site computes balance through
     CountsTowardBalance. The exclusion list lives here and nowhere else.
  2. Precision: decimal.Decimal everywhere; money is rounded to 2 places
     with half-away-from-zero semantics at the point a derived value is
     computed, never earlier.
  3. Materiality: a stored/computed difference is a discrepancy only if
     it exceeds 0.01.

SEE ALSO:
  - calculator.go: Balance computation from entries
  - cleaner.go: Deletion rules for entries violating the invariants
  - store.go: Persistence interfaces
*/
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CustomerID int64

// ReferenceID identifies the business object (invoice, payment, return,
// settlement) that originated an entry. Zero means "no reference".
type ReferenceID int64

// ExcludeRef is a convenience for the optional exclude-reference argument
// of the calculator: ledger.ExcludeRef(invoiceID).
func ExcludeRef(id int64) *ReferenceID {
	r := ReferenceID(id)
	return &r
}

// =============================================================================
// ENTRY - One monetary movement against a customer
// =============================================================================

type EntryType string

const (
	EntryDebit  EntryType = "debit"  // increases what the customer owes
	EntryCredit EntryType = "credit" // decreases what the customer owes
)

// TransactionType is an open string category. The constants below are the
// categories the engine itself reasons about; business code may record
// others, which are treated as regular balance-affecting movements.
type TransactionType string

const (
	TxInvoice     TransactionType = "invoice"
	TxPayment     TransactionType = "payment"
	TxReturn      TransactionType = "return"
	TxRefund      TransactionType = "refund"
	TxAdjustment  TransactionType = "adjustment"
	TxReference   TransactionType = "reference"
	TxBalanceSync TransactionType = "balance_sync"
)

// Entry is a single row of the customer ledger. Amounts are non-negative;
// direction is carried by EntryType.
type Entry struct {
	ID              int64
	CustomerID      CustomerID
	EntryType       EntryType
	TransactionType TransactionType
	Amount          decimal.Decimal
	ReferenceID     ReferenceID
	Description     string
	CreatedAt       time.Time
}

// =============================================================================
// INCLUSION AND POLLUTION PREDICATES - The single source of truth
// =============================================================================

// CountsTowardBalance reports whether an entry may participate in balance
// computation. Entries of type adjustment/reference/balance_sync are a hard
// exclusion regardless of direction; this is not a default that callers may
// override.
func CountsTowardBalance(e Entry) bool {
	if e.EntryType != EntryDebit && e.EntryType != EntryCredit {
		return false
	}
	return !excludedFromBalance(e.TransactionType)
}

func excludedFromBalance(t TransactionType) bool {
	switch t {
	case TxAdjustment, TxReference, TxBalanceSync:
		return true
	}
	return false
}

// ZeroAmountAllowed reports whether a zero-amount entry of the given
// category is legitimate. Only invoices and payments may be zero; any
// other zero-amount entry is pollution.
func ZeroAmountAllowed(t TransactionType) bool {
	return t == TxInvoice || t == TxPayment
}

// ReferencePlaceholderMarker is the description fragment that identifies
// zero-amount adjustment rows written purely as cross-reference
// placeholders. These rows were never monetary movements.
const ReferencePlaceholderMarker = "reference-only"

// IsReferencePlaceholder matches cleanup rule 1: zero-amount adjustments
// whose description marks them as reference-only placeholders.
func IsReferencePlaceholder(e Entry) bool {
	return e.TransactionType == TxAdjustment &&
		e.Amount.IsZero() &&
		containsFold(e.Description, ReferencePlaceholderMarker)
}

// IsInvalidMovement matches cleanup rule 2: excluded-category rows that
// were never valid ledger movements in the first place.
func IsInvalidMovement(e Entry) bool {
	return excludedFromBalance(e.TransactionType) &&
		e.EntryType != EntryDebit && e.EntryType != EntryCredit
}

// IsStrayZero matches cleanup rule 3: zero-amount rows outside the
// categories where zero is legitimate.
func IsStrayZero(e Entry) bool {
	return e.Amount.IsZero() && !ZeroAmountAllowed(e.TransactionType)
}

// =============================================================================
// MONEY - Rounding and materiality
// =============================================================================

// materiality is the threshold below which a stored/computed difference is
// treated as rounding noise rather than a discrepancy.
var materiality = decimal.New(1, -2) // 0.01

// RoundMoney rounds to 2 decimal places, half away from zero. Applied at
// the point a derived value is computed, before comparison or persistence.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// MaterialDifference reports whether |a - b| > 0.01.
func MaterialDifference(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().GreaterThan(materiality)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
