/*
store.go - Persistence interfaces for the customer ledger

PURPOSE:
  Defines the interface between the engine and the database. The engine
  never issues SQL; it talks to these interfaces, and implementations
  (store/sqlite, store/memory) provide parameterized query/execute
  semantics underneath.

KEY INTERFACES:
  EntryReader:  Read-side queries the calculator and verifier need
  EntryWriter:  Appends plus the three pollution deletions
  BalanceStore: The denormalized per-customer balance field
  TxStore:      Transactional scope around multi-statement sequences

WRITE DISCIPLINE:
  The denormalized balance is written ONLY through the Synchronizer, and
  invoice balances ONLY through invoice.Maintainer. Store implementations
  expose the primitives; the engine owns the invariants.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite (WAL, foreign keys)
  - store/memory: In-memory for tests and dev mode

SEE ALSO:
  - calculator.go: Uses EntryReader
  - cleaner.go: Uses EntryWriter inside WithTx
  - synchronizer.go: Uses BalanceStore
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// READ SIDE
// =============================================================================

// EntryReader is the read-only view of the ledger the calculator needs.
type EntryReader interface {
	// EntriesForCustomer returns every ledger entry for the customer,
	// oldest first. Filtering (exclusions, exclude-self) happens in the
	// engine so the inclusion rule stays in one place.
	EntriesForCustomer(ctx context.Context, id CustomerID) ([]Entry, error)

	// CustomerIDsWithEntries returns the distinct customers that have at
	// least one ledger entry, in ascending order.
	CustomerIDsWithEntries(ctx context.Context) ([]CustomerID, error)

	// FindSettlementEntry returns the outgoing (debit) return-category
	// entry recorded for the given settlement reference with the given
	// amount, or nil if none exists.
	FindSettlementEntry(ctx context.Context, ref ReferenceID, amount decimal.Decimal) (*Entry, error)
}

// =============================================================================
// WRITE SIDE
// =============================================================================

// EntryWriter appends entries and deletes pollution. The three Remove
// methods implement the cleanup rules; their predicates are defined next
// to the entry model (IsReferencePlaceholder, IsInvalidMovement,
// IsStrayZero) and SQL implementations must mirror them exactly.
type EntryWriter interface {
	// InsertEntry appends an entry and returns its assigned ID.
	InsertEntry(ctx context.Context, e Entry) (int64, error)

	// RemoveReferencePlaceholders deletes zero-amount adjustment rows
	// marked as reference-only placeholders. Returns rows removed.
	RemoveReferencePlaceholders(ctx context.Context) (int64, error)

	// RemoveInvalidMovements deletes excluded-category rows whose entry
	// type is neither debit nor credit. Returns rows removed.
	RemoveInvalidMovements(ctx context.Context) (int64, error)

	// RemoveStrayZeroEntries deletes zero-amount rows outside the
	// invoice/payment categories. Returns rows removed.
	RemoveStrayZeroEntries(ctx context.Context) (int64, error)
}

// =============================================================================
// DENORMALIZED BALANCE
// =============================================================================

// BalanceStore reads and writes the denormalized customer balance field.
type BalanceStore interface {
	// StoredBalance returns the denormalized balance. A customer with
	// ledger activity but no balance record yet reads as zero.
	StoredBalance(ctx context.Context, id CustomerID) (decimal.Decimal, error)

	// SetStoredBalance overwrites the denormalized balance with a fresh
	// update timestamp, creating the record if needed.
	SetStoredBalance(ctx context.Context, id CustomerID, balance decimal.Decimal, updatedAt time.Time) error
}

// =============================================================================
// COMPOSED STORE + TRANSACTIONS
// =============================================================================

// Store is the full persistence surface of the customer ledger.
type Store interface {
	EntryReader
	EntryWriter
	BalanceStore
}

// TxStore wraps Store with transaction support. If fn returns an error
// the transaction is rolled back; no partial cleanup or balance state
// may persist.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
