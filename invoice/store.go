/*
store.go - Persistence interfaces for invoices and their return sub-ledger

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite
  - store/memory: In-memory for tests and dev mode

SEE ALSO:
  - maintainer.go: The only writer of RemainingBalance
*/
package invoice

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store is the persistence surface the Maintainer needs. Implementations
// return ledger.ErrInvoiceNotFound (via the ledger package) for unknown
// invoice and return-item IDs.
type Store interface {
	// Invoice returns the invoice record.
	Invoice(ctx context.Context, id int64) (*Invoice, error)

	// InvoiceIDs returns every invoice ID, ascending. Used by batch repair.
	InvoiceIDs(ctx context.Context) ([]int64, error)

	// ReturnTotal returns sum(returnQuantity * unitPrice) over the
	// invoice's return items, unrounded.
	ReturnTotal(ctx context.Context, invoiceID int64) (decimal.Decimal, error)

	// SetRemainingBalance overwrites the derived balance field.
	SetRemainingBalance(ctx context.Context, invoiceID int64, balance decimal.Decimal) error

	// SetPaymentAmount overwrites the cumulative payment amount.
	SetPaymentAmount(ctx context.Context, invoiceID int64, amount decimal.Decimal) error

	// InsertReturnItem appends a row to the return sub-ledger.
	InsertReturnItem(ctx context.Context, item ReturnItem) (int64, error)

	// ReturnItem returns a sub-ledger row.
	ReturnItem(ctx context.Context, id int64) (*ReturnItem, error)

	// DeleteReturnItem removes a sub-ledger row.
	DeleteReturnItem(ctx context.Context, id int64) error

	// InvoiceIDForItem resolves the invoice owning an invoice item.
	InvoiceIDForItem(ctx context.Context, invoiceItemID int64) (int64, error)
}

// TxStore wraps Store with transaction support so a mutation and its
// recompute commit or roll back together.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
