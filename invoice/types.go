/*
Package invoice maintains the derived remaining balance of invoices.

PURPOSE:
  An invoice's remaining balance is derivable from its own sub-ledger:

    remaining = round2( grandTotal
                        - sum(returnQuantity * unitPrice over returns)
                        - paymentAmount )

  Narrower scope than the customer balance, same derivation discipline:
  always a full recompute from source rows, never an incremental delta,
  so drift cannot accumulate.

TRIGGER DISCIPLINE:
  Every mutation that can change the remaining balance (return item
  inserted or deleted, payment amount changed) recomputes it inside the
  same transaction as the mutation. No reader may ever observe the
  invoice row inconsistent with its sub-ledger.

SEE ALSO:
  - maintainer.go: The recompute triggers and batch repair
  - store.go: Persistence interfaces
*/
package invoice

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice is the invoice record with its derived balance fields.
// GrandTotal is fixed at creation; PaymentAmount accumulates payments;
// RemainingBalance is derived and owned by the Maintainer.
type Invoice struct {
	ID               int64
	CustomerID       int64
	GrandTotal       decimal.Decimal
	PaymentAmount    decimal.Decimal
	RemainingBalance decimal.Decimal
	CreatedAt        time.Time
}

// Item is one line of an invoice. Return items reference lines, not
// invoices, so deletions must resolve the owning invoice through here.
type Item struct {
	ID        int64
	InvoiceID int64
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// ReturnItem is one row of the invoice's return sub-ledger.
type ReturnItem struct {
	ID             int64
	InvoiceItemID  int64
	ReturnQuantity decimal.Decimal
	UnitPrice      decimal.Decimal
	CreatedAt      time.Time
}

// Value returns the monetary value of the return row.
func (r ReturnItem) Value() decimal.Decimal {
	return r.ReturnQuantity.Mul(r.UnitPrice)
}
