/*
calculator.go - Authoritative balance computation

PURPOSE:
  The one computation rule every call site uses:

    balance = round2( sum(debit amounts) - sum(credit amounts) )

  over entries passing CountsTowardBalance, optionally excluding rows
  that reference one specific business object (exclude-self).

SIGN CONVENTION:
  positive  = customer owes money (net debit)
  negative  = customer holds credit (net overpayment)

AVAILABLE CREDIT:
  max(0, -balance). The exclude-reference variant exists so a
  transaction being created can ask "how much credit would this
  customer have if my own entries didn't exist?" without
  double-counting itself.

ERROR DISCIPLINE:
  Read failures propagate. The calculator NEVER returns zero on
  failure; "owes nothing" and "unknown" are different answers.

SEE ALSO:
  - types.go: CountsTowardBalance, RoundMoney
  - synchronizer.go: Persists this result
*/
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Calculator derives balances from the ledger. Pure reads; no side effects.
type Calculator struct {
	Store EntryReader
}

func NewCalculator(store EntryReader) *Calculator {
	return &Calculator{Store: store}
}

// ComputeBalance returns the authoritative net balance for a customer.
// Pass a non-nil exclude to ignore entries referencing that business
// object (see AvailableCredit for the use case).
func (c *Calculator) ComputeBalance(ctx context.Context, id CustomerID, exclude *ReferenceID) (decimal.Decimal, error) {
	entries, err := c.Store.EntriesForCustomer(ctx, id)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("read ledger for customer %d: %w", id, err)
	}

	balance := decimal.Zero
	for _, e := range entries {
		if !CountsTowardBalance(e) {
			continue
		}
		if exclude != nil && e.ReferenceID == *exclude {
			continue
		}
		switch e.EntryType {
		case EntryDebit:
			balance = balance.Add(e.Amount)
		case EntryCredit:
			balance = balance.Sub(e.Amount)
		}
	}
	return RoundMoney(balance), nil
}

// ComputeAvailableCredit returns max(0, -balance): the overpayment a
// customer can draw on. With exclude set, the customer's credit is
// evaluated as if the referenced object's entries never existed.
func (c *Calculator) ComputeAvailableCredit(ctx context.Context, id CustomerID, exclude *ReferenceID) (decimal.Decimal, error) {
	balance, err := c.ComputeBalance(ctx, id, exclude)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if balance.IsNegative() {
		return balance.Neg(), nil
	}
	return decimal.Zero, nil
}
