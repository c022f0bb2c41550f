/*
maintainer.go - Write-triggered invoice balance recomputation

PURPOSE:
  The three mutations that can change an invoice's remaining balance,
  each paired with a synchronous full recompute inside the mutating
  transaction:

    RecordReturnItem: insert return row, recompute owning invoice
    DeleteReturnItem: resolve owning invoice BEFORE the row disappears,
                      delete, recompute
    ApplyPayment:     recompute only when the value actually changes
                      (no redundant writes, no event storms)

  Plus RepairAll, the batch pass for invoices written before this
  discipline existed.

WHY APPLICATION-LEVEL TRIGGERS:
  The consistency rule used to hide in database trigger syntax. As
  explicit recompute calls it is visible, testable, and portable across
  storage engines.

SEE ALSO:
  - types.go: The derivation formula
  - store.go: TxStore providing the transactional scope
*/
package invoice

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ironstore/ledger-engine/ledger"
)

// Maintainer owns the invoice RemainingBalance field. Nothing else may
// write it.
type Maintainer struct {
	Store  TxStore
	Logger logrus.FieldLogger
}

func NewMaintainer(store TxStore, logger logrus.FieldLogger) *Maintainer {
	return &Maintainer{Store: store, Logger: logger}
}

// =============================================================================
// RECOMPUTE - The single derivation everyone uses
// =============================================================================

// RecomputeBalance recomputes and persists the invoice's remaining
// balance from source rows. Used both as the trigger body and by batch
// repair.
func (m *Maintainer) RecomputeBalance(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	var remaining decimal.Decimal
	err := m.Store.WithTx(ctx, func(s Store) error {
		var err error
		remaining, err = recompute(ctx, s, invoiceID)
		return err
	})
	return remaining, err
}

// recompute runs inside an existing transaction.
func recompute(ctx context.Context, s Store, invoiceID int64) (decimal.Decimal, error) {
	inv, err := s.Invoice(ctx, invoiceID)
	if err != nil {
		return decimal.Decimal{}, err
	}

	returns, err := s.ReturnTotal(ctx, invoiceID)
	if err != nil {
		return decimal.Decimal{}, err
	}

	remaining := ledger.RoundMoney(inv.GrandTotal.Sub(returns).Sub(inv.PaymentAmount))
	if err := s.SetRemainingBalance(ctx, invoiceID, remaining); err != nil {
		return decimal.Decimal{}, fmt.Errorf("persist remaining balance for invoice %d: %w", invoiceID, err)
	}
	return remaining, nil
}

// =============================================================================
// MUTATION TRIGGERS
// =============================================================================

// RecordReturnItem inserts a return row and recomputes the owning
// invoice's balance in the same transaction. Returns the new remaining
// balance.
func (m *Maintainer) RecordReturnItem(ctx context.Context, item ReturnItem) (decimal.Decimal, error) {
	var remaining decimal.Decimal
	err := m.Store.WithTx(ctx, func(s Store) error {
		invoiceID, err := s.InvoiceIDForItem(ctx, item.InvoiceItemID)
		if err != nil {
			return err
		}
		if _, err := s.InsertReturnItem(ctx, item); err != nil {
			return err
		}
		remaining, err = recompute(ctx, s, invoiceID)
		return err
	})
	return remaining, err
}

// DeleteReturnItem removes a return row and recomputes the invoice that
// owned it. The owning invoice is resolved through the row's invoice
// item before the row disappears.
func (m *Maintainer) DeleteReturnItem(ctx context.Context, returnItemID int64) (decimal.Decimal, error) {
	var remaining decimal.Decimal
	err := m.Store.WithTx(ctx, func(s Store) error {
		item, err := s.ReturnItem(ctx, returnItemID)
		if err != nil {
			return err
		}
		invoiceID, err := s.InvoiceIDForItem(ctx, item.InvoiceItemID)
		if err != nil {
			return err
		}
		if err := s.DeleteReturnItem(ctx, returnItemID); err != nil {
			return err
		}
		remaining, err = recompute(ctx, s, invoiceID)
		return err
	})
	return remaining, err
}

// ApplyPayment sets the invoice's cumulative payment amount and
// recomputes. A no-op update (same value) performs no write at all.
func (m *Maintainer) ApplyPayment(ctx context.Context, invoiceID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	var remaining decimal.Decimal
	err := m.Store.WithTx(ctx, func(s Store) error {
		inv, err := s.Invoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.PaymentAmount.Equal(amount) {
			remaining = inv.RemainingBalance
			return nil
		}
		if err := s.SetPaymentAmount(ctx, invoiceID, amount); err != nil {
			return err
		}
		remaining, err = recompute(ctx, s, invoiceID)
		return err
	})
	return remaining, err
}

// =============================================================================
// BATCH REPAIR
// =============================================================================

// RepairFailure records one invoice the repair pass could not fix.
type RepairFailure struct {
	InvoiceID int64  `json:"invoice_id"`
	Err       string `json:"error"`
}

// RepairReport is the outcome of one batch repair pass.
type RepairReport struct {
	InvoicesChecked int             `json:"invoices_checked"`
	BalancesFixed   int             `json:"balances_fixed"`
	Failures        []RepairFailure `json:"failures,omitempty"`
}

// RepairAll recomputes every invoice's balance from source rows and
// overwrites stored values that drifted materially. Idempotent;
// cancellable between invoices; per-invoice failures are isolated.
func (m *Maintainer) RepairAll(ctx context.Context) (RepairReport, error) {
	var report RepairReport

	ids, err := m.Store.InvoiceIDs(ctx)
	if err != nil {
		return report, err
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		fixed, err := m.repairOne(ctx, id)
		if err != nil {
			report.Failures = append(report.Failures, RepairFailure{InvoiceID: id, Err: err.Error()})
			m.log().WithField("invoice_id", id).WithError(err).
				Error("invoice balance repair failed, continuing")
		} else if fixed {
			report.BalancesFixed++
		}
		report.InvoicesChecked++
	}

	m.log().WithFields(logrus.Fields{
		"invoices_checked": report.InvoicesChecked,
		"balances_fixed":   report.BalancesFixed,
		"failures":         len(report.Failures),
	}).Info("invoice balance repair finished")

	return report, nil
}

func (m *Maintainer) repairOne(ctx context.Context, invoiceID int64) (fixed bool, err error) {
	err = m.Store.WithTx(ctx, func(s Store) error {
		inv, err := s.Invoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		returns, err := s.ReturnTotal(ctx, invoiceID)
		if err != nil {
			return err
		}

		computed := ledger.RoundMoney(inv.GrandTotal.Sub(returns).Sub(inv.PaymentAmount))
		if !ledger.MaterialDifference(inv.RemainingBalance, computed) {
			return nil
		}

		m.log().WithFields(logrus.Fields{
			"invoice_id": invoiceID,
			"stored":     inv.RemainingBalance.StringFixed(2),
			"computed":   computed.StringFixed(2),
		}).Warn("invoice balance drift repaired")

		fixed = true
		return s.SetRemainingBalance(ctx, invoiceID, computed)
	})
	return fixed, err
}

func (m *Maintainer) log() logrus.FieldLogger {
	if m.Logger != nil {
		return m.Logger
	}
	return logrus.StandardLogger()
}
