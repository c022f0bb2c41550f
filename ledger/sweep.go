/*
sweep.go - Full-ledger reconciliation

PURPOSE:
  The batch repair that makes drift self-healing. One run:

    1. Clean pollution (one transaction, before any computation)
    2. Enumerate every customer with ledger activity
    3. Per customer: stored vs authoritative; if they differ materially,
       sync (persist + announce) and record the discrepancy

  Re-runnable at any time: a second run with no intervening writes
  fixes nothing and removes nothing.

FAILURE ISOLATION:
  One customer failing must not abort the sweep. Failures are logged,
  collected in the report, and the run continues. The report states
  partial completion honestly.

CANCELLATION:
  Long-running by design (minutes, not milliseconds). The context is
  checked between customers; a canceled sweep leaves the store valid,
  just incompletely reconciled.

SEE ALSO:
  - cleaner.go, calculator.go, synchronizer.go: The pieces orchestrated here
  - api/scheduler.go: Periodic invocation
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// REPORT
// =============================================================================

// SweepFailure records one customer the sweep could not reconcile.
type SweepFailure struct {
	CustomerID CustomerID `json:"customer_id"`
	Err        string     `json:"error"`
}

// ReconciliationReport is the structured outcome of one sweep run.
// Failures non-empty means partial completion.
type ReconciliationReport struct {
	RunID              string          `json:"run_id"`
	StartedAt          time.Time       `json:"started_at"`
	FinishedAt         time.Time       `json:"finished_at"`
	Cleanup            CleanupCounts   `json:"cleanup"`
	CustomersProcessed int             `json:"customers_processed"`
	BalancesFixed      int             `json:"balances_fixed"`
	TotalDiscrepancy   decimal.Decimal `json:"total_discrepancy"`
	Failures           []SweepFailure  `json:"failures,omitempty"`
}

// Complete reports whether every enumerated customer was reconciled.
func (r ReconciliationReport) Complete() bool {
	return len(r.Failures) == 0
}

// =============================================================================
// SWEEP
// =============================================================================

// Sweep orchestrates cleaner, calculator and synchronizer across the
// whole ledger.
type Sweep struct {
	Store   TxStore
	Cleaner *Cleaner
	Calc    *Calculator
	Sync    *Synchronizer
	Logger  logrus.FieldLogger
}

func NewSweep(store TxStore, cleaner *Cleaner, calc *Calculator, sync *Synchronizer, logger logrus.FieldLogger) *Sweep {
	return &Sweep{Store: store, Cleaner: cleaner, Calc: calc, Sync: sync, Logger: logger}
}

// ReconcileAll runs one full reconciliation pass. The returned report is
// meaningful even when err is non-nil (cancellation, cleanup failure):
// it reflects exactly what was done before the run stopped.
func (s *Sweep) ReconcileAll(ctx context.Context) (ReconciliationReport, error) {
	report := ReconciliationReport{
		RunID:            uuid.NewString(),
		StartedAt:        time.Now().UTC(),
		TotalDiscrepancy: decimal.Zero,
	}
	log := s.log().WithField("run_id", report.RunID)

	// Pollution must be gone before any balance is computed, otherwise
	// the sweep reconciles against polluted data.
	counts, err := s.Cleaner.CleanupPollution(ctx)
	if err != nil {
		report.FinishedAt = time.Now().UTC()
		return report, err
	}
	report.Cleanup = counts

	ids, err := s.Store.CustomerIDsWithEntries(ctx)
	if err != nil {
		report.FinishedAt = time.Now().UTC()
		return report, err
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			log.WithField("customers_processed", report.CustomersProcessed).
				Warn("reconciliation sweep canceled")
			report.FinishedAt = time.Now().UTC()
			return report, err
		}

		if err := s.reconcileCustomer(ctx, id, &report); err != nil {
			report.Failures = append(report.Failures, SweepFailure{
				CustomerID: id,
				Err:        err.Error(),
			})
			log.WithField("customer_id", id).WithError(err).
				Error("customer reconciliation failed, continuing sweep")
		}
		report.CustomersProcessed++
	}

	report.FinishedAt = time.Now().UTC()
	log.WithFields(logrus.Fields{
		"customers_processed": report.CustomersProcessed,
		"balances_fixed":      report.BalancesFixed,
		"total_discrepancy":   report.TotalDiscrepancy.StringFixed(2),
		"pollution_removed":   report.Cleanup.Total(),
		"failures":            len(report.Failures),
	}).Info("reconciliation sweep finished")

	return report, nil
}

func (s *Sweep) reconcileCustomer(ctx context.Context, id CustomerID, report *ReconciliationReport) error {
	stored, err := s.Store.StoredBalance(ctx, id)
	if err != nil {
		return err
	}

	authoritative, err := s.Calc.ComputeBalance(ctx, id, nil)
	if err != nil {
		return err
	}

	if !MaterialDifference(stored, authoritative) {
		return nil
	}

	disc := &DiscrepancyError{CustomerID: id, Stored: stored, Computed: authoritative}
	s.log().WithField("customer_id", id).Warn(disc.Error())

	if _, err := s.Sync.SyncCustomerBalance(ctx, id); err != nil {
		return err
	}

	report.BalancesFixed++
	report.TotalDiscrepancy = report.TotalDiscrepancy.Add(stored.Sub(authoritative).Abs())
	return nil
}

func (s *Sweep) log() logrus.FieldLogger {
	if s.Logger != nil {
		return s.Logger
	}
	return logrus.StandardLogger()
}
