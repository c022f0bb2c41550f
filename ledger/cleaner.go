/*
cleaner.go - Ledger pollution cleanup

PURPOSE:
  Deletes entries that violate "what may ever count toward a balance":

    1. Zero-amount adjustments marked as reference-only placeholders
    2. Excluded-category rows that were never valid movements
       (entry type is neither debit nor credit)
    3. Zero-amount rows outside the invoice/payment categories

  Destructive and non-reversible, so all three rules run inside one
  transaction; a failure partway leaves the ledger untouched.

REPORTING:
  Returns per-rule counts. "Zero rows affected" is success, not an
  error; a clean ledger is the desired steady state.

SEE ALSO:
  - types.go: IsReferencePlaceholder / IsInvalidMovement / IsStrayZero,
    the predicates store implementations must mirror
  - sweep.go: Runs cleanup before any balance computation
*/
package ledger

import (
	"context"

	"github.com/sirupsen/logrus"
)

// CleanupCounts reports pollution removed per rule.
type CleanupCounts struct {
	ReferencePlaceholders int64 `json:"removed_reference"`
	InvalidMovements      int64 `json:"removed_adjustment"`
	StrayZero             int64 `json:"removed_zero"`
}

func (c CleanupCounts) Total() int64 {
	return c.ReferencePlaceholders + c.InvalidMovements + c.StrayZero
}

// Cleaner removes ledger pollution.
type Cleaner struct {
	Store  TxStore
	Logger logrus.FieldLogger
}

func NewCleaner(store TxStore, logger logrus.FieldLogger) *Cleaner {
	return &Cleaner{Store: store, Logger: logger}
}

// CleanupPollution applies the three deletion rules atomically and
// returns the per-rule counts.
func (c *Cleaner) CleanupPollution(ctx context.Context) (CleanupCounts, error) {
	var counts CleanupCounts

	err := c.Store.WithTx(ctx, func(s Store) error {
		var err error
		if counts.ReferencePlaceholders, err = s.RemoveReferencePlaceholders(ctx); err != nil {
			return err
		}
		if counts.InvalidMovements, err = s.RemoveInvalidMovements(ctx); err != nil {
			return err
		}
		if counts.StrayZero, err = s.RemoveStrayZeroEntries(ctx); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return CleanupCounts{}, err
	}

	if counts.Total() > 0 {
		c.log().WithFields(logrus.Fields{
			"reference_placeholders": counts.ReferencePlaceholders,
			"invalid_movements":      counts.InvalidMovements,
			"stray_zero":             counts.StrayZero,
		}).Info("ledger pollution removed")
	}
	return counts, nil
}

func (c *Cleaner) log() logrus.FieldLogger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}
