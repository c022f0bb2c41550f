/*
synchronizer.go - Applies computed balances to the denormalized field

PURPOSE:
  The ONLY writer of the denormalized customer balance. Recomputes via
  the Calculator, persists with a fresh timestamp, then announces the
  change on the event bus.

ORDERING:
  Write first, publish second. Downstream consumers read the committed
  value; an event must never precede its write. The two are not atomic:
  if publish fails the balance write stands and the failure is logged as
  a delivery gap only.

IDEMPOTENCE:
  Two consecutive syncs with no intervening ledger writes persist the
  same value. Drift is impossible because the write is always a full
  overwrite with the authoritative computation, never an increment.

SEE ALSO:
  - calculator.go: The computation being persisted
  - sweep.go: Invokes this for every drifted customer
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ironstore/ledger-engine/events"
)

// Synchronizer recomputes and persists denormalized customer balances.
type Synchronizer struct {
	Store  BalanceStore
	Calc   *Calculator
	Bus    events.Bus
	Logger logrus.FieldLogger

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewSynchronizer(store BalanceStore, calc *Calculator, bus events.Bus, logger logrus.FieldLogger) *Synchronizer {
	return &Synchronizer{
		Store:  store,
		Calc:   calc,
		Bus:    bus,
		Logger: logger,
		Now:    time.Now,
	}
}

// SyncCustomerBalance recomputes the customer's authoritative balance,
// overwrites the denormalized field, and publishes
// customer.balance_updated. Returns the persisted balance.
func (s *Synchronizer) SyncCustomerBalance(ctx context.Context, id CustomerID) (decimal.Decimal, error) {
	balance, err := s.Calc.ComputeBalance(ctx, id, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}

	now := s.now()
	if err := s.Store.SetStoredBalance(ctx, id, balance, now); err != nil {
		return decimal.Decimal{}, fmt.Errorf("persist balance for customer %d: %w", id, err)
	}

	// Publish after commit. Failure here is non-fatal: the balance is
	// already correct, consumers are merely late to hear about it.
	if s.Bus != nil {
		evt := events.Event{
			Name:       events.CustomerBalanceUpdated,
			CustomerID: int64(id),
			Balance:    balance,
			At:         now,
		}
		if err := s.Bus.Publish(ctx, evt); err != nil {
			s.log().WithFields(logrus.Fields{
				"customer_id": id,
				"balance":     balance.StringFixed(2),
			}).WithError(err).Warn("balance updated but event publish failed")
		}
	}

	return balance, nil
}

func (s *Synchronizer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Synchronizer) log() logrus.FieldLogger {
	if s.Logger != nil {
		return s.Logger
	}
	return logrus.StandardLogger()
}
