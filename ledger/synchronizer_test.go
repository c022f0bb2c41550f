package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironstore/ledger-engine/events"
	"github.com/ironstore/ledger-engine/ledger"
	"github.com/ironstore/ledger-engine/store/memory"
)

// failingBus always fails to publish.
type failingBus struct{}

func (failingBus) Publish(context.Context, events.Event) error {
	return errors.New("broker unreachable")
}

func newSynchronizer(store *memory.Ledger, bus events.Bus) *ledger.Synchronizer {
	return ledger.NewSynchronizer(store, ledger.NewCalculator(store), bus, nil)
}

func TestSynchronizer_PersistsAndPublishes(t *testing.T) {
	// GIVEN: A customer owing 150
	// WHEN: Syncing the balance
	// THEN: The stored balance is overwritten and one
	//       customer.balance_updated event carries the same value

	store := memory.NewLedger()
	seedEntries(t, store,
		entry(1, ledger.EntryDebit, ledger.TxInvoice, "200"),
		entry(1, ledger.EntryCredit, ledger.TxPayment, "50"),
	)
	bus := events.NewMemory()

	balance, err := newSynchronizer(store, bus).SyncCustomerBalance(context.Background(), 1)
	require.NoError(t, err)
	assertMoney(t, "150", balance)

	stored, err := store.StoredBalance(context.Background(), 1)
	require.NoError(t, err)
	assertMoney(t, "150", stored)

	published := bus.Events()
	require.Len(t, published, 1)
	assert.Equal(t, events.CustomerBalanceUpdated, published[0].Name)
	assert.Equal(t, int64(1), published[0].CustomerID)
	assertMoney(t, "150", published[0].Balance)
}

func TestSynchronizer_PublishFailureIsNonFatal(t *testing.T) {
	// GIVEN: An event bus that cannot deliver
	// WHEN: Syncing the balance
	// THEN: The persisted value stands and no error surfaces

	store := memory.NewLedger()
	seedEntries(t, store, entry(1, ledger.EntryDebit, ledger.TxInvoice, "75"))

	balance, err := newSynchronizer(store, failingBus{}).SyncCustomerBalance(context.Background(), 1)
	require.NoError(t, err)
	assertMoney(t, "75", balance)

	stored, err := store.StoredBalance(context.Background(), 1)
	require.NoError(t, err)
	assertMoney(t, "75", stored)
}

func TestSynchronizer_Idempotent(t *testing.T) {
	// GIVEN: A synced customer with no intervening ledger writes
	// WHEN: Syncing again
	// THEN: The same value is persisted; the write is a full overwrite,
	//       never an increment

	store := memory.NewLedger()
	seedEntries(t, store, entry(1, ledger.EntryDebit, ledger.TxInvoice, "120"))
	sync := newSynchronizer(store, events.Nop{})

	first, err := sync.SyncCustomerBalance(context.Background(), 1)
	require.NoError(t, err)
	second, err := sync.SyncCustomerBalance(context.Background(), 1)
	require.NoError(t, err)

	assert.True(t, first.Equal(second))
	stored, err := store.StoredBalance(context.Background(), 1)
	require.NoError(t, err)
	assertMoney(t, "120", stored)
}

func TestSynchronizer_StampsSyncTime(t *testing.T) {
	// GIVEN: A fixed clock
	// WHEN: Syncing
	// THEN: The denormalized row records that clock's time

	store := memory.NewLedger()
	seedEntries(t, store, entry(1, ledger.EntryDebit, ledger.TxInvoice, "10"))

	fixed := time.Date(2026, time.April, 2, 12, 0, 0, 0, time.UTC)
	sync := newSynchronizer(store, events.Nop{})
	sync.Now = func() time.Time { return fixed }

	_, err := sync.SyncCustomerBalance(context.Background(), 1)
	require.NoError(t, err)

	updatedAt, ok := store.BalanceUpdatedAt(1)
	require.True(t, ok)
	assert.Equal(t, fixed, updatedAt)
}
