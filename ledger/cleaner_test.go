package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironstore/ledger-engine/ledger"
	"github.com/ironstore/ledger-engine/store/memory"
)

func TestCleaner_RemovesAllThreeRules(t *testing.T) {
	// GIVEN: A ledger holding real movements plus one row matching each
	//        deletion rule
	// WHEN: Running cleanup
	// THEN: Exactly the polluted rows disappear, with per-rule counts

	store := memory.NewLedger()

	placeholder := entry(1, ledger.EntryDebit, ledger.TxAdjustment, "0")
	placeholder.Description = "reference-only link to order 12"

	malformed := entry(1, ledger.EntryType(""), ledger.TxReference, "40")

	strayZero := entry(1, ledger.EntryDebit, ledger.TxReturn, "0")

	keepInvoice := entry(1, ledger.EntryDebit, ledger.TxInvoice, "100")
	keepZeroInvoice := entry(1, ledger.EntryDebit, ledger.TxInvoice, "0")
	keepAdjustment := entry(1, ledger.EntryDebit, ledger.TxAdjustment, "25")

	seedEntries(t, store, placeholder, malformed, strayZero, keepInvoice, keepZeroInvoice, keepAdjustment)

	cleaner := ledger.NewCleaner(store, nil)
	counts, err := cleaner.CleanupPollution(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), counts.ReferencePlaceholders)
	assert.Equal(t, int64(1), counts.InvalidMovements)
	assert.Equal(t, int64(1), counts.StrayZero)
	assert.Equal(t, int64(3), counts.Total())

	remaining, err := store.EntriesForCustomer(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, remaining, 3)
}

func TestCleaner_ZeroInvoiceAndPaymentSurvive(t *testing.T) {
	// GIVEN: Zero-amount rows in the categories where zero is legitimate
	// WHEN: Running cleanup
	// THEN: Nothing is removed

	store := memory.NewLedger()
	seedEntries(t, store,
		entry(1, ledger.EntryDebit, ledger.TxInvoice, "0"),
		entry(1, ledger.EntryCredit, ledger.TxPayment, "0"),
	)

	counts, err := ledger.NewCleaner(store, nil).CleanupPollution(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Total())

	remaining, err := store.EntriesForCustomer(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestCleaner_CleanLedgerIsSuccess(t *testing.T) {
	// GIVEN: An empty ledger
	// WHEN: Running cleanup
	// THEN: Zero counts, no error

	counts, err := ledger.NewCleaner(memory.NewLedger(), nil).CleanupPollution(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Total())
}

func TestCleaner_Idempotent(t *testing.T) {
	// GIVEN: A ledger cleaned once
	// WHEN: Cleaning again
	// THEN: The second pass removes nothing

	store := memory.NewLedger()
	seedEntries(t, store, entry(1, ledger.EntryDebit, ledger.TxAdjustment, "0"))

	cleaner := ledger.NewCleaner(store, nil)

	first, err := cleaner.CleanupPollution(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Total())

	second, err := cleaner.CleanupPollution(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Total())
}
