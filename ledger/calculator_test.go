package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironstore/ledger-engine/ledger"
	"github.com/ironstore/ledger-engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func money(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func entry(customer int64, et ledger.EntryType, tt ledger.TransactionType, amount string) ledger.Entry {
	return ledger.Entry{
		CustomerID:      ledger.CustomerID(customer),
		EntryType:       et,
		TransactionType: tt,
		Amount:          money(amount),
		CreatedAt:       time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
	}
}

func seedEntries(t *testing.T, store *memory.Ledger, entries ...ledger.Entry) {
	t.Helper()
	ctx := context.Background()
	for _, e := range entries {
		_, err := store.InsertEntry(ctx, e)
		require.NoError(t, err)
	}
}

func assertMoney(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, money(expected).Equal(actual),
		"expected %s, got %s", expected, actual.StringFixed(4))
}

// =============================================================================
// BALANCE COMPUTATION TESTS
// =============================================================================

func TestCalculator_DebitsMinusCredits(t *testing.T) {
	// GIVEN: An invoice for 1000 and a payment of 400
	// WHEN: Computing the balance
	// THEN: The customer owes 600

	store := memory.NewLedger()
	seedEntries(t, store,
		entry(1, ledger.EntryDebit, ledger.TxInvoice, "1000"),
		entry(1, ledger.EntryCredit, ledger.TxPayment, "400"),
	)

	calc := ledger.NewCalculator(store)
	balance, err := calc.ComputeBalance(context.Background(), 1, nil)
	require.NoError(t, err)
	assertMoney(t, "600", balance)
}

func TestCalculator_NoEntries_ZeroBalance(t *testing.T) {
	// GIVEN: A customer with no ledger entries
	// WHEN: Computing the balance
	// THEN: The balance is exactly zero, not an error

	calc := ledger.NewCalculator(memory.NewLedger())
	balance, err := calc.ComputeBalance(context.Background(), 42, nil)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestCalculator_ExcludedCategoriesNeverCount(t *testing.T) {
	// GIVEN: Real movements plus adjustment/reference/balance_sync rows
	//        with large amounts in both directions
	// WHEN: Computing the balance
	// THEN: Only the invoice and payment participate

	store := memory.NewLedger()
	seedEntries(t, store,
		entry(1, ledger.EntryDebit, ledger.TxInvoice, "250"),
		entry(1, ledger.EntryCredit, ledger.TxPayment, "100"),
		entry(1, ledger.EntryDebit, ledger.TxAdjustment, "9999"),
		entry(1, ledger.EntryCredit, ledger.TxReference, "5000"),
		entry(1, ledger.EntryDebit, ledger.TxBalanceSync, "1234.56"),
	)

	calc := ledger.NewCalculator(store)
	balance, err := calc.ComputeBalance(context.Background(), 1, nil)
	require.NoError(t, err)
	assertMoney(t, "150", balance)
}

func TestCalculator_UnknownTransactionTypeCounts(t *testing.T) {
	// GIVEN: An entry with a business category the engine has no
	//        constant for
	// WHEN: Computing the balance
	// THEN: It counts as a regular movement; the exclusion list is
	//       closed, not a whitelist

	store := memory.NewLedger()
	seedEntries(t, store,
		entry(1, ledger.EntryDebit, ledger.TransactionType("service_fee"), "30"),
	)

	calc := ledger.NewCalculator(store)
	balance, err := calc.ComputeBalance(context.Background(), 1, nil)
	require.NoError(t, err)
	assertMoney(t, "30", balance)
}

func TestCalculator_RoundsHalfAwayFromZero(t *testing.T) {
	// GIVEN: Entries whose sum lands exactly on a half cent
	// WHEN: Computing the balance
	// THEN: 10.005 rounds to 10.01 and -10.005 rounds to -10.01

	store := memory.NewLedger()
	seedEntries(t, store,
		entry(1, ledger.EntryDebit, ledger.TxInvoice, "10.005"),
		entry(2, ledger.EntryCredit, ledger.TxPayment, "10.005"),
	)

	calc := ledger.NewCalculator(store)

	pos, err := calc.ComputeBalance(context.Background(), 1, nil)
	require.NoError(t, err)
	assertMoney(t, "10.01", pos)

	neg, err := calc.ComputeBalance(context.Background(), 2, nil)
	require.NoError(t, err)
	assertMoney(t, "-10.01", neg)
}

func TestCalculator_ExcludeReference(t *testing.T) {
	// GIVEN: A customer whose only debt comes from invoice 7
	// WHEN: Computing the balance excluding reference 7
	// THEN: The invoice's own entries vanish from the computation

	store := memory.NewLedger()
	e1 := entry(1, ledger.EntryDebit, ledger.TxInvoice, "500")
	e1.ReferenceID = 7
	e2 := entry(1, ledger.EntryCredit, ledger.TxPayment, "200")
	seedEntries(t, store, e1, e2)

	calc := ledger.NewCalculator(store)

	full, err := calc.ComputeBalance(context.Background(), 1, nil)
	require.NoError(t, err)
	assertMoney(t, "300", full)

	excluded, err := calc.ComputeBalance(context.Background(), 1, ledger.ExcludeRef(7))
	require.NoError(t, err)
	assertMoney(t, "-200", excluded)
}

// =============================================================================
// AVAILABLE CREDIT TESTS
// =============================================================================

func TestCalculator_AvailableCredit_Overpaid(t *testing.T) {
	// GIVEN: A customer who paid 250 more than was invoiced
	// WHEN: Computing available credit
	// THEN: Credit is 250 (the negation of the -250 balance)

	store := memory.NewLedger()
	seedEntries(t, store,
		entry(1, ledger.EntryDebit, ledger.TxInvoice, "100"),
		entry(1, ledger.EntryCredit, ledger.TxPayment, "350"),
	)

	calc := ledger.NewCalculator(store)
	credit, err := calc.ComputeAvailableCredit(context.Background(), 1, nil)
	require.NoError(t, err)
	assertMoney(t, "250", credit)
}

func TestCalculator_AvailableCredit_Owing(t *testing.T) {
	// GIVEN: A customer who owes 300
	// WHEN: Computing available credit
	// THEN: Credit is zero, never negative

	store := memory.NewLedger()
	seedEntries(t, store,
		entry(1, ledger.EntryDebit, ledger.TxInvoice, "300"),
	)

	calc := ledger.NewCalculator(store)
	credit, err := calc.ComputeAvailableCredit(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.True(t, credit.IsZero())
}

func TestCalculator_AvailableCredit_ExcludeSelf(t *testing.T) {
	// GIVEN: A customer with credit, except that invoice 9 consumed it
	// WHEN: Asking for credit as if invoice 9's entries never existed
	// THEN: The full prepayment is available again

	store := memory.NewLedger()
	prepay := entry(1, ledger.EntryCredit, ledger.TxPayment, "400")
	inv := entry(1, ledger.EntryDebit, ledger.TxInvoice, "400")
	inv.ReferenceID = 9
	seedEntries(t, store, prepay, inv)

	calc := ledger.NewCalculator(store)

	credit, err := calc.ComputeAvailableCredit(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.True(t, credit.IsZero())

	creditSansSelf, err := calc.ComputeAvailableCredit(context.Background(), 1, ledger.ExcludeRef(9))
	require.NoError(t, err)
	assertMoney(t, "400", creditSansSelf)
}
