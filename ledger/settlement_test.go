package ledger_test

import (
	"context"
	"errors"
	"strings"
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

func settlement(id, customer int64, amount string) ledger.SettlementDetails {
	return ledger.SettlementDetails{
		SettlementID: ledger.ReferenceID(id),
		CustomerID:   ledger.CustomerID(customer),
		Amount:       money(amount),
		OccurredAt:   time.Date(2026, time.May, 3, 10, 0, 0, 0, time.UTC),
	}
}

// lossyStore silently drops the next dropNext inserts, simulating the
// historical failure mode where the refund write reports success without
// the row landing.
type lossyStore struct {
	*memory.Ledger
	dropNext int
}

func (s *lossyStore) InsertEntry(ctx context.Context, e ledger.Entry) (int64, error) {
	if s.dropNext > 0 {
		s.dropNext--
		return 0, nil
	}
	return s.Ledger.InsertEntry(ctx, e)
}

// =============================================================================
// VERIFY TESTS
// =============================================================================

func TestVerifySettlementEntry_FoundAndMissing(t *testing.T) {
	// GIVEN: A refund debit of 150 referencing settlement 77
	// WHEN: Verifying settlement 77 and then removing the entry
	// THEN: Verification flips from true to false

	store := memory.NewLedger()
	ctx := context.Background()

	e := entry(5, ledger.EntryDebit, ledger.TxRefund, "150")
	e.ReferenceID = 77
	id, err := store.InsertEntry(ctx, e)
	require.NoError(t, err)

	verifier := ledger.NewSettlementVerifier(store, nil)

	ok, err := verifier.VerifySettlementEntry(ctx, 77, money("150"))
	require.NoError(t, err)
	assert.True(t, ok)

	store.RemoveEntry(id)

	ok, err = verifier.VerifySettlementEntry(ctx, 77, money("150"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifySettlementEntry_AmountMustMatch(t *testing.T) {
	// GIVEN: A refund entry of 150 for settlement 77
	// WHEN: Verifying with a different amount
	// THEN: The entry does not satisfy the verification

	store := memory.NewLedger()
	ctx := context.Background()

	e := entry(5, ledger.EntryDebit, ledger.TxRefund, "150")
	e.ReferenceID = 77
	_, err := store.InsertEntry(ctx, e)
	require.NoError(t, err)

	verifier := ledger.NewSettlementVerifier(store, nil)
	ok, err := verifier.VerifySettlementEntry(ctx, 77, money("149"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifySettlementEntry_IgnoresCreditsAndOtherCategories(t *testing.T) {
	// GIVEN: Rows referencing the settlement that are not outgoing
	//        return/refund debits
	// WHEN: Verifying
	// THEN: They do not count as the settlement's entry

	store := memory.NewLedger()
	ctx := context.Background()

	credit := entry(5, ledger.EntryCredit, ledger.TxRefund, "150")
	credit.ReferenceID = 77
	invoiceRow := entry(5, ledger.EntryDebit, ledger.TxInvoice, "150")
	invoiceRow.ReferenceID = 77
	seedEntries(t, store, credit, invoiceRow)

	verifier := ledger.NewSettlementVerifier(store, nil)
	ok, err := verifier.VerifySettlementEntry(ctx, 77, money("150"))
	require.NoError(t, err)
	assert.False(t, ok)
}

// =============================================================================
// RECOVER TESTS
// =============================================================================

func TestRecoverMissingSettlementEntry(t *testing.T) {
	// GIVEN: Settlement 77 whose entry was lost
	// WHEN: Recovering
	// THEN: A RECOVERED debit with the original amount, customer, and
	//       reference exists and verifies

	store := memory.NewLedger()
	ctx := context.Background()
	verifier := ledger.NewSettlementVerifier(store, nil)

	err := verifier.RecoverMissingSettlementEntry(ctx, settlement(77, 5, "150"))
	require.NoError(t, err)

	ok, err := verifier.VerifySettlementEntry(ctx, 77, money("150"))
	require.NoError(t, err)
	assert.True(t, ok)

	entries, err := store.EntriesForCustomer(ctx, 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	recovered := entries[0]
	assert.Equal(t, ledger.EntryDebit, recovered.EntryType)
	assert.Equal(t, ledger.TxRefund, recovered.TransactionType)
	assert.Equal(t, ledger.ReferenceID(77), recovered.ReferenceID)
	assertMoney(t, "150", recovered.Amount)
	assert.True(t, strings.HasPrefix(recovered.Description, "RECOVERED:"))
}

func TestRecoverMissingSettlementEntry_StillMissing(t *testing.T) {
	// GIVEN: A store that keeps dropping inserts
	// WHEN: Recovering
	// THEN: ErrRecoveryFailed surfaces with the settlement identity

	store := &lossyStore{Ledger: memory.NewLedger(), dropNext: 10}
	verifier := ledger.NewSettlementVerifier(store, nil)

	err := verifier.RecoverMissingSettlementEntry(context.Background(), settlement(77, 5, "150"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrRecoveryFailed)

	var settleErr *ledger.SettlementError
	require.ErrorAs(t, err, &settleErr)
	assert.Equal(t, ledger.ReferenceID(77), settleErr.SettlementID)
	assert.Equal(t, ledger.CustomerID(5), settleErr.CustomerID)
}

// =============================================================================
// SETTLE TESTS
// =============================================================================

func TestSettleRefund_HappyPath(t *testing.T) {
	// GIVEN: A healthy store
	// WHEN: Settling a cash refund
	// THEN: Exactly one verified outgoing entry exists, no recovery row

	store := memory.NewLedger()
	ctx := context.Background()
	verifier := ledger.NewSettlementVerifier(store, nil)

	require.NoError(t, verifier.SettleRefund(ctx, settlement(30, 8, "99.99")))

	entries, err := store.EntriesForCustomer(ctx, 8)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, strings.HasPrefix(entries[0].Description, "RECOVERED:"))
	assertMoney(t, "99.99", entries[0].Amount)
}

func TestSettleRefund_RecoversLostWrite(t *testing.T) {
	// GIVEN: A store that drops the initial write but accepts the
	//        recovery write
	// WHEN: Settling a cash refund
	// THEN: The recovery path runs and leaves one verified RECOVERED entry

	inner := memory.NewLedger()
	store := &lossyStore{Ledger: inner, dropNext: 1}
	verifier := ledger.NewSettlementVerifier(store, nil)
	ctx := context.Background()

	require.NoError(t, verifier.SettleRefund(ctx, settlement(30, 8, "99.99")))

	ok, err := verifier.VerifySettlementEntry(ctx, 30, money("99.99"))
	require.NoError(t, err)
	assert.True(t, ok)

	entries, err := inner.EntriesForCustomer(ctx, 8)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Description, "RECOVERED:"))
}

func TestSettleRefund_ZeroTimeDefaultsToClock(t *testing.T) {
	// GIVEN: Settlement details without an occurrence time
	// WHEN: Settling
	// THEN: The entry is stamped with the verifier's clock

	store := memory.NewLedger()
	fixed := time.Date(2026, time.June, 1, 8, 0, 0, 0, time.UTC)
	verifier := ledger.NewSettlementVerifier(store, nil)
	verifier.Now = func() time.Time { return fixed }

	d := ledger.SettlementDetails{
		SettlementID: 44,
		CustomerID:   3,
		Amount:       decimal.NewFromInt(20),
	}
	require.NoError(t, verifier.SettleRefund(context.Background(), d))

	entries, err := store.EntriesForCustomer(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, fixed, entries[0].CreatedAt)
}

func TestSettlementError_Unwrap(t *testing.T) {
	err := &ledger.SettlementError{
		SettlementID: 1,
		CustomerID:   2,
		Amount:       money("10"),
		Err:          ledger.ErrRecoveryFailed,
	}
	assert.True(t, errors.Is(err, ledger.ErrRecoveryFailed))
	assert.True(t, ledger.IsCritical(err))
}
