package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ironstore/ledger-engine/ledger"
)

// =============================================================================
// INCLUSION PREDICATE TESTS
// =============================================================================

func TestCountsTowardBalance(t *testing.T) {
	cases := []struct {
		name  string
		entry ledger.Entry
		want  bool
	}{
		{"invoice debit", entry(1, ledger.EntryDebit, ledger.TxInvoice, "10"), true},
		{"payment credit", entry(1, ledger.EntryCredit, ledger.TxPayment, "10"), true},
		{"return debit", entry(1, ledger.EntryDebit, ledger.TxReturn, "10"), true},
		{"refund debit", entry(1, ledger.EntryDebit, ledger.TxRefund, "10"), true},
		{"unknown category", entry(1, ledger.EntryDebit, "late_fee", "10"), true},
		{"adjustment debit", entry(1, ledger.EntryDebit, ledger.TxAdjustment, "10"), false},
		{"reference credit", entry(1, ledger.EntryCredit, ledger.TxReference, "10"), false},
		{"balance_sync debit", entry(1, ledger.EntryDebit, ledger.TxBalanceSync, "10"), false},
		{"malformed entry type", entry(1, ledger.EntryType("transfer"), ledger.TxInvoice, "10"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ledger.CountsTowardBalance(tc.entry))
		})
	}
}

// =============================================================================
// POLLUTION PREDICATE TESTS
// =============================================================================

func TestIsReferencePlaceholder(t *testing.T) {
	// Rule 1 needs all three conditions: adjustment category, zero
	// amount, and the reference-only description marker.

	placeholder := entry(1, ledger.EntryDebit, ledger.TxAdjustment, "0")
	placeholder.Description = "Reference-Only link to order 55"
	assert.True(t, ledger.IsReferencePlaceholder(placeholder))

	nonZero := entry(1, ledger.EntryDebit, ledger.TxAdjustment, "5")
	nonZero.Description = "reference-only"
	assert.False(t, ledger.IsReferencePlaceholder(nonZero))

	noMarker := entry(1, ledger.EntryDebit, ledger.TxAdjustment, "0")
	noMarker.Description = "manual correction"
	assert.False(t, ledger.IsReferencePlaceholder(noMarker))

	wrongCategory := entry(1, ledger.EntryDebit, ledger.TxInvoice, "0")
	wrongCategory.Description = "reference-only"
	assert.False(t, ledger.IsReferencePlaceholder(wrongCategory))
}

func TestIsStrayZero(t *testing.T) {
	// Zero is legitimate only for invoices and payments.

	assert.False(t, ledger.IsStrayZero(entry(1, ledger.EntryDebit, ledger.TxInvoice, "0")))
	assert.False(t, ledger.IsStrayZero(entry(1, ledger.EntryCredit, ledger.TxPayment, "0")))
	assert.True(t, ledger.IsStrayZero(entry(1, ledger.EntryDebit, ledger.TxReturn, "0")))
	assert.True(t, ledger.IsStrayZero(entry(1, ledger.EntryDebit, ledger.TxRefund, "0")))
	assert.True(t, ledger.IsStrayZero(entry(1, ledger.EntryDebit, ledger.TxAdjustment, "0")))
	assert.False(t, ledger.IsStrayZero(entry(1, ledger.EntryDebit, ledger.TxReturn, "0.01")))
}

func TestIsInvalidMovement(t *testing.T) {
	// Rule 2 removes excluded-category rows whose entry type is neither
	// debit nor credit. Well-formed excluded rows stay (they are merely
	// ignored by the calculator).

	malformed := entry(1, ledger.EntryType("note"), ledger.TxReference, "10")
	assert.True(t, ledger.IsInvalidMovement(malformed))

	wellFormed := entry(1, ledger.EntryDebit, ledger.TxAdjustment, "10")
	assert.False(t, ledger.IsInvalidMovement(wellFormed))

	malformedButIncluded := entry(1, ledger.EntryType("note"), ledger.TxInvoice, "10")
	assert.False(t, ledger.IsInvalidMovement(malformedButIncluded))
}

// =============================================================================
// MONEY TESTS
// =============================================================================

func TestRoundMoney_HalfAwayFromZero(t *testing.T) {
	assertMoney(t, "10.01", ledger.RoundMoney(money("10.005")))
	assertMoney(t, "-10.01", ledger.RoundMoney(money("-10.005")))
	assertMoney(t, "10.00", ledger.RoundMoney(money("10.004")))
	assertMoney(t, "2.35", ledger.RoundMoney(money("2.345")))
}

func TestMaterialDifference(t *testing.T) {
	// Exactly 0.01 apart is rounding noise; anything beyond is drift.

	assert.False(t, ledger.MaterialDifference(money("100.00"), money("100.01")))
	assert.False(t, ledger.MaterialDifference(money("100.01"), money("100.00")))
	assert.True(t, ledger.MaterialDifference(money("100.00"), money("100.02")))
	assert.True(t, ledger.MaterialDifference(money("-5"), money("5")))
	assert.False(t, ledger.MaterialDifference(money("0"), money("0")))
}
