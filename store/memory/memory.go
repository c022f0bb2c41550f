/*
Package memory provides in-memory store implementations for tests and
dev mode.

PURPOSE:
  Implements ledger.TxStore and invoice.TxStore without a database.
  Transactions are simulated by snapshot-and-restore: WithTx copies the
  state, runs fn, and restores the copy if fn fails, so rollback
  semantics match the SQLite store.

SEE ALSO:
  - store/sqlite: Production implementation
  - ledger/store.go, invoice/store.go: Interface contracts
*/
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ironstore/ledger-engine/invoice"
	"github.com/ironstore/ledger-engine/ledger"
)

// =============================================================================
// LEDGER STORE
// =============================================================================

type balanceRecord struct {
	balance   decimal.Decimal
	updatedAt time.Time
	exists    bool
}

// Ledger is an in-memory ledger.TxStore.
type Ledger struct {
	mu       sync.RWMutex
	nextID   int64
	entries  []ledger.Entry
	balances map[ledger.CustomerID]balanceRecord
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[ledger.CustomerID]balanceRecord)}
}

func (m *Ledger) EntriesForCustomer(_ context.Context, id ledger.CustomerID) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.Entry
	for _, e := range m.entries {
		if e.CustomerID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Ledger) CustomerIDsWithEntries(_ context.Context) ([]ledger.CustomerID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[ledger.CustomerID]bool)
	for _, e := range m.entries {
		seen[e.CustomerID] = true
	}
	ids := make([]ledger.CustomerID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *Ledger) FindSettlementEntry(_ context.Context, ref ledger.ReferenceID, amount decimal.Decimal) (*ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries {
		if e.ReferenceID != ref || e.EntryType != ledger.EntryDebit {
			continue
		}
		if e.TransactionType != ledger.TxReturn && e.TransactionType != ledger.TxRefund {
			continue
		}
		if ledger.RoundMoney(e.Amount).Equal(ledger.RoundMoney(amount)) {
			found := e
			return &found, nil
		}
	}
	return nil, nil
}

func (m *Ledger) InsertEntry(_ context.Context, e ledger.Entry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	e.ID = m.nextID
	m.entries = append(m.entries, e)
	return e.ID, nil
}

func (m *Ledger) RemoveReferencePlaceholders(_ context.Context) (int64, error) {
	return m.removeMatching(ledger.IsReferencePlaceholder), nil
}

func (m *Ledger) RemoveInvalidMovements(_ context.Context) (int64, error) {
	return m.removeMatching(ledger.IsInvalidMovement), nil
}

func (m *Ledger) RemoveStrayZeroEntries(_ context.Context) (int64, error) {
	return m.removeMatching(ledger.IsStrayZero), nil
}

func (m *Ledger) removeMatching(pred func(ledger.Entry) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []ledger.Entry
	var removed int64
	for _, e := range m.entries {
		if pred(e) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return removed
}

func (m *Ledger) StoredBalance(_ context.Context, id ledger.CustomerID) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rec, ok := m.balances[id]; ok {
		return rec.balance, nil
	}
	return decimal.Zero, nil
}

func (m *Ledger) SetStoredBalance(_ context.Context, id ledger.CustomerID, balance decimal.Decimal, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.balances[id] = balanceRecord{balance: balance, updatedAt: updatedAt, exists: true}
	return nil
}

// BalanceUpdatedAt returns the last sync timestamp for a customer.
// Test helper; not part of the store interfaces.
func (m *Ledger) BalanceUpdatedAt(id ledger.CustomerID) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.balances[id]
	return rec.updatedAt, ok && rec.exists
}

// RemoveEntry deletes an entry by ID. Test helper for simulating lost
// writes; the engine itself never deletes non-pollution entries.
func (m *Ledger) RemoveEntry(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []ledger.Entry
	for _, e := range m.entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	m.entries = kept
}

func (m *Ledger) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	snapshot := make([]ledger.Entry, len(m.entries))
	copy(snapshot, m.entries)
	balances := make(map[ledger.CustomerID]balanceRecord, len(m.balances))
	for k, v := range m.balances {
		balances[k] = v
	}
	nextID := m.nextID
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.entries = snapshot
		m.balances = balances
		m.nextID = nextID
		m.mu.Unlock()
		return err
	}
	return nil
}

// =============================================================================
// INVOICE STORE
// =============================================================================

// Invoices is an in-memory invoice.TxStore.
type Invoices struct {
	mu       sync.RWMutex
	nextID   int64
	invoices map[int64]invoice.Invoice
	items    map[int64]invoice.Item
	returns  map[int64]invoice.ReturnItem
}

func NewInvoices() *Invoices {
	return &Invoices{
		invoices: make(map[int64]invoice.Invoice),
		items:    make(map[int64]invoice.Item),
		returns:  make(map[int64]invoice.ReturnItem),
	}
}

// PutInvoice seeds or replaces an invoice record.
func (m *Invoices) PutInvoice(inv invoice.Invoice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[inv.ID] = inv
}

// PutItem seeds or replaces an invoice item.
func (m *Invoices) PutItem(item invoice.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
}

func (m *Invoices) Invoice(_ context.Context, id int64) (*invoice.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inv, ok := m.invoices[id]
	if !ok {
		return nil, ledger.ErrInvoiceNotFound
	}
	out := inv
	return &out, nil
}

func (m *Invoices) InvoiceIDs(_ context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(m.invoices))
	for id := range m.invoices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *Invoices) ReturnTotal(_ context.Context, invoiceID int64) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := decimal.Zero
	for _, r := range m.returns {
		item, ok := m.items[r.InvoiceItemID]
		if !ok || item.InvoiceID != invoiceID {
			continue
		}
		total = total.Add(r.Value())
	}
	return total, nil
}

func (m *Invoices) SetRemainingBalance(_ context.Context, invoiceID int64, balance decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invoices[invoiceID]
	if !ok {
		return ledger.ErrInvoiceNotFound
	}
	inv.RemainingBalance = balance
	m.invoices[invoiceID] = inv
	return nil
}

func (m *Invoices) SetPaymentAmount(_ context.Context, invoiceID int64, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invoices[invoiceID]
	if !ok {
		return ledger.ErrInvoiceNotFound
	}
	inv.PaymentAmount = amount
	m.invoices[invoiceID] = inv
	return nil
}

func (m *Invoices) InsertReturnItem(_ context.Context, item invoice.ReturnItem) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	item.ID = m.nextID
	m.returns[item.ID] = item
	return item.ID, nil
}

func (m *Invoices) ReturnItem(_ context.Context, id int64) (*invoice.ReturnItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.returns[id]
	if !ok {
		return nil, ledger.ErrInvoiceNotFound
	}
	out := item
	return &out, nil
}

func (m *Invoices) DeleteReturnItem(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.returns[id]; !ok {
		return ledger.ErrInvoiceNotFound
	}
	delete(m.returns, id)
	return nil
}

func (m *Invoices) InvoiceIDForItem(_ context.Context, invoiceItemID int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[invoiceItemID]
	if !ok {
		return 0, ledger.ErrInvoiceNotFound
	}
	return item.InvoiceID, nil
}

func (m *Invoices) WithTx(_ context.Context, fn func(invoice.Store) error) error {
	m.mu.Lock()
	invoices := make(map[int64]invoice.Invoice, len(m.invoices))
	for k, v := range m.invoices {
		invoices[k] = v
	}
	items := make(map[int64]invoice.Item, len(m.items))
	for k, v := range m.items {
		items[k] = v
	}
	returns := make(map[int64]invoice.ReturnItem, len(m.returns))
	for k, v := range m.returns {
		returns[k] = v
	}
	nextID := m.nextID
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.invoices = invoices
		m.items = items
		m.returns = returns
		m.nextID = nextID
		m.mu.Unlock()
		return err
	}
	return nil
}
