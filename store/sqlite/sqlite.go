/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements ledger.TxStore and invoice.TxStore over database/sql with
  parameterized statements. The same patterns apply to PostgreSQL; only
  minor dialect differences.

KEY TABLES:
  customers:      Denormalized balance field + sync timestamp
  ledger_entries: Append-mostly customer ledger (cleanup is the only
                  deleter, and only for pollution rows)
  invoices:       grand_total, payment_amount, derived remaining_balance
  invoice_items:  Invoice lines (return items reference these)
  return_items:   Per-invoice return sub-ledger

AMOUNT STORAGE:
  Monetary values are stored as TEXT decimal strings and parsed with
  shopspring/decimal. Zero comparisons in SQL go through
  CAST(amount AS NUMERIC) so '0' and '0.00' compare equal.

CLEANUP PREDICATES:
  The three DELETE statements must mirror ledger.IsReferencePlaceholder,
  ledger.IsInvalidMovement and ledger.IsStrayZero exactly. Change those
  predicates and these statements together.

WAL MODE:
  Opened with WAL, foreign keys and a busy timeout; multiple readers
  don't block and crash recovery is safe.

SEE ALSO:
  - ledger/store.go, invoice/store.go: Interface contracts
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/ironstore/ledger-engine/invoice"
	"github.com/ironstore/ledger-engine/ledger"
)

// DB owns the SQLite connection and hands out the two store views.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database and migrates the schema.
// Use ":memory:" for an in-memory database.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=10000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows one writer; a second pooled connection would also
	// see a different database entirely when path is ":memory:".
	db.SetMaxOpenConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return d, nil
}

func (d *DB) Close() error { return d.db.Close() }

// Ledger returns the ledger.TxStore view.
func (d *DB) Ledger() *LedgerStore { return &LedgerStore{q: d.db, db: d.db} }

// Invoices returns the invoice.TxStore view.
func (d *DB) Invoices() *InvoiceStore { return &InvoiceStore{q: d.db, db: d.db} }

func (d *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS customers (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		balance TEXT NOT NULL DEFAULT '0',
		balance_updated_at TEXT
	);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL,
		entry_type TEXT NOT NULL,
		transaction_type TEXT NOT NULL,
		amount TEXT NOT NULL DEFAULT '0',
		reference_id INTEGER NOT NULL DEFAULT 0,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_customer
		ON ledger_entries(customer_id);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_reference
		ON ledger_entries(reference_id) WHERE reference_id != 0;
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_type
		ON ledger_entries(transaction_type);

	CREATE TABLE IF NOT EXISTS invoices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL,
		grand_total TEXT NOT NULL DEFAULT '0',
		payment_amount TEXT NOT NULL DEFAULT '0',
		remaining_balance TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_customer
		ON invoices(customer_id);

	CREATE TABLE IF NOT EXISTS invoice_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		invoice_id INTEGER NOT NULL REFERENCES invoices(id),
		quantity TEXT NOT NULL DEFAULT '0',
		unit_price TEXT NOT NULL DEFAULT '0'
	);

	CREATE INDEX IF NOT EXISTS idx_invoice_items_invoice
		ON invoice_items(invoice_id);

	CREATE TABLE IF NOT EXISTS return_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		invoice_item_id INTEGER NOT NULL REFERENCES invoice_items(id),
		return_quantity TEXT NOT NULL DEFAULT '0',
		unit_price TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_return_items_item
		ON return_items(invoice_item_id);
	`
	_, err := d.db.Exec(schema)
	return err
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// LEDGER STORE (ledger.TxStore)
// =============================================================================

type LedgerStore struct {
	q  queryer
	db *sql.DB // nil when tx-bound
}

func (s *LedgerStore) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	if s.db == nil {
		// Already inside a transaction; nest flatly.
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&LedgerStore{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

const entryColumns = `id, customer_id, entry_type, transaction_type, amount, reference_id, description, created_at`

func (s *LedgerStore) EntriesForCustomer(ctx context.Context, id ledger.CustomerID) ([]ledger.Entry, error) {
	query := `SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE customer_id = ?
		ORDER BY created_at ASC, id ASC`

	rows, err := s.q.QueryContext(ctx, query, int64(id))
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (s *LedgerStore) CustomerIDsWithEntries(ctx context.Context) ([]ledger.CustomerID, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT DISTINCT customer_id FROM ledger_entries ORDER BY customer_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query customer ids: %w", err)
	}
	defer rows.Close()

	var ids []ledger.CustomerID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, ledger.CustomerID(id))
	}
	return ids, rows.Err()
}

func (s *LedgerStore) FindSettlementEntry(ctx context.Context, ref ledger.ReferenceID, amount decimal.Decimal) (*ledger.Entry, error) {
	query := `SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE reference_id = ?
		  AND entry_type = ?
		  AND transaction_type IN (?, ?)
		ORDER BY id ASC`

	rows, err := s.q.QueryContext(ctx, query,
		int64(ref), string(ledger.EntryDebit), string(ledger.TxReturn), string(ledger.TxRefund))
	if err != nil {
		return nil, fmt.Errorf("query settlement entry: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	// Amount equality is decided in decimal space, not in SQL, so '150'
	// matches '150.00'.
	want := ledger.RoundMoney(amount)
	for _, e := range entries {
		if ledger.RoundMoney(e.Amount).Equal(want) {
			found := e
			return &found, nil
		}
	}
	return nil, nil
}

func (s *LedgerStore) InsertEntry(ctx context.Context, e ledger.Entry) (int64, error) {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO ledger_entries
		(customer_id, entry_type, transaction_type, amount, reference_id, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		int64(e.CustomerID),
		string(e.EntryType),
		string(e.TransactionType),
		e.Amount.String(),
		int64(e.ReferenceID),
		e.Description,
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("insert ledger entry: %w", err)
	}
	return res.LastInsertId()
}

// Mirrors ledger.IsReferencePlaceholder.
func (s *LedgerStore) RemoveReferencePlaceholders(ctx context.Context) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
		DELETE FROM ledger_entries
		WHERE transaction_type = ?
		  AND CAST(amount AS NUMERIC) = 0
		  AND LOWER(description) LIKE '%' || ? || '%'`,
		string(ledger.TxAdjustment), ledger.ReferencePlaceholderMarker)
	if err != nil {
		return 0, fmt.Errorf("remove reference placeholders: %w", err)
	}
	return res.RowsAffected()
}

// Mirrors ledger.IsInvalidMovement.
func (s *LedgerStore) RemoveInvalidMovements(ctx context.Context) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
		DELETE FROM ledger_entries
		WHERE transaction_type IN (?, ?, ?)
		  AND entry_type NOT IN (?, ?)`,
		string(ledger.TxAdjustment), string(ledger.TxReference), string(ledger.TxBalanceSync),
		string(ledger.EntryDebit), string(ledger.EntryCredit))
	if err != nil {
		return 0, fmt.Errorf("remove invalid movements: %w", err)
	}
	return res.RowsAffected()
}

// Mirrors ledger.IsStrayZero.
func (s *LedgerStore) RemoveStrayZeroEntries(ctx context.Context) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
		DELETE FROM ledger_entries
		WHERE CAST(amount AS NUMERIC) = 0
		  AND transaction_type NOT IN (?, ?)`,
		string(ledger.TxInvoice), string(ledger.TxPayment))
	if err != nil {
		return 0, fmt.Errorf("remove stray zero entries: %w", err)
	}
	return res.RowsAffected()
}

func (s *LedgerStore) StoredBalance(ctx context.Context, id ledger.CustomerID) (decimal.Decimal, error) {
	var raw string
	err := s.q.QueryRowContext(ctx,
		`SELECT balance FROM customers WHERE id = ?`, int64(id)).Scan(&raw)
	if err == sql.ErrNoRows {
		// Ledger activity without a balance record yet reads as zero.
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("read stored balance: %w", err)
	}
	return parseDecimal(raw)
}

func (s *LedgerStore) SetStoredBalance(ctx context.Context, id ledger.CustomerID, balance decimal.Decimal, updatedAt time.Time) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO customers (id, balance, balance_updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			balance = excluded.balance,
			balance_updated_at = excluded.balance_updated_at`,
		int64(id), balance.String(), updatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("write stored balance: %w", err)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for rows.Next() {
		var (
			e         ledger.Entry
			id        int64
			custID    int64
			entryType string
			txType    string
			amount    string
			refID     int64
			createdAt string
		)
		if err := rows.Scan(&id, &custID, &entryType, &txType, &amount, &refID, &e.Description, &createdAt); err != nil {
			return nil, err
		}
		e.ID = id
		e.CustomerID = ledger.CustomerID(custID)
		e.EntryType = ledger.EntryType(entryType)
		e.TransactionType = ledger.TransactionType(txType)
		e.ReferenceID = ledger.ReferenceID(refID)

		var err error
		if e.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// INVOICE STORE (invoice.TxStore)
// =============================================================================

type InvoiceStore struct {
	q  queryer
	db *sql.DB // nil when tx-bound
}

func (s *InvoiceStore) WithTx(ctx context.Context, fn func(invoice.Store) error) error {
	if s.db == nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&InvoiceStore{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *InvoiceStore) Invoice(ctx context.Context, id int64) (*invoice.Invoice, error) {
	var (
		inv       invoice.Invoice
		grand     string
		payment   string
		remaining string
		createdAt string
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, customer_id, grand_total, payment_amount, remaining_balance, created_at
		FROM invoices WHERE id = ?`, id).
		Scan(&inv.ID, &inv.CustomerID, &grand, &payment, &remaining, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read invoice %d: %w", id, err)
	}

	if inv.GrandTotal, err = parseDecimal(grand); err != nil {
		return nil, err
	}
	if inv.PaymentAmount, err = parseDecimal(payment); err != nil {
		return nil, err
	}
	if inv.RemainingBalance, err = parseDecimal(remaining); err != nil {
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		inv.CreatedAt = t
	}
	return &inv, nil
}

func (s *InvoiceStore) InvoiceIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id FROM invoices ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query invoice ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *InvoiceStore) ReturnTotal(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT ri.return_quantity, ri.unit_price
		FROM return_items ri
		JOIN invoice_items ii ON ii.id = ri.invoice_item_id
		WHERE ii.invoice_id = ?`, invoiceID)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("query return items: %w", err)
	}
	defer rows.Close()

	// Summed in decimal space; SQL SUM would go through floats.
	total := decimal.Zero
	for rows.Next() {
		var qtyRaw, priceRaw string
		if err := rows.Scan(&qtyRaw, &priceRaw); err != nil {
			return decimal.Decimal{}, err
		}
		qty, err := parseDecimal(qtyRaw)
		if err != nil {
			return decimal.Decimal{}, err
		}
		price, err := parseDecimal(priceRaw)
		if err != nil {
			return decimal.Decimal{}, err
		}
		total = total.Add(qty.Mul(price))
	}
	return total, rows.Err()
}

func (s *InvoiceStore) SetRemainingBalance(ctx context.Context, invoiceID int64, balance decimal.Decimal) error {
	return s.updateInvoiceField(ctx, invoiceID, `remaining_balance`, balance)
}

func (s *InvoiceStore) SetPaymentAmount(ctx context.Context, invoiceID int64, amount decimal.Decimal) error {
	return s.updateInvoiceField(ctx, invoiceID, `payment_amount`, amount)
}

func (s *InvoiceStore) updateInvoiceField(ctx context.Context, invoiceID int64, column string, value decimal.Decimal) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE invoices SET `+column+` = ? WHERE id = ?`, value.String(), invoiceID)
	if err != nil {
		return fmt.Errorf("update invoice %d: %w", invoiceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrInvoiceNotFound
	}
	return nil
}

func (s *InvoiceStore) InsertReturnItem(ctx context.Context, item invoice.ReturnItem) (int64, error) {
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO return_items (invoice_item_id, return_quantity, unit_price, created_at)
		VALUES (?, ?, ?, ?)`,
		item.InvoiceItemID, item.ReturnQuantity.String(), item.UnitPrice.String(),
		createdAt.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("insert return item: %w", err)
	}
	return res.LastInsertId()
}

func (s *InvoiceStore) ReturnItem(ctx context.Context, id int64) (*invoice.ReturnItem, error) {
	var (
		item      invoice.ReturnItem
		qtyRaw    string
		priceRaw  string
		createdAt string
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, invoice_item_id, return_quantity, unit_price, created_at
		FROM return_items WHERE id = ?`, id).
		Scan(&item.ID, &item.InvoiceItemID, &qtyRaw, &priceRaw, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read return item %d: %w", id, err)
	}

	if item.ReturnQuantity, err = parseDecimal(qtyRaw); err != nil {
		return nil, err
	}
	if item.UnitPrice, err = parseDecimal(priceRaw); err != nil {
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		item.CreatedAt = t
	}
	return &item, nil
}

func (s *InvoiceStore) DeleteReturnItem(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM return_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete return item %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrInvoiceNotFound
	}
	return nil
}

func (s *InvoiceStore) InvoiceIDForItem(ctx context.Context, invoiceItemID int64) (int64, error) {
	var invoiceID int64
	err := s.q.QueryRowContext(ctx,
		`SELECT invoice_id FROM invoice_items WHERE id = ?`, invoiceItemID).Scan(&invoiceID)
	if err == sql.ErrNoRows {
		return 0, ledger.ErrInvoiceNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("resolve invoice for item %d: %w", invoiceItemID, err)
	}
	return invoiceID, nil
}

// =============================================================================
// SEEDING HELPERS - used by cmd tools and tests
// =============================================================================

// CreateInvoice inserts an invoice with its remaining balance initialized
// to the grand total and returns the new ID.
func (s *InvoiceStore) CreateInvoice(ctx context.Context, customerID int64, grandTotal decimal.Decimal, createdAt time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO invoices (customer_id, grand_total, payment_amount, remaining_balance, created_at)
		VALUES (?, ?, '0', ?, ?)`,
		customerID, grandTotal.String(), grandTotal.String(),
		createdAt.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("create invoice: %w", err)
	}
	return res.LastInsertId()
}

// CreateItem inserts an invoice line and returns the new ID.
func (s *InvoiceStore) CreateItem(ctx context.Context, invoiceID int64, quantity, unitPrice decimal.Decimal) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO invoice_items (invoice_id, quantity, unit_price)
		VALUES (?, ?, ?)`,
		invoiceID, quantity.String(), unitPrice.String())
	if err != nil {
		return 0, fmt.Errorf("create invoice item: %w", err)
	}
	return res.LastInsertId()
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("malformed stored amount %q: %w", raw, err)
	}
	return d, nil
}
