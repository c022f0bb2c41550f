/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for the ops/admin API. Monetary amounts cross the wire
  as strings ("150.00"), never floats; they are parsed into
  decimal.Decimal at the boundary.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/ironstore/ledger-engine/invoice"
	"github.com/ironstore/ledger-engine/ledger"
)

// BalanceDTO carries a computed or synced customer balance.
type BalanceDTO struct {
	CustomerID int64  `json:"customer_id"`
	Balance    string `json:"balance"`
}

// CreditDTO carries a customer's available credit.
type CreditDTO struct {
	CustomerID      int64  `json:"customer_id"`
	AvailableCredit string `json:"available_credit"`
}

// InvoiceBalanceDTO carries an invoice's recomputed remaining balance.
type InvoiceBalanceDTO struct {
	InvoiceID        int64  `json:"invoice_id"`
	RemainingBalance string `json:"remaining_balance"`
}

// CleanupDTO wraps the pollution cleanup counts.
type CleanupDTO struct {
	ledger.CleanupCounts
	TotalRemoved int64 `json:"total_removed"`
}

// ReconcileDTO wraps a sweep report.
type ReconcileDTO struct {
	ledger.ReconciliationReport
	Complete bool `json:"complete"`
}

// RepairDTO wraps an invoice batch-repair report.
type RepairDTO struct {
	invoice.RepairReport
	Complete bool `json:"complete"`
}

// VerifyRequest asks whether a settlement's ledger entry landed.
type VerifyRequest struct {
	Amount string `json:"amount"`
}

// VerifyResponse answers a settlement verification.
type VerifyResponse struct {
	SettlementID int64 `json:"settlement_id"`
	Verified     bool  `json:"verified"`
}

// RecoverRequest carries the details needed to synthesize a missing
// settlement entry.
type RecoverRequest struct {
	CustomerID int64  `json:"customer_id"`
	Amount     string `json:"amount"`
	OccurredAt string `json:"occurred_at,omitempty"` // RFC3339; defaults to now
}

// RecoverResponse reports a completed recovery.
type RecoverResponse struct {
	SettlementID int64 `json:"settlement_id"`
	Recovered    bool  `json:"recovered"`
}

// PaymentRequest sets an invoice's cumulative payment amount.
type PaymentRequest struct {
	Amount string `json:"amount"`
}

// ReturnItemRequest records a return against an invoice item.
type ReturnItemRequest struct {
	InvoiceItemID  int64  `json:"invoice_item_id"`
	ReturnQuantity string `json:"return_quantity"`
	UnitPrice      string `json:"unit_price"`
}

// RemainingDTO carries a remaining balance after a return mutation.
type RemainingDTO struct {
	RemainingBalance string `json:"remaining_balance"`
}

// RefundRequest records a cash refund settlement against a customer.
type RefundRequest struct {
	CustomerID int64  `json:"customer_id"`
	Amount     string `json:"amount"`
	OccurredAt string `json:"occurred_at,omitempty"` // RFC3339; defaults to now
}

// RefundResponse reports a settled and verified refund.
type RefundResponse struct {
	SettlementID int64 `json:"settlement_id"`
	Settled      bool  `json:"settled"`
}

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
