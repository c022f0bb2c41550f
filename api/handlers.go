/*
handlers.go - HTTP handlers for the ledger reconciliation API

PURPOSE:
  Thin HTTP layer over the ledger and invoice services. Handlers parse
  and validate input, call a service, and map errors to status codes.
  No business logic lives here.

ERROR MAPPING:
  - Bad input (malformed id, unparseable amount)  -> 400
  - ledger.IsNotFound                             -> 404
  - everything else                               -> 500

SEE ALSO:
  - server.go: Routes to these handlers
  - dto.go: Request/response types
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ironstore/ledger-engine/events"
	"github.com/ironstore/ledger-engine/invoice"
	"github.com/ironstore/ledger-engine/ledger"
)

// Handler assembles the services behind the API.
type Handler struct {
	calc     *ledger.Calculator
	sync     *ledger.Synchronizer
	cleaner  *ledger.Cleaner
	sweep    *ledger.Sweep
	settle   *ledger.SettlementVerifier
	invoices *invoice.Maintainer
	logger   logrus.FieldLogger
}

// NewHandler wires the full service graph from the two stores, the
// event bus and a logger.
func NewHandler(ledgerStore ledger.TxStore, invoiceStore invoice.TxStore, bus events.Bus, logger logrus.FieldLogger) *Handler {
	calc := ledger.NewCalculator(ledgerStore)
	sync := ledger.NewSynchronizer(ledgerStore, calc, bus, logger)
	cleaner := ledger.NewCleaner(ledgerStore, logger)
	sweep := ledger.NewSweep(ledgerStore, cleaner, calc, sync, logger)
	settle := ledger.NewSettlementVerifier(ledgerStore, logger)
	maintainer := invoice.NewMaintainer(invoiceStore, logger)

	return &Handler{
		calc:     calc,
		sync:     sync,
		cleaner:  cleaner,
		sweep:    sweep,
		settle:   settle,
		invoices: maintainer,
		logger:   logger,
	}
}

// Sweep exposes the assembled reconciliation sweep for schedulers.
func (h *Handler) Sweep() *ledger.Sweep { return h.sweep }

// === Customer balance handlers ===

// GetBalance computes the authoritative balance from ledger entries.
// An optional exclude_ref query param ignores entries referencing that
// business object.
// GET /api/customers/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	exclude, ok := excludeRef(w, r)
	if !ok {
		return
	}
	balance, err := h.calc.ComputeBalance(r.Context(), ledger.CustomerID(id), exclude)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{CustomerID: id, Balance: balance.StringFixed(2)})
}

// GetCredit reports how much prepaid credit a customer holds.
// GET /api/customers/{id}/credit
func (h *Handler) GetCredit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	exclude, ok := excludeRef(w, r)
	if !ok {
		return
	}
	credit, err := h.calc.ComputeAvailableCredit(r.Context(), ledger.CustomerID(id), exclude)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, CreditDTO{CustomerID: id, AvailableCredit: credit.StringFixed(2)})
}

// SyncBalance recomputes and persists a customer's denormalized balance.
// POST /api/customers/{id}/sync
func (h *Handler) SyncBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	balance, err := h.sync.SyncCustomerBalance(r.Context(), ledger.CustomerID(id))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{CustomerID: id, Balance: balance.StringFixed(2)})
}

// === Admin handlers ===

// Cleanup removes polluted ledger entries.
// POST /api/admin/cleanup
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	counts, err := h.cleaner.CleanupPollution(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, CleanupDTO{CleanupCounts: counts, TotalRemoved: counts.Total()})
}

// Reconcile runs a full reconciliation sweep synchronously.
// POST /api/admin/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.sweep.ReconcileAll(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ReconcileDTO{ReconciliationReport: report, Complete: report.Complete()})
}

// RepairInvoices recomputes remaining balances across all invoices.
// POST /api/admin/invoices/repair
func (h *Handler) RepairInvoices(w http.ResponseWriter, r *http.Request) {
	report, err := h.invoices.RepairAll(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, RepairDTO{RepairReport: report, Complete: len(report.Failures) == 0})
}

// === Invoice handlers ===

// RecomputeInvoice recomputes one invoice's remaining balance.
// POST /api/invoices/{id}/recompute
func (h *Handler) RecomputeInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	remaining, err := h.invoices.RecomputeBalance(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, InvoiceBalanceDTO{InvoiceID: id, RemainingBalance: remaining.StringFixed(2)})
}

// ApplyPayment sets an invoice's cumulative payment amount and
// recomputes its remaining balance.
// POST /api/invoices/{id}/payment
func (h *Handler) ApplyPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeBadRequest(w, "invalid amount", err)
		return
	}
	remaining, err := h.invoices.ApplyPayment(r.Context(), id, amount)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, InvoiceBalanceDTO{InvoiceID: id, RemainingBalance: remaining.StringFixed(2)})
}

// RecordReturn records a return against an invoice item and recomputes
// the owning invoice's remaining balance in the same transaction.
// POST /api/invoices/returns
func (h *Handler) RecordReturn(w http.ResponseWriter, r *http.Request) {
	var req ReturnItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body", err)
		return
	}
	qty, err := decimal.NewFromString(req.ReturnQuantity)
	if err != nil {
		writeBadRequest(w, "invalid return_quantity", err)
		return
	}
	price, err := decimal.NewFromString(req.UnitPrice)
	if err != nil {
		writeBadRequest(w, "invalid unit_price", err)
		return
	}
	item := invoice.ReturnItem{
		InvoiceItemID:  req.InvoiceItemID,
		ReturnQuantity: qty,
		UnitPrice:      price,
	}
	remaining, err := h.invoices.RecordReturnItem(r.Context(), item)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, RemainingDTO{RemainingBalance: remaining.StringFixed(2)})
}

// DeleteReturn removes a return record and recomputes the owning
// invoice's remaining balance.
// DELETE /api/invoices/returns/{id}
func (h *Handler) DeleteReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	remaining, err := h.invoices.DeleteReturnItem(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, RemainingDTO{RemainingBalance: remaining.StringFixed(2)})
}

// === Settlement handlers ===

// VerifySettlement checks whether the outgoing ledger entry for a cash
// settlement exists.
// POST /api/settlements/{id}/verify
func (h *Handler) VerifySettlement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeBadRequest(w, "invalid amount", err)
		return
	}
	verified, err := h.settle.VerifySettlementEntry(r.Context(), ledger.ReferenceID(id), amount)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{SettlementID: id, Verified: verified})
}

// RecoverSettlement synthesizes the outgoing entry for a settlement
// whose original write was lost.
// POST /api/settlements/{id}/recover
func (h *Handler) RecoverSettlement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req RecoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeBadRequest(w, "invalid amount", err)
		return
	}
	occurredAt := time.Now().UTC()
	if req.OccurredAt != "" {
		occurredAt, err = time.Parse(time.RFC3339, req.OccurredAt)
		if err != nil {
			writeBadRequest(w, "invalid occurred_at", err)
			return
		}
	}
	details := ledger.SettlementDetails{
		SettlementID: ledger.ReferenceID(id),
		CustomerID:   ledger.CustomerID(req.CustomerID),
		Amount:       amount,
		OccurredAt:   occurredAt,
	}
	if err := h.settle.RecoverMissingSettlementEntry(r.Context(), details); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, RecoverResponse{SettlementID: id, Recovered: true})
}

// SettleRefund writes the outgoing entry for a cash refund and
// verifies it landed, recovering it when it did not.
// POST /api/settlements/{id}/refund
func (h *Handler) SettleRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeBadRequest(w, "invalid amount", err)
		return
	}
	occurredAt := time.Now().UTC()
	if req.OccurredAt != "" {
		occurredAt, err = time.Parse(time.RFC3339, req.OccurredAt)
		if err != nil {
			writeBadRequest(w, "invalid occurred_at", err)
			return
		}
	}
	details := ledger.SettlementDetails{
		SettlementID: ledger.ReferenceID(id),
		CustomerID:   ledger.CustomerID(req.CustomerID),
		Amount:       amount,
		OccurredAt:   occurredAt,
	}
	if err := h.settle.SettleRefund(r.Context(), details); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, RefundResponse{SettlementID: id, Settled: true})
}

// Health reports liveness.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// === Helpers ===

// excludeRef parses the optional exclude_ref query param.
func excludeRef(w http.ResponseWriter, r *http.Request) (*ledger.ReferenceID, bool) {
	raw := r.URL.Query().Get("exclude_ref")
	if raw == "" {
		return nil, true
	}
	ref, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ref <= 0 {
		writeBadRequest(w, "invalid exclude_ref", err)
		return nil, false
	}
	return ledger.ExcludeRef(ref), true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, "invalid "+name, err)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, msg string, err error) {
	resp := ErrorResponse{Error: msg}
	if err != nil {
		resp.Detail = err.Error()
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

func writeError(w http.ResponseWriter, logger logrus.FieldLogger, err error) {
	status := http.StatusInternalServerError
	if ledger.IsNotFound(err) {
		status = http.StatusNotFound
	}
	if logger != nil && status >= 500 {
		logger.WithError(err).Error("request failed")
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
