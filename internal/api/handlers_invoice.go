/**
 * @description
 * This file contains the HTTP handlers for invoice endpoints: issuing an
 * invoice against an account (which applies the mirrored balance delta),
 * marking an invoice paid, and listing invoices.
 */

package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/tradelink/ledger-service/internal/domain"
)

// CreateInvoiceHandler issues an invoice against an account.
func (h *LedgerHandlers) CreateInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requestUserID(w, r)
	if !ok {
		return
	}
	accountID, ok := h.pathUUID(w, r, "accountID")
	if !ok {
		return
	}

	var payload domain.CreateInvoicePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	invoice, err := h.service.CreateInvoice(r.Context(), userID, accountID, payload)
	if err != nil {
		h.handleServiceError(w, "create_invoice", err)
		return
	}

	log.Printf("level=info component=api endpoint=create_invoice outcome=created invoice_id=%s account_id=%s amount=%d",
		invoice.ID, accountID, invoice.Amount)
	h.writeJSON(w, http.StatusCreated, invoice)
}

// MarkInvoicePaidHandler transitions an invoice from OPEN to PAID.
func (h *LedgerHandlers) MarkInvoicePaidHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requestUserID(w, r)
	if !ok {
		return
	}
	invoiceID, ok := h.pathUUID(w, r, "invoiceID")
	if !ok {
		return
	}

	invoice, err := h.service.MarkInvoicePaid(r.Context(), userID, invoiceID)
	if err != nil {
		h.handleServiceError(w, "mark_invoice_paid", err)
		return
	}
	h.writeJSON(w, http.StatusOK, invoice)
}

// ListInvoicesHandler lists invoices for an account, newest first.
func (h *LedgerHandlers) ListInvoicesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requestUserID(w, r)
	if !ok {
		return
	}
	accountID, ok := h.pathUUID(w, r, "accountID")
	if !ok {
		return
	}
	opts, ok := h.parseListOptions(w, r)
	if !ok {
		return
	}

	invoices, err := h.service.ListInvoices(r.Context(), userID, accountID, opts)
	if err != nil {
		h.handleServiceError(w, "list_invoices", err)
		return
	}
	if invoices == nil {
		invoices = []domain.Invoice{}
	}
	h.writeJSON(w, http.StatusOK, invoices)
}
