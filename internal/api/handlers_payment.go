/**
 * @description
 * This file contains the HTTP handlers for payment endpoints. Two shapes of
 * payment flow through here: direct payments recorded as already settled, and
 * requested payments walking the two-party confirmation protocol
 * (request -> mark-paid -> confirm | dispute).
 */

package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/tradelink/ledger-service/internal/domain"
)

// CreatePaymentHandler records a direct (already settled) payment with
// immediate ledger effect.
func (h *LedgerHandlers) CreatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requestUserID(w, r)
	if !ok {
		return
	}
	accountID, ok := h.pathUUID(w, r, "accountID")
	if !ok {
		return
	}

	var payload domain.CreatePaymentPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	payment, err := h.service.CreatePayment(r.Context(), userID, accountID, payload)
	if err != nil {
		h.handleServiceError(w, "create_payment", err)
		return
	}

	log.Printf("level=info component=api endpoint=create_payment outcome=created payment_id=%s account_id=%s amount=%d",
		payment.ID, accountID, payment.Amount)
	h.writeJSON(w, http.StatusCreated, payment)
}

// CreatePaymentRequestHandler opens the two-party confirmation protocol.
func (h *LedgerHandlers) CreatePaymentRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requestUserID(w, r)
	if !ok {
		return
	}
	accountID, ok := h.pathUUID(w, r, "accountID")
	if !ok {
		return
	}

	var payload domain.CreatePaymentRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	payment, err := h.service.CreatePaymentRequest(r.Context(), userID, accountID, payload)
	if err != nil {
		h.handleServiceError(w, "create_payment_request", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, payment)
}

// MarkPaymentPaidHandler records the debtor's attestation that money was sent.
func (h *LedgerHandlers) MarkPaymentPaidHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requestUserID(w, r)
	if !ok {
		return
	}
	paymentID, ok := h.pathUUID(w, r, "paymentID")
	if !ok {
		return
	}

	var payload domain.MarkPaymentPaidPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	payment, err := h.service.MarkPaymentAsPaid(r.Context(), userID, paymentID, payload)
	if err != nil {
		h.handleServiceError(w, "mark_payment_paid", err)
		return
	}
	h.writeJSON(w, http.StatusOK, payment)
}

// ConfirmPaymentHandler is the creditor's final verification; the only
// transition of a requested payment that mutates balances.
func (h *LedgerHandlers) ConfirmPaymentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requestUserID(w, r)
	if !ok {
		return
	}
	paymentID, ok := h.pathUUID(w, r, "paymentID")
	if !ok {
		return
	}

	payment, err := h.service.ConfirmPayment(r.Context(), userID, paymentID)
	if err != nil {
		h.handleServiceError(w, "confirm_payment", err)
		return
	}

	log.Printf("level=info component=api endpoint=confirm_payment outcome=confirmed payment_id=%s amount=%d",
		payment.ID, payment.Amount)
	h.writeJSON(w, http.StatusOK, payment)
}

// DisputePaymentHandler records the creditor's rejection of an attestation.
func (h *LedgerHandlers) DisputePaymentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requestUserID(w, r)
	if !ok {
		return
	}
	paymentID, ok := h.pathUUID(w, r, "paymentID")
	if !ok {
		return
	}

	var payload domain.DisputePaymentPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	payment, err := h.service.DisputePayment(r.Context(), userID, paymentID, payload)
	if err != nil {
		h.handleServiceError(w, "dispute_payment", err)
		return
	}
	h.writeJSON(w, http.StatusOK, payment)
}

// GetPaymentHandler fetches a single payment visible to the caller.
func (h *LedgerHandlers) GetPaymentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requestUserID(w, r)
	if !ok {
		return
	}
	paymentID, ok := h.pathUUID(w, r, "paymentID")
	if !ok {
		return
	}

	payment, err := h.service.GetPayment(r.Context(), userID, paymentID)
	if err != nil {
		h.handleServiceError(w, "get_payment", err)
		return
	}
	h.writeJSON(w, http.StatusOK, payment)
}

// ListPaymentsHandler lists payments for an account, optionally filtered by
// status (?status=PENDING etc).
func (h *LedgerHandlers) ListPaymentsHandler(w http.ResponseWriter, r *http.Request) {
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

	status := domain.PaymentStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))))
	switch status {
	case "", domain.PaymentStatusPending, domain.PaymentStatusMarkedAsPaid,
		domain.PaymentStatusConfirmed, domain.PaymentStatusDisputed:
	default:
		h.writeError(w, http.StatusBadRequest, "Invalid status filter")
		return
	}

	payments, err := h.service.ListPayments(r.Context(), userID, accountID, domain.PaymentListOptions{
		Limit:  opts.Limit,
		Offset: opts.Offset,
		Status: status,
	})
	if err != nil {
		h.handleServiceError(w, "list_payments", err)
		return
	}
	if payments == nil {
		payments = []domain.Payment{}
	}
	h.writeJSON(w, http.StatusOK, payments)
}

// ListPendingPaymentsHandler lists payments still awaiting attestation or
// confirmation, oldest first.
func (h *LedgerHandlers) ListPendingPaymentsHandler(w http.ResponseWriter, r *http.Request) {
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

	payments, err := h.service.ListPendingPayments(r.Context(), userID, accountID, opts)
	if err != nil {
		h.handleServiceError(w, "list_pending_payments", err)
		return
	}
	if payments == nil {
		payments = []domain.Payment{}
	}
	h.writeJSON(w, http.StatusOK, payments)
}
