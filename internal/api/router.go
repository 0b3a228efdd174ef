/**
 * @description
 * This file sets up the HTTP router for the ledger-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// LedgerRoutes creates and returns a new router for the ledger service.
func LedgerRoutes(h *LedgerHandlers, jwksURL string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		// Account management
		r.Post("/orgs/{orgID}/accounts", h.CreateAccountHandler)
		r.Get("/orgs/{orgID}/accounts", h.ListAccountsHandler)
		r.Get("/accounts/{accountID}", h.GetAccountHandler)
		r.Get("/accounts/{accountID}/entries", h.ListLedgerEntriesHandler)

		// Invoices
		r.Post("/accounts/{accountID}/invoices", h.CreateInvoiceHandler)
		r.Get("/accounts/{accountID}/invoices", h.ListInvoicesHandler)
		r.Post("/invoices/{invoiceID}/mark-paid", h.MarkInvoicePaidHandler)

		// Payments
		r.Post("/accounts/{accountID}/payments", h.CreatePaymentHandler)
		r.Get("/accounts/{accountID}/payments", h.ListPaymentsHandler)
		r.Get("/accounts/{accountID}/payments/pending", h.ListPendingPaymentsHandler)
		r.Post("/accounts/{accountID}/payment-requests", h.CreatePaymentRequestHandler)
		r.Get("/payments/{paymentID}", h.GetPaymentHandler)
		r.Post("/payments/{paymentID}/mark-paid", h.MarkPaymentPaidHandler)
		r.Post("/payments/{paymentID}/confirm", h.ConfirmPaymentHandler)
		r.Post("/payments/{paymentID}/dispute", h.DisputePaymentHandler)
	})

	return r
}
