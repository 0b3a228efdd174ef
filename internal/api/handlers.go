/**
 * @description
 * This file contains the HTTP handlers for the ledger-service's account and
 * ledger timeline endpoints. Handlers are responsible for parsing incoming
 * requests, calling the appropriate methods on the application service, and
 * writing the HTTP response. They act as the bridge between the web layer and
 * the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/tradelink/ledger-service/internal/app"
	"github.com/tradelink/ledger-service/internal/domain"
	"github.com/tradelink/ledger-service/internal/store"
)

// LedgerHandlers holds the application service that handlers will use.
type LedgerHandlers struct {
	service *app.Service
}

// NewLedgerHandlers creates a new instance of LedgerHandlers.
func NewLedgerHandlers(service *app.Service) *LedgerHandlers {
	return &LedgerHandlers{service: service}
}

// requestUserID extracts the authenticated caller's UUID from the request
// context. It writes the error response itself when extraction fails.
func (h *LedgerHandlers) requestUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userIDStr, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid user ID format")
		return uuid.Nil, false
	}
	return userID, true
}

// pathUUID parses a UUID URL parameter, writing the error response on failure.
func (h *LedgerHandlers) pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s format", param))
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalPositiveInt(raw string, defaultValue int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, errors.New("must be >= 0")
	}
	return value, nil
}

// parseListOptions reads limit/offset query parameters. The storage layer
// clamps the limit again, so oversized values are accepted here.
func (h *LedgerHandlers) parseListOptions(w http.ResponseWriter, r *http.Request) (domain.ListOptions, bool) {
	limit, err := parseOptionalPositiveInt(r.URL.Query().Get("limit"), 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid limit")
		return domain.ListOptions{}, false
	}
	offset, err := parseOptionalPositiveInt(r.URL.Query().Get("offset"), 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid offset")
		return domain.ListOptions{}, false
	}
	return domain.ListOptions{Limit: limit, Offset: offset}, true
}

// handleServiceError translates service and storage errors into HTTP
// responses. Handlers call it as the final fallback after endpoint-specific
// mappings.
func (h *LedgerHandlers) handleServiceError(w http.ResponseWriter, endpoint string, err error) {
	var validationErrs validator.ValidationErrors
	var statusErr *store.InvalidPaymentStatusError
	var rateErr *app.RateLimitedError

	switch {
	case errors.As(err, &validationErrs):
		h.writeError(w, http.StatusBadRequest, validationErrs.Error())
	case errors.Is(err, app.ErrForbidden):
		h.writeError(w, http.StatusForbidden, "Caller is not a member of the required organization")
	case errors.Is(err, store.ErrAccountNotFound):
		h.writeError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, store.ErrInvoiceNotFound):
		h.writeError(w, http.StatusNotFound, "Invoice not found")
	case errors.Is(err, store.ErrPaymentNotFound):
		h.writeError(w, http.StatusNotFound, "Payment not found")
	case errors.Is(err, store.ErrInsufficientBalance):
		h.writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, store.ErrDuplicateInvoiceNumber):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrInvoiceAlreadyPaid):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrSameOrganizationAccount):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &statusErr):
		h.writeError(w, http.StatusUnprocessableEntity, statusErr.Error())
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
		h.writeError(w, http.StatusTooManyRequests, rateErr.Error())
	case errors.Is(err, store.ErrMirrorAccountMissing):
		log.Printf("level=error component=api endpoint=%s outcome=failed reason=mirror_account_missing err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	default:
		log.Printf("level=error component=api endpoint=%s outcome=failed err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// CreateAccountHandler establishes (or fetches) the mirrored account pair
// between the caller's organization and a counterparty.
func (h *LedgerHandlers) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requestUserID(w, r)
	if !ok {
		return
	}
	orgID, ok := h.pathUUID(w, r, "orgID")
	if !ok {
		return
	}

	var payload domain.CreateAccountPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.CreateOrGetAccount(r.Context(), userID, orgID, payload)
	if err != nil {
		h.handleServiceError(w, "create_account", err)
		return
	}

	status := http.StatusOK
	if result.IsNew {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, result)
}

// ListAccountsHandler lists the accounts owned by an organization.
func (h *LedgerHandlers) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requestUserID(w, r)
	if !ok {
		return
	}
	orgID, ok := h.pathUUID(w, r, "orgID")
	if !ok {
		return
	}
	opts, ok := h.parseListOptions(w, r)
	if !ok {
		return
	}

	accounts, err := h.service.ListAccounts(r.Context(), userID, orgID, opts)
	if err != nil {
		h.handleServiceError(w, "list_accounts", err)
		return
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

// GetAccountHandler fetches a single account visible to the caller.
func (h *LedgerHandlers) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requestUserID(w, r)
	if !ok {
		return
	}
	accountID, ok := h.pathUUID(w, r, "accountID")
	if !ok {
		return
	}

	account, err := h.service.GetAccount(r.Context(), userID, accountID)
	if err != nil {
		h.handleServiceError(w, "get_account", err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// ListLedgerEntriesHandler returns the account's audit timeline, newest first.
func (h *LedgerHandlers) ListLedgerEntriesHandler(w http.ResponseWriter, r *http.Request) {
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

	entries, err := h.service.ListLedgerEntries(r.Context(), userID, accountID, opts)
	if err != nil {
		h.handleServiceError(w, "list_ledger_entries", err)
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	h.writeJSON(w, http.StatusOK, entries)
}

// writeJSON is a helper for writing JSON responses.
func (h *LedgerHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *LedgerHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
