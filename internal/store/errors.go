/**
 * @description
 * This file defines the error taxonomy surfaced by the storage layer. The
 * service and API layers translate these into HTTP responses with errors.Is /
 * errors.As, so no SQL detail leaks past this package.
 */

package store

import (
	"errors"
	"fmt"

	"github.com/tradelink/ledger-service/internal/domain"
)

var (
	ErrAccountNotFound         = errors.New("account not found")
	ErrInvoiceNotFound         = errors.New("invoice not found")
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrInsufficientBalance     = errors.New("insufficient account balance")
	ErrDuplicateInvoiceNumber  = errors.New("invoice number already used on this account")
	ErrInvoiceAlreadyPaid      = errors.New("invoice is already paid")
	ErrSameOrganizationAccount = errors.New("owner and counterparty organization must differ")

	// ErrMirrorAccountMissing indicates data corruption: an account exists
	// without its mirror row. The whole transaction aborts when this is seen.
	ErrMirrorAccountMissing = errors.New("mirror account missing")
)

// InvalidPaymentStatusError is returned when a payment transition is attempted
// from a status the protocol does not allow. It names the current status so
// callers can see what was illegal without a second fetch.
type InvalidPaymentStatusError struct {
	Current   domain.PaymentStatus
	Attempted domain.PaymentStatus
}

func (e *InvalidPaymentStatusError) Error() string {
	return fmt.Sprintf("payment is %s; cannot transition to %s", e.Current, e.Attempted)
}
