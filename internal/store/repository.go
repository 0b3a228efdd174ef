/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all data access operations required by the ledger-service. By defining
 * an interface, we decouple the application's business logic from the
 * specific database implementation (e.g., PostgreSQL), making the code more
 * modular and easier to test.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/tradelink/ledger-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
//
// Every method that moves money is atomic end-to-end: the balance mutation on
// both mirrored accounts and the ledger entries documenting it either all
// commit or none do.
type Repository interface {
	// Organization membership (read-only collaborator data)
	IsOrgMember(ctx context.Context, orgID uuid.UUID, userID uuid.UUID) (bool, error)

	// Account pair methods
	GetOrCreateAccountPair(ctx context.Context, ownerOrgID, counterpartyOrgID uuid.UUID) (account *domain.Account, isNew bool, err error)
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	FindAccountByOrgPair(ctx context.Context, ownerOrgID, counterpartyOrgID uuid.UUID) (*domain.Account, error)
	ListAccountsByOwner(ctx context.Context, orgID uuid.UUID, opts domain.ListOptions) ([]domain.Account, error)

	// Ledger timeline
	ListLedgerEntries(ctx context.Context, accountID uuid.UUID, opts domain.ListOptions) ([]domain.LedgerEntry, error)

	// Invoice methods
	CreateInvoiceWithEntries(ctx context.Context, invoice *domain.Invoice) error
	FindInvoiceByID(ctx context.Context, invoiceID uuid.UUID) (*domain.Invoice, error)
	MarkInvoicePaid(ctx context.Context, invoiceID uuid.UUID) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, accountID uuid.UUID, opts domain.ListOptions) ([]domain.Invoice, error)

	// Payment methods
	CreateDirectPayment(ctx context.Context, payment *domain.Payment) error
	CreatePaymentRequest(ctx context.Context, payment *domain.Payment) error
	FindPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error)
	MarkPaymentAsPaid(ctx context.Context, paymentID uuid.UUID, params MarkPaymentPaidParams) (*domain.Payment, error)
	ConfirmPayment(ctx context.Context, paymentID uuid.UUID, confirmedBy uuid.UUID) (*domain.Payment, error)
	DisputePayment(ctx context.Context, paymentID uuid.UUID, disputedBy uuid.UUID, reason string) (*domain.Payment, error)
	ListPayments(ctx context.Context, accountID uuid.UUID, opts domain.PaymentListOptions) ([]domain.Payment, error)
	ListPendingPayments(ctx context.Context, accountID uuid.UUID, opts domain.ListOptions) ([]domain.Payment, error)
}

// MarkPaymentPaidParams carries the debtor's attestation written during the
// PENDING -> MARKED_AS_PAID transition.
type MarkPaymentPaidParams struct {
	MarkedPaidBy  uuid.UUID
	Mode          string
	UTRNumber     string
	ProofNote     string
	AttachmentIDs []string
}
