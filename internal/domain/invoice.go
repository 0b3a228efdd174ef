/**
 * @description
 * This file defines the invoice domain model and its request payloads.
 * An invoice is a billing document issued by the account owner to the
 * counterparty; creating one applies a mirrored balance delta to both sides
 * of the relationship in a single atomic unit.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Invoice statuses. Reconciliation moves an invoice from OPEN to PAID; the
// transition has no ledger effect of its own.
const (
	InvoiceStatusOpen = "OPEN"
	InvoiceStatusPaid = "PAID"
)

// Invoice maps directly to the `invoices` table. InvoiceNumber is unique per
// account, not globally, so two accounts may reuse the same number.
type Invoice struct {
	ID            uuid.UUID  `json:"id"`
	AccountID     uuid.UUID  `json:"account_id"`
	InvoiceNumber string     `json:"invoice_number"`
	Amount        int64      `json:"amount"` // in paise
	Description   string     `json:"description"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	Status        string     `json:"status"`
	CreatedBy     uuid.UUID  `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// CreateInvoicePayload is the DTO for issuing a new invoice on an account.
type CreateInvoicePayload struct {
	InvoiceNumber string     `json:"invoice_number" validate:"required"`
	Amount        int64      `json:"amount" validate:"required,gt=0"`
	Description   string     `json:"description"`
	DueDate       *time.Time `json:"due_date,omitempty"`
}

// InvoiceCreatedEvent is the message payload published when an invoice has
// been committed to both sides of the ledger.
type InvoiceCreatedEvent struct {
	InvoiceID     uuid.UUID `json:"invoice_id"`
	AccountID     uuid.UUID `json:"account_id"`
	InvoiceNumber string    `json:"invoice_number"`
	Amount        int64     `json:"amount"`
	CreatedBy     uuid.UUID `json:"created_by"`
	Timestamp     time.Time `json:"timestamp"`
}
