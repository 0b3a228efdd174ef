/**
 * @description
 * This file defines the payment domain model, the payment confirmation state
 * machine statuses, and the request payloads for each transition.
 *
 * Two payment shapes share this model:
 * - A requested payment walks the two-party protocol
 *   (PENDING -> MARKED_AS_PAID -> CONFIRMED | DISPUTED) and only mutates
 *   balances on confirmation by the creditor.
 * - A direct payment is recorded already settled (CONFIRMED) and applies its
 *   mirrored balance delta immediately.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the state of a payment within the confirmation protocol.
type PaymentStatus string

const (
	PaymentStatusPending      PaymentStatus = "PENDING"
	PaymentStatusMarkedAsPaid PaymentStatus = "MARKED_AS_PAID"
	PaymentStatusConfirmed    PaymentStatus = "CONFIRMED"
	PaymentStatusDisputed     PaymentStatus = "DISPUTED"
)

// Terminal reports whether no further transition may leave this status.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusConfirmed || s == PaymentStatusDisputed
}

// CanTransitionTo reports whether the protocol permits moving from s to next.
// Only two edges exist beyond creation: PENDING -> MARKED_AS_PAID and
// MARKED_AS_PAID -> CONFIRMED | DISPUTED.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next == PaymentStatusMarkedAsPaid
	case PaymentStatusMarkedAsPaid:
		return next == PaymentStatusConfirmed || next == PaymentStatusDisputed
	default:
		return false
	}
}

// Payment maps directly to the `payments` table.
type Payment struct {
	ID        uuid.UUID     `json:"id"`
	AccountID uuid.UUID     `json:"account_id"`
	Amount    int64         `json:"amount"` // in paise
	Tag       string        `json:"tag"`    // free-form purpose classifier
	Mode      string        `json:"mode"`   // e.g. 'upi', 'neft', 'cash'
	Reference string        `json:"reference"` // external reference / UTR
	Remarks   string        `json:"remarks"`
	Status    PaymentStatus `json:"status"`
	InvoiceID *uuid.UUID    `json:"invoice_id,omitempty"`

	RequestedBy   uuid.UUID  `json:"requested_by"`
	MarkedPaidBy  *uuid.UUID `json:"marked_paid_by,omitempty"`
	MarkedPaidAt  *time.Time `json:"marked_paid_at,omitempty"`
	ProofNote     string     `json:"proof_note,omitempty"`
	AttachmentIDs []string   `json:"attachment_ids,omitempty"`
	ConfirmedBy   *uuid.UUID `json:"confirmed_by,omitempty"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	DisputedBy    *uuid.UUID `json:"disputed_by,omitempty"`
	DisputedAt    *time.Time `json:"disputed_at,omitempty"`
	DisputeReason string     `json:"dispute_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreatePaymentPayload is the DTO for recording a direct (already settled)
// payment with immediate ledger effect.
type CreatePaymentPayload struct {
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Tag       string `json:"tag" validate:"required"`
	Mode      string `json:"mode" validate:"required"`
	Reference string `json:"reference"`
	Remarks   string `json:"remarks"`
}

// CreatePaymentRequestPayload is the DTO for the creditor opening a payment
// request. It never touches balances.
type CreatePaymentRequestPayload struct {
	Amount    int64      `json:"amount" validate:"required,gt=0"`
	Tag       string     `json:"tag" validate:"required"`
	Remarks   string     `json:"remarks"`
	InvoiceID *uuid.UUID `json:"invoice_id,omitempty"`
}

// MarkPaymentPaidPayload carries the debtor's attestation evidence.
type MarkPaymentPaidPayload struct {
	Mode          string   `json:"mode" validate:"required"`
	UTRNumber     string   `json:"utr_number"`
	ProofNote     string   `json:"proof_note"`
	AttachmentIDs []string `json:"attachment_ids,omitempty"`
}

// DisputePaymentPayload carries the creditor's rejection of an attestation.
type DisputePaymentPayload struct {
	Reason string `json:"reason" validate:"required"`
}

// PaymentListOptions controls pagination and filtering for payment listings.
type PaymentListOptions struct {
	Limit  int
	Offset int
	Status PaymentStatus // empty means all statuses
}

// PaymentEvent is the message payload published after a payment mutation has
// committed. Routing keys distinguish requested/marked/confirmed/disputed.
type PaymentEvent struct {
	PaymentID uuid.UUID     `json:"payment_id"`
	AccountID uuid.UUID     `json:"account_id"`
	Amount    int64         `json:"amount"`
	Status    PaymentStatus `json:"status"`
	ActorID   uuid.UUID     `json:"actor_id"`
	Timestamp time.Time     `json:"timestamp"`
}

// TripCompletedEvent is consumed from the trip subsystem when a trip finishes.
// The ledger reacts by issuing a freight invoice on the trip's account.
type TripCompletedEvent struct {
	TripID       uuid.UUID `json:"trip_id"`
	AccountID    uuid.UUID `json:"account_id"`
	FreightPaise int64     `json:"freight_paise"`
	CompletedBy  uuid.UUID `json:"completed_by"`
	Description  string    `json:"description"`
}
