/**
 * @description
 * This file defines the core domain models for the ledger-service: mirrored
 * accounts between counterparty organizations and the append-only ledger
 * entries that audit every balance change.
 *
 * @notes
 * - Amounts are stored as `int64` to represent the value in the smallest
 *   currency unit (paise), which avoids floating-point inaccuracies with
 *   financial data.
 * - Every relationship between two organizations is persisted as two mirrored
 *   account rows; the balance on one side is always the exact negation of the
 *   balance on the other side.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntryDirection describes the semantic meaning of a ledger entry from the
// perspective of the organization that owns the account.
type EntryDirection string

const (
	DirectionReceivable EntryDirection = "RECEIVABLE"
	DirectionPayable    EntryDirection = "PAYABLE"
)

// Reference types recorded on ledger entries, pointing back at the document
// that caused the balance change.
const (
	ReferenceTypeInvoice = "invoice"
	ReferenceTypePayment = "payment"
)

// Account represents one organization's view of its running balance with a
// counterparty. It maps directly to the `accounts` table.
type Account struct {
	ID                uuid.UUID `json:"id"`
	OwnerOrgID        uuid.UUID `json:"owner_org_id"`
	CounterpartyOrgID uuid.UUID `json:"counterparty_org_id"`
	Balance           int64     `json:"balance"` // in paise
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// LedgerEntry is an immutable audit record of one balance-affecting event on
// one account. The Balance field snapshots the account balance as it stood
// immediately after the mutation that produced the entry.
type LedgerEntry struct {
	ID            uuid.UUID      `json:"id"`
	AccountID     uuid.UUID      `json:"account_id"`
	Direction     EntryDirection `json:"direction"`
	Amount        int64          `json:"amount"`  // unsigned magnitude, in paise
	Balance       int64          `json:"balance"` // signed post-mutation snapshot
	Description   string         `json:"description"`
	ReferenceType string         `json:"reference_type"`
	ReferenceID   uuid.UUID      `json:"reference_id"`
	CreatedAt     time.Time      `json:"created_at"`
}

// CreateAccountPayload is the DTO for establishing (or fetching) the mirrored
// account pair between the caller's organization and a counterparty.
type CreateAccountPayload struct {
	CounterpartyOrgID uuid.UUID `json:"counterparty_org_id" validate:"required"`
}

// AccountResult carries an account plus whether this call created the pair.
type AccountResult struct {
	Account *Account `json:"account"`
	IsNew   bool     `json:"is_new"`
}

// ListOptions controls pagination for timeline and listing queries. Limits are
// clamped server-side regardless of what the caller supplies.
type ListOptions struct {
	Limit  int
	Offset int
}
