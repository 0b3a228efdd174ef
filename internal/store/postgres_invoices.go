/**
 * @description
 * PostgreSQL persistence for invoices. Invoice creation is the canonical
 * dual-sided mutation: the invoice row, both mirrored balance deltas, and both
 * ledger entries commit as one transaction or not at all.
 */

package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tradelink/ledger-service/internal/domain"
)

const invoiceColumns = `id, account_id, invoice_number, amount, COALESCE(description, '') AS description, due_date, status, created_by, created_at, updated_at`

func scanInvoice(row pgx.Row) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := row.Scan(
		&invoice.ID,
		&invoice.AccountID,
		&invoice.InvoiceNumber,
		&invoice.Amount,
		&invoice.Description,
		&invoice.DueDate,
		&invoice.Status,
		&invoice.CreatedBy,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

// CreateInvoiceWithEntries issues an invoice against an account, applying the
// mirrored balance delta to both sides atomically:
//
//	owner account:  balance += amount, PAYABLE entry
//	mirror account: balance -= amount, RECEIVABLE entry
//
// A duplicate invoice number on the same account surfaces as
// ErrDuplicateInvoiceNumber; a missing mirror row aborts the whole unit with
// ErrMirrorAccountMissing. On success the invoice struct is populated with the
// persisted row.
func (r *PostgresRepository) CreateInvoiceWithEntries(ctx context.Context, invoice *domain.Invoice) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	account, err := lockAccount(ctx, tx, invoice.AccountID)
	if err != nil {
		return err
	}

	insert := `
		INSERT INTO invoices (id, account_id, invoice_number, amount, description, due_date, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + invoiceColumns

	created, err := scanInvoice(tx.QueryRow(ctx, insert,
		invoice.ID,
		invoice.AccountID,
		invoice.InvoiceNumber,
		invoice.Amount,
		invoice.Description,
		invoice.DueDate,
		domain.InvoiceStatusOpen,
		invoice.CreatedBy,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateInvoiceNumber
		}
		return err
	}

	description := fmt.Sprintf("Invoice %s", created.InvoiceNumber)
	if _, err := applyBalanceDelta(ctx, tx,
		account.ID, created.Amount, domain.DirectionPayable, created.Amount,
		description, domain.ReferenceTypeInvoice, created.ID,
	); err != nil {
		return err
	}

	mirrorID, err := lockMirrorAccountID(ctx, tx, account)
	if err != nil {
		return err
	}
	if _, err := applyBalanceDelta(ctx, tx,
		mirrorID, -created.Amount, domain.DirectionReceivable, created.Amount,
		description, domain.ReferenceTypeInvoice, created.ID,
	); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	*invoice = *created
	return nil
}

// FindInvoiceByID retrieves a single invoice.
func (r *PostgresRepository) FindInvoiceByID(ctx context.Context, invoiceID uuid.UUID) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	return scanInvoice(r.db.QueryRow(ctx, query, invoiceID))
}

// MarkInvoicePaid transitions an invoice from OPEN to PAID. This is a
// reconciliation action with no ledger effect; the conditional UPDATE keeps
// the transition race-safe without a row lock.
func (r *PostgresRepository) MarkInvoicePaid(ctx context.Context, invoiceID uuid.UUID) (*domain.Invoice, error) {
	query := `
		UPDATE invoices
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
		RETURNING ` + invoiceColumns

	invoice, err := scanInvoice(r.db.QueryRow(ctx, query, invoiceID, domain.InvoiceStatusPaid, domain.InvoiceStatusOpen))
	if err == nil {
		return invoice, nil
	}
	if err != ErrInvoiceNotFound {
		return nil, err
	}

	// Distinguish "absent" from "already paid" for the caller.
	if _, findErr := r.FindInvoiceByID(ctx, invoiceID); findErr != nil {
		return nil, findErr
	}
	return nil, ErrInvoiceAlreadyPaid
}

// ListInvoices retrieves paginated invoices for an account, newest first.
func (r *PostgresRepository) ListInvoices(ctx context.Context, accountID uuid.UUID, opts domain.ListOptions) ([]domain.Invoice, error) {
	limit, offset := clampPage(opts)

	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []domain.Invoice
	for rows.Next() {
		var invoice domain.Invoice
		if err := rows.Scan(
			&invoice.ID,
			&invoice.AccountID,
			&invoice.InvoiceNumber,
			&invoice.Amount,
			&invoice.Description,
			&invoice.DueDate,
			&invoice.Status,
			&invoice.CreatedBy,
			&invoice.CreatedAt,
			&invoice.UpdatedAt,
		); err != nil {
			return nil, err
		}
		invoices = append(invoices, invoice)
	}
	return invoices, rows.Err()
}
