/**
 * @description
 * PostgreSQL persistence for payments: the direct-payment path with its
 * immediate mirrored ledger effect, and the row-level state transitions of the
 * two-party confirmation protocol. Confirmation is the only transition of a
 * requested payment that touches a balance, and it runs under a pessimistic
 * lock on the owner account.
 */

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tradelink/ledger-service/internal/domain"
)

const paymentColumns = `id, account_id, amount, COALESCE(tag, '') AS tag, COALESCE(mode, '') AS mode,
	COALESCE(reference, '') AS reference, COALESCE(remarks, '') AS remarks, status, invoice_id,
	requested_by, marked_paid_by, marked_paid_at, COALESCE(proof_note, '') AS proof_note, attachment_ids,
	confirmed_by, confirmed_at, paid_at, disputed_by, disputed_at, COALESCE(dispute_reason, '') AS dispute_reason,
	created_at, updated_at`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var payment domain.Payment
	err := row.Scan(
		&payment.ID,
		&payment.AccountID,
		&payment.Amount,
		&payment.Tag,
		&payment.Mode,
		&payment.Reference,
		&payment.Remarks,
		&payment.Status,
		&payment.InvoiceID,
		&payment.RequestedBy,
		&payment.MarkedPaidBy,
		&payment.MarkedPaidAt,
		&payment.ProofNote,
		&payment.AttachmentIDs,
		&payment.ConfirmedBy,
		&payment.ConfirmedAt,
		&payment.PaidAt,
		&payment.DisputedBy,
		&payment.DisputedAt,
		&payment.DisputeReason,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// CreateDirectPayment records an already-settled payment with immediate ledger
// effect, all in one transaction:
//
//  1. lock the owner account row (FOR UPDATE)
//  2. reject if the locked balance cannot cover the amount
//  3. owner balance -= amount, RECEIVABLE entry
//  4. mirror balance += amount, PAYABLE entry
//  5. insert the payment row already CONFIRMED with paid_at set
//
// The lock serializes concurrent payments against the same account so the
// sufficiency check cannot race.
func (r *PostgresRepository) CreateDirectPayment(ctx context.Context, payment *domain.Payment) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	account, err := lockAccount(ctx, tx, payment.AccountID)
	if err != nil {
		return err
	}
	if account.Balance < payment.Amount {
		return ErrInsufficientBalance
	}

	insert := `
		INSERT INTO payments (id, account_id, amount, tag, mode, reference, remarks, status, requested_by, confirmed_by, confirmed_at, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9, NOW(), NOW())
		RETURNING ` + paymentColumns

	created, err := scanPayment(tx.QueryRow(ctx, insert,
		payment.ID,
		payment.AccountID,
		payment.Amount,
		payment.Tag,
		payment.Mode,
		payment.Reference,
		payment.Remarks,
		domain.PaymentStatusConfirmed,
		payment.RequestedBy,
	))
	if err != nil {
		return err
	}

	if err := applyPaymentEffect(ctx, tx, account, created); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	*payment = *created
	return nil
}

// applyPaymentEffect moves the payment amount across both mirrored accounts
// and appends the two ledger entries. Shared by the direct path and confirm.
func applyPaymentEffect(ctx context.Context, tx pgx.Tx, account *domain.Account, payment *domain.Payment) error {
	description := fmt.Sprintf("Payment %s", payment.Tag)
	if _, err := applyBalanceDelta(ctx, tx,
		account.ID, -payment.Amount, domain.DirectionReceivable, payment.Amount,
		description, domain.ReferenceTypePayment, payment.ID,
	); err != nil {
		return err
	}

	mirrorID, err := lockMirrorAccountID(ctx, tx, account)
	if err != nil {
		return err
	}
	_, err = applyBalanceDelta(ctx, tx,
		mirrorID, payment.Amount, domain.DirectionPayable, payment.Amount,
		description, domain.ReferenceTypePayment, payment.ID,
	)
	return err
}

// CreatePaymentRequest inserts a PENDING payment row. No balance effect.
func (r *PostgresRepository) CreatePaymentRequest(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (id, account_id, amount, tag, remarks, status, invoice_id, requested_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + paymentColumns

	created, err := scanPayment(r.db.QueryRow(ctx, query,
		payment.ID,
		payment.AccountID,
		payment.Amount,
		payment.Tag,
		payment.Remarks,
		domain.PaymentStatusPending,
		payment.InvoiceID,
		payment.RequestedBy,
	))
	if err != nil {
		return err
	}
	*payment = *created
	return nil
}

// FindPaymentByID retrieves a single payment.
func (r *PostgresRepository) FindPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return scanPayment(r.db.QueryRow(ctx, query, paymentID))
}

// statusTransitionError loads the payment's current status and wraps it in an
// InvalidPaymentStatusError, or reports ErrPaymentNotFound if the row is gone.
func (r *PostgresRepository) statusTransitionError(ctx context.Context, paymentID uuid.UUID, attempted domain.PaymentStatus) error {
	existing, err := r.FindPaymentByID(ctx, paymentID)
	if err != nil {
		return err
	}
	return &InvalidPaymentStatusError{Current: existing.Status, Attempted: attempted}
}

// MarkPaymentAsPaid records the debtor's attestation, moving the payment from
// PENDING to MARKED_AS_PAID. The conditional UPDATE guards the transition so a
// concurrent or replayed call cannot double-apply it. No balance effect.
func (r *PostgresRepository) MarkPaymentAsPaid(ctx context.Context, paymentID uuid.UUID, params MarkPaymentPaidParams) (*domain.Payment, error) {
	query := `
		UPDATE payments
		SET status = $2, mode = $3, reference = $4, proof_note = $5, attachment_ids = $6,
		    marked_paid_by = $7, marked_paid_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $8
		RETURNING ` + paymentColumns

	payment, err := scanPayment(r.db.QueryRow(ctx, query,
		paymentID,
		domain.PaymentStatusMarkedAsPaid,
		params.Mode,
		params.UTRNumber,
		params.ProofNote,
		params.AttachmentIDs,
		params.MarkedPaidBy,
		domain.PaymentStatusPending,
	))
	if err == nil {
		return payment, nil
	}
	if err != ErrPaymentNotFound {
		return nil, err
	}
	return nil, r.statusTransitionError(ctx, paymentID, domain.PaymentStatusMarkedAsPaid)
}

// ConfirmPayment is the creditor's final verification and the only transition
// of a requested payment that mutates balances. One transaction:
//
//  1. lock the payment row; it must be MARKED_AS_PAID
//  2. lock the owner account row, check sufficiency
//  3. owner balance -= amount + RECEIVABLE entry, mirror += amount + PAYABLE entry
//  4. transition the payment to CONFIRMED with actor, confirmed_at and paid_at
func (r *PostgresRepository) ConfirmPayment(ctx context.Context, paymentID uuid.UUID, confirmedBy uuid.UUID) (*domain.Payment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	locked, err := scanPayment(tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, paymentID))
	if err != nil {
		return nil, err
	}
	if locked.Status != domain.PaymentStatusMarkedAsPaid {
		return nil, &InvalidPaymentStatusError{Current: locked.Status, Attempted: domain.PaymentStatusConfirmed}
	}

	account, err := lockAccount(ctx, tx, locked.AccountID)
	if err != nil {
		return nil, err
	}
	if account.Balance < locked.Amount {
		return nil, ErrInsufficientBalance
	}

	if err := applyPaymentEffect(ctx, tx, account, locked); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	update := `
		UPDATE payments
		SET status = $2, confirmed_by = $3, confirmed_at = $4, paid_at = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + paymentColumns

	confirmed, err := scanPayment(tx.QueryRow(ctx, update, paymentID, domain.PaymentStatusConfirmed, confirmedBy, now))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return confirmed, nil
}

// DisputePayment records the creditor's rejection of an attestation, moving
// the payment from MARKED_AS_PAID to the terminal DISPUTED state. No balance
// effect.
func (r *PostgresRepository) DisputePayment(ctx context.Context, paymentID uuid.UUID, disputedBy uuid.UUID, reason string) (*domain.Payment, error) {
	query := `
		UPDATE payments
		SET status = $2, disputed_by = $3, disputed_at = NOW(), dispute_reason = $4, updated_at = NOW()
		WHERE id = $1 AND status = $5
		RETURNING ` + paymentColumns

	payment, err := scanPayment(r.db.QueryRow(ctx, query,
		paymentID,
		domain.PaymentStatusDisputed,
		disputedBy,
		reason,
		domain.PaymentStatusMarkedAsPaid,
	))
	if err == nil {
		return payment, nil
	}
	if err != ErrPaymentNotFound {
		return nil, err
	}
	return nil, r.statusTransitionError(ctx, paymentID, domain.PaymentStatusDisputed)
}

// ListPayments retrieves paginated payments for an account, optionally
// filtered by status, newest first.
func (r *PostgresRepository) ListPayments(ctx context.Context, accountID uuid.UUID, opts domain.PaymentListOptions) ([]domain.Payment, error) {
	limit, offset := clampPage(domain.ListOptions{Limit: opts.Limit, Offset: opts.Offset})

	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE account_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query, accountID, string(opts.Status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPayments(rows)
}

// ListPendingPayments retrieves payments still inside the confirmation
// protocol (PENDING or MARKED_AS_PAID), oldest first so the backlog surfaces
// in the order it accrued.
func (r *PostgresRepository) ListPendingPayments(ctx context.Context, accountID uuid.UUID, opts domain.ListOptions) ([]domain.Payment, error) {
	limit, offset := clampPage(opts)

	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE account_id = $1 AND status IN ($2, $3)
		ORDER BY created_at ASC
		LIMIT $4 OFFSET $5
	`
	rows, err := r.db.Query(ctx, query, accountID,
		domain.PaymentStatusPending, domain.PaymentStatusMarkedAsPaid, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPayments(rows)
}

func collectPayments(rows pgx.Rows) ([]domain.Payment, error) {
	var payments []domain.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *payment)
	}
	return payments, rows.Err()
}
