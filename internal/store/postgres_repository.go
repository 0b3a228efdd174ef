/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface for accounts, organization membership, and the ledger timeline.
 * Invoice and payment persistence live in sibling files of this package.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tradelink/ledger-service/internal/domain"
)

// maxPageSize is the hard cap applied to every list operation regardless of
// the caller-supplied limit.
const maxPageSize = 100

const defaultPageSize = 20

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// clampPage normalizes caller-supplied pagination so no query can exceed the
// hard page cap or receive a negative offset.
func clampPage(opts domain.ListOptions) (limit, offset int) {
	limit = opts.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset = opts.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// IsOrgMember reports whether the user belongs to the organization. The
// organization_members table is owned by the identity subsystem; this service
// only ever reads it.
func (r *PostgresRepository) IsOrgMember(ctx context.Context, orgID uuid.UUID, userID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM organization_members WHERE org_id = $1 AND user_id = $2)`
	var member bool
	if err := r.db.QueryRow(ctx, query, orgID, userID).Scan(&member); err != nil {
		return false, err
	}
	return member, nil
}

const accountColumns = `id, owner_org_id, counterparty_org_id, balance, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	err := row.Scan(
		&account.ID,
		&account.OwnerOrgID,
		&account.CounterpartyOrgID,
		&account.Balance,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// FindAccountByID retrieves a single account by its primary key.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRow(ctx, query, accountID))
}

// FindAccountByOrgPair retrieves the account owned by ownerOrgID against
// counterpartyOrgID.
func (r *PostgresRepository) FindAccountByOrgPair(ctx context.Context, ownerOrgID, counterpartyOrgID uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE owner_org_id = $1 AND counterparty_org_id = $2`
	return scanAccount(r.db.QueryRow(ctx, query, ownerOrgID, counterpartyOrgID))
}

// canonicalOrgOrder returns the two org IDs in ascending byte order. Pair
// creation inserts its rows in this order regardless of which orientation the
// caller asked for, so two concurrent creators working opposite orientations
// of the same pair contend on the unique index in the same order instead of
// deadlocking each other.
func canonicalOrgOrder(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(b[:], a[:]) < 0 {
		return b, a
	}
	return a, b
}

// GetOrCreateAccountPair returns the (owner, counterparty) account row,
// creating BOTH mirror rows with zero balance in one transaction if the pair
// does not exist yet. A concurrent creator winning the race surfaces as a
// unique violation here; the loser re-fetches the winner's row instead of
// failing, so pair creation is idempotent under races.
func (r *PostgresRepository) GetOrCreateAccountPair(ctx context.Context, ownerOrgID, counterpartyOrgID uuid.UUID) (*domain.Account, bool, error) {
	if ownerOrgID == counterpartyOrgID {
		return nil, false, ErrSameOrganizationAccount
	}

	account, err := r.FindAccountByOrgPair(ctx, ownerOrgID, counterpartyOrgID)
	if err == nil {
		return account, false, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, false, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	insert := `
		INSERT INTO accounts (id, owner_org_id, counterparty_org_id, balance)
		VALUES ($1, $2, $3, 0)
		RETURNING ` + accountColumns

	firstOrg, secondOrg := canonicalOrgOrder(ownerOrgID, counterpartyOrgID)

	var created *domain.Account
	var insertErr error
	for _, orgs := range [][2]uuid.UUID{{firstOrg, secondOrg}, {secondOrg, firstOrg}} {
		row, err := scanAccount(tx.QueryRow(ctx, insert, uuid.New(), orgs[0], orgs[1]))
		if err != nil {
			insertErr = err
			break
		}
		if row.OwnerOrgID == ownerOrgID {
			created = row
		}
	}
	if insertErr == nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, false, err
		}
		return created, true, nil
	}

	if !isUniqueViolation(insertErr) {
		return nil, false, insertErr
	}

	// Lost the creation race: roll back our partial insert and adopt the
	// winner's pair.
	_ = tx.Rollback(ctx)
	account, refetchErr := r.FindAccountByOrgPair(ctx, ownerOrgID, counterpartyOrgID)
	if refetchErr != nil {
		return nil, false, fmt.Errorf("re-fetch after pair creation race: %w", refetchErr)
	}
	return account, false, nil
}

// ListAccountsByOwner retrieves the accounts owned by an organization, newest
// relationship first.
func (r *PostgresRepository) ListAccountsByOwner(ctx context.Context, orgID uuid.UUID, opts domain.ListOptions) ([]domain.Account, error) {
	limit, offset := clampPage(opts)

	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE owner_org_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, orgID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var account domain.Account
		if err := rows.Scan(
			&account.ID,
			&account.OwnerOrgID,
			&account.CounterpartyOrgID,
			&account.Balance,
			&account.CreatedAt,
			&account.UpdatedAt,
		); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// applyBalanceDelta atomically shifts an account balance inside the supplied
// transaction and appends the ledger entry documenting it. The entry snapshot
// uses the RETURNING value from the same UPDATE, so it is exact by
// construction: no separate read ever sits between mutation and audit row.
func applyBalanceDelta(
	ctx context.Context,
	tx pgx.Tx,
	accountID uuid.UUID,
	delta int64,
	direction domain.EntryDirection,
	amount int64,
	description string,
	referenceType string,
	referenceID uuid.UUID,
) (newBalance int64, err error) {
	update := `
		UPDATE accounts
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING balance
	`
	if err := tx.QueryRow(ctx, update, delta, accountID).Scan(&newBalance); err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}

	insert := `
		INSERT INTO ledger_entries (id, account_id, direction, amount, balance, description, reference_type, reference_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := tx.Exec(ctx, insert,
		uuid.New(), accountID, direction, amount, newBalance, description, referenceType, referenceID,
	); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// lockMirrorAccountID resolves the mirror row of an account inside the
// transaction, locking it for the remainder of the unit. A missing mirror is
// unrecoverable corruption, never a user error: the caller must abort.
func lockMirrorAccountID(ctx context.Context, tx pgx.Tx, account *domain.Account) (uuid.UUID, error) {
	query := `
		SELECT id FROM accounts
		WHERE owner_org_id = $1 AND counterparty_org_id = $2
		FOR UPDATE
	`
	var mirrorID uuid.UUID
	if err := tx.QueryRow(ctx, query, account.CounterpartyOrgID, account.OwnerOrgID).Scan(&mirrorID); err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, ErrMirrorAccountMissing
		}
		return uuid.Nil, err
	}
	return mirrorID, nil
}

// lockAccount reads an account row under FOR UPDATE, serializing concurrent
// balance-sufficiency checks and mutations against the same account.
func lockAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	return scanAccount(tx.QueryRow(ctx, query, accountID))
}

// ListLedgerEntries retrieves the paginated audit timeline for an account,
// newest first.
func (r *PostgresRepository) ListLedgerEntries(ctx context.Context, accountID uuid.UUID, opts domain.ListOptions) ([]domain.LedgerEntry, error) {
	limit, offset := clampPage(opts)

	query := `
		SELECT id, account_id, direction, amount, balance, COALESCE(description, '') AS description,
		       reference_type, reference_id, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var entry domain.LedgerEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.AccountID,
			&entry.Direction,
			&entry.Amount,
			&entry.Balance,
			&entry.Description,
			&entry.ReferenceType,
			&entry.ReferenceID,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
