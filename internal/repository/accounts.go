package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/saccoledger/backend/internal/models"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, tenant_id, member_id, account_number, current_balance, blocked_balance, minimum_balance, allow_negative_balance, status, version, updated_at`

type AccountRepo struct {
	db *sql.DB
}

func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

func (r *AccountRepo) GetByID(tenantID, accountID uuid.UUID) (*models.Account, error) {
	row := r.db.QueryRow(`
		SELECT `+accountColumns+`
		FROM accounts
		WHERE tenant_id = $1 AND id = $2`, tenantID, accountID)
	return scanAccount(row)
}

func (r *AccountRepo) GetByMember(tenantID, memberID uuid.UUID) (*models.Account, error) {
	row := r.db.QueryRow(`
		SELECT `+accountColumns+`
		FROM accounts
		WHERE tenant_id = $1 AND member_id = $2`, tenantID, memberID)
	return scanAccount(row)
}

// Lock fetches the account row under an exclusive row lock. Must run inside
// a transaction; the lock is held until commit or rollback.
func (r *AccountRepo) Lock(tx *sql.Tx, tenantID, accountID uuid.UUID) (*models.Account, error) {
	row := tx.QueryRow(`
		SELECT `+accountColumns+`
		FROM accounts
		WHERE tenant_id = $1 AND id = $2
		FOR UPDATE`, tenantID, accountID)
	return scanAccount(row)
}

// UpdateBalance writes a new balance with an optimistic version check on top
// of the row lock. Zero rows affected means a concurrent writer won.
func (r *AccountRepo) UpdateBalance(tx *sql.Tx, tenantID, accountID uuid.UUID, newBalance decimal.Decimal, version int) error {
	result, err := tx.Exec(`
		UPDATE accounts
		SET current_balance = $1, version = version + 1, updated_at = $2
		WHERE tenant_id = $3 AND id = $4 AND version = $5`,
		newBalance, time.Now(), tenantID, accountID, version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account %s: %w", accountID, ErrVersionConflict)
	}
	return nil
}

// WithAccountLock runs fn inside one transaction holding the account's row
// lock. Exposing lock-read-compute-write as a single unit keeps callers from
// splitting the read and the write across transactions.
func (r *AccountRepo) WithAccountLock(tenantID, accountID uuid.UUID, fn func(tx *sql.Tx, account *models.Account) error) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	account, err := r.Lock(tx, tenantID, accountID)
	if err != nil {
		return err
	}

	if err := fn(tx, account); err != nil {
		return err
	}

	return tx.Commit()
}

func scanAccount(row *sql.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.TenantID, &a.MemberID, &a.AccountNumber,
		&a.CurrentBalance, &a.BlockedBalance, &a.MinimumBalance,
		&a.AllowNegativeBalance, &a.Status, &a.Version, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
