package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/saccoledger/backend/internal/models"
	"github.com/shopspring/decimal"
)

const loanColumns = `id, tenant_id, account_id, principal_amount, annual_rate_percent, total_payable, total_paid, total_interest_paid, status, version, disbursed_at, updated_at`

type LoanRepo struct {
	db *sql.DB
}

func NewLoanRepo(db *sql.DB) *LoanRepo {
	return &LoanRepo{db: db}
}

func (r *LoanRepo) Create(tx *sql.Tx, loan *models.LoanObligation) error {
	_, err := tx.Exec(`
		INSERT INTO loans (id, tenant_id, account_id, principal_amount, annual_rate_percent, total_payable, total_paid, total_interest_paid, status, version, disbursed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		loan.ID, loan.TenantID, loan.AccountID, loan.PrincipalAmount,
		loan.AnnualRatePercent, loan.TotalPayable, loan.TotalPaid,
		loan.TotalInterestPaid, loan.Status, loan.Version,
		loan.DisbursedAt, loan.UpdatedAt)
	return err
}

func (r *LoanRepo) GetByID(tenantID, loanID uuid.UUID) (*models.LoanObligation, error) {
	row := r.db.QueryRow(`
		SELECT `+loanColumns+`
		FROM loans
		WHERE tenant_id = $1 AND id = $2`, tenantID, loanID)
	return scanLoan(row)
}

// Lock fetches the loan row under an exclusive row lock.
func (r *LoanRepo) Lock(tx *sql.Tx, tenantID, loanID uuid.UUID) (*models.LoanObligation, error) {
	row := tx.QueryRow(`
		SELECT `+loanColumns+`
		FROM loans
		WHERE tenant_id = $1 AND id = $2
		FOR UPDATE`, tenantID, loanID)
	return scanLoan(row)
}

// ApplyPayment adds a repayment split to the loan's running totals with an
// optimistic version check.
func (r *LoanRepo) ApplyPayment(tx *sql.Tx, tenantID, loanID uuid.UUID, principalPortion, interestPortion decimal.Decimal, status string, version int) error {
	result, err := tx.Exec(`
		UPDATE loans
		SET total_paid = total_paid + $1, total_interest_paid = total_interest_paid + $2, status = $3, version = version + 1, updated_at = $4
		WHERE tenant_id = $5 AND id = $6 AND version = $7`,
		principalPortion, interestPortion, status, time.Now(), tenantID, loanID, version)
	if err != nil {
		return err
	}
	return requireOneRow(result, loanID)
}

// AddPayable grows the total payable, used when overdue interest is posted
// onto the loan.
func (r *LoanRepo) AddPayable(tx *sql.Tx, tenantID, loanID uuid.UUID, amount decimal.Decimal, version int) error {
	result, err := tx.Exec(`
		UPDATE loans
		SET total_payable = total_payable + $1, version = version + 1, updated_at = $2
		WHERE tenant_id = $3 AND id = $4 AND version = $5`,
		amount, time.Now(), tenantID, loanID, version)
	if err != nil {
		return err
	}
	return requireOneRow(result, loanID)
}

func requireOneRow(result sql.Result, id uuid.UUID) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("loan %s: %w", id, ErrVersionConflict)
	}
	return nil
}

func scanLoan(row *sql.Row) (*models.LoanObligation, error) {
	var l models.LoanObligation
	err := row.Scan(&l.ID, &l.TenantID, &l.AccountID, &l.PrincipalAmount,
		&l.AnnualRatePercent, &l.TotalPayable, &l.TotalPaid,
		&l.TotalInterestPaid, &l.Status, &l.Version, &l.DisbursedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}
