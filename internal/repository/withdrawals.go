package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/saccoledger/backend/internal/models"
)

const withdrawalColumns = `id, tenant_id, account_id, amount, destination_type, dest_bank_code, dest_account, status, approved_by, created_at, updated_at`

type WithdrawalRepo struct {
	db *sql.DB
}

func NewWithdrawalRepo(db *sql.DB) *WithdrawalRepo {
	return &WithdrawalRepo{db: db}
}

func (r *WithdrawalRepo) Create(req *models.WithdrawalRequest) error {
	_, err := r.db.Exec(`
		INSERT INTO withdrawal_requests (id, tenant_id, account_id, amount, destination_type, dest_bank_code, dest_account, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		req.ID, req.TenantID, req.AccountID, req.Amount, req.DestinationType,
		req.DestBankCode, req.DestAccount, req.Status, req.CreatedAt, req.UpdatedAt)
	return err
}

func (r *WithdrawalRepo) GetByID(tenantID, requestID uuid.UUID) (*models.WithdrawalRequest, error) {
	row := r.db.QueryRow(`
		SELECT `+withdrawalColumns+`
		FROM withdrawal_requests
		WHERE tenant_id = $1 AND id = $2`, tenantID, requestID)
	return scanWithdrawal(row)
}

func (r *WithdrawalRepo) ListByTenant(tenantID uuid.UUID, status string, limit int) ([]models.WithdrawalRequest, error) {
	rows, err := r.db.Query(`
		SELECT `+withdrawalColumns+`
		FROM withdrawal_requests
		WHERE tenant_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3`, tenantID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []models.WithdrawalRequest
	for rows.Next() {
		var w models.WithdrawalRequest
		var approvedBy uuid.NullUUID
		if err := rows.Scan(&w.ID, &w.TenantID, &w.AccountID, &w.Amount,
			&w.DestinationType, &w.DestBankCode, &w.DestAccount, &w.Status,
			&approvedBy, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		if approvedBy.Valid {
			w.ApprovedBy = &approvedBy.UUID
		}
		requests = append(requests, w)
	}
	return requests, rows.Err()
}

// MarkApproved flips PENDING to APPROVED. Zero rows affected means another
// approver (or a rejection) won the race; the caller gets a retriable
// already-processed error and must not debit.
func (r *WithdrawalRepo) MarkApproved(tx *sql.Tx, tenantID, requestID, approverID uuid.UUID) error {
	result, err := tx.Exec(`
		UPDATE withdrawal_requests
		SET status = $1, approved_by = $2, updated_at = $3
		WHERE tenant_id = $4 AND id = $5 AND status = $6`,
		models.WithdrawalStatusApproved, approverID, time.Now(),
		tenantID, requestID, models.WithdrawalStatusPending)
	if err != nil {
		return err
	}
	return requireTransition(result)
}

func (r *WithdrawalRepo) MarkRejected(tx *sql.Tx, tenantID, requestID, approverID uuid.UUID) error {
	result, err := tx.Exec(`
		UPDATE withdrawal_requests
		SET status = $1, approved_by = $2, updated_at = $3
		WHERE tenant_id = $4 AND id = $5 AND status = $6`,
		models.WithdrawalStatusRejected, approverID, time.Now(),
		tenantID, requestID, models.WithdrawalStatusPending)
	if err != nil {
		return err
	}
	return requireTransition(result)
}

func requireTransition(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}

func scanWithdrawal(row *sql.Row) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	var approvedBy uuid.NullUUID
	err := row.Scan(&w.ID, &w.TenantID, &w.AccountID, &w.Amount,
		&w.DestinationType, &w.DestBankCode, &w.DestAccount, &w.Status,
		&approvedBy, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if approvedBy.Valid {
		w.ApprovedBy = &approvedBy.UUID
	}
	return &w, nil
}
