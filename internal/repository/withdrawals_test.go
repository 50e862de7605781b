package repository

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestWithdrawalRepo_MarkApproved(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := NewWithdrawalRepo(db)
	tenantID := uuid.New()
	requestID := uuid.New()
	approverID := uuid.New()

	t.Run("pending request approves", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectExec(`UPDATE withdrawal_requests SET status = \$1, approved_by = \$2, updated_at = \$3 WHERE tenant_id = \$4 AND id = \$5 AND status = \$6`).
			WithArgs("APPROVED", approverID, sqlmock.AnyArg(), tenantID, requestID, "PENDING").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.MarkApproved(tx, tenantID, requestID, approverID)
		assert.NoError(t, err)
	})

	t.Run("second approval loses the race", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectExec(`UPDATE withdrawal_requests SET status = \$1, approved_by = \$2, updated_at = \$3 WHERE tenant_id = \$4 AND id = \$5 AND status = \$6`).
			WithArgs("APPROVED", approverID, sqlmock.AnyArg(), tenantID, requestID, "PENDING").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.MarkApproved(tx, tenantID, requestID, approverID)
		assert.ErrorIs(t, err, ErrAlreadyProcessed)
	})
}

func TestPoolRepo_Finalize(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := NewPoolRepo(db)
	tenantID := uuid.New()
	poolID := uuid.New()

	t.Run("open pool finalizes once", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectExec(`UPDATE contribution_pools SET status = \$1, finalized_at = \$2 WHERE tenant_id = \$3 AND id = \$4 AND status = \$5`).
			WithArgs("FINALIZED", sqlmock.AnyArg(), tenantID, poolID, "OPEN").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Finalize(tx, tenantID, poolID))
	})

	t.Run("already finalized pool refuses", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectExec(`UPDATE contribution_pools SET status = \$1, finalized_at = \$2 WHERE tenant_id = \$3 AND id = \$4 AND status = \$5`).
			WithArgs("FINALIZED", sqlmock.AnyArg(), tenantID, poolID, "OPEN").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.Finalize(tx, tenantID, poolID), ErrAlreadyProcessed)
	})
}
