package services

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/saccoledger/backend/internal/models"
	"github.com/saccoledger/backend/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func mockAccountRows(tenantID, accountID uuid.UUID, balance, blocked, minimum string, version int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tenant_id", "member_id", "account_number", "current_balance",
		"blocked_balance", "minimum_balance", "allow_negative_balance",
		"status", "version", "updated_at",
	}).AddRow(accountID.String(), tenantID.String(), uuid.New().String(),
		"SAV-0001", balance, blocked, minimum, false,
		models.AccountStatusActive, version, time.Now())
}

func TestLedgerService_Transfer(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)
	tenantID := uuid.New()
	// fixed IDs so the deadlock-avoidance lock order is deterministic
	fromAccountID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	toAccountID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	referenceID := "wd-20260831-0001"

	t.Run("successful transfer", func(t *testing.T) {
		amount := decimal.RequireFromString("1000")

		mock.ExpectBegin()

		mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE tenant_id = \$1 AND id = \$2 FOR UPDATE`).
			WithArgs(tenantID, fromAccountID).
			WillReturnRows(mockAccountRows(tenantID, fromAccountID, "5000", "0", "0", 1))

		mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE tenant_id = \$1 AND id = \$2 FOR UPDATE`).
			WithArgs(tenantID, toAccountID).
			WillReturnRows(mockAccountRows(tenantID, toAccountID, "2000", "0", "0", 1))

		mock.ExpectExec(`INSERT INTO ledger_entries`).
			WithArgs(tenantID, referenceID, fromAccountID, decimal.RequireFromString("-1000"), "DEBIT", decimal.RequireFromString("4000"), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec(`INSERT INTO ledger_entries`).
			WithArgs(tenantID, referenceID, toAccountID, decimal.RequireFromString("1000"), "CREDIT", decimal.RequireFromString("3000"), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(2, 1))

		mock.ExpectExec(`UPDATE accounts SET current_balance = \$1, version = version \+ 1, updated_at = \$2 WHERE tenant_id = \$3 AND id = \$4 AND version = \$5`).
			WithArgs(decimal.RequireFromString("4000"), sqlmock.AnyArg(), tenantID, fromAccountID, 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectExec(`UPDATE accounts SET current_balance = \$1, version = version \+ 1, updated_at = \$2 WHERE tenant_id = \$3 AND id = \$4 AND version = \$5`).
			WithArgs(decimal.RequireFromString("3000"), sqlmock.AnyArg(), tenantID, toAccountID, 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectCommit()

		err := service.Transfer(tenantID, fromAccountID, toAccountID, referenceID, amount)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reserved balances block the debit", func(t *testing.T) {
		// 1000 - 100 blocked - 900 = 0, below the 50 minimum
		amount := decimal.RequireFromString("900")

		mock.ExpectBegin()

		mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE tenant_id = \$1 AND id = \$2 FOR UPDATE`).
			WithArgs(tenantID, fromAccountID).
			WillReturnRows(mockAccountRows(tenantID, fromAccountID, "1000", "100", "50", 1))

		mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE tenant_id = \$1 AND id = \$2 FOR UPDATE`).
			WithArgs(tenantID, toAccountID).
			WillReturnRows(mockAccountRows(tenantID, toAccountID, "2000", "0", "0", 1))

		mock.ExpectRollback()

		err := service.Transfer(tenantID, fromAccountID, toAccountID, referenceID, amount)
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("concurrent writer surfaces a version conflict", func(t *testing.T) {
		amount := decimal.RequireFromString("100")

		mock.ExpectBegin()

		mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE tenant_id = \$1 AND id = \$2 FOR UPDATE`).
			WithArgs(tenantID, fromAccountID).
			WillReturnRows(mockAccountRows(tenantID, fromAccountID, "5000", "0", "0", 7))

		mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE tenant_id = \$1 AND id = \$2 FOR UPDATE`).
			WithArgs(tenantID, toAccountID).
			WillReturnRows(mockAccountRows(tenantID, toAccountID, "2000", "0", "0", 1))

		mock.ExpectExec(`INSERT INTO ledger_entries`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`INSERT INTO ledger_entries`).
			WillReturnResult(sqlmock.NewResult(2, 1))

		mock.ExpectExec(`UPDATE accounts SET current_balance = (.+)`).
			WithArgs(decimal.RequireFromString("4900"), sqlmock.AnyArg(), tenantID, fromAccountID, 7).
			WillReturnResult(sqlmock.NewResult(0, 0)) // someone else got there first

		mock.ExpectRollback()

		err := service.Transfer(tenantID, fromAccountID, toAccountID, referenceID, amount)
		assert.ErrorIs(t, err, repository.ErrVersionConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_DebitTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)
	tenantID := uuid.New()
	accountID := uuid.New()

	t.Run("debit of the full available balance", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE tenant_id = \$1 AND id = \$2 FOR UPDATE`).
			WithArgs(tenantID, accountID).
			WillReturnRows(mockAccountRows(tenantID, accountID, "300", "0", "0", 2))

		mock.ExpectExec(`INSERT INTO ledger_entries`).
			WithArgs(tenantID, "ref-1", accountID, decimal.RequireFromString("-300"), "DEBIT", decimal.RequireFromString("0"), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec(`UPDATE accounts SET current_balance = (.+)`).
			WithArgs(decimal.RequireFromString("0"), sqlmock.AnyArg(), tenantID, accountID, 2).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := service.DebitTx(tx, tenantID, accountID, "ref-1", decimal.RequireFromString("300"))
		assert.NoError(t, err)
	})

	t.Run("one cent over is rejected", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE tenant_id = \$1 AND id = \$2 FOR UPDATE`).
			WithArgs(tenantID, accountID).
			WillReturnRows(mockAccountRows(tenantID, accountID, "300", "0", "0", 2))

		err := service.DebitTx(tx, tenantID, accountID, "ref-2", decimal.RequireFromString("300.01"))
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	})
}
