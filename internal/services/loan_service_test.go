package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/saccoledger/backend/internal/middleware"
	"github.com/saccoledger/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func testLoan(principal, payable, paid, interestPaid string) *models.LoanObligation {
	return &models.LoanObligation{
		ID:                uuid.New(),
		PrincipalAmount:   decimal.RequireFromString(principal),
		TotalPayable:      decimal.RequireFromString(payable),
		TotalPaid:         decimal.RequireFromString(paid),
		TotalInterestPaid: decimal.RequireFromString(interestPaid),
		Status:            models.LoanStatusActive,
	}
}

func TestSplitRepayment(t *testing.T) {
	t.Run("payment smaller than outstanding interest is all interest", func(t *testing.T) {
		loan := testLoan("10000", "11200", "0", "0")
		principal, interest := splitRepayment(loan, decimal.RequireFromString("500"))
		assert.True(t, principal.IsZero())
		assert.True(t, interest.Equal(decimal.RequireFromString("500")))
	})

	t.Run("payment above outstanding interest spills into principal", func(t *testing.T) {
		loan := testLoan("10000", "11200", "0", "0")
		principal, interest := splitRepayment(loan, decimal.RequireFromString("1500"))
		assert.True(t, interest.Equal(decimal.RequireFromString("1200")))
		assert.True(t, principal.Equal(decimal.RequireFromString("300")))
	})

	t.Run("interest already settled makes it all principal", func(t *testing.T) {
		loan := testLoan("10000", "11200", "3000", "1200")
		principal, interest := splitRepayment(loan, decimal.RequireFromString("2000"))
		assert.True(t, interest.IsZero())
		assert.True(t, principal.Equal(decimal.RequireFromString("2000")))
	})
}

func loanRows(tenantID, loanID, accountID uuid.UUID, principal, rate, payable, paid, interestPaid, status string, version int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tenant_id", "account_id", "principal_amount", "annual_rate_percent",
		"total_payable", "total_paid", "total_interest_paid", "status", "version",
		"disbursed_at", "updated_at",
	}).AddRow(loanID.String(), tenantID.String(), accountID.String(),
		principal, rate, payable, paid, interestPaid, status, version,
		time.Now(), time.Now())
}

func repaymentRequest(tenantID, memberID, loanID uuid.UUID, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/loans/"+loanID.String()+"/repay", strings.NewReader(body))
	ctx := middleware.WithIdentity(r.Context(), tenantID, memberID, models.RoleMember)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("loanId", loanID.String())
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

func TestLoanService_RepayLoan(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLoanService(db)
	tenantID := uuid.New()
	memberID := uuid.New()
	accountID := uuid.New()
	loanID := uuid.New()

	t.Run("final payment closes the loan", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT (.+) FROM loans WHERE tenant_id = \$1 AND id = \$2 FOR UPDATE`).
			WithArgs(tenantID, loanID).
			WillReturnRows(loanRows(tenantID, loanID, accountID, "10000", "12", "11200", "10000", "1000", models.LoanStatusActive, 5))
		mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE tenant_id = \$1 AND id = \$2 FOR UPDATE`).
			WithArgs(tenantID, accountID).
			WillReturnRows(mockAccountRows(tenantID, accountID, "500", "0", "0", 2))
		mock.ExpectExec(`INSERT INTO ledger_entries`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`UPDATE accounts SET current_balance = (.+)`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE loans SET total_paid = total_paid \+ \$1, total_interest_paid = total_interest_paid \+ \$2, status = \$3, version = version \+ 1, updated_at = \$4 WHERE tenant_id = \$5 AND id = \$6 AND version = \$7`).
			WithArgs(decimal.RequireFromString("0"), decimal.RequireFromString("200"), models.LoanStatusClosed, sqlmock.AnyArg(), tenantID, loanID, 5).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		w := httptest.NewRecorder()
		service.RepayLoan(w, repaymentRequest(tenantID, memberID, loanID, `{"amount":"200"}`))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"fullyPaid":true`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("overpayment is rejected", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT (.+) FROM loans WHERE tenant_id = \$1 AND id = \$2 FOR UPDATE`).
			WithArgs(tenantID, loanID).
			WillReturnRows(loanRows(tenantID, loanID, accountID, "10000", "12", "11200", "10000", "1000", models.LoanStatusActive, 5))
		mock.ExpectRollback()

		w := httptest.NewRecorder()
		service.RepayLoan(w, repaymentRequest(tenantID, memberID, loanID, `{"amount":"200.01"}`))

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("closed loan takes no payments", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT (.+) FROM loans WHERE tenant_id = \$1 AND id = \$2 FOR UPDATE`).
			WithArgs(tenantID, loanID).
			WillReturnRows(loanRows(tenantID, loanID, accountID, "10000", "12", "11200", "10000", "1200", models.LoanStatusClosed, 6))
		mock.ExpectRollback()

		w := httptest.NewRecorder()
		service.RepayLoan(w, repaymentRequest(tenantID, memberID, loanID, `{"amount":"100"}`))

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
