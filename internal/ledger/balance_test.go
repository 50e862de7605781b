package ledger

import (
	"testing"

	"github.com/saccoledger/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestHasSufficientBalance(t *testing.T) {
	t.Run("reserves respected", func(t *testing.T) {
		// 1000 - 100 - 800 = 100, which still covers the 50 minimum
		account := &models.Account{
			CurrentBalance: dec("1000"),
			BlockedBalance: dec("100"),
			MinimumBalance: dec("50"),
		}
		assert.True(t, HasSufficientBalance(account, dec("800")))
	})

	t.Run("debit breaching minimum balance", func(t *testing.T) {
		// 1000 - 100 - 900 = 0, below the 50 minimum
		account := &models.Account{
			CurrentBalance: dec("1000"),
			BlockedBalance: dec("100"),
			MinimumBalance: dec("50"),
		}
		assert.False(t, HasSufficientBalance(account, dec("900")))
	})

	t.Run("exactly at the minimum", func(t *testing.T) {
		// 1000 - 100 - 850 = 50 == minimum, still allowed
		account := &models.Account{
			CurrentBalance: dec("1000"),
			BlockedBalance: dec("100"),
			MinimumBalance: dec("50"),
		}
		assert.True(t, HasSufficientBalance(account, dec("850")))
	})

	t.Run("negative balance allowed", func(t *testing.T) {
		account := &models.Account{
			CurrentBalance:       dec("10"),
			AllowNegativeBalance: true,
		}
		assert.True(t, HasSufficientBalance(account, dec("5000")))
	})

	t.Run("debit of entire balance with no reserves", func(t *testing.T) {
		account := &models.Account{
			CurrentBalance: dec("250.75"),
		}
		assert.True(t, HasSufficientBalance(account, dec("250.75")))
		assert.False(t, HasSufficientBalance(account, dec("250.76")))
	})
}

func TestRemainingBalance(t *testing.T) {
	t.Run("settled loan", func(t *testing.T) {
		// 11200 - 10000 - 1200 = 0
		loan := &models.LoanObligation{
			PrincipalAmount:   dec("10000"),
			TotalPayable:      dec("11200"),
			TotalPaid:         dec("10000"),
			TotalInterestPaid: dec("1200"),
		}
		assert.True(t, RemainingBalance(loan).IsZero())
		assert.True(t, IsFullyPaid(loan))
	})

	t.Run("partially repaid loan", func(t *testing.T) {
		// 11200 - 4000 - 600 = 6600
		loan := &models.LoanObligation{
			PrincipalAmount:   dec("10000"),
			TotalPayable:      dec("11200"),
			TotalPaid:         dec("4000"),
			TotalInterestPaid: dec("600"),
		}
		assert.True(t, RemainingBalance(loan).Equal(dec("6600")))
		assert.False(t, IsFullyPaid(loan))
	})

	t.Run("floored at zero on overpayment", func(t *testing.T) {
		loan := &models.LoanObligation{
			PrincipalAmount:   dec("10000"),
			TotalPayable:      dec("11200"),
			TotalPaid:         dec("10000"),
			TotalInterestPaid: dec("1300"),
		}
		assert.True(t, RemainingBalance(loan).IsZero())
	})

	t.Run("idempotent with no intervening mutation", func(t *testing.T) {
		loan := &models.LoanObligation{
			PrincipalAmount:   dec("5000"),
			TotalPayable:      dec("5600"),
			TotalPaid:         dec("1234.56"),
			TotalInterestPaid: dec("78.90"),
		}
		first := RemainingBalance(loan)
		second := RemainingBalance(loan)
		assert.True(t, first.Equal(second))
	})
}

func TestRemainingPrincipal(t *testing.T) {
	t.Run("principal outstanding", func(t *testing.T) {
		loan := &models.LoanObligation{
			PrincipalAmount: dec("10000"),
			TotalPaid:       dec("4000"),
		}
		assert.True(t, RemainingPrincipal(loan).Equal(dec("6000")))
	})

	t.Run("floored at zero", func(t *testing.T) {
		loan := &models.LoanObligation{
			PrincipalAmount: dec("10000"),
			TotalPaid:       dec("10000.01"),
		}
		assert.True(t, RemainingPrincipal(loan).IsZero())
	})
}
