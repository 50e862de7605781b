// Package ledger holds the canonical money arithmetic for accounts, loans
// and contribution pools. Everything in here is a pure computation over
// already-validated inputs; persistence and locking live with the callers.
package ledger

import (
	"github.com/saccoledger/backend/internal/models"
	"github.com/shopspring/decimal"
)

// HasSufficientBalance reports whether a debit of amount may be taken from
// the account. The blocked balance and the minimum balance reserve both stay
// untouchable unless the account allows going negative.
func HasSufficientBalance(a *models.Account, amount decimal.Decimal) bool {
	if a.AllowNegativeBalance {
		return true
	}
	available := a.CurrentBalance.Sub(a.BlockedBalance).Sub(amount)
	return available.GreaterThanOrEqual(a.MinimumBalance)
}

// RemainingBalance returns total_payable - (total_paid + total_interest_paid),
// floored at zero. This is the only loan-balance computation in the codebase;
// every status report and close decision goes through it.
func RemainingBalance(l *models.LoanObligation) decimal.Decimal {
	remaining := l.TotalPayable.Sub(l.TotalPaid).Sub(l.TotalInterestPaid)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// RemainingPrincipal returns the principal still owed, floored at zero.
func RemainingPrincipal(l *models.LoanObligation) decimal.Decimal {
	remaining := l.PrincipalAmount.Sub(l.TotalPaid)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// IsFullyPaid reports whether the loan is settled.
func IsFullyPaid(l *models.LoanObligation) bool {
	return RemainingBalance(l).LessThanOrEqual(decimal.Zero)
}
