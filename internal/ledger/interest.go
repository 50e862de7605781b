package ledger

import (
	"errors"

	"github.com/saccoledger/backend/internal/models"
	"github.com/shopspring/decimal"
)

var (
	ErrNegativeElapsedDays = errors.New("elapsed days cannot be negative")
	ErrNegativePrincipal   = errors.New("principal cannot be negative")
	ErrEmptyPool           = errors.New("pool has no contributions")
)

var (
	hundred     = decimal.NewFromInt(100)
	daysPerYear = decimal.NewFromInt(365)
)

// AccruedInterest computes flat-rate interest on a principal over elapsed
// days: principal * rate/100 * days/365. No rounding happens here; callers
// round for display or posting only. A zero rate yields zero interest.
// Negative elapsed days is a validation error, never silently clamped.
func AccruedInterest(principal, annualRatePercent decimal.Decimal, elapsedDays int) (decimal.Decimal, error) {
	if elapsedDays < 0 {
		return decimal.Decimal{}, ErrNegativeElapsedDays
	}
	if principal.IsNegative() {
		return decimal.Decimal{}, ErrNegativePrincipal
	}
	rate := annualRatePercent.Div(hundred)
	elapsed := decimal.NewFromInt(int64(elapsedDays)).Div(daysPerYear)
	return principal.Mul(rate).Mul(elapsed), nil
}

// ProfitShare returns one member's unrounded cut of the pool's distributable
// profit, in proportion to the amount they contributed. Errors when the pool
// has no contributions.
func ProfitShare(c *models.MemberContribution, pool *models.ContributionPool) (decimal.Decimal, error) {
	if pool.TotalContributed.IsZero() {
		return decimal.Decimal{}, ErrEmptyPool
	}
	return pool.TotalDistributableProfit.Mul(c.AmountContributed).Div(pool.TotalContributed), nil
}
