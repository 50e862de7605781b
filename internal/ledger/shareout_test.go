package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/saccoledger/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func contribution(amount string) models.MemberContribution {
	return models.MemberContribution{
		MemberID:          uuid.New(),
		AmountContributed: decimal.RequireFromString(amount),
	}
}

func sumShares(shares []Share) decimal.Decimal {
	total := decimal.Zero
	for _, s := range shares {
		total = total.Add(s.Amount)
	}
	return total
}

func TestAllocateProfitShares(t *testing.T) {
	t.Run("even split", func(t *testing.T) {
		pool := &models.ContributionPool{
			TotalContributed:         dec("50000"),
			TotalDistributableProfit: dec("2000"),
		}
		contributions := []models.MemberContribution{
			contribution("10000"),
			contribution("10000"),
			contribution("30000"),
		}

		shares, err := AllocateProfitShares(pool, contributions)
		assert.NoError(t, err)
		assert.Len(t, shares, 3)
		assert.True(t, shares[0].Amount.Equal(dec("400")))
		assert.True(t, shares[1].Amount.Equal(dec("400")))
		assert.True(t, shares[2].Amount.Equal(dec("1200")))
		assert.True(t, sumShares(shares).Equal(pool.TotalDistributableProfit))
	})

	t.Run("leftover cents conserved exactly", func(t *testing.T) {
		// 1.00 across three equal members: 0.3333... each, floored to 0.33,
		// the leftover cent goes to exactly one member.
		pool := &models.ContributionPool{
			TotalContributed:         dec("3000"),
			TotalDistributableProfit: dec("1.00"),
		}
		contributions := []models.MemberContribution{
			contribution("1000"),
			contribution("1000"),
			contribution("1000"),
		}

		shares, err := AllocateProfitShares(pool, contributions)
		assert.NoError(t, err)
		assert.True(t, sumShares(shares).Equal(dec("1.00")), "allocated %s", sumShares(shares))

		withExtra := 0
		for _, s := range shares {
			if s.Amount.Equal(dec("0.34")) {
				withExtra++
			} else {
				assert.True(t, s.Amount.Equal(dec("0.33")), "got %s", s.Amount)
			}
		}
		assert.Equal(t, 1, withExtra)
	})

	t.Run("larger remainders take the extra cents first", func(t *testing.T) {
		pool := &models.ContributionPool{
			TotalContributed:         dec("700"),
			TotalDistributableProfit: dec("10.00"),
		}
		contributions := []models.MemberContribution{
			contribution("100"), // raw 1.428571...
			contribution("200"), // raw 2.857142...
			contribution("400"), // raw 5.714285...
		}

		shares, err := AllocateProfitShares(pool, contributions)
		assert.NoError(t, err)
		assert.True(t, sumShares(shares).Equal(dec("10.00")), "allocated %s", sumShares(shares))
		// floors sum to 9.98; the two leftover cents go to the two largest
		// remainders (0.0086 and 0.0071), not to the biggest contributor
		assert.True(t, shares[0].Amount.Equal(dec("1.43")), "got %s", shares[0].Amount)
		assert.True(t, shares[1].Amount.Equal(dec("2.86")), "got %s", shares[1].Amount)
		assert.True(t, shares[2].Amount.Equal(dec("5.71")), "got %s", shares[2].Amount)
	})

	t.Run("awkward totals stay conserved", func(t *testing.T) {
		pool := &models.ContributionPool{
			TotalContributed:         dec("1234.56"),
			TotalDistributableProfit: dec("777.77"),
		}
		contributions := []models.MemberContribution{
			contribution("0.01"),
			contribution("333.33"),
			contribution("401.10"),
			contribution("500.12"),
		}

		shares, err := AllocateProfitShares(pool, contributions)
		assert.NoError(t, err)
		assert.True(t, sumShares(shares).Equal(dec("777.77")), "allocated %s", sumShares(shares))
	})

	t.Run("no contributions rejected", func(t *testing.T) {
		pool := &models.ContributionPool{
			TotalContributed:         decimal.Zero,
			TotalDistributableProfit: dec("100"),
		}
		_, err := AllocateProfitShares(pool, nil)
		assert.ErrorIs(t, err, ErrEmptyPool)
	})
}
