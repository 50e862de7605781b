package ledger

import (
	"sort"

	"github.com/google/uuid"
	"github.com/saccoledger/backend/internal/models"
	"github.com/shopspring/decimal"
)

var cent = decimal.New(1, -2)

// Share is one member's finalized cut of a pool share-out.
type Share struct {
	MemberID uuid.UUID       `json:"member_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// AllocateProfitShares turns the pool's distributable profit into cent-exact
// member shares. Raw pro-rata shares are truncated to the cent and the
// leftover cents are then handed out one at a time in descending remainder
// order (ties broken by larger contribution, then input order), so the
// allocated total always equals the distributable profit exactly.
func AllocateProfitShares(pool *models.ContributionPool, contributions []models.MemberContribution) ([]Share, error) {
	if len(contributions) == 0 || pool.TotalContributed.IsZero() {
		return nil, ErrEmptyPool
	}

	shares := make([]Share, len(contributions))
	remainders := make([]decimal.Decimal, len(contributions))
	allocated := decimal.Zero

	for i := range contributions {
		raw, err := ProfitShare(&contributions[i], pool)
		if err != nil {
			return nil, err
		}
		floored := raw.RoundDown(2)
		shares[i] = Share{MemberID: contributions[i].MemberID, Amount: floored}
		remainders[i] = raw.Sub(floored)
		allocated = allocated.Add(floored)
	}

	leftover := pool.TotalDistributableProfit.Sub(allocated)
	cents := leftover.Div(cent).Round(0).IntPart()
	if cents <= 0 {
		return shares, nil
	}

	order := make([]int, len(shares))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if !remainders[ia].Equal(remainders[ib]) {
			return remainders[ia].GreaterThan(remainders[ib])
		}
		return contributions[ia].AmountContributed.GreaterThan(contributions[ib].AmountContributed)
	})

	for i := int64(0); i < cents; i++ {
		idx := order[int(i)%len(order)]
		shares[idx].Amount = shares[idx].Amount.Add(cent)
	}

	return shares, nil
}
