package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Pool statuses. A finalized pool is frozen: no contributions may be added
// and the share-out cannot run twice.
const (
	PoolStatusOpen      = "OPEN"
	PoolStatusFinalized = "FINALIZED"
)

// ContributionPool is a per-cycle aggregate of member savings plus the
// interest and fees collected during the cycle.
type ContributionPool struct {
	ID                       uuid.UUID       `json:"id" db:"id"`
	TenantID                 uuid.UUID       `json:"tenant_id" db:"tenant_id"`
	CycleName                string          `json:"cycle_name" db:"cycle_name"`
	TotalContributed         decimal.Decimal `json:"total_contributed" db:"total_contributed"`
	TotalDistributableProfit decimal.Decimal `json:"total_distributable_profit" db:"total_distributable_profit"`
	Status                   string          `json:"status" db:"status"`
	CreatedAt                time.Time       `json:"created_at" db:"created_at"`
	FinalizedAt              *time.Time      `json:"finalized_at,omitempty" db:"finalized_at"`
}

// MemberContribution is one member's stake in a ContributionPool.
type MemberContribution struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	TenantID          uuid.UUID       `json:"tenant_id" db:"tenant_id"`
	PoolID            uuid.UUID       `json:"pool_id" db:"pool_id"`
	MemberID          uuid.UUID       `json:"member_id" db:"member_id"`
	AmountContributed decimal.Decimal `json:"amount_contributed" db:"amount_contributed"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}
