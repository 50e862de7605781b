package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account statuses
const (
	AccountStatusActive    = "ACTIVE"
	AccountStatusSuspended = "SUSPENDED"
	AccountStatusClosed    = "CLOSED"
)

// Account is a tenant-scoped ledger balance holder. Balances are mutated only
// through posted ledger transactions; the version column backs the optimistic
// check on every balance update.
type Account struct {
	ID                   uuid.UUID       `json:"id" db:"id"`
	TenantID             uuid.UUID       `json:"tenant_id" db:"tenant_id"`
	MemberID             uuid.UUID       `json:"member_id" db:"member_id"`
	AccountNumber        string          `json:"account_number" db:"account_number"`
	CurrentBalance       decimal.Decimal `json:"current_balance" db:"current_balance"`
	BlockedBalance       decimal.Decimal `json:"blocked_balance" db:"blocked_balance"`
	MinimumBalance       decimal.Decimal `json:"minimum_balance" db:"minimum_balance"`
	AllowNegativeBalance bool            `json:"allow_negative_balance" db:"allow_negative_balance"`
	Status               string          `json:"status" db:"status"`
	Version              int             `json:"version" db:"version"` // for optimistic locking
	UpdatedAt            time.Time       `json:"updated_at" db:"updated_at"`
}
