package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Loan statuses
const (
	LoanStatusActive = "ACTIVE"
	LoanStatusClosed = "CLOSED"
)

// LoanObligation tracks a single loan's repayment state. TotalPaid holds
// principal recovered only; interest recovered accrues in TotalInterestPaid.
// TotalPayable = principal + scheduled interest at disbursement, and may grow
// when overdue interest is posted.
type LoanObligation struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	TenantID          uuid.UUID       `json:"tenant_id" db:"tenant_id"`
	AccountID         uuid.UUID       `json:"account_id" db:"account_id"`
	PrincipalAmount   decimal.Decimal `json:"principal_amount" db:"principal_amount"`
	AnnualRatePercent decimal.Decimal `json:"annual_rate_percent" db:"annual_rate_percent"`
	TotalPayable      decimal.Decimal `json:"total_payable" db:"total_payable"`
	TotalPaid         decimal.Decimal `json:"total_paid" db:"total_paid"`
	TotalInterestPaid decimal.Decimal `json:"total_interest_paid" db:"total_interest_paid"`
	Status            string          `json:"status" db:"status"`
	Version           int             `json:"version" db:"version"` // for optimistic locking
	DisbursedAt       time.Time       `json:"disbursed_at" db:"disbursed_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}
