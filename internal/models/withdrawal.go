package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Withdrawal request statuses
const (
	WithdrawalStatusPending  = "PENDING"
	WithdrawalStatusApproved = "APPROVED"
	WithdrawalStatusRejected = "REJECTED"
)

// Withdrawal destination types
const (
	DestinationInternal = "INTERNAL"
	DestinationExternal = "EXTERNAL"
)

// WithdrawalRequest is a member's request to take money out of an account.
// The PENDING -> APPROVED transition is guarded so that two concurrent
// approvals produce exactly one winner.
type WithdrawalRequest struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	TenantID        uuid.UUID       `json:"tenant_id" db:"tenant_id"`
	AccountID       uuid.UUID       `json:"account_id" db:"account_id"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	DestinationType string          `json:"destination_type" db:"destination_type"`
	DestBankCode    string          `json:"dest_bank_code,omitempty" db:"dest_bank_code"`
	DestAccount     string          `json:"dest_account,omitempty" db:"dest_account"`
	Status          string          `json:"status" db:"status"`
	ApprovedBy      *uuid.UUID      `json:"approved_by,omitempty" db:"approved_by"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}
