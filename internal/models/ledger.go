package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger entry types
const (
	EntryTypeDebit  = "DEBIT"
	EntryTypeCredit = "CREDIT"
)

// LedgerEntry is an append-only record of one side of a posted movement.
// Balance is the account balance after the entry was applied.
type LedgerEntry struct {
	ID          int             `json:"id" db:"id"`
	TenantID    uuid.UUID       `json:"tenant_id" db:"tenant_id"`
	ReferenceID string          `json:"reference_id" db:"reference_id"`
	AccountID   uuid.UUID       `json:"account_id" db:"account_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"` // signed: negative for debits
	EntryType   string          `json:"entry_type" db:"entry_type"`
	Balance     decimal.Decimal `json:"balance" db:"balance"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
