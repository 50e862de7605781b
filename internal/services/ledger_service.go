package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/saccoledger/backend/internal/audit"
	"github.com/saccoledger/backend/internal/ledger"
	"github.com/saccoledger/backend/internal/middleware"
	"github.com/saccoledger/backend/internal/models"
	"github.com/saccoledger/backend/internal/repository"
	"github.com/shopspring/decimal"
)

// ErrInsufficientBalance is a business rejection, not an internal error; the
// HTTP layer turns it into a user-facing message.
var ErrInsufficientBalance = errors.New("insufficient balance")

// LedgerService posts money movements. Every mutation runs under the account
// row lock with an optimistic version check on the final write, and leaves an
// append-only ledger entry behind.
type LedgerService struct {
	db       *sql.DB
	accounts *repository.AccountRepo
	audit    *audit.Logger
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{
		db:       db,
		accounts: repository.NewAccountRepo(db),
		audit:    audit.NewLogger(),
	}
}

// Transfer posts a debit/credit pair between two accounts of the same tenant
// as one transaction.
func (s *LedgerService) Transfer(tenantID, fromAccountID, toAccountID uuid.UUID, referenceID string, amount decimal.Decimal) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.TransferTx(tx, tenantID, fromAccountID, toAccountID, referenceID, amount); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *LedgerService) TransferTx(tx *sql.Tx, tenantID, fromAccountID, toAccountID uuid.UUID, referenceID string, amount decimal.Decimal) error {
	// Lock accounts in consistent order to prevent deadlocks
	firstLock, secondLock := fromAccountID, toAccountID
	if fromAccountID.String() > toAccountID.String() {
		firstLock, secondLock = toAccountID, fromAccountID
	}

	fromAccount, err := s.accounts.Lock(tx, tenantID, firstLock)
	if err != nil {
		return err
	}

	toAccount, err := s.accounts.Lock(tx, tenantID, secondLock)
	if err != nil {
		return err
	}

	if firstLock != fromAccountID {
		fromAccount, toAccount = toAccount, fromAccount
	}

	if !ledger.HasSufficientBalance(fromAccount, amount) {
		return ErrInsufficientBalance
	}

	fromBalance := fromAccount.CurrentBalance.Sub(amount)
	toBalance := toAccount.CurrentBalance.Add(amount)

	if err := s.createLedgerEntry(tx, tenantID, referenceID, fromAccount.ID, amount.Neg(), models.EntryTypeDebit, fromBalance); err != nil {
		return err
	}
	if err := s.createLedgerEntry(tx, tenantID, referenceID, toAccount.ID, amount, models.EntryTypeCredit, toBalance); err != nil {
		return err
	}

	if err := s.accounts.UpdateBalance(tx, tenantID, fromAccount.ID, fromBalance, fromAccount.Version); err != nil {
		return err
	}
	if err := s.accounts.UpdateBalance(tx, tenantID, toAccount.ID, toBalance, toAccount.Version); err != nil {
		return err
	}

	s.audit.LogTransfer(tenantID, referenceID, fromAccount.ID.String(), toAccount.ID.String(), amount, "SUCCESS")
	return nil
}

// DebitTx takes amount out of the account after the sufficient-balance check,
// all under the row lock held by tx.
func (s *LedgerService) DebitTx(tx *sql.Tx, tenantID, accountID uuid.UUID, referenceID string, amount decimal.Decimal) error {
	account, err := s.accounts.Lock(tx, tenantID, accountID)
	if err != nil {
		return err
	}

	if !ledger.HasSufficientBalance(account, amount) {
		return ErrInsufficientBalance
	}

	newBalance := account.CurrentBalance.Sub(amount)
	if err := s.createLedgerEntry(tx, tenantID, referenceID, accountID, amount.Neg(), models.EntryTypeDebit, newBalance); err != nil {
		return err
	}
	return s.accounts.UpdateBalance(tx, tenantID, accountID, newBalance, account.Version)
}

// CreditTx adds amount to the account under the row lock held by tx.
func (s *LedgerService) CreditTx(tx *sql.Tx, tenantID, accountID uuid.UUID, referenceID string, amount decimal.Decimal) error {
	account, err := s.accounts.Lock(tx, tenantID, accountID)
	if err != nil {
		return err
	}

	newBalance := account.CurrentBalance.Add(amount)
	if err := s.createLedgerEntry(tx, tenantID, referenceID, accountID, amount, models.EntryTypeCredit, newBalance); err != nil {
		return err
	}
	return s.accounts.UpdateBalance(tx, tenantID, accountID, newBalance, account.Version)
}

// FetchEntry loads one ledger entry by reference, tenant-scoped. Used by the
// receipt service.
func (s *LedgerService) FetchEntry(tenantID uuid.UUID, referenceID string) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := s.db.QueryRow(`
		SELECT id, tenant_id, reference_id, account_id, amount, entry_type, balance, created_at
		FROM ledger_entries
		WHERE tenant_id = $1 AND reference_id = $2
		ORDER BY id
		LIMIT 1`, tenantID, referenceID).
		Scan(&e.ID, &e.TenantID, &e.ReferenceID, &e.AccountID, &e.Amount,
			&e.EntryType, &e.Balance, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// BalanceEnquiry reports the caller's account balances
// @Summary Account balance enquiry
// @Description Get the authenticated member's account balances
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{accountNumber=string,currentBalance=string,blockedBalance=string,availableBalance=string}
// @Failure 404 {object} ErrorResponse
// @Router /accounts/balance-enquiry [get]
func (s *LedgerService) BalanceEnquiry(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())
	memberID := middleware.MemberID(r.Context())

	account, err := s.accounts.GetByMember(tenantID, memberID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[LEDGER] Balance enquiry failed for member %s: %v", memberID, err)
		SendErrorResponse(w, "Failed to fetch account", http.StatusInternalServerError, nil)
		return
	}

	available := account.CurrentBalance.Sub(account.BlockedBalance)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"accountNumber":    account.AccountNumber,
		"currentBalance":   account.CurrentBalance.StringFixed(2),
		"blockedBalance":   account.BlockedBalance.StringFixed(2),
		"availableBalance": available.StringFixed(2),
	})
}

func (s *LedgerService) createLedgerEntry(tx *sql.Tx, tenantID uuid.UUID, referenceID string, accountID uuid.UUID, amount decimal.Decimal, entryType string, balance decimal.Decimal) error {
	_, err := tx.Exec(`
		INSERT INTO ledger_entries (tenant_id, reference_id, account_id, amount, entry_type, balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tenantID, referenceID, accountID, amount, entryType, balance, time.Now())
	return err
}
