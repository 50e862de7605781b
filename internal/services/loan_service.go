package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/saccoledger/backend/internal/audit"
	"github.com/saccoledger/backend/internal/ledger"
	"github.com/saccoledger/backend/internal/middleware"
	"github.com/saccoledger/backend/internal/models"
	"github.com/saccoledger/backend/internal/repository"
	"github.com/shopspring/decimal"
)

type LoanService struct {
	db        *sql.DB
	loans     *repository.LoanRepo
	accounts  *repository.AccountRepo
	ledger    *LedgerService
	audit     *audit.Logger
	validator *ValidationHelper
}

type disburseLoanBody struct {
	AccountID         string `json:"accountId" validate:"required,uuid4"`
	Principal         string `json:"principal" validate:"required"`
	AnnualRatePercent string `json:"annualRatePercent" validate:"required"`
	TermDays          int    `json:"termDays" validate:"required,gt=0,lte=3650"`
}

type repayLoanBody struct {
	Amount string `json:"amount" validate:"required"`
}

type postInterestBody struct {
	ElapsedDays int `json:"elapsedDays" validate:"required,gt=0,lte=3650"`
}

func NewLoanService(db *sql.DB) *LoanService {
	return &LoanService{
		db:        db,
		loans:     repository.NewLoanRepo(db),
		accounts:  repository.NewAccountRepo(db),
		ledger:    NewLedgerService(db),
		audit:     audit.NewLogger(),
		validator: NewValidationHelper(),
	}
}

// DisburseLoan creates a loan and credits the member account
// @Summary Disburse a loan
// @Description Create a loan obligation with simple interest scheduled over the term and credit the principal to the member account
// @Tags loans
// @Accept json
// @Produce json
// @Param loan body disburseLoanBody true "Loan terms"
// @Success 201 {object} models.LoanObligation
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /loans/disburse [post]
func (ls *LoanService) DisburseLoan(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())

	var req disburseLoanBody

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := ls.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	principal, err := ParsePositiveAmount(req.Principal)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	rate, err := decimal.NewFromString(req.AnnualRatePercent)
	if err != nil || rate.IsNegative() {
		SendErrorResponse(w, "Invalid annual rate", http.StatusBadRequest, nil)
		return
	}

	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		SendErrorResponse(w, "Invalid account ID", http.StatusBadRequest, nil)
		return
	}

	if _, err := ls.accounts.GetByID(tenantID, accountID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
			return
		}
		SendErrorResponse(w, "Failed to load account", http.StatusInternalServerError, nil)
		return
	}

	scheduledInterest, err := ledger.AccruedInterest(principal, rate, req.TermDays)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	now := time.Now()
	loan := &models.LoanObligation{
		ID:                uuid.New(),
		TenantID:          tenantID,
		AccountID:         accountID,
		PrincipalAmount:   principal,
		AnnualRatePercent: rate,
		TotalPayable:      principal.Add(scheduledInterest),
		TotalPaid:         decimal.Zero,
		TotalInterestPaid: decimal.Zero,
		Status:            models.LoanStatusActive,
		Version:           1,
		DisbursedAt:       now,
		UpdatedAt:         now,
	}

	tx, err := ls.db.Begin()
	if err != nil {
		SendErrorResponse(w, "Failed to disburse loan", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	if err := ls.loans.Create(tx, loan); err != nil {
		log.Printf("[LOAN] Failed to store loan: %v", err)
		SendErrorResponse(w, "Failed to disburse loan", http.StatusInternalServerError, nil)
		return
	}

	referenceID := "LN-" + loan.ID.String()
	if err := ls.ledger.CreditTx(tx, tenantID, accountID, referenceID, principal); err != nil {
		log.Printf("[LOAN] Failed to credit disbursement: %v", err)
		SendErrorResponse(w, "Failed to disburse loan", http.StatusInternalServerError, nil)
		return
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[LOAN] Failed to commit disbursement: %v", err)
		SendErrorResponse(w, "Failed to disburse loan", http.StatusInternalServerError, nil)
		return
	}

	ls.audit.LogOperation(tenantID, loan.ID.String(), "LOAN_DISBURSED", principal.String())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(loan)
}

// RepayLoan applies a repayment against a loan
// @Summary Repay a loan
// @Description Debit the member account and apply the payment interest-first against the loan. Closes the loan when nothing remains.
// @Tags loans
// @Accept json
// @Produce json
// @Param loanId path string true "Loan ID"
// @Param payment body repayLoanBody true "Repayment amount"
// @Success 200 {object} object{loan=models.LoanObligation,remainingBalance=string,fullyPaid=bool}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /loans/{loanId}/repay [post]
func (ls *LoanService) RepayLoan(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())

	loanID, err := uuid.Parse(chi.URLParam(r, "loanId"))
	if err != nil {
		SendErrorResponse(w, "Invalid loan ID", http.StatusBadRequest, nil)
		return
	}

	var req repayLoanBody

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	amount, err := ParsePositiveAmount(req.Amount)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	tx, err := ls.db.Begin()
	if err != nil {
		SendErrorResponse(w, "Failed to process repayment", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	loan, err := ls.loans.Lock(tx, tenantID, loanID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			SendErrorResponse(w, "Loan not found", http.StatusNotFound, nil)
			return
		}
		SendErrorResponse(w, "Failed to load loan", http.StatusInternalServerError, nil)
		return
	}

	if loan.Status == models.LoanStatusClosed {
		SendErrorResponse(w, "Loan is closed", http.StatusConflict, nil)
		return
	}

	remaining := ledger.RemainingBalance(loan)
	if amount.GreaterThan(remaining) {
		SendErrorResponse(w, "Payment exceeds remaining balance", http.StatusUnprocessableEntity, nil)
		return
	}

	principalPortion, interestPortion := splitRepayment(loan, amount)

	referenceID := "RP-" + loanID.String() + "-" + time.Now().Format("20060102150405")
	if err := ls.ledger.DebitTx(tx, tenantID, loan.AccountID, referenceID, amount); err != nil {
		switch {
		case errors.Is(err, ErrInsufficientBalance):
			SendErrorResponse(w, "Insufficient balance", http.StatusUnprocessableEntity, nil)
		case errors.Is(err, repository.ErrVersionConflict):
			SendErrorResponse(w, "Account was modified concurrently, retry", http.StatusConflict, nil)
		default:
			log.Printf("[LOAN] Debit failed for repayment of %s: %v", loanID, err)
			SendErrorResponse(w, "Failed to process repayment", http.StatusInternalServerError, nil)
		}
		return
	}

	loan.TotalPaid = loan.TotalPaid.Add(principalPortion)
	loan.TotalInterestPaid = loan.TotalInterestPaid.Add(interestPortion)
	status := models.LoanStatusActive
	if ledger.IsFullyPaid(loan) {
		status = models.LoanStatusClosed
	}

	if err := ls.loans.ApplyPayment(tx, tenantID, loanID, principalPortion, interestPortion, status, loan.Version); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			SendErrorResponse(w, "Loan was modified concurrently, retry", http.StatusConflict, nil)
			return
		}
		log.Printf("[LOAN] Failed to apply payment to %s: %v", loanID, err)
		SendErrorResponse(w, "Failed to process repayment", http.StatusInternalServerError, nil)
		return
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[LOAN] Failed to commit repayment of %s: %v", loanID, err)
		SendErrorResponse(w, "Failed to process repayment", http.StatusInternalServerError, nil)
		return
	}

	loan.Status = status
	ls.audit.LogOperation(tenantID, loanID.String(), "LOAN_REPAYMENT", amount.String())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"loan":             loan,
		"remainingBalance": ledger.RemainingBalance(loan).String(),
		"fullyPaid":        ledger.IsFullyPaid(loan),
	})
}

// PostInterest accrues overdue interest onto a loan
// @Summary Post accrued interest
// @Description Grow the loan's total payable by simple interest on the outstanding principal for the elapsed days
// @Tags loans
// @Accept json
// @Produce json
// @Param loanId path string true "Loan ID"
// @Param accrual body postInterestBody true "Days elapsed since the last posting"
// @Success 200 {object} object{loan=models.LoanObligation,accruedInterest=string}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /loans/{loanId}/post-interest [post]
func (ls *LoanService) PostInterest(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())

	loanID, err := uuid.Parse(chi.URLParam(r, "loanId"))
	if err != nil {
		SendErrorResponse(w, "Invalid loan ID", http.StatusBadRequest, nil)
		return
	}

	var req postInterestBody

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := ls.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	tx, err := ls.db.Begin()
	if err != nil {
		SendErrorResponse(w, "Failed to post interest", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	loan, err := ls.loans.Lock(tx, tenantID, loanID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			SendErrorResponse(w, "Loan not found", http.StatusNotFound, nil)
			return
		}
		SendErrorResponse(w, "Failed to load loan", http.StatusInternalServerError, nil)
		return
	}

	if loan.Status == models.LoanStatusClosed {
		SendErrorResponse(w, "Loan is closed", http.StatusConflict, nil)
		return
	}

	// Interest accrues on what is still owed, not the original principal
	accrued, err := ledger.AccruedInterest(ledger.RemainingPrincipal(loan), loan.AnnualRatePercent, req.ElapsedDays)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	if err := ls.loans.AddPayable(tx, tenantID, loanID, accrued, loan.Version); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			SendErrorResponse(w, "Loan was modified concurrently, retry", http.StatusConflict, nil)
			return
		}
		log.Printf("[LOAN] Failed to post interest on %s: %v", loanID, err)
		SendErrorResponse(w, "Failed to post interest", http.StatusInternalServerError, nil)
		return
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[LOAN] Failed to commit interest posting on %s: %v", loanID, err)
		SendErrorResponse(w, "Failed to post interest", http.StatusInternalServerError, nil)
		return
	}

	loan.TotalPayable = loan.TotalPayable.Add(accrued)
	ls.audit.LogOperation(tenantID, loanID.String(), "INTEREST_POSTED", accrued.String())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"loan":            loan,
		"accruedInterest": accrued.String(),
	})
}

// GetLoan retrieves a loan with its derived balances
// @Summary Get loan by ID
// @Tags loans
// @Produce json
// @Param loanId path string true "Loan ID"
// @Success 200 {object} object{loan=models.LoanObligation,remainingBalance=string,remainingPrincipal=string,fullyPaid=bool}
// @Failure 404 {object} ErrorResponse
// @Router /loans/{loanId} [get]
func (ls *LoanService) GetLoan(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())

	loanID, err := uuid.Parse(chi.URLParam(r, "loanId"))
	if err != nil {
		SendErrorResponse(w, "Invalid loan ID", http.StatusBadRequest, nil)
		return
	}

	loan, err := ls.loans.GetByID(tenantID, loanID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			SendErrorResponse(w, "Loan not found", http.StatusNotFound, nil)
			return
		}
		SendErrorResponse(w, "Failed to fetch loan", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"loan":               loan,
		"remainingBalance":   ledger.RemainingBalance(loan).String(),
		"remainingPrincipal": ledger.RemainingPrincipal(loan).String(),
		"fullyPaid":          ledger.IsFullyPaid(loan),
	})
}

// splitRepayment divides a payment interest-first. Whatever interest is still
// outstanding absorbs the payment before any of it reduces principal.
func splitRepayment(loan *models.LoanObligation, amount decimal.Decimal) (principalPortion, interestPortion decimal.Decimal) {
	interestOwed := loan.TotalPayable.Sub(loan.PrincipalAmount)
	interestOutstanding := interestOwed.Sub(loan.TotalInterestPaid)
	if interestOutstanding.IsNegative() {
		interestOutstanding = decimal.Zero
	}

	interestPortion = decimal.Min(amount, interestOutstanding)
	principalPortion = amount.Sub(interestPortion)
	return principalPortion, interestPortion
}
