package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/saccoledger/backend/internal/audit"
	"github.com/saccoledger/backend/internal/middleware"
	"github.com/saccoledger/backend/internal/models"
	"github.com/saccoledger/backend/internal/repository"
)

type WithdrawalService struct {
	db          *sql.DB
	redis       *redis.Client
	withdrawals *repository.WithdrawalRepo
	accounts    *repository.AccountRepo
	ledger      *LedgerService
	audit       *audit.Logger
	validator   *ValidationHelper
}

type withdrawalRequestBody struct {
	AccountID       string `json:"accountId" validate:"required,uuid4"`
	Amount          string `json:"amount" validate:"required"`
	DestinationType string `json:"destinationType" validate:"required,oneof=INTERNAL EXTERNAL"`
	DestBankCode    string `json:"destBankCode,omitempty" validate:"omitempty,alphanum,min=3,max=11"`
	DestAccount     string `json:"destAccount,omitempty" validate:"omitempty,numeric,min=10,max=20"`
}

func NewWithdrawalService(db *sql.DB, redisClient *redis.Client) *WithdrawalService {
	return &WithdrawalService{
		db:          db,
		redis:       redisClient,
		withdrawals: repository.NewWithdrawalRepo(db),
		accounts:    repository.NewAccountRepo(db),
		ledger:      NewLedgerService(db),
		audit:       audit.NewLogger(),
		validator:   NewValidationHelper(),
	}
}

// RequestWithdrawal records a pending withdrawal request
// @Summary Request a withdrawal
// @Description Create a PENDING withdrawal request against a member account
// @Tags withdrawals
// @Accept json
// @Produce json
// @Param request body withdrawalRequestBody true "Withdrawal request"
// @Success 201 {object} models.WithdrawalRequest
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /withdrawals [post]
func (ws *WithdrawalService) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())
	memberID := middleware.MemberID(r.Context())

	var req withdrawalRequestBody

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

	if err := ws.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if req.DestinationType == models.DestinationExternal && (req.DestBankCode == "" || req.DestAccount == "") {
		SendErrorResponse(w, "External withdrawals require destBankCode and destAccount", http.StatusBadRequest, nil)
		return
	}

	amount, err := ParsePositiveAmount(req.Amount)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		SendErrorResponse(w, "Invalid account ID", http.StatusBadRequest, nil)
		return
	}

	account, err := ws.accounts.GetByID(tenantID, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ws.audit.LogSecurityFault(tenantID, tenantID, memberID.String(), "account:"+accountID.String())
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
			return
		}
		SendErrorResponse(w, "Failed to load account", http.StatusInternalServerError, nil)
		return
	}

	if account.MemberID != memberID && middleware.Role(r.Context()) != models.RoleTreasurer {
		log.Printf("[WITHDRAWAL] Member %s attempted request on foreign account %s", memberID, accountID)
		SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return
	}

	if account.Status != models.AccountStatusActive {
		SendErrorResponse(w, "Account not active", http.StatusForbidden, nil)
		return
	}

	now := time.Now()
	request := &models.WithdrawalRequest{
		ID:              uuid.New(),
		TenantID:        tenantID,
		AccountID:       accountID,
		Amount:          amount,
		DestinationType: req.DestinationType,
		DestBankCode:    req.DestBankCode,
		DestAccount:     req.DestAccount,
		Status:          models.WithdrawalStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := ws.withdrawals.Create(request); err != nil {
		log.Printf("[WITHDRAWAL] Failed to store request: %v", err)
		SendErrorResponse(w, "Failed to create withdrawal request", http.StatusInternalServerError, nil)
		return
	}

	ws.audit.LogOperation(tenantID, request.ID.String(), "WITHDRAWAL_REQUESTED", amount.String())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(request)
}

// ApproveWithdrawal approves a pending request and debits the account
// @Summary Approve a withdrawal request
// @Description Flip a PENDING request to APPROVED and debit the account atomically. Exactly one approver wins a concurrent race.
// @Tags withdrawals
// @Produce json
// @Param requestId path string true "Withdrawal request ID"
// @Success 200 {object} models.WithdrawalRequest
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /withdrawals/{requestId}/approve [post]
func (ws *WithdrawalService) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())
	approverID := middleware.MemberID(r.Context())

	requestID, err := uuid.Parse(chi.URLParam(r, "requestId"))
	if err != nil {
		SendErrorResponse(w, "Invalid request ID", http.StatusBadRequest, nil)
		return
	}

	request, err := ws.withdrawals.GetByID(tenantID, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			SendErrorResponse(w, "Withdrawal request not found", http.StatusNotFound, nil)
			return
		}
		SendErrorResponse(w, "Failed to load withdrawal request", http.StatusInternalServerError, nil)
		return
	}

	tx, err := ws.db.Begin()
	if err != nil {
		log.Printf("[WITHDRAWAL] Failed to begin transaction: %v", err)
		SendErrorResponse(w, "Failed to process approval", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	// Status flip and debit commit or fail together. The conditional UPDATE
	// is what guarantees a single winner under concurrent approvals.
	if err := ws.withdrawals.MarkApproved(tx, tenantID, requestID, approverID); err != nil {
		if errors.Is(err, repository.ErrAlreadyProcessed) {
			SendErrorResponse(w, "Request already processed", http.StatusConflict, nil)
			return
		}
		log.Printf("[WITHDRAWAL] Failed to approve %s: %v", requestID, err)
		SendErrorResponse(w, "Failed to process approval", http.StatusInternalServerError, nil)
		return
	}

	referenceID := "WD-" + requestID.String()
	if err := ws.ledger.DebitTx(tx, tenantID, request.AccountID, referenceID, request.Amount); err != nil {
		switch {
		case errors.Is(err, ErrInsufficientBalance):
			SendErrorResponse(w, "Insufficient balance", http.StatusUnprocessableEntity, nil)
		case errors.Is(err, repository.ErrVersionConflict):
			SendErrorResponse(w, "Account was modified concurrently, retry", http.StatusConflict, nil)
		default:
			log.Printf("[WITHDRAWAL] Debit failed for %s: %v", requestID, err)
			SendErrorResponse(w, "Failed to process approval", http.StatusInternalServerError, nil)
		}
		return
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[WITHDRAWAL] Failed to commit approval of %s: %v", requestID, err)
		SendErrorResponse(w, "Failed to process approval", http.StatusInternalServerError, nil)
		return
	}

	request.Status = models.WithdrawalStatusApproved
	request.ApprovedBy = &approverID
	ws.audit.LogTransfer(tenantID, referenceID, request.AccountID.String(), request.DestAccount, request.Amount, "APPROVED")

	// External payouts go to the settlement queue after commit
	if request.DestinationType == models.DestinationExternal {
		if err := ws.queueForSettlement(request); err != nil {
			log.Printf("[WITHDRAWAL] Failed to queue %s for settlement: %v", requestID, err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(request)
}

// RejectWithdrawal rejects a pending request
// @Summary Reject a withdrawal request
// @Description Flip a PENDING request to REJECTED. No money moves.
// @Tags withdrawals
// @Produce json
// @Param requestId path string true "Withdrawal request ID"
// @Success 200 {object} models.WithdrawalRequest
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /withdrawals/{requestId}/reject [post]
func (ws *WithdrawalService) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())
	approverID := middleware.MemberID(r.Context())

	requestID, err := uuid.Parse(chi.URLParam(r, "requestId"))
	if err != nil {
		SendErrorResponse(w, "Invalid request ID", http.StatusBadRequest, nil)
		return
	}

	request, err := ws.withdrawals.GetByID(tenantID, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			SendErrorResponse(w, "Withdrawal request not found", http.StatusNotFound, nil)
			return
		}
		SendErrorResponse(w, "Failed to load withdrawal request", http.StatusInternalServerError, nil)
		return
	}

	tx, err := ws.db.Begin()
	if err != nil {
		SendErrorResponse(w, "Failed to process rejection", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	if err := ws.withdrawals.MarkRejected(tx, tenantID, requestID, approverID); err != nil {
		if errors.Is(err, repository.ErrAlreadyProcessed) {
			SendErrorResponse(w, "Request already processed", http.StatusConflict, nil)
			return
		}
		log.Printf("[WITHDRAWAL] Failed to reject %s: %v", requestID, err)
		SendErrorResponse(w, "Failed to process rejection", http.StatusInternalServerError, nil)
		return
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[WITHDRAWAL] Failed to commit rejection of %s: %v", requestID, err)
		SendErrorResponse(w, "Failed to process rejection", http.StatusInternalServerError, nil)
		return
	}

	request.Status = models.WithdrawalStatusRejected
	request.ApprovedBy = &approverID
	ws.audit.LogOperation(tenantID, requestID.String(), "WITHDRAWAL_REJECTED", request.Amount.String())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(request)
}

// ListWithdrawals retrieves withdrawal requests for the tenant
// @Summary List withdrawal requests
// @Description Get withdrawal requests for the authenticated tenant with optional status filtering
// @Tags withdrawals
// @Produce json
// @Param status query string false "Filter by status (PENDING, APPROVED, REJECTED)"
// @Param limit query int false "Number of requests to return (default: 50, max: 200)"
// @Success 200 {object} object{requests=[]models.WithdrawalRequest,count=int}
// @Failure 500 {object} ErrorResponse
// @Router /withdrawals [get]
func (ws *WithdrawalService) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())
	status := r.URL.Query().Get("status")

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}

	requests, err := ws.withdrawals.ListByTenant(tenantID, status, limit)
	if err != nil {
		log.Printf("[WITHDRAWAL] Failed to list requests: %v", err)
		SendErrorResponse(w, "Failed to fetch withdrawal requests", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"requests": requests,
		"count":    len(requests),
	})
}

// GetWithdrawal retrieves a single withdrawal request
// @Summary Get withdrawal request by ID
// @Tags withdrawals
// @Produce json
// @Param requestId path string true "Withdrawal request ID"
// @Success 200 {object} models.WithdrawalRequest
// @Failure 404 {object} ErrorResponse
// @Router /withdrawals/{requestId} [get]
func (ws *WithdrawalService) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())

	requestID, err := uuid.Parse(chi.URLParam(r, "requestId"))
	if err != nil {
		SendErrorResponse(w, "Invalid request ID", http.StatusBadRequest, nil)
		return
	}

	request, err := ws.withdrawals.GetByID(tenantID, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			SendErrorResponse(w, "Withdrawal request not found", http.StatusNotFound, nil)
			return
		}
		SendErrorResponse(w, "Failed to fetch withdrawal request", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(request)
}

func (ws *WithdrawalService) queueForSettlement(request *models.WithdrawalRequest) error {
	data, err := json.Marshal(request)
	if err != nil {
		return err
	}
	return ws.redis.RPush(context.Background(), "settlement_queue", data).Err()
}
