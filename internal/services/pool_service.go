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

type PoolService struct {
	db        *sql.DB
	pools     *repository.PoolRepo
	accounts  *repository.AccountRepo
	ledger    *LedgerService
	audit     *audit.Logger
	validator *ValidationHelper
}

type createPoolBody struct {
	CycleName string `json:"cycleName" validate:"required,min=3,max=64"`
}

type contributionBody struct {
	MemberID string `json:"memberId,omitempty" validate:"omitempty,uuid4"`
	Amount   string `json:"amount" validate:"required"`
}

type recordProfitBody struct {
	Amount string `json:"amount" validate:"required"`
}

func NewPoolService(db *sql.DB) *PoolService {
	return &PoolService{
		db:        db,
		pools:     repository.NewPoolRepo(db),
		accounts:  repository.NewAccountRepo(db),
		ledger:    NewLedgerService(db),
		audit:     audit.NewLogger(),
		validator: NewValidationHelper(),
	}
}

// CreatePool opens a new contribution cycle
// @Summary Create a contribution pool
// @Tags pools
// @Accept json
// @Produce json
// @Param pool body createPoolBody true "Cycle details"
// @Success 201 {object} models.ContributionPool
// @Failure 400 {object} ErrorResponse
// @Router /pools [post]
func (ps *PoolService) CreatePool(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())

	var req createPoolBody

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

	if err := ps.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	pool := &models.ContributionPool{
		ID:                       uuid.New(),
		TenantID:                 tenantID,
		CycleName:                req.CycleName,
		TotalContributed:         decimal.Zero,
		TotalDistributableProfit: decimal.Zero,
		Status:                   models.PoolStatusOpen,
		CreatedAt:                time.Now(),
	}

	if err := ps.pools.Create(pool); err != nil {
		log.Printf("[POOL] Failed to create pool: %v", err)
		SendErrorResponse(w, "Failed to create pool", http.StatusInternalServerError, nil)
		return
	}

	ps.audit.LogOperation(tenantID, pool.ID.String(), "POOL_CREATED", req.CycleName)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(pool)
}

// GetPool retrieves a pool with its contributions
// @Summary Get pool by ID
// @Tags pools
// @Produce json
// @Param poolId path string true "Pool ID"
// @Success 200 {object} object{pool=models.ContributionPool,contributions=[]models.MemberContribution}
// @Failure 404 {object} ErrorResponse
// @Router /pools/{poolId} [get]
func (ps *PoolService) GetPool(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())

	poolID, err := uuid.Parse(chi.URLParam(r, "poolId"))
	if err != nil {
		SendErrorResponse(w, "Invalid pool ID", http.StatusBadRequest, nil)
		return
	}

	pool, err := ps.pools.GetByID(tenantID, poolID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			SendErrorResponse(w, "Pool not found", http.StatusNotFound, nil)
			return
		}
		SendErrorResponse(w, "Failed to fetch pool", http.StatusInternalServerError, nil)
		return
	}

	contributions, err := ps.pools.ListContributions(tenantID, poolID)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch contributions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"pool":          pool,
		"contributions": contributions,
	})
}

// AddContribution moves savings from a member account into the pool
// @Summary Contribute to a pool
// @Description Debit the member's account and record the stake in the pool. Rejected once the pool is finalized.
// @Tags pools
// @Accept json
// @Produce json
// @Param poolId path string true "Pool ID"
// @Param contribution body contributionBody true "Contribution"
// @Success 201 {object} models.MemberContribution
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /pools/{poolId}/contributions [post]
func (ps *PoolService) AddContribution(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())
	memberID := middleware.MemberID(r.Context())

	poolID, err := uuid.Parse(chi.URLParam(r, "poolId"))
	if err != nil {
		SendErrorResponse(w, "Invalid pool ID", http.StatusBadRequest, nil)
		return
	}

	var req contributionBody

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

	if err := ps.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	amount, err := ParsePositiveAmount(req.Amount)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	// Treasurers may record a contribution on another member's behalf
	contributorID := memberID
	if req.MemberID != "" {
		id, err := uuid.Parse(req.MemberID)
		if err != nil {
			SendErrorResponse(w, "Invalid member ID", http.StatusBadRequest, nil)
			return
		}
		if id != memberID && middleware.Role(r.Context()) != models.RoleTreasurer {
			SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
			return
		}
		contributorID = id
	}

	account, err := ps.accounts.GetByMember(tenantID, contributorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			SendErrorResponse(w, "Member account not found", http.StatusNotFound, nil)
			return
		}
		SendErrorResponse(w, "Failed to load account", http.StatusInternalServerError, nil)
		return
	}

	contribution := &models.MemberContribution{
		ID:                uuid.New(),
		TenantID:          tenantID,
		PoolID:            poolID,
		MemberID:          contributorID,
		AmountContributed: amount,
		CreatedAt:         time.Now(),
	}

	tx, err := ps.db.Begin()
	if err != nil {
		SendErrorResponse(w, "Failed to record contribution", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	referenceID := "CT-" + contribution.ID.String()
	if err := ps.ledger.DebitTx(tx, tenantID, account.ID, referenceID, amount); err != nil {
		switch {
		case errors.Is(err, ErrInsufficientBalance):
			SendErrorResponse(w, "Insufficient balance", http.StatusUnprocessableEntity, nil)
		case errors.Is(err, repository.ErrVersionConflict):
			SendErrorResponse(w, "Account was modified concurrently, retry", http.StatusConflict, nil)
		default:
			log.Printf("[POOL] Debit failed for contribution to %s: %v", poolID, err)
			SendErrorResponse(w, "Failed to record contribution", http.StatusInternalServerError, nil)
		}
		return
	}

	if err := ps.pools.AddContribution(tx, contribution); err != nil {
		if errors.Is(err, repository.ErrPoolFrozen) {
			SendErrorResponse(w, "Pool is finalized", http.StatusConflict, nil)
			return
		}
		log.Printf("[POOL] Failed to record contribution to %s: %v", poolID, err)
		SendErrorResponse(w, "Failed to record contribution", http.StatusInternalServerError, nil)
		return
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[POOL] Failed to commit contribution to %s: %v", poolID, err)
		SendErrorResponse(w, "Failed to record contribution", http.StatusInternalServerError, nil)
		return
	}

	ps.audit.LogOperation(tenantID, contribution.ID.String(), "CONTRIBUTION_ADDED", amount.String())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(contribution)
}

// RecordProfit adds cycle earnings to the distributable profit
// @Summary Record distributable profit
// @Description Grow the pool's distributable profit by interest or fee income collected during the cycle
// @Tags pools
// @Accept json
// @Produce json
// @Param poolId path string true "Pool ID"
// @Param profit body recordProfitBody true "Profit amount"
// @Success 200 {object} object{poolId=string,amount=string}
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /pools/{poolId}/profit [post]
func (ps *PoolService) RecordProfit(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())

	poolID, err := uuid.Parse(chi.URLParam(r, "poolId"))
	if err != nil {
		SendErrorResponse(w, "Invalid pool ID", http.StatusBadRequest, nil)
		return
	}

	var req recordProfitBody

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	amount, err := ParsePositiveAmount(req.Amount)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	tx, err := ps.db.Begin()
	if err != nil {
		SendErrorResponse(w, "Failed to record profit", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	if err := ps.pools.AddProfit(tx, tenantID, poolID, amount); err != nil {
		if errors.Is(err, repository.ErrPoolFrozen) {
			SendErrorResponse(w, "Pool is finalized", http.StatusConflict, nil)
			return
		}
		log.Printf("[POOL] Failed to record profit on %s: %v", poolID, err)
		SendErrorResponse(w, "Failed to record profit", http.StatusInternalServerError, nil)
		return
	}

	if err := tx.Commit(); err != nil {
		SendErrorResponse(w, "Failed to record profit", http.StatusInternalServerError, nil)
		return
	}

	ps.audit.LogOperation(tenantID, poolID.String(), "PROFIT_RECORDED", amount.String())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"poolId": poolID.String(),
		"amount": amount.String(),
	})
}

// PreviewShareOut computes the distribution without freezing the pool
// @Summary Preview the share-out
// @Description Compute each member's proportional share of the distributable profit. Read-only.
// @Tags pools
// @Produce json
// @Param poolId path string true "Pool ID"
// @Success 200 {object} object{shares=[]ledger.Share,totalProfit=string}
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /pools/{poolId}/share-out/preview [get]
func (ps *PoolService) PreviewShareOut(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())

	poolID, err := uuid.Parse(chi.URLParam(r, "poolId"))
	if err != nil {
		SendErrorResponse(w, "Invalid pool ID", http.StatusBadRequest, nil)
		return
	}

	pool, contributions, err := ps.loadPool(tenantID, poolID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			SendErrorResponse(w, "Pool not found", http.StatusNotFound, nil)
			return
		}
		SendErrorResponse(w, "Failed to fetch pool", http.StatusInternalServerError, nil)
		return
	}

	shares, err := ledger.AllocateProfitShares(pool, contributions)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusUnprocessableEntity, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"shares":      shares,
		"totalProfit": pool.TotalDistributableProfit.String(),
	})
}

// ExecuteShareOut freezes the pool and credits every member's share
// @Summary Execute the share-out
// @Description Finalize the pool and credit each member's proportional share of the profit. Exactly one execution wins a concurrent race; the distributed cents always sum to the pool profit.
// @Tags pools
// @Produce json
// @Param poolId path string true "Pool ID"
// @Success 200 {object} object{shares=[]ledger.Share,totalProfit=string}
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /pools/{poolId}/share-out [post]
func (ps *PoolService) ExecuteShareOut(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())

	poolID, err := uuid.Parse(chi.URLParam(r, "poolId"))
	if err != nil {
		SendErrorResponse(w, "Invalid pool ID", http.StatusBadRequest, nil)
		return
	}

	tx, err := ps.db.Begin()
	if err != nil {
		SendErrorResponse(w, "Failed to execute share-out", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	// Freezing first makes the distribution single-shot: a concurrent
	// execution loses on this conditional update and credits nothing.
	// It also fences the pool row, so contributions and profit committed
	// up to this point are visible to the snapshot read below.
	if err := ps.pools.Finalize(tx, tenantID, poolID); err != nil {
		if errors.Is(err, repository.ErrAlreadyProcessed) {
			if _, lookupErr := ps.pools.GetByID(tenantID, poolID); errors.Is(lookupErr, repository.ErrNotFound) {
				SendErrorResponse(w, "Pool not found", http.StatusNotFound, nil)
				return
			}
			SendErrorResponse(w, "Pool already finalized", http.StatusConflict, nil)
			return
		}
		log.Printf("[POOL] Failed to finalize %s: %v", poolID, err)
		SendErrorResponse(w, "Failed to execute share-out", http.StatusInternalServerError, nil)
		return
	}

	// Allocation must work off the frozen totals, never a pre-freeze read.
	pool, err := ps.pools.GetByIDTx(tx, tenantID, poolID)
	if err != nil {
		SendErrorResponse(w, "Failed to execute share-out", http.StatusInternalServerError, nil)
		return
	}
	contributions, err := ps.pools.ListContributionsTx(tx, tenantID, poolID)
	if err != nil {
		SendErrorResponse(w, "Failed to execute share-out", http.StatusInternalServerError, nil)
		return
	}

	shares, err := ledger.AllocateProfitShares(pool, contributions)
	if err != nil {
		// Rolls back the freeze, so an empty pool stays open.
		SendErrorResponse(w, err.Error(), http.StatusUnprocessableEntity, nil)
		return
	}

	referenceID := "SO-" + poolID.String()
	for _, share := range shares {
		if share.Amount.IsZero() {
			continue
		}
		account, err := ps.accounts.GetByMember(tenantID, share.MemberID)
		if err != nil {
			log.Printf("[POOL] No account for member %s during share-out of %s: %v", share.MemberID, poolID, err)
			SendErrorResponse(w, "Failed to execute share-out", http.StatusInternalServerError, nil)
			return
		}
		if err := ps.ledger.CreditTx(tx, tenantID, account.ID, referenceID, share.Amount); err != nil {
			log.Printf("[POOL] Credit failed for member %s during share-out of %s: %v", share.MemberID, poolID, err)
			SendErrorResponse(w, "Failed to execute share-out", http.StatusInternalServerError, nil)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[POOL] Failed to commit share-out of %s: %v", poolID, err)
		SendErrorResponse(w, "Failed to execute share-out", http.StatusInternalServerError, nil)
		return
	}

	ps.audit.LogOperation(tenantID, poolID.String(), "SHARE_OUT_EXECUTED", pool.TotalDistributableProfit.String())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"shares":      shares,
		"totalProfit": pool.TotalDistributableProfit.String(),
	})
}

func (ps *PoolService) loadPool(tenantID, poolID uuid.UUID) (*models.ContributionPool, []models.MemberContribution, error) {
	pool, err := ps.pools.GetByID(tenantID, poolID)
	if err != nil {
		return nil, nil, err
	}
	contributions, err := ps.pools.ListContributions(tenantID, poolID)
	if err != nil {
		return nil, nil, err
	}
	return pool, contributions, nil
}
