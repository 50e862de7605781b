package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/saccoledger/backend/internal/middleware"
	"github.com/saccoledger/backend/internal/repository"
	"github.com/saccoledger/backend/internal/services"
)

type ReceiptHandler struct {
	service   *services.ReceiptService
	validator *services.ValidationHelper
}

func NewReceiptHandler(service *services.ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// GenerateReceipt issues a signed QR receipt for a ledger entry
// @Summary Generate a transaction receipt
// @Description Issue a signed, time-limited QR receipt for a posted ledger entry
// @Tags receipts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{referenceId=string} true "Receipt request"
// @Success 200 {object} object{token=string,qrImage=string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /receipts/generate [post]
func (h *ReceiptHandler) GenerateReceipt(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())

	var req struct {
		ReferenceID string `json:"referenceId" validate:"required,min=3,max=128"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	token, qrImage, err := h.service.GenerateReceipt(r.Context(), tenantID, req.ReferenceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			services.SendErrorResponse(w, "Ledger entry not found", http.StatusNotFound, nil)
			return
		}
		services.SendErrorResponse(w, "Failed to generate receipt", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"token":   token,
		"qrImage": qrImage,
	})
}

// VerifyReceipt validates a scanned receipt token
// @Summary Verify a transaction receipt
// @Description Check a receipt token's signature, freshness and owning society
// @Tags receipts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{token=string} true "Receipt token"
// @Success 200 {object} services.ReceiptPayload
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /receipts/verify [post]
func (h *ReceiptHandler) VerifyReceipt(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())
	memberID := middleware.MemberID(r.Context())

	var req struct {
		Token string `json:"token" validate:"required"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	payload, err := h.service.VerifyReceipt(r.Context(), tenantID, memberID, req.Token)
	if err != nil {
		if errors.Is(err, services.ErrForeignReceipt) {
			services.SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
			return
		}
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"receipt": payload,
	})
}
