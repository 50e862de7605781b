package services

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
	"github.com/saccoledger/backend/internal/middleware"
	"github.com/saccoledger/backend/internal/models"
)

// SettlementService exports approved external withdrawals as ISO 20022
// payment messages. Monetary values stay decimal until the XML boundary.
type SettlementService struct {
	redis     *redis.Client
	validator *ValidationHelper
}

func NewSettlementService(redisClient *redis.Client) *SettlementService {
	return &SettlementService{
		redis:     redisClient,
		validator: NewValidationHelper(),
	}
}

// DrainSettlementQueue exports queued withdrawals as pacs.008 messages
// @Summary Export queued settlements
// @Description Pop approved external withdrawals off the settlement queue and send each as a pacs.008 credit transfer
// @Tags settlement
// @Produce json
// @Success 200 {object} object{exported=int,failed=int}
// @Failure 500 {object} ErrorResponse
// @Router /settlement/export [post]
func (ss *SettlementService) DrainSettlementQueue(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())

	// Requeued foreign entries must not be popped again in this drain, so the
	// pass is bounded by the queue length at entry.
	queueLen, err := ss.redis.LLen(r.Context(), "settlement_queue").Result()
	if err != nil {
		log.Printf("[SETTLEMENT] Failed to read settlement queue: %v", err)
		SendErrorResponse(w, "Failed to read settlement queue", http.StatusInternalServerError, nil)
		return
	}

	exported, failed := 0, 0
	for i := int64(0); i < queueLen; i++ {
		data, err := ss.redis.LPop(r.Context(), "settlement_queue").Bytes()
		if err == redis.Nil {
			break
		}
		if err != nil {
			log.Printf("[SETTLEMENT] Failed to read settlement queue: %v", err)
			SendErrorResponse(w, "Failed to read settlement queue", http.StatusInternalServerError, nil)
			return
		}

		var request models.WithdrawalRequest
		if err := json.Unmarshal(data, &request); err != nil {
			log.Printf("[SETTLEMENT] Dropping malformed queue entry: %v", err)
			failed++
			continue
		}

		// Queue entries for other tenants go back on the queue untouched
		if request.TenantID != tenantID {
			if err := ss.redis.RPush(r.Context(), "settlement_queue", data).Err(); err != nil {
				log.Printf("[SETTLEMENT] Failed to requeue foreign entry: %v", err)
			}
			continue
		}

		doc, err := ss.CreatePacs008(&request)
		if err != nil {
			log.Printf("[SETTLEMENT] pacs.008 build failed for %s: %v", request.ID, err)
			failed++
			continue
		}

		if err := ss.SendToSettlement(r.Context(), doc); err != nil {
			log.Printf("[SETTLEMENT] Send failed for %s: %v", request.ID, err)
			failed++
			continue
		}

		exported++
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"exported": exported,
		"failed":   failed,
	})
}

// SettlementStatus reports a payout status as pacs.002
// @Summary Build a settlement status report
// @Description Produce a pacs.002 payment status report for a withdrawal payout
// @Tags settlement
// @Accept json
// @Produce json
// @Param request body object{requestId=string,status=string} true "Status report request"
// @Success 200 {object} object{messageType=string,xml=string}
// @Failure 400 {object} ErrorResponse
// @Router /settlement/status [post]
func (ss *SettlementService) SettlementStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequestID string `json:"requestId" validate:"required,uuid4"`
		Status    string `json:"status" validate:"required,oneof=ACCP ACSC RJCT PDNG"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := ss.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	doc := ss.CreatePacs002(req.RequestID, req.Status)
	xmlData, err := ss.ConvertToXML(doc)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"messageType": "pacs.002.001.08",
		"xml":         xmlData,
	})
}

// CreatePacs008 builds a pacs.008 FIToFICustomerCreditTransfer for a payout.
// The decimal amount is converted to a float only here, at the wire boundary.
func (ss *SettlementService) CreatePacs008(request *models.WithdrawalRequest) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	if request.DestBankCode == "" || request.DestAccount == "" {
		return nil, fmt.Errorf("withdrawal %s has no external destination", request.ID)
	}

	msgId := uuid.New().String()
	creDtTm := time.Now()
	settlementDate := time.Now()
	amount := request.Amount.InexactFloat64()
	referenceID := "WD-" + request.ID.String()

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode("KES"),
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(request.ID.String())}[0],
					EndToEndId: common.Max35Text(referenceID),
					TxId:       &[]common.Max35Text{common.Max35Text(request.ID.String())}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode("KES"),
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier("SACCOLGR")}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(request.AccountID.String())}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text(request.DestBankCode),
						},
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(request.DestAccount)}[0],
				},
			},
		},
	}

	return doc, nil
}

// CreatePacs002 builds a pacs.002 payment status report for a payout.
func (ss *SettlementService) CreatePacs002(requestID, status string) *pacs_v08.FIToFIPaymentStatusReportV08 {
	msgId := uuid.New().String()
	creDtTm := time.Now()

	return &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId:    &[]common.Max35Text{common.Max35Text(requestID)}[0],
				OrgnlEndToEndId: &[]common.Max35Text{common.Max35Text("WD-" + requestID)}[0],
				OrgnlTxId:       &[]common.Max35Text{common.Max35Text(requestID)}[0],
				TxSts:           &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code(status)}[0],
			},
		},
	}
}

// SendToSettlement hands the message to the clearing partner. The outbound
// copy also lands on a Redis list so failed sends can be replayed.
func (ss *SettlementService) SendToSettlement(ctx context.Context, doc interface{}) error {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal XML: %w", err)
	}

	if err := ss.redis.RPush(ctx, "settlement_outbound", xmlData).Err(); err != nil {
		return err
	}

	log.Printf("[SETTLEMENT] Queued outbound message (%d bytes)", len(xmlData))
	return nil
}

// ConvertToXML renders an ISO 20022 document as an XML string.
func (ss *SettlementService) ConvertToXML(doc interface{}) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}
