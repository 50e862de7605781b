package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/saccoledger/backend/internal/audit"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/viper"
)

var (
	ErrReceiptExpired  = errors.New("invalid or expired receipt")
	ErrReceiptTampered = errors.New("receipt signature mismatch")
	ErrForeignReceipt  = errors.New("receipt belongs to another society")
)

const receiptTTL = 24 * time.Hour

// ReceiptPayload is the signed content of a transaction receipt.
type ReceiptPayload struct {
	TenantID    string `json:"tenantId"`
	ReferenceID string `json:"referenceId"`
	AccountID   string `json:"accountId"`
	Amount      string `json:"amount"`
	EntryType   string `json:"entryType"`
	IssuedAt    int64  `json:"issuedAt"`
	Nonce       string `json:"nonce"`
}

// ReceiptService issues and verifies signed QR receipts for ledger entries.
// Tokens are HMAC-signed and cached in Redis for their validity window.
type ReceiptService struct {
	redis  *redis.Client
	ledger *LedgerService
	audit  *audit.Logger
}

func NewReceiptService(db *sql.DB, redisClient *redis.Client) *ReceiptService {
	return &ReceiptService{
		redis:  redisClient,
		ledger: NewLedgerService(db),
		audit:  audit.NewLogger(),
	}
}

// GenerateReceipt builds a signed token and QR image for a ledger entry.
func (s *ReceiptService) GenerateReceipt(ctx context.Context, tenantID uuid.UUID, referenceID string) (string, string, error) {
	entry, err := s.ledger.FetchEntry(tenantID, referenceID)
	if err != nil {
		return "", "", err
	}

	payload := ReceiptPayload{
		TenantID:    tenantID.String(),
		ReferenceID: entry.ReferenceID,
		AccountID:   entry.AccountID.String(),
		Amount:      entry.Amount.String(),
		EntryType:   entry.EntryType,
		IssuedAt:    time.Now().Unix(),
		Nonce:       generateNonce(),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", "", err
	}

	encoded := base64.URLEncoding.EncodeToString(jsonData)
	token := encoded + "." + signReceipt(jsonData)

	key := fmt.Sprintf("receipt:%s", token)
	if err := s.redis.Set(ctx, key, jsonData, receiptTTL).Err(); err != nil {
		return "", "", err
	}

	qr, err := qrcode.New(token, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	return token, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// VerifyReceipt checks the token's signature, freshness and tenant. A token
// issued under another tenant is a security fault: logged and denied, never
// returned.
func (s *ReceiptService) VerifyReceipt(ctx context.Context, callerTenantID, callerMemberID uuid.UUID, token string) (*ReceiptPayload, error) {
	key := fmt.Sprintf("receipt:%s", token)
	if _, err := s.redis.Get(ctx, key).Bytes(); err == redis.Nil {
		return nil, ErrReceiptExpired
	} else if err != nil {
		return nil, err
	}

	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return nil, ErrReceiptTampered
	}

	jsonData, err := base64.URLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrReceiptTampered
	}

	if !hmac.Equal([]byte(signReceipt(jsonData)), []byte(parts[1])) {
		return nil, ErrReceiptTampered
	}

	var payload ReceiptPayload
	if err := json.Unmarshal(jsonData, &payload); err != nil {
		return nil, ErrReceiptTampered
	}

	receiptTenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return nil, ErrReceiptTampered
	}
	if receiptTenantID != callerTenantID {
		s.audit.LogSecurityFault(callerTenantID, receiptTenantID, callerMemberID.String(), "receipt:"+payload.ReferenceID)
		return nil, ErrForeignReceipt
	}

	return &payload, nil
}

func signReceipt(data []byte) string {
	h := hmac.New(sha256.New, []byte(viper.GetString("receipt.secret_key")))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
