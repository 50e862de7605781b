package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func signedReceiptToken(t *testing.T, payload ReceiptPayload) (string, string) {
	t.Helper()
	jsonData, err := json.Marshal(payload)
	assert.NoError(t, err)
	token := base64.URLEncoding.EncodeToString(jsonData) + "." + signReceipt(jsonData)
	return token, string(jsonData)
}

func TestReceiptService_GenerateReceipt(t *testing.T) {
	viper.Set("receipt.secret_key", "test-receipt-secret")

	db, sqlMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()
	service := NewReceiptService(db, redisClient)

	tenantID := uuid.New()
	accountID := uuid.New()

	sqlMock.ExpectQuery(`SELECT (.+) FROM ledger_entries WHERE tenant_id = \$1 AND reference_id = \$2`).
		WithArgs(tenantID, "WD-test-ref").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "reference_id", "account_id", "amount", "entry_type", "balance", "created_at",
		}).AddRow(1, tenantID.String(), "WD-test-ref", accountID.String(), "-150", "DEBIT", "350", time.Now()))

	redisMock.Regexp().ExpectSet(`receipt:.+`, `.+`, receiptTTL).SetVal("OK")

	token, qrImage, err := service.GenerateReceipt(context.Background(), tenantID, "WD-test-ref")
	assert.NoError(t, err)
	assert.NotEmpty(t, qrImage)
	assert.NoError(t, redisMock.ExpectationsWereMet())

	// token decodes back to the entry it was issued for
	parts := strings.SplitN(token, ".", 2)
	assert.Len(t, parts, 2)
	jsonData, err := base64.URLEncoding.DecodeString(parts[0])
	assert.NoError(t, err)
	assert.Equal(t, signReceipt(jsonData), parts[1])

	var payload ReceiptPayload
	assert.NoError(t, json.Unmarshal(jsonData, &payload))
	assert.Equal(t, tenantID.String(), payload.TenantID)
	assert.Equal(t, "WD-test-ref", payload.ReferenceID)
	assert.Equal(t, "-150", payload.Amount)
}

func TestReceiptService_VerifyReceipt(t *testing.T) {
	viper.Set("receipt.secret_key", "test-receipt-secret")

	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	tenantID := uuid.New()
	memberID := uuid.New()
	payload := ReceiptPayload{
		TenantID:    tenantID.String(),
		ReferenceID: "WD-test-ref",
		AccountID:   uuid.New().String(),
		Amount:      "-150",
		EntryType:   "DEBIT",
		IssuedAt:    time.Now().Unix(),
		Nonce:       "abc123",
	}

	t.Run("valid receipt verifies", func(t *testing.T) {
		redisClient, redisMock := redismock.NewClientMock()
		service := NewReceiptService(db, redisClient)

		token, jsonData := signedReceiptToken(t, payload)
		redisMock.ExpectGet("receipt:" + token).SetVal(jsonData)

		got, err := service.VerifyReceipt(context.Background(), tenantID, memberID, token)
		assert.NoError(t, err)
		assert.Equal(t, payload.ReferenceID, got.ReferenceID)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("expired receipt is rejected", func(t *testing.T) {
		redisClient, redisMock := redismock.NewClientMock()
		service := NewReceiptService(db, redisClient)

		token, _ := signedReceiptToken(t, payload)
		redisMock.ExpectGet("receipt:" + token).RedisNil()

		_, err := service.VerifyReceipt(context.Background(), tenantID, memberID, token)
		assert.ErrorIs(t, err, ErrReceiptExpired)
	})

	t.Run("tampered signature is rejected", func(t *testing.T) {
		redisClient, redisMock := redismock.NewClientMock()
		service := NewReceiptService(db, redisClient)

		token, jsonData := signedReceiptToken(t, payload)
		tampered := strings.SplitN(token, ".", 2)[0] + "." + strings.Repeat("0", 64)
		redisMock.ExpectGet("receipt:" + tampered).SetVal(jsonData)

		_, err := service.VerifyReceipt(context.Background(), tenantID, memberID, tampered)
		assert.ErrorIs(t, err, ErrReceiptTampered)
	})

	t.Run("receipt from another society is denied", func(t *testing.T) {
		redisClient, redisMock := redismock.NewClientMock()
		service := NewReceiptService(db, redisClient)

		token, jsonData := signedReceiptToken(t, payload)
		redisMock.ExpectGet("receipt:" + token).SetVal(jsonData)

		otherTenant := uuid.New()
		_, err := service.VerifyReceipt(context.Background(), otherTenant, memberID, token)
		assert.ErrorIs(t, err, ErrForeignReceipt)
	})
}
