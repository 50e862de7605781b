package services

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/saccoledger/backend/internal/models"
	"github.com/saccoledger/backend/internal/vault"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func setAuthTestConfig() {
	viper.Set("argon2.salt_length", 16)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 24)
}

func testVault(t *testing.T) *vault.Vault {
	t.Helper()
	v, err := vault.New("test-master-key", []byte("test-salt-8b"))
	assert.NoError(t, err)
	return v
}

func TestAuthService_Register(t *testing.T) {
	setAuthTestConfig()

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	redisClient, _ := redismock.NewClientMock()
	service := NewAuthService(db, redisClient, testVault(t))

	tenantID := uuid.New()

	t.Run("successful registration opens a savings account", func(t *testing.T) {
		req := RegisterRequest{
			TenantCode:  "UMOJA",
			Email:       "amina@example.com",
			Password:    "password123",
			FirstName:   "Amina",
			LastName:    "Odhiambo",
			NationalID:  "12345678",
			PhoneNumber: "+254712345678",
		}

		mock.ExpectQuery("SELECT id FROM tenants").
			WithArgs("UMOJA").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(tenantID.String()))

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO members").
			WithArgs(sqlmock.AnyArg(), tenantID, req.Email, req.PhoneNumber,
				req.FirstName, req.LastName, sqlmock.AnyArg(), sqlmock.AnyArg(),
				models.RoleMember, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO accounts").
			WithArgs(sqlmock.AnyArg(), tenantID, sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), false,
				models.AccountStatusActive, 1, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, req.Email, response.Member.Email)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown society code", func(t *testing.T) {
		req := RegisterRequest{
			TenantCode:  "NOSUCH",
			Email:       "amina@example.com",
			Password:    "password123",
			FirstName:   "Amina",
			LastName:    "Odhiambo",
			NationalID:  "12345678",
			PhoneNumber: "+254712345678",
		}

		mock.ExpectQuery("SELECT id FROM tenants").
			WithArgs("NOSUCH").
			WillReturnError(sql.ErrNoRows)

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid request body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer([]byte("invalid")))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthService_Login(t *testing.T) {
	setAuthTestConfig()

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	redisClient, _ := redismock.NewClientMock()
	service := NewAuthService(db, redisClient, testVault(t))

	tenantID := uuid.New()
	memberID := uuid.New()

	t.Run("successful login", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT id FROM tenants").
			WithArgs("UMOJA").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(tenantID.String()))
		mock.ExpectQuery("SELECT id, tenant_id, email, phone_number, first_name, last_name, password_hash, role, created_at").
			WithArgs(tenantID, "+254712345678").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "tenant_id", "email", "phone_number", "first_name", "last_name", "password_hash", "role", "created_at",
			}).AddRow(memberID.String(), tenantID.String(), "amina@example.com", "+254712345678",
				"Amina", "Odhiambo", hashedPassword, models.RoleMember, time.Now()))

		req := LoginRequest{
			TenantCode:  "UMOJA",
			PhoneNumber: "+254712345678",
			Password:    "password123",
		}

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
	})

	t.Run("wrong password", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT id FROM tenants").
			WithArgs("UMOJA").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(tenantID.String()))
		mock.ExpectQuery("SELECT id, tenant_id, email, phone_number, first_name, last_name, password_hash, role, created_at").
			WithArgs(tenantID, "+254712345678").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "tenant_id", "email", "phone_number", "first_name", "last_name", "password_hash", "role", "created_at",
			}).AddRow(memberID.String(), tenantID.String(), "amina@example.com", "+254712345678",
				"Amina", "Odhiambo", hashedPassword, models.RoleMember, time.Now()))

		req := LoginRequest{
			TenantCode:  "UMOJA",
			PhoneNumber: "+254712345678",
			Password:    "wrongpassword",
		}

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown society code looks like bad credentials", func(t *testing.T) {
		mock.ExpectQuery("SELECT id FROM tenants").
			WithArgs("NOSUCH").
			WillReturnError(sql.ErrNoRows)

		req := LoginRequest{
			TenantCode:  "NOSUCH",
			PhoneNumber: "+254712345678",
			Password:    "password123",
		}

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestPasswordHashing(t *testing.T) {
	setAuthTestConfig()

	password := "testpassword"

	hashed, err := hashPassword(password)
	assert.NoError(t, err)
	assert.NotEmpty(t, hashed)

	assert.True(t, verifyPassword(password, hashed))
	assert.False(t, verifyPassword("wrongpassword", hashed))
}

func TestGenerateJWT(t *testing.T) {
	setAuthTestConfig()

	member := &models.Member{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		Role:     models.RoleTreasurer,
	}

	tokenString, err := generateJWT(member)
	assert.NoError(t, err)
	assert.NotEmpty(t, tokenString)

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	assert.NoError(t, err)

	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, member.ID.String(), claims["member_id"])
	assert.Equal(t, member.TenantID.String(), claims["tenant_id"])
	assert.Equal(t, models.RoleTreasurer, claims["role"])
}
