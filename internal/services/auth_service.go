package services

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/saccoledger/backend/internal/middleware"
	"github.com/saccoledger/backend/internal/models"
	"github.com/saccoledger/backend/internal/vault"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"
)

type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	vault     *vault.Vault
	validator *ValidationHelper
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	TenantCode  string `json:"tenantCode" validate:"required,alphanum,min=3,max=16" example:"UMOJA"`  // Society short code
	PhoneNumber string `json:"phoneNumber" validate:"required,e164" example:"+254712345678"`          // Member phone number
	Password    string `json:"password" validate:"required,min=8" example:"password123"`              // Member password
}

// RegisterRequest represents the registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	TenantCode  string `json:"tenantCode" validate:"required,alphanum,min=3,max=16" example:"UMOJA"` // Society short code
	Email       string `json:"email" validate:"required,email" example:"member@example.com"`         // Member email address
	Password    string `json:"password" validate:"required,min=8" example:"password123"`             // Member password
	FirstName   string `json:"firstName" validate:"required,min=2" example:"Amina"`                  // Member first name
	LastName    string `json:"lastName" validate:"required,min=2" example:"Odhiambo"`                // Member last name
	NationalID  string `json:"nationalId" validate:"required,min=6,max=20" example:"12345678"`       // Government ID number
	PhoneNumber string `json:"phoneNumber" validate:"required,e164" example:"+254712345678"`         // Phone number
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token  string        `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."` // JWT token
	Member models.Member `json:"member"`                                                  // Member information
}

func NewAuthService(db *sql.DB, redisClient *redis.Client, fieldVault *vault.Vault) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		vault:     fieldVault,
		validator: NewValidationHelper(),
	}
}

// Register handles member registration
// @Summary Register a new member
// @Description Register a member under a society and open their savings account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 200 {object} AuthResponse "Registration successful"
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req RegisterRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Registration failed - invalid request: %v", err)
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[AUTH] Multiple JSON objects detected")
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		log.Printf("[AUTH] Registration validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	tenantID, err := s.resolveTenant(req.TenantCode)
	if err != nil {
		log.Printf("[AUTH] Unknown society code: %s", req.TenantCode)
		SendErrorResponse(w, "Unknown society code", http.StatusNotFound, nil)
		return
	}

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	nationalIDEnc, err := s.vault.Encrypt(req.NationalID)
	if err != nil {
		log.Printf("[AUTH] Field encryption failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	member := models.Member{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Email:       strings.ToLower(req.Email),
		PhoneNumber: req.PhoneNumber,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Role:        models.RoleMember,
		CreatedAt:   time.Now(),
	}

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[AUTH] Transaction start failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to create member", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO members (id, tenant_id, email, phone_number, first_name, last_name, password_hash, national_id_enc, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		member.ID, member.TenantID, member.Email, member.PhoneNumber,
		member.FirstName, member.LastName, hashedPassword, nationalIDEnc,
		member.Role, member.CreatedAt)
	if err != nil {
		log.Printf("[AUTH] Member creation failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Phone number already registered", http.StatusConflict, nil)
		return
	}

	// Every member gets a savings account at registration
	accountNumber := generateAccountNumber()
	_, err = tx.Exec(`
		INSERT INTO accounts (id, tenant_id, member_id, account_number, current_balance, blocked_balance, minimum_balance, allow_negative_balance, status, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.New(), tenantID, member.ID, accountNumber,
		decimal.Zero, decimal.Zero, decimal.Zero, false,
		models.AccountStatusActive, 1, time.Now())
	if err != nil {
		log.Printf("[AUTH] Account creation failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}

	if err = tx.Commit(); err != nil {
		log.Printf("[AUTH] Transaction commit failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to create member", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Member created - ID: %s, society: %s", member.ID, req.TenantCode)

	token, err := generateJWT(&member)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for member %s: %v", member.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, Member: member})
}

// Login handles member authentication
// @Summary Login member
// @Description Authenticate a member with society code, phone number and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoginRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Login failed - invalid request: %v", err)
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[AUTH] Multiple JSON objects detected")
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		log.Printf("[AUTH] Login validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	tenantID, err := s.resolveTenant(req.TenantCode)
	if err != nil {
		// same response as a bad password so society codes cannot be probed
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	var member models.Member
	err = s.db.QueryRow(`
		SELECT id, tenant_id, email, phone_number, first_name, last_name, password_hash, role, created_at
		FROM members
		WHERE tenant_id = $1 AND phone_number = $2`,
		tenantID, req.PhoneNumber).
		Scan(&member.ID, &member.TenantID, &member.Email, &member.PhoneNumber,
			&member.FirstName, &member.LastName, &member.PasswordHash,
			&member.Role, &member.CreatedAt)
	if err != nil {
		log.Printf("[AUTH] Member not found for phone number: %s", req.PhoneNumber)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if !verifyPassword(req.Password, member.PasswordHash) {
		log.Printf("[AUTH] Invalid password for member: %s", member.ID)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	token, err := generateJWT(&member)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for member %s: %v", member.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for member %s", member.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, Member: member})
}

// Logout handles member logout
// @Summary Logout member
// @Description Logout member and deny the token for its remaining lifetime
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token != "" && len(token) > 7 {
		token = token[7:] // Remove "Bearer " prefix

		if s.redis != nil {
			ctx := context.Background()
			key := fmt.Sprintf("denylist:%s", token)
			expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
			if err := s.redis.Set(ctx, key, "1", expiry).Err(); err != nil {
				log.Printf("[AUTH] Failed to deny token: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

// GetProfile retrieves the authenticated member's profile
// @Summary Get member profile
// @Description Get the authenticated member's details with the decrypted national ID
// @Tags auth
// @Produce json
// @Success 200 {object} object{member=models.Member,nationalId=string}
// @Failure 404 {object} ErrorResponse
// @Router /auth/profile [get]
func (s *AuthService) GetProfile(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())
	memberID := middleware.MemberID(r.Context())

	var member models.Member
	var nationalIDEnc string
	err := s.db.QueryRow(`
		SELECT id, tenant_id, email, phone_number, first_name, last_name, national_id_enc, role, created_at
		FROM members
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, memberID).
		Scan(&member.ID, &member.TenantID, &member.Email, &member.PhoneNumber,
			&member.FirstName, &member.LastName, &nationalIDEnc,
			&member.Role, &member.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Member not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[AUTH] Failed to fetch member %s: %v", memberID, err)
			SendErrorResponse(w, "Failed to fetch member details", http.StatusInternalServerError, nil)
		}
		return
	}

	nationalID, err := s.vault.Decrypt(nationalIDEnc)
	if err != nil {
		log.Printf("[AUTH] Failed to decrypt national ID for member %s: %v", memberID, err)
		SendErrorResponse(w, "Failed to fetch member details", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"member":     member,
		"nationalId": nationalID,
	})
}

func (s *AuthService) resolveTenant(code string) (uuid.UUID, error) {
	var tenantID uuid.UUID
	err := s.db.QueryRow(`SELECT id FROM tenants WHERE code = $1`, strings.ToUpper(code)).Scan(&tenantID)
	return tenantID, err
}

func generateJWT(member *models.Member) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"member_id": member.ID.String(),
		"tenant_id": member.TenantID.String(),
		"role":      member.Role,
		"exp":       time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return string(hash) == string(computedHash)
}

func generateAccountNumber() string {
	const digits = "0123456789"
	b := make([]byte, 10)
	for i := range b {
		b[i] = digits[rand.Intn(len(digits))]
	}
	return "SAV-" + string(b)
}
