package models

import (
	"time"

	"github.com/google/uuid"
)

// Member is a cooperative member within a tenant. NationalIDEnc holds the
// AES-GCM encrypted national ID; it is decrypted only at the serialization
// boundary via the vault package.
type Member struct {
	ID            uuid.UUID `json:"id" db:"id"`
	TenantID      uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Email         string    `json:"email" db:"email"`
	PhoneNumber   string    `json:"phone_number" db:"phone_number"`
	FirstName     string    `json:"first_name" db:"first_name"`
	LastName      string    `json:"last_name" db:"last_name"`
	PasswordHash  string    `json:"-" db:"password_hash"`
	NationalIDEnc string    `json:"-" db:"national_id_enc"`
	Role          string    `json:"role" db:"role"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Member roles
const (
	RoleMember    = "MEMBER"
	RoleTreasurer = "TREASURER"
)
