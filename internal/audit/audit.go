package audit

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	EventType   string    `json:"event_type"`
	TenantID    string    `json:"tenant_id,omitempty"`
	ReferenceID string    `json:"reference_id,omitempty"`
	AccountID   string    `json:"account_id,omitempty"`
	Amount      string    `json:"amount,omitempty"`
	Status      string    `json:"status"`
	Details     any       `json:"details,omitempty"`
}

type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (a *Logger) LogTransfer(tenantID uuid.UUID, referenceID, fromAccount, toAccount string, amount decimal.Decimal, status string) {
	event := Event{
		Timestamp:   time.Now(),
		EventType:   "TRANSFER",
		TenantID:    tenantID.String(),
		ReferenceID: referenceID,
		Amount:      amount.String(),
		Status:      status,
		Details: map[string]string{
			"from_account": fromAccount,
			"to_account":   toAccount,
		},
	}
	a.log(event)
}

func (a *Logger) LogOperation(tenantID uuid.UUID, referenceID, operation, details string) {
	event := Event{
		Timestamp:   time.Now(),
		EventType:   operation,
		TenantID:    tenantID.String(),
		ReferenceID: referenceID,
		Status:      "SUCCESS",
		Details:     map[string]string{"details": details},
	}
	a.log(event)
}

// LogSecurityFault records a cross-tenant access attempt. These are denied
// unconditionally upstream; the event exists so they are never silent.
func (a *Logger) LogSecurityFault(callerTenant, requestedTenant uuid.UUID, memberID, resource string) {
	event := Event{
		Timestamp: time.Now(),
		EventType: "SECURITY_FAULT",
		TenantID:  callerTenant.String(),
		Status:    "DENIED",
		Details: map[string]string{
			"requested_tenant": requestedTenant.String(),
			"member_id":        memberID,
			"resource":         resource,
		},
	}
	a.log(event)
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
