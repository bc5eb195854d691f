package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventAccountCreated       EventType = "ACCOUNT_CREATED"
	EventAccountStatusChanged EventType = "ACCOUNT_STATUS_CHANGED"
	EventBalanceUpdated       EventType = "BALANCE_UPDATED"
	EventTransactionInitiated EventType = "TRANSACTION_INITIATED"
	EventTransactionCompleted EventType = "TRANSACTION_COMPLETED"
	EventTransactionFailed    EventType = "TRANSACTION_FAILED"
	EventFraudAlert           EventType = "FRAUD_ALERT"
	EventHoldPlaced           EventType = "HOLD_PLACED"
	EventHoldReleased         EventType = "HOLD_RELEASED"
	EventHoldCaptured         EventType = "HOLD_CAPTURED"
	EventHoldExpired          EventType = "HOLD_EXPIRED"
)

// Event is the envelope published to downstream consumers after commit.
// Payload is one of the *Payload types below.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

func NewEvent(eventType EventType, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

type AccountCreatedPayload struct {
	AccountID      string          `json:"account_id"`
	CustomerID     string          `json:"customer_id"`
	AccountType    AccountType     `json:"account_type"`
	AccountNumber  string          `json:"account_number"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

type AccountStatusChangedPayload struct {
	AccountID  string        `json:"account_id"`
	CustomerID string        `json:"customer_id"`
	OldStatus  AccountStatus `json:"old_status"`
	NewStatus  AccountStatus `json:"new_status"`
	Reason     string        `json:"reason,omitempty"`
	ChangedBy  string        `json:"changed_by,omitempty"`
}

type BalanceUpdatedPayload struct {
	AccountID    string          `json:"account_id"`
	CustomerID   string          `json:"customer_id"`
	Currency     string          `json:"currency"`
	OldBalance   decimal.Decimal `json:"old_balance"`
	NewBalance   decimal.Decimal `json:"new_balance"`
	ChangeAmount decimal.Decimal `json:"change_amount"`
}

type TransactionPayload struct {
	TransactionID string            `json:"transaction_id"`
	Reference     string            `json:"reference"`
	FromAccountID string            `json:"from_account_id,omitempty"`
	ToAccountID   string            `json:"to_account_id,omitempty"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency,omitempty"`
	Type          TransactionType   `json:"type"`
	Status        TransactionStatus `json:"status"`
	Reason        string            `json:"reason,omitempty"`
}

type FraudAlertPayload struct {
	FraudEventID string          `json:"fraud_event_id"`
	AccountID    string          `json:"account_id"`
	CustomerID   string          `json:"customer_id"`
	RiskLevel    RiskLevel       `json:"risk_level"`
	RiskScore    int             `json:"risk_score"`
	FraudType    string          `json:"fraud_type,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
}

type HoldPayload struct {
	HoldID    string          `json:"hold_id"`
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	HoldType  HoldType        `json:"hold_type"`
	Status    HoldStatus      `json:"status"`
}
