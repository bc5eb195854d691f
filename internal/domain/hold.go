package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type HoldType string
type HoldStatus string

const (
	HoldPendingTransaction HoldType = "PENDING_TRANSACTION"
	HoldFraudReview        HoldType = "FRAUD_REVIEW"
	HoldDispute            HoldType = "DISPUTE"

	HoldActive   HoldStatus = "ACTIVE"
	HoldReleased HoldStatus = "RELEASED"
	HoldExpired  HoldStatus = "EXPIRED"
	HoldCaptured HoldStatus = "CAPTURED"
)

// Hold reserves funds against available balance without touching the ledger.
type Hold struct {
	ID            string          `json:"id"`
	AccountID     string          `json:"account_id"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Type          HoldType        `json:"type"`
	Status        HoldStatus      `json:"status"`
	ExpiresAt     time.Time       `json:"expires_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func NewHold(accountID, transactionID string, amount decimal.Decimal, holdType HoldType, ttl time.Duration) *Hold {
	now := time.Now().UTC()
	return &Hold{
		ID:            uuid.NewString(),
		AccountID:     accountID,
		TransactionID: transactionID,
		Amount:        amount,
		Type:          holdType,
		Status:        HoldActive,
		ExpiresAt:     now.Add(ttl),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (h *Hold) IsActive() bool {
	return h.Status == HoldActive
}

func (h *Hold) IsExpired(now time.Time) bool {
	return h.Status == HoldActive && now.After(h.ExpiresAt)
}
