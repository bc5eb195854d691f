package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string
type TransactionStatus string

const (
	TypeDeposit    TransactionType = "DEPOSIT"
	TypeWithdrawal TransactionType = "WITHDRAWAL"
	TypeTransfer   TransactionType = "TRANSFER"
	TypePayment    TransactionType = "PAYMENT"
	TypeFee        TransactionType = "FEE"
	TypeRefund     TransactionType = "REFUND"
	TypeAdjustment TransactionType = "ADJUSTMENT"

	StatusPending    TransactionStatus = "PENDING"
	StatusProcessing TransactionStatus = "PROCESSING"
	StatusCompleted  TransactionStatus = "COMPLETED"
	StatusFailed     TransactionStatus = "FAILED"
	StatusCancelled  TransactionStatus = "CANCELLED"
	StatusReversed   TransactionStatus = "REVERSED"
)

type Transaction struct {
	ID             string            `json:"id"`
	Reference      string            `json:"reference"`
	Type           TransactionType   `json:"type"`
	FromAccountID  string            `json:"from_account_id,omitempty"`
	ToAccountID    string            `json:"to_account_id,omitempty"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	Status         TransactionStatus `json:"status"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	BalanceBefore  decimal.Decimal   `json:"balance_before"`
	BalanceAfter   decimal.Decimal   `json:"balance_after"`
	FailureReason  string            `json:"failure_reason,omitempty"`
	Description    string            `json:"description,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func NewTransaction(t TransactionType, amount decimal.Decimal, currency string) *Transaction {
	now := time.Now().UTC()
	return &Transaction{
		ID:        uuid.NewString(),
		Reference: generateReference(),
		Type:      t,
		Amount:    amount,
		Currency:  currency,
		Status:    StatusPending,
		Metadata:  make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (tx *Transaction) WithAccounts(fromID, toID string) *Transaction {
	tx.FromAccountID = fromID
	tx.ToAccountID = toID
	return tx
}

func (tx *Transaction) WithIdempotencyKey(key string) *Transaction {
	tx.IdempotencyKey = key
	return tx
}

func (tx *Transaction) WithDescription(desc string) *Transaction {
	tx.Description = desc
	return tx
}

func (tx *Transaction) IsTerminal() bool {
	switch tx.Status {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusReversed:
		return true
	}
	return false
}

var transactionStatusTransitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:    {StatusProcessing, StatusFailed, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted:  {StatusReversed},
}

// Advance moves the transaction through its status state machine. Terminal
// states never move again, except COMPLETED -> REVERSED.
func (tx *Transaction) Advance(status TransactionStatus) error {
	for _, allowed := range transactionStatusTransitions[tx.Status] {
		if allowed == status {
			tx.Status = status
			tx.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid transaction status transition: %s -> %s", tx.Status, status)
}

func (tx *Transaction) Fail(reason string) {
	tx.Status = StatusFailed
	tx.FailureReason = reason
	tx.UpdatedAt = time.Now().UTC()
}

func (tx *Transaction) AddMetadata(key, value string) {
	if tx.Metadata == nil {
		tx.Metadata = make(map[string]string)
	}
	tx.Metadata[key] = value
}

func generateReference() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return fmt.Sprintf("TXN-%s-%s", time.Now().UTC().Format("20060102"), hex.EncodeToString(b))
}
