package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// LedgerEntry is immutable once written. The Balance field is the running
// balance of the account after this entry, derived from the ledger itself.
type LedgerEntry struct {
	ID            string          `json:"id"`
	AccountID     string          `json:"account_id"`
	TransactionID string          `json:"transaction_id"`
	Type          EntryType       `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Balance       decimal.Decimal `json:"balance"`
	Description   string          `json:"description,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func NewLedgerEntry(accountID, transactionID string, entryType EntryType, amount, balance decimal.Decimal, description string) *LedgerEntry {
	return &LedgerEntry{
		ID:            uuid.NewString(),
		AccountID:     accountID,
		TransactionID: transactionID,
		Type:          entryType,
		Amount:        amount,
		Balance:       balance,
		Description:   description,
		CreatedAt:     time.Now().UTC(),
	}
}

// Signed returns the entry amount with credit positive and debit negative.
func (e *LedgerEntry) Signed() decimal.Decimal {
	if e.Type == EntryDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}
