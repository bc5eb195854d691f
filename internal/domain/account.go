package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountType string
type AccountStatus string

const (
	AccountSavings  AccountType = "SAVINGS"
	AccountChecking AccountType = "CHECKING"
	AccountCredit   AccountType = "CREDIT"
	AccountBusiness AccountType = "BUSINESS"

	AccountPending   AccountStatus = "PENDING"
	AccountActive    AccountStatus = "ACTIVE"
	AccountFrozen    AccountStatus = "FROZEN"
	AccountClosed    AccountStatus = "CLOSED"
	AccountSuspended AccountStatus = "SUSPENDED"
)

type Account struct {
	ID               string          `json:"id"`
	AccountNumber    string          `json:"account_number"`
	CustomerID       string          `json:"customer_id"`
	Type             AccountType     `json:"type"`
	Balance          decimal.Decimal `json:"balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	MinimumBalance   decimal.Decimal `json:"minimum_balance"`
	OverdraftLimit   decimal.Decimal `json:"overdraft_limit"`
	Currency         string          `json:"currency"`
	Status           AccountStatus   `json:"status"`
	Version          int64           `json:"version"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func NewAccount(customerID string, accountType AccountType, currency string) *Account {
	now := time.Now().UTC()
	return &Account{
		ID:               uuid.NewString(),
		AccountNumber:    generateAccountNumber(),
		CustomerID:       customerID,
		Type:             accountType,
		Balance:          decimal.Zero,
		AvailableBalance: decimal.Zero,
		MinimumBalance:   decimal.Zero,
		OverdraftLimit:   decimal.Zero,
		Currency:         currency,
		Status:           AccountPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (a *Account) IsActive() bool {
	return a.Status == AccountActive
}

// CanDebit reports whether the account has room for the debit, overdraft
// included. Active holds are already reflected in AvailableBalance.
func (a *Account) CanDebit(amount decimal.Decimal) bool {
	return a.AvailableBalance.GreaterThanOrEqual(amount)
}

var accountStatusTransitions = map[AccountStatus][]AccountStatus{
	AccountPending:   {AccountActive, AccountClosed},
	AccountActive:    {AccountFrozen, AccountSuspended, AccountClosed},
	AccountFrozen:    {AccountActive, AccountSuspended, AccountClosed},
	AccountSuspended: {AccountActive, AccountFrozen, AccountClosed},
	AccountClosed:    {},
}

func (a *Account) CanTransitionTo(status AccountStatus) bool {
	for _, allowed := range accountStatusTransitions[a.Status] {
		if allowed == status {
			return true
		}
	}
	return false
}

func (a *Account) Clone() *Account {
	copied := *a
	return &copied
}

func generateAccountNumber() string {
	return fmt.Sprintf("ACC-%010d", uuid.New().ID())
}
