package validator

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"bankcore/internal/domain"
)

var (
	ErrInvalidAmount   = errors.New("invalid transaction amount")
	ErrInvalidCurrency = errors.New("invalid currency")
	ErrInvalidAccount  = errors.New("invalid account")
)

// TransactionValidator rejects malformed requests at the API edge, before the
// orchestrator spends a transaction record on them.
type TransactionValidator struct {
	currencyRegex *regexp.Regexp
	maxAmounts    map[string]decimal.Decimal
}

func NewTransactionValidator() *TransactionValidator {
	return &TransactionValidator{
		currencyRegex: regexp.MustCompile(`^[A-Z]{3}$`),
		maxAmounts: map[string]decimal.Decimal{
			"USD": decimal.NewFromInt(1000000),
			"EUR": decimal.NewFromInt(900000),
			"GBP": decimal.NewFromInt(800000),
		},
	}
}

func (v *TransactionValidator) ValidateTransaction(tx *domain.Transaction) error {
	var errs []error

	if !tx.Amount.IsPositive() {
		errs = append(errs, ErrInvalidAmount)
	}

	if !v.currencyRegex.MatchString(tx.Currency) {
		errs = append(errs, ErrInvalidCurrency)
	}

	switch tx.Type {
	case domain.TypeTransfer:
		if tx.FromAccountID == "" || tx.ToAccountID == "" {
			errs = append(errs, ErrInvalidAccount)
		}
		if tx.FromAccountID == tx.ToAccountID {
			errs = append(errs, errors.New("cannot transfer to same account"))
		}
	case domain.TypeWithdrawal:
		if tx.FromAccountID == "" {
			errs = append(errs, ErrInvalidAccount)
		}
	case domain.TypeDeposit:
		if tx.ToAccountID == "" {
			errs = append(errs, ErrInvalidAccount)
		}
	}

	if tx.CreatedAt.After(time.Now().Add(5 * time.Minute)) {
		errs = append(errs, errors.New("transaction date cannot be in the future"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors: %v", errs)
	}

	return nil
}

func (v *TransactionValidator) ValidateAmount(amount decimal.Decimal, currency string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !v.currencyRegex.MatchString(currency) {
		return ErrInvalidCurrency
	}

	if max, exists := v.maxAmounts[currency]; exists && amount.GreaterThan(max) {
		return fmt.Errorf("amount exceeds maximum limit for %s: %s", currency, max)
	}

	return nil
}
