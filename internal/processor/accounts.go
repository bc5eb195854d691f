package processor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"bankcore/internal/domain"
	"bankcore/internal/events"
	"bankcore/internal/repository"
)

// AccountService owns the cached account record: credits, debits and status
// transitions. Every credit or debit must be paired with a ledger append in
// the same unit of work by the caller.
type AccountService struct {
	store     repository.Store
	publisher events.Publisher
	logger    *slog.Logger
}

func NewAccountService(store repository.Store, publisher events.Publisher, logger *slog.Logger) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *AccountService) Open(ctx context.Context, customerID string, accountType domain.AccountType, currency string) (*domain.Account, error) {
	account := domain.NewAccount(customerID, accountType, currency)
	if err := s.store.Accounts().Save(ctx, account); err != nil {
		return nil, fmt.Errorf("%w: save account: %v", ErrStorage, err)
	}

	s.publisher.Publish(domain.NewEvent(domain.EventAccountCreated, domain.AccountCreatedPayload{
		AccountID:      account.ID,
		CustomerID:     account.CustomerID,
		AccountType:    account.Type,
		AccountNumber:  account.AccountNumber,
		InitialBalance: account.Balance,
	}))

	s.logger.InfoContext(ctx, "Account opened",
		slog.String("account_id", account.ID),
		slog.String("customer_id", customerID),
		slog.String("type", string(accountType)))

	return account, nil
}

// Credit applies the amount to the cached balance. Runs against the store
// passed in, which may be transaction-scoped.
func (s *AccountService) Credit(ctx context.Context, store repository.Store, accountID string, amount decimal.Decimal) (*domain.Account, error) {
	account, err := store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: account %s: %v", ErrStorage, accountID, err)
	}
	if !account.IsActive() {
		return nil, fmt.Errorf("%w: account %s is %s", ErrAccountNotActive, accountID, account.Status)
	}

	account.Balance = account.Balance.Add(amount)
	account.AvailableBalance = account.AvailableBalance.Add(amount)
	if err := store.Accounts().Update(ctx, account); err != nil {
		return nil, fmt.Errorf("%w: update account %s: %v", ErrStorage, accountID, err)
	}
	return account, nil
}

// Debit removes the amount from the cached balance after re-checking status
// and sufficiency. AvailableBalance already reflects overdraft and any active
// holds.
func (s *AccountService) Debit(ctx context.Context, store repository.Store, accountID string, amount decimal.Decimal) (*domain.Account, error) {
	account, err := store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: account %s: %v", ErrStorage, accountID, err)
	}
	if !account.IsActive() {
		return nil, fmt.Errorf("%w: account %s is %s", ErrAccountNotActive, accountID, account.Status)
	}
	if !account.CanDebit(amount) {
		return nil, fmt.Errorf("%w: account %s available %s < %s",
			ErrInsufficientFunds, accountID, account.AvailableBalance, amount)
	}

	account.Balance = account.Balance.Sub(amount)
	account.AvailableBalance = account.AvailableBalance.Sub(amount)
	if err := store.Accounts().Update(ctx, account); err != nil {
		return nil, fmt.Errorf("%w: update account %s: %v", ErrStorage, accountID, err)
	}
	return account, nil
}

// UpdateStatus drives the account status state machine. Closing requires a
// zero balance and no active holds.
func (s *AccountService) UpdateStatus(ctx context.Context, accountID string, newStatus domain.AccountStatus, reason, changedBy string) error {
	account, err := s.store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("%w: account %s: %v", ErrStorage, accountID, err)
	}

	if !account.CanTransitionTo(newStatus) {
		return fmt.Errorf("%w: cannot move account %s from %s to %s",
			ErrValidation, accountID, account.Status, newStatus)
	}
	if newStatus == domain.AccountClosed {
		if !account.Balance.IsZero() {
			return fmt.Errorf("%w: account %s balance %s is not zero",
				ErrValidation, accountID, account.Balance)
		}
		holds, err := s.store.Holds().GetActiveByAccountID(ctx, accountID)
		if err != nil {
			return fmt.Errorf("%w: holds for account %s: %v", ErrStorage, accountID, err)
		}
		if len(holds) > 0 {
			return fmt.Errorf("%w: account %s has %d active holds", ErrValidation, accountID, len(holds))
		}
	}

	oldStatus := account.Status
	account.Status = newStatus
	if err := s.store.Accounts().Update(ctx, account); err != nil {
		return fmt.Errorf("%w: update account %s: %v", ErrStorage, accountID, err)
	}

	s.publisher.Publish(domain.NewEvent(domain.EventAccountStatusChanged, domain.AccountStatusChangedPayload{
		AccountID:  account.ID,
		CustomerID: account.CustomerID,
		OldStatus:  oldStatus,
		NewStatus:  newStatus,
		Reason:     reason,
		ChangedBy:  changedBy,
	}))

	s.logger.InfoContext(ctx, "Account status changed",
		slog.String("account_id", accountID),
		slog.String("old_status", string(oldStatus)),
		slog.String("new_status", string(newStatus)),
		slog.String("reason", reason))

	return nil
}
