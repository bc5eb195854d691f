package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"bankcore/internal/domain"
	"bankcore/internal/events"
	"bankcore/internal/repository"
)

// Config tunes the orchestrator. Zero values fall back to the defaults below.
type Config struct {
	LockTimeout time.Duration
	HoldTTL     time.Duration
	// AllowProvisionalSettlement lets a REVIEW-level fraud assessment settle
	// immediately, with incoming funds parked under a FRAUD_REVIEW hold.
	// When false a REVIEW recommendation fails the transaction.
	AllowProvisionalSettlement bool
}

const (
	defaultLockTimeout = 5 * time.Second
	defaultHoldTTL     = 72 * time.Hour
)

// TransactionResult is what callers get back for any money movement. Balances
// are from the perspective of the customer's own account: the source for
// withdrawals and transfers, the destination for deposits.
type TransactionResult struct {
	TransactionID string                   `json:"transaction_id"`
	Reference     string                   `json:"reference"`
	Status        domain.TransactionStatus `json:"status"`
	BalanceBefore decimal.Decimal          `json:"balance_before"`
	BalanceAfter  decimal.Decimal          `json:"balance_after"`
	FailureReason string                   `json:"failure_reason,omitempty"`
	Duplicate     bool                     `json:"duplicate,omitempty"`
}

type DepositRequest struct {
	AccountID      string            `json:"account_id"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Description    string            `json:"description,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type WithdrawRequest struct {
	AccountID      string            `json:"account_id"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Description    string            `json:"description,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type TransferRequest struct {
	FromAccountID  string            `json:"from_account_id"`
	ToAccountID    string            `json:"to_account_id"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Description    string            `json:"description,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type BalanceSummary struct {
	AccountID        string          `json:"account_id"`
	Balance          decimal.Decimal `json:"balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	Currency         string          `json:"currency"`
}

// TransactionOrchestrator drives the full movement protocol: idempotency,
// per-account locking, limit and velocity gates, fraud scoring and the atomic
// settlement unit. Events are published only after the unit commits.
type TransactionOrchestrator struct {
	store     repository.Store
	publisher events.Publisher
	accounts  *AccountService
	ledger    *LedgerStore
	guard     *IdempotencyGuard
	holds     *HoldManager
	limits    *LimitEnforcer
	velocity  *VelocityChecker
	fraud     *FraudScorer
	locks     *lockTable
	cfg       Config
	logger    *slog.Logger
}

func NewTransactionOrchestrator(
	store repository.Store,
	publisher events.Publisher,
	accounts *AccountService,
	ledger *LedgerStore,
	guard *IdempotencyGuard,
	holds *HoldManager,
	limits *LimitEnforcer,
	velocity *VelocityChecker,
	fraud *FraudScorer,
	cfg Config,
	logger *slog.Logger,
) *TransactionOrchestrator {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaultLockTimeout
	}
	if cfg.HoldTTL <= 0 {
		cfg.HoldTTL = defaultHoldTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TransactionOrchestrator{
		store:     store,
		publisher: publisher,
		accounts:  accounts,
		ledger:    ledger,
		guard:     guard,
		holds:     holds,
		limits:    limits,
		velocity:  velocity,
		fraud:     fraud,
		locks:     newLockTable(),
		cfg:       cfg,
		logger:    logger,
	}
}

func (o *TransactionOrchestrator) Deposit(ctx context.Context, req DepositRequest) (*TransactionResult, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.AccountID == "" {
		return nil, fmt.Errorf("%w: account id is required", ErrValidation)
	}

	hash := domain.HashRequest("deposit", req.AccountID, req.Amount.String(), req.Currency)
	if result, done, err := o.beginIdempotent(ctx, req.IdempotencyKey, hash); done || err != nil {
		return result, err
	}

	account, err := o.loadAccount(ctx, req.AccountID)
	if err != nil {
		o.guard.Fail(ctx, req.IdempotencyKey, "", true)
		return nil, err
	}

	tx := domain.NewTransaction(domain.TypeDeposit, req.Amount, req.Currency).
		WithAccounts("", req.AccountID).
		WithIdempotencyKey(req.IdempotencyKey).
		WithDescription(req.Description)
	o.attachMetadata(tx, account.CustomerID, req.Metadata)
	if err := o.initiate(ctx, tx); err != nil {
		o.guard.Fail(ctx, req.IdempotencyKey, "", true)
		return nil, err
	}

	release, err := o.acquireLocks(ctx, req.AccountID)
	if err != nil {
		return o.finishFailure(ctx, tx, err), err
	}
	defer release()

	assessment, err := o.preflight(ctx, tx, account, domain.LimitDeposit)
	if err != nil {
		return o.finishFailure(ctx, tx, err), err
	}

	var after *domain.Account
	err = o.store.InTx(ctx, func(s repository.Store) error {
		after, err = o.accounts.Credit(ctx, s, req.AccountID, req.Amount)
		if err != nil {
			return err
		}
		if _, err := o.ledger.Append(ctx, s, req.AccountID, tx.ID, domain.EntryCredit, req.Amount, req.Description); err != nil {
			return err
		}
		if err := o.limits.Consume(ctx, s, account.CustomerID, domain.LimitDeposit, req.Amount); err != nil {
			return err
		}
		tx.BalanceBefore = after.Balance.Sub(req.Amount)
		tx.BalanceAfter = after.Balance
		return o.complete(ctx, s, tx)
	})
	if err != nil {
		return o.finishFailure(ctx, tx, err), err
	}

	if err := o.settleReviewHold(ctx, tx, assessment, req.AccountID); err != nil {
		o.logger.ErrorContext(ctx, "Provisional review hold failed",
			slog.String("transaction_id", tx.ID),
			slog.String("error", err.Error()))
	}

	o.finishSuccess(ctx, tx, after, req.Amount)
	return o.result(tx), nil
}

func (o *TransactionOrchestrator) Withdraw(ctx context.Context, req WithdrawRequest) (*TransactionResult, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.AccountID == "" {
		return nil, fmt.Errorf("%w: account id is required", ErrValidation)
	}

	hash := domain.HashRequest("withdraw", req.AccountID, req.Amount.String(), req.Currency)
	if result, done, err := o.beginIdempotent(ctx, req.IdempotencyKey, hash); done || err != nil {
		return result, err
	}

	account, err := o.loadAccount(ctx, req.AccountID)
	if err != nil {
		o.guard.Fail(ctx, req.IdempotencyKey, "", true)
		return nil, err
	}

	tx := domain.NewTransaction(domain.TypeWithdrawal, req.Amount, req.Currency).
		WithAccounts(req.AccountID, "").
		WithIdempotencyKey(req.IdempotencyKey).
		WithDescription(req.Description)
	o.attachMetadata(tx, account.CustomerID, req.Metadata)
	if err := o.initiate(ctx, tx); err != nil {
		o.guard.Fail(ctx, req.IdempotencyKey, "", true)
		return nil, err
	}

	release, err := o.acquireLocks(ctx, req.AccountID)
	if err != nil {
		return o.finishFailure(ctx, tx, err), err
	}
	defer release()

	if _, err := o.preflight(ctx, tx, account, domain.LimitWithdrawal); err != nil {
		return o.finishFailure(ctx, tx, err), err
	}

	var after *domain.Account
	err = o.store.InTx(ctx, func(s repository.Store) error {
		after, err = o.accounts.Debit(ctx, s, req.AccountID, req.Amount)
		if err != nil {
			return err
		}
		if _, err := o.ledger.Append(ctx, s, req.AccountID, tx.ID, domain.EntryDebit, req.Amount, req.Description); err != nil {
			return err
		}
		if err := o.limits.Consume(ctx, s, account.CustomerID, domain.LimitWithdrawal, req.Amount); err != nil {
			return err
		}
		tx.BalanceBefore = after.Balance.Add(req.Amount)
		tx.BalanceAfter = after.Balance
		return o.complete(ctx, s, tx)
	})
	if err != nil {
		return o.finishFailure(ctx, tx, err), err
	}

	o.finishSuccess(ctx, tx, after, req.Amount.Neg())
	return o.result(tx), nil
}

func (o *TransactionOrchestrator) Transfer(ctx context.Context, req TransferRequest) (*TransactionResult, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.FromAccountID == "" || req.ToAccountID == "" {
		return nil, fmt.Errorf("%w: both account ids are required", ErrValidation)
	}
	if req.FromAccountID == req.ToAccountID {
		return nil, fmt.Errorf("%w: cannot transfer to the same account", ErrValidation)
	}

	hash := domain.HashRequest("transfer", req.FromAccountID, req.ToAccountID, req.Amount.String(), req.Currency)
	if result, done, err := o.beginIdempotent(ctx, req.IdempotencyKey, hash); done || err != nil {
		return result, err
	}

	source, err := o.loadAccount(ctx, req.FromAccountID)
	if err != nil {
		o.guard.Fail(ctx, req.IdempotencyKey, "", true)
		return nil, err
	}
	if _, err := o.loadAccount(ctx, req.ToAccountID); err != nil {
		o.guard.Fail(ctx, req.IdempotencyKey, "", true)
		return nil, err
	}

	tx := domain.NewTransaction(domain.TypeTransfer, req.Amount, req.Currency).
		WithAccounts(req.FromAccountID, req.ToAccountID).
		WithIdempotencyKey(req.IdempotencyKey).
		WithDescription(req.Description)
	o.attachMetadata(tx, source.CustomerID, req.Metadata)
	if err := o.initiate(ctx, tx); err != nil {
		o.guard.Fail(ctx, req.IdempotencyKey, "", true)
		return nil, err
	}

	release, err := o.acquireLocks(ctx, req.FromAccountID, req.ToAccountID)
	if err != nil {
		return o.finishFailure(ctx, tx, err), err
	}
	defer release()

	assessment, err := o.preflight(ctx, tx, source, domain.LimitTransfer)
	if err != nil {
		return o.finishFailure(ctx, tx, err), err
	}

	var debited, credited *domain.Account
	err = o.store.InTx(ctx, func(s repository.Store) error {
		debited, err = o.accounts.Debit(ctx, s, req.FromAccountID, req.Amount)
		if err != nil {
			return err
		}
		if _, err := o.ledger.Append(ctx, s, req.FromAccountID, tx.ID, domain.EntryDebit, req.Amount, req.Description); err != nil {
			return err
		}
		credited, err = o.accounts.Credit(ctx, s, req.ToAccountID, req.Amount)
		if err != nil {
			return err
		}
		if _, err := o.ledger.Append(ctx, s, req.ToAccountID, tx.ID, domain.EntryCredit, req.Amount, req.Description); err != nil {
			return err
		}
		if err := o.limits.Consume(ctx, s, source.CustomerID, domain.LimitTransfer, req.Amount); err != nil {
			return err
		}
		tx.BalanceBefore = debited.Balance.Add(req.Amount)
		tx.BalanceAfter = debited.Balance
		return o.complete(ctx, s, tx)
	})
	if err != nil {
		return o.finishFailure(ctx, tx, err), err
	}

	if err := o.settleReviewHold(ctx, tx, assessment, req.ToAccountID); err != nil {
		o.logger.ErrorContext(ctx, "Provisional review hold failed",
			slog.String("transaction_id", tx.ID),
			slog.String("error", err.Error()))
	}

	o.finishSuccess(ctx, tx, debited, req.Amount.Neg())
	o.publisher.Publish(domain.NewEvent(domain.EventBalanceUpdated, domain.BalanceUpdatedPayload{
		AccountID:    credited.ID,
		CustomerID:   credited.CustomerID,
		Currency:     credited.Currency,
		OldBalance:   credited.Balance.Sub(req.Amount),
		NewBalance:   credited.Balance,
		ChangeAmount: req.Amount,
	}))
	return o.result(tx), nil
}

// GetBalance returns the cached balances. Ledger-derived reconciliation runs
// separately through LedgerStore.Reconcile.
func (o *TransactionOrchestrator) GetBalance(ctx context.Context, accountID string) (*BalanceSummary, error) {
	account, err := o.store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: account %s: %v", ErrStorage, accountID, err)
	}
	return &BalanceSummary{
		AccountID:        account.ID,
		Balance:          account.Balance,
		AvailableBalance: account.AvailableBalance,
		Currency:         account.Currency,
	}, nil
}

func (o *TransactionOrchestrator) PlaceHold(ctx context.Context, accountID, transactionID string, amount decimal.Decimal, holdType domain.HoldType) (*domain.Hold, error) {
	release, err := o.acquireLocks(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer release()

	var hold *domain.Hold
	err = o.store.InTx(ctx, func(s repository.Store) error {
		hold, err = o.holds.Place(ctx, s, accountID, transactionID, amount, holdType, o.cfg.HoldTTL)
		return err
	})
	if err != nil {
		return nil, err
	}
	return hold, nil
}

func (o *TransactionOrchestrator) ReleaseHold(ctx context.Context, holdID string) error {
	return o.store.InTx(ctx, func(s repository.Store) error {
		return o.holds.Release(ctx, s, holdID)
	})
}

func (o *TransactionOrchestrator) CaptureHold(ctx context.Context, holdID string) error {
	return o.store.InTx(ctx, func(s repository.Store) error {
		return o.holds.Capture(ctx, s, holdID)
	})
}

func (o *TransactionOrchestrator) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	tx, err := o.store.Transactions().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: transaction %s: %v", ErrStorage, id, err)
	}
	return tx, nil
}

// beginIdempotent claims the idempotency key. done=true means the caller has
// its answer already: either the cached result of a completed duplicate, or
// an error (conflicting payload, or a retry racing an in-flight original).
func (o *TransactionOrchestrator) beginIdempotent(ctx context.Context, key, hash string) (*TransactionResult, bool, error) {
	begin, err := o.guard.Begin(ctx, key, hash)
	if err != nil {
		return nil, true, err
	}
	if begin.Outcome != Duplicate {
		return nil, false, nil
	}

	tx, err := o.store.Transactions().GetByID(ctx, begin.TransactionID)
	if err != nil {
		return nil, true, fmt.Errorf("%w: duplicate transaction %s: %v", ErrStorage, begin.TransactionID, err)
	}
	result := o.result(tx)
	result.Duplicate = true
	o.logger.InfoContext(ctx, "Idempotent replay served from cache",
		slog.String("idempotency_key", key),
		slog.String("transaction_id", tx.ID))
	return result, true, nil
}

// loadAccount resolves the account for a movement request, reporting a
// missing id as a validation rejection rather than a storage failure.
func (o *TransactionOrchestrator) loadAccount(ctx context.Context, id string) (*domain.Account, error) {
	account, err := o.store.Accounts().GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: account %s does not exist", ErrValidation, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: account %s: %v", ErrStorage, id, err)
	}
	return account, nil
}

func (o *TransactionOrchestrator) attachMetadata(tx *domain.Transaction, customerID string, metadata map[string]string) {
	for k, v := range metadata {
		tx.AddMetadata(k, v)
	}
	tx.AddMetadata("customer_id", customerID)
}

func (o *TransactionOrchestrator) initiate(ctx context.Context, tx *domain.Transaction) error {
	if err := o.store.Transactions().Save(ctx, tx); err != nil {
		return fmt.Errorf("%w: save transaction: %v", ErrStorage, err)
	}
	o.publisher.Publish(domain.NewEvent(domain.EventTransactionInitiated, domain.TransactionPayload{
		TransactionID: tx.ID,
		Reference:     tx.Reference,
		FromAccountID: tx.FromAccountID,
		ToAccountID:   tx.ToAccountID,
		Amount:        tx.Amount,
		Type:          tx.Type,
		Status:        tx.Status,
	}))
	return nil
}

func (o *TransactionOrchestrator) acquireLocks(ctx context.Context, accountIDs ...string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, o.cfg.LockTimeout)
	defer cancel()
	return o.locks.Acquire(lockCtx, accountIDs...)
}

// preflight runs the gates that must pass before any balance moves: account
// status, per-customer limits, velocity counting and fraud scoring. The
// velocity counter increments even when a later gate fails, so bursts of
// rejected attempts still trip the block.
func (o *TransactionOrchestrator) preflight(ctx context.Context, tx *domain.Transaction, account *domain.Account, limitType domain.LimitType) (*domain.RiskAssessment, error) {
	if !account.IsActive() {
		return nil, fmt.Errorf("%w: account %s is %s", ErrAccountNotActive, account.ID, account.Status)
	}
	if err := o.limits.Check(ctx, account.CustomerID, limitType, tx.Amount); err != nil {
		return nil, err
	}
	if err := o.velocity.Record(ctx, account.CustomerID, limitType); err != nil {
		return nil, err
	}

	assessment, err := o.fraud.Score(ctx, ScoringContext{
		Transaction: tx,
		Account:     account,
		CustomerID:  account.CustomerID,
	})
	if err != nil {
		return nil, err
	}
	switch assessment.Recommendation {
	case domain.RecommendBlock:
		return nil, fmt.Errorf("%w: risk score %d (%s)", ErrFraudBlocked, assessment.Score, assessment.Level)
	case domain.RecommendReview:
		if !o.cfg.AllowProvisionalSettlement {
			return nil, fmt.Errorf("%w: review required, risk score %d", ErrFraudBlocked, assessment.Score)
		}
		o.logger.WarnContext(ctx, "Settling provisionally under fraud review",
			slog.String("transaction_id", tx.ID),
			slog.Int("risk_score", assessment.Score))
	}
	return assessment, nil
}

// complete advances the transaction to its terminal state inside the
// settlement unit, so a rollback also rolls the status back.
func (o *TransactionOrchestrator) complete(ctx context.Context, store repository.Store, tx *domain.Transaction) error {
	if err := tx.Advance(domain.StatusProcessing); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := tx.Advance(domain.StatusCompleted); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := store.Transactions().Update(ctx, tx); err != nil {
		return fmt.Errorf("%w: update transaction %s: %v", ErrStorage, tx.ID, err)
	}
	return nil
}

// settleReviewHold parks the settled funds on the receiving account when the
// fraud assessment asked for review. Failure here does not unwind the
// settlement; the hold is advisory and the fraud event is already recorded.
func (o *TransactionOrchestrator) settleReviewHold(ctx context.Context, tx *domain.Transaction, assessment *domain.RiskAssessment, accountID string) error {
	if assessment == nil || assessment.Recommendation != domain.RecommendReview {
		return nil
	}
	return o.store.InTx(ctx, func(s repository.Store) error {
		_, err := o.holds.Place(ctx, s, accountID, tx.ID, tx.Amount, domain.HoldFraudReview, o.cfg.HoldTTL)
		return err
	})
}

// finishFailure terminates the transaction record outside the settlement unit
// so the failure itself is durable, then releases the idempotency claim.
// Transient failures (lock timeouts, storage errors) purge the key so the
// caller can retry; deterministic rejections keep it as FAILED.
func (o *TransactionOrchestrator) finishFailure(ctx context.Context, tx *domain.Transaction, cause error) *TransactionResult {
	reason := FailureReason(cause)
	tx.Fail(reason)
	if err := o.store.Transactions().Update(ctx, tx); err != nil {
		o.logger.ErrorContext(ctx, "Failed to persist transaction failure",
			slog.String("transaction_id", tx.ID),
			slog.String("error", err.Error()))
	}

	transient := errors.Is(cause, ErrBusy) || errors.Is(cause, ErrStorage)
	o.guard.Fail(ctx, tx.IdempotencyKey, tx.ID, transient)

	o.publisher.Publish(domain.NewEvent(domain.EventTransactionFailed, domain.TransactionPayload{
		TransactionID: tx.ID,
		Reference:     tx.Reference,
		FromAccountID: tx.FromAccountID,
		ToAccountID:   tx.ToAccountID,
		Amount:        tx.Amount,
		Type:          tx.Type,
		Status:        tx.Status,
		Reason:        reason,
	}))
	o.logger.WarnContext(ctx, "Transaction failed",
		slog.String("transaction_id", tx.ID),
		slog.String("type", string(tx.Type)),
		slog.String("reason", reason),
		slog.String("error", cause.Error()))

	return o.result(tx)
}

func (o *TransactionOrchestrator) finishSuccess(ctx context.Context, tx *domain.Transaction, account *domain.Account, change decimal.Decimal) {
	if err := o.guard.Complete(ctx, tx.IdempotencyKey, tx.ID); err != nil {
		o.logger.ErrorContext(ctx, "Failed to record idempotency completion",
			slog.String("idempotency_key", tx.IdempotencyKey),
			slog.String("error", err.Error()))
	}

	o.publisher.Publish(domain.NewEvent(domain.EventTransactionCompleted, domain.TransactionPayload{
		TransactionID: tx.ID,
		Reference:     tx.Reference,
		FromAccountID: tx.FromAccountID,
		ToAccountID:   tx.ToAccountID,
		Amount:        tx.Amount,
		Type:          tx.Type,
		Status:        tx.Status,
	}))
	o.publisher.Publish(domain.NewEvent(domain.EventBalanceUpdated, domain.BalanceUpdatedPayload{
		AccountID:    account.ID,
		CustomerID:   account.CustomerID,
		Currency:     account.Currency,
		OldBalance:   account.Balance.Sub(change),
		NewBalance:   account.Balance,
		ChangeAmount: change,
	}))

	o.logger.InfoContext(ctx, "Transaction completed",
		slog.String("transaction_id", tx.ID),
		slog.String("reference", tx.Reference),
		slog.String("type", string(tx.Type)),
		slog.String("amount", tx.Amount.String()))
}

func (o *TransactionOrchestrator) result(tx *domain.Transaction) *TransactionResult {
	return &TransactionResult{
		TransactionID: tx.ID,
		Reference:     tx.Reference,
		Status:        tx.Status,
		BalanceBefore: tx.BalanceBefore,
		BalanceAfter:  tx.BalanceAfter,
		FailureReason: tx.FailureReason,
	}
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrValidation, amount)
	}
	return nil
}
