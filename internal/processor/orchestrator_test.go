package processor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bankcore/internal/domain"
	"bankcore/internal/events"
	"bankcore/internal/repository/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	store    *memory.Store
	orch     *TransactionOrchestrator
	accounts *AccountService
	ledger   *LedgerStore
	guard    *IdempotencyGuard
	holds    *HoldManager
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	store := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub := events.NopPublisher{}

	accounts := NewAccountService(store, pub, logger)
	ledger := NewLedgerStore(logger)
	guard := NewIdempotencyGuard(store, 0, logger)
	holds := NewHoldManager(store, pub, logger)
	limits := NewLimitEnforcer(store)
	velocity := NewVelocityChecker(store, 30*time.Minute, logger)
	fraud := NewFraudScorer(store, pub, logger)

	return &fixture{
		store:    store,
		orch:     NewTransactionOrchestrator(store, pub, accounts, ledger, guard, holds, limits, velocity, fraud, cfg, logger),
		accounts: accounts,
		ledger:   ledger,
		guard:    guard,
		holds:    holds,
	}
}

// openFunded creates an active account and funds it through a real deposit so
// the ledger and the cached balance agree.
func (f *fixture) openFunded(t *testing.T, customerID, balance string) *domain.Account {
	t.Helper()
	ctx := context.Background()

	account := domain.NewAccount(customerID, domain.AccountChecking, "USD")
	account.Status = domain.AccountActive
	if err := f.store.Accounts().Save(ctx, account); err != nil {
		t.Fatalf("save account: %v", err)
	}

	if balance != "0" {
		if _, err := f.orch.Deposit(ctx, DepositRequest{
			AccountID: account.ID,
			Amount:    dec(balance),
			Currency:  "USD",
		}); err != nil {
			t.Fatalf("fund account: %v", err)
		}
	}

	fresh, err := f.store.Accounts().GetByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("reload account: %v", err)
	}
	return fresh
}

func (f *fixture) mustGetAccount(t *testing.T, id string) *domain.Account {
	t.Helper()
	account, err := f.store.Accounts().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get account %s: %v", id, err)
	}
	return account
}

func TestDepositCompletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	account := f.openFunded(t, "cust-1", "0")

	result, err := f.orch.Deposit(ctx, DepositRequest{
		AccountID: account.ID,
		Amount:    dec("250"),
		Currency:  "USD",
	})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if result.Status != domain.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", result.Status)
	}
	if !result.BalanceBefore.Equal(dec("0")) || !result.BalanceAfter.Equal(dec("250")) {
		t.Errorf("balances = %s -> %s, want 0 -> 250", result.BalanceBefore, result.BalanceAfter)
	}

	fresh := f.mustGetAccount(t, account.ID)
	if !fresh.Balance.Equal(dec("250")) {
		t.Errorf("cached balance = %s, want 250", fresh.Balance)
	}
	derived, err := f.store.Ledger().SumByAccountID(ctx, account.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("ledger sum: %v", err)
	}
	if !derived.Equal(dec("250")) {
		t.Errorf("ledger balance = %s, want 250", derived)
	}
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	account := f.openFunded(t, "cust-1", "50")

	result, err := f.orch.Withdraw(ctx, WithdrawRequest{
		AccountID: account.ID,
		Amount:    dec("100"),
		Currency:  "USD",
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if result.Status != domain.StatusFailed {
		t.Errorf("status = %s, want FAILED", result.Status)
	}
	if result.FailureReason != "INSUFFICIENT_FUNDS" {
		t.Errorf("failure reason = %s, want INSUFFICIENT_FUNDS", result.FailureReason)
	}

	fresh := f.mustGetAccount(t, account.ID)
	if !fresh.Balance.Equal(dec("50")) {
		t.Errorf("balance = %s, want unchanged 50", fresh.Balance)
	}
	entries, err := f.store.Ledger().GetByAccountID(ctx, account.ID)
	if err != nil {
		t.Fatalf("ledger entries: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("ledger entries = %d, want only the funding credit", len(entries))
	}
}

func TestTransferMovesFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	source := f.openFunded(t, "cust-1", "1000")
	dest := f.openFunded(t, "cust-2", "0")

	result, err := f.orch.Transfer(ctx, TransferRequest{
		FromAccountID: source.ID,
		ToAccountID:   dest.ID,
		Amount:        dec("300"),
		Currency:      "USD",
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if result.Status != domain.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", result.Status)
	}
	if !result.BalanceBefore.Equal(dec("1000")) || !result.BalanceAfter.Equal(dec("700")) {
		t.Errorf("balances = %s -> %s, want 1000 -> 700", result.BalanceBefore, result.BalanceAfter)
	}

	if got := f.mustGetAccount(t, source.ID).Balance; !got.Equal(dec("700")) {
		t.Errorf("source balance = %s, want 700", got)
	}
	if got := f.mustGetAccount(t, dest.ID).Balance; !got.Equal(dec("300")) {
		t.Errorf("dest balance = %s, want 300", got)
	}

	entries, err := f.store.Ledger().GetByTransactionID(ctx, result.TransactionID)
	if err != nil {
		t.Fatalf("ledger entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ledger entries = %d, want a debit and a credit", len(entries))
	}
}

func TestTransferToSameAccountRejected(t *testing.T) {
	f := newFixture(t, Config{})
	account := f.openFunded(t, "cust-1", "100")

	_, err := f.orch.Transfer(context.Background(), TransferRequest{
		FromAccountID: account.ID,
		ToAccountID:   account.ID,
		Amount:        dec("10"),
		Currency:      "USD",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestTransferIdempotentReplay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	source := f.openFunded(t, "cust-1", "500")
	dest := f.openFunded(t, "cust-2", "0")

	req := TransferRequest{
		FromAccountID:  source.ID,
		ToAccountID:    dest.ID,
		Amount:         dec("100"),
		Currency:       "USD",
		IdempotencyKey: "transfer-key-1",
	}

	first, err := f.orch.Transfer(ctx, req)
	if err != nil {
		t.Fatalf("first transfer: %v", err)
	}
	second, err := f.orch.Transfer(ctx, req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if !second.Duplicate {
		t.Error("replay not flagged as duplicate")
	}
	if second.TransactionID != first.TransactionID {
		t.Errorf("replay transaction id = %s, want %s", second.TransactionID, first.TransactionID)
	}
	if got := f.mustGetAccount(t, source.ID).Balance; !got.Equal(dec("400")) {
		t.Errorf("source balance = %s, want debited exactly once to 400", got)
	}
}

func TestIdempotencyKeyPayloadConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	source := f.openFunded(t, "cust-1", "500")
	dest := f.openFunded(t, "cust-2", "0")

	if _, err := f.orch.Transfer(ctx, TransferRequest{
		FromAccountID:  source.ID,
		ToAccountID:    dest.ID,
		Amount:         dec("100"),
		Currency:       "USD",
		IdempotencyKey: "shared-key",
	}); err != nil {
		t.Fatalf("first transfer: %v", err)
	}

	_, err := f.orch.Transfer(ctx, TransferRequest{
		FromAccountID:  source.ID,
		ToAccountID:    dest.ID,
		Amount:         dec("999"),
		Currency:       "USD",
		IdempotencyKey: "shared-key",
	})
	if !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("err = %v, want ErrIdempotencyConflict", err)
	}
}

func TestDailyLimitExhaustion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	account := f.openFunded(t, "cust-1", "1000")

	limit := domain.NewTransactionLimit("cust-1", domain.LimitWithdrawal, dec("100"), dec("100"), decimal.Zero)
	if err := f.store.Limits().Save(ctx, limit); err != nil {
		t.Fatalf("save limit: %v", err)
	}

	if _, err := f.orch.Withdraw(ctx, WithdrawRequest{
		AccountID: account.ID,
		Amount:    dec("60"),
		Currency:  "USD",
	}); err != nil {
		t.Fatalf("first withdrawal: %v", err)
	}

	result, err := f.orch.Withdraw(ctx, WithdrawRequest{
		AccountID: account.ID,
		Amount:    dec("60"),
		Currency:  "USD",
	})
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("err = %v, want ErrLimitExceeded", err)
	}
	if result.FailureReason != "LIMIT_EXCEEDED" {
		t.Errorf("failure reason = %s, want LIMIT_EXCEEDED", result.FailureReason)
	}
	if got := f.mustGetAccount(t, account.ID).Balance; !got.Equal(dec("940")) {
		t.Errorf("balance = %s, want 940 after one successful withdrawal", got)
	}
}

func TestVelocityBlockTrips(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	account := f.openFunded(t, "cust-1", "1000")

	check := domain.NewVelocityCheck("cust-1", domain.LimitAll, 60, 3)
	if err := f.store.Velocity().Save(ctx, check); err != nil {
		t.Fatalf("save velocity check: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := f.orch.Withdraw(ctx, WithdrawRequest{
			AccountID: account.ID,
			Amount:    dec("10"),
			Currency:  "USD",
		}); err != nil {
			t.Fatalf("withdrawal %d: %v", i+1, err)
		}
	}

	result, err := f.orch.Withdraw(ctx, WithdrawRequest{
		AccountID: account.ID,
		Amount:    dec("10"),
		Currency:  "USD",
	})
	if !errors.Is(err, ErrVelocityBlocked) {
		t.Fatalf("err = %v, want ErrVelocityBlocked", err)
	}
	if result.FailureReason != "VELOCITY_BLOCKED" {
		t.Errorf("failure reason = %s, want VELOCITY_BLOCKED", result.FailureReason)
	}

	// Block persists past the triggering attempt.
	if _, err := f.orch.Withdraw(ctx, WithdrawRequest{
		AccountID: account.ID,
		Amount:    dec("10"),
		Currency:  "USD",
	}); !errors.Is(err, ErrVelocityBlocked) {
		t.Fatalf("err after block = %v, want ErrVelocityBlocked", err)
	}

	if got := f.mustGetAccount(t, account.ID).Balance; !got.Equal(dec("980")) {
		t.Errorf("balance = %s, want 980 after two successful withdrawals", got)
	}
}

func TestFraudAutoBlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	source := f.openFunded(t, "cust-1", "10000")
	dest := f.openFunded(t, "cust-2", "0")

	rule := &domain.FraudRule{
		ID:         "rule-large-amount",
		Name:       "large-amount",
		Type:       domain.RuleAmountThreshold,
		Threshold:  dec("1000"),
		RiskPoints: 80,
		Enabled:    true,
		AutoBlock:  true,
	}
	if err := f.store.FraudRules().Save(ctx, rule); err != nil {
		t.Fatalf("save rule: %v", err)
	}

	result, err := f.orch.Transfer(ctx, TransferRequest{
		FromAccountID: source.ID,
		ToAccountID:   dest.ID,
		Amount:        dec("5000"),
		Currency:      "USD",
	})
	if !errors.Is(err, ErrFraudBlocked) {
		t.Fatalf("err = %v, want ErrFraudBlocked", err)
	}
	if result.FailureReason != "FRAUD_BLOCKED" {
		t.Errorf("failure reason = %s, want FRAUD_BLOCKED", result.FailureReason)
	}
	if got := f.mustGetAccount(t, source.ID).Balance; !got.Equal(dec("10000")) {
		t.Errorf("source balance = %s, want untouched 10000", got)
	}

	alerts, err := f.store.FraudEvents().GetByAccountID(ctx, source.ID)
	if err != nil {
		t.Fatalf("fraud events: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("fraud events = %d, want 1", len(alerts))
	}
	if alerts[0].RiskLevel != domain.RiskCritical {
		t.Errorf("risk level = %s, want CRITICAL", alerts[0].RiskLevel)
	}
}

func TestFraudReviewSettlesProvisionally(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{AllowProvisionalSettlement: true})
	source := f.openFunded(t, "cust-1", "10000")
	dest := f.openFunded(t, "cust-2", "0")

	rule := &domain.FraudRule{
		ID:         "rule-review",
		Name:       "review-threshold",
		Type:       domain.RuleAmountThreshold,
		Threshold:  dec("1000"),
		RiskPoints: 60,
		Enabled:    true,
	}
	if err := f.store.FraudRules().Save(ctx, rule); err != nil {
		t.Fatalf("save rule: %v", err)
	}

	result, err := f.orch.Transfer(ctx, TransferRequest{
		FromAccountID: source.ID,
		ToAccountID:   dest.ID,
		Amount:        dec("2000"),
		Currency:      "USD",
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if result.Status != domain.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", result.Status)
	}

	fresh := f.mustGetAccount(t, dest.ID)
	if !fresh.Balance.Equal(dec("2000")) {
		t.Errorf("dest balance = %s, want 2000", fresh.Balance)
	}
	if !fresh.AvailableBalance.Equal(dec("0")) {
		t.Errorf("dest available = %s, want 0 while under review hold", fresh.AvailableBalance)
	}

	holds, err := f.store.Holds().GetActiveByAccountID(ctx, dest.ID)
	if err != nil {
		t.Fatalf("holds: %v", err)
	}
	if len(holds) != 1 || holds[0].Type != domain.HoldFraudReview {
		t.Fatalf("holds = %+v, want one FRAUD_REVIEW hold", holds)
	}
}

func TestConcurrentOpposingTransfers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	a := f.openFunded(t, "cust-1", "1000")
	b := f.openFunded(t, "cust-2", "1000")

	const rounds = 10
	errCh := make(chan error, rounds)
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		from, to := a.ID, b.ID
		if i%2 == 1 {
			from, to = b.ID, a.ID
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orch.Transfer(ctx, TransferRequest{
				FromAccountID: from,
				ToAccountID:   to,
				Amount:        dec("10"),
				Currency:      "USD",
			})
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("concurrent transfer: %v", err)
		}
	}

	balanceA := f.mustGetAccount(t, a.ID).Balance
	balanceB := f.mustGetAccount(t, b.ID).Balance
	if !balanceA.Add(balanceB).Equal(dec("2000")) {
		t.Errorf("total = %s, want conserved 2000", balanceA.Add(balanceB))
	}
	if !balanceA.Equal(dec("1000")) || !balanceB.Equal(dec("1000")) {
		t.Errorf("balances = %s / %s, want 1000 / 1000 after symmetric rounds", balanceA, balanceB)
	}
}

func TestFailedAccountLookupReleasesKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	account := domain.NewAccount("cust-1", domain.AccountChecking, "USD")
	account.Status = domain.AccountActive

	req := DepositRequest{
		AccountID:      account.ID,
		Amount:         dec("100"),
		Currency:       "USD",
		IdempotencyKey: "dep-early-fail",
	}

	if _, err := f.orch.Deposit(ctx, req); !errors.Is(err, ErrValidation) {
		t.Fatalf("deposit to unknown account: err = %v, want ErrValidation", err)
	}

	if err := f.store.Accounts().Save(ctx, account); err != nil {
		t.Fatalf("save account: %v", err)
	}

	result, err := f.orch.Deposit(ctx, req)
	if err != nil {
		t.Fatalf("retry after account creation: %v", err)
	}
	if result.Status != domain.StatusCompleted {
		t.Errorf("retry status = %s, want COMPLETED", result.Status)
	}
	if result.Duplicate {
		t.Error("retry served as duplicate, want a fresh execution")
	}
}

func TestUnknownAccountRejectedAsValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	source := f.openFunded(t, "cust-1", "500")

	if _, err := f.orch.Withdraw(ctx, WithdrawRequest{
		AccountID: "no-such-account",
		Amount:    dec("10"),
		Currency:  "USD",
	}); !errors.Is(err, ErrValidation) {
		t.Errorf("withdraw: err = %v, want ErrValidation", err)
	}

	if _, err := f.orch.Transfer(ctx, TransferRequest{
		FromAccountID: source.ID,
		ToAccountID:   "no-such-account",
		Amount:        dec("10"),
		Currency:      "USD",
	}); !errors.Is(err, ErrValidation) {
		t.Errorf("transfer to unknown destination: err = %v, want ErrValidation", err)
	}

	if balance := f.mustGetAccount(t, source.ID).Balance; !balance.Equal(dec("500")) {
		t.Errorf("source balance = %s, want untouched 500", balance)
	}
}

func TestConcurrentSameKeyCommitsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	account := f.openFunded(t, "cust-1", "0")

	req := DepositRequest{
		AccountID:      account.ID,
		Amount:         dec("40"),
		Currency:       "USD",
		IdempotencyKey: "dep-race",
	}

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan *TransactionResult, attempts)
	errCh := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.orch.Deposit(ctx, req)
			if err != nil {
				errCh <- err
				return
			}
			results <- result
		}()
	}
	wg.Wait()
	close(results)
	close(errCh)

	fresh := 0
	for result := range results {
		if !result.Duplicate {
			fresh++
		}
	}
	if fresh != 1 {
		t.Errorf("fresh executions = %d, want exactly 1", fresh)
	}
	for err := range errCh {
		if !errors.Is(err, ErrBusy) {
			t.Errorf("concurrent attempt: err = %v, want ErrBusy", err)
		}
	}

	entries, err := f.store.Ledger().GetByAccountID(ctx, account.ID)
	if err != nil {
		t.Fatalf("ledger entries: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("ledger entries = %d, want exactly 1 committed deposit", len(entries))
	}
	if balance := f.mustGetAccount(t, account.ID).Balance; !balance.Equal(dec("40")) {
		t.Errorf("balance = %s, want 40 after a single commit", balance)
	}
}
