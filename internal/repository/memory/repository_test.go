package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func activeAccount(customerID string) *domain.Account {
	account := domain.NewAccount(customerID, domain.AccountChecking, "USD")
	account.Status = domain.AccountActive
	return account
}

func TestAccountSaveAndLookup(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository()
	account := activeAccount("cust-1")

	if err := repo.Save(ctx, account); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.GetByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.CustomerID != "cust-1" || got.AccountNumber != account.AccountNumber {
		t.Errorf("got %+v, want saved account", got)
	}

	byNumber, err := repo.GetByNumber(ctx, account.AccountNumber)
	if err != nil {
		t.Fatalf("get by number: %v", err)
	}
	if byNumber.ID != account.ID {
		t.Errorf("number lookup returned %s, want %s", byNumber.ID, account.ID)
	}

	if err := repo.Save(ctx, account); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("duplicate save err = %v, want ErrDuplicate", err)
	}
}

func TestAccountReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository()
	account := activeAccount("cust-1")
	if err := repo.Save(ctx, account); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, _ := repo.GetByID(ctx, account.ID)
	got.Balance = dec("9999")

	fresh, _ := repo.GetByID(ctx, account.ID)
	if !fresh.Balance.IsZero() {
		t.Errorf("stored balance mutated through a returned copy: %s", fresh.Balance)
	}
}

func TestAccountUpdateVersionConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository()
	account := activeAccount("cust-1")
	if err := repo.Save(ctx, account); err != nil {
		t.Fatalf("save: %v", err)
	}

	first, _ := repo.GetByID(ctx, account.ID)
	second, _ := repo.GetByID(ctx, account.ID)

	first.Balance = dec("100")
	if err := repo.Update(ctx, first); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if first.Version != account.Version+1 {
		t.Errorf("version = %d, want bumped to %d", first.Version, account.Version+1)
	}

	second.Balance = dec("200")
	if err := repo.Update(ctx, second); !errors.Is(err, repository.ErrVersionConflict) {
		t.Fatalf("stale update err = %v, want ErrVersionConflict", err)
	}

	fresh, _ := repo.GetByID(ctx, account.ID)
	if !fresh.Balance.Equal(dec("100")) {
		t.Errorf("balance = %s, want the first write's 100", fresh.Balance)
	}
}

func TestLedgerAppendOnly(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepository()
	entry := domain.NewLedgerEntry("acct-1", "tx-1", domain.EntryCredit, dec("100"), dec("100"), "")

	if err := repo.Append(ctx, entry); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := repo.Append(ctx, entry); !errors.Is(err, repository.ErrImmutable) {
		t.Fatalf("re-append err = %v, want ErrImmutable", err)
	}
}

func TestLedgerSumRespectsAsOf(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepository()

	old := domain.NewLedgerEntry("acct-1", "tx-1", domain.EntryCredit, dec("100"), dec("100"), "")
	old.CreatedAt = time.Now().UTC().Add(-time.Hour)
	recent := domain.NewLedgerEntry("acct-1", "tx-2", domain.EntryDebit, dec("30"), dec("70"), "")
	other := domain.NewLedgerEntry("acct-2", "tx-3", domain.EntryCredit, dec("500"), dec("500"), "")

	for _, entry := range []*domain.LedgerEntry{old, recent, other} {
		if err := repo.Append(ctx, entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	sum, err := repo.SumByAccountID(ctx, "acct-1", time.Now().UTC())
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if !sum.Equal(dec("70")) {
		t.Errorf("sum = %s, want 70", sum)
	}

	past, err := repo.SumByAccountID(ctx, "acct-1", time.Now().UTC().Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("sum as of past: %v", err)
	}
	if !past.Equal(dec("100")) {
		t.Errorf("sum as of past = %s, want only the old credit 100", past)
	}
}

func TestTransactionReferenceLookup(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepository()
	tx := domain.NewTransaction(domain.TypeDeposit, dec("50"), "USD").WithAccounts("", "acct-1")

	if err := repo.Save(ctx, tx); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.GetByReference(ctx, tx.Reference)
	if err != nil {
		t.Fatalf("get by reference: %v", err)
	}
	if got.ID != tx.ID {
		t.Errorf("reference lookup returned %s, want %s", got.ID, tx.ID)
	}
}

func TestTransactionCountByCustomerSince(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepository()

	for i := 0; i < 3; i++ {
		tx := domain.NewTransaction(domain.TypeTransfer, dec("10"), "USD")
		tx.AddMetadata("customer_id", "cust-1")
		if err := repo.Save(ctx, tx); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	stale := domain.NewTransaction(domain.TypeTransfer, dec("10"), "USD")
	stale.AddMetadata("customer_id", "cust-1")
	stale.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	if err := repo.Save(ctx, stale); err != nil {
		t.Fatalf("save stale: %v", err)
	}

	count, err := repo.CountByCustomerSince(ctx, "cust-1", time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3 inside the window", count)
	}
}

func TestHoldGetExpired(t *testing.T) {
	ctx := context.Background()
	repo := NewHoldRepository()

	live := domain.NewHold("acct-1", "", dec("10"), domain.HoldPendingTransaction, time.Hour)
	expired := domain.NewHold("acct-1", "", dec("20"), domain.HoldPendingTransaction, -time.Minute)
	released := domain.NewHold("acct-1", "", dec("30"), domain.HoldPendingTransaction, -time.Minute)
	released.Status = domain.HoldReleased

	for _, hold := range []*domain.Hold{live, expired, released} {
		if err := repo.Save(ctx, hold); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got, err := repo.GetExpired(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("get expired: %v", err)
	}
	if len(got) != 1 || got[0].ID != expired.ID {
		t.Errorf("expired = %+v, want only the active overdue hold", got)
	}
}

func TestIdempotencyInsertIsUniqueGate(t *testing.T) {
	ctx := context.Background()
	repo := NewIdempotencyRepository()
	record := domain.NewIdempotencyRecord("key-1", "hash", time.Hour)

	if err := repo.Insert(ctx, record); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.Insert(ctx, record); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("second insert err = %v, want ErrDuplicate", err)
	}

	purged, err := repo.PurgeExpired(ctx, time.Now().UTC().Add(2*time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}
	if _, err := repo.Get(ctx, "key-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("get after purge err = %v, want ErrNotFound", err)
	}
}

func TestInTxRollsBackAllRepositories(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	boom := errors.New("boom")

	account := activeAccount("cust-1")
	if err := store.Accounts().Save(ctx, account); err != nil {
		t.Fatalf("save account: %v", err)
	}

	err := store.InTx(ctx, func(s repository.Store) error {
		fresh, err := s.Accounts().GetByID(ctx, account.ID)
		if err != nil {
			return err
		}
		fresh.Balance = dec("100")
		if err := s.Accounts().Update(ctx, fresh); err != nil {
			return err
		}
		entry := domain.NewLedgerEntry(account.ID, "tx-1", domain.EntryCredit, dec("100"), dec("100"), "")
		if err := s.Ledger().Append(ctx, entry); err != nil {
			return err
		}
		extra := activeAccount("cust-2")
		if err := s.Accounts().Save(ctx, extra); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the unit's own error", err)
	}

	fresh, err := store.Accounts().GetByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("get account after rollback: %v", err)
	}
	if !fresh.Balance.IsZero() {
		t.Errorf("balance = %s, want rolled back to 0", fresh.Balance)
	}

	entries, err := store.Ledger().GetByAccountID(ctx, account.ID)
	if err != nil {
		t.Fatalf("ledger after rollback: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("ledger entries = %d, want 0 after rollback", len(entries))
	}

	if _, err := store.Accounts().GetByCustomerID(ctx, "cust-2"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("rolled-back account lookup err = %v, want ErrNotFound", err)
	}
}

func TestInTxCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	account := activeAccount("cust-1")
	if err := store.Accounts().Save(ctx, account); err != nil {
		t.Fatalf("save account: %v", err)
	}

	err := store.InTx(ctx, func(s repository.Store) error {
		fresh, err := s.Accounts().GetByID(ctx, account.ID)
		if err != nil {
			return err
		}
		fresh.Balance = dec("250")
		fresh.AvailableBalance = dec("250")
		return s.Accounts().Update(ctx, fresh)
	})
	if err != nil {
		t.Fatalf("unit: %v", err)
	}

	fresh, _ := store.Accounts().GetByID(ctx, account.ID)
	if !fresh.Balance.Equal(dec("250")) {
		t.Errorf("balance = %s, want committed 250", fresh.Balance)
	}
}
