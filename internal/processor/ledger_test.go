package processor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
)

func TestLedgerAppendDerivesRunningBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	entry, err := f.ledger.Append(ctx, f.store, "acct-1", "tx-1", domain.EntryCredit, dec("100"), "seed")
	if err != nil {
		t.Fatalf("first append: %v", err)
	}
	if !entry.Balance.Equal(dec("100")) {
		t.Errorf("balance = %s, want 100", entry.Balance)
	}

	entry, err = f.ledger.Append(ctx, f.store, "acct-1", "tx-2", domain.EntryDebit, dec("30"), "spend")
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if !entry.Balance.Equal(dec("70")) {
		t.Errorf("balance = %s, want 70", entry.Balance)
	}

	sum, err := f.ledger.BalanceAsOf(ctx, f.store, "acct-1", time.Now().UTC())
	if err != nil {
		t.Fatalf("balance as of: %v", err)
	}
	if !sum.Equal(dec("70")) {
		t.Errorf("derived balance = %s, want 70", sum)
	}
}

func TestLedgerRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t, Config{})

	_, err := f.ledger.Append(context.Background(), f.store, "acct-1", "tx-1", domain.EntryCredit, dec("0"), "")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestLedgerEntriesAreImmutable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	entry, err := f.ledger.Append(ctx, f.store, "acct-1", "tx-1", domain.EntryCredit, dec("100"), "")
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	dup := *entry
	if err := f.store.Ledger().Append(ctx, &dup); !errors.Is(err, repository.ErrImmutable) {
		t.Fatalf("err = %v, want ErrImmutable on re-append", err)
	}
}

func TestReconcileDetectsDrift(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	account := f.openFunded(t, "cust-1", "100")

	if err := f.ledger.Reconcile(ctx, f.store, []string{account.ID}); err != nil {
		t.Fatalf("reconcile clean account: %v", err)
	}

	// Corrupt the cache without a matching ledger entry.
	account = f.mustGetAccount(t, account.ID)
	account.Balance = dec("999")
	if err := f.store.Accounts().Update(ctx, account); err != nil {
		t.Fatalf("update account: %v", err)
	}

	err := f.ledger.Reconcile(ctx, f.store, []string{account.ID})
	if err == nil {
		t.Fatal("reconcile did not report drift")
	}
	if !strings.Contains(err.Error(), account.ID) {
		t.Errorf("error %q does not name the drifted account", err)
	}
}
