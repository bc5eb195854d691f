package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
)

func TestGuardFreshStartThenDuplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	hash := domain.HashRequest("transfer", "a", "b", "100")

	begin, err := f.guard.Begin(ctx, "key-1", hash)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if begin.Outcome != FreshStart {
		t.Fatalf("outcome = %v, want FreshStart", begin.Outcome)
	}

	if err := f.guard.Complete(ctx, "key-1", "tx-1"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	begin, err = f.guard.Begin(ctx, "key-1", hash)
	if err != nil {
		t.Fatalf("begin replay: %v", err)
	}
	if begin.Outcome != Duplicate {
		t.Fatalf("outcome = %v, want Duplicate", begin.Outcome)
	}
	if begin.TransactionID != "tx-1" {
		t.Errorf("transaction id = %s, want tx-1", begin.TransactionID)
	}
}

func TestGuardInFlightRejectsSecondAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	hash := domain.HashRequest("withdraw", "a", "50")

	if _, err := f.guard.Begin(ctx, "key-2", hash); err != nil {
		t.Fatalf("begin: %v", err)
	}

	_, err := f.guard.Begin(ctx, "key-2", hash)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy while first attempt is pending", err)
	}
}

func TestGuardHashMismatchConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	if _, err := f.guard.Begin(ctx, "key-3", domain.HashRequest("deposit", "a", "10")); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := f.guard.Complete(ctx, "key-3", "tx-3"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	_, err := f.guard.Begin(ctx, "key-3", domain.HashRequest("deposit", "a", "20"))
	if !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("err = %v, want ErrIdempotencyConflict", err)
	}
}

func TestGuardFailedRecordRetriesFresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	hash := domain.HashRequest("transfer", "a", "b", "100")

	if _, err := f.guard.Begin(ctx, "key-4", hash); err != nil {
		t.Fatalf("begin: %v", err)
	}
	f.guard.Fail(ctx, "key-4", "tx-4", false)

	begin, err := f.guard.Begin(ctx, "key-4", hash)
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if begin.Outcome != FreshStart {
		t.Fatalf("outcome = %v, want FreshStart after FAILED record", begin.Outcome)
	}
}

func TestGuardTransientFailureReleasesKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	hash := domain.HashRequest("transfer", "a", "b", "100")

	if _, err := f.guard.Begin(ctx, "key-5", hash); err != nil {
		t.Fatalf("begin: %v", err)
	}
	f.guard.Fail(ctx, "key-5", "", true)

	begin, err := f.guard.Begin(ctx, "key-5", hash)
	if err != nil {
		t.Fatalf("retry after transient failure: %v", err)
	}
	if begin.Outcome != FreshStart {
		t.Fatalf("outcome = %v, want FreshStart", begin.Outcome)
	}
}

func TestGuardEmptyKeySkipsDeduplication(t *testing.T) {
	f := newFixture(t, Config{})

	for i := 0; i < 3; i++ {
		begin, err := f.guard.Begin(context.Background(), "", "hash")
		if err != nil {
			t.Fatalf("begin %d: %v", i, err)
		}
		if begin.Outcome != FreshStart {
			t.Fatalf("outcome = %v, want FreshStart for empty key", begin.Outcome)
		}
	}
}

func TestRunPurgerRemovesExpiredRecords(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, Config{})

	record := domain.NewIdempotencyRecord("stale-key", "hash-1", -time.Minute)
	if err := f.store.Idempotency().Insert(ctx, record); err != nil {
		t.Fatalf("insert: %v", err)
	}

	go f.guard.RunPurger(ctx, 5*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := f.store.Idempotency().Get(ctx, "stale-key"); errors.Is(err, repository.ErrNotFound) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expired idempotency record was never purged")
}
