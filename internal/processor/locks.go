package processor

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// lockTable hands out one lock per account id. Callers always acquire in
// ascending id order regardless of transfer direction, so two concurrent
// transfers over the same pair can never deadlock.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{
		locks: make(map[string]chan struct{}),
	}
}

func (t *lockTable) lockFor(id string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, ok := t.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		t.locks[id] = ch
	}
	return ch
}

// Acquire locks the given accounts in canonical order. It returns a release
// function, or ErrBusy when the context expires while waiting.
func (t *lockTable) Acquire(ctx context.Context, accountIDs ...string) (func(), error) {
	ids := make([]string, 0, len(accountIDs))
	seen := make(map[string]struct{}, len(accountIDs))
	for _, id := range accountIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var held []chan struct{}
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for _, id := range ids {
		ch := t.lockFor(id)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-ctx.Done():
			release()
			return nil, fmt.Errorf("%w: lock on account %s: %v", ErrBusy, id, ctx.Err())
		}
	}
	return release, nil
}
