package memory

import (
	"context"
	"sync"

	"bankcore/internal/repository"
)

var (
	_ repository.AccountRepository     = (*AccountRepository)(nil)
	_ repository.LedgerRepository      = (*LedgerRepository)(nil)
	_ repository.TransactionRepository = (*TransactionRepository)(nil)
	_ repository.HoldRepository        = (*HoldRepository)(nil)
	_ repository.IdempotencyRepository = (*IdempotencyRepository)(nil)
	_ repository.LimitRepository       = (*LimitRepository)(nil)
	_ repository.VelocityRepository    = (*VelocityRepository)(nil)
	_ repository.FraudRuleRepository   = (*FraudRuleRepository)(nil)
	_ repository.FraudEventRepository  = (*FraudEventRepository)(nil)
	_ repository.Store                 = (*Store)(nil)
)

// Store keeps everything in process memory. Each repository guards its own
// state with an RWMutex; commitMu serializes units of work so a failed unit
// can be rolled back from snapshots without interleaving with another unit.
type Store struct {
	commitMu sync.Mutex

	accounts     *AccountRepository
	ledger       *LedgerRepository
	transactions *TransactionRepository
	holds        *HoldRepository
	idempotency  *IdempotencyRepository
	limits       *LimitRepository
	velocity     *VelocityRepository
	fraudRules   *FraudRuleRepository
	fraudEvents  *FraudEventRepository
}

func NewStore() *Store {
	return &Store{
		accounts:     NewAccountRepository(),
		ledger:       NewLedgerRepository(),
		transactions: NewTransactionRepository(),
		holds:        NewHoldRepository(),
		idempotency:  NewIdempotencyRepository(),
		limits:       NewLimitRepository(),
		velocity:     NewVelocityRepository(),
		fraudRules:   NewFraudRuleRepository(),
		fraudEvents:  NewFraudEventRepository(),
	}
}

func (s *Store) Accounts() repository.AccountRepository         { return s.accounts }
func (s *Store) Ledger() repository.LedgerRepository            { return s.ledger }
func (s *Store) Transactions() repository.TransactionRepository { return s.transactions }
func (s *Store) Holds() repository.HoldRepository               { return s.holds }
func (s *Store) Idempotency() repository.IdempotencyRepository  { return s.idempotency }
func (s *Store) Limits() repository.LimitRepository             { return s.limits }
func (s *Store) Velocity() repository.VelocityRepository        { return s.velocity }
func (s *Store) FraudRules() repository.FraudRuleRepository     { return s.fraudRules }
func (s *Store) FraudEvents() repository.FraudEventRepository   { return s.fraudEvents }

// InTx runs fn as one atomic unit. On error every repository touched inside
// fn is restored from its pre-unit snapshot.
func (s *Store) InTx(ctx context.Context, fn func(repository.Store) error) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	accountsSnap := s.accounts.snapshot()
	ledgerSnap := s.ledger.snapshot()
	transactionsSnap := s.transactions.snapshot()
	holdsSnap := s.holds.snapshot()
	limitsSnap := s.limits.snapshot()

	if err := fn(s); err != nil {
		s.accounts.restore(accountsSnap)
		s.ledger.restore(ledgerSnap)
		s.transactions.restore(transactionsSnap)
		s.holds.restore(holdsSnap)
		s.limits.restore(limitsSnap)
		return err
	}
	return nil
}
