package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"bankcore/internal/domain"
)

type AccountRepository interface {
	Save(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByNumber(ctx context.Context, number string) (*domain.Account, error)
	GetByCustomerID(ctx context.Context, customerID string) ([]*domain.Account, error)
	// Update performs a compare-and-swap on the account version: it fails
	// with ErrVersionConflict unless the stored version matches
	// account.Version, then stores the record with the version bumped.
	Update(ctx context.Context, account *domain.Account) error
}

type LedgerRepository interface {
	Append(ctx context.Context, entry *domain.LedgerEntry) error
	GetByAccountID(ctx context.Context, accountID string) ([]*domain.LedgerEntry, error)
	GetByTransactionID(ctx context.Context, transactionID string) ([]*domain.LedgerEntry, error)
	// SumByAccountID returns the signed sum (credits minus debits) of all
	// entries for the account up to and including asOf.
	SumByAccountID(ctx context.Context, accountID string, asOf time.Time) (decimal.Decimal, error)
}

type TransactionRepository interface {
	Save(ctx context.Context, tx *domain.Transaction) error
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	GetByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error)
	Update(ctx context.Context, tx *domain.Transaction) error
	CountByCustomerSince(ctx context.Context, customerID string, since time.Time) (int, error)
}

type HoldRepository interface {
	Save(ctx context.Context, hold *domain.Hold) error
	GetByID(ctx context.Context, id string) (*domain.Hold, error)
	GetActiveByAccountID(ctx context.Context, accountID string) ([]*domain.Hold, error)
	Update(ctx context.Context, hold *domain.Hold) error
	GetExpired(ctx context.Context, now time.Time) ([]*domain.Hold, error)
}

type IdempotencyRepository interface {
	// Insert fails with ErrDuplicate when the key already exists; the
	// unique-key constraint is the concurrency gate.
	Insert(ctx context.Context, record *domain.IdempotencyRecord) error
	Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
	Update(ctx context.Context, record *domain.IdempotencyRecord) error
	Delete(ctx context.Context, key string) error
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

type LimitRepository interface {
	Save(ctx context.Context, limit *domain.TransactionLimit) error
	Get(ctx context.Context, customerID string, limitType domain.LimitType) (*domain.TransactionLimit, error)
	Update(ctx context.Context, limit *domain.TransactionLimit) error
}

type VelocityRepository interface {
	Save(ctx context.Context, check *domain.VelocityCheck) error
	Get(ctx context.Context, customerID string, checkType domain.LimitType) (*domain.VelocityCheck, error)
	Update(ctx context.Context, check *domain.VelocityCheck) error
}

type FraudRuleRepository interface {
	Save(ctx context.Context, rule *domain.FraudRule) error
	GetEnabled(ctx context.Context) ([]*domain.FraudRule, error)
}

type FraudEventRepository interface {
	Save(ctx context.Context, event *domain.FraudEvent) error
	GetByAccountID(ctx context.Context, accountID string) ([]*domain.FraudEvent, error)
}

// Store bundles the repositories behind one storage backend. InTx runs fn as
// one atomic unit of work: either every write inside fn is visible afterwards
// or none is.
type Store interface {
	Accounts() AccountRepository
	Ledger() LedgerRepository
	Transactions() TransactionRepository
	Holds() HoldRepository
	Idempotency() IdempotencyRepository
	Limits() LimitRepository
	Velocity() VelocityRepository
	FraudRules() FraudRuleRepository
	FraudEvents() FraudEventRepository
	InTx(ctx context.Context, fn func(Store) error) error
}

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicate       = errors.New("duplicate entry")
	ErrVersionConflict = errors.New("version conflict")
	ErrImmutable       = errors.New("ledger entries are immutable")
)
