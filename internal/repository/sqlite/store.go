// Package sqlite persists the banking core state in SQLite via database/sql.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"bankcore/internal/repository"
)

var _ repository.Store = (*Store)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx so every repository method
// works inside and outside a unit of work.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	sqlDB *sql.DB
	q     querier
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB, q: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Accounts() repository.AccountRepository         { return &accountRepo{q: s.q} }
func (s *Store) Ledger() repository.LedgerRepository            { return &ledgerRepo{q: s.q} }
func (s *Store) Transactions() repository.TransactionRepository { return &transactionRepo{q: s.q} }
func (s *Store) Holds() repository.HoldRepository               { return &holdRepo{q: s.q} }
func (s *Store) Idempotency() repository.IdempotencyRepository  { return &idempotencyRepo{q: s.q} }
func (s *Store) Limits() repository.LimitRepository             { return &limitRepo{q: s.q} }
func (s *Store) Velocity() repository.VelocityRepository        { return &velocityRepo{q: s.q} }
func (s *Store) FraudRules() repository.FraudRuleRepository     { return &fraudRuleRepo{q: s.q} }
func (s *Store) FraudEvents() repository.FraudEventRepository   { return &fraudEventRepo{q: s.q} }

// InTx runs fn inside a single SQL transaction. fn receives a Store view whose
// repositories are bound to the transaction.
func (s *Store) InTx(ctx context.Context, fn func(repository.Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		// Already inside a transaction; run in the same one.
		return fn(s)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txStore := &Store{sqlDB: s.sqlDB, q: tx}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func decToText(value decimal.Decimal) string {
	return value.String()
}

func decFromText(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(value)
}

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE ||
			code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	account_number TEXT NOT NULL UNIQUE,
	customer_id TEXT NOT NULL,
	type TEXT NOT NULL,
	balance TEXT NOT NULL,
	available_balance TEXT NOT NULL,
	minimum_balance TEXT NOT NULL,
	overdraft_limit TEXT NOT NULL,
	currency TEXT NOT NULL,
	status TEXT NOT NULL,
	version INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_accounts_customer ON accounts(customer_id);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	transaction_id TEXT NOT NULL,
	type TEXT NOT NULL,
	amount TEXT NOT NULL,
	balance TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_account ON ledger_entries(account_id, created_at);
CREATE INDEX IF NOT EXISTS idx_ledger_transaction ON ledger_entries(transaction_id);

CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	reference TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL,
	from_account_id TEXT NOT NULL DEFAULT '',
	to_account_id TEXT NOT NULL DEFAULT '',
	amount TEXT NOT NULL,
	currency TEXT NOT NULL,
	status TEXT NOT NULL,
	idempotency_key TEXT,
	balance_before TEXT NOT NULL DEFAULT '0',
	balance_after TEXT NOT NULL DEFAULT '0',
	failure_reason TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	customer_id TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_from ON transactions(from_account_id);
CREATE INDEX IF NOT EXISTS idx_transactions_to ON transactions(to_account_id);
CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions(customer_id, created_at);

CREATE TABLE IF NOT EXISTS holds (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	transaction_id TEXT NOT NULL DEFAULT '',
	amount TEXT NOT NULL,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_holds_account ON holds(account_id, status);
CREATE INDEX IF NOT EXISTS idx_holds_expiry ON holds(status, expires_at);

CREATE TABLE IF NOT EXISTS idempotency_records (
	key TEXT PRIMARY KEY,
	request_hash TEXT NOT NULL,
	status TEXT NOT NULL,
	transaction_id TEXT NOT NULL DEFAULT '',
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS transaction_limits (
	customer_id TEXT NOT NULL,
	limit_type TEXT NOT NULL,
	daily_limit TEXT NOT NULL,
	per_transaction_limit TEXT NOT NULL,
	monthly_limit TEXT NOT NULL,
	remaining_daily TEXT NOT NULL,
	remaining_monthly TEXT NOT NULL,
	last_daily_reset INTEGER NOT NULL,
	last_monthly_reset INTEGER NOT NULL,
	PRIMARY KEY (customer_id, limit_type)
);

CREATE TABLE IF NOT EXISTS velocity_checks (
	customer_id TEXT NOT NULL,
	check_type TEXT NOT NULL,
	window_minutes INTEGER NOT NULL,
	max_count INTEGER NOT NULL,
	current_count INTEGER NOT NULL,
	window_start INTEGER NOT NULL,
	blocked_until INTEGER NOT NULL,
	PRIMARY KEY (customer_id, check_type)
);

CREATE TABLE IF NOT EXISTS fraud_rules (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	threshold TEXT NOT NULL,
	window_minutes INTEGER NOT NULL,
	risk_points INTEGER NOT NULL,
	enabled INTEGER NOT NULL,
	auto_block INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS fraud_events (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	customer_id TEXT NOT NULL,
	transaction_id TEXT NOT NULL DEFAULT '',
	risk_score INTEGER NOT NULL,
	risk_level TEXT NOT NULL,
	flags TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fraud_events_account ON fraud_events(account_id, created_at);
`
