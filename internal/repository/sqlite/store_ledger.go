package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
)

type ledgerRepo struct {
	q querier
}

func (r *ledgerRepo) Append(ctx context.Context, entry *domain.LedgerEntry) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, account_id, transaction_id, type, amount,
			balance, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.AccountID, entry.TransactionID, string(entry.Type),
		decToText(entry.Amount), decToText(entry.Balance), entry.Description,
		toMillis(entry.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: ledger entry %s", repository.ErrImmutable, entry.ID)
		}
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

func (r *ledgerRepo) GetByAccountID(ctx context.Context, accountID string) ([]*domain.LedgerEntry, error) {
	return r.query(ctx, `WHERE account_id = ? ORDER BY created_at, id`, accountID)
}

func (r *ledgerRepo) GetByTransactionID(ctx context.Context, transactionID string) ([]*domain.LedgerEntry, error) {
	return r.query(ctx, `WHERE transaction_id = ? ORDER BY created_at, id`, transactionID)
}

func (r *ledgerRepo) query(ctx context.Context, where string, arg any) ([]*domain.LedgerEntry, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, account_id, transaction_id, type, amount, balance, description, created_at
		FROM ledger_entries `+where, arg)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var result []*domain.LedgerEntry
	for rows.Next() {
		var (
			entry           domain.LedgerEntry
			entryType       string
			amount, balance string
			createdAt       int64
		)
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.TransactionID,
			&entryType, &amount, &balance, &entry.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entry.Type = domain.EntryType(entryType)
		if entry.Amount, err = decFromText(amount); err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		if entry.Balance, err = decFromText(balance); err != nil {
			return nil, fmt.Errorf("parse balance: %w", err)
		}
		entry.CreatedAt = fromMillis(createdAt)
		result = append(result, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return result, nil
}

func (r *ledgerRepo) SumByAccountID(ctx context.Context, accountID string, asOf time.Time) (decimal.Decimal, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT type, amount FROM ledger_entries
		WHERE account_id = ? AND created_at <= ?`, accountID, toMillis(asOf))
	if err != nil {
		return decimal.Zero, fmt.Errorf("query ledger sum: %w", err)
	}
	defer rows.Close()

	sum := decimal.Zero
	for rows.Next() {
		var entryType, amountText string
		if err := rows.Scan(&entryType, &amountText); err != nil {
			return decimal.Zero, fmt.Errorf("scan ledger sum: %w", err)
		}
		amount, err := decFromText(amountText)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse amount: %w", err)
		}
		if domain.EntryType(entryType) == domain.EntryDebit {
			sum = sum.Sub(amount)
		} else {
			sum = sum.Add(amount)
		}
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("iterate ledger sum: %w", err)
	}
	return sum, nil
}
