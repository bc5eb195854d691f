package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
)

type transactionRepo struct {
	q querier
}

func (r *transactionRepo) Save(ctx context.Context, tx *domain.Transaction) error {
	var key sql.NullString
	if tx.IdempotencyKey != "" {
		key = sql.NullString{String: tx.IdempotencyKey, Valid: true}
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO transactions (id, reference, type, from_account_id,
			to_account_id, amount, currency, status, idempotency_key,
			balance_before, balance_after, failure_reason, description,
			customer_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.Reference, string(tx.Type), tx.FromAccountID, tx.ToAccountID,
		decToText(tx.Amount), tx.Currency, string(tx.Status), key,
		decToText(tx.BalanceBefore), decToText(tx.BalanceAfter),
		tx.FailureReason, tx.Description, tx.Metadata["customer_id"],
		toMillis(tx.CreatedAt), toMillis(tx.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: transaction %s", repository.ErrDuplicate, tx.ID)
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *transactionRepo) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	return r.getOne(ctx, `WHERE id = ?`, id)
}

func (r *transactionRepo) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	return r.getOne(ctx, `WHERE reference = ?`, reference)
}

func (r *transactionRepo) getOne(ctx context.Context, where string, arg any) (*domain.Transaction, error) {
	row := r.q.QueryRowContext(ctx, selectTransaction+where, arg)
	tx, err := scanTransaction(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %v", repository.ErrNotFound, arg)
	}
	return tx, err
}

func (r *transactionRepo) GetByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error) {
	rows, err := r.q.QueryContext(ctx, selectTransaction+`
		WHERE from_account_id = ? OR to_account_id = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		accountID, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	result := []*domain.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return result, nil
}

func (r *transactionRepo) Update(ctx context.Context, tx *domain.Transaction) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE transactions
		SET status = ?, balance_before = ?, balance_after = ?, failure_reason = ?,
			updated_at = ?
		WHERE id = ?`,
		string(tx.Status), decToText(tx.BalanceBefore), decToText(tx.BalanceAfter),
		tx.FailureReason, toMillis(time.Now()), tx.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: transaction %s", repository.ErrNotFound, tx.ID)
	}
	return nil
}

func (r *transactionRepo) CountByCustomerSince(ctx context.Context, customerID string, since time.Time) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM transactions
		WHERE customer_id = ? AND created_at >= ?`,
		customerID, toMillis(since)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return count, nil
}

const selectTransaction = `
	SELECT id, reference, type, from_account_id, to_account_id, amount, currency,
		status, idempotency_key, balance_before, balance_after, failure_reason,
		description, customer_id, created_at, updated_at
	FROM transactions `

func scanTransaction(scan func(dest ...any) error) (*domain.Transaction, error) {
	var (
		tx                    domain.Transaction
		txType, status        string
		amount, before, after string
		key                   sql.NullString
		customerID            string
		createdAt, updatedAt  int64
	)
	err := scan(&tx.ID, &tx.Reference, &txType, &tx.FromAccountID, &tx.ToAccountID,
		&amount, &tx.Currency, &status, &key, &before, &after, &tx.FailureReason,
		&tx.Description, &customerID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	tx.Type = domain.TransactionType(txType)
	tx.Status = domain.TransactionStatus(status)
	tx.IdempotencyKey = key.String
	if tx.Amount, err = decFromText(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	if tx.BalanceBefore, err = decFromText(before); err != nil {
		return nil, fmt.Errorf("parse balance before: %w", err)
	}
	if tx.BalanceAfter, err = decFromText(after); err != nil {
		return nil, fmt.Errorf("parse balance after: %w", err)
	}
	if customerID != "" {
		tx.Metadata = map[string]string{"customer_id": customerID}
	}
	tx.CreatedAt = fromMillis(createdAt)
	tx.UpdatedAt = fromMillis(updatedAt)
	return &tx, nil
}
