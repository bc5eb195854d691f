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

type holdRepo struct {
	q querier
}

func (r *holdRepo) Save(ctx context.Context, hold *domain.Hold) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO holds (id, account_id, transaction_id, amount, type, status,
			expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hold.ID, hold.AccountID, hold.TransactionID, decToText(hold.Amount),
		string(hold.Type), string(hold.Status), toMillis(hold.ExpiresAt),
		toMillis(hold.CreatedAt), toMillis(hold.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: hold %s", repository.ErrDuplicate, hold.ID)
		}
		return fmt.Errorf("insert hold: %w", err)
	}
	return nil
}

func (r *holdRepo) GetByID(ctx context.Context, id string) (*domain.Hold, error) {
	row := r.q.QueryRowContext(ctx, selectHold+`WHERE id = ?`, id)
	hold, err := scanHold(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: hold %s", repository.ErrNotFound, id)
	}
	return hold, err
}

func (r *holdRepo) GetActiveByAccountID(ctx context.Context, accountID string) ([]*domain.Hold, error) {
	return r.query(ctx, `WHERE account_id = ? AND status = ?`,
		accountID, string(domain.HoldActive))
}

func (r *holdRepo) GetExpired(ctx context.Context, now time.Time) ([]*domain.Hold, error) {
	return r.query(ctx, `WHERE status = ? AND expires_at < ?`,
		string(domain.HoldActive), toMillis(now))
}

func (r *holdRepo) query(ctx context.Context, where string, args ...any) ([]*domain.Hold, error) {
	rows, err := r.q.QueryContext(ctx, selectHold+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query holds: %w", err)
	}
	defer rows.Close()

	var result []*domain.Hold
	for rows.Next() {
		hold, err := scanHold(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, hold)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holds: %w", err)
	}
	return result, nil
}

func (r *holdRepo) Update(ctx context.Context, hold *domain.Hold) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE holds SET status = ?, expires_at = ?, updated_at = ? WHERE id = ?`,
		string(hold.Status), toMillis(hold.ExpiresAt), toMillis(time.Now()), hold.ID)
	if err != nil {
		return fmt.Errorf("update hold: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update hold: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: hold %s", repository.ErrNotFound, hold.ID)
	}
	return nil
}

const selectHold = `
	SELECT id, account_id, transaction_id, amount, type, status, expires_at,
		created_at, updated_at
	FROM holds `

func scanHold(scan func(dest ...any) error) (*domain.Hold, error) {
	var (
		hold                            domain.Hold
		amount, holdType, status        string
		expiresAt, createdAt, updatedAt int64
	)
	err := scan(&hold.ID, &hold.AccountID, &hold.TransactionID, &amount,
		&holdType, &status, &expiresAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	hold.Type = domain.HoldType(holdType)
	hold.Status = domain.HoldStatus(status)
	if hold.Amount, err = decFromText(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	hold.ExpiresAt = fromMillis(expiresAt)
	hold.CreatedAt = fromMillis(createdAt)
	hold.UpdatedAt = fromMillis(updatedAt)
	return &hold, nil
}
