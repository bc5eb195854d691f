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

type idempotencyRepo struct {
	q querier
}

func (r *idempotencyRepo) Insert(ctx context.Context, record *domain.IdempotencyRecord) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO idempotency_records (key, request_hash, status, transaction_id,
			expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		record.Key, record.RequestHash, string(record.Status), record.TransactionID,
		toMillis(record.ExpiresAt), toMillis(record.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: idempotency key %s", repository.ErrDuplicate, record.Key)
		}
		return fmt.Errorf("insert idempotency record: %w", err)
	}
	return nil
}

func (r *idempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	var (
		record               domain.IdempotencyRecord
		status               string
		expiresAt, createdAt int64
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT key, request_hash, status, transaction_id, expires_at, created_at
		FROM idempotency_records WHERE key = ?`, key).
		Scan(&record.Key, &record.RequestHash, &status, &record.TransactionID,
			&expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: idempotency key %s", repository.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	record.Status = domain.IdempotencyStatus(status)
	record.ExpiresAt = fromMillis(expiresAt)
	record.CreatedAt = fromMillis(createdAt)
	return &record, nil
}

func (r *idempotencyRepo) Update(ctx context.Context, record *domain.IdempotencyRecord) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE idempotency_records SET status = ?, transaction_id = ? WHERE key = ?`,
		string(record.Status), record.TransactionID, record.Key)
	if err != nil {
		return fmt.Errorf("update idempotency record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update idempotency record: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: idempotency key %s", repository.ErrNotFound, record.Key)
	}
	return nil
}

func (r *idempotencyRepo) Delete(ctx context.Context, key string) error {
	if _, err := r.q.ExecContext(ctx,
		`DELETE FROM idempotency_records WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete idempotency record: %w", err)
	}
	return nil
}

func (r *idempotencyRepo) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM idempotency_records WHERE expires_at < ?`, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("purge idempotency records: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge idempotency records: %w", err)
	}
	return int(affected), nil
}
