package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
)

type limitRepo struct {
	q querier
}

func (r *limitRepo) Save(ctx context.Context, limit *domain.TransactionLimit) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO transaction_limits (customer_id, limit_type, daily_limit,
			per_transaction_limit, monthly_limit, remaining_daily,
			remaining_monthly, last_daily_reset, last_monthly_reset)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		limit.CustomerID, string(limit.LimitType), decToText(limit.DailyLimit),
		decToText(limit.PerTransactionLimit), decToText(limit.MonthlyLimit),
		decToText(limit.RemainingDaily), decToText(limit.RemainingMonthly),
		toMillis(limit.LastDailyReset), toMillis(limit.LastMonthlyReset))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: limit %s/%s", repository.ErrDuplicate, limit.CustomerID, limit.LimitType)
		}
		return fmt.Errorf("insert limit: %w", err)
	}
	return nil
}

func (r *limitRepo) Get(ctx context.Context, customerID string, limitType domain.LimitType) (*domain.TransactionLimit, error) {
	var (
		limit                                       domain.TransactionLimit
		lt                                          string
		daily, perTx, monthly, remDaily, remMonthly string
		lastDaily, lastMonthly                      int64
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT customer_id, limit_type, daily_limit, per_transaction_limit,
			monthly_limit, remaining_daily, remaining_monthly,
			last_daily_reset, last_monthly_reset
		FROM transaction_limits WHERE customer_id = ? AND limit_type = ?`,
		customerID, string(limitType)).
		Scan(&limit.CustomerID, &lt, &daily, &perTx, &monthly, &remDaily,
			&remMonthly, &lastDaily, &lastMonthly)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: limit %s/%s", repository.ErrNotFound, customerID, limitType)
	}
	if err != nil {
		return nil, fmt.Errorf("get limit: %w", err)
	}
	limit.LimitType = domain.LimitType(lt)
	if limit.DailyLimit, err = decFromText(daily); err != nil {
		return nil, fmt.Errorf("parse daily limit: %w", err)
	}
	if limit.PerTransactionLimit, err = decFromText(perTx); err != nil {
		return nil, fmt.Errorf("parse per-transaction limit: %w", err)
	}
	if limit.MonthlyLimit, err = decFromText(monthly); err != nil {
		return nil, fmt.Errorf("parse monthly limit: %w", err)
	}
	if limit.RemainingDaily, err = decFromText(remDaily); err != nil {
		return nil, fmt.Errorf("parse remaining daily: %w", err)
	}
	if limit.RemainingMonthly, err = decFromText(remMonthly); err != nil {
		return nil, fmt.Errorf("parse remaining monthly: %w", err)
	}
	limit.LastDailyReset = fromMillis(lastDaily)
	limit.LastMonthlyReset = fromMillis(lastMonthly)
	return &limit, nil
}

func (r *limitRepo) Update(ctx context.Context, limit *domain.TransactionLimit) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE transaction_limits
		SET daily_limit = ?, per_transaction_limit = ?, monthly_limit = ?,
			remaining_daily = ?, remaining_monthly = ?, last_daily_reset = ?,
			last_monthly_reset = ?
		WHERE customer_id = ? AND limit_type = ?`,
		decToText(limit.DailyLimit), decToText(limit.PerTransactionLimit),
		decToText(limit.MonthlyLimit), decToText(limit.RemainingDaily),
		decToText(limit.RemainingMonthly), toMillis(limit.LastDailyReset),
		toMillis(limit.LastMonthlyReset), limit.CustomerID, string(limit.LimitType))
	if err != nil {
		return fmt.Errorf("update limit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update limit: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: limit %s/%s", repository.ErrNotFound, limit.CustomerID, limit.LimitType)
	}
	return nil
}

type velocityRepo struct {
	q querier
}

func (r *velocityRepo) Save(ctx context.Context, check *domain.VelocityCheck) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO velocity_checks (customer_id, check_type, window_minutes,
			max_count, current_count, window_start, blocked_until)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		check.CustomerID, string(check.CheckType), check.WindowMinutes,
		check.MaxCount, check.CurrentCount, toMillis(check.WindowStart),
		toMillis(check.BlockedUntil))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: velocity check %s/%s", repository.ErrDuplicate, check.CustomerID, check.CheckType)
		}
		return fmt.Errorf("insert velocity check: %w", err)
	}
	return nil
}

func (r *velocityRepo) Get(ctx context.Context, customerID string, checkType domain.LimitType) (*domain.VelocityCheck, error) {
	var (
		check                     domain.VelocityCheck
		ct                        string
		windowStart, blockedUntil int64
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT customer_id, check_type, window_minutes, max_count, current_count,
			window_start, blocked_until
		FROM velocity_checks WHERE customer_id = ? AND check_type = ?`,
		customerID, string(checkType)).
		Scan(&check.CustomerID, &ct, &check.WindowMinutes, &check.MaxCount,
			&check.CurrentCount, &windowStart, &blockedUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: velocity check %s/%s", repository.ErrNotFound, customerID, checkType)
	}
	if err != nil {
		return nil, fmt.Errorf("get velocity check: %w", err)
	}
	check.CheckType = domain.LimitType(ct)
	check.WindowStart = fromMillis(windowStart)
	check.BlockedUntil = fromMillis(blockedUntil)
	return &check, nil
}

func (r *velocityRepo) Update(ctx context.Context, check *domain.VelocityCheck) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE velocity_checks
		SET window_minutes = ?, max_count = ?, current_count = ?,
			window_start = ?, blocked_until = ?
		WHERE customer_id = ? AND check_type = ?`,
		check.WindowMinutes, check.MaxCount, check.CurrentCount,
		toMillis(check.WindowStart), toMillis(check.BlockedUntil),
		check.CustomerID, string(check.CheckType))
	if err != nil {
		return fmt.Errorf("update velocity check: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update velocity check: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: velocity check %s/%s", repository.ErrNotFound, check.CustomerID, check.CheckType)
	}
	return nil
}
