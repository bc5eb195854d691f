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

type accountRepo struct {
	q querier
}

func (r *accountRepo) Save(ctx context.Context, account *domain.Account) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO accounts (id, account_number, customer_id, type, balance,
			available_balance, minimum_balance, overdraft_limit, currency,
			status, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID, account.AccountNumber, account.CustomerID, string(account.Type),
		decToText(account.Balance), decToText(account.AvailableBalance),
		decToText(account.MinimumBalance), decToText(account.OverdraftLimit),
		account.Currency, string(account.Status), account.Version,
		toMillis(account.CreatedAt), toMillis(account.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: account %s", repository.ErrDuplicate, account.ID)
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *accountRepo) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.getOne(ctx, `WHERE id = ?`, id)
}

func (r *accountRepo) GetByNumber(ctx context.Context, number string) (*domain.Account, error) {
	return r.getOne(ctx, `WHERE account_number = ?`, number)
}

func (r *accountRepo) getOne(ctx context.Context, where string, arg any) (*domain.Account, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, account_number, customer_id, type, balance, available_balance,
			minimum_balance, overdraft_limit, currency, status, version,
			created_at, updated_at
		FROM accounts `+where, arg)
	account, err := scanAccount(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %v", repository.ErrNotFound, arg)
	}
	return account, err
}

func (r *accountRepo) GetByCustomerID(ctx context.Context, customerID string) ([]*domain.Account, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, account_number, customer_id, type, balance, available_balance,
			minimum_balance, overdraft_limit, currency, status, version,
			created_at, updated_at
		FROM accounts WHERE customer_id = ? ORDER BY created_at`, customerID)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var result []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: customer %s", repository.ErrNotFound, customerID)
	}
	return result, nil
}

func (r *accountRepo) Update(ctx context.Context, account *domain.Account) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE accounts
		SET balance = ?, available_balance = ?, minimum_balance = ?,
			overdraft_limit = ?, currency = ?, status = ?, version = version + 1,
			updated_at = ?
		WHERE id = ? AND version = ?`,
		decToText(account.Balance), decToText(account.AvailableBalance),
		decToText(account.MinimumBalance), decToText(account.OverdraftLimit),
		account.Currency, string(account.Status), toMillis(time.Now()),
		account.ID, account.Version)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if affected == 0 {
		var exists int
		if err := r.q.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM accounts WHERE id = ?`, account.ID).Scan(&exists); err == nil && exists == 0 {
			return fmt.Errorf("%w: account %s", repository.ErrNotFound, account.ID)
		}
		return fmt.Errorf("%w: account %s", repository.ErrVersionConflict, account.ID)
	}
	account.Version++
	return nil
}

func scanAccount(scan func(dest ...any) error) (*domain.Account, error) {
	var (
		account                                domain.Account
		accType, status                        string
		balance, available, minimum, overdraft string
		createdAt, updatedAt                   int64
	)
	err := scan(&account.ID, &account.AccountNumber, &account.CustomerID, &accType,
		&balance, &available, &minimum, &overdraft, &account.Currency, &status,
		&account.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	account.Type = domain.AccountType(accType)
	account.Status = domain.AccountStatus(status)
	if account.Balance, err = decFromText(balance); err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	if account.AvailableBalance, err = decFromText(available); err != nil {
		return nil, fmt.Errorf("parse available balance: %w", err)
	}
	if account.MinimumBalance, err = decFromText(minimum); err != nil {
		return nil, fmt.Errorf("parse minimum balance: %w", err)
	}
	if account.OverdraftLimit, err = decFromText(overdraft); err != nil {
		return nil, fmt.Errorf("parse overdraft limit: %w", err)
	}
	account.CreatedAt = fromMillis(createdAt)
	account.UpdatedAt = fromMillis(updatedAt)
	return &account, nil
}
