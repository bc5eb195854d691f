package sqlite

import (
	"context"
	"fmt"
	"strings"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
)

type fraudRuleRepo struct {
	q querier
}

func (r *fraudRuleRepo) Save(ctx context.Context, rule *domain.FraudRule) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO fraud_rules (id, name, type, threshold, window_minutes,
			risk_points, enabled, auto_block)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Name, string(rule.Type), decToText(rule.Threshold),
		rule.WindowMinutes, rule.RiskPoints, boolToInt(rule.Enabled),
		boolToInt(rule.AutoBlock))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: fraud rule %s", repository.ErrDuplicate, rule.ID)
		}
		return fmt.Errorf("insert fraud rule: %w", err)
	}
	return nil
}

func (r *fraudRuleRepo) GetEnabled(ctx context.Context) ([]*domain.FraudRule, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, name, type, threshold, window_minutes, risk_points, enabled, auto_block
		FROM fraud_rules WHERE enabled = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query fraud rules: %w", err)
	}
	defer rows.Close()

	var result []*domain.FraudRule
	for rows.Next() {
		var (
			rule               domain.FraudRule
			ruleType           string
			threshold          string
			enabled, autoBlock int
		)
		if err := rows.Scan(&rule.ID, &rule.Name, &ruleType, &threshold,
			&rule.WindowMinutes, &rule.RiskPoints, &enabled, &autoBlock); err != nil {
			return nil, fmt.Errorf("scan fraud rule: %w", err)
		}
		rule.Type = domain.FraudRuleType(ruleType)
		if rule.Threshold, err = decFromText(threshold); err != nil {
			return nil, fmt.Errorf("parse threshold: %w", err)
		}
		rule.Enabled = enabled != 0
		rule.AutoBlock = autoBlock != 0
		result = append(result, &rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fraud rules: %w", err)
	}
	return result, nil
}

type fraudEventRepo struct {
	q querier
}

func (r *fraudEventRepo) Save(ctx context.Context, event *domain.FraudEvent) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO fraud_events (id, account_id, customer_id, transaction_id,
			risk_score, risk_level, flags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.AccountID, event.CustomerID, event.TransactionID,
		event.RiskScore, string(event.RiskLevel), strings.Join(event.Flags, ","),
		toMillis(event.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: fraud event %s", repository.ErrDuplicate, event.ID)
		}
		return fmt.Errorf("insert fraud event: %w", err)
	}
	return nil
}

func (r *fraudEventRepo) GetByAccountID(ctx context.Context, accountID string) ([]*domain.FraudEvent, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, account_id, customer_id, transaction_id, risk_score, risk_level,
			flags, created_at
		FROM fraud_events WHERE account_id = ? ORDER BY created_at`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query fraud events: %w", err)
	}
	defer rows.Close()

	var result []*domain.FraudEvent
	for rows.Next() {
		var (
			event            domain.FraudEvent
			level, flagsText string
			createdAt        int64
		)
		if err := rows.Scan(&event.ID, &event.AccountID, &event.CustomerID,
			&event.TransactionID, &event.RiskScore, &level, &flagsText, &createdAt); err != nil {
			return nil, fmt.Errorf("scan fraud event: %w", err)
		}
		event.RiskLevel = domain.RiskLevel(level)
		if flagsText != "" {
			event.Flags = strings.Split(flagsText, ",")
		}
		event.CreatedAt = fromMillis(createdAt)
		result = append(result, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fraud events: %w", err)
	}
	return result, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
