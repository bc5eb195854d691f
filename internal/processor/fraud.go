package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"bankcore/internal/domain"
	"bankcore/internal/events"
	"bankcore/internal/repository"
)

// ScoringContext carries everything a fraud rule may look at.
type ScoringContext struct {
	Transaction *domain.Transaction
	Account     *domain.Account
	CustomerID  string
	Now         time.Time
}

// FraudScorer evaluates every enabled rule independently and sums the points
// into one score. An event is recorded at MEDIUM or above regardless of the
// final recommendation, so the signal history stays complete.
type FraudScorer struct {
	store             repository.Store
	publisher         events.Publisher
	highRiskLocations map[string]struct{}
	blacklist         map[string]struct{}
	logger            *slog.Logger
}

func NewFraudScorer(store repository.Store, publisher events.Publisher, logger *slog.Logger) *FraudScorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &FraudScorer{
		store:             store,
		publisher:         publisher,
		highRiskLocations: make(map[string]struct{}),
		blacklist:         make(map[string]struct{}),
		logger:            logger,
	}
}

func (f *FraudScorer) AddHighRiskLocation(location string) {
	f.highRiskLocations[location] = struct{}{}
}

func (f *FraudScorer) AddBlacklisted(id string) {
	f.blacklist[id] = struct{}{}
}

func (f *FraudScorer) Score(ctx context.Context, sc ScoringContext) (*domain.RiskAssessment, error) {
	if sc.Now.IsZero() {
		sc.Now = time.Now().UTC()
	}

	rules, err := f.store.FraudRules().GetEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fraud rules: %v", ErrStorage, err)
	}

	score := 0
	autoBlock := false
	var triggered []string

	for _, rule := range rules {
		hit, err := f.evaluate(ctx, rule, sc)
		if err != nil {
			f.logger.ErrorContext(ctx, "Fraud rule evaluation failed",
				slog.String("rule_id", rule.ID),
				slog.String("rule_name", rule.Name),
				slog.String("error", err.Error()))
			continue
		}
		if !hit {
			continue
		}
		score += rule.RiskPoints
		triggered = append(triggered, rule.Name)
		if rule.AutoBlock {
			autoBlock = true
		}
		f.logger.InfoContext(ctx, "Fraud rule triggered",
			slog.String("rule_name", rule.Name),
			slog.String("transaction_id", sc.Transaction.ID),
			slog.Int("points", rule.RiskPoints))
	}

	level := domain.RiskLevelForScore(score)
	assessment := &domain.RiskAssessment{
		Score:          score,
		Level:          level,
		TriggeredRules: triggered,
		Recommendation: domain.RecommendAllow,
	}
	switch {
	case autoBlock || level == domain.RiskCritical:
		assessment.Recommendation = domain.RecommendBlock
	case level == domain.RiskHigh:
		assessment.Recommendation = domain.RecommendReview
	}

	if riskRank(level) >= riskRank(domain.RiskMedium) {
		event := domain.NewFraudEvent(sc.Account.ID, sc.CustomerID, sc.Transaction.ID, score, triggered)
		if err := f.store.FraudEvents().Save(ctx, event); err != nil {
			return nil, fmt.Errorf("%w: save fraud event: %v", ErrStorage, err)
		}
		f.publisher.Publish(domain.NewEvent(domain.EventFraudAlert, domain.FraudAlertPayload{
			FraudEventID: event.ID,
			AccountID:    sc.Account.ID,
			CustomerID:   sc.CustomerID,
			RiskLevel:    level,
			RiskScore:    score,
			FraudType:    firstOrEmpty(triggered),
			Amount:       sc.Transaction.Amount,
		}))
	}

	return assessment, nil
}

func (f *FraudScorer) evaluate(ctx context.Context, rule *domain.FraudRule, sc ScoringContext) (bool, error) {
	tx := sc.Transaction
	switch rule.Type {
	case domain.RuleAmountThreshold:
		return tx.Amount.GreaterThanOrEqual(rule.Threshold), nil
	case domain.RuleRoundAmount:
		if tx.Amount.LessThan(rule.Threshold) {
			return false, nil
		}
		return tx.Amount.Mod(decimal.NewFromInt(100)).IsZero(), nil
	case domain.RuleOffHours:
		hour := sc.Now.Hour()
		return hour >= 23 || hour < 6, nil
	case domain.RuleFrequency, domain.RuleRapidSuccession:
		since := sc.Now.Add(-time.Duration(rule.WindowMinutes) * time.Minute)
		count, err := f.store.Transactions().CountByCustomerSince(ctx, sc.CustomerID, since)
		if err != nil {
			return false, err
		}
		return int64(count) >= rule.Threshold.IntPart(), nil
	case domain.RuleGeography:
		location, ok := tx.Metadata["location"]
		if !ok {
			return false, nil
		}
		_, hit := f.highRiskLocations[location]
		return hit, nil
	case domain.RuleBlacklist:
		if _, hit := f.blacklist[tx.ToAccountID]; hit {
			return true, nil
		}
		counterparty, ok := tx.Metadata["counterparty"]
		if !ok {
			return false, nil
		}
		_, hit := f.blacklist[counterparty]
		return hit, nil
	default:
		return false, fmt.Errorf("unknown fraud rule type: %s", rule.Type)
	}
}

func riskRank(level domain.RiskLevel) int {
	switch level {
	case domain.RiskLow:
		return 0
	case domain.RiskMedium:
		return 1
	case domain.RiskHigh:
		return 2
	default:
		return 3
	}
}

func firstOrEmpty(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
