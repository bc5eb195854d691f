package processor

import (
	"context"
	"testing"

	"bankcore/internal/domain"
)

func scoringContext(amount string) ScoringContext {
	tx := domain.NewTransaction(domain.TypeTransfer, dec(amount), "USD")
	account := domain.NewAccount("cust-1", domain.AccountChecking, "USD")
	account.Status = domain.AccountActive
	return ScoringContext{Transaction: tx, Account: account, CustomerID: "cust-1"}
}

func TestScoreNoRulesAllows(t *testing.T) {
	f := newFixture(t, Config{})

	assessment, err := f.orch.fraud.Score(context.Background(), scoringContext("100"))
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if assessment.Score != 0 || assessment.Recommendation != domain.RecommendAllow {
		t.Errorf("assessment = %+v, want zero score and ALLOW", assessment)
	}
}

func TestScoreSumsTriggeredRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	scorer := f.orch.fraud

	rules := []*domain.FraudRule{
		{ID: "r1", Name: "amount", Type: domain.RuleAmountThreshold, Threshold: dec("1000"), RiskPoints: 30, Enabled: true},
		{ID: "r2", Name: "round", Type: domain.RuleRoundAmount, Threshold: dec("500"), RiskPoints: 25, Enabled: true},
		{ID: "r3", Name: "disabled", Type: domain.RuleAmountThreshold, Threshold: dec("1"), RiskPoints: 90},
	}
	for _, rule := range rules {
		if err := f.store.FraudRules().Save(ctx, rule); err != nil {
			t.Fatalf("save rule %s: %v", rule.ID, err)
		}
	}

	assessment, err := scorer.Score(ctx, scoringContext("5000"))
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if assessment.Score != 55 {
		t.Errorf("score = %d, want 55 from the two enabled rules", assessment.Score)
	}
	if assessment.Level != domain.RiskHigh {
		t.Errorf("level = %s, want HIGH", assessment.Level)
	}
	if assessment.Recommendation != domain.RecommendReview {
		t.Errorf("recommendation = %s, want REVIEW", assessment.Recommendation)
	}
	if len(assessment.TriggeredRules) != 2 {
		t.Errorf("triggered = %v, want the amount and round rules", assessment.TriggeredRules)
	}
}

func TestScoreRoundAmountNeedsExactHundreds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	scorer := f.orch.fraud

	rule := &domain.FraudRule{ID: "r1", Name: "round", Type: domain.RuleRoundAmount, Threshold: dec("500"), RiskPoints: 25, Enabled: true}
	if err := f.store.FraudRules().Save(ctx, rule); err != nil {
		t.Fatalf("save rule: %v", err)
	}

	assessment, err := scorer.Score(ctx, scoringContext("5050.25"))
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if assessment.Score != 0 {
		t.Errorf("score = %d, want 0 for a non-round amount", assessment.Score)
	}
}

func TestScoreBlacklistedCounterparty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	scorer := f.orch.fraud
	scorer.AddBlacklisted("mule-account")

	rule := &domain.FraudRule{ID: "r1", Name: "blacklist", Type: domain.RuleBlacklist, RiskPoints: 100, Enabled: true, AutoBlock: true}
	if err := f.store.FraudRules().Save(ctx, rule); err != nil {
		t.Fatalf("save rule: %v", err)
	}

	sc := scoringContext("50")
	sc.Transaction.ToAccountID = "mule-account"
	assessment, err := scorer.Score(ctx, sc)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if assessment.Recommendation != domain.RecommendBlock {
		t.Errorf("recommendation = %s, want BLOCK", assessment.Recommendation)
	}

	alerts, err := f.store.FraudEvents().GetByAccountID(ctx, sc.Account.ID)
	if err != nil {
		t.Fatalf("fraud events: %v", err)
	}
	if len(alerts) != 1 {
		t.Errorf("fraud events = %d, want the blacklist hit recorded", len(alerts))
	}
}

func TestScoreGeographyUsesMetadata(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	scorer := f.orch.fraud
	scorer.AddHighRiskLocation("XX")

	rule := &domain.FraudRule{ID: "r1", Name: "geo", Type: domain.RuleGeography, RiskPoints: 40, Enabled: true}
	if err := f.store.FraudRules().Save(ctx, rule); err != nil {
		t.Fatalf("save rule: %v", err)
	}

	sc := scoringContext("50")
	assessment, err := scorer.Score(ctx, sc)
	if err != nil {
		t.Fatalf("score without location: %v", err)
	}
	if assessment.Score != 0 {
		t.Errorf("score = %d, want 0 without location metadata", assessment.Score)
	}

	sc = scoringContext("50")
	sc.Transaction.AddMetadata("location", "XX")
	assessment, err = scorer.Score(ctx, sc)
	if err != nil {
		t.Fatalf("score with location: %v", err)
	}
	if assessment.Score != 40 {
		t.Errorf("score = %d, want 40 for a high-risk location", assessment.Score)
	}
}
