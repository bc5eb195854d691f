package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type FraudRuleType string
type RiskLevel string
type Recommendation string

const (
	RuleAmountThreshold FraudRuleType = "AMOUNT_THRESHOLD"
	RuleFrequency       FraudRuleType = "FREQUENCY"
	RuleGeography       FraudRuleType = "GEOGRAPHY"
	RuleBlacklist       FraudRuleType = "BLACKLIST"
	RuleOffHours        FraudRuleType = "OFF_HOURS"
	RuleRoundAmount     FraudRuleType = "ROUND_AMOUNT"
	RuleRapidSuccession FraudRuleType = "RAPID_SUCCESSION"

	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"

	RecommendAllow  Recommendation = "ALLOW"
	RecommendReview Recommendation = "REVIEW"
	RecommendBlock  Recommendation = "BLOCK"
)

// RiskLevelForScore maps an accumulated score onto a level: LOW < 26,
// MEDIUM < 51, HIGH < 76, CRITICAL >= 76.
func RiskLevelForScore(score int) RiskLevel {
	switch {
	case score < 26:
		return RiskLow
	case score < 51:
		return RiskMedium
	case score < 76:
		return RiskHigh
	default:
		return RiskCritical
	}
}

type FraudRule struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Type          FraudRuleType   `json:"type"`
	Threshold     decimal.Decimal `json:"threshold"`
	WindowMinutes int             `json:"window_minutes"`
	RiskPoints    int             `json:"risk_points"`
	Enabled       bool            `json:"enabled"`
	AutoBlock     bool            `json:"auto_block"`
}

type FraudEvent struct {
	ID            string    `json:"id"`
	AccountID     string    `json:"account_id"`
	CustomerID    string    `json:"customer_id"`
	TransactionID string    `json:"transaction_id"`
	RiskScore     int       `json:"risk_score"`
	RiskLevel     RiskLevel `json:"risk_level"`
	Flags         []string  `json:"flags,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func NewFraudEvent(accountID, customerID, transactionID string, score int, flags []string) *FraudEvent {
	return &FraudEvent{
		ID:            uuid.NewString(),
		AccountID:     accountID,
		CustomerID:    customerID,
		TransactionID: transactionID,
		RiskScore:     score,
		RiskLevel:     RiskLevelForScore(score),
		Flags:         flags,
		CreatedAt:     time.Now().UTC(),
	}
}

type RiskAssessment struct {
	Score          int            `json:"score"`
	Level          RiskLevel      `json:"level"`
	TriggeredRules []string       `json:"triggered_rules,omitempty"`
	Recommendation Recommendation `json:"recommendation"`
}
