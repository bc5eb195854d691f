package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LimitType string

const (
	LimitTransfer   LimitType = "TRANSFER"
	LimitWithdrawal LimitType = "WITHDRAWAL"
	LimitDeposit    LimitType = "DEPOSIT"
	LimitPayment    LimitType = "PAYMENT"
	LimitAll        LimitType = "ALL"
)

type TransactionLimit struct {
	CustomerID          string          `json:"customer_id"`
	LimitType           LimitType       `json:"limit_type"`
	DailyLimit          decimal.Decimal `json:"daily_limit"`
	PerTransactionLimit decimal.Decimal `json:"per_transaction_limit"`
	MonthlyLimit        decimal.Decimal `json:"monthly_limit"`
	RemainingDaily      decimal.Decimal `json:"remaining_daily"`
	RemainingMonthly    decimal.Decimal `json:"remaining_monthly"`
	LastDailyReset      time.Time       `json:"last_daily_reset"`
	LastMonthlyReset    time.Time       `json:"last_monthly_reset"`
}

func NewTransactionLimit(customerID string, limitType LimitType, daily, perTransaction, monthly decimal.Decimal) *TransactionLimit {
	now := time.Now().UTC()
	return &TransactionLimit{
		CustomerID:          customerID,
		LimitType:           limitType,
		DailyLimit:          daily,
		PerTransactionLimit: perTransaction,
		MonthlyLimit:        monthly,
		RemainingDaily:      daily,
		RemainingMonthly:    monthly,
		LastDailyReset:      now,
		LastMonthlyReset:    now,
	}
}

// ResetIfRolledOver restores the remaining counters on the first use after a
// day or month boundary.
func (l *TransactionLimit) ResetIfRolledOver(now time.Time) {
	if !sameDay(l.LastDailyReset, now) {
		l.RemainingDaily = l.DailyLimit
		l.LastDailyReset = now
	}
	if l.LastMonthlyReset.Year() != now.Year() || l.LastMonthlyReset.Month() != now.Month() {
		l.RemainingMonthly = l.MonthlyLimit
		l.LastMonthlyReset = now
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

type VelocityCheck struct {
	CustomerID    string    `json:"customer_id"`
	CheckType     LimitType `json:"check_type"`
	WindowMinutes int       `json:"window_minutes"`
	MaxCount      int       `json:"max_count"`
	CurrentCount  int       `json:"current_count"`
	WindowStart   time.Time `json:"window_start"`
	BlockedUntil  time.Time `json:"blocked_until"`
}

func NewVelocityCheck(customerID string, checkType LimitType, windowMinutes, maxCount int) *VelocityCheck {
	return &VelocityCheck{
		CustomerID:    customerID,
		CheckType:     checkType,
		WindowMinutes: windowMinutes,
		MaxCount:      maxCount,
		WindowStart:   time.Now().UTC(),
	}
}

func (v *VelocityCheck) IsBlocked(now time.Time) bool {
	return now.Before(v.BlockedUntil)
}

func (v *VelocityCheck) WindowExpired(now time.Time) bool {
	return now.After(v.WindowStart.Add(time.Duration(v.WindowMinutes) * time.Minute))
}
