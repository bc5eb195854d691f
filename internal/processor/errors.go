package processor

import "errors"

var (
	ErrValidation          = errors.New("validation failed")
	ErrAccountNotActive    = errors.New("account not active")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrLimitExceeded       = errors.New("limit exceeded")
	ErrVelocityBlocked     = errors.New("velocity blocked")
	ErrFraudBlocked        = errors.New("fraud blocked")
	ErrIdempotencyConflict = errors.New("idempotency key reused with different payload")
	ErrBusy                = errors.New("busy")
	ErrStorage             = errors.New("storage failure")
)

// FailureReason maps a business-rule error onto the reason persisted on a
// FAILED transaction.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "INVALID_REQUEST"
	case errors.Is(err, ErrAccountNotActive):
		return "ACCOUNT_NOT_ACTIVE"
	case errors.Is(err, ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, ErrLimitExceeded):
		return "LIMIT_EXCEEDED"
	case errors.Is(err, ErrVelocityBlocked):
		return "VELOCITY_BLOCKED"
	case errors.Is(err, ErrFraudBlocked):
		return "FRAUD_BLOCKED"
	case errors.Is(err, ErrBusy):
		return "TIMEOUT"
	default:
		return "STORAGE_FAILURE"
	}
}
