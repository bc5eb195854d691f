package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
)

// VelocityChecker throttles transaction frequency over a rolling window.
// Hitting the window ceiling issues a timed block that outlives the window;
// calls while blocked are rejected without counting.
type VelocityChecker struct {
	store         repository.Store
	blockDuration time.Duration
	logger        *slog.Logger
}

func NewVelocityChecker(store repository.Store, blockDuration time.Duration, logger *slog.Logger) *VelocityChecker {
	if logger == nil {
		logger = slog.Default()
	}
	if blockDuration <= 0 {
		blockDuration = 30 * time.Minute
	}
	return &VelocityChecker{
		store:         store,
		blockDuration: blockDuration,
		logger:        logger,
	}
}

// Record counts one attempt against the customer's window. No configured
// check means no throttle.
func (v *VelocityChecker) Record(ctx context.Context, customerID string, checkType domain.LimitType) error {
	check, err := v.store.Velocity().Get(ctx, customerID, checkType)
	if errors.Is(err, repository.ErrNotFound) {
		check, err = v.store.Velocity().Get(ctx, customerID, domain.LimitAll)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
	}
	if err != nil {
		return fmt.Errorf("%w: velocity lookup: %v", ErrStorage, err)
	}

	now := time.Now().UTC()
	if check.IsBlocked(now) {
		return fmt.Errorf("%w: customer %s blocked until %s",
			ErrVelocityBlocked, customerID, check.BlockedUntil.Format(time.RFC3339))
	}

	if check.WindowExpired(now) {
		check.WindowStart = now
		check.CurrentCount = 0
	}

	check.CurrentCount++
	if check.CurrentCount >= check.MaxCount {
		check.BlockedUntil = now.Add(v.blockDuration)
		if err := v.store.Velocity().Update(ctx, check); err != nil {
			return fmt.Errorf("%w: velocity update: %v", ErrStorage, err)
		}
		v.logger.WarnContext(ctx, "Velocity block issued",
			slog.String("customer_id", customerID),
			slog.String("check_type", string(check.CheckType)),
			slog.Int("count", check.CurrentCount),
			slog.Time("blocked_until", check.BlockedUntil))
		return fmt.Errorf("%w: customer %s hit %d transactions in window",
			ErrVelocityBlocked, customerID, check.CurrentCount)
	}

	if err := v.store.Velocity().Update(ctx, check); err != nil {
		return fmt.Errorf("%w: velocity update: %v", ErrStorage, err)
	}
	return nil
}
