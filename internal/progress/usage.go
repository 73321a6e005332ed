package progress

import (
	"context"
	"errors"
	"fmt"

	"minuto/internal/models"
)

// UsageStatus describes a user's chat quota for the current month.
// Remaining and Limit are -1 for unlimited users.
type UsageStatus struct {
	Used            int  `json:"questions_used"`
	Remaining       int  `json:"questions_remaining"`
	Limit           int  `json:"limit"`
	Unlimited       bool `json:"unlimited"`
	HasReachedLimit bool `json:"has_reached_limit"`
	LimitExceeded   bool `json:"limit_exceeded"`
}

// Err returns ErrLimitExceeded when the increment went over the quota.
func (s *UsageStatus) Err() error {
	if s.LimitExceeded {
		return ErrLimitExceeded
	}
	return nil
}

func (e *Engine) usageKey(userID string) models.UsageKey {
	now := e.clock.Now()
	return models.UsageKey{UserID: userID, Month: int(now.Month()), Year: now.Year()}
}

func (e *Engine) unlimitedStatus() *UsageStatus {
	return &UsageStatus{Remaining: -1, Limit: -1, Unlimited: true}
}

func (e *Engine) limitedStatus(used int) *UsageStatus {
	remaining := e.monthlyLimit - used
	if remaining < 0 {
		remaining = 0
	}
	return &UsageStatus{
		Used:            used,
		Remaining:       remaining,
		Limit:           e.monthlyLimit,
		HasReachedLimit: used >= e.monthlyLimit,
	}
}

// CheckLimit reports the current month's usage without recording anything.
func (e *Engine) CheckLimit(ctx context.Context, userID string) (*UsageStatus, error) {
	unlimited, err := e.subs.IsUnlimited(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check subscription for %s: %w", userID, err)
	}
	if unlimited {
		return e.unlimitedStatus(), nil
	}

	used := 0
	usage, err := e.store.GetUsage(ctx, e.usageKey(userID))
	switch {
	case err == nil:
		used = usage.QuestionsUsed
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("get usage for %s: %w", userID, err)
	}

	return e.limitedStatus(used), nil
}

// IncrementUsage counts one chat question. Going over the quota is still
// recorded; the returned status then has LimitExceeded set and the caller
// decides whether to block.
func (e *Engine) IncrementUsage(ctx context.Context, userID string) (*UsageStatus, error) {
	unlimited, err := e.subs.IsUnlimited(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check subscription for %s: %w", userID, err)
	}
	if unlimited {
		return e.unlimitedStatus(), nil
	}

	usage, err := e.store.IncrementUsage(ctx, e.usageKey(userID))
	if err != nil {
		return nil, fmt.Errorf("increment usage for %s: %w", userID, err)
	}

	status := e.limitedStatus(usage.QuestionsUsed)
	if usage.QuestionsUsed > e.monthlyLimit {
		status.LimitExceeded = true
		e.logger.Infow("Monthly chat limit exceeded", "user_id", userID, "used", usage.QuestionsUsed, "limit", e.monthlyLimit)
	}
	return status, nil
}
