package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"minuto/internal/models"
)

type StreakResult struct {
	CurrentStreak int  `json:"current_streak"`
	LongestStreak int  `json:"longest_streak"`
	IsNewRecord   bool `json:"is_new_record"`
}

type StreakStatus struct {
	CurrentStreak    int        `json:"current_streak"`
	LongestStreak    int        `json:"longest_streak"`
	LastActivityDate *time.Time `json:"last_activity_date"`
	TotalCompletions int        `json:"total_completions"`
	IsActive         bool       `json:"is_active"`
}

// applyStreak advances p for a qualifying completion on today. It reports
// false when today was already counted, leaving p untouched.
func applyStreak(p *models.UserProgress, today time.Time) (StreakResult, bool) {
	today = CalendarDay(today)

	if p.LastActivityDate != nil && CalendarDay(*p.LastActivityDate).Equal(today) {
		return StreakResult{CurrentStreak: p.CurrentStreak, LongestStreak: p.LongestStreak}, false
	}

	streak := 1
	if p.LastActivityDate != nil && DaysBetween(*p.LastActivityDate, today) == 1 {
		streak = p.CurrentStreak + 1
	}

	result := StreakResult{CurrentStreak: streak, LongestStreak: p.LongestStreak}
	if streak > p.LongestStreak {
		result.LongestStreak = streak
		result.IsNewRecord = true
	}

	p.CurrentStreak = result.CurrentStreak
	p.LongestStreak = result.LongestStreak
	p.LastActivityDate = &today
	p.TotalCompletions++

	return result, true
}

// UpdateStreak records one qualifying completion on today. It is the only
// writer of the streak fields and must be called once per qualifying session.
func (e *Engine) UpdateStreak(ctx context.Context, userID string, today time.Time) (*StreakResult, error) {
	var result StreakResult
	var changed bool

	_, err := e.store.UpdateProgress(ctx, userID, func(p *models.UserProgress) error {
		result, changed = applyStreak(p, today)
		if !changed {
			return errUnchanged
		}
		return nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return nil, fmt.Errorf("update streak for %s: %w", userID, err)
	}

	if changed {
		e.logger.Debugw("Streak updated",
			"user_id", userID,
			"current", result.CurrentStreak,
			"longest", result.LongestStreak,
			"new_record", result.IsNewRecord)
	}
	if result.IsNewRecord {
		e.announce(ctx, userID, result.LongestStreak)
	}
	return &result, nil
}

// announce hands a new record to the notifier in the background so the
// caller never waits on the network. Wait drains pending announcements.
func (e *Engine) announce(ctx context.Context, userID string, streak int) {
	if e.notifier == nil {
		return
	}

	e.pending.Add(1)
	go func() {
		defer e.pending.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), announceTimeout)
		defer cancel()
		if err := e.notifier.AnnounceRecord(ctx, userID, streak); err != nil {
			e.logger.Warnw("Failed to announce streak record", "user_id", userID, "error", err)
		}
	}()
}

// GetStreak reads the counters and derives IsActive without mutating anything.
func (e *Engine) GetStreak(ctx context.Context, userID string) (*StreakStatus, error) {
	p, err := e.store.GetProgress(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get streak for %s: %w", userID, err)
	}

	status := &StreakStatus{
		CurrentStreak:    p.CurrentStreak,
		LongestStreak:    p.LongestStreak,
		LastActivityDate: p.LastActivityDate,
		TotalCompletions: p.TotalCompletions,
		IsActive:         true,
	}
	if p.LastActivityDate != nil && DaysBetween(*p.LastActivityDate, e.Today()) > 1 {
		status.IsActive = false
	}
	return status, nil
}
