package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"minuto/internal/models"
)

// StartOptions configures a new ritual run. Zero Day and Minutes fall back to
// the user's preferences (next day of the cycle, preferred ritual length).
type StartOptions struct {
	Day            int  `json:"day"`
	Minutes        int  `json:"minutes"`
	EyesClosedMode bool `json:"eyes_closed_mode"`
}

// SessionReport is a finished ritual reported by the client in one call.
type SessionReport struct {
	Day            int           `json:"day"`
	DurationSec    int           `json:"duration_sec"`
	CompletedSteps []models.Step `json:"completed_steps"`
	EyesClosedMode bool          `json:"eyes_closed_mode"`
	HadFallback    bool          `json:"had_fallback"`
}

type CompletionResult struct {
	Session    *models.DevotionalSession `json:"session"`
	Qualifying bool                      `json:"qualifying"`
	PeaceDays  int                       `json:"peace_days"`
	Streak     *StreakResult             `json:"streak,omitempty"`
}

// RitualState is what callers see of a run after an interaction.
type RitualState struct {
	Run          *models.RitualRun `json:"run"`
	RemainingSec int               `json:"remaining_sec"`
	Completion   *CompletionResult `json:"completion,omitempty"`
}

// StartRitual opens a run at the respira step.
func (e *Engine) StartRitual(ctx context.Context, userID string, opts StartOptions) (*RitualState, error) {
	if _, err := e.store.GetProgress(ctx, userID); err != nil {
		return nil, fmt.Errorf("start ritual for %s: %w", userID, err)
	}

	if opts.Day < 0 {
		return nil, fmt.Errorf("day %d: %w", opts.Day, ErrInvalidConfiguration)
	}
	if opts.Day == 0 || opts.Minutes == 0 {
		prefs, err := e.store.GetPreferences(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("start ritual for %s: %w", userID, err)
		}
		if opts.Day == 0 {
			opts.Day = prefs.LastCompletedDay + 1
		}
		if opts.Minutes == 0 {
			opts.Minutes = prefs.RitualMinutes
		}
	}
	if _, err := BudgetsFor(opts.Minutes); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	run := &models.RitualRun{
		ID:             uuid.NewString(),
		UserID:         userID,
		Day:            opts.Day,
		RitualMinutes:  opts.Minutes,
		EyesClosedMode: opts.EyesClosedMode,
		State:          models.StepRespira,
		StartedAt:      now,
		StepEnteredAt:  now,
		Steps:          []models.StepRecord{},
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create ritual run: %w", err)
	}

	e.logger.Infow("Ritual started", "user_id", userID, "run_id", run.ID, "day", run.Day, "minutes", run.RitualMinutes)
	return e.stateOf(run, nil), nil
}

// Advance closes the step named by from with an explicit user action. Steps
// whose budget already elapsed are timed out first, so from must name the
// step that is current after that catch-up. A completed run whose session
// was never recorded is finished again, which makes a retried final advance
// succeed.
func (e *Engine) Advance(ctx context.Context, userID, runID string, from models.Step) (*RitualState, error) {
	now := e.clock.Now()

	var transitionErr error
	run, err := e.store.UpdateRun(ctx, runID, func(run *models.RitualRun) error {
		if run.UserID != userID {
			return ErrNotFound
		}
		if run.State == models.StepCompleted {
			if finishPending(run) {
				if from != models.StepAcao {
					transitionErr = fmt.Errorf("advance %s on a completed ritual: %w", from, ErrInvalidTransition)
				}
				return errUnchanged
			}
			if from == models.StepAcao {
				return ErrAlreadyCompleted
			}
			return fmt.Errorf("advance %s on a completed ritual: %w", from, ErrInvalidTransition)
		}

		budgets, err := BudgetsFor(run.RitualMinutes)
		if err != nil {
			return err
		}
		if err := expire(run, budgets, now); err != nil {
			return err
		}

		switch {
		case run.State == models.StepCompleted && from == models.StepAcao:
			transitionErr = ErrAlreadyCompleted
		case run.State != from:
			transitionErr = fmt.Errorf("advance from %s while ritual is at %s: %w", from, run.State, ErrInvalidTransition)
		default:
			if err := apply(run, EventAdvance, now); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		run, err = e.store.GetRun(ctx, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("advance ritual %s: %w", runID, err)
	}

	var completion *CompletionResult
	if finishPending(run) {
		if completion, err = e.finish(ctx, run); err != nil {
			return nil, err
		}
	}
	return e.stateOf(run, completion), transitionErr
}

// Refresh applies any elapsed timeouts without a user event, and records the
// session of a completed run that still lacks one.
func (e *Engine) Refresh(ctx context.Context, userID, runID string) (*RitualState, error) {
	now := e.clock.Now()

	run, err := e.store.UpdateRun(ctx, runID, func(run *models.RitualRun) error {
		if run.UserID != userID {
			return ErrNotFound
		}
		if run.State == models.StepCompleted {
			return errUnchanged
		}
		budgets, err := BudgetsFor(run.RitualMinutes)
		if err != nil {
			return err
		}
		return expire(run, budgets, now)
	})
	if errors.Is(err, errUnchanged) {
		run, err = e.store.GetRun(ctx, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("refresh ritual %s: %w", runID, err)
	}

	var completion *CompletionResult
	if finishPending(run) {
		if completion, err = e.finish(ctx, run); err != nil {
			return nil, err
		}
	}
	return e.stateOf(run, completion), nil
}

// finishPending reports a run that reached completed without a recorded
// session, either just now or after an earlier recording failure.
func finishPending(run *models.RitualRun) bool {
	return run.State == models.StepCompleted && run.SessionID == ""
}

// RecordSession stores a client-reported ritual through the completion path.
func (e *Engine) RecordSession(ctx context.Context, userID string, report SessionReport) (*CompletionResult, error) {
	if err := validateReport(report); err != nil {
		return nil, err
	}
	if _, err := e.store.GetProgress(ctx, userID); err != nil {
		return nil, fmt.Errorf("record session for %s: %w", userID, err)
	}

	return e.complete(ctx, &models.DevotionalSession{
		UserID:         userID,
		Day:            report.Day,
		DurationSec:    report.DurationSec,
		CompletedSteps: report.CompletedSteps,
		EyesClosedMode: report.EyesClosedMode,
		HadFallback:    report.HadFallback,
	})
}

func validateReport(r SessionReport) error {
	if r.Day < 1 {
		return fmt.Errorf("day %d: %w", r.Day, ErrInvalidConfiguration)
	}
	if r.DurationSec <= 0 {
		return fmt.Errorf("duration %ds: %w", r.DurationSec, ErrInvalidConfiguration)
	}
	if len(r.CompletedSteps) == 0 {
		return fmt.Errorf("no completed steps: %w", ErrInvalidConfiguration)
	}

	last := -1
	for _, step := range r.CompletedSteps {
		idx := stepIndex(step)
		if idx < 0 {
			return fmt.Errorf("unknown step %q: %w", step, ErrInvalidConfiguration)
		}
		if idx <= last {
			return fmt.Errorf("step %q out of order: %w", step, ErrInvalidConfiguration)
		}
		last = idx
	}
	return nil
}

func stepIndex(step models.Step) int {
	for i, s := range models.RitualSteps {
		if s == step {
			return i
		}
	}
	return -1
}

func hasStep(steps []models.Step, step models.Step) bool {
	for _, s := range steps {
		if s == step {
			return true
		}
	}
	return false
}

// IsQualifying reports whether steps count towards the streak: all four
// steps, which includes respira and palavra.
func IsQualifying(steps []models.Step) bool {
	return len(steps) == len(models.RitualSteps) &&
		hasStep(steps, models.StepRespira) &&
		hasStep(steps, models.StepPalavra)
}

// finish records the session of a completed run. The session takes the run
// id, so a retry after a partial failure never stores it twice.
func (e *Engine) finish(ctx context.Context, run *models.RitualRun) (*CompletionResult, error) {
	session := &models.DevotionalSession{
		ID:             run.ID,
		UserID:         run.UserID,
		Day:            run.Day,
		DurationSec:    int(run.CompletedAt.Sub(run.StartedAt).Seconds()),
		CompletedSteps: completedSteps(run),
		EyesClosedMode: run.EyesClosedMode,
		HadFallback:    run.HadFallback,
	}

	result, err := e.complete(ctx, session)
	if err != nil {
		return nil, err
	}

	updated, err := e.store.UpdateRun(ctx, run.ID, func(r *models.RitualRun) error {
		r.SessionID = session.ID
		return nil
	})
	if err != nil {
		e.logger.Warnw("Failed to link session to ritual run", "run_id", run.ID, "error", err)
	} else {
		*run = *updated
	}
	return result, nil
}

// complete persists a finished session and applies its side effects.
func (e *Engine) complete(ctx context.Context, session *models.DevotionalSession) (*CompletionResult, error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	session.CreatedAt = e.clock.Now()
	if err := e.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create devotional session: %w", err)
	}

	result := &CompletionResult{
		Session:    session,
		Qualifying: IsQualifying(session.CompletedSteps),
	}

	if len(session.CompletedSteps) == len(models.RitualSteps) {
		prefs, err := e.store.UpdatePreferences(ctx, session.UserID, func(p *models.DevotionalPreference) error {
			p.LastCompletedDay = session.Day
			if result.Qualifying {
				p.PeaceDays++
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("update preferences after session: %w", err)
		}
		result.PeaceDays = prefs.PeaceDays
	}

	if result.Qualifying {
		streak, err := e.UpdateStreak(ctx, session.UserID, e.Today())
		if err != nil {
			return nil, err
		}
		result.Streak = streak
	}

	e.logger.Infow("Devotional session recorded",
		"user_id", session.UserID,
		"session_id", session.ID,
		"steps", len(session.CompletedSteps),
		"had_fallback", session.HadFallback,
		"qualifying", result.Qualifying)
	return result, nil
}

func (e *Engine) stateOf(run *models.RitualRun, completion *CompletionResult) *RitualState {
	return &RitualState{
		Run:          run,
		RemainingSec: int(Remaining(run, e.clock.Now()).Seconds()),
		Completion:   completion,
	}
}
