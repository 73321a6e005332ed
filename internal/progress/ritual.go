package progress

import (
	"fmt"
	"time"

	"minuto/internal/models"
)

// Event drives the ritual state machine.
type Event int

const (
	EventAdvance Event = iota
	EventTimeout
)

func (e Event) String() string {
	switch e {
	case EventAdvance:
		return "advance"
	case EventTimeout:
		return "timeout"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// via is the completion mode recorded for the step an event closes.
func (e Event) via() string {
	if e == EventTimeout {
		return models.ViaTimer
	}
	return models.ViaManual
}

// StepBudgets maps a step to its time budget.
type StepBudgets map[models.Step]time.Duration

// Total is the whole ritual length.
func (b StepBudgets) Total() time.Duration {
	var total time.Duration
	for _, step := range models.RitualSteps {
		total += b[step]
	}
	return total
}

var ritualBudgets = map[int]StepBudgets{
	5: {
		models.StepRespira: 60 * time.Second,
		models.StepPalavra: 90 * time.Second,
		models.StepOracao:  90 * time.Second,
		models.StepAcao:    60 * time.Second,
	},
	10: {
		models.StepRespira: 90 * time.Second,
		models.StepPalavra: 180 * time.Second,
		models.StepOracao:  180 * time.Second,
		models.StepAcao:    90 * time.Second,
	},
	15: {
		models.StepRespira: 120 * time.Second,
		models.StepPalavra: 240 * time.Second,
		models.StepOracao:  240 * time.Second,
		models.StepAcao:    180 * time.Second,
	},
}

// BudgetsFor returns the per-step budgets of a 5, 10 or 15 minute ritual.
func BudgetsFor(minutes int) (StepBudgets, error) {
	b, ok := ritualBudgets[minutes]
	if !ok {
		return nil, fmt.Errorf("ritual length %d minutes: %w", minutes, ErrInvalidConfiguration)
	}
	return b, nil
}

// ValidRitualMinutes reports whether minutes is an allowed ritual length.
func ValidRitualMinutes(minutes int) bool {
	_, ok := ritualBudgets[minutes]
	return ok
}

// Transition is the pure state function: both events move a step to the next
// one, and completed accepts nothing.
func Transition(state models.Step, ev Event) (models.Step, error) {
	if ev != EventAdvance && ev != EventTimeout {
		return state, fmt.Errorf("%s on %s: %w", ev, state, ErrInvalidTransition)
	}
	switch state {
	case models.StepRespira:
		return models.StepPalavra, nil
	case models.StepPalavra:
		return models.StepOracao, nil
	case models.StepOracao:
		return models.StepAcao, nil
	case models.StepAcao:
		return models.StepCompleted, nil
	case models.StepCompleted:
		return state, ErrAlreadyCompleted
	}
	return state, fmt.Errorf("unknown state %q: %w", state, ErrInvalidTransition)
}

// apply closes the current step of run at the given instant.
func apply(run *models.RitualRun, ev Event, at time.Time) error {
	next, err := Transition(run.State, ev)
	if err != nil {
		return err
	}

	run.Steps = append(run.Steps, models.StepRecord{Step: run.State, Via: ev.via(), CompletedAt: at})
	if ev == EventTimeout {
		run.HadFallback = true
	}
	run.State = next
	run.StepEnteredAt = at
	if next == models.StepCompleted {
		completedAt := at
		run.CompletedAt = &completedAt
	}
	return nil
}

// expire applies a timeout to every step whose budget elapsed before now.
// Each following step is entered at the previous step's deadline.
func expire(run *models.RitualRun, budgets StepBudgets, now time.Time) error {
	for run.State != models.StepCompleted {
		deadline := run.StepEnteredAt.Add(budgets[run.State])
		if now.Before(deadline) {
			return nil
		}
		if err := apply(run, EventTimeout, deadline); err != nil {
			return err
		}
	}
	return nil
}

// Remaining is the time left on the current step at now.
func Remaining(run *models.RitualRun, now time.Time) time.Duration {
	if run.State == models.StepCompleted {
		return 0
	}
	budgets, err := BudgetsFor(run.RitualMinutes)
	if err != nil {
		return 0
	}
	left := run.StepEnteredAt.Add(budgets[run.State]).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// completedSteps lists the steps recorded on run in order.
func completedSteps(run *models.RitualRun) []models.Step {
	steps := make([]models.Step, 0, len(run.Steps))
	for _, s := range run.Steps {
		steps = append(steps, s.Step)
	}
	return steps
}
