package notify

import (
	"context"
	"time"

	"minuto/internal/models"
	"minuto/internal/progress"
	"minuto/pkg/logger"
)

type TargetLister interface {
	ReminderTargets(ctx context.Context, hhmm string, today time.Time) ([]models.ReminderTarget, error)
}

// SentCounter is told how many reminders went out on each tick.
type SentCounter interface {
	IncRemindersSent(n int)
}

// Reminder sends the daily Telegram reminder once a minute to users whose
// reminder time matches the local clock and who have not prayed today.
type Reminder struct {
	targets TargetLister
	sender  Sender
	counter SentCounter
	clock   progress.Clock
	logger  *logger.Logger
}

func NewReminder(targets TargetLister, sender Sender, counter SentCounter, clock progress.Clock, l *logger.Logger) *Reminder {
	return &Reminder{targets: targets, sender: sender, counter: counter, clock: clock, logger: l.Named("reminder")}
}

// Run ticks on every minute boundary until ctx is done.
func (r *Reminder) Run(ctx context.Context) {
	now := r.clock.Now()
	timer := time.NewTimer(now.Truncate(time.Minute).Add(time.Minute).Sub(now))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			r.Tick(ctx, r.clock.Now())
			now := r.clock.Now()
			timer.Reset(now.Truncate(time.Minute).Add(time.Minute).Sub(now))
		}
	}
}

// Tick sends the reminders due at now and returns how many were sent.
func (r *Reminder) Tick(ctx context.Context, now time.Time) int {
	hhmm := now.Format("15:04")
	targets, err := r.targets.ReminderTargets(ctx, hhmm, progress.CalendarDay(now))
	if err != nil {
		r.logger.Errorw("Failed to list reminder targets", "time", hhmm, "error", err)
		return 0
	}

	sent := 0
	for _, t := range targets {
		if err := r.sender.Send(ctx, t.TelegramChatID, ReminderMessage); err != nil {
			r.logger.Warnw("Failed to send reminder", "user_id", t.UserID, "error", err)
			continue
		}
		sent++
	}
	if sent > 0 {
		r.counter.IncRemindersSent(sent)
		r.logger.Infow("Reminders sent", "time", hhmm, "count", sent)
	}
	return sent
}
