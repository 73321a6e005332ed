package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/gookit/validate"

	"minuto/internal/models"
)

// PreferenceInput is the client-editable part of the devotional preferences.
// PeaceDays and LastCompletedDay belong to the engine and are not accepted.
type PreferenceInput struct {
	RitualMinutes   int     `json:"ritual_minutes" validate:"required|in:5,10,15"`
	ReminderTime    string  `json:"reminder_time" validate:"required"`
	ReminderEnabled bool    `json:"reminder_enabled"`
	VoiceGuidance   bool    `json:"voice_guidance"`
	HapticsEnabled  bool    `json:"haptics_enabled"`
	AmbienceVolume  float64 `json:"ambience_volume"`
	TelegramChatID  int64   `json:"telegram_chat_id"`
}

// InputFrom seeds an input with the stored values so a partial payload
// decoded over it keeps the fields it omits.
func InputFrom(p *models.DevotionalPreference) PreferenceInput {
	return PreferenceInput{
		RitualMinutes:   p.RitualMinutes,
		ReminderTime:    p.ReminderTime,
		ReminderEnabled: p.ReminderEnabled,
		VoiceGuidance:   p.VoiceGuidance,
		HapticsEnabled:  p.HapticsEnabled,
		AmbienceVolume:  p.AmbienceVolume,
		TelegramChatID:  p.TelegramChatID,
	}
}

func (in PreferenceInput) Validate() error {
	v := validate.Struct(&in)
	if !v.Validate() {
		return fmt.Errorf("%s: %w", v.Errors.One(), ErrInvalidConfiguration)
	}
	if _, err := time.Parse("15:04", in.ReminderTime); err != nil || len(in.ReminderTime) != 5 {
		return fmt.Errorf("reminder time %q is not HH:MM: %w", in.ReminderTime, ErrInvalidConfiguration)
	}
	if in.AmbienceVolume < 0 || in.AmbienceVolume > 1 {
		return fmt.Errorf("ambience volume %v outside [0,1]: %w", in.AmbienceVolume, ErrInvalidConfiguration)
	}
	return nil
}

// Preferences returns the stored preferences or the defaults.
func (e *Engine) Preferences(ctx context.Context, userID string) (*models.DevotionalPreference, error) {
	p, err := e.store.GetPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get preferences for %s: %w", userID, err)
	}
	return p, nil
}

func (e *Engine) SavePreferences(ctx context.Context, userID string, in PreferenceInput) (*models.DevotionalPreference, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	p, err := e.store.UpdatePreferences(ctx, userID, func(p *models.DevotionalPreference) error {
		p.RitualMinutes = in.RitualMinutes
		p.ReminderTime = in.ReminderTime
		p.ReminderEnabled = in.ReminderEnabled
		p.VoiceGuidance = in.VoiceGuidance
		p.HapticsEnabled = in.HapticsEnabled
		p.AmbienceVolume = in.AmbienceVolume
		p.TelegramChatID = in.TelegramChatID
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save preferences for %s: %w", userID, err)
	}
	return p, nil
}

// NextDay is the day of the cycle the user should do next.
func (e *Engine) NextDay(ctx context.Context, userID string) (int, error) {
	p, err := e.Preferences(ctx, userID)
	if err != nil {
		return 0, err
	}
	return p.LastCompletedDay + 1, nil
}

// Stats aggregates the session history with the streak counters.
func (e *Engine) Stats(ctx context.Context, userID string) (*models.DevotionalStats, error) {
	p, err := e.store.GetProgress(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get stats for %s: %w", userID, err)
	}
	prefs, err := e.Preferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	count, totalSec, err := e.store.SessionTotals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get stats for %s: %w", userID, err)
	}

	return &models.DevotionalStats{
		TotalSessions:    count,
		TotalMinutes:     totalSec / 60,
		PeaceDays:        prefs.PeaceDays,
		LastCompletedDay: prefs.LastCompletedDay,
		CurrentStreak:    p.CurrentStreak,
		LongestStreak:    p.LongestStreak,
	}, nil
}
