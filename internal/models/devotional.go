package models

import "time"

// Step is one stage of the guided ritual.
type Step string

const (
	StepRespira   Step = "respira"
	StepPalavra   Step = "palavra"
	StepOracao    Step = "oracao"
	StepAcao      Step = "acao"
	StepCompleted Step = "completed"
)

// RitualSteps lists the steps in the order they are run.
var RitualSteps = []Step{StepRespira, StepPalavra, StepOracao, StepAcao}

const (
	ViaManual = "manual"
	ViaTimer  = "timer"
)

// DevotionalSession is the append-only record of a finished ritual.
type DevotionalSession struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Day            int       `json:"day"`
	DurationSec    int       `json:"duration_sec"`
	CompletedSteps []Step    `json:"completed_steps"`
	EyesClosedMode bool      `json:"eyes_closed_mode"`
	HadFallback    bool      `json:"had_fallback"`
	CreatedAt      time.Time `json:"created_at"`
}

type StepRecord struct {
	Step        Step      `json:"step"`
	Via         string    `json:"via"`
	CompletedAt time.Time `json:"completed_at"`
}

// RitualRun is the in-progress state of one ritual attempt.
type RitualRun struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id"`
	Day            int          `json:"day"`
	RitualMinutes  int          `json:"ritual_minutes"`
	EyesClosedMode bool         `json:"eyes_closed_mode"`
	State          Step         `json:"state"`
	StartedAt      time.Time    `json:"started_at"`
	StepEnteredAt  time.Time    `json:"step_entered_at"`
	Steps          []StepRecord `json:"steps"`
	HadFallback    bool         `json:"had_fallback"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	SessionID      string       `json:"session_id,omitempty"`
}

// DevotionalPreference is the per-user ritual configuration plus the
// counters the completion path maintains (LastCompletedDay, PeaceDays).
type DevotionalPreference struct {
	UserID           string    `json:"user_id"`
	RitualMinutes    int       `json:"ritual_minutes"`
	ReminderTime     string    `json:"reminder_time"`
	ReminderEnabled  bool      `json:"reminder_enabled"`
	VoiceGuidance    bool      `json:"voice_guidance"`
	HapticsEnabled   bool      `json:"haptics_enabled"`
	AmbienceVolume   float64   `json:"ambience_volume"`
	TelegramChatID   int64     `json:"telegram_chat_id"`
	LastCompletedDay int       `json:"last_completed_day"`
	PeaceDays        int       `json:"peace_days"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DefaultPreference returns the preferences a user gets on first access.
func DefaultPreference(userID string) *DevotionalPreference {
	return &DevotionalPreference{
		UserID:          userID,
		RitualMinutes:   10,
		ReminderTime:    "08:00",
		ReminderEnabled: true,
		VoiceGuidance:   true,
		HapticsEnabled:  true,
		AmbienceVolume:  0.3,
	}
}

// Devotional is the content of one day of the devotional cycle.
type Devotional struct {
	Day             int    `json:"day"`
	Title           string `json:"title"`
	VerseRef        string `json:"verse_ref"`
	VerseText       string `json:"verse_text"`
	ContextLine     string `json:"context_line"`
	AudioURLPalavra string `json:"audio_url_palavra,omitempty"`
	AudioURLOracao  string `json:"audio_url_oracao,omitempty"`
	LengthSec       int    `json:"length_sec"`
}

// DevotionalStats aggregates a user's session history.
type DevotionalStats struct {
	TotalSessions    int `json:"total_sessions"`
	TotalMinutes     int `json:"total_minutes"`
	PeaceDays        int `json:"peace_days"`
	LastCompletedDay int `json:"last_completed_day"`
	CurrentStreak    int `json:"current_streak"`
	LongestStreak    int `json:"longest_streak"`
}

// ReminderTarget is a user due for a reminder message.
type ReminderTarget struct {
	UserID         string
	TelegramChatID int64
}
