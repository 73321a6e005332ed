package journal

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/gookit/validate"

	"minuto/internal/models"
	"minuto/internal/progress"
	"minuto/pkg/logger"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

type Store interface {
	CreateJournal(ctx context.Context, entry *models.JournalEntry) error
	ListJournals(ctx context.Context, userID string, limit int) ([]models.JournalEntry, error)
}

// Input is a journal entry as posted by the client.
type Input struct {
	Gratitude       string `json:"gratitude" validate:"maxLen:2000"`
	Insight         string `json:"insight" validate:"maxLen:2000"`
	Humor           int    `json:"humor" validate:"required|min:1|max:5"`
	DurationMinutes int    `json:"duration_minutes" validate:"required|in:5,10,15"`
}

// Service stores journal entries. Entries are reflections only and never
// count towards the streak.
type Service struct {
	store  Store
	clock  progress.Clock
	logger *logger.Logger
}

func NewService(store Store, clock progress.Clock, l *logger.Logger) *Service {
	return &Service{store: store, clock: clock, logger: l.Named("journal")}
}

func (s *Service) Create(ctx context.Context, userID string, in Input) (*models.JournalEntry, error) {
	v := validate.Struct(&in)
	if !v.Validate() {
		return nil, fmt.Errorf("%s: %w", v.Errors.One(), progress.ErrInvalidConfiguration)
	}

	entry := &models.JournalEntry{
		ID:              uuid.NewString(),
		UserID:          userID,
		Gratitude:       strings.TrimSpace(in.Gratitude),
		Insight:         strings.TrimSpace(in.Insight),
		Humor:           in.Humor,
		DurationMinutes: in.DurationMinutes,
		SessionDate:     s.clock.Now(),
	}
	if err := s.store.CreateJournal(ctx, entry); err != nil {
		return nil, fmt.Errorf("create journal for %s: %w", userID, err)
	}

	s.logger.Debugw("Journal entry saved", "user_id", userID, "humor", entry.Humor)
	return entry, nil
}

// List returns the newest entries first. limit falls back to the default
// when unset and is capped at MaxListLimit.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]models.JournalEntry, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	entries, err := s.store.ListJournals(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list journals for %s: %w", userID, err)
	}
	if entries == nil {
		entries = []models.JournalEntry{}
	}
	return entries, nil
}

// RecentInsights returns up to n non-empty reflections, newest first.
func (s *Service) RecentInsights(ctx context.Context, userID string, n int) ([]string, error) {
	entries, err := s.store.ListJournals(ctx, userID, n)
	if err != nil {
		return nil, fmt.Errorf("recent insights for %s: %w", userID, err)
	}

	var out []string
	for _, e := range entries {
		switch {
		case e.Insight != "":
			out = append(out, e.Insight)
		case e.Gratitude != "":
			out = append(out, e.Gratitude)
		}
	}
	return out, nil
}
