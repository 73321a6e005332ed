package content

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"minuto/internal/models"
	"minuto/internal/progress"
	"minuto/pkg/logger"
)

// Source reads the seeded devotional of one day.
type Source interface {
	GetDevotional(ctx context.Context, day int) (*models.Devotional, error)
}

// Daily is the devotional served for a day plus the action suggestion.
type Daily struct {
	*models.Devotional
	RequestedDay     int    `json:"requested_day"`
	ActionSuggestion string `json:"action_suggestion"`
}

type Service struct {
	source Source
	cache  Cache
	logger *logger.Logger
}

func NewService(source Source, cache Cache, l *logger.Logger) *Service {
	if cache == nil {
		cache = noopCache{}
	}
	return &Service{source: source, cache: cache, logger: l.Named("content")}
}

// Default is served when nothing is seeded at all.
func Default() *models.Devotional {
	return &models.Devotional{
		Day:         1,
		Title:       "Paz no Caos",
		VerseRef:    "Filipenses 4:6-7",
		VerseText:   "Não andem ansiosos por coisa alguma, mas em tudo, pela oração e súplicas, e com ação de graças, apresentem seus pedidos a Deus.",
		ContextLine: "Entregar a ansiedade em oração.",
		LengthSec:   600,
	}
}

func cacheKey(day int) string {
	return "devotional:" + strconv.Itoa(day)
}

// ForDay returns the devotional of day. Days past the seeded cycle start
// over at day 1.
func (s *Service) ForDay(ctx context.Context, day int) (*Daily, error) {
	if day < 1 {
		return nil, fmt.Errorf("day %d: %w", day, progress.ErrInvalidConfiguration)
	}

	if raw, ok := s.cache.Get(cacheKey(day)); ok {
		var d models.Devotional
		if err := json.Unmarshal(raw, &d); err == nil {
			return s.daily(day, &d), nil
		}
	}

	d, err := s.lookup(ctx, day)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(d); err == nil {
		s.cache.Set(cacheKey(day), raw)
	}
	return s.daily(day, d), nil
}

func (s *Service) lookup(ctx context.Context, day int) (*models.Devotional, error) {
	d, err := s.source.GetDevotional(ctx, day)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, progress.ErrNotFound) {
		return nil, fmt.Errorf("get devotional day %d: %w", day, err)
	}

	if day != 1 {
		s.logger.Debugw("Devotional cycle restarted", "day", day)
		d, err = s.source.GetDevotional(ctx, 1)
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, progress.ErrNotFound) {
			return nil, fmt.Errorf("get devotional day 1: %w", err)
		}
	}

	s.logger.Warnw("No devotionals seeded, serving the default", "day", day)
	return Default(), nil
}

func (s *Service) daily(day int, d *models.Devotional) *Daily {
	return &Daily{Devotional: d, RequestedDay: day, ActionSuggestion: ActionSuggestion(day)}
}
