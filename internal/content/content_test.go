package content

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minuto/internal/models"
	"minuto/internal/progress"
	"minuto/pkg/logger"
)

type fakeSource struct {
	days  map[int]*models.Devotional
	err   error
	calls int
}

func (f *fakeSource) GetDevotional(ctx context.Context, day int) (*models.Devotional, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.days[day]
	if !ok {
		return nil, progress.ErrNotFound
	}
	c := *d
	return &c, nil
}

func seeded() *fakeSource {
	return &fakeSource{days: map[int]*models.Devotional{
		1: {Day: 1, Title: "Paz no Caos", VerseRef: "Filipenses 4:6-7"},
		2: {Day: 2, Title: "Força na Fraqueza", VerseRef: "2 Coríntios 12:9"},
	}}
}

func TestForDay(t *testing.T) {
	ctx := context.Background()
	s := NewService(seeded(), nil, logger.NewNop())

	d, err := s.ForDay(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Força na Fraqueza", d.Title)
	assert.Equal(t, 2, d.RequestedDay)
	assert.Equal(t, ActionSuggestion(2), d.ActionSuggestion)

	_, err = s.ForDay(ctx, 0)
	assert.ErrorIs(t, err, progress.ErrInvalidConfiguration)
}

func TestForDayRestartsCycle(t *testing.T) {
	s := NewService(seeded(), nil, logger.NewNop())

	d, err := s.ForDay(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Day)
	assert.Equal(t, 9, d.RequestedDay)
	assert.Equal(t, ActionSuggestion(9), d.ActionSuggestion)
}

func TestForDayDefault(t *testing.T) {
	s := NewService(&fakeSource{}, nil, logger.NewNop())

	d, err := s.ForDay(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, Default().Title, d.Title)
}

func TestForDaySourceFailure(t *testing.T) {
	boom := errors.New("connection reset")
	s := NewService(&fakeSource{err: boom}, nil, logger.NewNop())

	_, err := s.ForDay(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
}

func TestForDayCached(t *testing.T) {
	ctx := context.Background()
	src := seeded()
	s := NewService(src, NewCache(true, 1, time.Minute, logger.NewNop()), logger.NewNop())

	first, err := s.ForDay(ctx, 1)
	require.NoError(t, err)
	second, err := s.ForDay(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	assert.Equal(t, first.Title, second.Title)
	assert.Equal(t, first.VerseRef, second.VerseRef)
}

func TestDisabledCache(t *testing.T) {
	c := NewCache(false, 1, time.Minute, logger.NewNop())
	c.Set("k", []byte("v"))
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestActionSuggestionCycles(t *testing.T) {
	assert.Len(t, dailyActions, 30)
	assert.Equal(t, dailyActions[0], ActionSuggestion(1))
	assert.Equal(t, dailyActions[29], ActionSuggestion(30))
	assert.Equal(t, ActionSuggestion(1), ActionSuggestion(31))
}
