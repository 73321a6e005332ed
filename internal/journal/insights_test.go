package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoodSummary(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 20, 0, 0, 0, time.UTC)
	s, _ := newService(t, &now)

	_, err := s.Create(ctx, userID, Input{Humor: 1, DurationMinutes: 15})
	require.NoError(t, err)
	now = now.AddDate(0, 0, 35)

	for i := 0; i < 10; i++ {
		in := Input{Humor: 2, DurationMinutes: 5}
		if i >= 5 {
			in = Input{Humor: 4, DurationMinutes: 15}
		}
		_, err := s.Create(ctx, userID, in)
		require.NoError(t, err)
		if i != 8 {
			now = now.AddDate(0, 0, 1)
		}
	}

	summary, err := s.MoodSummary(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 10, summary.TotalJournals, "entries older than the window are left out")
	assert.Equal(t, 9, summary.ActiveDays)
	assert.Equal(t, 3.0, summary.AverageHumor)
	assert.Equal(t, 10.0, summary.AverageMinutes)
	assert.Equal(t, TrendRising, summary.Trend)
	require.Len(t, summary.Entries, 10)
	assert.Equal(t, 4, summary.Entries[0].Humor)
}

func TestMoodSummaryTrend(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 20, 0, 0, 0, time.UTC)
	s, _ := newService(t, &now)

	summary, err := s.MoodSummary(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, TrendSteady, summary.Trend)
	assert.Zero(t, summary.TotalJournals)
	assert.NotNil(t, summary.Entries)

	for _, humor := range []int{5, 5, 4, 3, 2, 2, 1, 1} {
		_, err := s.Create(ctx, userID, Input{Humor: humor, DurationMinutes: 10})
		require.NoError(t, err)
		now = now.Add(time.Minute)
	}
	summary, err = s.MoodSummary(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, TrendFalling, summary.Trend)
	assert.Equal(t, 2.88, summary.AverageHumor)
	assert.Equal(t, 1, summary.ActiveDays)
}
