package journal

import (
	"context"
	"fmt"
	"math"
	"time"

	"minuto/internal/models"
	"minuto/internal/progress"
)

const (
	summaryWindow = 30 * 24 * time.Hour
	trendEntries  = 7
)

const (
	TrendRising  = "crescente"
	TrendFalling = "decrescente"
	TrendSteady  = "estável"
)

type MoodPoint struct {
	Date            string `json:"date"`
	Humor           int    `json:"humor"`
	DurationMinutes int    `json:"duration_minutes"`
}

// MoodSummary aggregates the journal entries of the last 30 days.
type MoodSummary struct {
	AverageHumor   float64     `json:"average_humor"`
	AverageMinutes float64     `json:"average_minutes"`
	Trend          string      `json:"trend"`
	TotalJournals  int         `json:"total_journals"`
	ActiveDays     int         `json:"active_days"`
	Entries        []MoodPoint `json:"entries"`
}

// MoodSummary compares the newest week of entries with the oldest one in the
// window to tell whether the mood is rising.
func (s *Service) MoodSummary(ctx context.Context, userID string) (*MoodSummary, error) {
	all, err := s.store.ListJournals(ctx, userID, reportEntries)
	if err != nil {
		return nil, fmt.Errorf("mood summary for %s: %w", userID, err)
	}

	since := s.clock.Now().Add(-summaryWindow)
	var entries []models.JournalEntry
	for _, e := range all {
		if !e.SessionDate.Before(since) {
			entries = append(entries, e)
		}
	}

	summary := &MoodSummary{Trend: TrendSteady, Entries: []MoodPoint{}, TotalJournals: len(entries)}
	if len(entries) == 0 {
		return summary, nil
	}

	days := make(map[string]struct{})
	humor, minutes := 0, 0
	for _, e := range entries {
		date := progress.CalendarDay(e.SessionDate).Format("2006-01-02")
		days[date] = struct{}{}
		humor += e.Humor
		minutes += e.DurationMinutes
		summary.Entries = append(summary.Entries, MoodPoint{Date: date, Humor: e.Humor, DurationMinutes: e.DurationMinutes})
	}

	n := float64(len(entries))
	summary.AverageHumor = math.Round(float64(humor)/n*100) / 100
	summary.AverageMinutes = math.Round(float64(minutes)/n*10) / 10
	summary.ActiveDays = len(days)

	// entries are newest first
	k := min(len(entries), trendEntries)
	newest, oldest := meanHumor(entries[:k]), meanHumor(entries[len(entries)-k:])
	switch {
	case newest > oldest:
		summary.Trend = TrendRising
	case newest < oldest:
		summary.Trend = TrendFalling
	}
	return summary, nil
}

func meanHumor(entries []models.JournalEntry) float64 {
	sum := 0
	for _, e := range entries {
		sum += e.Humor
	}
	return float64(sum) / float64(len(entries))
}
