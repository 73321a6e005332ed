package journal

import (
	"context"
	"fmt"
	"math"

	"minuto/internal/models"
	"minuto/internal/progress"
)

// Bounds on how many entries the report reads and returns.
const (
	reportEntries = 365
	reportPoints  = 30
)

type DataPoint struct {
	Date            string `json:"date"`
	Humor           int    `json:"humor"`
	Streak          int    `json:"streak"`
	DurationMinutes int    `json:"duration_minutes"`
}

type StreakBand struct {
	Label     string  `json:"label"`
	MeanHumor float64 `json:"mean_humor"`
	Count     int     `json:"count"`
}

type HumorStreakReport struct {
	Correlation     float64      `json:"correlation"`
	Strength        string       `json:"strength"`
	Interpretation  string       `json:"interpretation"`
	DataPoints      []DataPoint  `json:"data_points"`
	Bands           []StreakBand `json:"bands"`
	CurrentStreak   int          `json:"current_streak"`
	TotalDataPoints int          `json:"total_data_points"`
}

var bands = []struct {
	label    string
	min, max int
}{
	{"1-3 dias", 1, 3},
	{"4-7 dias", 4, 7},
	{"8-14 dias", 8, 14},
	{"15-30 dias", 15, 30},
	{"30+ dias", 31, math.MaxInt},
}

// HumorStreak correlates the mood of each journal entry with the run of
// consecutive journal days ending on it. currentStreak is echoed back.
// It returns ErrNotFound when the user has no entries.
func (s *Service) HumorStreak(ctx context.Context, userID string, currentStreak int) (*HumorStreakReport, error) {
	entries, err := s.store.ListJournals(ctx, userID, reportEntries)
	if err != nil {
		return nil, fmt.Errorf("humor report for %s: %w", userID, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no journal entries for %s: %w", userID, progress.ErrNotFound)
	}

	// oldest first
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	points := dataPoints(entries)
	r := Pearson(points)
	strength, interpretation := interpret(r)

	report := &HumorStreakReport{
		Correlation:     math.Round(r*1000) / 1000,
		Strength:        strength,
		Interpretation:  interpretation,
		DataPoints:      points,
		Bands:           streakBands(points),
		CurrentStreak:   currentStreak,
		TotalDataPoints: len(points),
	}
	if len(points) > reportPoints {
		report.DataPoints = points[len(points)-reportPoints:]
	}
	return report, nil
}

// dataPoints walks back from each entry while earlier entries sit exactly
// 1, 2, 3... days before it.
func dataPoints(entries []models.JournalEntry) []DataPoint {
	points := make([]DataPoint, len(entries))
	for i, e := range entries {
		streak := 1
		for j := i - 1; j >= 0; j-- {
			if progress.DaysBetween(entries[j].SessionDate, e.SessionDate) != streak {
				break
			}
			streak++
		}
		points[i] = DataPoint{
			Date:            progress.CalendarDay(e.SessionDate).Format("2006-01-02"),
			Humor:           e.Humor,
			Streak:          streak,
			DurationMinutes: e.DurationMinutes,
		}
	}
	return points
}

// Pearson is the correlation of streak and humor, 0 when it is undefined.
func Pearson(points []DataPoint) float64 {
	n := float64(len(points))
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumX2, sumY2 float64
	for _, p := range points {
		x, y := float64(p.Streak), float64(p.Humor)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
		sumY2 += y * y
	}

	den := math.Sqrt((n*sumX2 - sumX*sumX) * (n*sumY2 - sumY*sumY))
	if den == 0 || math.IsNaN(den) {
		return 0
	}
	return (n*sumXY - sumX*sumY) / den
}

func interpret(r float64) (string, string) {
	switch abs := math.Abs(r); {
	case abs < 0.3:
		return "fraca", "Há pouca relação entre sua constância e seu humor. Continue explorando outros fatores que podem influenciar seu bem-estar espiritual."
	case abs < 0.7:
		if r > 0 {
			return "moderada", "Há uma relação moderada positiva: quando você mantém sua constância, seu humor tende a melhorar."
		}
		return "moderada", "Há uma relação moderada inversa. Períodos de menor humor podem coincidir com maior busca espiritual."
	default:
		if r > 0 {
			return "forte", "Há uma forte correlação positiva: sua constância está diretamente ligada à melhora do seu humor."
		}
		return "forte", "Há uma forte relação inversa. Considere conversar com um mentor espiritual sobre os padrões observados."
	}
}

func streakBands(points []DataPoint) []StreakBand {
	out := []StreakBand{}
	for _, b := range bands {
		sum, count := 0, 0
		for _, p := range points {
			if p.Streak >= b.min && p.Streak <= b.max {
				sum += p.Humor
				count++
			}
		}
		if count == 0 {
			continue
		}
		mean := float64(sum) / float64(count)
		out = append(out, StreakBand{Label: b.label, MeanHumor: math.Round(mean*100) / 100, Count: count})
	}
	return out
}
