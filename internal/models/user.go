package models

import (
	"time"
)

// User is the account as seen by this service. The id comes from the
// upstream auth provider; subscription fields are maintained by the Stripe webhook.
type User struct {
	ID                     string     `json:"id"`
	Email                  string     `json:"email"`
	IsProMember            bool       `json:"is_pro_member"`
	StripeCustomerID       string     `json:"-"`
	StripeSubscriptionID   string     `json:"-"`
	StripePriceID          string     `json:"-"`
	StripeCurrentPeriodEnd *time.Time `json:"stripe_current_period_end,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// UserProgress holds the streak counters of a user.
// LongestStreak >= CurrentStreak always holds.
type UserProgress struct {
	UserID           string     `json:"user_id"`
	CurrentStreak    int        `json:"current_streak"`
	LongestStreak    int        `json:"longest_streak"`
	LastActivityDate *time.Time `json:"last_activity_date"`
	TotalCompletions int        `json:"total_completions"`
}

// SubscriptionUpdate is applied by the billing webhook.
type SubscriptionUpdate struct {
	IsProMember      bool
	CustomerID       string
	SubscriptionID   string
	PriceID          string
	CurrentPeriodEnd *time.Time
}

// UsageKey identifies the monthly usage row of a user.
type UsageKey struct {
	UserID string
	Month  int
	Year   int
}

type MonthlyUsage struct {
	UserID        string `json:"user_id"`
	Month         int    `json:"month"`
	Year          int    `json:"year"`
	QuestionsUsed int    `json:"questions_used"`
}

type JournalEntry struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Gratitude       string    `json:"gratitude"`
	Insight         string    `json:"insight"`
	Humor           int       `json:"humor"`
	DurationMinutes int       `json:"duration_minutes"`
	SessionDate     time.Time `json:"session_date"`
}
