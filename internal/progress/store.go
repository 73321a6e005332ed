package progress

import (
	"context"

	"minuto/internal/models"
)

// Store is the record store the engine reads and writes. The Update* methods
// run fn under a per-key lock (row lock or mutex) and persist the result only
// when fn returns nil. They return ErrNotFound when the record does not exist.
type Store interface {
	GetProgress(ctx context.Context, userID string) (*models.UserProgress, error)
	UpdateProgress(ctx context.Context, userID string, fn func(p *models.UserProgress) error) (*models.UserProgress, error)

	// CreateSession is a no-op when a session with the same id exists.
	CreateSession(ctx context.Context, session *models.DevotionalSession) error
	// SessionTotals returns the number of sessions and their summed duration.
	SessionTotals(ctx context.Context, userID string) (count int, totalSec int, err error)

	// GetPreferences returns the defaults, unsaved, when the user has none.
	GetPreferences(ctx context.Context, userID string) (*models.DevotionalPreference, error)
	// UpdatePreferences creates the default preferences when missing.
	UpdatePreferences(ctx context.Context, userID string, fn func(p *models.DevotionalPreference) error) (*models.DevotionalPreference, error)

	CreateRun(ctx context.Context, run *models.RitualRun) error
	GetRun(ctx context.Context, runID string) (*models.RitualRun, error)
	UpdateRun(ctx context.Context, runID string, fn func(run *models.RitualRun) error) (*models.RitualRun, error)

	// GetUsage returns ErrNotFound when the month has no row yet.
	GetUsage(ctx context.Context, key models.UsageKey) (*models.MonthlyUsage, error)
	// IncrementUsage atomically creates the row at 1 or adds 1 to it.
	IncrementUsage(ctx context.Context, key models.UsageKey) (*models.MonthlyUsage, error)
}

// SubscriptionChecker reports whether a user has the unlimited capability.
type SubscriptionChecker interface {
	IsUnlimited(ctx context.Context, userID string) (bool, error)
}

// Notifier announces a new longest streak. Failures are logged, never returned.
type Notifier interface {
	AnnounceRecord(ctx context.Context, userID string, streak int) error
}
