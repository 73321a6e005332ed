package db

import (
	"context"
	"time"

	"minuto/internal/models"
	"minuto/internal/progress"
)

// Store is everything the service persists. PostgresDB is the production
// implementation; MemoryDB backs tests and the memory driver.
type Store interface {
	progress.Store
	progress.SubscriptionChecker

	// EnsureUser creates the user and its zeroed progress on first sight.
	EnsureUser(ctx context.Context, id, email string) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	SetStripeCustomer(ctx context.Context, userID, customerID string) error
	UserIDByCustomer(ctx context.Context, customerID string) (string, error)
	ApplySubscription(ctx context.Context, userID string, update models.SubscriptionUpdate) error

	GetDevotional(ctx context.Context, day int) (*models.Devotional, error)

	CreateJournal(ctx context.Context, entry *models.JournalEntry) error
	// ListJournals returns the newest entries first.
	ListJournals(ctx context.Context, userID string, limit int) ([]models.JournalEntry, error)

	CreateHighlight(ctx context.Context, h *models.Highlight) error
	ListHighlights(ctx context.Context, userID string, ref models.ChapterRef) ([]models.Highlight, error)
	DeleteHighlight(ctx context.Context, userID, id string) error
	CreateNote(ctx context.Context, n *models.Note) error
	ListNotes(ctx context.Context, userID string, ref models.ChapterRef) ([]models.Note, error)
	UpdateNote(ctx context.Context, userID, id, text string, at time.Time) (*models.Note, error)
	DeleteNote(ctx context.Context, userID, id string) error
	CreateFavorite(ctx context.Context, f *models.Favorite) error
	ListFavorites(ctx context.Context, userID string, ref *models.ChapterRef, limit int) ([]models.Favorite, error)
	DeleteFavorite(ctx context.Context, userID, id string) error
	CountAnnotations(ctx context.Context, userID string) (models.AnnotationCounts, error)

	CreateConversation(ctx context.Context, c *models.ChatConversation) error
	// GetConversation returns the messages oldest first; ErrNotFound unless
	// the conversation belongs to userID.
	GetConversation(ctx context.Context, userID, id string) (*models.ChatConversation, error)
	ListConversations(ctx context.Context, userID string, limit int) ([]models.ChatConversation, error)
	AddChatMessage(ctx context.Context, m *models.ChatMessage) error
	DeleteConversation(ctx context.Context, userID, id string) error

	// ReminderTargets lists users whose reminder is due at hhmm and who have
	// not completed a qualifying ritual on today.
	ReminderTargets(ctx context.Context, hhmm string, today time.Time) ([]models.ReminderTarget, error)

	Close()
}
