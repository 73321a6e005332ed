package bible

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/validate"

	"minuto/internal/models"
	"minuto/internal/progress"
	"minuto/pkg/logger"
)

// RecentFavorites is how many favorites are listed without a chapter filter.
const RecentFavorites = 10

type Store interface {
	CreateHighlight(ctx context.Context, h *models.Highlight) error
	ListHighlights(ctx context.Context, userID string, ref models.ChapterRef) ([]models.Highlight, error)
	DeleteHighlight(ctx context.Context, userID, id string) error

	CreateNote(ctx context.Context, n *models.Note) error
	ListNotes(ctx context.Context, userID string, ref models.ChapterRef) ([]models.Note, error)
	UpdateNote(ctx context.Context, userID, id, text string, at time.Time) (*models.Note, error)
	DeleteNote(ctx context.Context, userID, id string) error

	CreateFavorite(ctx context.Context, f *models.Favorite) error
	// ListFavorites filters by ref when set, ordered by verse; otherwise it
	// returns the newest limit favorites.
	ListFavorites(ctx context.Context, userID string, ref *models.ChapterRef, limit int) ([]models.Favorite, error)
	DeleteFavorite(ctx context.Context, userID, id string) error

	CountAnnotations(ctx context.Context, userID string) (models.AnnotationCounts, error)
}

type HighlightInput struct {
	Book            string `json:"book" validate:"required|maxLen:64"`
	Chapter         int    `json:"chapter" validate:"required|min:1"`
	VerseNumber     int    `json:"verse_number" validate:"required|min:1"`
	HighlightedText string `json:"highlighted_text" validate:"required|maxLen:2000"`
	Color           string `json:"color" validate:"required|maxLen:32"`
}

type NoteInput struct {
	Book        string `json:"book" validate:"required|maxLen:64"`
	Chapter     int    `json:"chapter" validate:"required|min:1"`
	VerseNumber int    `json:"verse_number" validate:"required|min:1"`
	NoteText    string `json:"note_text" validate:"required|maxLen:5000"`
}

type FavoriteInput struct {
	Book        string `json:"book" validate:"required|maxLen:64"`
	Chapter     int    `json:"chapter" validate:"required|min:1"`
	VerseNumber int    `json:"verse_number" validate:"required|min:1"`
}

// Service keeps a reader's highlights, notes and favorites. Reading and
// annotating never touch the streak.
type Service struct {
	store  Store
	clock  progress.Clock
	logger *logger.Logger
}

func NewService(store Store, clock progress.Clock, l *logger.Logger) *Service {
	return &Service{store: store, clock: clock, logger: l.Named("bible")}
}

func check(in interface{}) error {
	v := validate.Struct(in)
	if !v.Validate() {
		return fmt.Errorf("%s: %w", v.Errors.One(), progress.ErrInvalidConfiguration)
	}
	return nil
}

// ParseRef validates a book and chapter taken from a query string.
func ParseRef(book string, chapter int) (models.ChapterRef, error) {
	book = strings.TrimSpace(book)
	if book == "" || chapter < 1 {
		return models.ChapterRef{}, fmt.Errorf("book and chapter are required: %w", progress.ErrInvalidConfiguration)
	}
	return models.ChapterRef{Book: book, Chapter: chapter}, nil
}

func (s *Service) AddHighlight(ctx context.Context, userID string, in HighlightInput) (*models.Highlight, error) {
	if err := check(&in); err != nil {
		return nil, err
	}

	h := &models.Highlight{
		ID:              uuid.NewString(),
		UserID:          userID,
		Book:            strings.TrimSpace(in.Book),
		Chapter:         in.Chapter,
		VerseNumber:     in.VerseNumber,
		HighlightedText: in.HighlightedText,
		Color:           in.Color,
		CreatedAt:       s.clock.Now(),
	}
	if err := s.store.CreateHighlight(ctx, h); err != nil {
		return nil, fmt.Errorf("create highlight for %s: %w", userID, err)
	}
	s.logger.Debugw("Highlight saved", "user_id", userID, "book", h.Book, "chapter", h.Chapter)
	return h, nil
}

func (s *Service) Highlights(ctx context.Context, userID string, ref models.ChapterRef) ([]models.Highlight, error) {
	out, err := s.store.ListHighlights(ctx, userID, ref)
	if err != nil {
		return nil, fmt.Errorf("list highlights for %s: %w", userID, err)
	}
	if out == nil {
		out = []models.Highlight{}
	}
	return out, nil
}

func (s *Service) RemoveHighlight(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteHighlight(ctx, userID, id); err != nil {
		return fmt.Errorf("delete highlight %s: %w", id, err)
	}
	return nil
}

func (s *Service) AddNote(ctx context.Context, userID string, in NoteInput) (*models.Note, error) {
	if err := check(&in); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	n := &models.Note{
		ID:          uuid.NewString(),
		UserID:      userID,
		Book:        strings.TrimSpace(in.Book),
		Chapter:     in.Chapter,
		VerseNumber: in.VerseNumber,
		NoteText:    in.NoteText,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateNote(ctx, n); err != nil {
		return nil, fmt.Errorf("create note for %s: %w", userID, err)
	}
	s.logger.Debugw("Note saved", "user_id", userID, "book", n.Book, "chapter", n.Chapter)
	return n, nil
}

func (s *Service) Notes(ctx context.Context, userID string, ref models.ChapterRef) ([]models.Note, error) {
	out, err := s.store.ListNotes(ctx, userID, ref)
	if err != nil {
		return nil, fmt.Errorf("list notes for %s: %w", userID, err)
	}
	if out == nil {
		out = []models.Note{}
	}
	return out, nil
}

// EditNote replaces the text of one of the user's notes.
func (s *Service) EditNote(ctx context.Context, userID, id, text string) (*models.Note, error) {
	if id == "" || strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("id and note text are required: %w", progress.ErrInvalidConfiguration)
	}
	n, err := s.store.UpdateNote(ctx, userID, id, text, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("update note %s: %w", id, err)
	}
	return n, nil
}

func (s *Service) RemoveNote(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteNote(ctx, userID, id); err != nil {
		return fmt.Errorf("delete note %s: %w", id, err)
	}
	return nil
}

func (s *Service) AddFavorite(ctx context.Context, userID string, in FavoriteInput) (*models.Favorite, error) {
	if err := check(&in); err != nil {
		return nil, err
	}

	f := &models.Favorite{
		ID:          uuid.NewString(),
		UserID:      userID,
		Book:        strings.TrimSpace(in.Book),
		Chapter:     in.Chapter,
		VerseNumber: in.VerseNumber,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.store.CreateFavorite(ctx, f); err != nil {
		return nil, fmt.Errorf("create favorite for %s: %w", userID, err)
	}
	return f, nil
}

// Favorites lists the favorites of one chapter, or the most recent ones
// when ref is nil.
func (s *Service) Favorites(ctx context.Context, userID string, ref *models.ChapterRef) ([]models.Favorite, error) {
	out, err := s.store.ListFavorites(ctx, userID, ref, RecentFavorites)
	if err != nil {
		return nil, fmt.Errorf("list favorites for %s: %w", userID, err)
	}
	if out == nil {
		out = []models.Favorite{}
	}
	return out, nil
}

func (s *Service) RemoveFavorite(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteFavorite(ctx, userID, id); err != nil {
		return fmt.Errorf("delete favorite %s: %w", id, err)
	}
	return nil
}

func (s *Service) Counts(ctx context.Context, userID string) (models.AnnotationCounts, error) {
	counts, err := s.store.CountAnnotations(ctx, userID)
	if err != nil {
		return models.AnnotationCounts{}, fmt.Errorf("count annotations for %s: %w", userID, err)
	}
	return counts, nil
}
