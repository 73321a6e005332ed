package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"minuto/internal/models"
	"minuto/internal/progress"
)

// MemoryDB keeps every record in process. A single mutex serializes all
// writes, which gives the per-key atomicity the engine relies on.
type MemoryDB struct {
	mu          sync.Mutex
	users       map[string]*models.User
	progress    map[string]*models.UserProgress
	preferences map[string]*models.DevotionalPreference
	sessions    []*models.DevotionalSession
	runs        map[string]*models.RitualRun
	usage       map[models.UsageKey]*models.MonthlyUsage
	devotionals map[int]*models.Devotional
	journals    []*models.JournalEntry
	highlights  []*models.Highlight
	notes       []*models.Note
	favorites   []*models.Favorite
	chats       map[string]*models.ChatConversation
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		users:       make(map[string]*models.User),
		progress:    make(map[string]*models.UserProgress),
		preferences: make(map[string]*models.DevotionalPreference),
		runs:        make(map[string]*models.RitualRun),
		usage:       make(map[models.UsageKey]*models.MonthlyUsage),
		devotionals: make(map[int]*models.Devotional),
		chats:       make(map[string]*models.ChatConversation),
	}
}

func (m *MemoryDB) Close() {}

func (m *MemoryDB) EnsureUser(ctx context.Context, id, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		now := time.Now()
		user = &models.User{ID: id, Email: email, CreatedAt: now, UpdatedAt: now}
		m.users[id] = user
		m.progress[id] = &models.UserProgress{UserID: id}
	} else if email != "" && user.Email != email {
		user.Email = email
		user.UpdatedAt = time.Now()
	}
	u := *user
	return &u, nil
}

func (m *MemoryDB) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, progress.ErrNotFound)
	}
	u := *user
	return &u, nil
}

func (m *MemoryDB) SetStripeCustomer(ctx context.Context, userID, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, progress.ErrNotFound)
	}
	user.StripeCustomerID = customerID
	return nil
}

func (m *MemoryDB) UserIDByCustomer(ctx context.Context, customerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, user := range m.users {
		if customerID != "" && user.StripeCustomerID == customerID {
			return id, nil
		}
	}
	return "", fmt.Errorf("customer %s: %w", customerID, progress.ErrNotFound)
}

func (m *MemoryDB) ApplySubscription(ctx context.Context, userID string, update models.SubscriptionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, progress.ErrNotFound)
	}
	user.IsProMember = update.IsProMember
	if update.CustomerID != "" {
		user.StripeCustomerID = update.CustomerID
	}
	user.StripeSubscriptionID = update.SubscriptionID
	user.StripePriceID = update.PriceID
	user.StripeCurrentPeriodEnd = update.CurrentPeriodEnd
	user.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryDB) IsUnlimited(ctx context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return false, fmt.Errorf("user %s: %w", userID, progress.ErrNotFound)
	}
	return user.IsProMember, nil
}

func (m *MemoryDB) GetProgress(ctx context.Context, userID string) (*models.UserProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.progress[userID]
	if !ok {
		return nil, fmt.Errorf("progress of %s: %w", userID, progress.ErrNotFound)
	}
	c := *p
	return &c, nil
}

func (m *MemoryDB) UpdateProgress(ctx context.Context, userID string, fn func(p *models.UserProgress) error) (*models.UserProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.progress[userID]
	if !ok {
		return nil, fmt.Errorf("progress of %s: %w", userID, progress.ErrNotFound)
	}
	c := *p
	if err := fn(&c); err != nil {
		return nil, err
	}
	m.progress[userID] = &c
	out := c
	return &out, nil
}

// PutProgress overwrites the counters of an existing user. Used to seed state.
func (m *MemoryDB) PutProgress(p models.UserProgress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[p.UserID] = &p
}

func (m *MemoryDB) CreateSession(ctx context.Context, session *models.DevotionalSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.sessions {
		if existing.ID == session.ID {
			return nil
		}
	}
	s := *session
	s.CompletedSteps = append([]models.Step(nil), session.CompletedSteps...)
	m.sessions = append(m.sessions, &s)
	return nil
}

// Sessions returns the recorded sessions of a user in insertion order.
func (m *MemoryDB) Sessions(userID string) []models.DevotionalSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.DevotionalSession
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out
}

func (m *MemoryDB) SessionTotals(ctx context.Context, userID string) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count, total := 0, 0
	for _, s := range m.sessions {
		if s.UserID == userID {
			count++
			total += s.DurationSec
		}
	}
	return count, total, nil
}

func (m *MemoryDB) GetPreferences(ctx context.Context, userID string) (*models.DevotionalPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return nil, fmt.Errorf("user %s: %w", userID, progress.ErrNotFound)
	}
	if p, ok := m.preferences[userID]; ok {
		c := *p
		return &c, nil
	}
	return models.DefaultPreference(userID), nil
}

func (m *MemoryDB) UpdatePreferences(ctx context.Context, userID string, fn func(p *models.DevotionalPreference) error) (*models.DevotionalPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return nil, fmt.Errorf("user %s: %w", userID, progress.ErrNotFound)
	}
	c := models.DefaultPreference(userID)
	if p, ok := m.preferences[userID]; ok {
		*c = *p
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = time.Now()
	m.preferences[userID] = c
	out := *c
	return &out, nil
}

func copyRun(run *models.RitualRun) *models.RitualRun {
	c := *run
	c.Steps = append([]models.StepRecord{}, run.Steps...)
	if run.CompletedAt != nil {
		t := *run.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func (m *MemoryDB) CreateRun(ctx context.Context, run *models.RitualRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[run.ID] = copyRun(run)
	return nil
}

func (m *MemoryDB) GetRun(ctx context.Context, runID string) (*models.RitualRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("ritual run %s: %w", runID, progress.ErrNotFound)
	}
	return copyRun(run), nil
}

func (m *MemoryDB) UpdateRun(ctx context.Context, runID string, fn func(run *models.RitualRun) error) (*models.RitualRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("ritual run %s: %w", runID, progress.ErrNotFound)
	}
	c := copyRun(run)
	if err := fn(c); err != nil {
		return nil, err
	}
	m.runs[runID] = copyRun(c)
	return c, nil
}

func (m *MemoryDB) GetUsage(ctx context.Context, key models.UsageKey) (*models.MonthlyUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.usage[key]
	if !ok {
		return nil, fmt.Errorf("usage %s %d/%d: %w", key.UserID, key.Month, key.Year, progress.ErrNotFound)
	}
	c := *u
	return &c, nil
}

func (m *MemoryDB) IncrementUsage(ctx context.Context, key models.UsageKey) (*models.MonthlyUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.usage[key]
	if !ok {
		u = &models.MonthlyUsage{UserID: key.UserID, Month: key.Month, Year: key.Year}
		m.usage[key] = u
	}
	u.QuestionsUsed++
	c := *u
	return &c, nil
}

// UsageRows counts the monthly usage rows of a user.
func (m *MemoryDB) UsageRows(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key := range m.usage {
		if key.UserID == userID {
			n++
		}
	}
	return n
}

// PutDevotional seeds the content of one day.
func (m *MemoryDB) PutDevotional(d models.Devotional) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devotionals[d.Day] = &d
}

func (m *MemoryDB) GetDevotional(ctx context.Context, day int) (*models.Devotional, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devotionals[day]
	if !ok {
		return nil, fmt.Errorf("devotional day %d: %w", day, progress.ErrNotFound)
	}
	c := *d
	return &c, nil
}

func (m *MemoryDB) CreateJournal(ctx context.Context, entry *models.JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[entry.UserID]; !ok {
		return fmt.Errorf("user %s: %w", entry.UserID, progress.ErrNotFound)
	}
	e := *entry
	m.journals = append(m.journals, &e)
	return nil
}

func (m *MemoryDB) ListJournals(ctx context.Context, userID string, limit int) ([]models.JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.JournalEntry
	for _, j := range m.journals {
		if j.UserID == userID {
			out = append(out, *j)
		}
	}
	sort.SliceStable(out, func(i, k int) bool {
		return out[i].SessionDate.After(out[k].SessionDate)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryDB) ReminderTargets(ctx context.Context, hhmm string, today time.Time) ([]models.ReminderTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	today = progress.CalendarDay(today)
	var out []models.ReminderTarget
	for id, prefs := range m.preferences {
		if !prefs.ReminderEnabled || prefs.ReminderTime != hhmm || prefs.TelegramChatID == 0 {
			continue
		}
		if p, ok := m.progress[id]; ok && p.LastActivityDate != nil && !p.LastActivityDate.Before(today) {
			continue
		}
		out = append(out, models.ReminderTarget{UserID: id, TelegramChatID: prefs.TelegramChatID})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].UserID < out[k].UserID })
	return out, nil
}

func (m *MemoryDB) requireUser(id string) error {
	if _, ok := m.users[id]; !ok {
		return fmt.Errorf("user %s: %w", id, progress.ErrNotFound)
	}
	return nil
}

func (m *MemoryDB) CreateHighlight(ctx context.Context, h *models.Highlight) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireUser(h.UserID); err != nil {
		return err
	}
	c := *h
	m.highlights = append(m.highlights, &c)
	return nil
}

func (m *MemoryDB) ListHighlights(ctx context.Context, userID string, ref models.ChapterRef) ([]models.Highlight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Highlight
	for _, h := range m.highlights {
		if h.UserID == userID && h.Book == ref.Book && h.Chapter == ref.Chapter {
			out = append(out, *h)
		}
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].VerseNumber < out[k].VerseNumber })
	return out, nil
}

func (m *MemoryDB) DeleteHighlight(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, h := range m.highlights {
		if h.ID == id && h.UserID == userID {
			m.highlights = append(m.highlights[:i], m.highlights[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("highlight %s: %w", id, progress.ErrNotFound)
}

func (m *MemoryDB) CreateNote(ctx context.Context, n *models.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireUser(n.UserID); err != nil {
		return err
	}
	c := *n
	m.notes = append(m.notes, &c)
	return nil
}

func (m *MemoryDB) ListNotes(ctx context.Context, userID string, ref models.ChapterRef) ([]models.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Note
	for _, n := range m.notes {
		if n.UserID == userID && n.Book == ref.Book && n.Chapter == ref.Chapter {
			out = append(out, *n)
		}
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].VerseNumber < out[k].VerseNumber })
	return out, nil
}

func (m *MemoryDB) UpdateNote(ctx context.Context, userID, id, text string, at time.Time) (*models.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.notes {
		if n.ID == id && n.UserID == userID {
			n.NoteText = text
			n.UpdatedAt = at
			c := *n
			return &c, nil
		}
	}
	return nil, fmt.Errorf("note %s: %w", id, progress.ErrNotFound)
}

func (m *MemoryDB) DeleteNote(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, n := range m.notes {
		if n.ID == id && n.UserID == userID {
			m.notes = append(m.notes[:i], m.notes[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("note %s: %w", id, progress.ErrNotFound)
}

func (m *MemoryDB) CreateFavorite(ctx context.Context, f *models.Favorite) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireUser(f.UserID); err != nil {
		return err
	}
	c := *f
	m.favorites = append(m.favorites, &c)
	return nil
}

func (m *MemoryDB) ListFavorites(ctx context.Context, userID string, ref *models.ChapterRef, limit int) ([]models.Favorite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Favorite
	for _, f := range m.favorites {
		if f.UserID != userID {
			continue
		}
		if ref != nil && (f.Book != ref.Book || f.Chapter != ref.Chapter) {
			continue
		}
		out = append(out, *f)
	}

	if ref != nil {
		sort.SliceStable(out, func(i, k int) bool { return out[i].VerseNumber < out[k].VerseNumber })
		return out, nil
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryDB) DeleteFavorite(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, f := range m.favorites {
		if f.ID == id && f.UserID == userID {
			m.favorites = append(m.favorites[:i], m.favorites[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("favorite %s: %w", id, progress.ErrNotFound)
}

func (m *MemoryDB) CountAnnotations(ctx context.Context, userID string) (models.AnnotationCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var counts models.AnnotationCounts
	for _, h := range m.highlights {
		if h.UserID == userID {
			counts.Highlights++
		}
	}
	for _, n := range m.notes {
		if n.UserID == userID {
			counts.Notes++
		}
	}
	for _, f := range m.favorites {
		if f.UserID == userID {
			counts.Favorites++
		}
	}
	return counts, nil
}

func copyConversation(c *models.ChatConversation) *models.ChatConversation {
	out := *c
	out.Messages = append([]models.ChatMessage{}, c.Messages...)
	return &out
}

func (m *MemoryDB) CreateConversation(ctx context.Context, c *models.ChatConversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireUser(c.UserID); err != nil {
		return err
	}
	m.chats[c.ID] = copyConversation(c)
	return nil
}

func (m *MemoryDB) GetConversation(ctx context.Context, userID, id string) (*models.ChatConversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chats[id]
	if !ok || c.UserID != userID {
		return nil, fmt.Errorf("conversation %s: %w", id, progress.ErrNotFound)
	}
	return copyConversation(c), nil
}

func (m *MemoryDB) ListConversations(ctx context.Context, userID string, limit int) ([]models.ChatConversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.ChatConversation
	for _, c := range m.chats {
		if c.UserID != userID {
			continue
		}
		preview := copyConversation(c)
		if len(preview.Messages) > 1 {
			preview.Messages = preview.Messages[:1]
		}
		out = append(out, *preview)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].UpdatedAt.After(out[k].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryDB) AddChatMessage(ctx context.Context, msg *models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chats[msg.ConversationID]
	if !ok {
		return fmt.Errorf("conversation %s: %w", msg.ConversationID, progress.ErrNotFound)
	}
	c.Messages = append(c.Messages, *msg)
	if msg.CreatedAt.After(c.UpdatedAt) {
		c.UpdatedAt = msg.CreatedAt
	}
	return nil
}

func (m *MemoryDB) DeleteConversation(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chats[id]
	if !ok || c.UserID != userID {
		return fmt.Errorf("conversation %s: %w", id, progress.ErrNotFound)
	}
	delete(m.chats, id)
	return nil
}
