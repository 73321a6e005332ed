package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"minuto/config"
	"minuto/internal/models"
	"minuto/internal/progress"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(cfg config.DBConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode, cfg.MaxOpenConns,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DB connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnLifetime
	poolConfig.MaxConnIdleTime = 15 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// notFound maps pgx.ErrNoRows onto the engine's sentinel.
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, progress.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// inTx runs fn in a transaction and commits only when fn succeeds.
func (db *PostgresDB) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (db *PostgresDB) EnsureUser(ctx context.Context, id, email string) (*models.User, error) {
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
            INSERT INTO users (id, email)
            VALUES ($1, $2)
            ON CONFLICT (id) DO UPDATE
            SET email = CASE WHEN $2 = '' THEN users.email ELSE $2 END,
                updated_at = CASE WHEN $2 = '' OR users.email = $2 THEN users.updated_at ELSE NOW() END
        `, id, email); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
            INSERT INTO user_progress (user_id) VALUES ($1)
            ON CONFLICT (user_id) DO NOTHING
        `, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ensure user %s: %w", id, err)
	}
	return db.GetUser(ctx, id)
}

func (db *PostgresDB) GetUser(ctx context.Context, id string) (*models.User, error) {
	query := `
        SELECT id, email, is_pro_member, COALESCE(stripe_customer_id, ''), stripe_subscription_id,
               stripe_price_id, stripe_current_period_end, created_at, updated_at
        FROM users
        WHERE id = $1
    `

	var user models.User
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.IsProMember, &user.StripeCustomerID, &user.StripeSubscriptionID,
		&user.StripePriceID, &user.StripeCurrentPeriodEnd, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "user "+id)
	}
	return &user, nil
}

func (db *PostgresDB) SetStripeCustomer(ctx context.Context, userID, customerID string) error {
	tag, err := db.pool.Exec(ctx, `
        UPDATE users SET stripe_customer_id = $2, updated_at = NOW() WHERE id = $1
    `, userID, customerID)
	if err != nil {
		return fmt.Errorf("set stripe customer of %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, progress.ErrNotFound)
	}
	return nil
}

func (db *PostgresDB) UserIDByCustomer(ctx context.Context, customerID string) (string, error) {
	var id string
	err := db.pool.QueryRow(ctx, `SELECT id FROM users WHERE stripe_customer_id = $1`, customerID).Scan(&id)
	if err != nil {
		return "", notFound(err, "customer "+customerID)
	}
	return id, nil
}

func (db *PostgresDB) ApplySubscription(ctx context.Context, userID string, update models.SubscriptionUpdate) error {
	tag, err := db.pool.Exec(ctx, `
        UPDATE users
        SET is_pro_member = $2,
            stripe_customer_id = COALESCE(NULLIF($3, ''), stripe_customer_id),
            stripe_subscription_id = $4,
            stripe_price_id = $5,
            stripe_current_period_end = $6,
            updated_at = NOW()
        WHERE id = $1
    `, userID, update.IsProMember, update.CustomerID, update.SubscriptionID, update.PriceID, update.CurrentPeriodEnd)
	if err != nil {
		return fmt.Errorf("apply subscription to %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, progress.ErrNotFound)
	}
	return nil
}

func (db *PostgresDB) IsUnlimited(ctx context.Context, userID string) (bool, error) {
	var pro bool
	err := db.pool.QueryRow(ctx, `SELECT is_pro_member FROM users WHERE id = $1`, userID).Scan(&pro)
	if err != nil {
		return false, notFound(err, "user "+userID)
	}
	return pro, nil
}

const progressColumns = `user_id, current_streak, longest_streak, last_activity_date, total_completions`

func scanProgress(row pgx.Row) (*models.UserProgress, error) {
	var p models.UserProgress
	err := row.Scan(&p.UserID, &p.CurrentStreak, &p.LongestStreak, &p.LastActivityDate, &p.TotalCompletions)
	if err != nil {
		return nil, err
	}
	if p.LastActivityDate != nil {
		day := progress.CalendarDay(*p.LastActivityDate)
		p.LastActivityDate = &day
	}
	return &p, nil
}

func (db *PostgresDB) GetProgress(ctx context.Context, userID string) (*models.UserProgress, error) {
	p, err := scanProgress(db.pool.QueryRow(ctx,
		`SELECT `+progressColumns+` FROM user_progress WHERE user_id = $1`, userID))
	if err != nil {
		return nil, notFound(err, "progress of "+userID)
	}
	return p, nil
}

// UpdateProgress locks the progress row so concurrent completions of one
// user serialize.
func (db *PostgresDB) UpdateProgress(ctx context.Context, userID string, fn func(p *models.UserProgress) error) (*models.UserProgress, error) {
	var out *models.UserProgress
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		p, err := scanProgress(tx.QueryRow(ctx,
			`SELECT `+progressColumns+` FROM user_progress WHERE user_id = $1 FOR UPDATE`, userID))
		if err != nil {
			return notFound(err, "progress of "+userID)
		}
		if err := fn(p); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
            UPDATE user_progress
            SET current_streak = $2, longest_streak = $3, last_activity_date = $4, total_completions = $5
            WHERE user_id = $1
        `, userID, p.CurrentStreak, p.LongestStreak, p.LastActivityDate, p.TotalCompletions); err != nil {
			return fmt.Errorf("save progress of %s: %w", userID, err)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func stepsToStrings(steps []models.Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = string(s)
	}
	return out
}

func (db *PostgresDB) CreateSession(ctx context.Context, session *models.DevotionalSession) error {
	_, err := db.pool.Exec(ctx, `
        INSERT INTO devotional_sessions
            (id, user_id, day, duration_sec, completed_steps, eyes_closed_mode, had_fallback, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO NOTHING
    `, session.ID, session.UserID, session.Day, session.DurationSec, stepsToStrings(session.CompletedSteps),
		session.EyesClosedMode, session.HadFallback, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert devotional session: %w", err)
	}
	return nil
}

func (db *PostgresDB) SessionTotals(ctx context.Context, userID string) (int, int, error) {
	var count, total int
	err := db.pool.QueryRow(ctx, `
        SELECT COUNT(*), COALESCE(SUM(duration_sec), 0) FROM devotional_sessions WHERE user_id = $1
    `, userID).Scan(&count, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("session totals of %s: %w", userID, err)
	}
	return count, total, nil
}

const preferenceColumns = `user_id, ritual_minutes, reminder_time, reminder_enabled, voice_guidance,
    haptics_enabled, ambience_volume, telegram_chat_id, last_completed_day, peace_days, updated_at`

func scanPreferences(row pgx.Row) (*models.DevotionalPreference, error) {
	var p models.DevotionalPreference
	err := row.Scan(&p.UserID, &p.RitualMinutes, &p.ReminderTime, &p.ReminderEnabled, &p.VoiceGuidance,
		&p.HapticsEnabled, &p.AmbienceVolume, &p.TelegramChatID, &p.LastCompletedDay, &p.PeaceDays, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (db *PostgresDB) GetPreferences(ctx context.Context, userID string) (*models.DevotionalPreference, error) {
	p, err := scanPreferences(db.pool.QueryRow(ctx,
		`SELECT `+preferenceColumns+` FROM devotional_preferences WHERE user_id = $1`, userID))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get preferences of %s: %w", userID, err)
	}
	if _, err := db.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return models.DefaultPreference(userID), nil
}

func (db *PostgresDB) UpdatePreferences(ctx context.Context, userID string, fn func(p *models.DevotionalPreference) error) (*models.DevotionalPreference, error) {
	var out *models.DevotionalPreference
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		d := models.DefaultPreference(userID)
		_, err := tx.Exec(ctx, `
            INSERT INTO devotional_preferences
                (user_id, ritual_minutes, reminder_time, reminder_enabled, voice_guidance, haptics_enabled, ambience_volume)
            SELECT $1, $2, $3, $4, $5, $6, $7
            WHERE EXISTS (SELECT 1 FROM users WHERE id = $1)
            ON CONFLICT (user_id) DO NOTHING
        `, userID, d.RitualMinutes, d.ReminderTime, d.ReminderEnabled, d.VoiceGuidance, d.HapticsEnabled, d.AmbienceVolume)
		if err != nil {
			return fmt.Errorf("create preferences of %s: %w", userID, err)
		}

		p, err := scanPreferences(tx.QueryRow(ctx,
			`SELECT `+preferenceColumns+` FROM devotional_preferences WHERE user_id = $1 FOR UPDATE`, userID))
		if err != nil {
			return notFound(err, "preferences of "+userID)
		}
		if err := fn(p); err != nil {
			return err
		}
		p.UpdatedAt = time.Now()

		if _, err := tx.Exec(ctx, `
            UPDATE devotional_preferences
            SET ritual_minutes = $2, reminder_time = $3, reminder_enabled = $4, voice_guidance = $5,
                haptics_enabled = $6, ambience_volume = $7, telegram_chat_id = $8,
                last_completed_day = $9, peace_days = $10, updated_at = $11
            WHERE user_id = $1
        `, userID, p.RitualMinutes, p.ReminderTime, p.ReminderEnabled, p.VoiceGuidance, p.HapticsEnabled,
			p.AmbienceVolume, p.TelegramChatID, p.LastCompletedDay, p.PeaceDays, p.UpdatedAt); err != nil {
			return fmt.Errorf("save preferences of %s: %w", userID, err)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

const runColumns = `id, user_id, day, ritual_minutes, eyes_closed_mode, state, started_at,
    step_entered_at, steps, had_fallback, completed_at, session_id`

func scanRun(row pgx.Row) (*models.RitualRun, error) {
	var run models.RitualRun
	var state string
	var steps []byte
	err := row.Scan(&run.ID, &run.UserID, &run.Day, &run.RitualMinutes, &run.EyesClosedMode, &state,
		&run.StartedAt, &run.StepEnteredAt, &steps, &run.HadFallback, &run.CompletedAt, &run.SessionID)
	if err != nil {
		return nil, err
	}
	run.State = models.Step(state)
	if err := json.Unmarshal(steps, &run.Steps); err != nil {
		return nil, fmt.Errorf("decode steps of run %s: %w", run.ID, err)
	}
	return &run, nil
}

func (db *PostgresDB) CreateRun(ctx context.Context, run *models.RitualRun) error {
	steps, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	_, err = db.pool.Exec(ctx, `
        INSERT INTO ritual_runs
            (id, user_id, day, ritual_minutes, eyes_closed_mode, state, started_at,
             step_entered_at, steps, had_fallback, completed_at, session_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `, run.ID, run.UserID, run.Day, run.RitualMinutes, run.EyesClosedMode, string(run.State), run.StartedAt,
		run.StepEnteredAt, steps, run.HadFallback, run.CompletedAt, run.SessionID)
	if err != nil {
		return fmt.Errorf("insert ritual run: %w", err)
	}
	return nil
}

func (db *PostgresDB) GetRun(ctx context.Context, runID string) (*models.RitualRun, error) {
	run, err := scanRun(db.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM ritual_runs WHERE id = $1`, runID))
	if err != nil {
		return nil, notFound(err, "ritual run "+runID)
	}
	return run, nil
}

func (db *PostgresDB) UpdateRun(ctx context.Context, runID string, fn func(run *models.RitualRun) error) (*models.RitualRun, error) {
	var out *models.RitualRun
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		run, err := scanRun(tx.QueryRow(ctx, `SELECT `+runColumns+` FROM ritual_runs WHERE id = $1 FOR UPDATE`, runID))
		if err != nil {
			return notFound(err, "ritual run "+runID)
		}
		if err := fn(run); err != nil {
			return err
		}

		steps, err := json.Marshal(run.Steps)
		if err != nil {
			return fmt.Errorf("encode steps: %w", err)
		}
		if _, err := tx.Exec(ctx, `
            UPDATE ritual_runs
            SET state = $2, step_entered_at = $3, steps = $4, had_fallback = $5, completed_at = $6, session_id = $7
            WHERE id = $1
        `, runID, string(run.State), run.StepEnteredAt, steps, run.HadFallback, run.CompletedAt, run.SessionID); err != nil {
			return fmt.Errorf("save ritual run %s: %w", runID, err)
		}
		out = run
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (db *PostgresDB) GetUsage(ctx context.Context, key models.UsageKey) (*models.MonthlyUsage, error) {
	u := models.MonthlyUsage{UserID: key.UserID, Month: key.Month, Year: key.Year}
	err := db.pool.QueryRow(ctx, `
        SELECT questions_used FROM monthly_usage WHERE user_id = $1 AND month = $2 AND year = $3
    `, key.UserID, key.Month, key.Year).Scan(&u.QuestionsUsed)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("usage %s %d/%d", key.UserID, key.Month, key.Year))
	}
	return &u, nil
}

// IncrementUsage is a single upsert so concurrent questions never lose a count.
func (db *PostgresDB) IncrementUsage(ctx context.Context, key models.UsageKey) (*models.MonthlyUsage, error) {
	u := models.MonthlyUsage{UserID: key.UserID, Month: key.Month, Year: key.Year}
	err := db.pool.QueryRow(ctx, `
        INSERT INTO monthly_usage (user_id, month, year, questions_used)
        VALUES ($1, $2, $3, 1)
        ON CONFLICT (user_id, month, year) DO UPDATE
        SET questions_used = monthly_usage.questions_used + 1
        RETURNING questions_used
    `, key.UserID, key.Month, key.Year).Scan(&u.QuestionsUsed)
	if err != nil {
		return nil, fmt.Errorf("increment usage of %s: %w", key.UserID, err)
	}
	return &u, nil
}

func (db *PostgresDB) GetDevotional(ctx context.Context, day int) (*models.Devotional, error) {
	var d models.Devotional
	err := db.pool.QueryRow(ctx, `
        SELECT day, title, verse_ref, verse_text, context_line, audio_url_palavra, audio_url_oracao, length_sec
        FROM devotionals
        WHERE day = $1
    `, day).Scan(&d.Day, &d.Title, &d.VerseRef, &d.VerseText, &d.ContextLine,
		&d.AudioURLPalavra, &d.AudioURLOracao, &d.LengthSec)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("devotional day %d", day))
	}
	return &d, nil
}

func (db *PostgresDB) CreateJournal(ctx context.Context, entry *models.JournalEntry) error {
	_, err := db.pool.Exec(ctx, `
        INSERT INTO journal_entries (id, user_id, gratitude, insight, humor, duration_minutes, session_date)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, entry.ID, entry.UserID, entry.Gratitude, entry.Insight, entry.Humor, entry.DurationMinutes, entry.SessionDate)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

func (db *PostgresDB) ListJournals(ctx context.Context, userID string, limit int) ([]models.JournalEntry, error) {
	query := `
        SELECT id, user_id, gratitude, insight, humor, duration_minutes, session_date
        FROM journal_entries
        WHERE user_id = $1
        ORDER BY session_date DESC
    `
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list journals of %s: %w", userID, err)
	}
	defer rows.Close()

	var entries []models.JournalEntry
	for rows.Next() {
		var e models.JournalEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Gratitude, &e.Insight, &e.Humor, &e.DurationMinutes, &e.SessionDate); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (db *PostgresDB) ReminderTargets(ctx context.Context, hhmm string, today time.Time) ([]models.ReminderTarget, error) {
	rows, err := db.pool.Query(ctx, `
        SELECT p.user_id, p.telegram_chat_id
        FROM devotional_preferences p
        JOIN user_progress up ON up.user_id = p.user_id
        WHERE p.reminder_enabled
          AND p.reminder_time = $1
          AND p.telegram_chat_id <> 0
          AND (up.last_activity_date IS NULL OR up.last_activity_date < $2)
        ORDER BY p.user_id
    `, hhmm, progress.CalendarDay(today))
	if err != nil {
		return nil, fmt.Errorf("list reminder targets: %w", err)
	}
	defer rows.Close()

	var targets []models.ReminderTarget
	for rows.Next() {
		var t models.ReminderTarget
		if err := rows.Scan(&t.UserID, &t.TelegramChatID); err != nil {
			return nil, fmt.Errorf("scan reminder target: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func (db *PostgresDB) CreateHighlight(ctx context.Context, h *models.Highlight) error {
	_, err := db.pool.Exec(ctx, `
        INSERT INTO highlights (id, user_id, book, chapter, verse_number, highlighted_text, color, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, h.ID, h.UserID, h.Book, h.Chapter, h.VerseNumber, h.HighlightedText, h.Color, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert highlight: %w", err)
	}
	return nil
}

func (db *PostgresDB) ListHighlights(ctx context.Context, userID string, ref models.ChapterRef) ([]models.Highlight, error) {
	rows, err := db.pool.Query(ctx, `
        SELECT id, user_id, book, chapter, verse_number, highlighted_text, color, created_at
        FROM highlights
        WHERE user_id = $1 AND book = $2 AND chapter = $3
        ORDER BY verse_number
    `, userID, ref.Book, ref.Chapter)
	if err != nil {
		return nil, fmt.Errorf("list highlights of %s: %w", userID, err)
	}
	defer rows.Close()

	var out []models.Highlight
	for rows.Next() {
		var h models.Highlight
		if err := rows.Scan(&h.ID, &h.UserID, &h.Book, &h.Chapter, &h.VerseNumber, &h.HighlightedText, &h.Color, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan highlight: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// deleteOwned removes one row of table owned by userID.
func (db *PostgresDB) deleteOwned(ctx context.Context, table, what, userID, id string) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", what, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", what, id, progress.ErrNotFound)
	}
	return nil
}

func (db *PostgresDB) DeleteHighlight(ctx context.Context, userID, id string) error {
	return db.deleteOwned(ctx, "highlights", "highlight", userID, id)
}

func (db *PostgresDB) CreateNote(ctx context.Context, n *models.Note) error {
	_, err := db.pool.Exec(ctx, `
        INSERT INTO notes (id, user_id, book, chapter, verse_number, note_text, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, n.ID, n.UserID, n.Book, n.Chapter, n.VerseNumber, n.NoteText, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

const noteColumns = `id, user_id, book, chapter, verse_number, note_text, created_at, updated_at`

func scanNote(row pgx.Row) (*models.Note, error) {
	var n models.Note
	if err := row.Scan(&n.ID, &n.UserID, &n.Book, &n.Chapter, &n.VerseNumber, &n.NoteText, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

func (db *PostgresDB) ListNotes(ctx context.Context, userID string, ref models.ChapterRef) ([]models.Note, error) {
	rows, err := db.pool.Query(ctx, `
        SELECT `+noteColumns+`
        FROM notes
        WHERE user_id = $1 AND book = $2 AND chapter = $3
        ORDER BY verse_number
    `, userID, ref.Book, ref.Chapter)
	if err != nil {
		return nil, fmt.Errorf("list notes of %s: %w", userID, err)
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (db *PostgresDB) UpdateNote(ctx context.Context, userID, id, text string, at time.Time) (*models.Note, error) {
	n, err := scanNote(db.pool.QueryRow(ctx, `
        UPDATE notes SET note_text = $3, updated_at = $4
        WHERE id = $1 AND user_id = $2
        RETURNING `+noteColumns, id, userID, text, at))
	if err != nil {
		return nil, notFound(err, "note "+id)
	}
	return n, nil
}

func (db *PostgresDB) DeleteNote(ctx context.Context, userID, id string) error {
	return db.deleteOwned(ctx, "notes", "note", userID, id)
}

func (db *PostgresDB) CreateFavorite(ctx context.Context, f *models.Favorite) error {
	_, err := db.pool.Exec(ctx, `
        INSERT INTO favorites (id, user_id, book, chapter, verse_number, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, f.ID, f.UserID, f.Book, f.Chapter, f.VerseNumber, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert favorite: %w", err)
	}
	return nil
}

func (db *PostgresDB) ListFavorites(ctx context.Context, userID string, ref *models.ChapterRef, limit int) ([]models.Favorite, error) {
	query := `SELECT id, user_id, book, chapter, verse_number, created_at FROM favorites WHERE user_id = $1`
	args := []interface{}{userID}
	if ref != nil {
		query += ` AND book = $2 AND chapter = $3 ORDER BY verse_number`
		args = append(args, ref.Book, ref.Chapter)
	} else {
		query += ` ORDER BY created_at DESC`
		if limit > 0 {
			query += ` LIMIT $2`
			args = append(args, limit)
		}
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list favorites of %s: %w", userID, err)
	}
	defer rows.Close()

	var out []models.Favorite
	for rows.Next() {
		var f models.Favorite
		if err := rows.Scan(&f.ID, &f.UserID, &f.Book, &f.Chapter, &f.VerseNumber, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (db *PostgresDB) DeleteFavorite(ctx context.Context, userID, id string) error {
	return db.deleteOwned(ctx, "favorites", "favorite", userID, id)
}

func (db *PostgresDB) CountAnnotations(ctx context.Context, userID string) (models.AnnotationCounts, error) {
	var c models.AnnotationCounts
	err := db.pool.QueryRow(ctx, `
        SELECT
            (SELECT COUNT(*) FROM highlights WHERE user_id = $1),
            (SELECT COUNT(*) FROM notes WHERE user_id = $1),
            (SELECT COUNT(*) FROM favorites WHERE user_id = $1)
    `, userID).Scan(&c.Highlights, &c.Notes, &c.Favorites)
	if err != nil {
		return c, fmt.Errorf("count annotations of %s: %w", userID, err)
	}
	return c, nil
}

func (db *PostgresDB) CreateConversation(ctx context.Context, c *models.ChatConversation) error {
	_, err := db.pool.Exec(ctx, `
        INSERT INTO chat_conversations (id, user_id, title, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5)
    `, c.ID, c.UserID, c.Title, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (db *PostgresDB) chatMessages(ctx context.Context, conversationID string, limit int) ([]models.ChatMessage, error) {
	query := `
        SELECT id, conversation_id, role, content, created_at
        FROM chat_messages
        WHERE conversation_id = $1
        ORDER BY created_at, id
    `
	args := []interface{}{conversationID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages of %s: %w", conversationID, err)
	}
	defer rows.Close()

	msgs := []models.ChatMessage{}
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (db *PostgresDB) GetConversation(ctx context.Context, userID, id string) (*models.ChatConversation, error) {
	var c models.ChatConversation
	err := db.pool.QueryRow(ctx, `
        SELECT id, user_id, title, created_at, updated_at
        FROM chat_conversations
        WHERE id = $1 AND user_id = $2
    `, id, userID).Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "conversation "+id)
	}

	if c.Messages, err = db.chatMessages(ctx, id, 0); err != nil {
		return nil, err
	}
	return &c, nil
}

func (db *PostgresDB) ListConversations(ctx context.Context, userID string, limit int) ([]models.ChatConversation, error) {
	rows, err := db.pool.Query(ctx, `
        SELECT id, user_id, title, created_at, updated_at
        FROM chat_conversations
        WHERE user_id = $1
        ORDER BY updated_at DESC
        LIMIT $2
    `, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations of %s: %w", userID, err)
	}

	var out []models.ChatConversation
	for rows.Next() {
		var c models.ChatConversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conversations of %s: %w", userID, err)
	}

	for i := range out {
		if out[i].Messages, err = db.chatMessages(ctx, out[i].ID, 1); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (db *PostgresDB) AddChatMessage(ctx context.Context, m *models.ChatMessage) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            UPDATE chat_conversations SET updated_at = GREATEST(updated_at, $2) WHERE id = $1
        `, m.ConversationID, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("touch conversation %s: %w", m.ConversationID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("conversation %s: %w", m.ConversationID, progress.ErrNotFound)
		}

		if _, err := tx.Exec(ctx, `
            INSERT INTO chat_messages (id, conversation_id, role, content, created_at)
            VALUES ($1, $2, $3, $4, $5)
        `, m.ID, m.ConversationID, m.Role, m.Content, m.CreatedAt); err != nil {
			return fmt.Errorf("insert chat message: %w", err)
		}
		return nil
	})
}

func (db *PostgresDB) DeleteConversation(ctx context.Context, userID, id string) error {
	return db.deleteOwned(ctx, "chat_conversations", "conversation", userID, id)
}
