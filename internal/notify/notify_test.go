package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minuto/internal/db"
	"minuto/internal/models"
	"minuto/internal/progress"
	"minuto/pkg/logger"
)

type sentMessage struct {
	chatID int64
	text   string
}

type fakeSender struct {
	sent []sentMessage
	fail map[int64]bool
}

func (f *fakeSender) Send(ctx context.Context, chatID int64, text string) error {
	if f.fail[chatID] {
		return errors.New("blocked by user")
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

type countingCounter struct{ total int }

func (c *countingCounter) IncRemindersSent(n int) { c.total += n }

func seedUser(t *testing.T, store *db.MemoryDB, id, reminder string, chatID int64, enabled bool) {
	t.Helper()
	ctx := context.Background()
	_, err := store.EnsureUser(ctx, id, "")
	require.NoError(t, err)
	_, err = store.UpdatePreferences(ctx, id, func(p *models.DevotionalPreference) error {
		p.ReminderTime = reminder
		p.TelegramChatID = chatID
		p.ReminderEnabled = enabled
		return nil
	})
	require.NoError(t, err)
}

func TestReminderTick(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryDB()
	now := time.Date(2025, 10, 3, 8, 0, 20, 0, time.UTC)

	seedUser(t, store, "due", "08:00", 101, true)
	seedUser(t, store, "later", "09:00", 102, true)
	seedUser(t, store, "muted", "08:00", 103, false)
	seedUser(t, store, "unlinked", "08:00", 0, true)
	seedUser(t, store, "prayed", "08:00", 104, true)
	seedUser(t, store, "blocked", "08:00", 105, true)

	today := progress.CalendarDay(now)
	store.PutProgress(models.UserProgress{UserID: "prayed", CurrentStreak: 1, LongestStreak: 1, LastActivityDate: &today})

	sender := &fakeSender{fail: map[int64]bool{105: true}}
	counter := &countingCounter{}
	clock := progress.ClockFunc(func() time.Time { return now })
	r := NewReminder(store, sender, counter, clock, logger.NewNop())

	sent := r.Tick(ctx, now)
	assert.Equal(t, 1, sent)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(101), sender.sent[0].chatID)
	assert.Equal(t, ReminderMessage, sender.sent[0].text)
	assert.Equal(t, 1, counter.total)

	assert.Zero(t, r.Tick(ctx, now.Add(30*time.Minute)))
	assert.Equal(t, 1, counter.total)
}

func TestReminderRunStops(t *testing.T) {
	store := db.NewMemoryDB()
	r := NewReminder(store, &fakeSender{}, &countingCounter{}, progress.SystemClock{}, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reminder did not stop")
	}
}

func TestRecordAnnouncer(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryDB()
	seedUser(t, store, "linked", "08:00", 77, true)
	_, err := store.EnsureUser(ctx, "plain", "")
	require.NoError(t, err)

	sender := &fakeSender{}
	a := NewRecordAnnouncer(store, sender)

	require.NoError(t, a.AnnounceRecord(ctx, "linked", 12))
	require.NoError(t, a.AnnounceRecord(ctx, "plain", 3))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(77), sender.sent[0].chatID)
	assert.Contains(t, sender.sent[0].text, "12 dias")

	assert.ErrorIs(t, a.AnnounceRecord(ctx, "ghost", 1), progress.ErrNotFound)
}

func TestDisabledTelegramDropsMessages(t *testing.T) {
	n, err := NewTelegramNotifier("", logger.NewNop())
	require.NoError(t, err)
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Send(context.Background(), 1, "oi"))
	assert.NoError(t, n.Listen(context.Background()))
}

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
}

func (f *fakeSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, params)
	return &sesv2.SendEmailOutput{}, nil
}

func TestSendPaymentFailed(t *testing.T) {
	ses := &fakeSES{}
	s := &EmailSender{client: ses, from: "minuto@example.com", appBaseURL: "https://app.test", logger: logger.NewNop()}

	require.NoError(t, s.SendPaymentFailed(context.Background(), "fiel@example.com"))
	require.Len(t, ses.inputs, 1)
	in := ses.inputs[0]
	assert.Equal(t, "minuto@example.com", *in.FromEmailAddress)
	assert.Equal(t, []string{"fiel@example.com"}, in.Destination.ToAddresses)
	assert.Contains(t, *in.Content.Simple.Body.Text.Data, "https://app.test/planos")
}

func TestDisabledEmailSender(t *testing.T) {
	s, err := NewEmailSender(context.Background(), "us-east-1", "", "https://app.test", logger.NewNop())
	require.NoError(t, err)
	assert.False(t, s.Enabled())
	assert.NoError(t, s.SendPaymentFailed(context.Background(), "fiel@example.com"))
}
