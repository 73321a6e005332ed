package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v72"

	"minuto/internal/bible"
	"minuto/internal/content"
	"minuto/internal/db"
	"minuto/internal/gpt"
	"minuto/internal/journal"
	"minuto/internal/metrics"
	"minuto/internal/models"
	"minuto/internal/payment"
	"minuto/internal/progress"
	"minuto/pkg/logger"
)

const (
	testSecret = "test-secret"
	testIssuer = "minuto-auth"
)

type stubGateway struct{}

func (stubGateway) CreateCustomer(userID, email string) (string, error) { return "cus_" + userID, nil }
func (stubGateway) CreateCheckoutSession(customerID, userID, successURL, cancelURL string) (string, string, error) {
	return "cs_1", "https://checkout.stripe.test/cs_1", nil
}
func (stubGateway) CreatePortalSession(customerID, returnURL string) (string, error) {
	return "https://billing.stripe.test/" + customerID, nil
}
func (stubGateway) GetSubscription(id string) (*stripe.Subscription, error) {
	return &stripe.Subscription{ID: id}, nil
}
func (stubGateway) VerifyWebhookSignature(payload []byte, sig string) (stripe.Event, error) {
	return stripe.Event{}, payment.ErrNotConfigured
}

type nopMailer struct{}

func (nopMailer) SendPaymentFailed(ctx context.Context, to string) error { return nil }

type fakeAnswerer struct {
	mu        sync.Mutex
	questions []gpt.Question
	err       error
}

func (f *fakeAnswerer) Answer(ctx context.Context, q gpt.Question) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.questions = append(f.questions, q)
	return "Deus é fiel.", nil
}

type harness struct {
	handler http.Handler
	store   *db.MemoryDB
	chat    *fakeAnswerer
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	l := logger.NewNop()
	store := db.NewMemoryDB()
	h := &harness{store: store, chat: &fakeAnswerer{}, now: time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)}
	clock := progress.ClockFunc(func() time.Time { return h.now })

	engine := progress.NewEngine(store, store, clock, progress.Options{}, l)
	api := NewAPI(
		engine,
		content.NewService(store, nil, l),
		journal.NewService(store, clock, l),
		bible.NewService(store, clock, l),
		payment.NewService(stubGateway{}, store, nopMailer{}, "https://app.test", l),
		h.chat,
		gpt.NewConversations(store, clock),
		metrics.Noop{},
		l,
	)
	auth := NewAuthenticator(testSecret, testIssuer, store, l)
	h.handler = NewHandler(api, auth, metrics.Noop{}, nil)
	return h
}

func token(t *testing.T, subject string, expires time.Time) string {
	t.Helper()
	claims := Claims{
		Email: subject + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (h *harness) do(t *testing.T, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, user, time.Now().Add(time.Hour)))
	}
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rr := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestAuthentication(t *testing.T) {
	h := newHarness(t)

	rr := h.do(t, http.MethodGet, "/api/streak", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/streak", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "user-1", time.Now().Add(-time.Minute)))
	rr = httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    testIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/streak", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rr = httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = h.do(t, http.MethodGet, "/api/streak", "user-1", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	user, err := h.store.GetUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1@example.com", user.Email)
}

func TestRitualFlow(t *testing.T) {
	h := newHarness(t)

	rr := h.do(t, http.MethodPost, "/api/rituals", "user-1", map[string]int{"minutes": 5})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var state progress.RitualState
	decode(t, rr, &state)
	assert.Equal(t, models.StepRespira, state.Run.State)
	runID := state.Run.ID

	rr = h.do(t, http.MethodPost, "/api/rituals/"+runID+"/advance", "user-1", map[string]string{"from": "oracao"})
	require.Equal(t, http.StatusConflict, rr.Code)
	var conflict struct {
		Error string               `json:"error"`
		State progress.RitualState `json:"state"`
	}
	decode(t, rr, &conflict)
	assert.Equal(t, models.StepRespira, conflict.State.Run.State)

	for _, step := range models.RitualSteps {
		h.now = h.now.Add(15 * time.Second)
		rr = h.do(t, http.MethodPost, "/api/rituals/"+runID+"/advance", "user-1", map[string]string{"from": string(step)})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}
	decode(t, rr, &state)
	assert.Equal(t, models.StepCompleted, state.Run.State)
	require.NotNil(t, state.Completion)
	assert.True(t, state.Completion.Qualifying)

	rr = h.do(t, http.MethodGet, "/api/rituals/"+runID, "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = h.do(t, http.MethodGet, "/api/rituals/"+runID, "user-2", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = h.do(t, http.MethodGet, "/api/streak", "user-1", nil)
	var streak progress.StreakStatus
	decode(t, rr, &streak)
	assert.Equal(t, 1, streak.CurrentStreak)
	assert.True(t, streak.IsActive)

	rr = h.do(t, http.MethodGet, "/api/devotional/stats", "user-1", nil)
	var stats models.DevotionalStats
	decode(t, rr, &stats)
	assert.Equal(t, 1, stats.TotalSessions)
	assert.Equal(t, 1, stats.PeaceDays)
}

func TestStartRitualWithoutBody(t *testing.T) {
	h := newHarness(t)
	rr := h.do(t, http.MethodPost, "/api/rituals", "user-1", nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = h.do(t, http.MethodPost, "/api/rituals", "user-1", `{"minutes":8}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRecordSession(t *testing.T) {
	h := newHarness(t)

	rr := h.do(t, http.MethodPost, "/api/devotional/session", "user-1", progress.SessionReport{
		Day:            1,
		DurationSec:    120,
		CompletedSteps: []models.Step{models.StepRespira, models.StepPalavra},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var result progress.CompletionResult
	decode(t, rr, &result)
	assert.False(t, result.Qualifying)
	assert.Nil(t, result.Streak)

	rr = h.do(t, http.MethodPost, "/api/devotional/session", "user-1", `{"day":1,"duration_sec":60,"completed_steps":["acao","respira"]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPreferences(t *testing.T) {
	h := newHarness(t)

	rr := h.do(t, http.MethodGet, "/api/devotional/preferences", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var prefs models.DevotionalPreference
	decode(t, rr, &prefs)
	assert.Equal(t, 10, prefs.RitualMinutes)

	rr = h.do(t, http.MethodPost, "/api/devotional/preferences", "user-1", `{"reminder_time":"21:30","telegram_chat_id":555}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	decode(t, rr, &prefs)
	assert.Equal(t, "21:30", prefs.ReminderTime)
	assert.Equal(t, 10, prefs.RitualMinutes)
	assert.Equal(t, int64(555), prefs.TelegramChatID)

	rr = h.do(t, http.MethodPost, "/api/devotional/preferences", "user-1", `{"ritual_minutes":7}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = h.do(t, http.MethodPost, "/api/devotional/preferences", "user-1", `{"peace_days":99}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestContent(t *testing.T) {
	h := newHarness(t)
	h.store.PutDevotional(models.Devotional{Day: 1, Title: "Paz no Caos"})
	h.store.PutDevotional(models.Devotional{Day: 2, Title: "Força na Fraqueza"})

	rr := h.do(t, http.MethodGet, "/api/devotional/content", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var daily struct {
		Title        string `json:"title"`
		RequestedDay int    `json:"requested_day"`
	}
	decode(t, rr, &daily)
	assert.Equal(t, "Paz no Caos", daily.Title)
	assert.Equal(t, 1, daily.RequestedDay)

	rr = h.do(t, http.MethodGet, "/api/devotional/content?day=2", "user-1", nil)
	decode(t, rr, &daily)
	assert.Equal(t, "Força na Fraqueza", daily.Title)

	rr = h.do(t, http.MethodGet, "/api/devotional/content?day=zero", "user-1", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestJournals(t *testing.T) {
	h := newHarness(t)

	rr := h.do(t, http.MethodGet, "/api/reports/humor-streak", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	for i := 0; i < 3; i++ {
		rr = h.do(t, http.MethodPost, "/api/journals", "user-1", journal.Input{Insight: "graça", Humor: 3 + i%2, DurationMinutes: 10})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		h.now = h.now.AddDate(0, 0, 1)
	}

	rr = h.do(t, http.MethodPost, "/api/journals", "user-1", journal.Input{Humor: 9, DurationMinutes: 10})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = h.do(t, http.MethodGet, "/api/journals?limit=2", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var entries []models.JournalEntry
	decode(t, rr, &entries)
	assert.Len(t, entries, 2)

	rr = h.do(t, http.MethodGet, "/api/reports/humor-streak", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var report journal.HumorStreakReport
	decode(t, rr, &report)
	assert.Equal(t, 3, report.TotalDataPoints)

	rr = h.do(t, http.MethodGet, "/api/streak", "user-1", nil)
	var streak progress.StreakStatus
	decode(t, rr, &streak)
	assert.Zero(t, streak.CurrentStreak)
}

func TestChatQuota(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 5; i++ {
		rr := h.do(t, http.MethodPost, "/api/chat", "user-1", map[string]string{"message": "Como orar?"})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}

	rr := h.do(t, http.MethodPost, "/api/chat", "user-1", map[string]string{"message": "Mais uma?"})
	require.Equal(t, http.StatusForbidden, rr.Code)
	var resp struct {
		Error string               `json:"error"`
		Usage progress.UsageStatus `json:"usage"`
	}
	decode(t, rr, &resp)
	assert.True(t, resp.Usage.LimitExceeded)
	assert.Equal(t, 6, resp.Usage.Used)
	assert.Len(t, h.chat.questions, 5)

	rr = h.do(t, http.MethodGet, "/api/chat/usage", "user-1", nil)
	var usage progress.UsageStatus
	decode(t, rr, &usage)
	assert.True(t, usage.HasReachedLimit)
	assert.Zero(t, usage.Remaining)

	rr = h.do(t, http.MethodPost, "/api/chat", "user-1", map[string]string{"message": ""})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestChatUsesJournalInsights(t *testing.T) {
	h := newHarness(t)
	rr := h.do(t, http.MethodPost, "/api/journals", "user-1", journal.Input{Insight: "aprendi a esperar", Humor: 4, DurationMinutes: 5})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = h.do(t, http.MethodPost, "/api/chat", "user-1", map[string]string{"message": "Como ter paciência?"})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, h.chat.questions, 1)
	assert.Equal(t, []string{"aprendi a esperar"}, h.chat.questions[0].Insights)
}

func TestChatUnavailable(t *testing.T) {
	h := newHarness(t)

	h.chat.err = gpt.ErrNotConfigured
	rr := h.do(t, http.MethodPost, "/api/chat", "user-1", map[string]string{"message": "Olá"})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	h.chat.err = errors.New("upstream timeout")
	rr = h.do(t, http.MethodPost, "/api/chat", "user-1", map[string]string{"message": "Olá"})
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestSubscription(t *testing.T) {
	h := newHarness(t)

	rr := h.do(t, http.MethodPost, "/api/subscription/checkout", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var checkout map[string]string
	decode(t, rr, &checkout)
	assert.Equal(t, "https://checkout.stripe.test/cs_1", checkout["url"])

	rr = h.do(t, http.MethodGet, "/api/subscription/status", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var status struct {
		IsProMember bool                 `json:"is_pro_member"`
		Usage       progress.UsageStatus `json:"usage"`
	}
	decode(t, rr, &status)
	assert.False(t, status.IsProMember)
	assert.Equal(t, 5, status.Usage.Remaining)
}

func TestStripeWebhook(t *testing.T) {
	h := newHarness(t)

	rr := h.do(t, http.MethodPost, "/webhook/stripe", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rr = httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.New(true, reg)
	l := logger.NewNop()
	store := db.NewMemoryDB()
	engine := progress.NewEngine(store, store, progress.SystemClock{}, progress.Options{}, l)
	clock := progress.SystemClock{}
	api := NewAPI(engine, content.NewService(store, nil, l), journal.NewService(store, clock, l), bible.NewService(store, clock, l),
		payment.NewService(stubGateway{}, store, nopMailer{}, "", l), &fakeAnswerer{}, gpt.NewConversations(store, clock), rec, l)
	handler := NewHandler(api, NewAuthenticator(testSecret, "", store, l), rec, reg)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `minuto_requests_total{endpoint="GET /health",status="2xx"} 1`)
}

func TestNoSecretRejectsEverything(t *testing.T) {
	l := logger.NewNop()
	auth := NewAuthenticator("", "", db.NewMemoryDB(), l)
	h := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/streak", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "user-1", time.Now().Add(time.Hour)))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
