package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"minuto/internal/bible"
	"minuto/internal/content"
	"minuto/internal/gpt"
	"minuto/internal/journal"
	"minuto/internal/metrics"
	"minuto/internal/models"
	"minuto/internal/payment"
	"minuto/internal/progress"
	"minuto/pkg/logger"
)

// Answerer produces a theological chat answer.
type Answerer interface {
	Answer(ctx context.Context, q gpt.Question) (string, error)
}

const chatContextInsights = 3

// API holds the handlers of every route.
type API struct {
	engine        *progress.Engine
	content       *content.Service
	journals      *journal.Service
	bible         *bible.Service
	payments      *payment.Service
	chat          Answerer
	conversations *gpt.Conversations
	metrics       metrics.Recorder
	logger        *logger.Logger
}

func NewAPI(
	engine *progress.Engine,
	contentService *content.Service,
	journals *journal.Service,
	bibleService *bible.Service,
	payments *payment.Service,
	chat Answerer,
	conversations *gpt.Conversations,
	rec metrics.Recorder,
	l *logger.Logger,
) *API {
	return &API{
		engine:        engine,
		content:       contentService,
		journals:      journals,
		bible:         bibleService,
		payments:      payments,
		chat:          chat,
		conversations: conversations,
		metrics:       rec,
		logger:        l.Named("api"),
	}
}

func (a *API) handleGetStreak(w http.ResponseWriter, r *http.Request) {
	status, err := a.engine.GetStreak(r.Context(), UserID(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) handleStartRitual(w http.ResponseWriter, r *http.Request) {
	var opts progress.StartOptions
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		a.writeError(w, r, decodeError(err))
		return
	}

	state, err := a.engine.StartRitual(r.Context(), UserID(r.Context()), opts)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

func (a *API) handleRefreshRitual(w http.ResponseWriter, r *http.Request) {
	state, err := a.engine.Refresh(r.Context(), UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.countCompletion(state.Completion)
	writeJSON(w, http.StatusOK, state)
}

type advanceRequest struct {
	From models.Step `json:"from"`
}

type advanceConflict struct {
	Error string                `json:"error"`
	State *progress.RitualState `json:"state"`
}

func (a *API) handleAdvanceRitual(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	state, err := a.engine.Advance(r.Context(), UserID(r.Context()), r.PathValue("id"), req.From)
	if state != nil {
		a.countCompletion(state.Completion)
	}
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, state)
	case state != nil:
		// Timeouts caught up before the rejected step still count, so the
		// client gets the current run along with the conflict.
		writeJSON(w, statusFor(err), advanceConflict{Error: err.Error(), State: state})
	default:
		a.writeError(w, r, err)
	}
}

func (a *API) handleRecordSession(w http.ResponseWriter, r *http.Request) {
	var report progress.SessionReport
	if err := decodeJSON(r, &report); err != nil {
		a.writeError(w, r, err)
		return
	}

	result, err := a.engine.RecordSession(r.Context(), UserID(r.Context()), report)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.countCompletion(result)
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) countCompletion(c *progress.CompletionResult) {
	if c != nil {
		a.metrics.IncRitualsCompleted(c.Qualifying)
	}
}

func (a *API) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := a.engine.Preferences(r.Context(), UserID(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// handleSavePreferences decodes the payload over the stored values, so
// omitted fields are kept.
func (a *API) handleSavePreferences(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())
	current, err := a.engine.Preferences(r.Context(), userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	in := progress.InputFrom(current)
	if err := decodeJSON(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}

	prefs, err := a.engine.SavePreferences(r.Context(), userID, in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (a *API) handleContent(w http.ResponseWriter, r *http.Request) {
	day := 0
	if raw := r.URL.Query().Get("day"); raw != "" {
		var err error
		if day, err = strconv.Atoi(raw); err != nil || day < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "day must be a positive integer"})
			return
		}
	} else {
		next, err := a.engine.NextDay(r.Context(), UserID(r.Context()))
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		day = next
	}

	daily, err := a.content.ForDay(r.Context(), day)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, daily)
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.engine.Stats(r.Context(), UserID(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleCreateJournal(w http.ResponseWriter, r *http.Request) {
	var in journal.Input
	if err := decodeJSON(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}

	entry, err := a.journals.Create(r.Context(), UserID(r.Context()), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (a *API) handleListJournals(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		var err error
		if limit, err = strconv.Atoi(raw); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be an integer"})
			return
		}
	}

	entries, err := a.journals.List(r.Context(), UserID(r.Context()), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) handleHumorStreak(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())
	streak, err := a.engine.GetStreak(r.Context(), userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	report, err := a.journals.HumorStreak(r.Context(), userID, streak.CurrentStreak)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type chatResponse struct {
	Answer         string                `json:"answer,omitempty"`
	ConversationID string                `json:"conversation_id,omitempty"`
	Error          string                `json:"error,omitempty"`
	Usage          *progress.UsageStatus `json:"usage"`
}

// handleChat counts the question first and only calls the model when the
// user is still within the monthly quota. Both sides of the exchange are
// kept in the conversation; a missing conversation id starts a new one.
func (a *API) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}

	userID := UserID(r.Context())
	var conv *models.ChatConversation
	if req.ConversationID != "" {
		var err error
		if conv, err = a.conversations.Get(r.Context(), userID, req.ConversationID); err != nil {
			a.writeError(w, r, err)
			return
		}
	}

	usage, err := a.engine.IncrementUsage(r.Context(), userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := usage.Err(); err != nil {
		a.metrics.IncChatQuestions(metrics.ChatBlocked)
		writeJSON(w, statusFor(err), chatResponse{Error: err.Error(), ConversationID: req.ConversationID, Usage: usage})
		return
	}

	if conv == nil {
		if conv, err = a.conversations.Start(r.Context(), userID, req.Message); err != nil {
			a.writeError(w, r, err)
			return
		}
	}
	history := gpt.History(conv)
	if _, err := a.conversations.Record(r.Context(), conv.ID, models.ChatRoleUser, req.Message); err != nil {
		a.writeError(w, r, err)
		return
	}

	insights, err := a.journals.RecentInsights(r.Context(), userID, chatContextInsights)
	if err != nil {
		a.logger.Warnw("Chat without journal context", "user_id", userID, "error", err)
	}

	answer, err := a.chat.Answer(r.Context(), gpt.Question{Message: req.Message, Insights: insights, History: history})
	if err != nil {
		a.metrics.IncChatQuestions(metrics.ChatFailed)
		status := http.StatusBadGateway
		if errors.Is(err, gpt.ErrNotConfigured) {
			status = http.StatusServiceUnavailable
		}
		a.logger.Errorw("Chat completion failed", "user_id", userID, "error", err)
		writeJSON(w, status, chatResponse{Error: "chat is unavailable", ConversationID: conv.ID, Usage: usage})
		return
	}

	if _, err := a.conversations.Record(r.Context(), conv.ID, models.ChatRoleAssistant, answer); err != nil {
		a.logger.Warnw("Failed to store chat answer", "conversation_id", conv.ID, "error", err)
	}
	a.metrics.IncChatQuestions(metrics.ChatAnswered)
	writeJSON(w, http.StatusOK, chatResponse{Answer: answer, ConversationID: conv.ID, Usage: usage})
}

func (a *API) handleListConversations(w http.ResponseWriter, r *http.Request) {
	out, err := a.conversations.List(r.Context(), UserID(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := a.conversations.Get(r.Context(), UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (a *API) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := a.conversations.Delete(r.Context(), UserID(r.Context()), r.PathValue("id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}

func (a *API) handleChatUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := a.engine.CheckLimit(r.Context(), UserID(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	url, err := a.payments.Checkout(r.Context(), UserID(r.Context()))
	if err != nil {
		if errors.Is(err, payment.ErrNotConfigured) {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "payments are not configured"})
			return
		}
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

type subscriptionStatus struct {
	*payment.Status
	Usage *progress.UsageStatus `json:"usage"`
}

func (a *API) handleSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())
	status, err := a.payments.Status(r.Context(), userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	usage, err := a.engine.CheckLimit(r.Context(), userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionStatus{Status: status, Usage: usage})
}

func (a *API) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		a.logger.Errorw("Failed to read webhook body", "error", err)
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		a.logger.Warnw("Missing Stripe signature header")
		http.Error(w, "Missing signature", http.StatusBadRequest)
		return
	}

	event, err := a.payments.Verify(body, signature)
	if err != nil {
		if errors.Is(err, payment.ErrNotConfigured) {
			a.logger.Errorw("Webhook secret is not configured")
			http.Error(w, "Webhook not configured", http.StatusInternalServerError)
			return
		}
		a.logger.Warnw("Failed to verify webhook signature", "error", err)
		http.Error(w, "Invalid signature", http.StatusBadRequest)
		return
	}

	if err := a.payments.HandleEvent(r.Context(), event); err != nil {
		a.logger.Errorw("Failed to process webhook", "type", event.Type, "error", err)
		http.Error(w, "Failed to process event", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
