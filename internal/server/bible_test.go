package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minuto/internal/bible"
	"minuto/internal/journal"
	"minuto/internal/models"
	"minuto/internal/progress"
)

func TestAnnotations(t *testing.T) {
	h := newHarness(t)

	rr := h.do(t, http.MethodGet, "/api/streak", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var before progress.StreakStatus
	decode(t, rr, &before)

	rr = h.do(t, http.MethodPost, "/api/highlights", "user-1", bible.HighlightInput{
		Book: "Salmos", Chapter: 46, VerseNumber: 10, HighlightedText: "Aquietai-vos", Color: "green",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var highlight models.Highlight
	decode(t, rr, &highlight)

	rr = h.do(t, http.MethodGet, "/api/highlights?book=Salmos&chapter=46", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var highlights []models.Highlight
	decode(t, rr, &highlights)
	require.Len(t, highlights, 1)
	assert.Equal(t, highlight.ID, highlights[0].ID)

	rr = h.do(t, http.MethodGet, "/api/highlights?book=Salmos", "user-1", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = h.do(t, http.MethodPost, "/api/notes", "user-1", bible.NoteInput{Book: "Salmos", Chapter: 46, VerseNumber: 1, NoteText: "refúgio"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var note models.Note
	decode(t, rr, &note)

	rr = h.do(t, http.MethodPut, "/api/notes/"+note.ID, "user-1", map[string]string{"note_text": "refúgio e fortaleza"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	decode(t, rr, &note)
	assert.Equal(t, "refúgio e fortaleza", note.NoteText)

	rr = h.do(t, http.MethodPut, "/api/notes/"+note.ID, "user-2", map[string]string{"note_text": "alheio"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = h.do(t, http.MethodPost, "/api/favorites", "user-1", bible.FavoriteInput{Book: "Salmos", Chapter: 46, VerseNumber: 10})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = h.do(t, http.MethodGet, "/api/favorites", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var favorites []models.Favorite
	decode(t, rr, &favorites)
	assert.Len(t, favorites, 1)

	rr = h.do(t, http.MethodDelete, "/api/highlights/"+highlight.ID, "user-2", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = h.do(t, http.MethodDelete, "/api/highlights/"+highlight.ID, "user-1", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = h.do(t, http.MethodDelete, "/api/notes/"+note.ID, "user-1", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = h.do(t, http.MethodGet, "/api/streak", "user-1", nil)
	var after progress.StreakStatus
	decode(t, rr, &after)
	assert.Equal(t, before, after)
}

func TestChatConversations(t *testing.T) {
	h := newHarness(t)

	rr := h.do(t, http.MethodPost, "/api/chat", "user-1", map[string]string{"message": "Quem foi Rute?"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp chatResponse
	decode(t, rr, &resp)
	require.NotEmpty(t, resp.ConversationID)
	convID := resp.ConversationID

	rr = h.do(t, http.MethodPost, "/api/chat", "user-1", map[string]string{"message": "E Noemi?", "conversation_id": convID})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	decode(t, rr, &resp)
	assert.Equal(t, convID, resp.ConversationID)

	require.Len(t, h.chat.questions, 2)
	assert.Empty(t, h.chat.questions[0].History)
	history := h.chat.questions[1].History
	require.Len(t, history, 2)
	assert.Equal(t, models.ChatRoleUser, history[0].Role)
	assert.Equal(t, "Quem foi Rute?", history[0].Content)
	assert.Equal(t, models.ChatRoleAssistant, history[1].Role)

	rr = h.do(t, http.MethodGet, "/api/chat/conversations/"+convID, "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var conv models.ChatConversation
	decode(t, rr, &conv)
	assert.Equal(t, "Quem foi Rute?", conv.Title)
	assert.Len(t, conv.Messages, 4)

	rr = h.do(t, http.MethodGet, "/api/chat/conversations", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []models.ChatConversation
	decode(t, rr, &list)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Messages, 1)

	rr = h.do(t, http.MethodPost, "/api/chat", "user-2", map[string]string{"message": "Posso ver?", "conversation_id": convID})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = h.do(t, http.MethodGet, "/api/chat/usage", "user-2", nil)
	var usage progress.UsageStatus
	decode(t, rr, &usage)
	assert.Zero(t, usage.Used, "a rejected conversation does not spend quota")

	rr = h.do(t, http.MethodDelete, "/api/chat/conversations/"+convID, "user-2", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = h.do(t, http.MethodDelete, "/api/chat/conversations/"+convID, "user-1", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = h.do(t, http.MethodGet, "/api/chat/conversations/"+convID, "user-1", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestInsights(t *testing.T) {
	h := newHarness(t)

	rr := h.do(t, http.MethodPost, "/api/journals", "user-1", journal.Input{Humor: 4, DurationMinutes: 10})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	rr = h.do(t, http.MethodPost, "/api/favorites", "user-1", bible.FavoriteInput{Book: "Mateus", Chapter: 11, VerseNumber: 28})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = h.do(t, http.MethodGet, "/api/reports/insights", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var report struct {
		Streak     progress.StreakStatus   `json:"streak"`
		Engagement models.AnnotationCounts `json:"engagement"`
		Mood       journal.MoodSummary     `json:"mood"`
	}
	decode(t, rr, &report)
	assert.Zero(t, report.Streak.CurrentStreak)
	assert.Equal(t, models.AnnotationCounts{Favorites: 1}, report.Engagement)
	assert.Equal(t, 1, report.Mood.TotalJournals)
	assert.Equal(t, 4.0, report.Mood.AverageHumor)
}
