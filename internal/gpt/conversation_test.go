package gpt

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minuto/internal/db"
	"minuto/internal/models"
	"minuto/internal/progress"
)

func TestTitle(t *testing.T) {
	assert.Equal(t, "Como orar?", Title("Como orar?"))

	long := strings.Repeat("é", 60)
	assert.Equal(t, strings.Repeat("é", 50)+"...", Title(long))
}

func TestHistoryKeepsLastMessages(t *testing.T) {
	conv := &models.ChatConversation{}
	for i := 0; i < HistoryTurns+3; i++ {
		role := models.ChatRoleUser
		if i%2 == 1 {
			role = models.ChatRoleAssistant
		}
		conv.Messages = append(conv.Messages, models.ChatMessage{Role: role, Content: fmt.Sprint(i)})
	}

	turns := History(conv)
	require.Len(t, turns, HistoryTurns)
	assert.Equal(t, Turn{Role: models.ChatRoleAssistant, Content: "3"}, turns[0])
	assert.Equal(t, fmt.Sprint(HistoryTurns+2), turns[len(turns)-1].Content)

	assert.Empty(t, History(&models.ChatConversation{}))
}

func TestConversations(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryDB()
	for _, id := range []string{"user-1", "user-2"} {
		_, err := store.EnsureUser(ctx, id, "")
		require.NoError(t, err)
	}
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	c := NewConversations(store, progress.ClockFunc(func() time.Time { return now }))

	first, err := c.Start(ctx, "user-1", "O que é graça?")
	require.NoError(t, err)
	assert.Equal(t, "O que é graça?", first.Title)
	_, err = c.Record(ctx, first.ID, models.ChatRoleUser, "O que é graça?")
	require.NoError(t, err)
	_, err = c.Record(ctx, first.ID, models.ChatRoleAssistant, "Favor imerecido.")
	require.NoError(t, err)

	now = now.Add(time.Hour)
	second, err := c.Start(ctx, "user-1", "Como perdoar?")
	require.NoError(t, err)
	_, err = c.Record(ctx, second.ID, models.ChatRoleUser, "Como perdoar?")
	require.NoError(t, err)

	list, err := c.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "most recently active first")
	require.Len(t, list[1].Messages, 1, "list carries only the opening message")
	assert.Equal(t, "O que é graça?", list[1].Messages[0].Content)

	now = now.Add(time.Hour)
	_, err = c.Record(ctx, first.ID, models.ChatRoleUser, "E a fé?")
	require.NoError(t, err)
	list, err = c.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, list[0].ID)

	got, err := c.Get(ctx, "user-1", first.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, models.ChatRoleAssistant, got.Messages[1].Role)

	_, err = c.Get(ctx, "user-2", first.ID)
	assert.ErrorIs(t, err, progress.ErrNotFound)
	assert.ErrorIs(t, c.Delete(ctx, "user-2", first.ID), progress.ErrNotFound)

	require.NoError(t, c.Delete(ctx, "user-1", first.ID))
	_, err = c.Get(ctx, "user-1", first.ID)
	assert.ErrorIs(t, err, progress.ErrNotFound)

	_, err = c.Record(ctx, first.ID, models.ChatRoleUser, "perdido")
	assert.ErrorIs(t, err, progress.ErrNotFound)
}
