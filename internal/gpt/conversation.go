package gpt

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"

	"minuto/internal/models"
	"minuto/internal/progress"
)

const (
	// HistoryTurns is how many earlier messages go back to the model.
	HistoryTurns = 10
	// RecentConversations bounds the conversation list.
	RecentConversations = 20

	titleRunes = 50
)

// Turn is an earlier message of the conversation sent as context.
type Turn struct {
	Role    string
	Content string
}

type ConversationStore interface {
	CreateConversation(ctx context.Context, c *models.ChatConversation) error
	// GetConversation returns ErrNotFound unless the conversation belongs to userID.
	GetConversation(ctx context.Context, userID, id string) (*models.ChatConversation, error)
	// ListConversations returns the most recently active first, each with
	// its first message only.
	ListConversations(ctx context.Context, userID string, limit int) ([]models.ChatConversation, error)
	// AddChatMessage appends a message and bumps the conversation's UpdatedAt.
	AddChatMessage(ctx context.Context, m *models.ChatMessage) error
	DeleteConversation(ctx context.Context, userID, id string) error
}

// Conversations keeps the chat history of each user.
type Conversations struct {
	store ConversationStore
	clock progress.Clock
}

func NewConversations(store ConversationStore, clock progress.Clock) *Conversations {
	return &Conversations{store: store, clock: clock}
}

// Title is the first characters of the opening message.
func Title(message string) string {
	if utf8.RuneCountInString(message) <= titleRunes {
		return message
	}
	runes := []rune(message)
	return string(runes[:titleRunes]) + "..."
}

// Start opens a new conversation titled after its first message.
func (c *Conversations) Start(ctx context.Context, userID, message string) (*models.ChatConversation, error) {
	now := c.clock.Now()
	conv := &models.ChatConversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     Title(message),
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []models.ChatMessage{},
	}
	if err := c.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation for %s: %w", userID, err)
	}
	return conv, nil
}

func (c *Conversations) Get(ctx context.Context, userID, id string) (*models.ChatConversation, error) {
	conv, err := c.store.GetConversation(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", id, err)
	}
	if conv.Messages == nil {
		conv.Messages = []models.ChatMessage{}
	}
	return conv, nil
}

func (c *Conversations) List(ctx context.Context, userID string) ([]models.ChatConversation, error) {
	out, err := c.store.ListConversations(ctx, userID, RecentConversations)
	if err != nil {
		return nil, fmt.Errorf("list conversations for %s: %w", userID, err)
	}
	if out == nil {
		out = []models.ChatConversation{}
	}
	return out, nil
}

func (c *Conversations) Delete(ctx context.Context, userID, id string) error {
	if err := c.store.DeleteConversation(ctx, userID, id); err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	return nil
}

// Record appends one message to the conversation.
func (c *Conversations) Record(ctx context.Context, conversationID, role, content string) (*models.ChatMessage, error) {
	m := &models.ChatMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      c.clock.Now(),
	}
	if err := c.store.AddChatMessage(ctx, m); err != nil {
		return nil, fmt.Errorf("record %s message: %w", role, err)
	}
	return m, nil
}

// History returns the last HistoryTurns messages of conv, oldest first.
func History(conv *models.ChatConversation) []Turn {
	msgs := conv.Messages
	if len(msgs) > HistoryTurns {
		msgs = msgs[len(msgs)-HistoryTurns:]
	}
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}
