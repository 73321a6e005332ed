// internal/gpt/client.go
package gpt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"minuto/internal/models"
)

// ErrNotConfigured is returned when no API key was set.
var ErrNotConfigured = errors.New("gpt client not configured")

type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
}

type Client struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewClient returns a chat client. BaseURL points it at any
// OpenAI-compatible endpoint.
func NewClient(cfg Config) *Client {
	if cfg.APIKey == "" {
		return &Client{model: cfg.Model, maxTokens: cfg.MaxTokens}
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &Client{
		client:    openai.NewClientWithConfig(oc),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// Question is one chat turn with the user's recent reflections and the
// earlier messages of the conversation as context.
type Question struct {
	Message  string
	Insights []string
	History  []Turn
}

const systemPrompt = `Você é um Assistente Teológico especialista na Bíblia Sagrada. Ajude o usuário a entender melhor as Escrituras, baseando suas respostas exclusivamente no conteúdo bíblico e em comentários teológicos de domínio público.

Regras:
1. Responda apenas com base nas Escrituras.
2. Cite os versículos relevantes (Livro Capítulo:Versículo).
3. Mantenha um tom respeitoso, acolhedor e pastoral.
4. Se a pergunta não for sobre a Bíblia, redirecione com gentileza para temas bíblicos.
5. Use a versão Almeida em português.
6. Seja claro, objetivo e encorajador.`

func buildSystemPrompt(insights []string) string {
	if len(insights) == 0 {
		return systemPrompt
	}
	return systemPrompt + "\n\nContexto do usuário:\nInsights recentes do diário: " +
		strings.Join(insights, " | ") +
		"\n\nUse esse contexto para personalizar suas respostas quando relevante."
}

func (c *Client) Answer(ctx context.Context, q Question) (string, error) {
	if c.client == nil {
		return "", ErrNotConfigured
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(q.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: buildSystemPrompt(q.Insights),
	})
	for _, turn := range q.History {
		role := openai.ChatMessageRoleUser
		if turn.Role == models.ChatRoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: q.Message,
	})

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: 0.7,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from GPT API")
	}

	return resp.Choices[0].Message.Content, nil
}
