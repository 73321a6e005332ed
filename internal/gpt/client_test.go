package gpt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minuto/internal/models"
)

func TestAnswerWithoutKey(t *testing.T) {
	c := NewClient(Config{Model: "gpt-4.1-mini"})
	_, err := c.Answer(context.Background(), Question{Message: "Quem foi Davi?"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestBuildSystemPrompt(t *testing.T) {
	assert.Equal(t, systemPrompt, buildSystemPrompt(nil))

	prompt := buildSystemPrompt([]string{"confiar mais", "agradecer"})
	assert.Contains(t, prompt, "confiar mais | agradecer")
}

type chatRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestAnswer(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","model":"gpt-4.1-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Leia Salmos 23."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", Model: "gpt-4.1-mini", BaseURL: srv.URL, MaxTokens: 300})
	answer, err := c.Answer(context.Background(), Question{Message: "Estou ansioso", Insights: []string{"orar cedo"}})
	require.NoError(t, err)
	assert.Equal(t, "Leia Salmos 23.", answer)

	assert.Equal(t, "gpt-4.1-mini", got.Model)
	assert.Equal(t, 300, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "orar cedo")
	assert.Equal(t, "Estou ansioso", got.Messages[1].Content)
}

func TestAnswerUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", Model: "gpt-4.1-mini", BaseURL: srv.URL})
	_, err := c.Answer(context.Background(), Question{Message: "Oi"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotConfigured)
}

func TestAnswerSendsHistory(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-2","object":"chat.completion","model":"gpt-4.1-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Veja Mateus 6:34."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", Model: "gpt-4.1-mini", BaseURL: srv.URL})
	_, err := c.Answer(context.Background(), Question{
		Message: "E sobre o amanhã?",
		History: []Turn{
			{Role: models.ChatRoleUser, Content: "Estou ansioso"},
			{Role: models.ChatRoleAssistant, Content: "Leia Filipenses 4:6."},
		},
	})
	require.NoError(t, err)

	require.Len(t, got.Messages, 4)
	roles := []string{got.Messages[0].Role, got.Messages[1].Role, got.Messages[2].Role, got.Messages[3].Role}
	assert.Equal(t, []string{"system", "user", "assistant", "user"}, roles)
	assert.Equal(t, "Leia Filipenses 4:6.", got.Messages[2].Content)
	assert.Equal(t, "E sobre o amanhã?", got.Messages[3].Content)
}
