package core

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talkwise.app/circles/internal/config"
	"talkwise.app/circles/internal/store"
)

func msg(author, body string) store.Message {
	return store.Message{Author: author, Body: body}
}

func TestGeminiTurns_FoldsConsecutiveRoles(t *testing.T) {
	history := []store.Message{
		msg("Alice", "hi all"),
		msg(store.AIAuthor, "hello Alice"),
		msg("Bob", "what's up"),
		msg("Alice", "not much"),
	}

	turns, send := geminiTurns("not much", history)
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, []genai.Part{genai.Text("Alice: hi all")}, turns[0].Parts)
	assert.Equal(t, "model", turns[1].Role)
	assert.Equal(t, []genai.Part{genai.Text("hello Alice")}, turns[1].Parts)
	assert.Equal(t, []genai.Part{genai.Text("Bob: what's up"), genai.Text("Alice: not much")}, send)
}

func TestGeminiTurns_LatestFromModel(t *testing.T) {
	history := []store.Message{msg("Alice", "hi"), msg(store.AIAuthor, "hello")}

	turns, send := geminiTurns("hello", history)
	require.Len(t, turns, 2)
	assert.Equal(t, "model", turns[1].Role)
	require.Len(t, send, 1)
	assert.Equal(t, genai.Text("Please continue the discussion from the latest message: hello"), send[0])
}

func TestGeminiTurns_OpensWithUserTurn(t *testing.T) {
	history := []store.Message{
		msg(store.AIAuthor, "welcome everyone"),
		msg("Alice", "hi"),
	}

	turns, send := geminiTurns("hi", history)
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, []genai.Part{genai.Text(discussionOpening)}, turns[0].Parts)
	assert.Equal(t, "model", turns[1].Role)
	assert.Equal(t, []genai.Part{genai.Text("Alice: hi")}, send)
}

func TestGeminiTurns_OnlyModelMessages(t *testing.T) {
	turns, send := geminiTurns("hello", []store.Message{msg(store.AIAuthor, "hello")})
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "model", turns[1].Role)
	assert.Equal(t, []genai.Part{genai.Text("Please continue the discussion from the latest message: hello")}, send)
}

func TestOpenAIMessages(t *testing.T) {
	history := []store.Message{msg("Alice", "hi"), msg(store.AIAuthor, "hello"), msg("Bob", "yo")}

	msgs := openAIMessages("yo", history)
	require.Len(t, msgs, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, msgs[0].Role)
	assert.Equal(t, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: "Alice: hi"}, msgs[1])
	assert.Equal(t, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "hello"}, msgs[2])
	assert.Equal(t, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: "Bob: yo"}, msgs[3])
}

func TestOpenAIMessages_AppendsPromptWhenNeeded(t *testing.T) {
	msgs := openAIMessages("hello", nil)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "hello")

	msgs = openAIMessages("hello", []store.Message{msg(store.AIAuthor, "hello")})
	require.Len(t, msgs, 3)
	assert.Equal(t, openai.ChatMessageRoleUser, msgs[2].Role)
}

func TestNewGenerator(t *testing.T) {
	gen, err := NewGenerator(context.Background(), &config.Config{
		LLMProvider:  config.ProviderOpenAI,
		OpenAIAPIKey: "sk-test",
	}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIGenerator{}, gen)
	assert.NoError(t, gen.Close())

	_, err = NewGenerator(context.Background(), &config.Config{LLMProvider: "yandex"}, nil)
	assert.Error(t, err)
}

func TestOpenAIGenerator_GenerateReply(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":" Hi Alice "}}]}`))
	}))
	defer srv.Close()

	gen := NewOpenAIGenerator("sk-test", srv.URL+"/v1", "test-model")
	reply, err := gen.GenerateReply(context.Background(), "hello", []store.Message{msg("Alice", "hello")})
	require.NoError(t, err)
	assert.Equal(t, "Hi Alice", reply)
	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "Alice: hello", got.Messages[1].Content)
}

func TestOpenAIGenerator_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	gen := NewOpenAIGenerator("sk-test", srv.URL+"/v1", "")
	_, err := gen.GenerateReply(context.Background(), "hello", nil)
	assert.Error(t, err)
}
