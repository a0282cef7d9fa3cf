package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"talkwise.app/circles/internal/store"
)

const defaultOpenAIModelName = "gpt-4o-mini"

// OpenAIGenerator talks to any OpenAI-compatible chat completion endpoint.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

func NewOpenAIGenerator(apiKey, baseURL, model string) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = defaultOpenAIModelName
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (g *OpenAIGenerator) Close() error { return nil }

func (g *OpenAIGenerator) GenerateReply(ctx context.Context, prompt string, history []store.Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: openAIMessages(prompt, history),
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("chat completion returned an empty message")
	}
	return reply, nil
}

func openAIMessages(prompt string, history []store.Message) []openai.ChatCompletionMessage {
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: replySystemInstruction},
	}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if isAIMessage(m) {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: transcriptLine(m)})
	}
	if len(history) == 0 || isAIMessage(history[len(history)-1]) {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: fmt.Sprintf(continuePrompt, prompt),
		})
	}
	return msgs
}
