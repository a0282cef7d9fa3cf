package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"talkwise.app/circles/internal/store"
)

const (
	defaultGeminiModelName = "gemini-1.5-flash-latest"

	replySystemInstruction = "You are the AI Assistant taking part in a small group discussion. " +
		"Participant messages are prefixed with their name. " +
		"Reply to the latest message in a friendly, concise way that keeps the conversation going. " +
		"Do not prefix your reply with your own name."

	continuePrompt = "Please continue the discussion from the latest message: %s"
)

// GeminiGenerator produces replies with the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiGenerator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if model == "" {
		model = defaultGeminiModelName
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model, logger: logger}, nil
}

func (g *GeminiGenerator) Close() error {
	if g.client == nil {
		return nil
	}
	if err := g.client.Close(); err != nil {
		return fmt.Errorf("error closing GenAI client: %w", err)
	}
	g.logger.Info("GenAI client closed")
	return nil
}

func (g *GeminiGenerator) GenerateReply(ctx context.Context, prompt string, history []store.Message) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(replySystemInstruction)},
	}

	turns, send := geminiTurns(prompt, history)
	chatSession := model.StartChat()
	chatSession.History = turns

	resp, err := chatSession.SendMessage(ctx, send...)
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini response was empty or had no valid candidates")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			g.logger.Debug("skipping non-text gemini response part", zap.String("type", fmt.Sprintf("%T", part)))
		}
	}

	reply := strings.TrimSpace(responseText.String())
	if reply == "" {
		return "", fmt.Errorf("gemini response had no text")
	}
	return reply, nil
}

const discussionOpening = "Here is the discussion so far."

// geminiTurns folds history into alternating user/model turns. The trailing
// user turn becomes the parts to send; when the newest message is the model's
// own, a continuation prompt is sent instead.
func geminiTurns(prompt string, history []store.Message) ([]*genai.Content, []genai.Part) {
	var turns []*genai.Content
	for _, msg := range history {
		role := "user"
		if isAIMessage(msg) {
			role = "model"
		}
		part := genai.Text(transcriptLine(msg))
		if n := len(turns); n > 0 && turns[n-1].Role == role {
			turns[n-1].Parts = append(turns[n-1].Parts, part)
			continue
		}
		turns = append(turns, &genai.Content{Role: role, Parts: []genai.Part{part}})
	}

	// Chat history has to open with a user turn.
	if len(turns) > 0 && turns[0].Role == "model" {
		opening := &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(discussionOpening)}}
		turns = append([]*genai.Content{opening}, turns...)
	}

	if n := len(turns); n > 0 && turns[n-1].Role == "user" {
		return turns[:n-1], turns[n-1].Parts
	}
	return turns, []genai.Part{genai.Text(fmt.Sprintf(continuePrompt, prompt))}
}
