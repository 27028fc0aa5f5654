// ABOUTME: Stateless chat completion adapter: prompt plus recent history per call
// ABOUTME: The provider keeps no state, so every turn replays the conversation window

package backend

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// completionAPI is the slice of the provider client the adapter needs.
type completionAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// CompletionAdapter answers each turn with a single chat completion call.
type CompletionAdapter struct {
	api    completionAPI
	model  string
	logger *slog.Logger
}

// NewCompletionAdapter creates the stateless adapter. defaultModel is used
// when a request names no model of its own.
func NewCompletionAdapter(api completionAPI, defaultModel string) *CompletionAdapter {
	return &CompletionAdapter{
		api:    api,
		model:  defaultModel,
		logger: slog.Default().With("component", "backend", "strategy", "chat_completion"),
	}
}

// GenerateReply builds the message window (system prompt, history, current
// message) and returns the first choice.
func (a *CompletionAdapter) GenerateReply(ctx context.Context, req *Request) (*Reply, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: req.SystemPrompt,
	})
	for _, turn := range req.History {
		role := openai.ChatMessageRoleUser
		if turn.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: turn.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserMessage,
	})

	resp, err := a.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   1000,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	a.logger.Debug("completion finished",
		"model", model,
		"history_len", len(req.History),
		"tokens", resp.Usage.TotalTokens,
	)

	return &Reply{
		Text:       resp.Choices[0].Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}
