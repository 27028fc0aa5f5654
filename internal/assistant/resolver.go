// ABOUTME: Resolves which system prompt and backend strategy apply to a chat turn
// ABOUTME: Resolution always degrades to a default prompt, never blocks the turn

package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/fooodis/chat-gateway/internal/store"
)

// DefaultSystemPrompt is used when neither an agent override nor a stored
// assistant supplies instructions.
const DefaultSystemPrompt = "You are a helpful assistant for Fooodis, a food delivery and restaurant management platform. Help users with their questions about food, restaurants, and the platform."

// Strategy selects which backend adapter handles the turn.
type Strategy int

const (
	// StrategyChatCompletion sends the prompt and recent history on every
	// turn; the provider keeps no state between calls.
	StrategyChatCompletion Strategy = iota
	// StrategyAssistantThread reuses a provider-side thread and polls a run
	// to completion; selected only when the assistant carries a provider id.
	StrategyAssistantThread
)

func (s Strategy) String() string {
	if s == StrategyAssistantThread {
		return "assistant_thread"
	}
	return "chat_completion"
}

// Resolution is the outcome of resolving one request: the prompt to speak
// with, the strategy to speak through, and the identity to attribute replies to.
type Resolution struct {
	SystemPrompt      string
	Model             string
	AssistantID       string
	AssistantName     string
	OpenAIAssistantID string
	Strategy          Strategy
}

// Request carries the per-turn inputs that influence resolution.
type Request struct {
	AgentSystemPrompt string
	AgentName         string
	AssistantID       string
	Language          string
}

// Resolver picks the prompt and backend configuration for each turn.
type Resolver struct {
	store  store.AssistantStore
	logger *slog.Logger
}

// NewResolver creates a resolver backed by the assistant store.
func NewResolver(s store.AssistantStore) *Resolver {
	return &Resolver{
		store:  s,
		logger: slog.Default().With("component", "resolver"),
	}
}

// Resolve determines the system prompt and strategy for a request. An agent
// override wins outright; otherwise a stored assistant is consulted; anything
// unresolvable falls back to the default prompt and the stateless strategy.
func (r *Resolver) Resolve(ctx context.Context, req Request) Resolution {
	res := Resolution{
		SystemPrompt:  DefaultSystemPrompt,
		AssistantName: "Fooodis Assistant",
		Strategy:      StrategyChatCompletion,
	}

	switch {
	case strings.TrimSpace(req.AgentSystemPrompt) != "":
		res.SystemPrompt = req.AgentSystemPrompt
		if req.AgentName != "" {
			res.AssistantName = req.AgentName
		}

	case req.AssistantID != "":
		config, err := r.store.GetAssistant(ctx, req.AssistantID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				r.logger.Warn("assistant lookup failed, using default prompt",
					"assistant_id", req.AssistantID, "error", err)
			} else {
				r.logger.Debug("unknown assistant id, using default prompt",
					"assistant_id", req.AssistantID)
			}
			break
		}
		res.AssistantID = config.ID
		res.AssistantName = config.Name
		res.Model = config.Model
		if config.Instructions != "" {
			res.SystemPrompt = config.Instructions
		}
		if config.OpenAIAssistantID != "" {
			res.OpenAIAssistantID = config.OpenAIAssistantID
			res.Strategy = StrategyAssistantThread
		}
	}

	res.SystemPrompt += LanguageInstruction(req.Language)
	return res
}

// LanguageInstruction returns the directive appended to every system prompt
// so replies come back in the visitor's language.
func LanguageInstruction(language string) string {
	switch strings.ToLower(language) {
	case "sv", "swedish":
		return "\n\nIMPORTANT: The user is communicating in Swedish. You MUST respond ONLY in Swedish (Svenska). All your responses should be in Swedish."
	default:
		return "\n\nIMPORTANT: The user is communicating in English. You MUST respond ONLY in English. All your responses should be in English."
	}
}
