// ABOUTME: Chat turn orchestration: conversation, resolution, backend, persistence
// ABOUTME: Backend failures degrade to localized fallback text, never an HTTP error

package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fooodis/chat-gateway/internal/assistant"
	"github.com/fooodis/chat-gateway/internal/backend"
	"github.com/fooodis/chat-gateway/internal/store"
)

// Localized fallback texts. The error fallback answers any backend failure;
// the greeting fallback answers when no API key is configured at all.
const (
	fallbackErrorEN = "I apologize, but I'm having trouble processing your request right now. Please try again in a moment."
	fallbackErrorSV = "Jag ber om ursäkt, men jag har problem med att behandla din förfrågan just nu. Vänligen försök igen om en stund."

	fallbackGreetingEN = "Hello! How can I help you today?"
	fallbackGreetingSV = "Hej! Hur kan jag hjälpa dig idag?"
)

// historyWindow is how many recent messages the stateless strategy replays.
const historyWindow = 10

// ChatRequest is one inbound chat turn.
type ChatRequest struct {
	Message           string `json:"message"`
	ConversationID    string `json:"conversationId,omitempty"`
	VisitorID         string `json:"visitorId,omitempty"`
	AssistantID       string `json:"assistantId,omitempty"`
	Language          string `json:"language,omitempty"`
	AgentName         string `json:"agentName,omitempty"`
	AgentSystemPrompt string `json:"agentSystemPrompt,omitempty"`
	ThreadID          string `json:"threadId,omitempty"`

	// clientIP is filled by the handler, not the JSON body.
	clientIP string
}

// ChatResponse is the reply for one turn.
type ChatResponse struct {
	Success        bool   `json:"success"`
	ConversationID string `json:"conversationId"`
	ThreadID       string `json:"threadId,omitempty"`
	Message        string `json:"message"`
	TokensUsed     int    `json:"tokensUsed"`
	ResponseTimeMs int    `json:"responseTimeMs"`
}

// ProcessChat runs one turn end to end: load or create the conversation,
// resolve the prompt and strategy, produce a reply, persist the turn and
// record usage. Only a missing conversation fails the call; backend and
// persistence problems degrade to fallback text and logged warnings.
func (g *Gateway) ProcessChat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	conv, created, err := g.store.GetOrCreateConversation(ctx, store.NewConversation{
		ID:          req.ConversationID,
		VisitorID:   req.VisitorID,
		AssistantID: req.AssistantID,
		Language:    req.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}

	resolution := g.resolver.Resolve(ctx, assistant.Request{
		AgentSystemPrompt: req.AgentSystemPrompt,
		AgentName:         req.AgentName,
		AssistantID:       req.AssistantID,
		Language:          req.Language,
	})

	start := time.Now()
	reply := g.generateReply(ctx, req, conv, resolution)
	responseTimeMs := int(time.Since(start).Milliseconds())

	g.persistTurn(ctx, req, conv, resolution, reply, created, responseTimeMs)
	g.recordUsage(ctx, req, conv, reply)

	threadID := conv.ThreadID
	if reply.ThreadID != "" {
		threadID = reply.ThreadID
	}

	return &ChatResponse{
		Success:        true,
		ConversationID: conv.ID,
		ThreadID:       threadID,
		Message:        reply.Text,
		TokensUsed:     reply.TokensUsed,
		ResponseTimeMs: responseTimeMs,
	}, nil
}

// generateReply invokes the selected backend strategy, degrading to
// localized fallback text when no key is configured or the backend fails.
func (g *Gateway) generateReply(ctx context.Context, req *ChatRequest, conv *store.Conversation, res assistant.Resolution) *backend.Reply {
	if !g.apiKeyConfigured {
		return &backend.Reply{Text: localized(req.Language, fallbackGreetingEN, fallbackGreetingSV)}
	}

	backendReq := &backend.Request{
		SystemPrompt: res.SystemPrompt,
		UserMessage:  req.Message,
		Model:        res.Model,
	}

	var client backend.Client
	if res.Strategy == assistant.StrategyAssistantThread {
		client = g.thread
		backendReq.AssistantID = res.OpenAIAssistantID
		// The stored thread id wins; a client-supplied one only seeds a
		// conversation that has none yet.
		backendReq.ThreadID = conv.ThreadID
		if backendReq.ThreadID == "" {
			backendReq.ThreadID = req.ThreadID
		}
	} else {
		client = g.completion
		history, err := g.store.RecentHistory(ctx, conv.ID, historyWindow)
		if err != nil {
			g.logger.Warn("loading history failed, replying without context",
				"conversation_id", conv.ID, "error", err)
		}
		for _, msg := range history {
			backendReq.History = append(backendReq.History, backend.Turn{
				Role:    msg.Role,
				Content: msg.Content,
			})
		}
	}

	reply, err := client.GenerateReply(ctx, backendReq)
	if err != nil {
		g.logger.Error("backend reply failed",
			"conversation_id", conv.ID,
			"strategy", res.Strategy.String(),
			"error", err,
		)
		return &backend.Reply{Text: localized(req.Language, fallbackErrorEN, fallbackErrorSV)}
	}
	return reply
}

// persistTurn records both messages and any newly created thread id.
// Persistence is best-effort: failures are logged, the reply still goes out.
func (g *Gateway) persistTurn(ctx context.Context, req *ChatRequest, conv *store.Conversation, res assistant.Resolution, reply *backend.Reply, created bool, responseTimeMs int) {
	userMsg := &store.Message{
		Role:    store.RoleUser,
		Content: req.Message,
	}
	assistantMsg := &store.Message{
		Role:           store.RoleAssistant,
		Content:        reply.Text,
		AssistantID:    res.AssistantID,
		AssistantName:  res.AssistantName,
		TokensUsed:     reply.TokensUsed,
		ResponseTimeMs: responseTimeMs,
	}

	// The opening turn was already counted when the conversation was created
	if err := g.store.RecordTurn(ctx, conv.ID, userMsg, assistantMsg, !created); err != nil {
		g.logger.Error("persisting turn failed",
			"conversation_id", conv.ID, "error", err)
	}

	if reply.ThreadID != "" && conv.ThreadID == "" {
		if err := g.store.SetThreadID(ctx, conv.ID, reply.ThreadID); err != nil {
			g.logger.Error("persisting thread id failed",
				"conversation_id", conv.ID, "thread_id", reply.ThreadID, "error", err)
		}
	}
}

// recordUsage tracks the turn in analytics and the daily aggregate.
// Both writes are best-effort.
func (g *Gateway) recordUsage(ctx context.Context, req *ChatRequest, conv *store.Conversation, reply *backend.Reply) {
	if _, err := g.sink.RecordEvent(ctx, &store.AnalyticsEvent{
		Event:     "chat_message",
		Category:  "chatbot",
		SessionID: conv.ID,
		UserID:    req.VisitorID,
		IPAddress: req.clientIP,
	}); err != nil {
		g.logger.Warn("recording chat event failed", "conversation_id", conv.ID, "error", err)
	}

	g.sink.RecordDailyUsage(ctx, reply.TokensUsed)
}

// localized returns the Swedish variant for sv, English otherwise.
func localized(language, en, sv string) string {
	switch strings.ToLower(language) {
	case "sv", "swedish":
		return sv
	default:
		return en
	}
}
