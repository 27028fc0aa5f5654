// ABOUTME: Tests for chat turn orchestration through the HTTP handler
// ABOUTME: Uses the in-memory store mock and scripted backend clients

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fooodis/chat-gateway/internal/analytics"
	"github.com/fooodis/chat-gateway/internal/assistant"
	"github.com/fooodis/chat-gateway/internal/backend"
	"github.com/fooodis/chat-gateway/internal/store"
)

// fakeBackend is a scripted backend.Client.
type fakeBackend struct {
	lastRequest *backend.Request
	reply       *backend.Reply
	err         error
	calls       int
}

func (f *fakeBackend) GenerateReply(ctx context.Context, req *backend.Request) (*backend.Reply, error) {
	f.calls++
	f.lastRequest = req
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

// testGateway builds a gateway wired to a mock store and fake backends.
func testGateway(t *testing.T, mock *store.MockStore, completion, thread backend.Client) *Gateway {
	t.Helper()
	return &Gateway{
		store:            mock,
		resolver:         assistant.NewResolver(mock),
		completion:       completion,
		thread:           thread,
		sink:             analytics.NewSink(nil, mock),
		logger:           slog.Default(),
		apiKeyConfigured: completion != nil || thread != nil,
	}
}

func postChat(t *testing.T, g *Gateway, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/chatbot", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	g.handleChatbot(rec, req)
	return rec
}

func decodeChatResponse(t *testing.T, rec *httptest.ResponseRecorder) ChatResponse {
	t.Helper()
	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestChat_NewConversation(t *testing.T) {
	mock := store.NewMockStore()
	completion := &fakeBackend{reply: &backend.Reply{Text: "Hi! Ask me anything.", TokensUsed: 12}}
	g := testGateway(t, mock, completion, nil)

	rec := postChat(t, g, map[string]string{"message": "Hello"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeChatResponse(t, rec)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.ConversationID)
	assert.Equal(t, "Hi! Ask me anything.", resp.Message)
	assert.Equal(t, 12, resp.TokensUsed)
	assert.Empty(t, resp.ThreadID)

	conv, err := mock.GetConversation(context.Background(), resp.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.MessageCount, "opening turn counts once, at creation")

	msgs := mock.Messages(resp.ConversationID)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.Equal(t, store.RoleAssistant, msgs[1].Role)
	assert.Equal(t, 12, msgs[1].TokensUsed)
}

func TestChat_FollowUpIncrementsCount(t *testing.T) {
	mock := store.NewMockStore()
	completion := &fakeBackend{reply: &backend.Reply{Text: "again", TokensUsed: 5}}
	g := testGateway(t, mock, completion, nil)

	first := decodeChatResponse(t, postChat(t, g, map[string]string{"message": "Hello"}))
	second := decodeChatResponse(t, postChat(t, g, map[string]string{
		"message":        "And another thing",
		"conversationId": first.ConversationID,
	}))

	assert.Equal(t, first.ConversationID, second.ConversationID)

	conv, err := mock.GetConversation(context.Background(), first.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, 2, conv.MessageCount)
	assert.Len(t, mock.Messages(first.ConversationID), 4)
}

func TestChat_UnknownConversationID(t *testing.T) {
	mock := store.NewMockStore()
	g := testGateway(t, mock, &fakeBackend{reply: &backend.Reply{Text: "x"}}, nil)

	rec := postChat(t, g, map[string]string{
		"message":        "Hello",
		"conversationId": "conv_missing",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChat_MissingMessage(t *testing.T) {
	g := testGateway(t, store.NewMockStore(), &fakeBackend{}, nil)

	for _, body := range []map[string]string{
		{},
		{"message": ""},
		{"message": "   "},
	} {
		rec := postChat(t, g, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, false, resp["success"])
		assert.Equal(t, "Message is required", resp["error"])
	}
}

func TestChat_ThreadedAssistantSelectsThreadBackend(t *testing.T) {
	mock := store.NewMockStore()
	mock.AddAssistant(&store.AssistantConfig{
		ID:                "a-1",
		Name:              "Support",
		Instructions:      "Answer support questions.",
		OpenAIAssistantID: "asst_123",
		IsActive:          true,
	})
	completion := &fakeBackend{reply: &backend.Reply{Text: "stateless"}}
	thread := &fakeBackend{reply: &backend.Reply{Text: "threaded", TokensUsed: 30, ThreadID: "thread_9"}}
	g := testGateway(t, mock, completion, thread)

	rec := postChat(t, g, map[string]string{"message": "Hi", "assistantId": "a-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeChatResponse(t, rec)
	assert.Equal(t, "threaded", resp.Message)
	assert.Equal(t, "thread_9", resp.ThreadID)
	assert.Zero(t, completion.calls)
	require.Equal(t, 1, thread.calls)
	assert.Equal(t, "asst_123", thread.lastRequest.AssistantID)

	// Thread id persisted for the next turn
	conv, err := mock.GetConversation(context.Background(), resp.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "thread_9", conv.ThreadID)
}

func TestChat_StoredThreadIDWinsOverRequest(t *testing.T) {
	mock := store.NewMockStore()
	mock.AddAssistant(&store.AssistantConfig{
		ID:                "a-1",
		Name:              "Support",
		OpenAIAssistantID: "asst_123",
		IsActive:          true,
	})
	mock.AddConversation(&store.Conversation{
		ID:           "conv_x",
		Language:     "en",
		Status:       store.StatusActive,
		ThreadID:     "thread_stored",
		MessageCount: 1,
	})
	thread := &fakeBackend{reply: &backend.Reply{Text: "ok", ThreadID: "thread_stored"}}
	g := testGateway(t, mock, nil, thread)

	rec := postChat(t, g, map[string]string{
		"message":        "Hi",
		"conversationId": "conv_x",
		"assistantId":    "a-1",
		"threadId":       "thread_from_client",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "thread_stored", thread.lastRequest.ThreadID)
}

func TestChat_BackendFailureYieldsFallback(t *testing.T) {
	tests := []struct {
		language string
		want     string
	}{
		{"en", fallbackErrorEN},
		{"sv", fallbackErrorSV},
	}

	for _, tt := range tests {
		mock := store.NewMockStore()
		completion := &fakeBackend{err: fmt.Errorf("run still queued: %w", backend.ErrRunTimedOut)}
		g := testGateway(t, mock, completion, nil)

		rec := postChat(t, g, map[string]string{"message": "Hello", "language": tt.language})
		require.Equal(t, http.StatusOK, rec.Code, "backend failure is not an HTTP error")

		resp := decodeChatResponse(t, rec)
		assert.True(t, resp.Success)
		assert.Equal(t, tt.want, resp.Message)
		assert.Zero(t, resp.TokensUsed)

		// Turn still persisted, with a zero-token assistant row
		msgs := mock.Messages(resp.ConversationID)
		require.Len(t, msgs, 2, "language %s", tt.language)
		assert.Equal(t, tt.want, msgs[1].Content)
		assert.Zero(t, msgs[1].TokensUsed)
	}
}

func TestChat_NoAPIKeyGreeting(t *testing.T) {
	tests := []struct {
		language string
		want     string
	}{
		{"", fallbackGreetingEN},
		{"sv", fallbackGreetingSV},
	}

	for _, tt := range tests {
		mock := store.NewMockStore()
		g := testGateway(t, mock, nil, nil) // no backends: no key configured

		rec := postChat(t, g, map[string]string{"message": "Hello", "language": tt.language})
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decodeChatResponse(t, rec)
		assert.Equal(t, tt.want, resp.Message)
	}
}

func TestChat_UnresolvableAssistantStillReplies(t *testing.T) {
	mock := store.NewMockStore()
	completion := &fakeBackend{reply: &backend.Reply{Text: "default reply"}}
	g := testGateway(t, mock, completion, nil)

	rec := postChat(t, g, map[string]string{"message": "Hi", "assistantId": "ghost"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeChatResponse(t, rec)
	assert.Equal(t, "default reply", resp.Message)
	assert.Contains(t, completion.lastRequest.SystemPrompt, "Fooodis")
}

func TestChat_HistoryReplayedForStatelessOnly(t *testing.T) {
	mock := store.NewMockStore()
	completion := &fakeBackend{reply: &backend.Reply{Text: "reply"}}
	g := testGateway(t, mock, completion, nil)

	first := decodeChatResponse(t, postChat(t, g, map[string]string{"message": "first"}))
	postChat(t, g, map[string]string{"message": "second", "conversationId": first.ConversationID})

	require.NotNil(t, completion.lastRequest)
	require.Len(t, completion.lastRequest.History, 2, "prior turn replayed")
	assert.Equal(t, "first", completion.lastRequest.History[0].Content)
	assert.Equal(t, "reply", completion.lastRequest.History[1].Content)
	assert.Equal(t, "second", completion.lastRequest.UserMessage)
}

func TestChat_RecordsAnalyticsAndDailyUsage(t *testing.T) {
	mock := store.NewMockStore()
	completion := &fakeBackend{reply: &backend.Reply{Text: "reply", TokensUsed: 40}}
	g := testGateway(t, mock, completion, nil)

	resp := decodeChatResponse(t, postChat(t, g, map[string]string{
		"message":   "Hello",
		"visitorId": "visitor-7",
	}))

	events := mock.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "chat_message", events[0].Event)
	assert.Equal(t, "chatbot", events[0].Category)
	assert.Equal(t, resp.ConversationID, events[0].SessionID)
	assert.Equal(t, "visitor-7", events[0].UserID)
}

func TestChat_PersistenceFailureStillReplies(t *testing.T) {
	mock := store.NewMockStore()
	mock.FailRecordTurn = true
	completion := &fakeBackend{reply: &backend.Reply{Text: "reply", TokensUsed: 9}}
	g := testGateway(t, mock, completion, nil)

	rec := postChat(t, g, map[string]string{"message": "Hello"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeChatResponse(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "reply", resp.Message)
}
