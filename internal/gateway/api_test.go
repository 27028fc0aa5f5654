// ABOUTME: Tests for the widget config, analytics and health HTTP handlers
// ABOUTME: Covers settings overlay, event tracking degradation and rate limiting

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fooodis/chat-gateway/internal/ratelimit"
	"github.com/fooodis/chat-gateway/internal/store"
)

func getChatbotConfig(t *testing.T, g *Gateway) ChatbotConfigResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/chatbot", nil)
	rec := httptest.NewRecorder()
	g.handleChatbot(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatbotConfigResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestChatbotConfig_Defaults(t *testing.T) {
	g := testGateway(t, store.NewMockStore(), nil, nil)

	resp := getChatbotConfig(t, g)
	assert.True(t, resp.Success)
	assert.True(t, resp.Enabled)
	assert.Equal(t, "Fooodis Assistant", resp.Config.ChatbotName)
	assert.Equal(t, "Hello! How can I help you today?", resp.Config.WelcomeMessage)
	assert.Equal(t, "bottom-right", resp.Config.Position)
	assert.Equal(t, "#e8f24c", resp.Config.Color)
	assert.Equal(t, []string{"en", "sv"}, resp.Config.Languages)
	assert.True(t, resp.Config.EnableRating)
	assert.True(t, resp.Config.EnableLeadCapture)
	assert.Empty(t, resp.Assistants)
}

func TestChatbotConfig_SettingsOverlay(t *testing.T) {
	mock := store.NewMockStore()
	mock.SetSetting("enabled", false)
	mock.SetSetting("chatbot_name", "Menu Helper")
	mock.SetSetting("welcome_message", "Hej!")
	mock.SetSetting("widget_position", "bottom-left")
	mock.SetSetting("widget_color", "#123456")
	mock.SetSetting("supported_languages", []any{"sv", "no"})
	mock.SetSetting("enable_rating", false)
	g := testGateway(t, mock, nil, nil)

	resp := getChatbotConfig(t, g)
	assert.False(t, resp.Enabled)
	assert.Equal(t, "Menu Helper", resp.Config.ChatbotName)
	assert.Equal(t, "Hej!", resp.Config.WelcomeMessage)
	assert.Equal(t, "bottom-left", resp.Config.Position)
	assert.Equal(t, "#123456", resp.Config.Color)
	assert.Equal(t, []string{"sv", "no"}, resp.Config.Languages)
	assert.False(t, resp.Config.EnableRating)
	assert.True(t, resp.Config.EnableLeadCapture, "untouched settings keep defaults")
}

func TestChatbotConfig_IgnoresEmptyOverrides(t *testing.T) {
	mock := store.NewMockStore()
	mock.SetSetting("chatbot_name", "")
	mock.SetSetting("supported_languages", []any{42})
	g := testGateway(t, mock, nil, nil)

	resp := getChatbotConfig(t, g)
	assert.Equal(t, "Fooodis Assistant", resp.Config.ChatbotName)
	assert.Equal(t, []string{"en", "sv"}, resp.Config.Languages)
}

func TestChatbotConfig_ListsActiveAssistants(t *testing.T) {
	mock := store.NewMockStore()
	mock.AddAssistant(&store.AssistantConfig{
		ID:          "a-1",
		Name:        "Support",
		Description: "Order and delivery questions",
		Type:        "support",
		IsActive:    true,
	})
	mock.AddAssistant(&store.AssistantConfig{ID: "a-2", Name: "Retired", IsActive: false})
	g := testGateway(t, mock, nil, nil)

	resp := getChatbotConfig(t, g)
	require.Len(t, resp.Assistants, 1)
	assert.Equal(t, "a-1", resp.Assistants[0].ID)
	assert.Equal(t, "Support", resp.Assistants[0].Name)
	assert.Equal(t, "Order and delivery questions", resp.Assistants[0].Description)
	assert.Equal(t, "support", resp.Assistants[0].Type)
}

func postEvent(t *testing.T, g *Gateway, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/analytics/events", strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	g.handleAnalyticsEvents(rec, req)
	return rec
}

func TestTrackEvent_RequiresEventName(t *testing.T) {
	g := testGateway(t, store.NewMockStore(), nil, nil)

	for _, body := range []string{`{}`, `{"event":""}`, `not json`} {
		rec := postEvent(t, g, body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, false, resp["success"])
		assert.Equal(t, "Event name required", resp["error"])
	}
}

func TestTrackEvent_FallbackPath(t *testing.T) {
	mock := store.NewMockStore()
	g := testGateway(t, mock, nil, nil) // no engine configured

	rec := postEvent(t, g, `{
		"event": "widget_opened",
		"category": "chatbot",
		"properties": {"page": "/menu"},
		"sessionId": "sess-1",
		"userId": "visitor-1"
	}`, map[string]string{
		"CF-Connecting-IP": "203.0.113.9",
		"CF-IPCountry":     "SE",
		"User-Agent":       "widget/1.0",
		"Referer":          "https://fooodis.com/menu",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TrackEventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, strings.HasPrefix(resp.EventID, "evt_"), "got %q", resp.EventID)
	assert.Equal(t, "d1", resp.Tracked)

	events := mock.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "widget_opened", events[0].Event)
	assert.Equal(t, "chatbot", events[0].Category)
	assert.JSONEq(t, `{"page":"/menu"}`, events[0].Properties)
	assert.Equal(t, "sess-1", events[0].SessionID)
	assert.Equal(t, "visitor-1", events[0].UserID)
	assert.Equal(t, "203.0.113.9", events[0].IPAddress)
	assert.Equal(t, "SE", events[0].Country)
	assert.Equal(t, "widget/1.0", events[0].UserAgent)
	assert.Equal(t, "https://fooodis.com/menu", events[0].Referer)
}

func TestTrackEvent_SinkFailureStillSucceeds(t *testing.T) {
	mock := store.NewMockStore()
	mock.FailInsertEvent = true
	g := testGateway(t, mock, nil, nil)

	rec := postEvent(t, g, `{"event":"widget_opened"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TrackEventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success, "tracking loss never surfaces to the visitor")
	assert.Empty(t, resp.EventID)
	assert.Empty(t, resp.Tracked)
}

func TestEventStats(t *testing.T) {
	mock := store.NewMockStore()
	for i := 0; i < 3; i++ {
		require.NoError(t, mock.InsertAnalyticsEvent(context.Background(), &store.AnalyticsEvent{
			Event:     "chat_message",
			Category:  "chatbot",
			SessionID: "sess-" + strconv.Itoa(i),
		}))
	}
	g := testGateway(t, mock, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/events?days=30&event=chat_message", nil)
	rec := httptest.NewRecorder()
	g.handleAnalyticsEvents(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// The stats fields sit at the top level of the body, next to success
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	for _, key := range []string{"success", "period", "summary", "events", "daily"} {
		assert.Contains(t, body, key)
	}

	var resp struct {
		Success bool `json:"success"`
		Period  struct {
			Days  int    `json:"days"`
			Since string `json:"since"`
		} `json:"period"`
		Summary struct {
			TotalEvents    int `json:"totalEvents"`
			UniqueSessions int `json:"uniqueSessions"`
		} `json:"summary"`
		Events []struct {
			Event string `json:"event"`
			Count int    `json:"count"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 30, resp.Period.Days)
	assert.NotEmpty(t, resp.Period.Since)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "chat_message", resp.Events[0].Event)
	assert.Equal(t, 3, resp.Events[0].Count)
	assert.Equal(t, 3, resp.Summary.TotalEvents)
	assert.Equal(t, 3, resp.Summary.UniqueSessions)
}

func TestChat_RateLimited(t *testing.T) {
	mock := store.NewMockStore()
	g := testGateway(t, mock, nil, nil)
	g.limiter = ratelimit.New(2, time.Minute, 5*time.Minute)
	defer g.limiter.Close()

	send := func(ip string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{"message": "Hello"})
		req := httptest.NewRequest(http.MethodPost, "/api/chatbot", bytes.NewReader(body))
		req.Header.Set("CF-Connecting-IP", ip)
		rec := httptest.NewRecorder()
		g.handleChatbot(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("203.0.113.1").Code)
	assert.Equal(t, http.StatusOK, send("203.0.113.1").Code)

	rec := send("203.0.113.1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, retryAfter, 0)
	assert.LessOrEqual(t, retryAfter, 300)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "Too many requests. Please slow down.", resp["error"])

	// A different address is unaffected
	assert.Equal(t, http.StatusOK, send("203.0.113.2").Code)
}

func TestMethodNotAllowed(t *testing.T) {
	g := testGateway(t, store.NewMockStore(), nil, nil)

	for _, tt := range []struct {
		method string
		path   string
	}{
		{http.MethodDelete, "/api/chatbot"},
		{http.MethodPut, "/api/analytics/events"},
	} {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rec := httptest.NewRecorder()
		if tt.path == "/api/chatbot" {
			g.handleChatbot(rec, req)
		} else {
			g.handleAnalyticsEvents(rec, req)
		}
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", tt.method, tt.path)
	}
}

func TestHealthEndpoints(t *testing.T) {
	g := testGateway(t, store.NewMockStore(), nil, nil)

	rec := httptest.NewRecorder()
	g.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	g.handleReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"edge header wins", map[string]string{"CF-Connecting-IP": "1.1.1.1", "X-Forwarded-For": "2.2.2.2"}, "3.3.3.3:80", "1.1.1.1"},
		{"first forwarded entry", map[string]string{"X-Forwarded-For": "2.2.2.2, 10.0.0.1"}, "3.3.3.3:80", "2.2.2.2"},
		{"socket peer fallback", nil, "3.3.3.3:80", "3.3.3.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}
