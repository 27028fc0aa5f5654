// ABOUTME: HTTP API handlers for the chatbot widget and analytics endpoints
// ABOUTME: Provides GET/POST /api/chatbot and /api/analytics/events

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/fooodis/chat-gateway/internal/analytics"
	"github.com/fooodis/chat-gateway/internal/store"
)

// WidgetConfig is the config block served to the embedded chat widget.
type WidgetConfig struct {
	ChatbotName       string   `json:"chatbotName"`
	WelcomeMessage    string   `json:"welcomeMessage"`
	Position          string   `json:"position"`
	Color             string   `json:"color"`
	Languages         []string `json:"languages"`
	EnableRating      bool     `json:"enableRating"`
	EnableLeadCapture bool     `json:"enableLeadCapture"`
}

// AssistantInfo is the public slice of an assistant definition.
type AssistantInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
}

// ChatbotConfigResponse is the JSON response for GET /api/chatbot.
type ChatbotConfigResponse struct {
	Success    bool            `json:"success"`
	Enabled    bool            `json:"enabled"`
	Config     WidgetConfig    `json:"config"`
	Assistants []AssistantInfo `json:"assistants"`
}

// TrackEventRequest is the JSON request body for POST /api/analytics/events.
type TrackEventRequest struct {
	Event      string `json:"event"`
	Category   string `json:"category,omitempty"`
	Properties any    `json:"properties,omitempty"`
	SessionID  string `json:"sessionId,omitempty"`
	UserID     string `json:"userId,omitempty"`
}

// TrackEventResponse is the JSON response for POST /api/analytics/events.
type TrackEventResponse struct {
	Success bool   `json:"success"`
	EventID string `json:"eventId,omitempty"`
	Tracked string `json:"tracked,omitempty"`
}

// handleChatbot routes chatbot requests by HTTP method.
func (g *Gateway) handleChatbot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		g.handleChatbotConfig(w, r)
	case http.MethodPost:
		g.handleChatMessage(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleChatbotConfig handles GET /api/chatbot requests. It returns the
// widget configuration and the list of active assistants. A store failure
// still yields an enabled default config so the widget always renders.
func (g *Gateway) handleChatbotConfig(w http.ResponseWriter, r *http.Request) {
	response := ChatbotConfigResponse{
		Success: true,
		Enabled: true,
		Config: WidgetConfig{
			ChatbotName:       "Fooodis Assistant",
			WelcomeMessage:    "Hello! How can I help you today?",
			Position:          "bottom-right",
			Color:             "#e8f24c",
			Languages:         []string{"en", "sv"},
			EnableRating:      true,
			EnableLeadCapture: true,
		},
		Assistants: []AssistantInfo{},
	}

	settings, err := g.store.GetChatbotSettings(r.Context())
	if err != nil {
		g.logger.Error("loading chatbot settings failed, serving defaults", "error", err)
		writeJSON(w, http.StatusOK, response)
		return
	}

	applySettings(&response, settings)

	assistants, err := g.store.ListActiveAssistants(r.Context())
	if err != nil {
		g.logger.Error("listing assistants failed", "error", err)
	}
	for _, a := range assistants {
		response.Assistants = append(response.Assistants, AssistantInfo{
			ID:          a.ID,
			Name:        a.Name,
			Description: a.Description,
			Type:        a.Type,
		})
	}

	writeJSON(w, http.StatusOK, response)
}

// applySettings overlays stored settings onto the default widget config.
func applySettings(response *ChatbotConfigResponse, settings map[string]any) {
	if v, ok := settings["enabled"].(bool); ok {
		response.Enabled = v
	}
	if v, ok := settings["chatbot_name"].(string); ok && v != "" {
		response.Config.ChatbotName = v
	}
	if v, ok := settings["welcome_message"].(string); ok && v != "" {
		response.Config.WelcomeMessage = v
	}
	if v, ok := settings["widget_position"].(string); ok && v != "" {
		response.Config.Position = v
	}
	if v, ok := settings["widget_color"].(string); ok && v != "" {
		response.Config.Color = v
	}
	if v, ok := settings["supported_languages"].([]any); ok && len(v) > 0 {
		langs := make([]string, 0, len(v))
		for _, lang := range v {
			if s, ok := lang.(string); ok {
				langs = append(langs, s)
			}
		}
		if len(langs) > 0 {
			response.Config.Languages = langs
		}
	}
	if v, ok := settings["enable_rating"].(bool); ok {
		response.Config.EnableRating = v
	}
	if v, ok := settings["enable_lead_capture"].(bool); ok {
		response.Config.EnableLeadCapture = v
	}
}

// handleChatMessage handles POST /api/chatbot requests: one chat turn.
func (g *Gateway) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if g.limiter != nil {
		if ok, retryAfter := g.limiter.Allow(ip); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"success": false,
				"error":   "Too many requests. Please slow down.",
			})
			return
		}
	}

	req, err := parseChatRequest(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	req.clientIP = ip

	response, err := g.ProcessChat(r.Context(), req)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		g.logger.Error("chat turn failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// parseChatRequest parses and validates a ChatRequest from the given reader.
func parseChatRequest(r io.Reader) (*ChatRequest, error) {
	var req ChatRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("Message is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, errors.New("Message is required")
	}
	return &req, nil
}

// handleAnalyticsEvents routes analytics requests by HTTP method.
func (g *Gateway) handleAnalyticsEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		g.handleTrackEvent(w, r)
	case http.MethodGet:
		g.handleEventStats(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleTrackEvent handles POST /api/analytics/events. Recording is
// best-effort: even a total sink failure answers success, because losing an
// analytics row must never surface to the visitor.
func (g *Gateway) handleTrackEvent(w http.ResponseWriter, r *http.Request) {
	var req TrackEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Event == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Event name required",
		})
		return
	}

	var properties string
	if req.Properties != nil {
		if raw, err := json.Marshal(req.Properties); err == nil {
			properties = string(raw)
		}
	}

	result, err := g.sink.RecordEvent(r.Context(), &store.AnalyticsEvent{
		Event:      req.Event,
		Category:   req.Category,
		Properties: properties,
		SessionID:  req.SessionID,
		UserID:     req.UserID,
		IPAddress:  clientIP(r),
		Country:    r.Header.Get("CF-IPCountry"),
		UserAgent:  r.UserAgent(),
		Referer:    r.Referer(),
	})
	if err != nil {
		writeJSON(w, http.StatusOK, TrackEventResponse{Success: true})
		return
	}

	writeJSON(w, http.StatusOK, TrackEventResponse{
		Success: true,
		EventID: result.EventID,
		Tracked: result.Tracked,
	})
}

// EventStatsResponse is the JSON response for GET /api/analytics/events.
// The stats fields sit at the top level next to the success flag.
type EventStatsResponse struct {
	Success bool `json:"success"`
	analytics.Stats
}

// handleEventStats handles GET /api/analytics/events. Query parameters:
// days (default 7), limit (default 100), event, category.
func (g *Gateway) handleEventStats(w http.ResponseWriter, r *http.Request) {
	query := analytics.StatsQuery{
		Event:    r.URL.Query().Get("event"),
		Category: r.URL.Query().Get("category"),
	}
	if days, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && days > 0 {
		query.Days = days
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 {
		query.Limit = limit
	}

	stats, err := g.sink.Stats(r.Context(), query)
	if err != nil {
		g.logger.Error("building event stats failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, EventStatsResponse{
		Success: true,
		Stats:   *stats,
	})
}

// clientIP extracts the client address: the edge-provided header first,
// then the forwarding chain, then the socket peer.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
