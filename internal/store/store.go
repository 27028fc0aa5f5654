// ABOUTME: Store interface and data types for chat-gateway persistence
// ABOUTME: Defines Conversation, Message, AssistantConfig structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Conversation status values
const (
	StatusActive = "active"
	StatusClosed = "closed"
)

// Message role values
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation represents one visitor's exchange with the assistant,
// spanning multiple turns.
type Conversation struct {
	ID             string
	VisitorID      string
	AssistantID    string
	Language       string
	Status         string // "active" or "closed"
	ThreadID       string // provider-side thread, assigned at most once
	MessageCount   int
	FirstMessageAt time.Time
	LastMessageAt  time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Message represents a single message within a conversation.
// Assistant-authored messages additionally carry the assistant identity,
// token usage and response time.
type Message struct {
	ID             string
	ConversationID string
	Role           string // "user" or "assistant"
	Content        string
	AssistantID    string
	AssistantName  string
	TokensUsed     int
	ResponseTimeMs int
	CreatedAt      time.Time
}

// HistoryMessage is the minimal role/content pair handed to the AI backend
// as conversation context.
type HistoryMessage struct {
	Role    string
	Content string
}

// AssistantConfig is a stored assistant definition. A non-empty
// OpenAIAssistantID selects the threaded (Assistants API) backend.
type AssistantConfig struct {
	ID                string
	Name              string
	Description       string
	Type              string
	Instructions      string
	Model             string
	OpenAIAssistantID string
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AnalyticsEvent is one tracked event, immutable once written.
// Properties holds the caller's opaque payload as JSON text.
type AnalyticsEvent struct {
	ID         string
	Event      string
	Category   string
	Properties string
	SessionID  string
	UserID     string
	IPAddress  string
	Country    string
	UserAgent  string
	Referer    string
	CreatedAt  time.Time
}

// DailyUsage is the per-day aggregate of chatbot traffic, keyed by UTC date
// (YYYY-MM-DD) and updated via increment-upsert.
type DailyUsage struct {
	Date            string
	TotalMessages   int
	TotalTokensUsed int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EventCount is one row of the grouped event statistics.
type EventCount struct {
	Event     string    `json:"event"`
	Category  string    `json:"category"`
	Count     int       `json:"count"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}

// DailyEventCount is one row of the per-day event breakdown.
type DailyEventCount struct {
	Event string `json:"event"`
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}

// EventSummary holds distinct-entity counts over the stats window.
type EventSummary struct {
	UniqueSessions int `json:"uniqueSessions"`
	UniqueUsers    int `json:"uniqueUsers"`
	Countries      int `json:"countries"`
}

// EventFilter narrows the event statistics queries.
type EventFilter struct {
	Since    time.Time
	Event    string
	Category string
	Limit    int
}

// NewConversation carries the caller-supplied fields for conversation
// creation or lookup.
type NewConversation struct {
	ID          string // optional; when set, lookup only
	VisitorID   string
	AssistantID string
	Language    string
}

// ConversationStore is the durable record of conversations and messages.
type ConversationStore interface {
	// GetOrCreateConversation returns the conversation with the given id,
	// or creates a fresh one when no id is supplied. A supplied id that
	// does not exist returns ErrNotFound. The created flag reports whether
	// a new conversation was written; new conversations start at
	// message_count=1, counting the opening message.
	GetOrCreateConversation(ctx context.Context, params NewConversation) (conv *Conversation, created bool, err error)

	// GetConversation returns a conversation by id, or ErrNotFound.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// RecordTurn appends the user and assistant messages of one turn.
	// When incrementCount is true it also bumps message_count by exactly
	// one; the opening turn passes false because creation already counted
	// it. last_message_at and updated_at are refreshed either way.
	RecordTurn(ctx context.Context, conversationID string, userMsg, assistantMsg *Message, incrementCount bool) error

	// RecentHistory returns up to limit of the newest messages for the
	// conversation, oldest first, with empty-content rows filtered out.
	RecentHistory(ctx context.Context, conversationID string, limit int) ([]HistoryMessage, error)

	// SetThreadID assigns the provider thread id if the conversation has
	// none yet. Once set, the thread id is never overwritten; calls
	// against an already-set conversation are a silent no-op.
	SetThreadID(ctx context.Context, conversationID, threadID string) error
}

// AssistantStore provides access to stored assistant configurations.
type AssistantStore interface {
	// GetAssistant looks up an assistant by its own id or by its
	// openai_assistant_id. Returns ErrNotFound if neither matches.
	GetAssistant(ctx context.Context, id string) (*AssistantConfig, error)

	// ListActiveAssistants returns all assistants with is_active set.
	ListActiveAssistants(ctx context.Context) ([]*AssistantConfig, error)
}

// SettingsStore provides typed chatbot settings and secrets.
type SettingsStore interface {
	// GetChatbotSettings returns all chatbot settings with values decoded
	// according to their declared type (string, boolean, number, json).
	GetChatbotSettings(ctx context.Context) (map[string]any, error)

	// GetSecret returns a secret value by key, or ErrNotFound.
	GetSecret(ctx context.Context, key string) (string, error)
}

// AnalyticsStore is the relational half of the analytics sink: the event
// fallback table, the statistics reads and the daily aggregate.
type AnalyticsStore interface {
	// InsertAnalyticsEvent appends an event row, lazily creating the
	// analytics_events table and its indexes on first use.
	InsertAnalyticsEvent(ctx context.Context, event *AnalyticsEvent) error

	// EventCounts returns per-(event, category) counts over the window.
	EventCounts(ctx context.Context, filter EventFilter) ([]*EventCount, error)

	// DailyEventCounts returns the per-day breakdown over the window.
	DailyEventCounts(ctx context.Context, since time.Time) ([]*DailyEventCount, error)

	// EventSummary returns distinct session/user/country counts.
	EventSummary(ctx context.Context, since time.Time) (*EventSummary, error)

	// IncrementDailyUsage upserts the daily aggregate for the current UTC
	// date, adding one message and tokensUsed tokens atomically.
	IncrementDailyUsage(ctx context.Context, tokensUsed int) error

	// GetDailyUsage returns the aggregate row for a date, or ErrNotFound.
	GetDailyUsage(ctx context.Context, date string) (*DailyUsage, error)
}

// Store is the full persistence interface used by the gateway.
type Store interface {
	ConversationStore
	AssistantStore
	SettingsStore
	AnalyticsStore

	Close() error
}
