// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows gateway and handler tests to run without SQLite

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation    // keyed by conversation ID
	messages      map[string][]*Message       // keyed by conversation ID
	assistants    map[string]*AssistantConfig // keyed by assistant ID
	settings      map[string]any
	secrets       map[string]string
	events        map[string]*AnalyticsEvent // keyed by event ID
	daily         map[string]*DailyUsage     // keyed by date

	// FailInsertEvent makes InsertAnalyticsEvent return an error,
	// simulating a broken fallback sink.
	FailInsertEvent bool

	// FailRecordTurn makes RecordTurn return an error, simulating a
	// persistence outage the orchestrator must shrug off.
	FailRecordTurn bool
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
		assistants:    make(map[string]*AssistantConfig),
		settings:      make(map[string]any),
		secrets:       make(map[string]string),
		events:        make(map[string]*AnalyticsEvent),
		daily:         make(map[string]*DailyUsage),
	}
}

// GetOrCreateConversation mirrors the SQLite semantics: found → return,
// given-but-missing → ErrNotFound, absent → create at message_count=1.
func (m *MockStore) GetOrCreateConversation(ctx context.Context, params NewConversation) (*Conversation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if params.ID != "" {
		conv, ok := m.conversations[params.ID]
		if !ok {
			return nil, false, ErrNotFound
		}
		result := *conv
		return &result, false, nil
	}

	now := time.Now().UTC()
	language := params.Language
	if language == "" {
		language = "en"
	}
	conv := &Conversation{
		ID:             NewConversationID(),
		VisitorID:      params.VisitorID,
		AssistantID:    params.AssistantID,
		Language:       language,
		Status:         StatusActive,
		MessageCount:   1,
		FirstMessageAt: now,
		LastMessageAt:  now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.conversations[conv.ID] = conv

	result := *conv
	return &result, true, nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *conv
	return &result, nil
}

// AddConversation seeds a conversation directly (test setup helper).
func (m *MockStore) AddConversation(conv *Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *conv
	m.conversations[c.ID] = &c
}

// RecordTurn appends both messages and updates the conversation.
func (m *MockStore) RecordTurn(ctx context.Context, conversationID string, userMsg, assistantMsg *Message, incrementCount bool) error {
	if m.FailRecordTurn {
		return &mockFailure{op: "record turn"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for _, msg := range []*Message{userMsg, assistantMsg} {
		if msg == nil {
			continue
		}
		if msg.ID == "" {
			msg.ID = NewMessageID()
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		msg.ConversationID = conversationID
		stored := *msg
		m.messages[conversationID] = append(m.messages[conversationID], &stored)
	}

	if conv, ok := m.conversations[conversationID]; ok {
		if incrementCount {
			conv.MessageCount++
		}
		conv.LastMessageAt = now
		conv.UpdatedAt = now
	}
	return nil
}

// RecentHistory returns up to limit newest messages, oldest first.
func (m *MockStore) RecentHistory(ctx context.Context, conversationID string, limit int) ([]HistoryMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	msgs := make([]*Message, 0, len(m.messages[conversationID]))
	for _, msg := range m.messages[conversationID] {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		msgs = append(msgs, msg)
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})

	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	history := make([]HistoryMessage, len(msgs))
	for i, msg := range msgs {
		history[i] = HistoryMessage{Role: msg.Role, Content: msg.Content}
	}
	return history, nil
}

// Messages returns all stored messages for a conversation (test helper).
func (m *MockStore) Messages(conversationID string) []*Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := make([]*Message, len(m.messages[conversationID]))
	copy(msgs, m.messages[conversationID])
	return msgs
}

// SetThreadID assigns the thread id only when unset.
func (m *MockStore) SetThreadID(ctx context.Context, conversationID, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	if conv.ThreadID == "" {
		conv.ThreadID = threadID
		conv.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// GetAssistant looks up by id or openai assistant id.
func (m *MockStore) GetAssistant(ctx context.Context, id string) (*AssistantConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.assistants {
		if a.ID == id || (a.OpenAIAssistantID != "" && a.OpenAIAssistantID == id) {
			result := *a
			return &result, nil
		}
	}
	return nil, ErrNotFound
}

// ListActiveAssistants returns active assistants sorted by name.
func (m *MockStore) ListActiveAssistants(ctx context.Context) ([]*AssistantConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var active []*AssistantConfig
	for _, a := range m.assistants {
		if a.IsActive {
			result := *a
			active = append(active, &result)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Name < active[j].Name })
	return active, nil
}

// AddAssistant seeds an assistant (test setup helper).
func (m *MockStore) AddAssistant(a *AssistantConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *a
	m.assistants[stored.ID] = &stored
}

// GetChatbotSettings returns the seeded settings map.
func (m *MockStore) GetChatbotSettings(ctx context.Context) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	settings := make(map[string]any, len(m.settings))
	for k, v := range m.settings {
		settings[k] = v
	}
	return settings, nil
}

// SetSetting seeds a decoded setting value (test setup helper).
func (m *MockStore) SetSetting(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
}

// GetSecret returns a seeded secret.
func (m *MockStore) GetSecret(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.secrets[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

// SetSecretValue seeds a secret (test setup helper).
func (m *MockStore) SetSecretValue(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[key] = value
}

// InsertAnalyticsEvent appends an event.
func (m *MockStore) InsertAnalyticsEvent(ctx context.Context, event *AnalyticsEvent) error {
	if m.FailInsertEvent {
		return &mockFailure{op: "insert event"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if event.ID == "" {
		event.ID = NewEventID()
	}
	if event.Category == "" {
		event.Category = "general"
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	stored := *event
	m.events[stored.ID] = &stored
	return nil
}

// Events returns all stored analytics events (test helper).
func (m *MockStore) Events() []*AnalyticsEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*AnalyticsEvent, 0, len(m.events))
	for _, e := range m.events {
		events = append(events, e)
	}
	return events
}

// EventCounts groups stored events over the window.
func (m *MockStore) EventCounts(ctx context.Context, filter EventFilter) ([]*EventCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type key struct{ event, category string }
	grouped := make(map[key]*EventCount)
	for _, e := range m.events {
		if e.CreatedAt.Before(filter.Since) {
			continue
		}
		if filter.Event != "" && e.Event != filter.Event {
			continue
		}
		if filter.Category != "" && e.Category != filter.Category {
			continue
		}
		k := key{e.Event, e.Category}
		c, ok := grouped[k]
		if !ok {
			c = &EventCount{Event: e.Event, Category: e.Category, FirstSeen: e.CreatedAt, LastSeen: e.CreatedAt}
			grouped[k] = c
		}
		c.Count++
		if e.CreatedAt.Before(c.FirstSeen) {
			c.FirstSeen = e.CreatedAt
		}
		if e.CreatedAt.After(c.LastSeen) {
			c.LastSeen = e.CreatedAt
		}
	}

	counts := make([]*EventCount, 0, len(grouped))
	for _, c := range grouped {
		counts = append(counts, c)
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Count > counts[j].Count })

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(counts) > limit {
		counts = counts[:limit]
	}
	return counts, nil
}

// DailyEventCounts returns the per-day breakdown.
func (m *MockStore) DailyEventCounts(ctx context.Context, since time.Time) ([]*DailyEventCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type key struct{ event, date string }
	grouped := make(map[key]int)
	for _, e := range m.events {
		if e.CreatedAt.Before(since) {
			continue
		}
		grouped[key{e.Event, e.CreatedAt.UTC().Format("2006-01-02")}]++
	}

	counts := make([]*DailyEventCount, 0, len(grouped))
	for k, n := range grouped {
		counts = append(counts, &DailyEventCount{Event: k.event, Date: k.date, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Date > counts[j].Date })
	return counts, nil
}

// EventSummary returns distinct session/user/country counts.
func (m *MockStore) EventSummary(ctx context.Context, since time.Time) (*EventSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make(map[string]struct{})
	users := make(map[string]struct{})
	countries := make(map[string]struct{})
	for _, e := range m.events {
		if e.CreatedAt.Before(since) {
			continue
		}
		sessions[e.SessionID] = struct{}{}
		users[e.UserID] = struct{}{}
		countries[e.Country] = struct{}{}
	}
	return &EventSummary{
		UniqueSessions: len(sessions),
		UniqueUsers:    len(users),
		Countries:      len(countries),
	}, nil
}

// IncrementDailyUsage upserts today's aggregate.
func (m *MockStore) IncrementDailyUsage(ctx context.Context, tokensUsed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	date := now.Format("2006-01-02")
	usage, ok := m.daily[date]
	if !ok {
		usage = &DailyUsage{Date: date, CreatedAt: now}
		m.daily[date] = usage
	}
	usage.TotalMessages++
	usage.TotalTokensUsed += tokensUsed
	usage.UpdatedAt = now
	return nil
}

// GetDailyUsage returns the aggregate for a date.
func (m *MockStore) GetDailyUsage(ctx context.Context, date string) (*DailyUsage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	usage, ok := m.daily[date]
	if !ok {
		return nil, ErrNotFound
	}
	result := *usage
	return &result, nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}

// mockFailure is the error type returned by the Fail* switches.
type mockFailure struct {
	op string
}

func (e *mockFailure) Error() string {
	return "mock store: " + e.op + " failed"
}

// Ensure MockStore implements the full Store interface.
var _ Store = (*MockStore)(nil)
