// ABOUTME: Dual-path analytics sink: primary engine write with relational fallback
// ABOUTME: Exactly one path records each event; total failure never blocks the caller

package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fooodis/chat-gateway/internal/store"
)

// Tracked labels report which path recorded an event.
const (
	TrackedEngine   = "analytics_engine"
	TrackedFallback = "d1"
)

// DatapointWriter is the primary path. A nil writer means the engine is not
// configured and every event goes straight to the fallback.
type DatapointWriter interface {
	WriteDataPoint(ctx context.Context, event *store.AnalyticsEvent) error
}

// RecordResult reports the outcome of one event write.
type RecordResult struct {
	EventID string
	Tracked string
}

// Period describes the stats window.
type Period struct {
	Days  int    `json:"days"`
	Since string `json:"since"`
}

// Summary rolls up the window: total events across the grouped rows plus
// distinct session/user/country counts.
type Summary struct {
	TotalEvents    int `json:"totalEvents"`
	UniqueSessions int `json:"uniqueSessions"`
	UniqueUsers    int `json:"uniqueUsers"`
	Countries      int `json:"countries"`
}

// Stats is the aggregate view served by the stats endpoint.
type Stats struct {
	Period  Period                   `json:"period"`
	Summary Summary                  `json:"summary"`
	Events  []*store.EventCount      `json:"events"`
	Daily   []*store.DailyEventCount `json:"daily"`
}

// StatsQuery selects the stats window. Zero values fall back to defaults
// (7 days, 100 grouped rows).
type StatsQuery struct {
	Days     int
	Limit    int
	Event    string
	Category string
}

// Sink records analytics events through a strategy chain: the engine first,
// the relational store when the engine is absent or fails.
type Sink struct {
	engine   DatapointWriter
	fallback store.AnalyticsStore
	logger   *slog.Logger
}

// NewSink creates the sink. engine may be nil.
func NewSink(engine DatapointWriter, fallback store.AnalyticsStore) *Sink {
	return &Sink{
		engine:   engine,
		fallback: fallback,
		logger:   slog.Default().With("component", "analytics"),
	}
}

// RecordEvent writes the event through the chain. The returned result names
// the path that won; an error means both paths failed, which callers log
// and swallow rather than surface to the visitor.
func (s *Sink) RecordEvent(ctx context.Context, event *store.AnalyticsEvent) (*RecordResult, error) {
	if event.ID == "" {
		event.ID = store.NewEventID()
	}
	if event.Category == "" {
		event.Category = "general"
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	if s.engine != nil {
		if err := s.engine.WriteDataPoint(ctx, event); err == nil {
			return &RecordResult{EventID: event.ID, Tracked: TrackedEngine}, nil
		} else {
			s.logger.Warn("engine write failed, falling back",
				"event", event.Event, "error", err)
		}
	}

	if err := s.fallback.InsertAnalyticsEvent(ctx, event); err != nil {
		s.logger.Error("both analytics paths failed",
			"event", event.Event, "error", err)
		return nil, fmt.Errorf("recording event %s: %w", event.Event, err)
	}
	return &RecordResult{EventID: event.ID, Tracked: TrackedFallback}, nil
}

// RecordDailyUsage bumps the daily message/token aggregate. Failures are
// logged and swallowed; usage accounting never fails a chat turn.
func (s *Sink) RecordDailyUsage(ctx context.Context, tokensUsed int) {
	if err := s.fallback.IncrementDailyUsage(ctx, tokensUsed); err != nil {
		s.logger.Error("daily usage update failed", "error", err)
	}
}

// Stats builds the aggregate stats view from the relational store. The
// engine has its own query surface and is not consulted here.
func (s *Sink) Stats(ctx context.Context, q StatsQuery) (*Stats, error) {
	days := q.Days
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	events, err := s.fallback.EventCounts(ctx, store.EventFilter{
		Since:    since,
		Event:    q.Event,
		Category: q.Category,
		Limit:    q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("querying event counts: %w", err)
	}

	daily, err := s.fallback.DailyEventCounts(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("querying daily counts: %w", err)
	}

	summary, err := s.fallback.EventSummary(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("querying summary: %w", err)
	}

	totalEvents := 0
	for _, e := range events {
		totalEvents += e.Count
	}

	return &Stats{
		Period: Period{Days: days, Since: since.Format(time.RFC3339)},
		Summary: Summary{
			TotalEvents:    totalEvents,
			UniqueSessions: summary.UniqueSessions,
			UniqueUsers:    summary.UniqueUsers,
			Countries:      summary.Countries,
		},
		Events: events,
		Daily:  daily,
	}, nil
}
