// ABOUTME: Relational analytics storage: event fallback table, stats queries, daily aggregate
// ABOUTME: The analytics_events table is created lazily, only when the fallback path first writes

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ensureEventsTable creates the analytics_events table and its indexes if
// they don't exist yet. Guarded by a per-store sync.Once so concurrent
// fallback writes don't race on DDL. Safe to call on every write.
func (s *SQLiteStore) ensureEventsTable(ctx context.Context) error {
	var onceErr error
	s.eventsOnce.Do(func() {
		_, onceErr = s.db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS analytics_events (
				id TEXT PRIMARY KEY,
				event TEXT NOT NULL,
				category TEXT DEFAULT 'general',
				properties TEXT,
				session_id TEXT,
				user_id TEXT,
				ip_address TEXT,
				country TEXT,
				user_agent TEXT,
				referer TEXT,
				created_at TEXT NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_events_event ON analytics_events(event);
			CREATE INDEX IF NOT EXISTS idx_events_date ON analytics_events(created_at);
		`)
	})
	if onceErr != nil {
		return fmt.Errorf("creating analytics_events table: %w", onceErr)
	}
	return nil
}

// InsertAnalyticsEvent appends one event row, creating the table on first use.
func (s *SQLiteStore) InsertAnalyticsEvent(ctx context.Context, event *AnalyticsEvent) error {
	if err := s.ensureEventsTable(ctx); err != nil {
		return err
	}

	if event.ID == "" {
		event.ID = NewEventID()
	}
	if event.Category == "" {
		event.Category = "general"
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO analytics_events (
			id, event, category, properties, session_id, user_id,
			ip_address, country, user_agent, referer, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Event,
		event.Category,
		nullString(event.Properties),
		nullString(event.SessionID),
		nullString(event.UserID),
		nullString(event.IPAddress),
		nullString(event.Country),
		truncate(event.UserAgent, 500),
		truncate(event.Referer, 500),
		formatTime(event.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting analytics event: %w", err)
	}

	s.logger.Debug("tracked event", "event", event.Event, "category", event.Category)
	return nil
}

// EventCounts returns grouped counts over the window, busiest events first.
func (s *SQLiteStore) EventCounts(ctx context.Context, filter EventFilter) ([]*EventCount, error) {
	if err := s.ensureEventsTable(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT event, category, COUNT(*) as count,
		       MIN(created_at) as first_seen,
		       MAX(created_at) as last_seen
		FROM analytics_events
		WHERE created_at >= ?
	`
	args := []any{formatTime(filter.Since)}

	if filter.Event != "" {
		query += " AND event = ?"
		args = append(args, filter.Event)
	}
	if filter.Category != "" {
		query += " AND category = ?"
		args = append(args, filter.Category)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " GROUP BY event, category ORDER BY count DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying event counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var counts []*EventCount
	for rows.Next() {
		var c EventCount
		var firstSeen, lastSeen string
		if err := rows.Scan(&c.Event, &c.Category, &c.Count, &firstSeen, &lastSeen); err != nil {
			return nil, fmt.Errorf("scanning event count row: %w", err)
		}
		if c.FirstSeen, err = parseTime(firstSeen); err != nil {
			return nil, fmt.Errorf("parsing first_seen: %w", err)
		}
		if c.LastSeen, err = parseTime(lastSeen); err != nil {
			return nil, fmt.Errorf("parsing last_seen: %w", err)
		}
		counts = append(counts, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event count rows: %w", err)
	}

	return counts, nil
}

// DailyEventCounts returns the per-day breakdown, most recent days first.
func (s *SQLiteStore) DailyEventCounts(ctx context.Context, since time.Time) ([]*DailyEventCount, error) {
	if err := s.ensureEventsTable(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT event, DATE(created_at) as date, COUNT(*) as count
		FROM analytics_events
		WHERE created_at >= ?
		GROUP BY event, date
		ORDER BY date DESC
		LIMIT 200
	`

	rows, err := s.db.QueryContext(ctx, query, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("querying daily event counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var counts []*DailyEventCount
	for rows.Next() {
		var c DailyEventCount
		if err := rows.Scan(&c.Event, &c.Date, &c.Count); err != nil {
			return nil, fmt.Errorf("scanning daily count row: %w", err)
		}
		counts = append(counts, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating daily count rows: %w", err)
	}

	return counts, nil
}

// EventSummary returns distinct session/user/country counts over the window.
func (s *SQLiteStore) EventSummary(ctx context.Context, since time.Time) (*EventSummary, error) {
	if err := s.ensureEventsTable(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT COUNT(DISTINCT session_id) as unique_sessions,
		       COUNT(DISTINCT user_id) as unique_users,
		       COUNT(DISTINCT country) as countries
		FROM analytics_events
		WHERE created_at >= ?
	`

	var summary EventSummary
	err := s.db.QueryRowContext(ctx, query, formatTime(since)).Scan(
		&summary.UniqueSessions,
		&summary.UniqueUsers,
		&summary.Countries,
	)
	if err != nil {
		return nil, fmt.Errorf("querying event summary: %w", err)
	}

	return &summary, nil
}

// IncrementDailyUsage upserts the daily aggregate for the current UTC date.
// Creation and increment are a single statement with conflict resolution,
// so concurrent turns contending on the same date key never lose updates.
func (s *SQLiteStore) IncrementDailyUsage(ctx context.Context, tokensUsed int) error {
	now := time.Now().UTC()
	date := now.Format("2006-01-02")
	ts := formatTime(now)

	query := `
		INSERT INTO chatbot_analytics (id, date, total_messages, total_tokens_used, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			total_messages = total_messages + 1,
			total_tokens_used = total_tokens_used + ?,
			updated_at = ?
	`

	_, err := s.db.ExecContext(ctx, query,
		"analytics_"+date, date, tokensUsed, ts, ts,
		tokensUsed, ts,
	)
	if err != nil {
		return fmt.Errorf("upserting daily usage: %w", err)
	}
	return nil
}

// GetDailyUsage returns the aggregate row for a YYYY-MM-DD date.
func (s *SQLiteStore) GetDailyUsage(ctx context.Context, date string) (*DailyUsage, error) {
	query := `
		SELECT date, total_messages, total_tokens_used, created_at, updated_at
		FROM chatbot_analytics
		WHERE date = ?
	`

	var usage DailyUsage
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, query, date).Scan(
		&usage.Date,
		&usage.TotalMessages,
		&usage.TotalTokensUsed,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying daily usage: %w", err)
	}

	if usage.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if usage.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &usage, nil
}

// truncate limits a string to max bytes; user agent and referer values
// are capped so one oversized header cannot bloat the table.
func truncate(s string, max int) any {
	if s == "" {
		return nil
	}
	if len(s) > max {
		return s[:max]
	}
	return s
}
