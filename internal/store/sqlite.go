// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message persistence with automatic schema creation

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	// eventsOnce guards lazy creation of the analytics_events table
	eventsOnce sync.Once
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dsn := path
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		// busy_timeout goes in the DSN so every pooled connection waits on
		// the writer lock instead of failing fast when turns contend
		dsn += "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
// The analytics_events table is deliberately absent here: the analytics
// fallback path creates it lazily on first use.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS chatbot_conversations (
			id TEXT PRIMARY KEY,
			visitor_id TEXT,
			assistant_id TEXT,
			language TEXT NOT NULL DEFAULT 'en',
			status TEXT NOT NULL DEFAULT 'active',
			thread_id TEXT,
			message_count INTEGER NOT NULL DEFAULT 0,
			first_message_at TEXT NOT NULL,
			last_message_at TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			CHECK (status IN ('active', 'closed'))
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_visitor
			ON chatbot_conversations(visitor_id);

		CREATE TABLE IF NOT EXISTS chatbot_messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			assistant_id TEXT,
			assistant_name TEXT,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			response_time_ms INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,

			FOREIGN KEY (conversation_id) REFERENCES chatbot_conversations(id),
			CHECK (role IN ('user', 'assistant'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON chatbot_messages(conversation_id, created_at);

		CREATE TABLE IF NOT EXISTS ai_assistants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			type TEXT,
			instructions TEXT,
			model TEXT,
			openai_assistant_id TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_assistants_openai_id
			ON ai_assistants(openai_assistant_id);

		CREATE TABLE IF NOT EXISTS chatbot_settings (
			key TEXT PRIMARY KEY,
			value TEXT,
			type TEXT NOT NULL DEFAULT 'string'
		);

		CREATE TABLE IF NOT EXISTS secrets (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS chatbot_analytics (
			id TEXT PRIMARY KEY,
			date TEXT NOT NULL UNIQUE,
			total_messages INTEGER NOT NULL DEFAULT 0,
			total_tokens_used INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// NewConversationID generates a conversation id in the wire format the
// widget expects: "conv_" plus the first segment of a UUID.
func NewConversationID() string {
	return "conv_" + shortID()
}

// NewMessageID generates a message id ("msg_" prefix).
func NewMessageID() string {
	return "msg_" + shortID()
}

// NewEventID generates an analytics event id ("evt_" prefix).
func NewEventID() string {
	return "evt_" + shortID()
}

func shortID() string {
	return strings.SplitN(uuid.New().String(), "-", 2)[0]
}

// nullString returns nil for empty strings, otherwise the string itself
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// formatTime renders a timestamp in the canonical stored form.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a stored timestamp; zero time on empty.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

// Ensure SQLiteStore implements the full Store interface.
var _ Store = (*SQLiteStore)(nil)
