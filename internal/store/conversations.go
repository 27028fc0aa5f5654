// ABOUTME: SQLite implementation of conversation and message persistence
// ABOUTME: Covers get-or-create, turn recording, history reads and thread assignment

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetOrCreateConversation returns the conversation with the supplied id, or
// creates a fresh one when no id is given. A supplied id that does not
// exist is an error (ErrNotFound), never an implicit create.
func (s *SQLiteStore) GetOrCreateConversation(ctx context.Context, params NewConversation) (*Conversation, bool, error) {
	if params.ID != "" {
		conv, err := s.GetConversation(ctx, params.ID)
		if err != nil {
			return nil, false, err
		}
		return conv, false, nil
	}

	now := time.Now().UTC()
	conv := &Conversation{
		ID:             NewConversationID(),
		VisitorID:      params.VisitorID,
		AssistantID:    params.AssistantID,
		Language:       params.Language,
		Status:         StatusActive,
		MessageCount:   1,
		FirstMessageAt: now,
		LastMessageAt:  now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if conv.Language == "" {
		conv.Language = "en"
	}

	query := `
		INSERT INTO chatbot_conversations (
			id, visitor_id, assistant_id, language, status,
			message_count, first_message_at, last_message_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		nullString(conv.VisitorID),
		nullString(conv.AssistantID),
		conv.Language,
		conv.Status,
		conv.MessageCount,
		formatTime(conv.FirstMessageAt),
		formatTime(conv.LastMessageAt),
		formatTime(conv.CreatedAt),
		formatTime(conv.UpdatedAt),
	)
	if err != nil {
		return nil, false, fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "language", conv.Language)
	return conv, true, nil
}

// GetConversation retrieves a conversation by id.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, visitor_id, assistant_id, language, status, thread_id,
		       message_count, first_message_at, last_message_at, created_at, updated_at
		FROM chatbot_conversations
		WHERE id = ?
	`

	var conv Conversation
	var visitorID, assistantID, threadID sql.NullString
	var firstAt, lastAt, createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&conv.ID,
		&visitorID,
		&assistantID,
		&conv.Language,
		&conv.Status,
		&threadID,
		&conv.MessageCount,
		&firstAt,
		&lastAt,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	conv.VisitorID = visitorID.String
	conv.AssistantID = assistantID.String
	conv.ThreadID = threadID.String

	for _, p := range []struct {
		raw  string
		dest *time.Time
	}{
		{firstAt, &conv.FirstMessageAt},
		{lastAt, &conv.LastMessageAt},
		{createdAt, &conv.CreatedAt},
		{updatedAt, &conv.UpdatedAt},
	} {
		t, err := parseTime(p.raw)
		if err != nil {
			return nil, fmt.Errorf("parsing conversation timestamp: %w", err)
		}
		*p.dest = t
	}

	return &conv, nil
}

// RecordTurn appends the user and assistant messages of one turn and
// refreshes the conversation's last_message_at/updated_at. The count
// increment is a single UPDATE statement, so concurrent turns on the same
// conversation each add exactly one; the column updates themselves are
// last-write-wins, which is the accepted behavior here.
func (s *SQLiteStore) RecordTurn(ctx context.Context, conversationID string, userMsg, assistantMsg *Message, incrementCount bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning turn transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, msg := range []*Message{userMsg, assistantMsg} {
		if msg == nil {
			continue
		}
		if msg.ID == "" {
			msg.ID = NewMessageID()
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now().UTC()
		}
		msg.ConversationID = conversationID

		_, err := tx.ExecContext(ctx, `
			INSERT INTO chatbot_messages (
				id, conversation_id, role, content, assistant_id, assistant_name,
				tokens_used, response_time_ms, created_at
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			msg.ID,
			msg.ConversationID,
			msg.Role,
			msg.Content,
			nullString(msg.AssistantID),
			nullString(msg.AssistantName),
			msg.TokensUsed,
			msg.ResponseTimeMs,
			formatTime(msg.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("inserting %s message: %w", msg.Role, err)
		}
	}

	now := formatTime(time.Now())
	update := `
		UPDATE chatbot_conversations
		SET last_message_at = ?, updated_at = ?
		WHERE id = ?
	`
	if incrementCount {
		update = `
			UPDATE chatbot_conversations
			SET message_count = message_count + 1, last_message_at = ?, updated_at = ?
			WHERE id = ?
		`
	}
	if _, err := tx.ExecContext(ctx, update, now, now, conversationID); err != nil {
		return fmt.Errorf("updating conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing turn: %w", err)
	}

	s.logger.Debug("recorded turn",
		"conversation_id", conversationID,
		"incremented", incrementCount,
	)
	return nil
}

// RecentHistory returns up to limit of the newest messages, oldest first.
// Rows with empty content are skipped so the backend never sees blank turns.
func (s *SQLiteStore) RecentHistory(ctx context.Context, conversationID string, limit int) ([]HistoryMessage, error) {
	if limit <= 0 {
		limit = 10
	}

	// Timestamps have second granularity, so both rows of a turn usually
	// share one; rowid breaks the tie in insertion order.
	query := `
		SELECT role, content FROM chatbot_messages
		WHERE conversation_id = ? AND TRIM(content) != ''
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var history []HistoryMessage
	for rows.Next() {
		var msg HistoryMessage
		if err := rows.Scan(&msg.Role, &msg.Content); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		history = append(history, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}

	// Query returns newest first; reverse into chronological order.
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}

	return history, nil
}

// SetThreadID assigns the provider thread id exactly once. The WHERE clause
// makes the write conditional on the column being unset, so a later call
// with any value is a silent no-op rather than an overwrite.
func (s *SQLiteStore) SetThreadID(ctx context.Context, conversationID, threadID string) error {
	query := `
		UPDATE chatbot_conversations
		SET thread_id = ?, updated_at = ?
		WHERE id = ? AND (thread_id IS NULL OR thread_id = '')
	`

	result, err := s.db.ExecContext(ctx, query, threadID, formatTime(time.Now()), conversationID)
	if err != nil {
		return fmt.Errorf("setting thread id: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		s.logger.Debug("thread id already set, skipping",
			"conversation_id", conversationID,
			"thread_id", threadID,
		)
	}
	return nil
}
