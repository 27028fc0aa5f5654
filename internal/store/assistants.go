// ABOUTME: SQLite implementation of assistant configuration lookup
// ABOUTME: Assistants are matched by their own id or their OpenAI assistant id

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetAssistant looks up an assistant by id or openai_assistant_id.
func (s *SQLiteStore) GetAssistant(ctx context.Context, id string) (*AssistantConfig, error) {
	query := assistantSelect + ` WHERE id = ? OR openai_assistant_id = ?`

	row := s.db.QueryRowContext(ctx, query, id, id)
	assistant, err := scanAssistant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying assistant: %w", err)
	}
	return assistant, nil
}

// ListActiveAssistants returns all active assistants, ordered by name.
func (s *SQLiteStore) ListActiveAssistants(ctx context.Context) ([]*AssistantConfig, error) {
	query := assistantSelect + ` WHERE is_active = 1 ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying active assistants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var assistants []*AssistantConfig
	for rows.Next() {
		assistant, err := scanAssistant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning assistant row: %w", err)
		}
		assistants = append(assistants, assistant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assistant rows: %w", err)
	}

	return assistants, nil
}

// CreateAssistant stores a new assistant definition.
func (s *SQLiteStore) CreateAssistant(ctx context.Context, assistant *AssistantConfig) error {
	query := `
		INSERT INTO ai_assistants (
			id, name, description, type, instructions, model,
			openai_assistant_id, is_active, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		assistant.ID,
		assistant.Name,
		nullString(assistant.Description),
		nullString(assistant.Type),
		nullString(assistant.Instructions),
		nullString(assistant.Model),
		nullString(assistant.OpenAIAssistantID),
		assistant.IsActive,
		formatTime(assistant.CreatedAt),
		formatTime(assistant.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting assistant: %w", err)
	}
	return nil
}

const assistantSelect = `
	SELECT id, name, description, type, instructions, model,
	       openai_assistant_id, is_active, created_at, updated_at
	FROM ai_assistants
`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssistant(row rowScanner) (*AssistantConfig, error) {
	var a AssistantConfig
	var description, typ, instructions, model, openaiID sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&a.ID,
		&a.Name,
		&description,
		&typ,
		&instructions,
		&model,
		&openaiID,
		&a.IsActive,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Description = description.String
	a.Type = typ.String
	a.Instructions = instructions.String
	a.Model = model.String
	a.OpenAIAssistantID = openaiID.String

	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &a, nil
}
