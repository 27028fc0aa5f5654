// ABOUTME: Typed chatbot settings and secrets access for the widget config endpoint
// ABOUTME: Settings rows declare a type (string/boolean/number/json) used for decoding

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// GetChatbotSettings returns all settings with values decoded according to
// their declared type. Undecodable json values fall back to the raw string.
func (s *SQLiteStore) GetChatbotSettings(ctx context.Context) (map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, type FROM chatbot_settings`)
	if err != nil {
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	settings := make(map[string]any)
	for rows.Next() {
		var key, typ string
		var value sql.NullString
		if err := rows.Scan(&key, &value, &typ); err != nil {
			return nil, fmt.Errorf("scanning settings row: %w", err)
		}
		settings[key] = decodeSetting(value.String, typ)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating settings rows: %w", err)
	}

	return settings, nil
}

// SetChatbotSetting upserts a single setting row.
func (s *SQLiteStore) SetChatbotSetting(ctx context.Context, key, value, typ string) error {
	query := `
		INSERT INTO chatbot_settings (key, value, type)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, type = excluded.type
	`
	if _, err := s.db.ExecContext(ctx, query, key, value, typ); err != nil {
		return fmt.Errorf("upserting setting: %w", err)
	}
	return nil
}

func decodeSetting(value, typ string) any {
	switch typ {
	case "boolean":
		return value == "true"
	case "number":
		n, err := strconv.Atoi(value)
		if err != nil {
			return value
		}
		return n
	case "json":
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err != nil {
			return value
		}
		return decoded
	default:
		return value
	}
}

// GetSecret returns a secret value by key.
func (s *SQLiteStore) GetSecret(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM secrets WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying secret: %w", err)
	}
	return value, nil
}

// SetSecret upserts a secret value.
func (s *SQLiteStore) SetSecret(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO secrets (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, key, value, formatTime(time.Now())); err != nil {
		return fmt.Errorf("upserting secret: %w", err)
	}
	return nil
}
