// Package store provides persistence for the chat gateway.
//
// # Overview
//
// The store package defines the data types (Conversation, Message,
// AssistantConfig, AnalyticsEvent, DailyUsage) and the Store interface,
// plus two implementations:
//
//   - SQLiteStore: production implementation using modernc.org/sqlite
//   - MockStore: in-memory implementation for testing
//
// # Schema
//
// Tables are created automatically on first use:
//
//   - chatbot_conversations: conversation state, one row per visitor exchange
//   - chatbot_messages: append-only message rows, two per turn
//   - ai_assistants: stored assistant definitions (prompt, model, openai id)
//   - chatbot_settings: typed key/value widget configuration
//   - secrets: provider credentials (API key)
//   - chatbot_analytics: daily aggregate, upserted once per turn
//   - analytics_events: raw event fallback table, created lazily by the
//     analytics sink the first time the relational path is used
//
// # Conventions
//
// Timestamps are stored as RFC3339 UTC strings. Entity ids use short
// prefixed forms (conv_xxxx, msg_xxxx, evt_xxxx) matching the wire format
// the chat widget already depends on.
//
// # Concurrency
//
// Two simultaneous turns on the same conversation race on
// last_message_at/updated_at (last write wins). The message_count bump is
// a single UPDATE statement and the daily aggregate is a single
// INSERT ... ON CONFLICT upsert, so counters never lose increments.
package store
