// Package store implements the message store adapter (C3): the
// append-only message log, dual cursor bookkeeping, batch-since-cursor
// reads, and the pending-delivery queue the delivery poller consumes.
//
// All writes are single-statement transactions (SQLite autocommits each
// Exec), matching original_source/pykoclaw_whatsapp/handler.py's
// store_message/update_chat_timestamp/update_global_cursor helpers,
// each of which commits immediately.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the bridge's SQLite database: the wa_messages,
// wa_chats, and wa_config tables it owns, plus the dispatcher-owned
// pending_deliveries table it only reads and updates terminal status
// for (spec §6 — the core never writes session_id or creates rows
// there).
type Store struct {
	db *sql.DB
}

// Open creates (or reuses) a SQLite database at path, creating the
// core's own tables if they don't already exist. The DSN matches the
// teacher's WAL-mode, foreign-keys-on style.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS wa_messages (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_jid   TEXT NOT NULL,
			sender     TEXT,
			text       TEXT,
			timestamp  TEXT NOT NULL,
			is_from_me INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_wa_messages_chat_ts ON wa_messages(chat_jid, timestamp)`,
		`CREATE TABLE IF NOT EXISTS wa_chats (
			jid                  TEXT PRIMARY KEY,
			name                 TEXT,
			last_timestamp       TEXT,
			last_agent_timestamp TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS wa_config (
			key   TEXT PRIMARY KEY,
			value TEXT
		)`,
		// pending_deliveries is dispatcher-owned; the core only creates it
		// here so a fresh bridge store can serve as an agent's own store
		// (spec §6: "opened lazily on first reference by C8") without the
		// dispatcher racing to create it first.
		`CREATE TABLE IF NOT EXISTS pending_deliveries (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			channel      TEXT NOT NULL,
			conversation TEXT NOT NULL,
			message      TEXT NOT NULL,
			status       TEXT NOT NULL DEFAULT 'pending',
			error        TEXT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate store: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Message is one row of the append-only inbound message log.
type Message struct {
	Sender    string
	Text      string
	Timestamp string
}

// AppendMessage persists an inbound or outbound-echo message record.
// Append-only: the core never updates or deletes wa_messages rows.
func (s *Store) AppendMessage(chat, sender, text, timestamp string, isFromMe bool) error {
	_, err := s.db.Exec(
		`INSERT INTO wa_messages (chat_jid, sender, text, timestamp, is_from_me) VALUES (?, ?, ?, ?, ?)`,
		chat, sender, text, timestamp, boolToInt(isFromMe),
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// UpdateChatLastTimestamp upserts chat's ingestion cursor.
func (s *Store) UpdateChatLastTimestamp(chat, ts string) error {
	_, err := s.db.Exec(
		`INSERT INTO wa_chats (jid, last_timestamp) VALUES (?, ?)
		 ON CONFLICT(jid) DO UPDATE SET last_timestamp = excluded.last_timestamp`,
		chat, ts,
	)
	if err != nil {
		return fmt.Errorf("update chat last_timestamp: %w", err)
	}
	return nil
}

// UpdateGlobalCursor upserts the single (last_timestamp, ts) row in
// wa_config tracking the highest timestamp ingested across all chats.
func (s *Store) UpdateGlobalCursor(ts string) error {
	_, err := s.db.Exec(
		`INSERT INTO wa_config (key, value) VALUES ('last_timestamp', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		ts,
	)
	if err != nil {
		return fmt.Errorf("update global cursor: %w", err)
	}
	return nil
}

// UpdateAgentCursor upserts chat's delivery cursor. Invariant (caller's
// responsibility): last_agent_timestamp never exceeds last_timestamp —
// it is only ever advanced to a timestamp already returned by
// MessagesSinceAgentCursor, and only after the agent pass for those
// messages has fully completed (spec §4.3, §4.8).
func (s *Store) UpdateAgentCursor(chat, ts string) error {
	_, err := s.db.Exec(
		`INSERT INTO wa_chats (jid, last_agent_timestamp) VALUES (?, ?)
		 ON CONFLICT(jid) DO UPDATE SET last_agent_timestamp = excluded.last_agent_timestamp`,
		chat, ts,
	)
	if err != nil {
		return fmt.Errorf("update agent cursor: %w", err)
	}
	return nil
}

// MessagesSinceAgentCursor returns, in ascending timestamp order, every
// message for chat with timestamp strictly greater than the chat's
// last_agent_timestamp (treated as "" — i.e. everything — if unset).
// The result is a stable snapshot: concurrent appends become visible
// only on the next call.
func (s *Store) MessagesSinceAgentCursor(chat string) ([]Message, error) {
	var cursor string
	err := s.db.QueryRow(`SELECT COALESCE(last_agent_timestamp, '') FROM wa_chats WHERE jid = ?`, chat).Scan(&cursor)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("read agent cursor: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT sender, text, timestamp FROM wa_messages
		 WHERE chat_jid = ? AND timestamp > ?
		 ORDER BY timestamp ASC`,
		chat, cursor,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages since cursor: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Sender, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PendingDelivery is one row of the dispatcher-owned pending_deliveries
// table the delivery poller (C9) consumes.
type PendingDelivery struct {
	ID           int64
	Conversation string
	Message      string
}

// PendingDeliveries returns pending_deliveries rows for channel with
// status='pending', FIFO by id.
func (s *Store) PendingDeliveries(channel string) ([]PendingDelivery, error) {
	rows, err := s.db.Query(
		`SELECT id, conversation, message FROM pending_deliveries
		 WHERE channel = ? AND status = 'pending'
		 ORDER BY id ASC`,
		channel,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending deliveries: %w", err)
	}
	defer rows.Close()

	var out []PendingDelivery
	for rows.Next() {
		var d PendingDelivery
		if err := rows.Scan(&d.ID, &d.Conversation, &d.Message); err != nil {
			return nil, fmt.Errorf("scan pending delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// InsertPendingDelivery inserts a pending_deliveries row with
// status='pending'. The dispatcher normally owns this table and writes
// to it directly over the shared SQLite file from its own process;
// this method exists so Go-side integration tests can seed deliveries
// without a second SQL client.
func (s *Store) InsertPendingDelivery(channel, conversation, message string) error {
	_, err := s.db.Exec(
		`INSERT INTO pending_deliveries (channel, conversation, message) VALUES (?, ?, ?)`,
		channel, conversation, message,
	)
	if err != nil {
		return fmt.Errorf("insert pending delivery: %w", err)
	}
	return nil
}

// MarkDelivered marks a pending delivery as sent.
func (s *Store) MarkDelivered(id int64) error {
	_, err := s.db.Exec(`UPDATE pending_deliveries SET status = 'delivered', error = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

// MarkFailed marks a pending delivery as failed, recording the error.
func (s *Store) MarkFailed(id int64, errMsg string) error {
	_, err := s.db.Exec(`UPDATE pending_deliveries SET status = 'failed', error = ? WHERE id = ?`, errMsg, id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
