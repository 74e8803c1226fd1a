package store

import (
	"path/filepath"
	"testing"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "bridge.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndMessagesSinceAgentCursorUnsetCursor(t *testing.T) {
	s := openTest(t)
	chat := "123@g.us"

	if err := s.AppendMessage(chat, "alice", "hi", "2026-07-30T10:00:00.000Z", false); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendMessage(chat, "bob", "hello", "2026-07-30T10:00:01.000Z", false); err != nil {
		t.Fatal(err)
	}

	msgs, err := s.MessagesSinceAgentCursor(chat)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Sender != "alice" || msgs[1].Sender != "bob" {
		t.Errorf("msgs = %+v, want alice then bob", msgs)
	}
}

func TestMessagesSinceAgentCursorExcludesDelivered(t *testing.T) {
	s := openTest(t)
	chat := "123@g.us"

	s.AppendMessage(chat, "alice", "one", "2026-07-30T10:00:00.000Z", false)
	s.AppendMessage(chat, "alice", "two", "2026-07-30T10:00:01.000Z", false)

	if err := s.UpdateAgentCursor(chat, "2026-07-30T10:00:00.000Z"); err != nil {
		t.Fatal(err)
	}

	msgs, err := s.MessagesSinceAgentCursor(chat)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Text != "two" {
		t.Errorf("msgs = %+v, want only 'two'", msgs)
	}
}

func TestMessagesSinceAgentCursorIsolatedPerChat(t *testing.T) {
	s := openTest(t)
	s.AppendMessage("a@g.us", "x", "hi-a", "2026-07-30T10:00:00.000Z", false)
	s.AppendMessage("b@g.us", "x", "hi-b", "2026-07-30T10:00:00.000Z", false)

	msgs, err := s.MessagesSinceAgentCursor("a@g.us")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Text != "hi-a" {
		t.Errorf("msgs = %+v, want only chat a's message", msgs)
	}
}

func TestUpdateChatLastTimestampUpserts(t *testing.T) {
	s := openTest(t)
	chat := "123@g.us"
	if err := s.UpdateChatLastTimestamp(chat, "t1"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateChatLastTimestamp(chat, "t2"); err != nil {
		t.Fatal(err)
	}

	var got string
	if err := s.db.QueryRow(`SELECT last_timestamp FROM wa_chats WHERE jid = ?`, chat).Scan(&got); err != nil {
		t.Fatal(err)
	}
	if got != "t2" {
		t.Errorf("last_timestamp = %q, want t2", got)
	}
}

func TestUpdateGlobalCursorUpserts(t *testing.T) {
	s := openTest(t)
	if err := s.UpdateGlobalCursor("t1"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateGlobalCursor("t2"); err != nil {
		t.Fatal(err)
	}

	var got string
	if err := s.db.QueryRow(`SELECT value FROM wa_config WHERE key = 'last_timestamp'`).Scan(&got); err != nil {
		t.Fatal(err)
	}
	if got != "t2" {
		t.Errorf("global cursor = %q, want t2", got)
	}
}

func TestPendingDeliveriesLifecycle(t *testing.T) {
	s := openTest(t)
	_, err := s.db.Exec(
		`INSERT INTO pending_deliveries (channel, conversation, message) VALUES (?, ?, ?)`,
		"wa", "wa-andy-123@g.us", "hello from agent",
	)
	if err != nil {
		t.Fatal(err)
	}

	pending, err := s.PendingDeliveries("wa")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Message != "hello from agent" {
		t.Fatalf("pending = %+v", pending)
	}

	if err := s.MarkDelivered(pending[0].ID); err != nil {
		t.Fatal(err)
	}

	again, err := s.PendingDeliveries("wa")
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Errorf("expected delivered row to no longer be pending, got %+v", again)
	}
}

func TestPendingDeliveriesFIFOAndChannelScoped(t *testing.T) {
	s := openTest(t)
	s.db.Exec(`INSERT INTO pending_deliveries (channel, conversation, message) VALUES ('wa', 'c1', 'first')`)
	s.db.Exec(`INSERT INTO pending_deliveries (channel, conversation, message) VALUES ('other', 'c2', 'ignored')`)
	s.db.Exec(`INSERT INTO pending_deliveries (channel, conversation, message) VALUES ('wa', 'c3', 'second')`)

	pending, err := s.PendingDeliveries("wa")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 || pending[0].Message != "first" || pending[1].Message != "second" {
		t.Fatalf("pending = %+v", pending)
	}
}

func TestMarkFailedRecordsError(t *testing.T) {
	s := openTest(t)
	res, _ := s.db.Exec(`INSERT INTO pending_deliveries (channel, conversation, message) VALUES ('wa', 'c1', 'm')`)
	id, _ := res.LastInsertId()

	if err := s.MarkFailed(id, "send failed"); err != nil {
		t.Fatal(err)
	}

	var status, errMsg string
	if err := s.db.QueryRow(`SELECT status, error FROM pending_deliveries WHERE id = ?`, id).Scan(&status, &errMsg); err != nil {
		t.Fatal(err)
	}
	if status != "failed" || errMsg != "send failed" {
		t.Errorf("status=%q error=%q", status, errMsg)
	}
}
