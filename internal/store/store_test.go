package store

import (
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (init + fts)", result.Version)
	}
}

func TestChatUpsertAndList(t *testing.T) {
	db := testDB(t)

	chat := &Chat{ChatID: "c1", DisplayName: "Alice", LastMessage: "hola", LastMessageAt: 1000}
	if err := db.UpsertChat(chat); err != nil {
		t.Fatal(err)
	}

	// Update the display name.
	chat.DisplayName = "Alice Updated"
	if err := db.UpsertChat(chat); err != nil {
		t.Fatal(err)
	}

	chats, err := db.ListChats(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 {
		t.Fatalf("got %d chats, want 1", len(chats))
	}
	if chats[0].DisplayName != "Alice Updated" {
		t.Errorf("display_name = %q, want Alice Updated", chats[0].DisplayName)
	}
}

func TestListChatsOrdering(t *testing.T) {
	db := testDB(t)

	for _, c := range []Chat{
		{ChatID: "b", LastMessageAt: 2000},
		{ChatID: "c", LastMessageAt: 1000},
		{ChatID: "a", LastMessageAt: 2000},
	} {
		if err := db.UpsertChat(&c); err != nil {
			t.Fatal(err)
		}
	}

	chats, err := db.ListChats(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	got := []string{}
	for _, c := range chats {
		got = append(got, c.ChatID)
	}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestGetChat(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertChat(&Chat{ChatID: "c1", DisplayName: "A"}); err != nil {
		t.Fatal(err)
	}
	c, err := db.GetChat("c1")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.DisplayName != "A" {
		t.Errorf("got %v, want A", c)
	}

	// Non-existent.
	c, err = db.GetChat("missing")
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Errorf("expected nil for missing chat")
	}
}

func TestDeleteChatRemovesMessages(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertChat(&Chat{ChatID: "c1"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(&Message{ChatID: "c1", MsgID: "m1", Content: "hi", SendState: "received", Timestamp: 1000}); err != nil {
		t.Fatal(err)
	}

	if err := db.DeleteChat("c1"); err != nil {
		t.Fatal(err)
	}

	c, err := db.GetChat("c1")
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Error("chat should be gone after delete")
	}
	msgs, err := db.ListMessages("c1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d messages after delete, want 0", len(msgs))
	}
}

func TestMessageUpsertIdempotent(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertChat(&Chat{ChatID: "c1"}); err != nil {
		t.Fatal(err)
	}

	msg := &Message{ChatID: "c1", MsgID: "m1", Content: "hello", SendState: "received", Timestamp: 1000}
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}
	// Upsert again should not create a duplicate.
	msg.Content = "hello updated"
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("c1", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (idempotent upsert failed)", len(msgs))
	}
	if msgs[0].Content != "hello updated" {
		t.Errorf("content = %q, want hello updated", msgs[0].Content)
	}
}

func TestSetMessageState(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertMessage(&Message{ChatID: "c1", MsgID: "m1", Content: "x", SendState: "pending", Timestamp: 1000}); err != nil {
		t.Fatal(err)
	}
	if err := db.SetMessageState("c1", "m1", "confirmed"); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("c1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].SendState != "confirmed" {
		t.Errorf("send_state = %q, want confirmed", msgs[0].SendState)
	}
}

func TestListMessagesOrdering(t *testing.T) {
	db := testDB(t)

	for _, m := range []Message{
		{ChatID: "c1", MsgID: "m3", Timestamp: 3000},
		{ChatID: "c1", MsgID: "m1", Timestamp: 1000},
		{ChatID: "c1", MsgID: "m2", Timestamp: 2000},
	} {
		if err := db.UpsertMessage(&m); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := db.ListMessages("c1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if msgs[i].MsgID != want {
			t.Errorf("msgs[%d] = %q, want %q", i, msgs[i].MsgID, want)
		}
	}
}

func TestSearchMessages(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertMessage(&Message{ChatID: "c1", MsgID: "m1", Content: "hello world", SendState: "received", Timestamp: 1000}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(&Message{ChatID: "c1", MsgID: "m2", Content: "goodbye world", SendState: "received", Timestamp: 2000}); err != nil {
		t.Fatal(err)
	}

	results, err := db.SearchMessages("hello", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Message.MsgID != "m1" {
		t.Errorf("msg_id = %q, want m1", results[0].Message.MsgID)
	}
}

func TestOutbox(t *testing.T) {
	db := testDB(t)

	if err := db.QueueOutbox("client1", "c1", "test msg", ""); err != nil {
		t.Fatal(err)
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending, want 1", len(pending))
	}
	if pending[0].ClientMsgID != "client1" {
		t.Errorf("client_msg_id = %q, want client1", pending[0].ClientMsgID)
	}

	if err := db.MarkOutboxSending("client1"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSent("client1"); err != nil {
		t.Fatal(err)
	}

	pending, err = db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending after sent, want 0", len(pending))
	}
}

func TestOutboxRequeue(t *testing.T) {
	db := testDB(t)

	if err := db.QueueOutbox("client1", "c1", "retry me", ""); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxFailed("client1", "network down"); err != nil {
		t.Fatal(err)
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("failed entry should not be pending, got %d", len(pending))
	}

	if err := db.RequeueOutbox("client1"); err != nil {
		t.Fatal(err)
	}
	pending, err = db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending after requeue, want 1", len(pending))
	}
	if pending[0].ErrorMessage != "" {
		t.Errorf("error_message = %q, want empty after requeue", pending[0].ErrorMessage)
	}
}

func TestContact(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertContact(&Contact{UID: "u1", Username: "john", Phone: "555"}); err != nil {
		t.Fatal(err)
	}
	// Empty fields must not clobber cached values.
	if err := db.UpsertContact(&Contact{UID: "u1", Username: "johnny"}); err != nil {
		t.Fatal(err)
	}

	c, err := db.GetContact("u1")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.Username != "johnny" {
		t.Fatalf("got %v, want johnny", c)
	}
	if c.Phone != "555" {
		t.Errorf("phone = %q, want 555", c.Phone)
	}
}
