package outbox

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/sendme/internal/bus"
	"github.com/matheus3301/sendme/internal/names"
	"github.com/matheus3301/sendme/internal/push"
	"github.com/matheus3301/sendme/internal/remote"
	"github.com/matheus3301/sendme/internal/remote/memory"
	"github.com/matheus3301/sendme/internal/store"
	"github.com/matheus3301/sendme/internal/unread"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type fixture struct {
	db     *store.DB
	st     *memory.Store
	bus    *bus.Bus
	push   *memory.PushRecorder
	sender *Sender
	chatID string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := testDB(t)
	st := memory.New()
	b := bus.New()
	recorder := memory.NewPushRecorder()

	if err := st.Profiles().Put(ctx, &remote.Profile{UID: "a", Username: "ana"}); err != nil {
		t.Fatal(err)
	}
	chatID, err := st.Chats().Create(ctx, &remote.Chat{
		Participants: map[string]bool{"a": true, "b": true},
		UnreadCount:  map[string]int{"a": 0, "b": 0},
	})
	if err != nil {
		t.Fatal(err)
	}

	notifier := push.NewNotifier(recorder, names.NewCache(st.Profiles(), nil), nil)
	s := NewSender("a", db, st.Chats(), unread.NewAccountant(st.Chats(), nil), notifier, b, nil)
	s.Start(context.Background())
	t.Cleanup(s.Stop)

	return &fixture{db: db, st: st, bus: b, push: recorder, sender: s, chatID: chatID}
}

func waitKind(t *testing.T, ch <-chan bus.Event, kind string) bus.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Kind == kind {
				return evt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func TestSenderDeliversQueuedMessage(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	acks, unsub := f.bus.Subscribe("message.send_ack", 10)
	defer unsub()

	if err := f.sender.Enqueue(ctx, f.chatID, &remote.Message{ID: "m1", Content: "hello"}); err != nil {
		t.Fatal(err)
	}
	waitKind(t, acks, "message.send_ack")

	// Message landed in the remote timeline.
	msgs, err := f.st.Chats().Messages(ctx, f.chatID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].ID != "m1" || msgs[0].Sender != "a" {
		t.Fatalf("remote timeline = %+v, want one message m1 from a", msgs)
	}

	// Chat metadata and unread accounting ran.
	c, err := f.st.Chats().Get(ctx, f.chatID)
	if err != nil {
		t.Fatal(err)
	}
	if c.LastMessage != "hello" {
		t.Errorf("lastMessage = %q, want hello", c.LastMessage)
	}
	if c.LastMessageTimestamp == 0 {
		t.Error("lastMessageTimestamp not set")
	}
	if c.UnreadFor("b") != 1 || c.UnreadFor("a") != 0 {
		t.Errorf("unread = a:%d b:%d, want a:0 b:1", c.UnreadFor("a"), c.UnreadFor("b"))
	}

	// Queue drained.
	pending, err := f.db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending, want 0 after delivery", len(pending))
	}

	// Recipient got a push.
	sent := f.push.Sent()
	if len(sent) != 1 {
		t.Fatalf("got %d notifications, want 1", len(sent))
	}
	if sent[0].Recipient != "b" || sent[0].Title != "ana" || sent[0].Body != "hello" {
		t.Errorf("notification = %+v, want ana/hello to b", sent[0])
	}
}

func TestSenderImagePreview(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	acks, unsub := f.bus.Subscribe("message.send_ack", 10)
	defer unsub()

	if err := f.sender.Enqueue(ctx, f.chatID, &remote.Message{ID: "m1", ImageURL: "http://x/y.png"}); err != nil {
		t.Fatal(err)
	}
	waitKind(t, acks, "message.send_ack")

	c, err := f.st.Chats().Get(ctx, f.chatID)
	if err != nil {
		t.Fatal(err)
	}
	if c.LastMessage != "Imagen" {
		t.Errorf("lastMessage = %q, want Imagen for image sends", c.LastMessage)
	}
}

func TestSenderHandlesFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	failures, unsub := f.bus.Subscribe("message.send_failed", 10)
	defer unsub()

	f.st.SetAppendErr(errors.New("network error"))
	if err := f.sender.Enqueue(ctx, f.chatID, &remote.Message{ID: "m1", Content: "doomed"}); err != nil {
		t.Fatal(err)
	}
	evt := waitKind(t, failures, "message.send_failed")

	payload := evt.Payload.(map[string]string)
	if payload["msg_id"] != "m1" || payload["error"] == "" {
		t.Errorf("payload = %+v, want msg_id m1 with error", payload)
	}

	// Failed entries leave the pending queue but stay retryable.
	pending, err := f.db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending, want 0 (marked failed)", len(pending))
	}
}

func TestSenderRetryAfterFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	acks, unsubAck := f.bus.Subscribe("message.send_ack", 10)
	defer unsubAck()
	failures, unsubFail := f.bus.Subscribe("message.send_failed", 10)
	defer unsubFail()

	f.st.SetAppendErr(errors.New("flaky"))
	if err := f.sender.Enqueue(ctx, f.chatID, &remote.Message{ID: "m1", Content: "second try"}); err != nil {
		t.Fatal(err)
	}
	waitKind(t, failures, "message.send_failed")

	f.st.SetAppendErr(nil)
	if err := f.sender.Retry(ctx, "m1"); err != nil {
		t.Fatal(err)
	}
	waitKind(t, acks, "message.send_ack")

	msgs, err := f.st.Chats().Messages(ctx, f.chatID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Fatalf("remote timeline = %+v, want exactly one m1", msgs)
	}
}

func TestSenderFailsOnMissingChat(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	failures, unsub := f.bus.Subscribe("message.send_failed", 10)
	defer unsub()

	if err := f.sender.Enqueue(ctx, "no-such-chat", &remote.Message{ID: "m1", Content: "lost"}); err != nil {
		t.Fatal(err)
	}
	waitKind(t, failures, "message.send_failed")
}
