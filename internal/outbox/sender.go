// Package outbox is the durable send pipeline: outgoing messages are queued
// in the local cache and drained by a background sender, so a crash between
// composing and delivery never loses a message.
package outbox

import (
	"context"
	"time"

	"github.com/matheus3301/sendme/internal/bus"
	"github.com/matheus3301/sendme/internal/push"
	"github.com/matheus3301/sendme/internal/remote"
	"github.com/matheus3301/sendme/internal/store"
	"github.com/matheus3301/sendme/internal/unread"
	"go.uber.org/zap"
)

// Sender drains the outbox into the remote chat store. It implements the
// timeline Dispatcher contract: Enqueue and Retry feed the queue, delivery
// results come back over the bus as message.send_ack / message.send_failed.
type Sender struct {
	uid      string
	db       *store.DB
	chats    remote.ChatStore
	acct     *unread.Accountant
	notifier *push.Notifier
	bus      *bus.Bus
	logger   *zap.Logger

	wake   chan struct{}
	cancel context.CancelFunc
}

// NewSender creates a sender delivering on behalf of the local user uid.
// notifier may be nil when push is disabled.
func NewSender(uid string, db *store.DB, chats remote.ChatStore, acct *unread.Accountant, notifier *push.Notifier, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		uid:      uid,
		db:       db,
		chats:    chats,
		acct:     acct,
		notifier: notifier,
		bus:      b,
		logger:   logger,
		wake:     make(chan struct{}, 1),
	}
}

// Enqueue queues an outgoing message for delivery and nudges the drain loop.
func (s *Sender) Enqueue(_ context.Context, chatID string, m *remote.Message) error {
	if err := s.db.QueueOutbox(m.ID, chatID, m.Content, m.ImageURL); err != nil {
		return err
	}
	s.nudge()
	return nil
}

// Retry puts a failed entry back into the queue under its original id.
func (s *Sender) Retry(_ context.Context, msgID string) error {
	if err := s.db.RequeueOutbox(msgID); err != nil {
		return err
	}
	s.nudge()
	return nil
}

func (s *Sender) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start begins draining the queue until the context is cancelled or Stop is
// called.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the drain loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.wake:
			s.processPending(ctx)
		case <-ticker.C:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}
	for _, entry := range pending {
		s.deliver(ctx, entry)
	}
}

// deliver pushes one queued message through the full send pipeline: append
// to the remote timeline, bump chat metadata, broadcast unread increments,
// notify recipients, and acknowledge over the bus.
func (s *Sender) deliver(ctx context.Context, entry store.OutboxEntry) {
	if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
		s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		return
	}

	now := time.Now().UnixMilli()
	m := &remote.Message{
		ID:        entry.ClientMsgID,
		Sender:    s.uid,
		Content:   entry.Content,
		ImageURL:  entry.ImageURL,
		Timestamp: now,
	}

	c, err := s.chats.Get(ctx, entry.ChatID)
	if err == nil && c == nil {
		err = remote.ErrNotFound
	}
	if err == nil {
		err = s.chats.AppendMessage(ctx, entry.ChatID, m)
	}
	if err != nil {
		s.fail(entry, err)
		return
	}

	if err := s.chats.UpdateFields(ctx, entry.ChatID, map[string]any{
		"lastMessage":          m.Preview(),
		"lastMessageTimestamp": now,
	}); err != nil {
		s.logger.Warn("chat metadata update failed", zap.String("chat_id", entry.ChatID), zap.Error(err))
	}

	if err := s.acct.BroadcastIncrement(ctx, entry.ChatID, s.uid, c.ActiveParticipants()); err != nil {
		s.logger.Warn("unread broadcast incomplete", zap.String("chat_id", entry.ChatID), zap.Error(err))
	}

	if s.notifier != nil {
		s.notifier.MessageDelivered(ctx, c, m)
	}

	if err := s.db.MarkOutboxSent(entry.ClientMsgID); err != nil {
		s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
	}
	_ = s.db.SetMessageState(entry.ChatID, entry.ClientMsgID, "confirmed")

	s.logger.Info("message delivered",
		zap.String("chat_id", entry.ChatID),
		zap.String("msg_id", entry.ClientMsgID))
	s.publish("message.send_ack", entry, "")
}

func (s *Sender) fail(entry store.OutboxEntry, err error) {
	s.logger.Error("failed to deliver message",
		zap.Error(err),
		zap.String("client_msg_id", entry.ClientMsgID))
	_ = s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error())
	_ = s.db.SetMessageState(entry.ChatID, entry.ClientMsgID, "failed")
	s.publish("message.send_failed", entry, err.Error())
}

func (s *Sender) publish(kind string, entry store.OutboxEntry, errMsg string) {
	if s.bus == nil {
		return
	}
	payload := map[string]string{
		"chat_id": entry.ChatID,
		"msg_id":  entry.ClientMsgID,
	}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	s.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
