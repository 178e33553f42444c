// Package timeline owns the ordered, deduplicated message sequence of one
// open chat. It merges a bulk load with the live append stream, watches the
// participant set for eviction, and tracks outgoing messages through an
// explicit Pending, Confirmed or Failed state.
package timeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/matheus3301/sendme/internal/bus"
	"github.com/matheus3301/sendme/internal/membership"
	"github.com/matheus3301/sendme/internal/remote"
	"github.com/matheus3301/sendme/internal/store"
	"github.com/matheus3301/sendme/internal/stream"
	"github.com/matheus3301/sendme/internal/unread"
	"go.uber.org/zap"
)

// SendState classifies a timeline entry's delivery status.
type SendState uint8

const (
	// StateReceived marks inbound messages and history.
	StateReceived SendState = iota + 1
	// StatePending marks an optimistic local append not yet confirmed.
	StatePending
	// StateConfirmed marks an outgoing message acknowledged by the store.
	StateConfirmed
	// StateFailed marks an outgoing message whose write failed. Retryable.
	StateFailed
)

func (s SendState) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Entry is one message plus its delivery state.
type Entry struct {
	Message remote.Message
	State   SendState
}

// Dispatcher hands outgoing messages to the durable send pipeline. The
// pipeline acknowledges over the bus with message.send_ack or
// message.send_failed carrying the chat and message ids. Retry puts a failed
// message back into the pipeline under its original id.
type Dispatcher interface {
	Enqueue(ctx context.Context, chatID string, m *remote.Message) error
	Retry(ctx context.Context, msgID string) error
}

// Synchronizer owns the local message sequence for one open chat. Create one
// per opened chat view and Close it when the view goes away.
type Synchronizer struct {
	uid      string
	chatID   string
	chats    remote.ChatStore
	images   remote.ImageHost
	unread   *unread.Accountant
	dispatch Dispatcher
	db       *store.DB
	bus      *bus.Bus
	logger   *zap.Logger

	mu      sync.Mutex
	seq     []Entry
	seen    map[string]bool
	evicted bool

	ctx     context.Context
	cancel  context.CancelFunc
	handles stream.Group
	wg      sync.WaitGroup
	closed  sync.Once
}

// New creates a timeline synchronizer for one chat. db is the optional local
// cache mirror. images may be nil when image sends are not needed.
func New(uid, chatID string, chats remote.ChatStore, images remote.ImageHost, acct *unread.Accountant, dispatch Dispatcher, db *store.DB, b *bus.Bus, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		uid:      uid,
		chatID:   chatID,
		chats:    chats,
		images:   images,
		unread:   acct,
		dispatch: dispatch,
		db:       db,
		bus:      b,
		logger:   logger,
		seen:     make(map[string]bool),
	}
}

// Open runs the two-phase load and starts the standing subscriptions: the
// message stream, the whole-record watch for membership eviction, and the
// send acknowledgement feed. The local unread counter is reset as part of
// opening the chat.
func (s *Synchronizer) Open(ctx context.Context) error {
	if s.uid == "" {
		return remote.ErrNotAuthenticated
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	c, err := s.chats.Get(ctx, s.chatID)
	if err != nil {
		return err
	}
	if c == nil || !c.HasParticipant(s.uid) {
		return remote.ErrPermissionDenied
	}

	// Subscribe before the bulk fetch so nothing can fall between the two.
	// Overlap is expected and resolved by the seen-id set.
	msgCh, msgHandle := s.chats.SubscribeMessages(s.chatID)
	s.handles.Add(msgHandle)
	chatCh, chatHandle := s.chats.SubscribeChat(s.chatID)
	s.handles.Add(chatHandle)

	// The first check raced the subscription attach: a removal landing in
	// that window would never reach the standing watch. Resolve again now
	// that the watch is up.
	c, err = s.chats.Get(ctx, s.chatID)
	if err != nil {
		s.handles.Close()
		return err
	}
	if c == nil || membership.Resolve(c.Participants, s.uid) == membership.NotMember {
		s.handles.Close()
		return remote.ErrPermissionDenied
	}

	msgs, err := s.chats.Messages(ctx, s.chatID)
	if err != nil {
		s.handles.Close()
		return err
	}
	s.mu.Lock()
	for _, m := range msgs {
		s.insertLocked(m, StateReceived)
	}
	s.mu.Unlock()

	if err := s.unread.ResetSelf(ctx, s.chatID, s.uid); err != nil {
		s.logger.Warn("unread reset on open failed", zap.String("chat_id", s.chatID), zap.Error(err))
	}

	var ackCh <-chan bus.Event
	if s.bus != nil {
		ch, unsub := s.bus.Subscribe("message.send_", 64)
		ackCh = ch
		s.handles.Add(stream.NewHandle(unsub))
	}

	s.wg.Add(1)
	go s.loop(msgCh, chatCh, ackCh)
	return nil
}

// Close tears down every subscription for this chat. Safe to call more than
// once; after it returns no further bus events are published.
func (s *Synchronizer) Close() {
	s.closed.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.handles.Close()
		s.wg.Wait()
	})
}

// Evicted reports whether the chat was forcibly closed because the local
// user is no longer a participant or the stream was cancelled.
func (s *Synchronizer) Evicted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evicted
}

// Messages returns a copy of the current sequence in timestamp order.
func (s *Synchronizer) Messages() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.seq))
	copy(out, s.seq)
	return out
}

func (s *Synchronizer) loop(msgCh <-chan stream.Event[remote.Message], chatCh <-chan stream.Event[*remote.Chat], ackCh <-chan bus.Event) {
	defer s.wg.Done()
	for {
		select {
		case evt := <-msgCh:
			switch evt.Type {
			case stream.Added:
				s.ingest(evt.Value)
			case stream.Cancelled:
				s.evict(evt.Reason)
				return
			}
		case evt := <-chatCh:
			switch evt.Type {
			case stream.Changed:
				if evt.Value == nil || membership.Resolve(evt.Value.Participants, s.uid) == membership.NotMember {
					s.evict("no longer a participant")
					return
				}
			case stream.Removed:
				s.evict("chat deleted")
				return
			case stream.Cancelled:
				s.evict(evt.Reason)
				return
			}
		case evt := <-ackCh:
			s.handleAck(evt)
		case <-s.ctx.Done():
			return
		}
	}
}

// ingest folds one streamed message into the sequence. Messages already seen
// via the bulk load or an optimistic append are dropped, which is the whole
// dedup contract. A foreign message arriving while the chat is open resets
// the local unread counter, mirroring "the user is looking at it right now".
func (s *Synchronizer) ingest(m remote.Message) {
	s.mu.Lock()
	if s.seen[m.ID] {
		s.mu.Unlock()
		return
	}
	s.insertLocked(m, StateReceived)
	s.mu.Unlock()

	s.mirror(m, StateReceived)
	if m.Sender != s.uid {
		if err := s.unread.ResetSelf(s.ctx, s.chatID, s.uid); err != nil {
			s.logger.Warn("unread reset on receive failed", zap.String("chat_id", s.chatID), zap.Error(err))
		}
	}
	s.publish("message.upserted", m.ID)
}

func (s *Synchronizer) handleAck(evt bus.Event) {
	payload, ok := evt.Payload.(map[string]string)
	if !ok || payload["chat_id"] != s.chatID {
		return
	}
	msgID := payload["msg_id"]

	var next SendState
	switch evt.Kind {
	case "message.send_ack":
		next = StateConfirmed
	case "message.send_failed":
		next = StateFailed
	default:
		return
	}

	s.mu.Lock()
	updated := false
	for i := range s.seq {
		if s.seq[i].Message.ID == msgID && s.seq[i].State != next {
			s.seq[i].State = next
			updated = true
			break
		}
	}
	s.mu.Unlock()

	if updated && s.db != nil {
		if err := s.db.SetMessageState(s.chatID, msgID, next.String()); err != nil {
			s.logger.Warn("cache state update failed", zap.String("msg_id", msgID), zap.Error(err))
		}
	}
	if updated {
		s.publish("message.upserted", msgID)
	}
}

// evict is terminal and idempotent: subscriptions are released once and the
// local sequence is kept as-is (stale, not deleted).
func (s *Synchronizer) evict(reason string) {
	s.mu.Lock()
	if s.evicted {
		s.mu.Unlock()
		return
	}
	s.evicted = true
	s.mu.Unlock()

	s.handles.Close()
	s.logger.Info("timeline evicted", zap.String("chat_id", s.chatID), zap.String("reason", reason))
	if s.bus != nil {
		s.bus.Publish(bus.Event{
			Kind:      "timeline.evicted",
			Timestamp: time.Now(),
			Payload:   map[string]string{"chat_id": s.chatID, "reason": reason},
		})
	}
}

// insertLocked places m in timestamp order (id as tiebreak) and marks it
// seen. Callers hold s.mu.
func (s *Synchronizer) insertLocked(m remote.Message, state SendState) {
	s.seen[m.ID] = true
	e := Entry{Message: m, State: state}
	i := sort.Search(len(s.seq), func(i int) bool {
		if s.seq[i].Message.Timestamp != m.Timestamp {
			return s.seq[i].Message.Timestamp > m.Timestamp
		}
		return s.seq[i].Message.ID > m.ID
	})
	s.seq = append(s.seq, Entry{})
	copy(s.seq[i+1:], s.seq[i:])
	s.seq[i] = e
}

func (s *Synchronizer) mirror(m remote.Message, state SendState) {
	if s.db == nil {
		return
	}
	err := s.db.UpsertMessage(&store.Message{
		ChatID:    s.chatID,
		MsgID:     m.ID,
		SenderUID: m.Sender,
		Content:   m.Content,
		ImageURL:  m.ImageURL,
		SendState: state.String(),
		Timestamp: m.Timestamp,
	})
	if err != nil {
		s.logger.Warn("cache mirror failed", zap.String("msg_id", m.ID), zap.Error(err))
	}
}

func (s *Synchronizer) publish(kind, id string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   map[string]string{"chat_id": s.chatID, "msg_id": id},
	})
}
