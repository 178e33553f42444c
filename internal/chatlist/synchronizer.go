package chatlist

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/matheus3301/sendme/internal/bus"
	"github.com/matheus3301/sendme/internal/membership"
	"github.com/matheus3301/sendme/internal/names"
	"github.com/matheus3301/sendme/internal/remote"
	"github.com/matheus3301/sendme/internal/store"
	"github.com/matheus3301/sendme/internal/stream"
	"go.uber.org/zap"
)

// State is the lifecycle of one chat entry in the local index.
type State uint8

const (
	// Loading means membership is known but the record is still being fetched.
	Loading State = iota + 1
	// Active means the whole-record subscription is live.
	Active
	// Evicted is terminal: every subscription for the chat was released.
	Evicted
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Active:
		return "active"
	case Evicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// Entry is one row of the local chat index as handed to callers. Chat is a
// clone; mutating it does not touch the synchronizer's cache.
type Entry struct {
	Chat        *remote.Chat
	DisplayName string
	State       State
}

type entry struct {
	state  State
	chat   *remote.Chat
	name   string
	handle *stream.Handle
	done   chan struct{}
}

// Synchronizer owns the local chat index. It subscribes to the local user's
// membership index and, per member chat, to a single whole-record stream.
// Field updates are derived by diffing consecutive snapshots.
type Synchronizer struct {
	uid      string
	chats    remote.ChatStore
	index    remote.MembershipIndex
	profiles remote.ProfileStore
	names    *names.Cache
	db       *store.DB
	bus      *bus.Bus
	logger   *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry

	ctx     context.Context
	cancel  context.CancelFunc
	handles stream.Group
	wg      sync.WaitGroup
	closed  sync.Once
}

// New creates a synchronizer for the given local user. db is the optional
// local cache mirror; pass nil to skip mirroring.
func New(uid string, chats remote.ChatStore, index remote.MembershipIndex, profiles remote.ProfileStore, nameCache *names.Cache, db *store.DB, b *bus.Bus, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		uid:      uid,
		chats:    chats,
		index:    index,
		profiles: profiles,
		names:    nameCache,
		db:       db,
		bus:      b,
		logger:   logger,
		entries:  make(map[string]*entry),
	}
}

// Start subscribes to the membership index and begins tracking chats.
func (s *Synchronizer) Start(ctx context.Context) error {
	if s.uid == "" {
		return remote.ErrNotAuthenticated
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	ch, h := s.index.Subscribe(s.uid)
	s.handles.Add(h)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case evt, ok := <-ch:
				if !ok {
					return
				}
				s.handleMembership(evt)
				if evt.Type == stream.Cancelled {
					// Terminal: nothing follows on this stream.
					return
				}
			case <-s.ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Close releases every subscription and waits for the event loops to drain.
// After Close returns no further bus events are published by this instance.
func (s *Synchronizer) Close() {
	s.closed.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.handles.Close()
		s.mu.Lock()
		for _, e := range s.entries {
			select {
			case <-e.done:
			default:
				close(e.done)
			}
		}
		s.mu.Unlock()
		s.wg.Wait()
	})
}

// Snapshot returns the active entries sorted for rendering: descending by
// last message timestamp, ties broken by chat id.
func (s *Synchronizer) Snapshot() []Entry {
	s.mu.Lock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.state != Active {
			continue
		}
		out = append(out, Entry{Chat: e.chat.Clone(), DisplayName: e.name, State: e.state})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Chat, out[j].Chat
		if a.LastMessageTimestamp != b.LastMessageTimestamp {
			return a.LastMessageTimestamp > b.LastMessageTimestamp
		}
		return a.ID < b.ID
	})
	return out
}

// AvailableUsers returns profiles the local user could start a new 1:1 chat
// with: everyone except the user and peers of existing direct chats.
func (s *Synchronizer) AvailableUsers(ctx context.Context) ([]remote.Profile, error) {
	all, err := s.profiles.List(ctx)
	if err != nil {
		return nil, err
	}

	taken := map[string]bool{s.uid: true}
	s.mu.Lock()
	for _, e := range s.entries {
		if e.chat != nil && !e.chat.IsGroup {
			if peer := e.chat.OtherParticipant(s.uid); peer != "" {
				taken[peer] = true
			}
		}
	}
	s.mu.Unlock()

	var out []remote.Profile
	for _, p := range all {
		if !taken[p.UID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Synchronizer) handleMembership(evt stream.Event[bool]) {
	switch evt.Type {
	case stream.Added, stream.Changed:
		if evt.Value {
			s.track(evt.Key)
		} else {
			s.evict(evt.Key, "membership cleared")
		}
	case stream.Removed:
		s.evict(evt.Key, "removed from membership index")
	case stream.Cancelled:
		s.logger.Warn("membership stream cancelled", zap.String("reason", evt.Reason))
	}
}

// track starts following a chat the membership index says we belong to.
// Idempotent while an entry for the chat is live.
func (s *Synchronizer) track(chatID string) {
	s.mu.Lock()
	if _, ok := s.entries[chatID]; ok {
		s.mu.Unlock()
		return
	}
	e := &entry{state: Loading, done: make(chan struct{})}
	s.entries[chatID] = e
	s.mu.Unlock()

	ch, h := s.chats.SubscribeChat(chatID)
	s.mu.Lock()
	e.handle = h
	s.mu.Unlock()
	s.handles.Add(h)

	s.wg.Add(1)
	go s.watch(chatID, e, ch)
}

// watch is the per-chat event loop: one initial fetch, then whole-record
// snapshots from the subscription until eviction or shutdown.
func (s *Synchronizer) watch(chatID string, e *entry, ch <-chan stream.Event[*remote.Chat]) {
	defer s.wg.Done()

	c, err := s.chats.Get(s.ctx, chatID)
	if err != nil {
		s.logger.Warn("chat fetch failed", zap.String("chat_id", chatID), zap.Error(err))
		s.evict(chatID, "fetch failed")
		return
	}
	if c == nil || !c.HasParticipant(s.uid) {
		s.evict(chatID, "not a participant")
		return
	}

	name := s.displayName(c)

	s.mu.Lock()
	if e.state == Evicted {
		s.mu.Unlock()
		return
	}
	e.chat = c
	e.name = name
	e.state = Active
	s.mu.Unlock()

	s.mirror(c, name)
	s.publish("chatlist.updated", chatID)

	for {
		select {
		case evt := <-ch:
			switch evt.Type {
			case stream.Changed:
				if !s.apply(chatID, e, evt.Value) {
					return
				}
			case stream.Removed:
				s.evict(chatID, "chat deleted")
				return
			case stream.Cancelled:
				s.evict(chatID, evt.Reason)
				return
			}
		case <-e.done:
			return
		case <-s.ctx.Done():
			return
		}
	}
}

// apply folds one whole-record snapshot into the cached entry. Returns false
// once the chat is evicted.
func (s *Synchronizer) apply(chatID string, e *entry, c *remote.Chat) bool {
	if c == nil || membership.Resolve(c.Participants, s.uid) == membership.NotMember {
		s.evict(chatID, "no longer a participant")
		return false
	}

	s.mu.Lock()
	if e.state != Active {
		s.mu.Unlock()
		return false
	}
	d := Diff(e.chat, c, s.uid)
	if !d.Any() {
		s.mu.Unlock()
		return true
	}
	e.chat = c
	if c.IsGroup && d.GroupName {
		e.name = c.GroupName
	}
	name := e.name
	s.mu.Unlock()

	s.mirror(c, name)
	s.publish("chatlist.updated", chatID)
	if d.Participants {
		s.publish("membership.changed", chatID)
	}
	return true
}

// evict is the terminal transition for a chat entry. Safe to call more than
// once; only the first call tears anything down.
func (s *Synchronizer) evict(chatID, reason string) {
	s.mu.Lock()
	e, ok := s.entries[chatID]
	if !ok || e.state == Evicted {
		s.mu.Unlock()
		return
	}
	e.state = Evicted
	delete(s.entries, chatID)
	h := e.handle
	select {
	case <-e.done:
	default:
		close(e.done)
	}
	s.mu.Unlock()

	h.Close()
	if s.db != nil {
		if err := s.db.DeleteChat(chatID); err != nil {
			s.logger.Warn("cache delete failed", zap.String("chat_id", chatID), zap.Error(err))
		}
	}
	s.logger.Info("chat evicted", zap.String("chat_id", chatID), zap.String("reason", reason))
	s.publish("chatlist.evicted", chatID)
}

// displayName resolves the list-row name: the group name for groups, the
// peer's profile name for 1:1 chats.
func (s *Synchronizer) displayName(c *remote.Chat) string {
	if c.IsGroup {
		return c.GroupName
	}
	peer := c.OtherParticipant(s.uid)
	if peer == "" {
		return names.Fallback
	}
	return s.names.DisplayName(s.ctx, peer)
}

func (s *Synchronizer) mirror(c *remote.Chat, name string) {
	if s.db == nil {
		return
	}
	err := s.db.UpsertChat(&store.Chat{
		ChatID:        c.ID,
		DisplayName:   name,
		IsGroup:       c.IsGroup,
		GroupIcon:     c.GroupIcon,
		AdminUID:      c.AdminUID,
		LastMessage:   c.LastMessage,
		LastMessageAt: c.LastMessageTimestamp,
		UnreadCount:   c.UnreadFor(s.uid),
	})
	if err != nil {
		s.logger.Warn("cache mirror failed", zap.String("chat_id", c.ID), zap.Error(err))
	}
}

func (s *Synchronizer) publish(kind, chatID string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   map[string]string{"chat_id": chatID},
	})
}
