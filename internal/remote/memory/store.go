// Package memory is an in-memory implementation of the remote interfaces
// with real subscription fan-out. It backs the test suite and local
// development; the dynamo package is the production counterpart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/matheus3301/sendme/internal/remote"
	"github.com/matheus3301/sendme/internal/stream"
)

const subBuffer = 256

// Store holds profiles, chats, timelines and the membership index behind a
// single mutex. Subscription delivery happens under that mutex with
// non-blocking sends, so once an unsubscribe returns no further events can
// be delivered for that handle.
//
// The remote interfaces are exposed as views: Profiles(), Chats() and
// Membership().
type Store struct {
	mu         sync.Mutex
	profiles   map[string]remote.Profile
	chats      map[string]*remote.Chat
	messages   map[string][]remote.Message
	membership map[string]map[string]bool

	chatSubs   map[string]map[int]chan stream.Event[*remote.Chat]
	msgSubs    map[string]map[int]chan stream.Event[remote.Message]
	memberSubs map[string]map[int]chan stream.Event[bool]
	nextSub    int

	appendErr error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		profiles:   make(map[string]remote.Profile),
		chats:      make(map[string]*remote.Chat),
		messages:   make(map[string][]remote.Message),
		membership: make(map[string]map[string]bool),
		chatSubs:   make(map[string]map[int]chan stream.Event[*remote.Chat]),
		msgSubs:    make(map[string]map[int]chan stream.Event[remote.Message]),
		memberSubs: make(map[string]map[int]chan stream.Event[bool]),
	}
}

// Profiles returns the ProfileStore view.
func (s *Store) Profiles() remote.ProfileStore { return profileView{s} }

// Chats returns the ChatStore view.
func (s *Store) Chats() remote.ChatStore { return chatView{s} }

// Membership returns the MembershipIndex view.
func (s *Store) Membership() remote.MembershipIndex { return membershipView{s} }

// --- ProfileStore ---

type profileView struct{ s *Store }

func (v profileView) Get(_ context.Context, uid string) (*remote.Profile, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	p, ok := v.s.profiles[uid]
	if !ok {
		return nil, nil
	}
	cp := p
	return &cp, nil
}

func (v profileView) Put(_ context.Context, p *remote.Profile) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.profiles[p.UID] = *p
	return nil
}

func (v profileView) FindByPhone(_ context.Context, phone string) (*remote.Profile, error) {
	return v.find(func(p remote.Profile) bool { return p.Phone == phone })
}

func (v profileView) FindByEmail(_ context.Context, email string) (*remote.Profile, error) {
	return v.find(func(p remote.Profile) bool { return p.Email == email })
}

func (v profileView) find(match func(remote.Profile) bool) (*remote.Profile, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, p := range v.s.profiles {
		if match(p) {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (v profileView) List(_ context.Context) ([]remote.Profile, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	out := make([]remote.Profile, 0, len(v.s.profiles))
	for _, p := range v.s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

// --- ChatStore ---

type chatView struct{ s *Store }

func (v chatView) Get(_ context.Context, chatID string) (*remote.Chat, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c, ok := v.s.chats[chatID]
	if !ok {
		return nil, nil
	}
	return c.Clone(), nil
}

func (v chatView) Create(_ context.Context, c *remote.Chat) (string, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	id := uuid.New().String()
	cp := c.Clone()
	cp.ID = id
	v.s.chats[id] = cp
	return id, nil
}

func (v chatView) Delete(_ context.Context, chatID string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	delete(v.s.chats, chatID)
	delete(v.s.messages, chatID)
	v.s.emitChatLocked(chatID, stream.Event[*remote.Chat]{Type: stream.Removed, Key: chatID})
	return nil
}

// UpdateFields applies a partial update. Paths mirror the wire layout of the
// chat record: top-level scalars plus "participants/<uid>" and
// "unreadCount/<uid>" entries. A nil value deletes the entry.
func (v chatView) UpdateFields(_ context.Context, chatID string, fields map[string]any) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c, ok := v.s.chats[chatID]
	if !ok {
		return fmt.Errorf("chat %s: %w", chatID, remote.ErrNotFound)
	}
	for path, val := range fields {
		if err := applyField(c, path, val); err != nil {
			return err
		}
	}
	v.s.emitChatLocked(chatID, stream.Event[*remote.Chat]{Type: stream.Changed, Key: chatID, Value: c.Clone()})
	return nil
}

func applyField(c *remote.Chat, path string, val any) error {
	if uid, ok := strings.CutPrefix(path, "participants/"); ok {
		if val == nil {
			delete(c.Participants, uid)
			return nil
		}
		active, ok := val.(bool)
		if !ok {
			return fmt.Errorf("participants/%s: %w", uid, remote.ErrMalformedRecord)
		}
		if c.Participants == nil {
			c.Participants = make(map[string]bool)
		}
		c.Participants[uid] = active
		return nil
	}
	if uid, ok := strings.CutPrefix(path, "unreadCount/"); ok {
		if val == nil {
			delete(c.UnreadCount, uid)
			return nil
		}
		n, ok := val.(int)
		if !ok {
			return fmt.Errorf("unreadCount/%s: %w", uid, remote.ErrMalformedRecord)
		}
		if c.UnreadCount == nil {
			c.UnreadCount = make(map[string]int)
		}
		c.UnreadCount[uid] = n
		return nil
	}

	switch path {
	case "lastMessage":
		c.LastMessage, _ = val.(string)
	case "lastMessageTimestamp":
		switch ts := val.(type) {
		case int64:
			c.LastMessageTimestamp = ts
		case int:
			c.LastMessageTimestamp = int64(ts)
		default:
			return fmt.Errorf("lastMessageTimestamp: %w", remote.ErrMalformedRecord)
		}
	case "groupName":
		c.GroupName, _ = val.(string)
	case "groupIcon":
		c.GroupIcon, _ = val.(string)
	case "adminUid":
		c.AdminUID, _ = val.(string)
	default:
		return fmt.Errorf("field path %q: %w", path, remote.ErrMalformedRecord)
	}
	return nil
}

func (v chatView) SetUnread(_ context.Context, chatID, uid string, n int) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c, ok := v.s.chats[chatID]
	if !ok {
		return fmt.Errorf("chat %s: %w", chatID, remote.ErrNotFound)
	}
	if c.UnreadCount == nil {
		c.UnreadCount = make(map[string]int)
	}
	c.UnreadCount[uid] = n
	v.s.emitChatLocked(chatID, stream.Event[*remote.Chat]{Type: stream.Changed, Key: chatID, Value: c.Clone()})
	return nil
}

func (v chatView) IncrementUnread(_ context.Context, chatID, uid string, delta int) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c, ok := v.s.chats[chatID]
	if !ok {
		return fmt.Errorf("chat %s: %w", chatID, remote.ErrNotFound)
	}
	if c.UnreadCount == nil {
		c.UnreadCount = make(map[string]int)
	}
	c.UnreadCount[uid] += delta
	v.s.emitChatLocked(chatID, stream.Event[*remote.Chat]{Type: stream.Changed, Key: chatID, Value: c.Clone()})
	return nil
}

func (v chatView) AppendMessage(_ context.Context, chatID string, m *remote.Message) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.appendErr != nil {
		return v.s.appendErr
	}
	if _, ok := v.s.chats[chatID]; !ok {
		return fmt.Errorf("chat %s: %w", chatID, remote.ErrNotFound)
	}
	msgs := append(v.s.messages[chatID], *m)
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp < msgs[j].Timestamp })
	v.s.messages[chatID] = msgs
	v.s.emitMessageLocked(chatID, stream.Event[remote.Message]{Type: stream.Added, Key: m.ID, Value: *m})
	return nil
}

func (v chatView) Messages(_ context.Context, chatID string) ([]remote.Message, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	msgs := v.s.messages[chatID]
	out := make([]remote.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (v chatView) SubscribeChat(chatID string) (<-chan stream.Event[*remote.Chat], *stream.Handle) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan stream.Event[*remote.Chat], subBuffer)
	id := s.nextSub
	s.nextSub++
	if s.chatSubs[chatID] == nil {
		s.chatSubs[chatID] = make(map[int]chan stream.Event[*remote.Chat])
	}
	s.chatSubs[chatID][id] = ch
	return ch, stream.NewHandle(func() {
		s.mu.Lock()
		delete(s.chatSubs[chatID], id)
		s.mu.Unlock()
	})
}

// SubscribeMessages replays the existing timeline as Added events, then
// streams live appends. Replay and registration happen atomically so no
// append can fall between them. A message can still reach the caller via
// both the bulk fetch and this stream, which is exactly why consumers dedup
// by message id.
func (v chatView) SubscribeMessages(chatID string) (<-chan stream.Event[remote.Message], *stream.Handle) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan stream.Event[remote.Message], subBuffer)
	for _, m := range s.messages[chatID] {
		select {
		case ch <- stream.Event[remote.Message]{Type: stream.Added, Key: m.ID, Value: m}:
		default:
		}
	}
	id := s.nextSub
	s.nextSub++
	if s.msgSubs[chatID] == nil {
		s.msgSubs[chatID] = make(map[int]chan stream.Event[remote.Message])
	}
	s.msgSubs[chatID][id] = ch
	return ch, stream.NewHandle(func() {
		s.mu.Lock()
		delete(s.msgSubs[chatID], id)
		s.mu.Unlock()
	})
}

// --- MembershipIndex ---

type membershipView struct{ s *Store }

func (v membershipView) Set(_ context.Context, uid, chatID string) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.membership[uid] == nil {
		s.membership[uid] = make(map[string]bool)
	}
	existed := s.membership[uid][chatID]
	s.membership[uid][chatID] = true
	typ := stream.Added
	if existed {
		typ = stream.Changed
	}
	s.emitMembershipLocked(uid, stream.Event[bool]{Type: typ, Key: chatID, Value: true})
	return nil
}

func (v membershipView) Remove(_ context.Context, uid, chatID string) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.membership[uid][chatID] {
		return nil
	}
	delete(s.membership[uid], chatID)
	s.emitMembershipLocked(uid, stream.Event[bool]{Type: stream.Removed, Key: chatID})
	return nil
}

func (v membershipView) Chats(_ context.Context, uid string) ([]string, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.membership[uid]))
	for id := range s.membership[uid] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (v membershipView) Subscribe(uid string) (<-chan stream.Event[bool], *stream.Handle) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan stream.Event[bool], subBuffer)
	for chatID := range s.membership[uid] {
		select {
		case ch <- stream.Event[bool]{Type: stream.Added, Key: chatID, Value: true}:
		default:
		}
	}
	id := s.nextSub
	s.nextSub++
	if s.memberSubs[uid] == nil {
		s.memberSubs[uid] = make(map[int]chan stream.Event[bool])
	}
	s.memberSubs[uid][id] = ch
	return ch, stream.NewHandle(func() {
		s.mu.Lock()
		delete(s.memberSubs[uid], id)
		s.mu.Unlock()
	})
}

// --- test hooks ---

// SetAppendErr makes every AppendMessage fail with err until cleared with
// nil. Drives the failed-send paths in tests.
func (s *Store) SetAppendErr(err error) {
	s.mu.Lock()
	s.appendErr = err
	s.mu.Unlock()
}

// CancelChat delivers a terminal Cancelled event on every chat and message
// subscription for chatID and drops the subscriptions, simulating a backend
// revoking the streams.
func (s *Store) CancelChat(chatID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.chatSubs[chatID] {
		select {
		case ch <- stream.Event[*remote.Chat]{Type: stream.Cancelled, Key: chatID, Reason: reason}:
		default:
		}
		delete(s.chatSubs[chatID], id)
	}
	for id, ch := range s.msgSubs[chatID] {
		select {
		case ch <- stream.Event[remote.Message]{Type: stream.Cancelled, Key: chatID, Reason: reason}:
		default:
		}
		delete(s.msgSubs[chatID], id)
	}
}

// --- emit helpers (callers hold s.mu) ---

func (s *Store) emitChatLocked(chatID string, evt stream.Event[*remote.Chat]) {
	for _, ch := range s.chatSubs[chatID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (s *Store) emitMessageLocked(chatID string, evt stream.Event[remote.Message]) {
	for _, ch := range s.msgSubs[chatID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (s *Store) emitMembershipLocked(uid string, evt stream.Event[bool]) {
	for _, ch := range s.memberSubs[uid] {
		select {
		case ch <- evt:
		default:
		}
	}
}
