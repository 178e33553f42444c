package app

import (
	"context"
	"sync"

	"github.com/matheus3301/sendme/internal/bus"
	"github.com/matheus3301/sendme/internal/outbox"
	"github.com/matheus3301/sendme/internal/remote"
	"github.com/matheus3301/sendme/internal/store"
	"github.com/matheus3301/sendme/internal/timeline"
	"github.com/matheus3301/sendme/internal/unread"
	"go.uber.org/zap"
)

// Timelines opens and tracks per-chat timeline synchronizers. At most one
// synchronizer is open per chat id; opening an already open chat returns the
// existing one.
type Timelines struct {
	uid      string
	chats    remote.ChatStore
	images   remote.ImageHost
	acct     *unread.Accountant
	dispatch *outbox.Sender
	db       *store.DB
	bus      *bus.Bus
	logger   *zap.Logger

	mu   sync.Mutex
	open map[string]*timeline.Synchronizer
}

func NewTimelines(uid string, be Backend, acct *unread.Accountant, dispatch *outbox.Sender, db *store.DB, b *bus.Bus, logger *zap.Logger) *Timelines {
	return &Timelines{
		uid:      uid,
		chats:    be.Chats,
		images:   be.Images,
		acct:     acct,
		dispatch: dispatch,
		db:       db,
		bus:      b,
		logger:   logger,
		open:     map[string]*timeline.Synchronizer{},
	}
}

// Open returns a running synchronizer for the chat, starting one if needed.
func (t *Timelines) Open(ctx context.Context, chatID string) (*timeline.Synchronizer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.open[chatID]; ok && !s.Evicted() {
		return s, nil
	}
	s := timeline.New(t.uid, chatID, t.chats, t.images, t.acct, t.dispatch, t.db, t.bus, t.logger)
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	t.open[chatID] = s
	return s, nil
}

// Close tears down the synchronizer for one chat, if open.
func (t *Timelines) Close(chatID string) {
	t.mu.Lock()
	s, ok := t.open[chatID]
	delete(t.open, chatID)
	t.mu.Unlock()
	if ok {
		s.Close()
	}
}

// CloseAll tears down every open synchronizer.
func (t *Timelines) CloseAll() {
	t.mu.Lock()
	open := t.open
	t.open = map[string]*timeline.Synchronizer{}
	t.mu.Unlock()
	for _, s := range open {
		s.Close()
	}
}
