package dynamo

import (
	"context"
	"reflect"
	"time"

	"github.com/matheus3301/sendme/internal/remote"
	"github.com/matheus3301/sendme/internal/stream"
	"go.uber.org/zap"
)

// DynamoDB has no push channel, so subscriptions poll and diff. Each watcher
// runs one goroutine; closing the handle cancels its context and the channel
// is closed on exit. Events that would block are dropped, matching the bus.

// errBudget is the number of consecutive poll failures tolerated before the
// watcher gives up and emits Cancelled.
const errBudget = 5

func (b *Backend) watchChat(chatID string) (<-chan stream.Event[*remote.Chat], *stream.Handle) {
	ch := make(chan stream.Event[*remote.Chat], 16)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		defer close(ch)
		ticker := time.NewTicker(b.pollInterval)
		defer ticker.Stop()

		var prev *remote.Chat
		seeded := false
		fails := 0
		for {
			cur, err := chatStore{b}.Get(ctx, chatID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				fails++
				b.logger.Warn("chat poll failed",
					zap.String("chat_id", chatID),
					zap.Int("consecutive", fails),
					zap.Error(err))
				if fails >= errBudget {
					emit(ctx, ch, stream.Event[*remote.Chat]{
						Type:   stream.Cancelled,
						Key:    chatID,
						Reason: err.Error(),
					})
					return
				}
			} else {
				fails = 0
				switch {
				case cur == nil && seeded && prev != nil:
					emit(ctx, ch, stream.Event[*remote.Chat]{Type: stream.Removed, Key: chatID})
					return
				case cur != nil && (!seeded || !reflect.DeepEqual(prev, cur)):
					emit(ctx, ch, stream.Event[*remote.Chat]{Type: stream.Changed, Key: chatID, Value: cur})
				}
				prev = cur
				seeded = true
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return ch, stream.NewHandle(cancel)
}

func (b *Backend) watchMessages(chatID string) (<-chan stream.Event[remote.Message], *stream.Handle) {
	ch := make(chan stream.Event[remote.Message], 64)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		defer close(ch)
		ticker := time.NewTicker(b.pollInterval)
		defer ticker.Stop()

		seen := map[string]bool{}
		fails := 0
		for {
			msgs, err := chatStore{b}.Messages(ctx, chatID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				fails++
				b.logger.Warn("message poll failed",
					zap.String("chat_id", chatID),
					zap.Int("consecutive", fails),
					zap.Error(err))
				if fails >= errBudget {
					emit(ctx, ch, stream.Event[remote.Message]{
						Type:   stream.Cancelled,
						Key:    chatID,
						Reason: err.Error(),
					})
					return
				}
			} else {
				fails = 0
				for _, m := range msgs {
					if seen[m.ID] {
						continue
					}
					seen[m.ID] = true
					emit(ctx, ch, stream.Event[remote.Message]{Type: stream.Added, Key: m.ID, Value: m})
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return ch, stream.NewHandle(cancel)
}

func (b *Backend) watchMembership(uid string) (<-chan stream.Event[bool], *stream.Handle) {
	ch := make(chan stream.Event[bool], 16)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		defer close(ch)
		ticker := time.NewTicker(b.pollInterval)
		defer ticker.Stop()

		prev := map[string]bool{}
		fails := 0
		for {
			ids, err := membershipIndex{b}.Chats(ctx, uid)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				fails++
				b.logger.Warn("membership poll failed",
					zap.String("uid", uid),
					zap.Int("consecutive", fails),
					zap.Error(err))
				if fails >= errBudget {
					emit(ctx, ch, stream.Event[bool]{
						Type:   stream.Cancelled,
						Key:    uid,
						Reason: err.Error(),
					})
					return
				}
			} else {
				fails = 0
				cur := make(map[string]bool, len(ids))
				for _, id := range ids {
					cur[id] = true
					if !prev[id] {
						emit(ctx, ch, stream.Event[bool]{Type: stream.Added, Key: id, Value: true})
					}
				}
				for id := range prev {
					if !cur[id] {
						emit(ctx, ch, stream.Event[bool]{Type: stream.Removed, Key: id})
					}
				}
				prev = cur
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return ch, stream.NewHandle(cancel)
}

// emit delivers without blocking past cancellation.
func emit[T any](ctx context.Context, ch chan stream.Event[T], e stream.Event[T]) {
	select {
	case ch <- e:
	case <-ctx.Done():
	}
}

func (s chatStore) SubscribeChat(chatID string) (<-chan stream.Event[*remote.Chat], *stream.Handle) {
	return s.b.watchChat(chatID)
}

func (s chatStore) SubscribeMessages(chatID string) (<-chan stream.Event[remote.Message], *stream.Handle) {
	return s.b.watchMessages(chatID)
}
