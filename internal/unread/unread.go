// Package unread owns the unread-counter protocol: reset-to-zero for the
// local user and the per-recipient increment broadcast that runs after every
// delivered message.
package unread

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/sendme/internal/remote"
	"go.uber.org/zap"
)

// Accountant issues unread-counter updates against the chat store.
type Accountant struct {
	chats  remote.ChatStore
	logger *zap.Logger
}

// NewAccountant creates an accountant backed by the given chat store.
func NewAccountant(chats remote.ChatStore, logger *zap.Logger) *Accountant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Accountant{chats: chats, logger: logger}
}

// ResetSelf unconditionally sets unreadCount[uid] to zero. Last writer wins,
// so calling it twice is the same as calling it once.
func (a *Accountant) ResetSelf(ctx context.Context, chatID, uid string) error {
	if uid == "" {
		return remote.ErrNotAuthenticated
	}
	if err := a.chats.SetUnread(ctx, chatID, uid, 0); err != nil {
		return fmt.Errorf("reset unread for %s in %s: %w", uid, chatID, err)
	}
	return nil
}

// BroadcastIncrement bumps the unread counter of every participant except
// the sender by one and zeroes the sender's own counter. Each recipient's
// counter is an independent atomic increment on a disjoint key, so no
// cross-user coordination is needed and concurrent senders cannot lose an
// update.
//
// Partial failure is tolerated: a failed increment undercounts one user's
// badge but never corrupts the chat. Failures are logged per recipient and
// joined into the returned error; callers that only care about delivery may
// ignore it.
func (a *Accountant) BroadcastIncrement(ctx context.Context, chatID, senderID string, participants []string) error {
	if senderID == "" {
		return remote.ErrNotAuthenticated
	}

	var errs []error
	for _, uid := range participants {
		if uid == senderID {
			continue
		}
		if err := a.chats.IncrementUnread(ctx, chatID, uid, 1); err != nil {
			a.logger.Warn("unread increment failed",
				zap.String("chat_id", chatID),
				zap.String("uid", uid),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("increment %s: %w", uid, err))
		}
	}

	if err := a.chats.SetUnread(ctx, chatID, senderID, 0); err != nil {
		a.logger.Warn("sender unread reset failed",
			zap.String("chat_id", chatID),
			zap.String("uid", senderID),
			zap.Error(err))
		errs = append(errs, fmt.Errorf("reset sender %s: %w", senderID, err))
	}

	return errors.Join(errs...)
}
