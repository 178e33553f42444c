package membership

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/matheus3301/sendme/internal/remote"
	"go.uber.org/zap"
)

// GroupCreatedMessage seeds lastMessage on a fresh group so the chat list
// row is never blank.
const GroupCreatedMessage = "Grupo creado"

// Mutator performs participant-set mutations against the chat store and the
// per-user membership index. Every removal ends with the same post-condition
// check: a chat whose participant set became empty is deleted, never left
// behind.
type Mutator struct {
	chats  remote.ChatStore
	index  remote.MembershipIndex
	logger *zap.Logger

	// pick selects the new admin among n remaining participants. Uniform
	// random in production; injectable for deterministic tests.
	pick func(n int) int
}

// NewMutator creates a mutator with uniform-random admin re-election.
func NewMutator(chats remote.ChatStore, index remote.MembershipIndex, logger *zap.Logger) *Mutator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mutator{chats: chats, index: index, logger: logger, pick: rand.Intn}
}

// SetPicker overrides the admin re-election policy. Tests use it to make
// hand-off deterministic.
func (m *Mutator) SetPicker(pick func(n int) int) { m.pick = pick }

// CreateDirect creates a 1:1 chat between localUID and otherUID with zeroed
// unread counters and no content yet, and registers it in both users'
// membership indexes.
func (m *Mutator) CreateDirect(ctx context.Context, localUID, otherUID string) (string, error) {
	if localUID == "" {
		return "", remote.ErrNotAuthenticated
	}
	chatID, err := m.chats.Create(ctx, &remote.Chat{
		Participants: map[string]bool{localUID: true, otherUID: true},
		UnreadCount:  map[string]int{localUID: 0, otherUID: 0},
		LastMessage:  "",
	})
	if err != nil {
		return "", fmt.Errorf("create direct chat: %w", err)
	}
	for _, uid := range []string{localUID, otherUID} {
		if err := m.index.Set(ctx, uid, chatID); err != nil {
			return "", fmt.Errorf("register chat %s for %s: %w", chatID, uid, err)
		}
	}
	m.logger.Info("direct chat created",
		zap.String("chat_id", chatID),
		zap.String("with", otherUID))
	return chatID, nil
}

// CreateGroup creates a group chat with adminUID as creator and admin.
// members should include the admin; it is added either way.
func (m *Mutator) CreateGroup(ctx context.Context, name, icon, adminUID string, members []string) (string, error) {
	if adminUID == "" {
		return "", remote.ErrNotAuthenticated
	}
	participants := map[string]bool{adminUID: true}
	unread := map[string]int{adminUID: 0}
	for _, uid := range members {
		participants[uid] = true
		unread[uid] = 0
	}
	chatID, err := m.chats.Create(ctx, &remote.Chat{
		Participants:         participants,
		UnreadCount:          unread,
		IsGroup:              true,
		GroupName:            name,
		GroupIcon:            icon,
		AdminUID:             adminUID,
		LastMessage:          GroupCreatedMessage,
		LastMessageTimestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("create group: %w", err)
	}
	for uid := range participants {
		if err := m.index.Set(ctx, uid, chatID); err != nil {
			return "", fmt.Errorf("register group %s for %s: %w", chatID, uid, err)
		}
	}
	m.logger.Info("group created",
		zap.String("chat_id", chatID),
		zap.String("name", name),
		zap.Int("members", len(participants)))
	return chatID, nil
}

// AddParticipant activates uid in a group chat and registers the chat in
// uid's membership index.
func (m *Mutator) AddParticipant(ctx context.Context, chatID, uid string) error {
	err := m.chats.UpdateFields(ctx, chatID, map[string]any{
		"participants/" + uid: true,
		"unreadCount/" + uid:  0,
	})
	if err != nil {
		return fmt.Errorf("add participant %s to %s: %w", uid, chatID, err)
	}
	if err := m.index.Set(ctx, uid, chatID); err != nil {
		return fmt.Errorf("register chat %s for %s: %w", chatID, uid, err)
	}
	return nil
}

// SetGroupName renames a group via a partial field write.
func (m *Mutator) SetGroupName(ctx context.Context, chatID, name string) error {
	if err := m.chats.UpdateFields(ctx, chatID, map[string]any{"groupName": name}); err != nil {
		return fmt.Errorf("rename group %s: %w", chatID, err)
	}
	return nil
}

// SetGroupIcon replaces the group icon URL via a partial field write.
func (m *Mutator) SetGroupIcon(ctx context.Context, chatID, iconURL string) error {
	if err := m.chats.UpdateFields(ctx, chatID, map[string]any{"groupIcon": iconURL}); err != nil {
		return fmt.Errorf("update group icon %s: %w", chatID, err)
	}
	return nil
}

// Leave removes the local user from the chat. See Remove.
func (m *Mutator) Leave(ctx context.Context, chatID, uid string) error {
	return m.Remove(ctx, chatID, uid)
}

// Kick removes targetUID from a group on behalf of actorUID, who must be
// the group admin.
func (m *Mutator) Kick(ctx context.Context, chatID, actorUID, targetUID string) error {
	c, err := m.chats.Get(ctx, chatID)
	if err != nil {
		return fmt.Errorf("load chat %s: %w", chatID, err)
	}
	if c == nil {
		return fmt.Errorf("chat %s: %w", chatID, remote.ErrNotFound)
	}
	if c.IsGroup && c.AdminUID != actorUID {
		return fmt.Errorf("kick from %s: %w", chatID, remote.ErrPermissionDenied)
	}
	return m.Remove(ctx, chatID, targetUID)
}

// Remove drops uid from the chat's participant set, hands off the admin
// role when the departing member held it, deregisters the membership index
// entry, and deletes the chat if nobody is left. Calling it again after the
// user is already gone is a no-op.
func (m *Mutator) Remove(ctx context.Context, chatID, uid string) error {
	c, err := m.chats.Get(ctx, chatID)
	if err != nil {
		return fmt.Errorf("load chat %s: %w", chatID, err)
	}
	if c == nil {
		// Chat already deleted; still clear the index entry.
		return m.index.Remove(ctx, uid, chatID)
	}

	if c.HasParticipant(uid) {
		updates := map[string]any{
			"participants/" + uid: nil,
			"unreadCount/" + uid:  nil,
		}
		if c.IsGroup && c.AdminUID == uid {
			if newAdmin := m.electAdmin(c, uid); newAdmin != "" {
				updates["adminUid"] = newAdmin
				m.logger.Info("admin hand-off",
					zap.String("chat_id", chatID),
					zap.String("from", uid),
					zap.String("to", newAdmin))
			}
		}
		if err := m.chats.UpdateFields(ctx, chatID, updates); err != nil {
			return fmt.Errorf("remove participant %s from %s: %w", uid, chatID, err)
		}
	}

	if err := m.index.Remove(ctx, uid, chatID); err != nil {
		return fmt.Errorf("deregister chat %s for %s: %w", chatID, uid, err)
	}

	return m.deleteIfEmpty(ctx, chatID)
}

// electAdmin picks the successor among the remaining active participants.
// Returns "" when nobody remains.
func (m *Mutator) electAdmin(c *remote.Chat, departing string) string {
	var remaining []string
	for _, p := range c.ActiveParticipants() {
		if p != departing {
			remaining = append(remaining, p)
		}
	}
	if len(remaining) == 0 {
		return ""
	}
	sort.Strings(remaining)
	return remaining[m.pick(len(remaining))]
}

// deleteIfEmpty is the post-condition check run after every removal: a chat
// record must never survive with an empty participant set.
func (m *Mutator) deleteIfEmpty(ctx context.Context, chatID string) error {
	c, err := m.chats.Get(ctx, chatID)
	if err != nil {
		return fmt.Errorf("post-removal check %s: %w", chatID, err)
	}
	if c == nil || len(c.ActiveParticipants()) > 0 {
		return nil
	}
	m.logger.Info("deleting empty chat", zap.String("chat_id", chatID))
	if err := m.chats.Delete(ctx, chatID); err != nil {
		return fmt.Errorf("delete empty chat %s: %w", chatID, err)
	}
	return nil
}
