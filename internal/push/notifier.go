// Package push composes message notifications for the push relay. The core
// only produces payloads; delivery is the relay's problem.
package push

import (
	"context"
	"fmt"

	"github.com/matheus3301/sendme/internal/names"
	"github.com/matheus3301/sendme/internal/remote"
	"go.uber.org/zap"
)

// Notifier fans a delivered message out to every recipient's push channel.
type Notifier struct {
	relay  remote.PushRelay
	names  *names.Cache
	logger *zap.Logger
}

// NewNotifier creates a notifier over the given relay.
func NewNotifier(relay remote.PushRelay, nameCache *names.Cache, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{relay: relay, names: nameCache, logger: logger}
}

// MessageDelivered notifies every active participant except the sender.
// For 1:1 chats the title is the sender's name; for groups it is the group
// name with the sender prefixed in the body. Delivery failures are logged
// per recipient and never abort the remaining sends.
func (n *Notifier) MessageDelivered(ctx context.Context, c *remote.Chat, m *remote.Message) {
	if n.relay == nil || c == nil {
		return
	}

	sender := n.names.DisplayName(ctx, m.Sender)
	title := sender
	body := m.Preview()
	if c.IsGroup {
		title = c.GroupName
		body = fmt.Sprintf("%s: %s", sender, m.Preview())
	}

	for _, uid := range c.ActiveParticipants() {
		if uid == m.Sender {
			continue
		}
		err := n.relay.Notify(ctx, remote.Notification{
			Title:     title,
			Body:      body,
			ChatID:    c.ID,
			IsGroup:   c.IsGroup,
			Recipient: uid,
		})
		if err != nil {
			n.logger.Warn("push delivery failed",
				zap.String("chat_id", c.ID),
				zap.String("recipient", uid),
				zap.Error(err))
		}
	}
}
