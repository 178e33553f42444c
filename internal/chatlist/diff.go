// Package chatlist keeps the local chat index consistent with the remote
// membership index and chat records. One synchronizer instance owns the
// index; nothing else writes to it.
package chatlist

import "github.com/matheus3301/sendme/internal/remote"

// Changes records which fields differ between two snapshots of the same
// chat, from the local user's point of view. The whole-record subscription
// delivers full snapshots; this is the client-side diff that replaces
// per-field listeners.
type Changes struct {
	LastMessage  bool
	Timestamp    bool
	Unread       bool
	Participants bool
	GroupName    bool
	GroupIcon    bool
	Admin        bool
}

// Any reports whether at least one field changed.
func (c Changes) Any() bool {
	return c.LastMessage || c.Timestamp || c.Unread || c.Participants ||
		c.GroupName || c.GroupIcon || c.Admin
}

// Diff compares two consecutive snapshots of a chat. Unread tracks only the
// local user's counter; other participants' counters are not rendered in the
// list and must not trigger re-sorts. A nil snapshot on either side marks
// every field changed.
func Diff(prev, next *remote.Chat, localUID string) Changes {
	if prev == nil || next == nil {
		return Changes{
			LastMessage:  true,
			Timestamp:    true,
			Unread:       true,
			Participants: true,
			GroupName:    true,
			GroupIcon:    true,
			Admin:        true,
		}
	}
	return Changes{
		LastMessage:  prev.LastMessage != next.LastMessage,
		Timestamp:    prev.LastMessageTimestamp != next.LastMessageTimestamp,
		Unread:       prev.UnreadFor(localUID) != next.UnreadFor(localUID),
		Participants: !sameParticipants(prev.Participants, next.Participants),
		GroupName:    prev.GroupName != next.GroupName,
		GroupIcon:    prev.GroupIcon != next.GroupIcon,
		Admin:        prev.AdminUID != next.AdminUID,
	}
}

func sameParticipants(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for uid, active := range a {
		other, ok := b[uid]
		if !ok || other != active {
			return false
		}
	}
	return true
}
