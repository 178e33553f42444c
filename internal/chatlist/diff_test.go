package chatlist

import (
	"testing"

	"github.com/matheus3301/sendme/internal/remote"
)

func baseChat() *remote.Chat {
	return &remote.Chat{
		ID:                   "c1",
		Participants:         map[string]bool{"a": true, "b": true},
		IsGroup:              true,
		LastMessage:          "hola",
		LastMessageTimestamp: 1000,
		UnreadCount:          map[string]int{"a": 0, "b": 2},
		GroupName:            "amigos",
		GroupIcon:            "icon.png",
		AdminUID:             "a",
	}
}

func TestDiffFieldCoverage(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*remote.Chat)
		check  func(Changes) bool
	}{
		{"last message", func(c *remote.Chat) { c.LastMessage = "adios" }, func(d Changes) bool { return d.LastMessage }},
		{"timestamp", func(c *remote.Chat) { c.LastMessageTimestamp = 2000 }, func(d Changes) bool { return d.Timestamp }},
		{"own unread", func(c *remote.Chat) { c.UnreadCount["a"] = 5 }, func(d Changes) bool { return d.Unread }},
		{"participant added", func(c *remote.Chat) { c.Participants["x"] = true }, func(d Changes) bool { return d.Participants }},
		{"participant removed", func(c *remote.Chat) { delete(c.Participants, "b") }, func(d Changes) bool { return d.Participants }},
		{"group name", func(c *remote.Chat) { c.GroupName = "enemigos" }, func(d Changes) bool { return d.GroupName }},
		{"group icon", func(c *remote.Chat) { c.GroupIcon = "new.png" }, func(d Changes) bool { return d.GroupIcon }},
		{"admin", func(c *remote.Chat) { c.AdminUID = "b" }, func(d Changes) bool { return d.Admin }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := baseChat()
			next := baseChat()
			tt.mutate(next)
			d := Diff(prev, next, "a")
			if !d.Any() {
				t.Fatal("Diff reported no change")
			}
			if !tt.check(d) {
				t.Errorf("expected field flagged, got %+v", d)
			}
		})
	}
}

func TestDiffNoChange(t *testing.T) {
	if d := Diff(baseChat(), baseChat(), "a"); d.Any() {
		t.Errorf("identical snapshots diffed as %+v", d)
	}
}

func TestDiffIgnoresOtherUsersUnread(t *testing.T) {
	prev := baseChat()
	next := baseChat()
	next.UnreadCount["b"] = 9

	if d := Diff(prev, next, "a"); d.Unread {
		t.Error("another participant's unread counter flagged as local change")
	}
}

func TestDiffNilSnapshot(t *testing.T) {
	d := Diff(nil, baseChat(), "a")
	if !d.LastMessage || !d.Participants || !d.Unread {
		t.Errorf("nil previous snapshot should mark everything changed, got %+v", d)
	}
}
