package membership

import (
	"context"
	"errors"
	"testing"

	"github.com/matheus3301/sendme/internal/remote"
	"github.com/matheus3301/sendme/internal/remote/memory"
)

func TestResolve(t *testing.T) {
	participants := map[string]bool{"a": true, "b": true}
	if Resolve(participants, "a") != Member {
		t.Error("a should resolve to Member")
	}
	if Resolve(participants, "z") != NotMember {
		t.Error("z should resolve to NotMember")
	}
	if Resolve(nil, "a") != NotMember {
		t.Error("nil participants should resolve to NotMember")
	}
}

func TestCreateDirect(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	m := NewMutator(s.Chats(), s.Membership(), nil)

	chatID, err := m.CreateDirect(ctx, "a", "b")
	if err != nil {
		t.Fatal(err)
	}

	c, _ := s.Chats().Get(ctx, chatID)
	if len(c.ActiveParticipants()) != 2 {
		t.Fatalf("participants = %v, want exactly a and b", c.Participants)
	}
	if c.UnreadFor("a") != 0 || c.UnreadFor("b") != 0 {
		t.Error("unread counters must start at zero")
	}
	if c.LastMessage != "" {
		t.Errorf("lastMessage = %q, want empty", c.LastMessage)
	}

	for _, uid := range []string{"a", "b"} {
		ids, _ := s.Membership().Chats(ctx, uid)
		if len(ids) != 1 || ids[0] != chatID {
			t.Errorf("membership index for %s = %v, want [%s]", uid, ids, chatID)
		}
	}
}

func TestCreateGroup(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	m := NewMutator(s.Chats(), s.Membership(), nil)

	chatID, err := m.CreateGroup(ctx, "amigos", "", "admin", []string{"x", "y"})
	if err != nil {
		t.Fatal(err)
	}

	c, _ := s.Chats().Get(ctx, chatID)
	if !c.IsGroup || c.AdminUID != "admin" || c.GroupName != "amigos" {
		t.Fatalf("group = %+v", c)
	}
	if len(c.ActiveParticipants()) != 3 {
		t.Errorf("participants = %v, want 3", c.Participants)
	}
	if c.LastMessage != GroupCreatedMessage {
		t.Errorf("lastMessage = %q, want seed message", c.LastMessage)
	}
}

func TestSetGroupNameAndIcon(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	m := NewMutator(s.Chats(), s.Membership(), nil)

	chatID, err := m.CreateGroup(ctx, "amigos", "http://x/old.png", "admin", []string{"x"})
	if err != nil {
		t.Fatal(err)
	}

	if err := m.SetGroupName(ctx, chatID, "mejores amigos"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetGroupIcon(ctx, chatID, "http://x/new.png"); err != nil {
		t.Fatal(err)
	}

	c, _ := s.Chats().Get(ctx, chatID)
	if c.GroupName != "mejores amigos" {
		t.Errorf("groupName = %q, want renamed", c.GroupName)
	}
	if c.GroupIcon != "http://x/new.png" {
		t.Errorf("groupIcon = %q, want replaced", c.GroupIcon)
	}
	// Partial writes must not disturb the rest of the record.
	if c.AdminUID != "admin" || len(c.ActiveParticipants()) != 2 {
		t.Errorf("record disturbed: %+v", c)
	}
}

func TestAdminLeaveHandsOffToOneRemaining(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	m := NewMutator(s.Chats(), s.Membership(), nil)

	chatID, _ := m.CreateGroup(ctx, "g", "", "admin", []string{"x", "y"})

	if err := m.Leave(ctx, chatID, "admin"); err != nil {
		t.Fatal(err)
	}

	c, _ := s.Chats().Get(ctx, chatID)
	if c == nil {
		t.Fatal("group deleted, want it kept with 2 participants")
	}
	if got := len(c.ActiveParticipants()); got != 2 {
		t.Errorf("participants = %d, want 2", got)
	}
	if c.AdminUID != "x" && c.AdminUID != "y" {
		t.Errorf("adminUid = %q, want one of the remaining members", c.AdminUID)
	}
	if _, ok := c.UnreadCount["admin"]; ok {
		t.Error("departing member's unread entry must be removed")
	}
}

func TestAdminHandOffDeterministicWithPicker(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	m := NewMutator(s.Chats(), s.Membership(), nil)
	m.SetPicker(func(n int) int { return 0 }) // lowest uid

	chatID, _ := m.CreateGroup(ctx, "g", "", "admin", []string{"x", "y"})
	if err := m.Leave(ctx, chatID, "admin"); err != nil {
		t.Fatal(err)
	}

	c, _ := s.Chats().Get(ctx, chatID)
	if c.AdminUID != "x" {
		t.Errorf("adminUid = %q, want x (picker index 0 over sorted remaining)", c.AdminUID)
	}
}

func TestLastParticipantLeavingDeletesChat(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	m := NewMutator(s.Chats(), s.Membership(), nil)

	chatID, _ := m.CreateGroup(ctx, "g", "", "admin", nil)

	if err := m.Leave(ctx, chatID, "admin"); err != nil {
		t.Fatal(err)
	}

	c, _ := s.Chats().Get(ctx, chatID)
	if c != nil {
		t.Fatalf("chat = %+v, want deleted rather than adminless/empty", c)
	}
}

func TestRemoveIdempotent(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	m := NewMutator(s.Chats(), s.Membership(), nil)

	chatID, _ := m.CreateGroup(ctx, "g", "", "admin", []string{"x"})

	if err := m.Remove(ctx, chatID, "x"); err != nil {
		t.Fatal(err)
	}
	// Second removal of the same uid must be a no-op.
	if err := m.Remove(ctx, chatID, "x"); err != nil {
		t.Fatal(err)
	}

	c, _ := s.Chats().Get(ctx, chatID)
	if c == nil || len(c.ActiveParticipants()) != 1 {
		t.Fatalf("chat = %+v, want admin still present", c)
	}
}

func TestKickRequiresAdmin(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	m := NewMutator(s.Chats(), s.Membership(), nil)

	chatID, _ := m.CreateGroup(ctx, "g", "", "admin", []string{"x", "y"})

	err := m.Kick(ctx, chatID, "x", "y")
	if !errors.Is(err, remote.ErrPermissionDenied) {
		t.Errorf("err = %v, want ErrPermissionDenied", err)
	}

	if err := m.Kick(ctx, chatID, "admin", "y"); err != nil {
		t.Fatal(err)
	}
	c, _ := s.Chats().Get(ctx, chatID)
	if c.HasParticipant("y") {
		t.Error("y should have been removed")
	}
	ids, _ := s.Membership().Chats(ctx, "y")
	if len(ids) != 0 {
		t.Errorf("membership index for y = %v, want empty", ids)
	}
}

func TestAddParticipant(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	m := NewMutator(s.Chats(), s.Membership(), nil)

	chatID, _ := m.CreateGroup(ctx, "g", "", "admin", []string{"x"})
	if err := m.AddParticipant(ctx, chatID, "z"); err != nil {
		t.Fatal(err)
	}

	c, _ := s.Chats().Get(ctx, chatID)
	if !c.HasParticipant("z") || c.UnreadFor("z") != 0 {
		t.Errorf("chat = %+v, want z active with zero unread", c)
	}
}
