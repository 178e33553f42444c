package remote

import (
	"context"

	"github.com/matheus3301/sendme/internal/stream"
)

// ProfileStore is the user-profile document store, keyed by uid.
type ProfileStore interface {
	// Get returns the profile for uid, or (nil, nil) when absent.
	Get(ctx context.Context, uid string) (*Profile, error)
	// Put writes the full profile record.
	Put(ctx context.Context, p *Profile) error
	// FindByPhone returns the profile with the given phone, or (nil, nil).
	FindByPhone(ctx context.Context, phone string) (*Profile, error)
	// FindByEmail returns the profile with the given email, or (nil, nil).
	FindByEmail(ctx context.Context, email string) (*Profile, error)
	// List returns all profiles. Used to offer contacts for new chats.
	List(ctx context.Context) ([]Profile, error)
}

// ChatStore is the chat record store plus per-chat message timelines.
//
// UpdateFields takes slash-separated field paths relative to the chat record
// ("lastMessage", "participants/<uid>", "unreadCount/<uid>"). A nil value
// deletes the field. All paths in one call are applied atomically.
type ChatStore interface {
	// Get returns the chat record, or (nil, nil) when absent.
	Get(ctx context.Context, chatID string) (*Chat, error)
	// Create stores a new chat under a store-generated id and returns it.
	Create(ctx context.Context, c *Chat) (string, error)
	// Delete removes the chat record and its timeline.
	Delete(ctx context.Context, chatID string) error
	// UpdateFields applies a partial, atomic multi-path update.
	UpdateFields(ctx context.Context, chatID string, fields map[string]any) error

	// SetUnread unconditionally sets unreadCount[uid]. Last writer wins.
	SetUnread(ctx context.Context, chatID, uid string, n int) error
	// IncrementUnread atomically adds delta to unreadCount[uid], treating
	// an absent counter as zero. Safe under concurrent senders.
	IncrementUnread(ctx context.Context, chatID, uid string, delta int) error

	// AppendMessage appends m to the chat timeline under m.ID.
	AppendMessage(ctx context.Context, chatID string, m *Message) error
	// Messages returns the full timeline ordered by timestamp ascending.
	Messages(ctx context.Context, chatID string) ([]Message, error)

	// SubscribeChat streams whole-record Changed events for one chat
	// (Removed when it is deleted, Cancelled on stream loss). The caller
	// diffs consecutive snapshots; there are no per-field streams.
	SubscribeChat(chatID string) (<-chan stream.Event[*Chat], *stream.Handle)
	// SubscribeMessages streams Added events for the chat timeline in
	// timestamp order, from the beginning of the timeline. Overlap with a
	// bulk Messages call is expected; callers dedup by message id.
	SubscribeMessages(chatID string) (<-chan stream.Event[Message], *stream.Handle)
}

// MembershipIndex is the per-user set of chat ids the user belongs to
// (the "user-chats" index).
type MembershipIndex interface {
	// Set marks chatID as belonging to uid.
	Set(ctx context.Context, uid, chatID string) error
	// Remove drops chatID from uid's set.
	Remove(ctx context.Context, uid, chatID string) error
	// Chats returns the current chat ids for uid.
	Chats(ctx context.Context, uid string) ([]string, error)
	// Subscribe streams Added/Changed/Removed events keyed by chat id for
	// uid's set, including one Added per existing entry on attach.
	Subscribe(uid string) (<-chan stream.Event[bool], *stream.Handle)
}

// ImageHost uploads image bytes and returns a public URL.
type ImageHost interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

// PushRelay delivers message notifications. Outbound only; the core never
// consumes push traffic.
type PushRelay interface {
	Notify(ctx context.Context, n Notification) error
}
