// Package remote defines the data model and the collaborator interfaces the
// sync core consumes: profile storage, the chat store, the per-user
// membership index, image hosting and push delivery. Concrete backends live
// in the subpackages memory (reference implementation, used by tests) and
// dynamo/s3host (production).
package remote

// Profile is a user record in the profile store, keyed by UID.
type Profile struct {
	UID      string
	Phone    string
	Email    string
	Username string
	Status   string
	ImageURL string
}

// Chat is a conversation record, either 1:1 or group.
//
// Participants maps uid → active flag so a single participant can be removed
// without rewriting the whole set. For a 1:1 chat it always holds exactly two
// active entries. For a group, AdminUID is one of the active participant keys.
type Chat struct {
	ID                   string
	Participants         map[string]bool
	IsGroup              bool
	LastMessage          string
	LastMessageTimestamp int64
	UnreadCount          map[string]int
	GroupName            string
	GroupIcon            string
	AdminUID             string
}

// HasParticipant reports whether uid is an active participant.
func (c *Chat) HasParticipant(uid string) bool {
	return c != nil && c.Participants[uid]
}

// ActiveParticipants returns the uids of all active participants.
func (c *Chat) ActiveParticipants() []string {
	if c == nil {
		return nil
	}
	uids := make([]string, 0, len(c.Participants))
	for uid, active := range c.Participants {
		if active {
			uids = append(uids, uid)
		}
	}
	return uids
}

// OtherParticipant returns the peer uid of a 1:1 chat, or "" if uid is the
// only participant.
func (c *Chat) OtherParticipant(uid string) string {
	for other, active := range c.Participants {
		if active && other != uid {
			return other
		}
	}
	return ""
}

// UnreadFor returns the unread counter for uid, zero when absent.
func (c *Chat) UnreadFor(uid string) int {
	if c == nil || c.UnreadCount == nil {
		return 0
	}
	return c.UnreadCount[uid]
}

// Clone returns a deep copy. Synchronizers hand out clones so callers can
// never mutate the cached record.
func (c *Chat) Clone() *Chat {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Participants = make(map[string]bool, len(c.Participants))
	for k, v := range c.Participants {
		cp.Participants[k] = v
	}
	cp.UnreadCount = make(map[string]int, len(c.UnreadCount))
	for k, v := range c.UnreadCount {
		cp.UnreadCount[k] = v
	}
	return &cp
}

// Message is one entry in a chat timeline. Content and ImageURL are mutually
// exclusive: exactly one is non-empty. The store-assigned ID doubles as the
// idempotency key for deduplication.
type Message struct {
	ID        string
	Sender    string
	Content   string
	ImageURL  string
	Timestamp int64
}

// IsImage reports whether the message carries an image instead of text.
func (m *Message) IsImage() bool {
	return m.ImageURL != ""
}

// Preview returns the chat-list preview text for the message.
func (m *Message) Preview() string {
	if m.IsImage() {
		return "Imagen"
	}
	return m.Content
}

// Notification is the payload handed to the push relay for one delivered
// message. The core only composes it; delivery is the relay's problem.
type Notification struct {
	Title     string
	Body      string
	ChatID    string
	IsGroup   bool
	Recipient string
}
