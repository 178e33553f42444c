package store

// Chat represents a cached chat entry.
type Chat struct {
	ChatID        string
	DisplayName   string
	IsGroup       bool
	GroupIcon     string
	AdminUID      string
	LastMessage   string
	LastMessageAt int64
	UnreadCount   int
}

// Contact represents a cached profile.
type Contact struct {
	UID      string
	Username string
	Phone    string
	ImageURL string
}

// Message represents a cached message.
type Message struct {
	ID        int64
	ChatID    string
	MsgID     string
	SenderUID string
	Content   string
	ImageURL  string
	SendState string // received, pending, confirmed, failed
	Timestamp int64
}

// OutboxEntry represents a pending outgoing message.
type OutboxEntry struct {
	ID           int64
	ClientMsgID  string
	ChatID       string
	Content      string
	ImageURL     string
	Status       string // queued, sending, sent, failed
	ErrorMessage string
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
