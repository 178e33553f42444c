package dynamo

import (
	"fmt"

	"github.com/matheus3301/sendme/internal/remote"
)

type profileRecord struct {
	UID      string `dynamodbav:"uid"`
	Phone    string `dynamodbav:"phone"`
	Email    string `dynamodbav:"email"`
	Username string `dynamodbav:"username"`
	Status   string `dynamodbav:"status"`
	ImageURL string `dynamodbav:"imageUrl"`
}

func (r profileRecord) toProfile() remote.Profile {
	return remote.Profile{
		UID:      r.UID,
		Phone:    r.Phone,
		Email:    r.Email,
		Username: r.Username,
		Status:   r.Status,
		ImageURL: r.ImageURL,
	}
}

func fromProfile(p *remote.Profile) profileRecord {
	return profileRecord{
		UID:      p.UID,
		Phone:    p.Phone,
		Email:    p.Email,
		Username: p.Username,
		Status:   p.Status,
		ImageURL: p.ImageURL,
	}
}

type chatRecord struct {
	ChatID               string          `dynamodbav:"chatId"`
	Participants         map[string]bool `dynamodbav:"participants"`
	IsGroup              bool            `dynamodbav:"isGroup"`
	LastMessage          string          `dynamodbav:"lastMessage"`
	LastMessageTimestamp int64           `dynamodbav:"lastMessageTimestamp"`
	UnreadCount          map[string]int  `dynamodbav:"unreadCount"`
	GroupName            string          `dynamodbav:"groupName"`
	GroupIcon            string          `dynamodbav:"groupIcon"`
	AdminUID             string          `dynamodbav:"adminUid"`
}

func (r chatRecord) toChat() *remote.Chat {
	c := &remote.Chat{
		ID:                   r.ChatID,
		Participants:         r.Participants,
		IsGroup:              r.IsGroup,
		LastMessage:          r.LastMessage,
		LastMessageTimestamp: r.LastMessageTimestamp,
		UnreadCount:          r.UnreadCount,
		GroupName:            r.GroupName,
		GroupIcon:            r.GroupIcon,
		AdminUID:             r.AdminUID,
	}
	if c.Participants == nil {
		c.Participants = map[string]bool{}
	}
	if c.UnreadCount == nil {
		c.UnreadCount = map[string]int{}
	}
	return c
}

func fromChat(c *remote.Chat) chatRecord {
	r := chatRecord{
		ChatID:               c.ID,
		Participants:         c.Participants,
		IsGroup:              c.IsGroup,
		LastMessage:          c.LastMessage,
		LastMessageTimestamp: c.LastMessageTimestamp,
		UnreadCount:          c.UnreadCount,
		GroupName:            c.GroupName,
		GroupIcon:            c.GroupIcon,
		AdminUID:             c.AdminUID,
	}
	if r.Participants == nil {
		r.Participants = map[string]bool{}
	}
	if r.UnreadCount == nil {
		r.UnreadCount = map[string]int{}
	}
	return r
}

// messageRecord rows are keyed by chatId plus a sort attribute combining the
// timestamp and the message id, so a single Query returns the timeline in
// order.
type messageRecord struct {
	ChatID    string `dynamodbav:"chatId"`
	Sort      string `dynamodbav:"sort"`
	MsgID     string `dynamodbav:"msgId"`
	Sender    string `dynamodbav:"sender"`
	Content   string `dynamodbav:"content"`
	ImageURL  string `dynamodbav:"imageUrl"`
	Timestamp int64  `dynamodbav:"timestamp"`
}

func (r messageRecord) toMessage() remote.Message {
	return remote.Message{
		ID:        r.MsgID,
		Sender:    r.Sender,
		Content:   r.Content,
		ImageURL:  r.ImageURL,
		Timestamp: r.Timestamp,
	}
}

func fromMessage(chatID string, m *remote.Message) messageRecord {
	return messageRecord{
		ChatID:    chatID,
		Sort:      messageSortKey(m.Timestamp, m.ID),
		MsgID:     m.ID,
		Sender:    m.Sender,
		Content:   m.Content,
		ImageURL:  m.ImageURL,
		Timestamp: m.Timestamp,
	}
}

func messageSortKey(ts int64, id string) string {
	return fmt.Sprintf("%020d#%s", ts, id)
}

type membershipRecord struct {
	UID    string `dynamodbav:"uid"`
	ChatID string `dynamodbav:"chatId"`
}
