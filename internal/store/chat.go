package store

import (
	"database/sql"
	"time"
)

// UpsertChat inserts or updates a chat record.
func (db *DB) UpsertChat(c *Chat) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO chats (chat_id, display_name, is_group, group_icon, admin_uid, last_message, last_message_at, unread_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			display_name = excluded.display_name,
			is_group = excluded.is_group,
			group_icon = excluded.group_icon,
			admin_uid = excluded.admin_uid,
			last_message = excluded.last_message,
			last_message_at = excluded.last_message_at,
			unread_count = excluded.unread_count,
			updated_at = excluded.updated_at`,
		c.ChatID, c.DisplayName, c.IsGroup, c.GroupIcon, c.AdminUID, c.LastMessage, c.LastMessageAt, c.UnreadCount, now)
	return err
}

// ListChats returns chats sorted by last message timestamp descending.
// Ties break on chat_id so the ordering is stable across runs.
func (db *DB) ListChats(limit, offset int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT chat_id, display_name, is_group, group_icon, admin_uid, last_message, last_message_at, unread_count
		FROM chats
		ORDER BY last_message_at DESC, chat_id ASC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ChatID, &c.DisplayName, &c.IsGroup, &c.GroupIcon, &c.AdminUID, &c.LastMessage, &c.LastMessageAt, &c.UnreadCount); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat returns a single chat by ID, or nil when absent.
func (db *DB) GetChat(chatID string) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`
		SELECT chat_id, display_name, is_group, group_icon, admin_uid, last_message, last_message_at, unread_count
		FROM chats WHERE chat_id = ?`, chatID).
		Scan(&c.ChatID, &c.DisplayName, &c.IsGroup, &c.GroupIcon, &c.AdminUID, &c.LastMessage, &c.LastMessageAt, &c.UnreadCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteChat removes a chat and its cached messages. Used when the local
// user stops being a participant.
func (db *DB) DeleteChat(chatID string) error {
	if _, err := db.Exec(`DELETE FROM messages WHERE chat_id = ?`, chatID); err != nil {
		return err
	}
	_, err := db.Exec(`DELETE FROM chats WHERE chat_id = ?`, chatID)
	return err
}

// ChatCount returns the total number of cached chats.
func (db *DB) ChatCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&count)
	return count, err
}
