package store

import "time"

// UpsertMessage inserts or updates a message (idempotent on chat_id + msg_id).
func (db *DB) UpsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (chat_id, msg_id, sender_uid, content, image_url, send_state, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, msg_id) DO UPDATE SET
			content = excluded.content,
			image_url = excluded.image_url,
			send_state = excluded.send_state`,
		m.ChatID, m.MsgID, m.SenderUID, m.Content, m.ImageURL, m.SendState, m.Timestamp, now)
	return err
}

// SetMessageState updates the send state of a cached message.
func (db *DB) SetMessageState(chatID, msgID, state string) error {
	_, err := db.Exec(`UPDATE messages SET send_state = ? WHERE chat_id = ? AND msg_id = ?`, state, chatID, msgID)
	return err
}

// ListMessages returns messages for a chat in ascending timestamp order,
// with msg_id breaking ties.
func (db *DB) ListMessages(chatID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Query(`
		SELECT id, chat_id, msg_id, sender_uid, content, image_url, send_state, timestamp
		FROM messages
		WHERE chat_id = ?
		ORDER BY timestamp ASC, msg_id ASC
		LIMIT ?`, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.MsgID, &m.SenderUID, &m.Content, &m.ImageURL, &m.SendState, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MessageCount returns the total number of cached messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
