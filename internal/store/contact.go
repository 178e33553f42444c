package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertContact inserts or updates a contact. Empty fields never
// overwrite values already cached.
func (db *DB) UpsertContact(c *Contact) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO contacts (uid, username, phone, image_url, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			username = CASE WHEN excluded.username != '' THEN excluded.username ELSE contacts.username END,
			phone = CASE WHEN excluded.phone != '' THEN excluded.phone ELSE contacts.phone END,
			image_url = CASE WHEN excluded.image_url != '' THEN excluded.image_url ELSE contacts.image_url END,
			updated_at = excluded.updated_at`,
		c.UID, c.Username, c.Phone, c.ImageURL, now)
	return err
}

// BulkUpsertContacts inserts or updates multiple contacts in a single transaction.
func (db *DB) BulkUpsertContacts(contacts []Contact) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, c := range contacts {
		if _, err := tx.Exec(`
			INSERT INTO contacts (uid, username, phone, image_url, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(uid) DO UPDATE SET
				username = CASE WHEN excluded.username != '' THEN excluded.username ELSE contacts.username END,
				phone = CASE WHEN excluded.phone != '' THEN excluded.phone ELSE contacts.phone END,
				image_url = CASE WHEN excluded.image_url != '' THEN excluded.image_url ELSE contacts.image_url END,
				updated_at = excluded.updated_at`,
			c.UID, c.Username, c.Phone, c.ImageURL, now); err != nil {
			return fmt.Errorf("upsert contact %q: %w", c.UID, err)
		}
	}
	return tx.Commit()
}

// GetContact returns a contact by UID, or nil when absent.
func (db *DB) GetContact(uid string) (*Contact, error) {
	var c Contact
	err := db.QueryRow(`SELECT uid, username, phone, image_url FROM contacts WHERE uid = ?`, uid).
		Scan(&c.UID, &c.Username, &c.Phone, &c.ImageURL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
