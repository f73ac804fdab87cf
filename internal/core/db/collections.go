package db

import (
	"fmt"
	"time"
)

// CollectWebsite adds websiteID to the user's collection.
// It returns ErrAlreadyCollected if it is already there.
func (db *DB) CollectWebsite(userID, websiteID int64) error {
	if err := db.websiteExists(websiteID); err != nil {
		return err
	}
	res, err := db.db.Exec(
		`INSERT OR IGNORE INTO user_collections (user_id, website_id, created_at) VALUES (?, ?, ?)`,
		userID, websiteID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to collect website: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to determine rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAlreadyCollected
	}
	return nil
}

// UncollectWebsite removes websiteID from the user's collection.
// It returns ErrNotCollected if it was not collected.
func (db *DB) UncollectWebsite(userID, websiteID int64) error {
	if err := db.websiteExists(websiteID); err != nil {
		return err
	}
	res, err := db.db.Exec(`DELETE FROM user_collections WHERE user_id = ? AND website_id = ?`, userID, websiteID)
	if err != nil {
		return fmt.Errorf("failed to uncollect website: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to determine rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotCollected
	}
	return nil
}

// ListCollection returns the user's collected websites, most recently collected first.
func (db *DB) ListCollection(userID int64) ([]Website, error) {
	return db.queryWebsites(websiteSelect+`
		JOIN user_collections c ON c.website_id = w.id
		WHERE c.user_id = ?
		ORDER BY c.created_at DESC, w.id DESC
	`, userID)
}
