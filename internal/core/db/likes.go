package db

import (
	"fmt"
	"time"
)

func (db *DB) websiteExists(id int64) error {
	var exists bool
	if err := db.db.QueryRow(`SELECT EXISTS (SELECT 1 FROM websites WHERE id = ?)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check website: %w", err)
	}
	if !exists {
		return fmt.Errorf("website %d: %w", id, ErrNotFound)
	}
	return nil
}

// LikeWebsite records that userID likes websiteID.
// It returns ErrAlreadyLiked if the like already exists.
func (db *DB) LikeWebsite(websiteID, userID int64) error {
	if err := db.websiteExists(websiteID); err != nil {
		return err
	}
	res, err := db.db.Exec(
		`INSERT OR IGNORE INTO website_likes (website_id, user_id, created_at) VALUES (?, ?, ?)`,
		websiteID, userID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to like website: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to determine rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAlreadyLiked
	}
	return nil
}

// UnlikeWebsite removes a like. It returns ErrNotLiked if there was none.
func (db *DB) UnlikeWebsite(websiteID, userID int64) error {
	if err := db.websiteExists(websiteID); err != nil {
		return err
	}
	res, err := db.db.Exec(`DELETE FROM website_likes WHERE website_id = ? AND user_id = ?`, websiteID, userID)
	if err != nil {
		return fmt.Errorf("failed to unlike website: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to determine rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotLiked
	}
	return nil
}
