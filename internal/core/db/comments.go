package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const commentSelect = `
	SELECT c.id, c.website_id, c.content, c.user_id, u.nickname, u.avatar, c.created_at, c.updated_at
	FROM comments c
	JOIN users u ON u.id = c.user_id`

func scanComment(row rowScanner) (Comment, error) {
	var c Comment
	err := row.Scan(&c.ID, &c.WebsiteID, &c.Content, &c.Author.ID, &c.Author.Nickname, &c.Author.Avatar, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// AddComment stores a comment by userID on websiteID.
func (db *DB) AddComment(websiteID, userID int64, content string) (Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Comment{}, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	if err := db.websiteExists(websiteID); err != nil {
		return Comment{}, err
	}

	now := time.Now().UTC()
	res, err := db.db.Exec(
		`INSERT INTO comments (website_id, user_id, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		websiteID, userID, content, now, now,
	)
	if err != nil {
		return Comment{}, fmt.Errorf("failed to add comment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Comment{}, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return db.GetComment(id)
}

func (db *DB) GetComment(id int64) (Comment, error) {
	c, err := scanComment(db.db.QueryRow(commentSelect+` WHERE c.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Comment{}, fmt.Errorf("comment %d: %w", id, ErrNotFound)
		}
		return Comment{}, fmt.Errorf("failed to get comment: %w", err)
	}
	return c, nil
}

// ListComments returns the comments on a website, newest first.
func (db *DB) ListComments(websiteID int64) ([]Comment, error) {
	if err := db.websiteExists(websiteID); err != nil {
		return nil, err
	}
	rows, err := db.db.Query(commentSelect+` WHERE c.website_id = ? ORDER BY c.created_at DESC, c.id DESC`, websiteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer closeRows(rows)

	out := []Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteComment deletes a comment on websiteID written by userID.
// It returns ErrForbidden when the comment belongs to someone else.
func (db *DB) DeleteComment(websiteID, commentID, userID int64) error {
	c, err := db.GetComment(commentID)
	if err != nil {
		return err
	}
	if c.WebsiteID != websiteID {
		return fmt.Errorf("comment %d: %w", commentID, ErrNotFound)
	}
	if c.Author.ID != userID {
		return ErrForbidden
	}
	if _, err := db.db.Exec(`DELETE FROM comments WHERE id = ?`, commentID); err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return nil
}
