package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultWeChatNickname is used when WeChat does not return a nickname.
const DefaultWeChatNickname = "微信用户"

const userColumns = `id, openid, nickname, avatar, email, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	var openID, email sql.NullString
	if err := row.Scan(&u.ID, &openID, &u.Nickname, &u.Avatar, &email, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, err
	}
	u.OpenID = openID.String
	u.Email = email.String
	return u, nil
}

// GetUser returns the user with id, including the size of their collection.
func (db *DB) GetUser(id int64) (User, error) {
	u, err := scanUser(db.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
		}
		return User{}, fmt.Errorf("failed to get user: %w", err)
	}
	if err := db.db.QueryRow(`SELECT COUNT(*) FROM user_collections WHERE user_id = ?`, id).Scan(&u.CollectionCount); err != nil {
		return User{}, fmt.Errorf("failed to count collection: %w", err)
	}
	return u, nil
}

// FindOrCreateWeChatUser returns the user bound to openID, creating it with
// nickname and avatar on first login. created reports whether a row was inserted.
func (db *DB) FindOrCreateWeChatUser(openID, nickname, avatar string) (user User, created bool, err error) {
	openID = strings.TrimSpace(openID)
	if openID == "" {
		return User{}, false, fmt.Errorf("%w: openid is required", ErrInvalidInput)
	}

	u, err := scanUser(db.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE openid = ?`, openID))
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, false, fmt.Errorf("failed to find user: %w", err)
	}

	if strings.TrimSpace(nickname) == "" {
		nickname = DefaultWeChatNickname
	}
	id, err := db.insertUser(openID, nickname, avatar, "")
	if err != nil {
		return User{}, false, err
	}
	u, err = db.GetUser(id)
	return u, err == nil, err
}

// EnsureUser returns the first user named nickname, creating it when missing.
// It is used for the owner of imported websites.
func (db *DB) EnsureUser(nickname, avatar, email string) (User, error) {
	if strings.TrimSpace(nickname) == "" {
		return User{}, fmt.Errorf("%w: nickname is required", ErrInvalidInput)
	}

	u, err := scanUser(db.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE nickname = ? ORDER BY id LIMIT 1`, nickname))
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("failed to find user: %w", err)
	}

	id, err := db.insertUser("", nickname, avatar, email)
	if err != nil {
		return User{}, err
	}
	return db.GetUser(id)
}

func (db *DB) insertUser(openID, nickname, avatar, email string) (int64, error) {
	now := time.Now().UTC()
	res, err := db.db.Exec(
		`INSERT INTO users (openid, nickname, avatar, email, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		nullString(openID), nickname, avatar, nullString(email), now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}
