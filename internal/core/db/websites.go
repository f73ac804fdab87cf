package db

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Pagination bounds for ListWebsites
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// ValidateWebsiteURL requires an absolute http or https URL with a host.
func ValidateWebsiteURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("%w: empty URL", ErrInvalidURL)
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

const websiteSelect = `
	SELECT w.id, w.title, w.url, w.description, w.category, w.favicon, w.thumbnail,
	       w.creator_id, u.nickname, u.avatar, w.views, w.is_public, w.created_at, w.updated_at
	FROM websites w
	JOIN users u ON u.id = w.creator_id`

func scanWebsite(row rowScanner) (Website, error) {
	var w Website
	var favicon, thumbnail sql.NullString
	err := row.Scan(
		&w.ID, &w.Title, &w.URL, &w.Description, &w.Category, &favicon, &thumbnail,
		&w.Creator.ID, &w.Creator.Nickname, &w.Creator.Avatar, &w.Views, &w.IsPublic,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return Website{}, err
	}
	w.Favicon = favicon.String
	w.Thumbnail = thumbnail.String
	w.Tags = []string{}
	w.Likes = []int64{}
	return w, nil
}

// normalizeTags trims tags and drops blanks and duplicates, keeping order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// urlTaken reports whether a website other than exceptID uses rawURL.
func (db *DB) urlTaken(rawURL string, exceptID int64) (bool, error) {
	var exists bool
	err := db.db.QueryRow(`SELECT EXISTS (SELECT 1 FROM websites WHERE url = ? AND id != ?)`, rawURL, exceptID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check website URL: %w", err)
	}
	return exists, nil
}

// CreateWebsite inserts w owned by w.Creator.ID and returns the stored row.
// Emits a WebsiteCreatedEvent after a successful insert.
func (db *DB) CreateWebsite(w Website) (Website, error) {
	w.Title = strings.TrimSpace(w.Title)
	w.Category = strings.TrimSpace(w.Category)
	w.URL = strings.TrimSpace(w.URL)
	if err := ValidateWebsiteURL(w.URL); err != nil {
		return Website{}, err
	}
	if w.Title == "" {
		return Website{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if w.Category == "" {
		return Website{}, fmt.Errorf("%w: category is required", ErrInvalidInput)
	}
	if w.Creator.ID <= 0 {
		return Website{}, fmt.Errorf("%w: creator is required", ErrInvalidInput)
	}

	taken, err := db.urlTaken(w.URL, 0)
	if err != nil {
		return Website{}, err
	}
	if taken {
		return Website{}, ErrDuplicateURL
	}

	tx, err := db.db.Begin()
	if err != nil {
		return Website{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	now := time.Now().UTC()
	res, err := tx.Exec(`
		INSERT INTO websites (title, url, description, category, creator_id, is_public, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, w.Title, w.URL, strings.TrimSpace(w.Description), w.Category, w.Creator.ID, w.IsPublic, now, now)
	if err != nil {
		_ = tx.Rollback()
		if isUniqueViolation(err) {
			return Website{}, ErrDuplicateURL
		}
		return Website{}, fmt.Errorf("failed to create website: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return Website{}, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	if err := replaceTags(tx, id, w.Tags); err != nil {
		_ = tx.Rollback()
		return Website{}, err
	}
	if err := tx.Commit(); err != nil {
		return Website{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	created, err := db.GetWebsite(id)
	if err != nil {
		return Website{}, err
	}
	db.emit(WebsiteCreatedEvent{Website: created})
	return created, nil
}

func replaceTags(tx *sql.Tx, websiteID int64, tags []string) error {
	if _, err := tx.Exec(`DELETE FROM website_tags WHERE website_id = ?`, websiteID); err != nil {
		return fmt.Errorf("failed to clear tags: %w", err)
	}
	for _, tag := range normalizeTags(tags) {
		if _, err := tx.Exec(`INSERT INTO website_tags (website_id, tag) VALUES (?, ?)`, websiteID, tag); err != nil {
			return fmt.Errorf("failed to add tag: %w", err)
		}
	}
	return nil
}

func (db *DB) GetWebsite(id int64) (Website, error) {
	w, err := scanWebsite(db.db.QueryRow(websiteSelect+` WHERE w.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Website{}, fmt.Errorf("website %d: %w", id, ErrNotFound)
		}
		return Website{}, fmt.Errorf("failed to get website: %w", err)
	}
	list := []Website{w}
	if err := db.loadRelations(list); err != nil {
		return Website{}, err
	}
	return list[0], nil
}

// GetWebsiteByURL looks a website up by its exact URL.
func (db *DB) GetWebsiteByURL(rawURL string) (Website, error) {
	w, err := scanWebsite(db.db.QueryRow(websiteSelect+` WHERE w.url = ?`, rawURL))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Website{}, fmt.Errorf("website %q: %w", rawURL, ErrNotFound)
		}
		return Website{}, fmt.Errorf("failed to get website: %w", err)
	}
	list := []Website{w}
	if err := db.loadRelations(list); err != nil {
		return Website{}, err
	}
	return list[0], nil
}

// escapeLike escapes LIKE wildcards for use with ESCAPE '\'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ListWebsites returns one page of websites, newest first.
func (db *DB) ListWebsites(q WebsiteQuery) (WebsitePage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}

	var where []string
	var args []any
	if !q.IncludePrivate {
		where = append(where, "w.is_public = 1")
	}
	if c := strings.TrimSpace(q.Category); c != "" {
		where = append(where, "w.category = ?")
		args = append(args, c)
	}
	if t := strings.TrimSpace(q.Tag); t != "" {
		where = append(where, "EXISTS (SELECT 1 FROM website_tags t WHERE t.website_id = w.id AND t.tag = ?)")
		args = append(args, t)
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		pattern := "%" + escapeLike(s) + "%"
		where = append(where, `(w.title LIKE ? ESCAPE '\' OR w.description LIKE ? ESCAPE '\'
			OR EXISTS (SELECT 1 FROM website_tags t WHERE t.website_id = w.id AND t.tag LIKE ? ESCAPE '\'))`)
		args = append(args, pattern, pattern, pattern)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	page := WebsitePage{Page: q.Page, Limit: q.Limit, Websites: []Website{}}
	if err := db.db.QueryRow(`SELECT COUNT(*) FROM websites w`+clause, args...).Scan(&page.Total); err != nil {
		return WebsitePage{}, fmt.Errorf("failed to count websites: %w", err)
	}
	page.Pages = int(math.Ceil(float64(page.Total) / float64(q.Limit)))
	if page.Total == 0 {
		return page, nil
	}

	query := websiteSelect + clause + ` ORDER BY w.created_at DESC, w.id DESC LIMIT ? OFFSET ?`
	websites, err := db.queryWebsites(query, append(args, q.Limit, (q.Page-1)*q.Limit)...)
	if err != nil {
		return WebsitePage{}, err
	}
	page.Websites = websites
	return page, nil
}

// ListWebsitesForRefresh returns websites in ID order, optionally only those
// missing a favicon or thumbnail. limit <= 0 means all.
func (db *DB) ListWebsitesForRefresh(limit int, onlyMissing bool) ([]Website, error) {
	query := websiteSelect
	if onlyMissing {
		query += ` WHERE w.favicon IS NULL OR w.thumbnail IS NULL`
	}
	query += ` ORDER BY w.id`
	if limit > 0 {
		return db.queryWebsites(query+` LIMIT ?`, limit)
	}
	return db.queryWebsites(query)
}

// queryWebsites runs query and loads tags and likes. Rows are fully read and
// closed before the relation queries run.
func (db *DB) queryWebsites(query string, args ...any) ([]Website, error) {
	rows, err := db.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list websites: %w", err)
	}
	out := []Website{}
	for rows.Next() {
		w, err := scanWebsite(rows)
		if err != nil {
			closeRows(rows)
			return nil, fmt.Errorf("failed to scan website: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		closeRows(rows)
		return nil, fmt.Errorf("failed to list websites: %w", err)
	}
	closeRows(rows)

	if err := db.loadRelations(out); err != nil {
		return nil, err
	}
	return out, nil
}

// loadRelations fills Tags and Likes for websites in place.
func (db *DB) loadRelations(websites []Website) error {
	if len(websites) == 0 {
		return nil
	}
	index := make(map[int64]int, len(websites))
	ids := make([]any, 0, len(websites))
	for i, w := range websites {
		index[w.ID] = i
		ids = append(ids, w.ID)
	}
	in := placeholders(len(ids))

	tagRows, err := db.db.Query(`SELECT website_id, tag FROM website_tags WHERE website_id IN (`+in+`) ORDER BY rowid`, ids...)
	if err != nil {
		return fmt.Errorf("failed to load tags: %w", err)
	}
	for tagRows.Next() {
		var id int64
		var tag string
		if err := tagRows.Scan(&id, &tag); err != nil {
			closeRows(tagRows)
			return fmt.Errorf("failed to scan tag: %w", err)
		}
		websites[index[id]].Tags = append(websites[index[id]].Tags, tag)
	}
	closeRows(tagRows)

	likeRows, err := db.db.Query(`SELECT website_id, user_id FROM website_likes WHERE website_id IN (`+in+`) ORDER BY created_at, user_id`, ids...)
	if err != nil {
		return fmt.Errorf("failed to load likes: %w", err)
	}
	for likeRows.Next() {
		var id, userID int64
		if err := likeRows.Scan(&id, &userID); err != nil {
			closeRows(likeRows)
			return fmt.Errorf("failed to scan like: %w", err)
		}
		websites[index[id]].Likes = append(websites[index[id]].Likes, userID)
	}
	closeRows(likeRows)
	return nil
}

// UpdateWebsite applies upd to the website with id and returns the result.
// Emits a WebsiteUpdatedEvent with URLChanged set when the URL was replaced.
func (db *DB) UpdateWebsite(id int64, upd WebsiteUpdate) (Website, error) {
	current, err := db.GetWebsite(id)
	if err != nil {
		return Website{}, err
	}

	next := current
	if v := trimmed(upd.Title); v != "" {
		next.Title = v
	}
	if v := trimmed(upd.Description); v != "" {
		next.Description = v
	}
	if v := trimmed(upd.Category); v != "" {
		next.Category = v
	}
	if upd.IsPublic != nil {
		next.IsPublic = *upd.IsPublic
	}

	urlChanged := false
	if v := trimmed(upd.URL); v != "" && v != current.URL {
		if err := ValidateWebsiteURL(v); err != nil {
			return Website{}, err
		}
		taken, err := db.urlTaken(v, id)
		if err != nil {
			return Website{}, err
		}
		if taken {
			return Website{}, ErrDuplicateURL
		}
		next.URL = v
		urlChanged = true
	}

	tx, err := db.db.Begin()
	if err != nil {
		return Website{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	_, err = tx.Exec(`
		UPDATE websites
		SET title = ?, url = ?, description = ?, category = ?, is_public = ?, updated_at = ?
		WHERE id = ?
	`, next.Title, next.URL, next.Description, next.Category, next.IsPublic, time.Now().UTC(), id)
	if err != nil {
		_ = tx.Rollback()
		if isUniqueViolation(err) {
			return Website{}, ErrDuplicateURL
		}
		return Website{}, fmt.Errorf("failed to update website: %w", err)
	}
	if upd.Tags != nil {
		if err := replaceTags(tx, id, *upd.Tags); err != nil {
			_ = tx.Rollback()
			return Website{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Website{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	updated, err := db.GetWebsite(id)
	if err != nil {
		return Website{}, err
	}
	db.emit(WebsiteUpdatedEvent{Website: updated, URLChanged: urlChanged})
	return updated, nil
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// DeleteWebsite removes a website with its tags, likes, collections and comments.
// Emits a WebsiteDeletedEvent after successful deletion.
func (db *DB) DeleteWebsite(id int64) error {
	w, err := db.GetWebsite(id)
	if err != nil {
		return err
	}

	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for _, stmt := range []string{
		`DELETE FROM comments WHERE website_id = ?`,
		`DELETE FROM website_likes WHERE website_id = ?`,
		`DELETE FROM user_collections WHERE website_id = ?`,
		`DELETE FROM website_tags WHERE website_id = ?`,
	} {
		if _, err := tx.Exec(stmt, id); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to delete website relations: %w", err)
		}
	}
	res, err := tx.Exec(`DELETE FROM websites WHERE id = ?`, id)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to delete website: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to determine rows affected: %w", err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		return fmt.Errorf("website %d: %w", id, ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	db.emit(WebsiteDeletedEvent{Website: w})
	return nil
}

// IncrementViews adds one to the website's view counter.
func (db *DB) IncrementViews(id int64) error {
	res, err := db.db.Exec(`UPDATE websites SET views = views + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to increment views: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to determine rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("website %d: %w", id, ErrNotFound)
	}
	return nil
}
