package db

import (
	"fmt"
	"strings"
)

// SaveWebsiteImages stores new favicon and thumbnail paths. Empty values leave
// the stored path untouched, so a failed fetch never clears a working image.
// Emits a WebsiteImagesSavedEvent when something was written.
func (db *DB) SaveWebsiteImages(id int64, favicon, thumbnail string) error {
	var sets []string
	var args []any
	if favicon != "" {
		sets = append(sets, "favicon = ?")
		args = append(args, favicon)
	}
	if thumbnail != "" {
		sets = append(sets, "thumbnail = ?")
		args = append(args, thumbnail)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	res, err := db.db.Exec(`UPDATE websites SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to save website images: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to determine rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("website %d: %w", id, ErrNotFound)
	}

	db.emit(WebsiteImagesSavedEvent{WebsiteID: id, Favicon: favicon, Thumbnail: thumbnail})
	return nil
}
