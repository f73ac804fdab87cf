package web

import (
	"time"

	"github.com/hamsternav/hamsternav/internal/core/db"
)

type userRefView struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

type userView struct {
	ID              int64     `json:"id"`
	Nickname        string    `json:"nickname"`
	Avatar          string    `json:"avatar"`
	Email           string    `json:"email,omitempty"`
	CollectionCount int       `json:"collectionCount"`
	CreatedAt       time.Time `json:"createdAt"`
}

type websiteView struct {
	ID          int64       `json:"id"`
	Title       string      `json:"title"`
	URL         string      `json:"url"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Tags        []string    `json:"tags"`
	Favicon     *string     `json:"favicon"`
	Thumbnail   *string     `json:"thumbnail"`
	Creator     userRefView `json:"creator"`
	Likes       []int64     `json:"likes"`
	LikeCount   int         `json:"likeCount"`
	Views       int64       `json:"views"`
	IsPublic    bool        `json:"isPublic"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

type paginationView struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

type commentView struct {
	ID        int64       `json:"id"`
	WebsiteID int64       `json:"websiteId"`
	Content   string      `json:"content"`
	Author    userRefView `json:"author"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// optional renders absent image paths as JSON null.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func newUserRefView(u db.UserRef) userRefView {
	return userRefView{ID: u.ID, Nickname: u.Nickname, Avatar: u.Avatar}
}

func newUserView(u db.User) userView {
	return userView{
		ID:              u.ID,
		Nickname:        u.Nickname,
		Avatar:          u.Avatar,
		Email:           u.Email,
		CollectionCount: u.CollectionCount,
		CreatedAt:       u.CreatedAt,
	}
}

func newWebsiteView(w db.Website) websiteView {
	tags := w.Tags
	if tags == nil {
		tags = []string{}
	}
	likes := w.Likes
	if likes == nil {
		likes = []int64{}
	}
	return websiteView{
		ID:          w.ID,
		Title:       w.Title,
		URL:         w.URL,
		Description: w.Description,
		Category:    w.Category,
		Tags:        tags,
		Favicon:     optional(w.Favicon),
		Thumbnail:   optional(w.Thumbnail),
		Creator:     newUserRefView(w.Creator),
		Likes:       likes,
		LikeCount:   len(likes),
		Views:       w.Views,
		IsPublic:    w.IsPublic,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

func newWebsiteViews(websites []db.Website) []websiteView {
	out := make([]websiteView, 0, len(websites))
	for _, w := range websites {
		out = append(out, newWebsiteView(w))
	}
	return out
}

func newCommentView(c db.Comment) commentView {
	return commentView{
		ID:        c.ID,
		WebsiteID: c.WebsiteID,
		Content:   c.Content,
		Author:    newUserRefView(c.Author),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
