package db

import "time"

type User struct {
	ID       int64
	OpenID   string
	Nickname string
	Avatar   string
	Email    string
	// CollectionCount is only filled by GetUser.
	CollectionCount int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UserRef is the public part of a user embedded in websites and comments.
type UserRef struct {
	ID       int64
	Nickname string
	Avatar   string
}

type Website struct {
	ID          int64
	Title       string
	URL         string
	Description string
	Category    string
	Tags        []string
	// Favicon and Thumbnail are public image paths, empty when absent.
	Favicon   string
	Thumbnail string
	Creator   UserRef
	// Likes holds the IDs of users who liked the website.
	Likes     []int64
	Views     int64
	IsPublic  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WebsiteUpdate is a partial update. Nil fields are left unchanged, and so are
// empty title, URL, description and category values.
type WebsiteUpdate struct {
	Title       *string
	URL         *string
	Description *string
	Category    *string
	Tags        *[]string
	IsPublic    *bool
}

// WebsiteQuery filters ListWebsites. Page starts at 1.
type WebsiteQuery struct {
	Category string
	Tag      string
	Search   string
	Page     int
	Limit    int
	// IncludePrivate also returns websites that are not public.
	IncludePrivate bool
}

// WebsitePage is one page of ListWebsites results.
type WebsitePage struct {
	Websites []Website
	Total    int
	Page     int
	Limit    int
	Pages    int
}

type Comment struct {
	ID        int64
	WebsiteID int64
	Content   string
	Author    UserRef
	CreatedAt time.Time
	UpdatedAt time.Time
}
