package models

import "time"

// Source identifies the platform a saved URL belongs to, detected from the
// URL's shape. Unrecognized URLs carry an empty Source.
type Source string

const (
	SourceFacebook  Source = "facebook"
	SourceInstagram Source = "instagram"
	SourceThreads   Source = "threads"
	SourceYouTube   Source = "youtube"
)

// KnownSources lists every recognized platform.
var KnownSources = []Source{SourceFacebook, SourceInstagram, SourceThreads, SourceYouTube}

// Valid reports whether s is one of the recognized platforms.
func (s Source) Valid() bool {
	for _, k := range KnownSources {
		if s == k {
			return true
		}
	}
	return false
}

// Metadata holds the enrichment data attached to a saved link. Image is a
// storage key produced by the image archiver, never a raw external URL.
type Metadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
	Source      Source   `json:"source,omitempty"`
	Tags        []string `json:"tags"`
}

// Link is the canonical saved-URL record.
type Link struct {
	ID        string     `json:"id"`
	URL       string     `json:"url"`
	Metadata  Metadata   `json:"metadata"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// SortOrder controls listing direction.
type SortOrder string

const (
	OrderDesc SortOrder = "desc"
	OrderAsc  SortOrder = "asc"
)

// ListParams are the inputs to cursor-based link listing.
type ListParams struct {
	Limit  int       // 1-100, default 50
	Cursor string    // id of the last record of the previous page
	SortBy string    // "createdAt" (default) or "title"
	Order  SortOrder // desc (default) or asc
	Search string    // case-insensitive substring over title/description/url
	Source Source    // exact source filter
	Tags   []string  // match if any tag intersects
}

// Pagination is the envelope describing a listed page.
type Pagination struct {
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
	Count      int    `json:"count"`
}

// Page is one page of links plus its pagination envelope.
type Page struct {
	Data       []Link     `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// User is an authenticated frontend user, created on first Google login.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Picture     string    `json:"picture"`
	LastLoginAt time.Time `json:"last_login_at"`
	CreatedAt   time.Time `json:"created_at"`
}
