package linkeeper

import "errors"

// Typed failures crossing the use-case boundary. Enrichment failures never
// surface as errors; they degrade to empty metadata fields.
var (
	// ErrInvalidURL means the submitted URL is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid url")

	// ErrNotFound means the referenced record does not exist or is deleted.
	ErrNotFound = errors.New("link not found")

	// ErrDuplicateURL means an insert collided with an existing non-deleted
	// record for the same URL. AddLink treats it as "already saved" and
	// falls back to the update path.
	ErrDuplicateURL = errors.New("url already exists")

	// ErrInvalidCursor means a pagination cursor could not be resolved.
	ErrInvalidCursor = errors.New("invalid cursor format")
)
