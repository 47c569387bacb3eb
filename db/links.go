package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	linkeeper "github.com/linkeeper/linkeeper"
	"github.com/linkeeper/linkeeper/models"
)

// defaultPageSize is used when no limit is supplied.
const defaultPageSize = 50

// uniqueViolation is the PostgreSQL error code for unique constraint
// violations.
const uniqueViolation = "23505"

// linkColumns is the scan order shared by every link query.
const linkColumns = "id, url, title, description, image, source, tags, created_at"

// Save inserts a new link record. A collision on the live-URL unique index
// is reported as ErrDuplicateURL.
func (db *DB) Save(ctx context.Context, link *models.Link) error {
	tagsJSON, err := marshalTags(link.Metadata.Tags)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO links (id, url, title, description, image, source, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = db.conn.ExecContext(
		ctx,
		query,
		link.ID,
		link.URL,
		link.Metadata.Title,
		link.Metadata.Description,
		link.Metadata.Image,
		string(link.Metadata.Source),
		tagsJSON,
		link.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", linkeeper.ErrDuplicateURL, link.URL)
		}
		return fmt.Errorf("failed to save link: %w", err)
	}

	return nil
}

// Update replaces the metadata of an existing non-deleted record. Identity
// and creation time are never touched.
func (db *DB) Update(ctx context.Context, link *models.Link) error {
	tagsJSON, err := marshalTags(link.Metadata.Tags)
	if err != nil {
		return err
	}

	query := `
		UPDATE links
		SET title = $1, description = $2, image = $3, source = $4, tags = $5
		WHERE id = $6 AND deleted_at IS NULL
	`

	result, err := db.conn.ExecContext(
		ctx,
		query,
		link.Metadata.Title,
		link.Metadata.Description,
		link.Metadata.Image,
		string(link.Metadata.Source),
		tagsJSON,
		link.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update link: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", linkeeper.ErrNotFound, link.ID)
	}

	return nil
}

// FindByURL returns the live record for url, or (nil, nil) when none
// exists. Soft-deleted records are invisible here, so a deleted URL can be
// saved fresh.
func (db *DB) FindByURL(ctx context.Context, url string) (*models.Link, error) {
	query := fmt.Sprintf("SELECT %s FROM links WHERE url = $1 AND deleted_at IS NULL", linkColumns)

	link, err := scanLink(db.conn.QueryRowContext(ctx, query, url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query link by url: %w", err)
	}
	return link, nil
}

// FindByID returns the live record for id. ErrNotFound when the id is
// unknown or the record is soft-deleted.
func (db *DB) FindByID(ctx context.Context, id string) (*models.Link, error) {
	query := fmt.Sprintf("SELECT %s FROM links WHERE id = $1 AND deleted_at IS NULL", linkColumns)

	link, err := scanLink(db.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", linkeeper.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query link by id: %w", err)
	}
	return link, nil
}

// FindAll returns every live record, newest first.
func (db *DB) FindAll(ctx context.Context) ([]models.Link, error) {
	query := fmt.Sprintf("SELECT %s FROM links WHERE deleted_at IS NULL ORDER BY created_at DESC, id DESC", linkColumns)

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	return collectLinks(rows)
}

// FindWithPagination returns one page of live records. The cursor is the id
// of the last record of the previous page; it is resolved against all rows,
// deleted included, so deleting a record never invalidates a cursor that
// points at it.
func (db *DB) FindWithPagination(ctx context.Context, params models.ListParams) (*models.Page, error) {
	limit := pageLimit(params.Limit)

	var cur *cursorPos
	if params.Cursor != "" {
		pos, err := db.resolveCursor(ctx, params.Cursor)
		if err != nil {
			return nil, err
		}
		cur = pos
	}

	// Fetch one extra row to learn whether another page exists.
	query, args := buildListQuery(params, cur, limit+1)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query links page: %w", err)
	}
	defer rows.Close()

	links, err := collectLinks(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(links) > limit
	if hasMore {
		links = links[:limit]
	}

	page := &models.Page{
		Data: links,
		Pagination: models.Pagination{
			HasMore: hasMore,
			Count:   len(links),
		},
	}
	if hasMore {
		page.Pagination.NextCursor = links[len(links)-1].ID
	}

	return page, nil
}

// SoftDelete marks the record deleted. The row survives so the id keeps
// working as a pagination cursor.
func (db *DB) SoftDelete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(
		ctx,
		"UPDATE links SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL",
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", linkeeper.ErrNotFound, id)
	}

	return nil
}

// pageLimit applies the default page size when the caller supplied none.
func pageLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	return limit
}

// cursorPos is the sort position of the record a cursor points at.
type cursorPos struct {
	createdAt time.Time
	title     string
	id        string
}

// resolveCursor looks up the sort position for a cursor id. Soft-deleted
// rows resolve too. An unknown id is an invalid cursor.
func (db *DB) resolveCursor(ctx context.Context, cursor string) (*cursorPos, error) {
	pos := &cursorPos{id: cursor}
	err := db.conn.QueryRowContext(
		ctx,
		"SELECT created_at, title FROM links WHERE id = $1",
		cursor,
	).Scan(&pos.createdAt, &pos.title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", linkeeper.ErrInvalidCursor, cursor)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cursor: %w", err)
	}
	return pos, nil
}

// sortColumn maps the API sort field to its column. Only createdAt and
// title are sortable; anything else falls back to createdAt.
func sortColumn(sortBy string) string {
	if sortBy == "title" {
		return "title"
	}
	return "created_at"
}

// buildListQuery assembles the page query: live-row filters, optional
// search/source/tags conditions, the cursor row comparison and the compound
// sort with id as tiebreaker.
func buildListQuery(params models.ListParams, cur *cursorPos, limit int) (string, []any) {
	var args []any
	conds := []string{"deleted_at IS NULL"}

	if params.Search != "" {
		args = append(args, "%"+params.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d OR url ILIKE $%d)", n, n, n))
	}

	if params.Source != "" {
		args = append(args, string(params.Source))
		conds = append(conds, fmt.Sprintf("source = $%d", len(args)))
	}

	if len(params.Tags) > 0 {
		args = append(args, pq.Array(params.Tags))
		conds = append(conds, fmt.Sprintf("tags ?| $%d", len(args)))
	}

	col := sortColumn(params.SortBy)

	cmp, dir := "<", "DESC"
	if params.Order == models.OrderAsc {
		cmp, dir = ">", "ASC"
	}

	if cur != nil {
		sortVal := any(cur.createdAt)
		if col == "title" {
			sortVal = cur.title
		}
		args = append(args, sortVal, cur.id)
		conds = append(conds, fmt.Sprintf("(%s, id) %s ($%d, $%d)", col, cmp, len(args)-1, len(args)))
	}

	args = append(args, limit)

	query := fmt.Sprintf(
		"SELECT %s FROM links WHERE %s ORDER BY %s %s, id %s LIMIT $%d",
		linkColumns,
		strings.Join(conds, " AND "),
		col, dir, dir,
		len(args),
	)

	return query, args
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanLink reads one link row in linkColumns order.
func scanLink(row rowScanner) (*models.Link, error) {
	var (
		link     models.Link
		tagsJSON []byte
	)

	err := row.Scan(
		&link.ID,
		&link.URL,
		&link.Metadata.Title,
		&link.Metadata.Description,
		&link.Metadata.Image,
		&link.Metadata.Source,
		&tagsJSON,
		&link.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	link.Metadata.Tags = []string{}
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &link.Metadata.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
		if link.Metadata.Tags == nil {
			link.Metadata.Tags = []string{}
		}
	}

	return &link, nil
}

// collectLinks drains rows into a slice.
func collectLinks(rows *sql.Rows) ([]models.Link, error) {
	links := []models.Link{}
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link row: %w", err)
		}
		links = append(links, *link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return links, nil
}

// marshalTags serializes tags for the JSONB column, normalizing nil to an
// empty array.
func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tags: %w", err)
	}
	return string(data), nil
}
