package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	linkeeper "github.com/linkeeper/linkeeper"
	"github.com/linkeeper/linkeeper/models"
)

// UpsertUser records a login: the first login for an email creates the
// user, later logins refresh profile fields and the login timestamp.
func (db *DB) UpsertUser(ctx context.Context, email, name, picture string) (*models.User, error) {
	now := time.Now().UTC()

	query := `
		INSERT INTO users (id, email, name, picture, last_login_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (email) DO UPDATE SET
			name = EXCLUDED.name,
			picture = EXCLUDED.picture,
			last_login_at = EXCLUDED.last_login_at
		RETURNING id, email, name, picture, last_login_at, created_at
	`

	var user models.User
	err := db.conn.QueryRowContext(
		ctx,
		query,
		uuid.New().String(),
		email,
		name,
		picture,
		now,
	).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Picture,
		&user.LastLoginAt,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return &user, nil
}

// FindUserByEmail returns the user for email. ErrNotFound when no such
// user exists.
func (db *DB) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := "SELECT id, email, name, picture, last_login_at, created_at FROM users WHERE email = $1"

	var user models.User
	err := db.conn.QueryRowContext(ctx, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Picture,
		&user.LastLoginAt,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", linkeeper.ErrNotFound, email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return &user, nil
}
