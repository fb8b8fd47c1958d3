// ABOUTME: Magic link store methods for single-use sign-in links
// ABOUTME: A link is consumed with one conditional UPDATE so it cannot be used twice

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateMagicLink records an issued link. The ID is the token's jti.
func (s *SQLiteStore) CreateMagicLink(ctx context.Context, link *MagicLink) error {
	link.Email = NormalizeEmail(link.Email)

	query := `
		INSERT INTO magic_links (id, email, next_path, created_at, expires_at, used_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		link.ID,
		link.Email,
		nullString(link.Next),
		formatTime(link.CreatedAt),
		formatTime(link.ExpiresAt),
		nullTime(link.UsedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting magic link: %w", err)
	}

	s.logger.Info("created magic link", "id", link.ID, "email", link.Email)
	return nil
}

// GetMagicLink retrieves a magic link by ID.
func (s *SQLiteStore) GetMagicLink(ctx context.Context, id string) (*MagicLink, error) {
	query := `
		SELECT id, email, next_path, created_at, expires_at, used_at
		FROM magic_links
		WHERE id = ?
	`

	var link MagicLink
	var next, usedAt sql.NullString
	var createdAtStr, expiresAtStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&link.ID,
		&link.Email,
		&next,
		&createdAtStr,
		&expiresAtStr,
		&usedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMagicLinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying magic link: %w", err)
	}

	link.Next = next.String
	link.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	link.ExpiresAt, err = parseTime(expiresAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	if link.UsedAt, err = parseNullTime(usedAt); err != nil {
		return nil, fmt.Errorf("parsing used_at: %w", err)
	}

	return &link, nil
}

// UseMagicLink atomically marks a link as used.
// Returns ErrMagicLinkUsed if already used, ErrMagicLinkExpired if expired,
// or ErrMagicLinkNotFound if the link doesn't exist.
func (s *SQLiteStore) UseMagicLink(ctx context.Context, id string, now time.Time) error {
	nowStr := formatTime(now)

	query := `
		UPDATE magic_links
		SET used_at = ?
		WHERE id = ?
		  AND used_at IS NULL
		  AND expires_at > ?
	`

	result, err := s.db.ExecContext(ctx, query, nowStr, id, nowStr)
	if err != nil {
		return fmt.Errorf("using magic link: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Work out why the update matched nothing
		link, err := s.GetMagicLink(ctx, id)
		if err != nil {
			return err
		}
		if link.UsedAt != nil {
			return ErrMagicLinkUsed
		}
		return ErrMagicLinkExpired
	}

	s.logger.Info("used magic link", "id", id)
	return nil
}
