// ABOUTME: Private session store methods for the SQLite store
// ABOUTME: Validity is decided in SQL: revoked_at IS NULL AND expires_at > now

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const sessionColumns = `id, session_hash, email, role, created_at, expires_at,
	revoked_at, last_seen_at, ip, user_agent, via`

// CreatePrivateSession inserts a new session. The email is normalized first
// and an ID is generated if not set.
func (s *SQLiteStore) CreatePrivateSession(ctx context.Context, session *PrivateSession) error {
	session.Email = NormalizeEmail(session.Email)
	if session.ID == "" {
		session.ID = uuid.New().String()
	}

	query := `
		INSERT INTO private_sessions (id, session_hash, email, role, created_at, expires_at,
			revoked_at, last_seen_at, ip, user_agent, via)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		session.ID,
		session.SessionHash,
		session.Email,
		session.Role,
		formatTime(session.CreatedAt),
		formatTime(session.ExpiresAt),
		nullTime(session.RevokedAt),
		nullTime(session.LastSeenAt),
		nullString(session.IP),
		nullString(session.UserAgent),
		nullString(session.Via),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrSessionHashExists
		}
		return fmt.Errorf("inserting private session: %w", err)
	}

	s.logger.Debug("created private session", "id", session.ID, "email", session.Email, "role", session.Role)
	return nil
}

// GetActivePrivateSession retrieves a session that is neither revoked nor expired at now.
func (s *SQLiteStore) GetActivePrivateSession(ctx context.Context, hash string, now time.Time) (*PrivateSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM private_sessions
		WHERE session_hash = ?
		  AND revoked_at IS NULL
		  AND expires_at > ?
	`

	session, err := scanSession(s.db.QueryRowContext(ctx, query, hash, formatTime(now)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPrivateSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying private session: %w", err)
	}
	return session, nil
}

// TouchPrivateSession records the last time a session was seen.
func (s *SQLiteStore) TouchPrivateSession(ctx context.Context, id string, seen time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE private_sessions SET last_seen_at = ? WHERE id = ?`,
		formatTime(seen), id,
	)
	if err != nil {
		return fmt.Errorf("updating last_seen_at: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPrivateSessionNotFound
	}
	return nil
}

// RevokePrivateSession marks the session with the given hash as revoked.
// Returns ErrPrivateSessionNotFound if no unrevoked session has that hash.
func (s *SQLiteStore) RevokePrivateSession(ctx context.Context, hash string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE private_sessions SET revoked_at = ? WHERE session_hash = ? AND revoked_at IS NULL`,
		formatTime(at), hash,
	)
	if err != nil {
		return fmt.Errorf("revoking private session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPrivateSessionNotFound
	}

	s.logger.Info("revoked private session")
	return nil
}

// RevokePrivateSessionsForEmail revokes every unrevoked session for an email
// and returns how many rows changed.
func (s *SQLiteStore) RevokePrivateSessionsForEmail(ctx context.Context, email string, at time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE private_sessions SET revoked_at = ? WHERE email = ? AND revoked_at IS NULL`,
		formatTime(at), NormalizeEmail(email),
	)
	if err != nil {
		return 0, fmt.Errorf("revoking sessions for email: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected > 0 {
		s.logger.Info("revoked private sessions", "email", NormalizeEmail(email), "count", rowsAffected)
	}
	return rowsAffected, nil
}

// ListPrivateSessions returns all sessions for an email, newest first.
// An empty email lists every session.
func (s *SQLiteStore) ListPrivateSessions(ctx context.Context, email string) ([]*PrivateSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM private_sessions`
	var args []any
	if email != "" {
		query += ` WHERE email = ?`
		args = append(args, NormalizeEmail(email))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying private sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*PrivateSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning private session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating private sessions: %w", err)
	}
	return sessions, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*PrivateSession, error) {
	var session PrivateSession
	var createdAtStr, expiresAtStr string
	var revokedAt, lastSeenAt, ip, userAgent, via sql.NullString

	err := row.Scan(
		&session.ID,
		&session.SessionHash,
		&session.Email,
		&session.Role,
		&createdAtStr,
		&expiresAtStr,
		&revokedAt,
		&lastSeenAt,
		&ip,
		&userAgent,
		&via,
	)
	if err != nil {
		return nil, err
	}

	session.IP = ip.String
	session.UserAgent = userAgent.String
	session.Via = via.String

	session.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	session.ExpiresAt, err = parseTime(expiresAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	if session.RevokedAt, err = parseNullTime(revokedAt); err != nil {
		return nil, fmt.Errorf("parsing revoked_at: %w", err)
	}
	if session.LastSeenAt, err = parseNullTime(lastSeenAt); err != nil {
		return nil, fmt.Errorf("parsing last_seen_at: %w", err)
	}

	return &session, nil
}
