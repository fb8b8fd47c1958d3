// ABOUTME: Private user entity store methods
// ABOUTME: A user's role decides whether their sessions may reach admin pages

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Private area roles. Any other stored value is treated as a non-admin role.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// ValidRoles lists the roles that may be assigned.
var ValidRoles = []string{RoleMember, RoleAdmin}

// IsValidRole reports whether role is one of ValidRoles.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// EnsurePrivateUser creates the user with defaultRole if it doesn't exist
// and returns the stored user. An existing user's role is kept.
func (s *SQLiteStore) EnsurePrivateUser(ctx context.Context, email, defaultRole string, now time.Time) (*PrivateUser, error) {
	email = NormalizeEmail(email)
	nowStr := formatTime(now)

	query := `
		INSERT INTO private_users (email, role, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(email) DO NOTHING
	`

	if _, err := s.db.ExecContext(ctx, query, email, defaultRole, nowStr, nowStr); err != nil {
		return nil, fmt.Errorf("ensuring private user: %w", err)
	}

	return s.GetPrivateUser(ctx, email)
}

// GetPrivateUser retrieves a private user by email.
func (s *SQLiteStore) GetPrivateUser(ctx context.Context, email string) (*PrivateUser, error) {
	query := `SELECT email, role, created_at, updated_at FROM private_users WHERE email = ?`

	var user PrivateUser
	var createdAtStr, updatedAtStr string
	err := s.db.QueryRowContext(ctx, query, NormalizeEmail(email)).Scan(
		&user.Email,
		&user.Role,
		&createdAtStr,
		&updatedAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying private user: %w", err)
	}

	user.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	user.UpdatedAt, err = parseTime(updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &user, nil
}

// SetPrivateUserRole creates or updates a user with the given role.
// Sessions already issued keep the role they were created with.
func (s *SQLiteStore) SetPrivateUserRole(ctx context.Context, email, role string, now time.Time) error {
	nowStr := formatTime(now)
	email = NormalizeEmail(email)

	query := `
		INSERT INTO private_users (email, role, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET role = excluded.role, updated_at = excluded.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, email, role, nowStr, nowStr); err != nil {
		return fmt.Errorf("setting private user role: %w", err)
	}

	s.logger.Info("set private user role", "email", email, "role", role)
	return nil
}
