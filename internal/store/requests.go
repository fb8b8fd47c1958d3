// ABOUTME: Access request store methods
// ABOUTME: Members ask for private profiles or tools and admins approve or reject them

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidRequestStatus is returned when a status is not one of the known values.
var ErrInvalidRequestStatus = errors.New("invalid access request status")

// ValidRequestTypes lists the accepted access request types.
var ValidRequestTypes = []string{RequestTypeProfile, RequestTypeBP, RequestTypePortability}

// IsValidRequestType reports whether t is an accepted request type.
func IsValidRequestType(t string) bool {
	for _, v := range ValidRequestTypes {
		if v == t {
			return true
		}
	}
	return false
}

const accessRequestColumns = `id, request_type, profile_id, requester_email, requester_org,
	message, status, reason, reviewed_by, reviewed_at, created_at`

// CreateAccessRequest inserts a new pending access request.
// Generates ID, CreatedAt and Status if not set.
func (s *SQLiteStore) CreateAccessRequest(ctx context.Context, req *AccessRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.Status == "" {
		req.Status = RequestStatusPending
	}
	req.RequesterEmail = NormalizeEmail(req.RequesterEmail)

	query := `
		INSERT INTO private_access_requests (` + accessRequestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		req.ID,
		req.RequestType,
		nullString(req.ProfileID),
		req.RequesterEmail,
		nullString(req.RequesterOrg),
		nullString(req.Message),
		req.Status,
		nullString(req.Reason),
		nullString(req.ReviewedBy),
		nullTime(req.ReviewedAt),
		formatTime(req.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting access request: %w", err)
	}

	s.logger.Info("created access request",
		"id", req.ID,
		"type", req.RequestType,
		"email", req.RequesterEmail,
	)
	return nil
}

// GetAccessRequest retrieves an access request by ID.
func (s *SQLiteStore) GetAccessRequest(ctx context.Context, id string) (*AccessRequest, error) {
	query := `SELECT ` + accessRequestColumns + ` FROM private_access_requests WHERE id = ?`

	req, err := scanAccessRequest(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccessRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying access request: %w", err)
	}
	return req, nil
}

// ListAccessRequests returns requests matching the filter, newest first.
func (s *SQLiteStore) ListAccessRequests(ctx context.Context, f AccessRequestFilter) ([]*AccessRequest, error) {
	var status, email *string
	if f.Status != "" {
		status = &f.Status
	}
	if f.RequesterEmail != "" {
		v := NormalizeEmail(f.RequesterEmail)
		email = &v
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 200
	}

	query := `
		SELECT ` + accessRequestColumns + `
		FROM private_access_requests
		WHERE (? IS NULL OR status = ?)
		  AND (? IS NULL OR requester_email = ?)
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, status, status, email, email, limit)
	if err != nil {
		return nil, fmt.Errorf("listing access requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	requests := []*AccessRequest{}
	for rows.Next() {
		req, err := scanAccessRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning access request: %w", err)
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating access requests: %w", err)
	}
	return requests, nil
}

// UpdateAccessRequestStatus records an admin's decision on a request.
// Moving a request back to pending clears the reviewer and review time.
func (s *SQLiteStore) UpdateAccessRequestStatus(ctx context.Context, id, status, reviewer, reason string, at time.Time) error {
	reviewedAt := &at
	switch status {
	case RequestStatusApproved, RequestStatusRejected:
	case RequestStatusPending:
		reviewer, reviewedAt = "", nil
	default:
		return ErrInvalidRequestStatus
	}

	query := `
		UPDATE private_access_requests
		SET status = ?, reviewed_by = ?, reviewed_at = ?, reason = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		status,
		nullString(NormalizeEmail(reviewer)),
		nullTime(reviewedAt),
		nullString(reason),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating access request: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAccessRequestNotFound
	}

	s.logger.Info("updated access request", "id", id, "status", status, "reviewer", reviewer)
	return nil
}

func scanAccessRequest(row rowScanner) (*AccessRequest, error) {
	var req AccessRequest
	var profileID, org, message, reason, reviewedBy, reviewedAt sql.NullString
	var createdAtStr string

	err := row.Scan(
		&req.ID,
		&req.RequestType,
		&profileID,
		&req.RequesterEmail,
		&org,
		&message,
		&req.Status,
		&reason,
		&reviewedBy,
		&reviewedAt,
		&createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	req.ProfileID = profileID.String
	req.RequesterOrg = org.String
	req.Message = message.String
	req.Reason = reason.String
	req.ReviewedBy = reviewedBy.String

	req.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if req.ReviewedAt, err = parseNullTime(reviewedAt); err != nil {
		return nil, fmt.Errorf("parsing reviewed_at: %w", err)
	}
	return &req, nil
}
