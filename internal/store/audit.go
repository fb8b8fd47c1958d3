// ABOUTME: Private audit log entity and store methods
// ABOUTME: Records sign-in and review activity with the requester's IP and user agent

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents an auditable action.
type AuditAction string

const (
	AuditMagicLinkRequested    AuditAction = "magic_link_requested"
	AuditMagicLinkVerifyOK     AuditAction = "magic_link_verify_ok"
	AuditMagicLinkVerifyFailed AuditAction = "magic_link_verify_failed"
	AuditMagicLinkRevokeFailed AuditAction = "magic_link_verify_revoke_failed"
	AuditAccessRequestCreated  AuditAction = "access_request_created"
	AuditRequestStatusChanged  AuditAction = "admin_request_status_changed"
	AuditSessionLogout         AuditAction = "session_logout"
	AuditJobsChanged           AuditAction = "jobs_changed"
)

// AuditEntry is one row of the private audit log.
type AuditEntry struct {
	ID        string
	Action    AuditAction
	Email     string
	IP        string
	UserAgent string
	Meta      map[string]any
	Timestamp time.Time
}

// AuditFilter specifies filtering options for listing audit entries.
type AuditFilter struct {
	Since  *time.Time
	Action *AuditAction
	Email  string
	Limit  int // default 100, max 1000
}

// LogAudit appends an entry to the audit log.
// Generates ID and Timestamp if not set.
func (s *SQLiteStore) LogAudit(ctx context.Context, e *AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	e.Email = NormalizeEmail(e.Email)

	var metaJSON *string
	if e.Meta != nil {
		data, err := json.Marshal(e.Meta)
		if err != nil {
			return fmt.Errorf("marshaling audit meta: %w", err)
		}
		str := string(data)
		metaJSON = &str
	}

	query := `
		INSERT INTO private_audit_log (id, action, email, ip, user_agent, meta_json, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		string(e.Action),
		nullString(e.Email),
		nullString(e.IP),
		nullString(e.UserAgent),
		metaJSON,
		formatTime(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended audit log", "id", e.ID, "action", e.Action, "email", e.Email)
	return nil
}

// normalizeAuditLimit applies default (100) and cap (1000) to audit limit.
func normalizeAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

const auditLogQuery = `
	SELECT id, action, email, ip, user_agent, meta_json, ts
	FROM private_audit_log
	WHERE (? IS NULL OR ts >= ?)
	  AND (? IS NULL OR action = ?)
	  AND (? IS NULL OR email = ?)
	ORDER BY ts DESC
	LIMIT ?
`

// ListAuditEntries returns audit entries matching the filter, newest first.
func (s *SQLiteStore) ListAuditEntries(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	var since, action, email *string
	if f.Since != nil {
		v := formatTime(*f.Since)
		since = &v
	}
	if f.Action != nil {
		v := string(*f.Action)
		action = &v
	}
	if f.Email != "" {
		v := NormalizeEmail(f.Email)
		email = &v
	}

	rows, err := s.db.QueryContext(ctx, auditLogQuery,
		since, since,
		action, action,
		email, email,
		normalizeAuditLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []AuditEntry{}
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}

func scanAuditEntry(row rowScanner) (AuditEntry, error) {
	var e AuditEntry
	var actionStr, tsStr string
	var email, ip, userAgent, metaJSON *string

	if err := row.Scan(&e.ID, &actionStr, &email, &ip, &userAgent, &metaJSON, &tsStr); err != nil {
		return e, fmt.Errorf("scanning audit entry: %w", err)
	}

	e.Action = AuditAction(actionStr)
	e.Email = deref(email)
	e.IP = deref(ip)
	e.UserAgent = deref(userAgent)

	var err error
	e.Timestamp, err = parseTime(tsStr)
	if err != nil {
		return e, fmt.Errorf("parsing timestamp: %w", err)
	}

	if metaJSON != nil {
		if err := json.Unmarshal([]byte(*metaJSON), &e.Meta); err != nil {
			return e, fmt.Errorf("unmarshaling meta: %w", err)
		}
	}
	return e, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
