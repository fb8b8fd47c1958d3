// ABOUTME: Store interfaces and data types for ep-private persistence
// ABOUTME: Defines private sessions, magic links, users, audit, access requests and jobs

package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Session errors
var (
	// ErrPrivateSessionNotFound is returned when no valid session matches a hash.
	ErrPrivateSessionNotFound = errors.New("private session not found")

	// ErrSessionHashExists is returned when a session hash is already taken.
	ErrSessionHashExists = errors.New("session hash already exists")
)

// Magic link errors
var (
	ErrMagicLinkNotFound = errors.New("magic link not found")
	ErrMagicLinkUsed     = errors.New("magic link already used")
	ErrMagicLinkExpired  = errors.New("magic link expired")
)

// ErrAccessRequestNotFound is returned when an access request doesn't exist.
var ErrAccessRequestNotFound = errors.New("access request not found")

// ErrJobNotFound is returned when a job slug doesn't exist.
var ErrJobNotFound = errors.New("job not found")

// PrivateSession is one authenticated visit to the private area.
type PrivateSession struct {
	ID          string
	SessionHash string
	Email       string
	Role        string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	RevokedAt   *time.Time
	LastSeenAt  *time.Time
	IP          string
	UserAgent   string
	Via         string // how the session was issued, e.g. "magic_link", "cli"
}

// ValidAt reports whether the session grants access at the given instant.
func (s *PrivateSession) ValidAt(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// MagicLink records an issued sign-in link. ID is the token's jti claim.
type MagicLink struct {
	ID        string
	Email     string
	Next      string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// PrivateUser is a known private-area identity and its role.
type PrivateUser struct {
	Email     string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Access request types
const (
	RequestTypeProfile     = "profile"
	RequestTypeBP          = "bp"
	RequestTypePortability = "portability"
)

// Access request statuses
const (
	RequestStatusPending  = "pending"
	RequestStatusApproved = "approved"
	RequestStatusRejected = "rejected"
)

// AccessRequest is a member's request to see a private profile or a tool.
type AccessRequest struct {
	ID             string
	RequestType    string
	ProfileID      string // empty unless RequestType is "profile"
	RequesterEmail string
	RequesterOrg   string
	Message        string
	Status         string
	Reason         string
	ReviewedBy     string
	ReviewedAt     *time.Time
	CreatedAt      time.Time
}

// AccessRequestFilter narrows ListAccessRequests. Zero values match everything.
type AccessRequestFilter struct {
	Status         string
	RequesterEmail string
	Limit          int
}

// Job is a published job listing managed through the admin token API.
type Job struct {
	Slug        string
	Title       string
	Summary     string
	Description string
	Location    string
	Market      string
	Seniority   string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SessionStore persists private sessions.
type SessionStore interface {
	CreatePrivateSession(ctx context.Context, session *PrivateSession) error
	// GetActivePrivateSession returns the session for hash only if it is not
	// revoked and expires after now.
	GetActivePrivateSession(ctx context.Context, hash string, now time.Time) (*PrivateSession, error)
	TouchPrivateSession(ctx context.Context, id string, seen time.Time) error
	RevokePrivateSession(ctx context.Context, hash string, at time.Time) error
	RevokePrivateSessionsForEmail(ctx context.Context, email string, at time.Time) (int64, error)
	ListPrivateSessions(ctx context.Context, email string) ([]*PrivateSession, error)
}

// LinkStore persists magic links and private users.
type LinkStore interface {
	CreateMagicLink(ctx context.Context, link *MagicLink) error
	GetMagicLink(ctx context.Context, id string) (*MagicLink, error)
	UseMagicLink(ctx context.Context, id string, now time.Time) error

	EnsurePrivateUser(ctx context.Context, email, defaultRole string, now time.Time) (*PrivateUser, error)
	GetPrivateUser(ctx context.Context, email string) (*PrivateUser, error)
	SetPrivateUserRole(ctx context.Context, email, role string, now time.Time) error
}

// AuditStore persists audit entries.
type AuditStore interface {
	LogAudit(ctx context.Context, entry *AuditEntry) error
	ListAuditEntries(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// AccessRequestStore persists access requests.
type AccessRequestStore interface {
	CreateAccessRequest(ctx context.Context, req *AccessRequest) error
	GetAccessRequest(ctx context.Context, id string) (*AccessRequest, error)
	ListAccessRequests(ctx context.Context, filter AccessRequestFilter) ([]*AccessRequest, error)
	UpdateAccessRequestStatus(ctx context.Context, id, status, reviewer, reason string, at time.Time) error
}

// JobStore persists job listings.
type JobStore interface {
	UpsertJob(ctx context.Context, job *Job) error
	SetJobActive(ctx context.Context, slug string, active bool, at time.Time) error
	ListJobs(ctx context.Context, activeOnly bool) ([]*Job, error)
	CountActiveJobs(ctx context.Context) (int, error)
}

// Store combines every persistence concern of the service.
type Store interface {
	SessionStore
	LinkStore
	AuditStore
	AccessRequestStore
	JobStore

	// Close releases any resources held by the store
	Close() error
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
