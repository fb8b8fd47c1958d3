// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject datastore failures

package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	sessions map[string]*PrivateSession // keyed by session hash
	links    map[string]*MagicLink      // keyed by jti
	users    map[string]*PrivateUser    // keyed by normalized email
	audit    []AuditEntry
	requests map[string]*AccessRequest // keyed by request ID
	jobs     map[string]*Job           // keyed by slug

	// Injected failures. A non-nil value is returned by the matching method.
	GetSessionErr error
	TouchErr      error
	CreateErr     error

	// TouchDelay blocks TouchPrivateSession for this long, honoring ctx.
	TouchDelay time.Duration

	getSessionCalls int
	touchCalls      int
}

// Ensure MockStore implements Store.
var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		sessions: make(map[string]*PrivateSession),
		links:    make(map[string]*MagicLink),
		users:    make(map[string]*PrivateUser),
		requests: make(map[string]*AccessRequest),
		jobs:     make(map[string]*Job),
	}
}

// GetSessionCalls returns how many times GetActivePrivateSession was called.
func (m *MockStore) GetSessionCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getSessionCalls
}

// TouchCalls returns how many times TouchPrivateSession was called.
func (m *MockStore) TouchCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.touchCalls
}

// CreatePrivateSession stores a new session.
func (m *MockStore) CreatePrivateSession(ctx context.Context, session *PrivateSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateErr != nil {
		return m.CreateErr
	}
	if _, exists := m.sessions[session.SessionHash]; exists {
		return ErrSessionHashExists
	}

	session.Email = NormalizeEmail(session.Email)
	if session.ID == "" {
		session.ID = uuid.New().String()
	}

	// Make a copy to avoid external modification
	s := *session
	m.sessions[s.SessionHash] = &s
	return nil
}

// GetActivePrivateSession returns a copy of the session if it is valid at now.
func (m *MockStore) GetActivePrivateSession(ctx context.Context, hash string, now time.Time) (*PrivateSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getSessionCalls++
	if m.GetSessionErr != nil {
		return nil, m.GetSessionErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s, ok := m.sessions[hash]
	if !ok || !s.ValidAt(now) {
		return nil, ErrPrivateSessionNotFound
	}

	result := copySession(s)
	return result, nil
}

// TouchPrivateSession updates last_seen_at for the session with the given ID.
func (m *MockStore) TouchPrivateSession(ctx context.Context, id string, seen time.Time) error {
	m.mu.Lock()
	m.touchCalls++
	delay := m.TouchDelay
	touchErr := m.TouchErr
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if touchErr != nil {
		return touchErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ID == id {
			t := seen
			s.LastSeenAt = &t
			return nil
		}
	}
	return ErrPrivateSessionNotFound
}

// RevokePrivateSession revokes the unrevoked session with the given hash.
func (m *MockStore) RevokePrivateSession(ctx context.Context, hash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[hash]
	if !ok || s.RevokedAt != nil {
		return ErrPrivateSessionNotFound
	}
	t := at
	s.RevokedAt = &t
	return nil
}

// RevokePrivateSessionsForEmail revokes all unrevoked sessions for an email.
func (m *MockStore) RevokePrivateSessionsForEmail(ctx context.Context, email string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email = NormalizeEmail(email)
	var n int64
	for _, s := range m.sessions {
		if s.Email == email && s.RevokedAt == nil {
			t := at
			s.RevokedAt = &t
			n++
		}
	}
	return n, nil
}

// ListPrivateSessions returns copies of the sessions for an email, newest first.
func (m *MockStore) ListPrivateSessions(ctx context.Context, email string) ([]*PrivateSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	email = NormalizeEmail(email)
	var result []*PrivateSession
	for _, s := range m.sessions {
		if email == "" || s.Email == email {
			result = append(result, copySession(s))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func copySession(s *PrivateSession) *PrivateSession {
	c := *s
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		c.RevokedAt = &t
	}
	if s.LastSeenAt != nil {
		t := *s.LastSeenAt
		c.LastSeenAt = &t
	}
	return &c
}

// CreateMagicLink stores a magic link.
func (m *MockStore) CreateMagicLink(ctx context.Context, link *MagicLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	link.Email = NormalizeEmail(link.Email)
	l := *link
	m.links[l.ID] = &l
	return nil
}

// GetMagicLink retrieves a magic link by ID.
func (m *MockStore) GetMagicLink(ctx context.Context, id string) (*MagicLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.links[id]
	if !ok {
		return nil, ErrMagicLinkNotFound
	}
	result := *l
	return &result, nil
}

// UseMagicLink marks a link as used, matching SQLiteStore's error semantics.
func (m *MockStore) UseMagicLink(ctx context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.links[id]
	if !ok {
		return ErrMagicLinkNotFound
	}
	if l.UsedAt != nil {
		return ErrMagicLinkUsed
	}
	if !now.Before(l.ExpiresAt) {
		return ErrMagicLinkExpired
	}
	t := now
	l.UsedAt = &t
	return nil
}

// EnsurePrivateUser creates the user with defaultRole if missing.
func (m *MockStore) EnsurePrivateUser(ctx context.Context, email, defaultRole string, now time.Time) (*PrivateUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email = NormalizeEmail(email)
	u, ok := m.users[email]
	if !ok {
		u = &PrivateUser{Email: email, Role: defaultRole, CreatedAt: now, UpdatedAt: now}
		m.users[email] = u
	}
	result := *u
	return &result, nil
}

// GetPrivateUser retrieves a user by email.
func (m *MockStore) GetPrivateUser(ctx context.Context, email string) (*PrivateUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	result := *u
	return &result, nil
}

// SetPrivateUserRole creates or updates a user with the given role.
func (m *MockStore) SetPrivateUserRole(ctx context.Context, email, role string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email = NormalizeEmail(email)
	u, ok := m.users[email]
	if !ok {
		m.users[email] = &PrivateUser{Email: email, Role: role, CreatedAt: now, UpdatedAt: now}
		return nil
	}
	u.Role = role
	u.UpdatedAt = now
	return nil
}

// LogAudit appends an audit entry.
func (m *MockStore) LogAudit(ctx context.Context, entry *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.Email = NormalizeEmail(entry.Email)
	m.audit = append(m.audit, *entry)
	return nil
}

// ListAuditEntries returns matching audit entries, newest first.
func (m *MockStore) ListAuditEntries(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []AuditEntry{}
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if f.Since != nil && e.Timestamp.Before(*f.Since) {
			continue
		}
		if f.Action != nil && e.Action != *f.Action {
			continue
		}
		if f.Email != "" && e.Email != NormalizeEmail(f.Email) {
			continue
		}
		result = append(result, e)
		if len(result) == normalizeAuditLimit(f.Limit) {
			break
		}
	}
	return result, nil
}

// CreateAccessRequest stores a new access request.
func (m *MockStore) CreateAccessRequest(ctx context.Context, req *AccessRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateErr != nil {
		return m.CreateErr
	}
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

	r := *req
	m.requests[r.ID] = &r
	return nil
}

// GetAccessRequest retrieves an access request by ID.
func (m *MockStore) GetAccessRequest(ctx context.Context, id string) (*AccessRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.requests[id]
	if !ok {
		return nil, ErrAccessRequestNotFound
	}
	result := *r
	return &result, nil
}

// ListAccessRequests returns matching requests, newest first.
func (m *MockStore) ListAccessRequests(ctx context.Context, f AccessRequestFilter) ([]*AccessRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []*AccessRequest{}
	for _, r := range m.requests {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.RequesterEmail != "" && r.RequesterEmail != NormalizeEmail(f.RequesterEmail) {
			continue
		}
		c := *r
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

// UpdateAccessRequestStatus records a review decision.
func (m *MockStore) UpdateAccessRequestStatus(ctx context.Context, id, status, reviewer, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch status {
	case RequestStatusPending, RequestStatusApproved, RequestStatusRejected:
	default:
		return ErrInvalidRequestStatus
	}

	r, ok := m.requests[id]
	if !ok {
		return ErrAccessRequestNotFound
	}
	t := at
	r.Status = status
	r.ReviewedBy = NormalizeEmail(reviewer)
	r.ReviewedAt = &t
	r.Reason = reason
	if status == RequestStatusPending {
		r.ReviewedBy, r.ReviewedAt = "", nil
	}
	return nil
}

// UpsertJob creates or replaces a job, keeping the original CreatedAt.
func (m *MockStore) UpsertJob(ctx context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}

	j := *job
	if existing, ok := m.jobs[j.Slug]; ok {
		j.CreatedAt = existing.CreatedAt
	}
	m.jobs[j.Slug] = &j
	return nil
}

// SetJobActive toggles a job's published flag.
func (m *MockStore) SetJobActive(ctx context.Context, slug string, active bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[slug]
	if !ok {
		return ErrJobNotFound
	}
	j.Active = active
	j.UpdatedAt = at
	return nil
}

// ListJobs returns copies of the jobs ordered by slug.
func (m *MockStore) ListJobs(ctx context.Context, activeOnly bool) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []*Job{}
	for _, j := range m.jobs {
		if activeOnly && !j.Active {
			continue
		}
		c := *j
		result = append(result, &c)
	}
	sort.Slice(result, func(i, k int) bool { return result[i].Slug < result[k].Slug })
	return result, nil
}

// CountActiveJobs returns the number of active jobs.
func (m *MockStore) CountActiveJobs(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, j := range m.jobs {
		if j.Active {
			n++
		}
	}
	return n, nil
}

// Close is a no-op for MockStore.
func (m *MockStore) Close() error {
	return nil
}

// ErrMockFailure is a convenience error for tests that inject failures.
var ErrMockFailure = errors.New("mock store failure")
