// ABOUTME: Test fixture for the site package and tests for routing, pages and logout
// ABOUTME: Runs the full router over an in-memory SQLite store and a real validator

package site

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/execpartners/ep-private/internal/auth"
	"github.com/execpartners/ep-private/internal/store"
)

const (
	testLinkSecret = "test-link-secret-0123456789abcdef"
	testAdminToken = "test-admin-token"
	testBaseURL    = "https://example.test"
)

type siteFixture struct {
	site      *Site
	store     *store.SQLiteStore
	validator *auth.Validator
}

func newSiteFixture(t *testing.T, mutate ...func(*Config)) *siteFixture {
	t.Helper()

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	signer, err := auth.NewLinkSigner([]byte(testLinkSecret))
	require.NoError(t, err)

	validator := auth.NewValidator(st, auth.ValidatorConfig{AwaitTouch: true})

	cfg := Config{
		BaseURL:    testBaseURL,
		AdminToken: testAdminToken,
		SessionTTL: time.Hour,
		LinkTTL:    10 * time.Minute,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	s := New(st, validator, signer, cfg)
	t.Cleanup(s.Close)

	return &siteFixture{site: s, store: st, validator: validator}
}

// seed inserts a session valid for an hour and returns its hash.
func (f *siteFixture) seed(t *testing.T, email, role string) string {
	t.Helper()
	hash, err := auth.NewSessionHash()
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, f.store.CreatePrivateSession(context.Background(), &store.PrivateSession{
		SessionHash: hash,
		Email:       email,
		Role:        role,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	}))
	return hash
}

func (f *siteFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.site.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *siteFixture) auditActions(t *testing.T, action store.AuditAction) []store.AuditEntry {
	t.Helper()
	entries, err := f.store.ListAuditEntries(context.Background(), store.AuditFilter{Action: &action})
	require.NoError(t, err)
	return entries
}

func newRequest(method, target, hash string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if hash != "" {
		req.AddCookie(&http.Cookie{Name: auth.DefaultCookieName, Value: hash})
	}
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())
	return body
}

func TestHealth(t *testing.T) {
	f := newSiteFixture(t)

	rec := f.do(newRequest(http.MethodGet, "/health", "", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestAuthPage_IsOutsideTheGate(t *testing.T) {
	f := newSiteFixture(t)

	rec := f.do(newRequest(http.MethodGet, "/private/auth", "", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sign-in link")
}

func TestHome_RedirectsWithoutSession(t *testing.T) {
	f := newSiteFixture(t)

	rec := f.do(newRequest(http.MethodGet, "/private/", "", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/private/auth?next=%2Fprivate", rec.Header().Get("Location"))
}

func TestHome_RendersForMember(t *testing.T) {
	f := newSiteFixture(t)
	hash := f.seed(t, "member@example.com", store.RoleMember)

	rec := f.do(newRequest(http.MethodGet, "/private", hash, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "member@example.com")
	assert.NotContains(t, rec.Body.String(), "/private/admin")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestHome_ShowsAdminLinkForAdmin(t *testing.T) {
	f := newSiteFixture(t)
	hash := f.seed(t, "boss@example.com", store.RoleAdmin)

	rec := f.do(newRequest(http.MethodGet, "/private", hash, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/private/admin"`)
}

func TestAdminPage_MemberIsSentHomeWithNext(t *testing.T) {
	f := newSiteFixture(t)
	hash := f.seed(t, "member@example.com", store.RoleMember)

	rec := f.do(newRequest(http.MethodGet, "/private/admin", hash, nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/private?next=%2Fprivate%2Fadmin", rec.Header().Get("Location"))
}

func TestAdminPage_RendersForAdmin(t *testing.T) {
	f := newSiteFixture(t)
	hash := f.seed(t, "admin@example.com", store.RoleAdmin)
	require.NoError(t, f.store.CreateAccessRequest(context.Background(), &store.AccessRequest{
		RequestType:    store.RequestTypeBP,
		RequesterEmail: "waiting@example.com",
	}))

	rec := f.do(newRequest(http.MethodGet, "/private/admin", hash, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "waiting@example.com")
	assert.Contains(t, rec.Body.String(), "0 published job(s)")
}

func TestLogout_RevokesSessionAndClearsCookie(t *testing.T) {
	f := newSiteFixture(t)
	hash := f.seed(t, "member@example.com", store.RoleMember)

	rec := f.do(newRequest(http.MethodPost, "/private/logout", hash, nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/private/auth", rec.Header().Get("Location"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.DefaultCookieName, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Less(t, cookies[0].MaxAge, 0)

	// The very next request with the old cookie is rejected.
	rec = f.do(newRequest(http.MethodGet, "/api/private/me", hash, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_session", decodeBody(t, rec)["error"])

	logouts := f.auditActions(t, store.AuditSessionLogout)
	require.Len(t, logouts, 1)
	assert.Equal(t, "member@example.com", logouts[0].Email)
}

func TestLogout_WithoutSessionStillRedirects(t *testing.T) {
	f := newSiteFixture(t)

	rec := f.do(newRequest(http.MethodPost, "/private/logout", "unknown", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/private/auth", rec.Header().Get("Location"))
	assert.Empty(t, f.auditActions(t, store.AuditSessionLogout))
}

func TestNew_CustomPaths(t *testing.T) {
	f := newSiteFixture(t, func(c *Config) {
		c.Gate.AuthPath = "/members/login"
		c.Gate.HomePath = "/members"
	})

	rec := f.do(newRequest(http.MethodGet, "/members", "", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/members/login"))

	rec = f.do(newRequest(http.MethodGet, "/members/login", "", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
