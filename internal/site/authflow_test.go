// ABOUTME: Tests for the magic link verification flow and link issuance
// ABOUTME: Covers single use, session rotation, role preservation and next handling

package site

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/execpartners/ep-private/internal/auth"
	"github.com/execpartners/ep-private/internal/store"
)

// verifyTarget turns an issued link into a request target on the test router.
func verifyTarget(t *testing.T, link *IssuedLink) string {
	t.Helper()
	u, err := url.Parse(link.URL)
	require.NoError(t, err)
	return u.RequestURI()
}

// verifyPost submits the confirm form for a link target, carrying its query
// parameters as form fields.
func verifyPost(t *testing.T, target string) *http.Request {
	t.Helper()
	u, err := url.Parse(target)
	require.NoError(t, err)
	return newFormRequest(u.Path, u.Query())
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.DefaultCookieName {
			return c
		}
	}
	return nil
}

func TestIssue_BuildsVerifyURL(t *testing.T) {
	f := newSiteFixture(t)

	link, err := f.site.Issuer().Issue(context.Background(), " Someone@Example.com ", "/portability")
	require.NoError(t, err)

	assert.Equal(t, "someone@example.com", link.Email)
	assert.Equal(t, "/en/portability", link.Next)
	assert.True(t, strings.HasPrefix(link.URL, testBaseURL+"/private/auth/verify?"), link.URL)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), link.ExpiresAt, 5*time.Second)

	stored, err := f.store.GetMagicLink(context.Background(), link.ID)
	require.NoError(t, err)
	assert.Equal(t, "someone@example.com", stored.Email)
	assert.Nil(t, stored.UsedAt)
}

func TestIssue_RejectsBadEmail(t *testing.T) {
	f := newSiteFixture(t)

	for _, email := range []string{"", "not-an-email", "Name <a@example.com>"} {
		_, err := f.site.Issuer().Issue(context.Background(), email, "")
		assert.ErrorIs(t, err, ErrInvalidEmail, "email %q", email)
	}
}

func TestIssue_DropsUnsafeNext(t *testing.T) {
	f := newSiteFixture(t)

	link, err := f.site.Issuer().Issue(context.Background(), "a@example.com", "https://evil.example")
	require.NoError(t, err)

	assert.Empty(t, link.Next)
	assert.NotContains(t, link.URL, "next=")
}

func TestVerify_IssuesSessionAndRedirects(t *testing.T) {
	f := newSiteFixture(t)
	ctx := context.Background()

	link, err := f.site.Issuer().Issue(ctx, "new@example.com", "/en/bp-simulator")
	require.NoError(t, err)

	req := verifyPost(t, verifyTarget(t, link))
	req.Header.Set("User-Agent", "test-agent")
	rec := f.do(req)

	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/en/bp-simulator", rec.Header().Get("Location"))

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Len(t, cookie.Value, 64)
	assert.Equal(t, "/", cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	session, err := f.store.GetActivePrivateSession(ctx, cookie.Value, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", session.Email)
	assert.Equal(t, store.RoleMember, session.Role)
	assert.Equal(t, "magic_link", session.Via)
	assert.Equal(t, "test-agent", session.UserAgent)
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, 5*time.Second)

	user, err := f.store.GetPrivateUser(ctx, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, store.RoleMember, user.Role)

	ok := f.auditActions(t, store.AuditMagicLinkVerifyOK)
	require.Len(t, ok, 1)
	assert.Equal(t, "new@example.com", ok[0].Email)

	// The new cookie opens the private area.
	rec = f.do(newRequest(http.MethodGet, "/api/private/me", cookie.Value, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVerifyPage_DoesNotConsumeLink(t *testing.T) {
	f := newSiteFixture(t)
	ctx := context.Background()

	link, err := f.site.Issuer().Issue(ctx, "scanned@example.com", "/en/portability")
	require.NoError(t, err)
	target := verifyTarget(t, link)

	// Mail scanners fetch the link before the recipient does.
	for i := 0; i < 3; i++ {
		rec := f.do(newRequest(http.MethodGet, target, "", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, sessionCookie(rec))
		assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
		assert.Contains(t, rec.Body.String(), `action="/private/auth/verify"`)
		assert.Contains(t, rec.Body.String(), `name="token"`)
		assert.Contains(t, rec.Body.String(), `value="/en/portability"`)
	}

	stored, err := f.store.GetMagicLink(ctx, link.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.UsedAt)
	sessions, err := f.store.ListPrivateSessions(ctx, "scanned@example.com")
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.Empty(t, f.auditActions(t, store.AuditMagicLinkVerifyFailed))

	rec := f.do(verifyPost(t, target))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.NotNil(t, sessionCookie(rec))

	stored, err = f.store.GetMagicLink(ctx, link.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.UsedAt)
}

func TestVerifyPage_MissingToken(t *testing.T) {
	f := newSiteFixture(t)

	rec := f.do(newRequest(http.MethodGet, "/private/auth/verify", "", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "not valid")
	assert.NotContains(t, rec.Body.String(), `name="token"`)
}

func TestVerify_LinkWorksOnce(t *testing.T) {
	f := newSiteFixture(t)

	link, err := f.site.Issuer().Issue(context.Background(), "once@example.com", "")
	require.NoError(t, err)
	target := verifyTarget(t, link)

	first := f.do(verifyPost(t, target))
	require.Equal(t, http.StatusSeeOther, first.Code)
	assert.Equal(t, "/private", first.Header().Get("Location"))

	second := f.do(verifyPost(t, target))
	assert.Equal(t, http.StatusUnauthorized, second.Code)
	assert.Nil(t, sessionCookie(second))
	assert.Contains(t, second.Body.String(), "already been used")

	failed := f.auditActions(t, store.AuditMagicLinkVerifyFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "used", failed[0].Meta["reason"])
}

func TestVerify_RevokesPreviousSessions(t *testing.T) {
	f := newSiteFixture(t)
	ctx := context.Background()
	old := f.seed(t, "rotate@example.com", store.RoleMember)

	link, err := f.site.Issuer().Issue(ctx, "rotate@example.com", "")
	require.NoError(t, err)
	rec := f.do(verifyPost(t, verifyTarget(t, link)))
	require.Equal(t, http.StatusSeeOther, rec.Code)

	_, err = f.store.GetActivePrivateSession(ctx, old, time.Now())
	assert.ErrorIs(t, err, store.ErrPrivateSessionNotFound)

	rec = f.do(newRequest(http.MethodGet, "/api/private/me", old, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerify_KeepsExistingRole(t *testing.T) {
	f := newSiteFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SetPrivateUserRole(ctx, "boss@example.com", store.RoleAdmin, time.Now()))

	link, err := f.site.Issuer().Issue(ctx, "boss@example.com", "/private/admin")
	require.NoError(t, err)
	rec := f.do(verifyPost(t, verifyTarget(t, link)))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/private/admin", rec.Header().Get("Location"))

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	session, err := f.store.GetActivePrivateSession(ctx, cookie.Value, time.Now())
	require.NoError(t, err)
	assert.Equal(t, store.RoleAdmin, session.Role)
}

func TestVerify_UnsafeQueryNextFallsBackToStoredNext(t *testing.T) {
	f := newSiteFixture(t)

	link, err := f.site.Issuer().Issue(context.Background(), "a@example.com", "/en/portability")
	require.NoError(t, err)

	target := strings.Replace(verifyTarget(t, link), "next=%2Fen%2Fportability", "next=%2F%2Fevil.example", 1)
	rec := f.do(verifyPost(t, target))

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/en/portability", rec.Header().Get("Location"))
}

func TestVerify_QueryNextOverridesStoredNext(t *testing.T) {
	f := newSiteFixture(t)

	link, err := f.site.Issuer().Issue(context.Background(), "a@example.com", "/en/portability")
	require.NoError(t, err)

	target := strings.Replace(verifyTarget(t, link), "next=%2Fen%2Fportability", "next=%2Fprivate%2Fadmin", 1)
	rec := f.do(verifyPost(t, target))

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/private/admin", rec.Header().Get("Location"))
}

func TestVerify_Rejections(t *testing.T) {
	f := newSiteFixture(t)

	other, err := auth.NewLinkSigner([]byte("another-secret-0123456789abcdefgh"))
	require.NoError(t, err)
	forged, _, err := other.Generate("a@example.com", time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		target string
		status int
		reason string
	}{
		{"missing token", "/private/auth/verify", http.StatusBadRequest, "missing_token"},
		{"garbage token", "/private/auth/verify?token=garbage", http.StatusUnauthorized, "invalid_token"},
		{"wrong secret", "/private/auth/verify?token=" + forged, http.StatusUnauthorized, "invalid_token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(verifyPost(t, tt.target))
			assert.Equal(t, tt.status, rec.Code)
			assert.Nil(t, sessionCookie(rec))
		})
	}

	reasons := map[string]bool{}
	for _, e := range f.auditActions(t, store.AuditMagicLinkVerifyFailed) {
		reasons[e.Meta["reason"].(string)] = true
	}
	assert.True(t, reasons["missing_token"])
	assert.True(t, reasons["invalid_token"])
}

func TestVerify_UnrecordedTokenIsRejected(t *testing.T) {
	f := newSiteFixture(t)

	// Correctly signed, but never recorded in magic_links.
	token, _, err := f.site.signer.Generate("a@example.com", time.Minute)
	require.NoError(t, err)

	rec := f.do(verifyPost(t, "/private/auth/verify?token="+token))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, sessionCookie(rec))
	failed := f.auditActions(t, store.AuditMagicLinkVerifyFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "not_found", failed[0].Meta["reason"])
}

func TestVerify_RateLimited(t *testing.T) {
	f := newSiteFixture(t, func(c *Config) {
		c.AuthPerMinute = 1
		c.Burst = 1
	})

	first := f.do(newRequest(http.MethodGet, "/private/auth/verify", "", nil))
	assert.Equal(t, http.StatusBadRequest, first.Code)

	second := f.do(newRequest(http.MethodGet, "/private/auth/verify", "", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))
}
