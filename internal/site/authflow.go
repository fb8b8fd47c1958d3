// ABOUTME: Magic link sign-in, the auth entry page and logout
// ABOUTME: Only the confirm POST consumes a link; it rotates the user's sessions and sets the cookie

package site

import (
	"errors"
	"net/http"

	"github.com/execpartners/ep-private/internal/auth"
	"github.com/execpartners/ep-private/internal/store"
)

const (
	msgLinkInvalid = "This sign-in link is not valid. Please request a new one."
	msgLinkExpired = "This sign-in link has expired. Please request a new one."
	msgLinkUsed    = "This sign-in link has already been used. Please request a new one."
	msgServerError = "Sign-in is temporarily unavailable. Please try again shortly."
)

// maxFormBody bounds the confirm form.
const maxFormBody = 16 << 10

// handleAuthPage renders the sign-in entry point. next is carried into the
// link request form.
func (s *Site) handleAuthPage(w http.ResponseWriter, r *http.Request) {
	s.renderAuth(w, http.StatusOK, authPageData{Next: auth.SafeNext(r.URL.Query().Get("next"))})
}

// handleVerifyPage is where emailed links land. It only checks that a token
// is present and asks the visitor to confirm; nothing is consumed here.
func (s *Site) handleVerifyPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("token")
	if token == "" {
		s.renderAuth(w, http.StatusBadRequest, authPageData{Error: msgLinkInvalid})
		return
	}

	w.Header().Set("Referrer-Policy", "no-referrer")
	s.renderAuth(w, http.StatusOK, authPageData{
		Token: token,
		Next:  auth.SafeNext(q.Get("next")),
	})
}

// handleVerify consumes a link submitted by the confirm form.
func (s *Site) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)
	token := r.PostFormValue("token")

	fail := func(status int, email, reason, msg string) {
		s.audit(r, store.AuditMagicLinkVerifyFailed, email, map[string]any{"reason": reason})
		s.logger.Info("magic link rejected", "reason", reason, "email", email)
		s.renderAuthPage(w, status, msg)
	}

	if token == "" {
		fail(http.StatusBadRequest, "", "missing_token", msgLinkInvalid)
		return
	}

	claims, err := s.signer.Verify(token)
	if errors.Is(err, auth.ErrExpiredToken) {
		fail(http.StatusUnauthorized, "", "expired", msgLinkExpired)
		return
	}
	if err != nil {
		fail(http.StatusUnauthorized, "", "invalid_token", msgLinkInvalid)
		return
	}

	link, err := s.store.GetMagicLink(ctx, claims.JTI)
	if errors.Is(err, store.ErrMagicLinkNotFound) {
		fail(http.StatusUnauthorized, claims.Email, "not_found", msgLinkInvalid)
		return
	}
	if err != nil {
		s.logger.Warn("magic link lookup failed", "error", err)
		fail(http.StatusInternalServerError, claims.Email, "lookup_error", msgServerError)
		return
	}

	email := store.NormalizeEmail(link.Email)
	if email == "" || email != store.NormalizeEmail(claims.Email) {
		fail(http.StatusUnauthorized, claims.Email, "bad_email", msgLinkInvalid)
		return
	}

	now := s.now()

	// Single use: only one request can flip used_at.
	switch err := s.store.UseMagicLink(ctx, link.ID, now); {
	case errors.Is(err, store.ErrMagicLinkUsed):
		fail(http.StatusUnauthorized, email, "used", msgLinkUsed)
		return
	case errors.Is(err, store.ErrMagicLinkExpired):
		fail(http.StatusUnauthorized, email, "expired", msgLinkExpired)
		return
	case errors.Is(err, store.ErrMagicLinkNotFound):
		fail(http.StatusUnauthorized, email, "not_found", msgLinkInvalid)
		return
	case err != nil:
		s.logger.Warn("consuming magic link failed", "error", err)
		fail(http.StatusInternalServerError, email, "use_update_error", msgServerError)
		return
	}

	role := store.RoleMember
	user, err := s.store.EnsurePrivateUser(ctx, email, store.RoleMember, now)
	if err != nil {
		s.logger.Warn("ensuring private user failed", "email", email, "error", err)
		s.audit(r, store.AuditMagicLinkVerifyFailed, email, map[string]any{"reason": "private_users_upsert_failed"})
	} else {
		role = user.Role
	}

	if _, err := s.store.RevokePrivateSessionsForEmail(ctx, email, now); err != nil {
		s.logger.Warn("revoking previous sessions failed", "email", email, "error", err)
		s.audit(r, store.AuditMagicLinkRevokeFailed, email, map[string]any{"reason": "revoke_update_error"})
	}

	hash, err := auth.NewSessionHash()
	if err != nil {
		s.logger.Error("generating session hash failed", "error", err)
		fail(http.StatusInternalServerError, email, "session_hash_failed", msgServerError)
		return
	}

	seen := now
	session := &store.PrivateSession{
		SessionHash: hash,
		Email:       email,
		Role:        role,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.SessionTTL),
		LastSeenAt:  &seen,
		IP:          s.ips.ClientIP(r),
		UserAgent:   r.UserAgent(),
		Via:         "magic_link",
	}
	if err := s.store.CreatePrivateSession(ctx, session); err != nil {
		s.logger.Error("creating session failed", "email", email, "error", err)
		fail(http.StatusInternalServerError, email, "session_insert_failed", msgServerError)
		return
	}

	next := auth.SafeNext(r.PostFormValue("next"))
	if next == "" {
		next = auth.SafeNext(link.Next)
	}
	if next == "" {
		next = s.cfg.Gate.HomePath
	}

	auth.SetSessionCookie(w, r, s.cfg.Cookie, hash, now, session.ExpiresAt)
	s.audit(r, store.AuditMagicLinkVerifyOK, email, map[string]any{
		"session": "issued",
		"role":    role,
		"next":    next,
	})
	s.logger.Info("private session issued", "email", email, "role", role)

	http.Redirect(w, r, next, http.StatusSeeOther)
}

// handleLogout revokes the current session, clears the cookie and returns
// to the auth entry point. It works without a valid session.
func (s *Site) handleLogout(w http.ResponseWriter, r *http.Request) {
	hash := auth.SessionHashFromRequest(r, s.cfg.Gate.CookieName)
	if hash != "" {
		now := s.now()
		var email string
		if session, err := s.store.GetActivePrivateSession(r.Context(), hash, now); err == nil {
			email = session.Email
		}
		err := s.store.RevokePrivateSession(r.Context(), hash, now)
		switch {
		case err == nil:
			s.audit(r, store.AuditSessionLogout, email, nil)
		case errors.Is(err, store.ErrPrivateSessionNotFound):
		default:
			s.logger.Warn("revoking session on logout failed", "error", err)
		}
	}

	auth.ClearSessionCookie(w, r, s.cfg.Cookie)
	http.Redirect(w, r, s.cfg.Gate.AuthPath, http.StatusSeeOther)
}
