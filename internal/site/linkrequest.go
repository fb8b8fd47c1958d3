// ABOUTME: Self-service "email me a sign-in link" endpoint outside the session gate
// ABOUTME: Always answers ok so callers cannot learn which addresses have access

package site

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/execpartners/ep-private/internal/auth"
	"github.com/execpartners/ep-private/internal/store"
)

const requestLinkPath = "/api/private/auth/request"

const msgLinkRequested = "If that address has access, a sign-in link is on its way."

// maxAuditEmail bounds what an anonymous caller can write into the audit log.
const maxAuditEmail = 320

// Outcomes of a self-service link request, recorded in the audit meta.
const (
	linkRequestSent         = "sent"
	linkRequestEmptyEmail   = "empty_email"
	linkRequestInvalidEmail = "invalid_email"
	linkRequestIssueFailed  = "issue_failed"
	linkRequestSendFailed   = "send_failed"
)

// handleRequestLink accepts {"email","next"} as JSON or from the auth page
// form. JSON callers get {"ok":true}; form posts get the auth page back.
func (s *Site) handleRequestLink(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
		Next  string `json:"next"`
	}

	form := strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
	if form {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)
		body.Email = r.PostFormValue("email")
		body.Next = r.PostFormValue("next")
	} else if err := decodeJSON(w, r, &body); err != nil {
		s.logger.Debug("unreadable link request body", "error", err)
	}

	email := store.NormalizeEmail(body.Email)
	result := s.sendLink(r.Context(), email, body.Next)
	s.audit(r, store.AuditMagicLinkRequested, truncateRunes(email, maxAuditEmail), map[string]any{
		"via":    "self_service",
		"result": result,
	})

	if form {
		s.renderAuth(w, http.StatusOK, authPageData{Notice: msgLinkRequested, Next: auth.SafeNext(body.Next)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// sendLink issues and delivers a link, returning the outcome.
func (s *Site) sendLink(ctx context.Context, email, next string) string {
	if email == "" {
		return linkRequestEmptyEmail
	}

	link, err := s.issuer.Issue(ctx, email, next)
	if errors.Is(err, ErrInvalidEmail) {
		return linkRequestInvalidEmail
	}
	if err != nil {
		s.logger.Error("issuing self-service link failed", "error", err)
		return linkRequestIssueFailed
	}

	if err := s.sender.SendLink(ctx, link); err != nil {
		s.logger.Warn("sending magic link failed", "email", link.Email, "error", err)
		return linkRequestSendFailed
	}
	return linkRequestSent
}
