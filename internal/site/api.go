// ABOUTME: JSON endpoints of the private area for members and admins
// ABOUTME: Identity comes from the gate; handlers never read the cookie themselves

package site

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/execpartners/ep-private/internal/auth"
	"github.com/execpartners/ep-private/internal/store"
)

const (
	maxMessageLength = 2000
	maxOrgLength     = 200
	maxReasonLength  = 500
)

type userView struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type accessRequestView struct {
	ID             string     `json:"id"`
	RequestType    string     `json:"request_type"`
	ProfileID      string     `json:"profile_id,omitempty"`
	RequesterEmail string     `json:"requester_email"`
	RequesterOrg   string     `json:"requester_org,omitempty"`
	Message        string     `json:"message,omitempty"`
	Status         string     `json:"status"`
	Reason         string     `json:"reason,omitempty"`
	ReviewedBy     string     `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func newAccessRequestView(r *store.AccessRequest) accessRequestView {
	return accessRequestView{
		ID:             r.ID,
		RequestType:    r.RequestType,
		ProfileID:      r.ProfileID,
		RequesterEmail: r.RequesterEmail,
		RequesterOrg:   r.RequesterOrg,
		Message:        r.Message,
		Status:         r.Status,
		Reason:         r.Reason,
		ReviewedBy:     r.ReviewedBy,
		ReviewedAt:     r.ReviewedAt,
		CreatedAt:      r.CreatedAt,
	}
}

func (s *Site) handleMe(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":            true,
		"authenticated": true,
		"user":          userView{Email: id.Email, Role: id.Role},
	})
}

// accessRequestBody accepts snake_case and camelCase field names.
type accessRequestBody struct {
	RequestType       string `json:"request_type"`
	RequestTypeCamel  string `json:"requestType"`
	ProfileID         string `json:"profile_id"`
	ProfileIDCamel    string `json:"profileId"`
	RequesterOrg      string `json:"requester_org"`
	RequesterOrgCamel string `json:"requesterOrg"`
	Message           string `json:"message"`
}

func (s *Site) handleCreateAccessRequest(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	var body accessRequestBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	requestType := strings.ToLower(strings.TrimSpace(firstString(body.RequestType, body.RequestTypeCamel)))
	if requestType == "" {
		requestType = store.RequestTypeProfile
	}
	if !store.IsValidRequestType(requestType) {
		writeError(w, http.StatusBadRequest, "invalid_request_type")
		return
	}

	profileID := strings.TrimSpace(firstString(body.ProfileID, body.ProfileIDCamel))
	if requestType != store.RequestTypeProfile {
		profileID = ""
	} else if profileID == "" {
		writeError(w, http.StatusBadRequest, "missing_profile_id")
		return
	}

	req := &store.AccessRequest{
		RequestType:    requestType,
		ProfileID:      profileID,
		RequesterEmail: id.Email,
		RequesterOrg:   truncateRunes(strings.TrimSpace(firstString(body.RequesterOrg, body.RequesterOrgCamel)), maxOrgLength),
		Message:        truncateRunes(strings.TrimSpace(body.Message), maxMessageLength),
		Status:         store.RequestStatusPending,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.CreateAccessRequest(r.Context(), req); err != nil {
		s.logger.Error("creating access request failed", "email", id.Email, "error", err)
		writeError(w, http.StatusInternalServerError, "insert_failed")
		return
	}

	s.audit(r, store.AuditAccessRequestCreated, id.Email, map[string]any{
		"id":           req.ID,
		"request_type": req.RequestType,
		"profile_id":   req.ProfileID,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"request": newAccessRequestView(req),
	})
}

func (s *Site) handleListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.AccessRequestFilter{
		Status:         q.Get("status"),
		RequesterEmail: q.Get("email"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		filter.Limit = n
	}

	requests, err := s.store.ListAccessRequests(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing access requests failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed")
		return
	}

	views := make([]accessRequestView, 0, len(requests))
	for _, req := range requests {
		views = append(views, newAccessRequestView(req))
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "requests": views})
}

func (s *Site) handleRequestStatus(w http.ResponseWriter, r *http.Request) {
	admin := auth.MustFromContext(r.Context())
	id := mux.Vars(r)["id"]

	var body struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	switch body.Status {
	case store.RequestStatusApproved, store.RequestStatusRejected, store.RequestStatusPending:
	default:
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}
	reason := truncateRunes(strings.TrimSpace(body.Reason), maxReasonLength)

	before, err := s.store.GetAccessRequest(r.Context(), id)
	if errors.Is(err, store.ErrAccessRequestNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		s.logger.Error("loading access request failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "update_failed")
		return
	}

	err = s.store.UpdateAccessRequestStatus(r.Context(), id, body.Status, admin.Email, reason, s.now())
	if errors.Is(err, store.ErrAccessRequestNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		s.logger.Error("updating access request failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "update_failed")
		return
	}

	s.audit(r, store.AuditRequestStatusChanged, admin.Email, map[string]any{
		"id":        id,
		"from":      before.Status,
		"to":        body.Status,
		"reason":    reason,
		"requester": before.RequesterEmail,
	})

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id, "status": body.Status})
}

func (s *Site) handleIssueLink(w http.ResponseWriter, r *http.Request) {
	admin := auth.MustFromContext(r.Context())

	var body struct {
		Email string `json:"email"`
		Next  string `json:"next"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	link, err := s.issuer.Issue(r.Context(), body.Email, body.Next)
	if errors.Is(err, ErrInvalidEmail) {
		writeError(w, http.StatusBadRequest, "invalid_email")
		return
	}
	if err != nil {
		s.logger.Error("issuing magic link failed", "error", err)
		writeError(w, http.StatusInternalServerError, "issue_failed")
		return
	}

	s.audit(r, store.AuditMagicLinkRequested, link.Email, map[string]any{
		"via": "admin",
		"by":  admin.Email,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"url":        link.URL,
		"email":      link.Email,
		"next":       link.Next,
		"expires_at": link.ExpiresAt.UTC(),
	})
}

type auditView struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	Email     string         `json:"email,omitempty"`
	IP        string         `json:"ip,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	Timestamp time.Time      `json:"ts"`
}

func (s *Site) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.AuditFilter{Email: q.Get("email")}
	if v := q.Get("action"); v != "" {
		action := store.AuditAction(v)
		filter.Action = &action
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		filter.Since = &since
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		filter.Limit = n
	}

	entries, err := s.store.ListAuditEntries(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed")
		return
	}

	views := make([]auditView, 0, len(entries))
	for _, e := range entries {
		views = append(views, auditView{
			ID:        e.ID,
			Action:    string(e.Action),
			Email:     e.Email,
			IP:        e.IP,
			UserAgent: e.UserAgent,
			Meta:      e.Meta,
			Timestamp: e.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "entries": views})
}
