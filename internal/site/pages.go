// ABOUTME: Gated HTML pages of the private area
// ABOUTME: The home page lists the member's requests; the admin page lists pending ones and activity

package site

import (
	"net/http"

	"github.com/execpartners/ep-private/internal/auth"
	"github.com/execpartners/ep-private/internal/store"
)

func (s *Site) handleHome(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	requests, err := s.store.ListAccessRequests(r.Context(), store.AccessRequestFilter{RequesterEmail: id.Email, Limit: 50})
	if err != nil {
		s.logger.Warn("listing member requests failed", "email", id.Email, "error", err)
	}

	s.render(w, http.StatusOK, homeTemplate, homePageData{
		Title:    "Private area",
		Identity: id,
		Requests: requests,
	})
}

func (s *Site) handleAdminPage(w http.ResponseWriter, r *http.Request) {
	pending, err := s.store.ListAccessRequests(r.Context(), store.AccessRequestFilter{Status: store.RequestStatusPending})
	if err != nil {
		s.logger.Warn("listing pending requests failed", "error", err)
	}
	entries, err := s.store.ListAuditEntries(r.Context(), store.AuditFilter{Limit: 25})
	if err != nil {
		s.logger.Warn("listing audit entries failed", "error", err)
	}
	activeJobs, err := s.store.CountActiveJobs(r.Context())
	if err != nil {
		s.logger.Warn("counting jobs failed", "error", err)
	}

	s.render(w, http.StatusOK, adminTemplate, adminPageData{
		Title:      "Access requests",
		Pending:    pending,
		Audit:      entries,
		ActiveJobs: activeJobs,
	})
}
