// ABOUTME: Admin token protected job listing endpoints: create, activate, reindex and export
// ABOUTME: The token gate has already inspected the body, so handlers decode it in full

package site

import (
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/execpartners/ep-private/internal/store"
)

type jobBody struct {
	Token       string `json:"token"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Market      string `json:"market"`
	Seniority   string `json:"seniority"`
	Active      *bool  `json:"active"`
}

func (s *Site) handleJobCreate(w http.ResponseWriter, r *http.Request) {
	var body jobBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	title := strings.TrimSpace(body.Title)
	if title == "" {
		writeError(w, http.StatusBadRequest, "missing_title")
		return
	}
	slug := slugify(firstString(body.Slug, title))
	if slug == "" {
		writeError(w, http.StatusBadRequest, "invalid_slug")
		return
	}

	now := s.now().UTC()
	job := &store.Job{
		Slug:        slug,
		Title:       title,
		Summary:     strings.TrimSpace(body.Summary),
		Description: strings.TrimSpace(body.Description),
		Location:    strings.TrimSpace(body.Location),
		Market:      strings.TrimSpace(body.Market),
		Seniority:   strings.TrimSpace(body.Seniority),
		Active:      body.Active == nil || *body.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.UpsertJob(r.Context(), job); err != nil {
		s.logger.Error("saving job failed", "slug", slug, "error", err)
		writeError(w, http.StatusInternalServerError, "save_failed")
		return
	}

	s.audit(r, store.AuditJobsChanged, "", map[string]any{"op": "create", "slug": slug})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "slug": slug, "active": job.Active})
}

// handleJobActivate toggles a job. The slug and flag come from the JSON body
// or from the id and active query parameters (active=TRUE|FALSE).
func (s *Site) handleJobActivate(w http.ResponseWriter, r *http.Request) {
	var body jobBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	q := r.URL.Query()
	slug := strings.TrimSpace(firstString(body.Slug, q.Get("slug"), q.Get("id")))
	if slug == "" {
		writeError(w, http.StatusBadRequest, "missing_slug")
		return
	}

	active := true
	switch {
	case body.Active != nil:
		active = *body.Active
	case q.Get("active") != "":
		switch strings.ToUpper(q.Get("active")) {
		case "TRUE":
		case "FALSE":
			active = false
		default:
			writeError(w, http.StatusBadRequest, "invalid_active")
			return
		}
	}

	err := s.store.SetJobActive(r.Context(), slug, active, s.now().UTC())
	if errors.Is(err, store.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		s.logger.Error("updating job failed", "slug", slug, "error", err)
		writeError(w, http.StatusInternalServerError, "save_failed")
		return
	}

	s.audit(r, store.AuditJobsChanged, "", map[string]any{"op": "activate", "slug": slug, "active": active})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "slug": slug, "active": active})
}

// handleJobReindex recounts the published jobs.
func (s *Site) handleJobReindex(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.ListJobs(r.Context(), true)
	if err != nil {
		s.logger.Error("listing jobs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "reindex_failed")
		return
	}

	slugs := make([]string, 0, len(jobs))
	for _, j := range jobs {
		slugs = append(slugs, j.Slug)
	}

	s.audit(r, store.AuditJobsChanged, "", map[string]any{"op": "reindex", "count": len(slugs)})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(slugs), "slugs": slugs})
}

// handleJobExport writes the jobs as CSV. ?active=1 limits the export to
// published jobs.
func (s *Site) handleJobExport(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))

	jobs, err := s.store.ListJobs(r.Context(), activeOnly)
	if err != nil {
		s.logger.Error("listing jobs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "export_failed")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="jobs.csv"`)
	w.Header().Set("Cache-Control", "no-store")

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"slug", "title", "summary", "location", "market", "seniority", "active", "updated_at"})
	for _, j := range jobs {
		_ = cw.Write([]string{
			j.Slug,
			j.Title,
			j.Summary,
			j.Location,
			j.Market,
			j.Seniority,
			strconv.FormatBool(j.Active),
			j.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.Warn("writing jobs export failed", "error", err)
	}
}

// slugify lower-cases s and joins runs of letters and digits with dashes.
func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}
