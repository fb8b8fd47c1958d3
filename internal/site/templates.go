// ABOUTME: Template rendering for the private area pages
// ABOUTME: Templates are embedded and parsed once per page at startup

package site

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/execpartners/ep-private/internal/auth"
	"github.com/execpartners/ep-private/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	authTemplate  = template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/auth.html"))
	homeTemplate  = template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/home.html"))
	adminTemplate = template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/admin.html"))
)

type authPageData struct {
	Title  string
	Error  string
	Notice string

	// Token is set on the confirm step of an emailed link.
	Token string
	Next  string

	VerifyAction  string
	RequestAction string
}

type homePageData struct {
	Title    string
	Identity *auth.Identity
	Requests []*store.AccessRequest
}

type adminPageData struct {
	Title      string
	Pending    []*store.AccessRequest
	Audit      []store.AuditEntry
	ActiveJobs int
}

func (s *Site) render(w http.ResponseWriter, status int, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := tmpl.Execute(w, data); err != nil {
		s.logger.Error("failed to render template", "error", err)
	}
}

func (s *Site) renderAuthPage(w http.ResponseWriter, status int, errorMsg string) {
	s.renderAuth(w, status, authPageData{Error: errorMsg})
}

func (s *Site) renderAuth(w http.ResponseWriter, status int, data authPageData) {
	data.Title = "Sign in"
	data.VerifyAction = s.cfg.Gate.AuthPath + "/verify"
	data.RequestAction = requestLinkPath
	s.render(w, status, authTemplate, data)
}
